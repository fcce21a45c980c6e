// Package capture renders fragments into PNG screenshots through a bounded
// pool of headless browser workers. Each worker is single-threaded
// internally; captures run in parallel across workers. A janitor bounds the
// screenshot directory by age and count.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"brandwise/internal/logging"
	"brandwise/internal/types"
)

// Renderer turns an HTML document into PNG bytes at a viewport.
// Implementations are single-threaded; the pool serializes access.
type Renderer interface {
	Render(ctx context.Context, html string, vp types.Viewport) ([]byte, error)
	Close() error
}

// RendererFactory builds a fresh renderer, used when a worker takes its
// first job and to replace a renderer torn down after a timeout.
type RendererFactory func() (Renderer, error)

// RodRenderer drives one headless Chromium instance via go-rod.
type RodRenderer struct {
	browser *rod.Browser
	lc      *launcher.Launcher
}

// NewRodRenderer launches a headless browser.
func NewRodRenderer() (Renderer, error) {
	lc := launcher.New().Headless(true)
	url, err := lc.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch headless browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	logging.Capture("headless renderer launched")
	return &RodRenderer{browser: browser, lc: lc}, nil
}

// Render loads the document, lets fonts and layout settle, and captures a
// full-page PNG of the document bounding box.
func (r *RodRenderer) Render(ctx context.Context, html string, vp types.Viewport) ([]byte, error) {
	page, err := r.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("failed to set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("document load failed: %w", err)
	}

	// Settle: loaded fonts and a flushed layout pass.
	if _, err := page.Eval(`() => document.fonts ? document.fonts.ready : true`); err != nil {
		logging.CaptureDebug("font settle failed: %v", err)
	}
	if err := page.WaitStable(300 * time.Millisecond); err != nil {
		logging.CaptureDebug("layout settle failed: %v", err)
	}

	png, err := page.Screenshot(true, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return png, nil
}

// Close shuts the browser down.
func (r *RodRenderer) Close() error {
	err := r.browser.Close()
	r.lc.Cleanup()
	return err
}
