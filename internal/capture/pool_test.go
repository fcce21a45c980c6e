package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"brandwise/internal/types"
)

// stubRenderer returns a fixed payload after an optional delay.
type stubRenderer struct {
	delay  time.Duration
	closed bool
	mu     sync.Mutex
}

func (s *stubRenderer) Render(ctx context.Context, html string, vp types.Viewport) ([]byte, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []byte("png-bytes"), nil
}

func (s *stubRenderer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.Workers = 2
	cfg.Queue = 4
	return cfg
}

func TestCaptureWritesShot(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool, err := NewPool(testConfig(t), func() (Renderer, error) { return &stubRenderer{}, nil })
	if err != nil {
		t.Fatalf("pool start failed: %v", err)
	}
	defer pool.Close()

	shot, err := pool.Capture(context.Background(),
		types.Fragment{CodeType: types.CodeCSS, Bytes: []byte(".a{color:#fff}")},
		types.Viewport{Width: 800, Height: 600})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if shot.ID == "" || shot.Viewport.Width != 800 {
		t.Errorf("unexpected shot %+v", shot)
	}
	data, err := pool.Read(shot.ID)
	if err != nil || string(data) != "png-bytes" {
		t.Errorf("Read(%s) = %q, %v", shot.ID, data, err)
	}
}

func TestCaptureBackpressure(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	cfg.Workers = 1
	cfg.Queue = 1
	slow := &stubRenderer{delay: 200 * time.Millisecond}
	pool, err := NewPool(cfg, func() (Renderer, error) { return slow, nil })
	if err != nil {
		t.Fatalf("pool start failed: %v", err)
	}
	defer pool.Close()

	frag := types.Fragment{CodeType: types.CodeCSS, Bytes: []byte(".a{}")}
	vp := types.Viewport{Width: 100, Height: 100}

	var wg sync.WaitGroup
	overflows := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Capture(context.Background(), frag, vp); err != nil {
				overflows <- err
			}
		}()
	}
	wg.Wait()
	close(overflows)

	sawBackpressure := false
	for err := range overflows {
		if err == ErrBackpressure {
			sawBackpressure = true
		}
	}
	if !sawBackpressure {
		t.Error("expected at least one backpressure rejection")
	}
}

func TestTimeoutReplacesRenderer(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	cfg.Workers = 1
	cfg.Timeout = 50 * time.Millisecond

	var mu sync.Mutex
	var made []*stubRenderer
	factory := func() (Renderer, error) {
		mu.Lock()
		defer mu.Unlock()
		r := &stubRenderer{}
		if len(made) == 0 {
			r.delay = time.Second // first renderer wedges
		}
		made = append(made, r)
		return r, nil
	}

	pool, err := NewPool(cfg, factory)
	if err != nil {
		t.Fatalf("pool start failed: %v", err)
	}
	defer pool.Close()

	frag := types.Fragment{CodeType: types.CodeCSS, Bytes: []byte(".a{}")}
	vp := types.Viewport{Width: 100, Height: 100}

	if _, err := pool.Capture(context.Background(), frag, vp); err == nil {
		t.Fatal("wedged renderer should time out")
	}
	if _, err := pool.Capture(context.Background(), frag, vp); err != nil {
		t.Fatalf("replacement renderer should succeed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(made) != 2 {
		t.Errorf("expected 2 renderers (original + replacement), got %d", len(made))
	}
	if !made[0].closed {
		t.Error("timed-out renderer was not torn down")
	}
}

func TestJanitorBounds(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, MaxAge: time.Hour, MaxFiles: 2}

	old := filepath.Join(dir, "old.png")
	os.WriteFile(old, []byte("x"), 0644)
	os.Chtimes(old, time.Now().Add(-2*time.Hour), time.Now().Add(-2*time.Hour))

	for i, name := range []string{"a.png", "b.png", "c.png"} {
		p := filepath.Join(dir, name)
		os.WriteFile(p, []byte("x"), 0644)
		mod := time.Now().Add(time.Duration(i-3) * time.Minute)
		os.Chtimes(p, mod, mod)
	}

	j := NewJanitor(cfg)
	removed := j.Sweep()
	if removed != 2 {
		t.Errorf("removed %d, want 2 (1 expired + 1 over high-water)", removed)
	}

	left, _ := os.ReadDir(dir)
	if len(left) != 2 {
		t.Errorf("%d files left, want 2", len(left))
	}
	for _, e := range left {
		if e.Name() == "old.png" || e.Name() == "a.png" {
			t.Errorf("wrong file survived: %s", e.Name())
		}
	}
}

func TestWrapDocument(t *testing.T) {
	css := WrapDocument(types.Fragment{CodeType: types.CodeCSS, Bytes: []byte(".a{color:#fff}")})
	if !strings.Contains(css, "<style>") || !strings.Contains(css, ".a{color:#fff}") {
		t.Errorf("css wrap missing style mount: %s", css)
	}

	partial := WrapDocument(types.Fragment{CodeType: types.CodeHTML, Bytes: []byte("<div>hi</div>")})
	if !strings.Contains(partial, "<!DOCTYPE html>") || !strings.Contains(partial, "<div>hi</div>") {
		t.Errorf("partial html not wrapped: %s", partial)
	}

	full := "<html><body>x</body></html>"
	if got := WrapDocument(types.Fragment{CodeType: types.CodeHTML, Bytes: []byte(full)}); got != full {
		t.Errorf("complete document must pass through, got %s", got)
	}
}
