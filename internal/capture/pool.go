package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"brandwise/internal/logging"
	"brandwise/internal/types"
)

// ErrBackpressure is returned when the capture queue is full. Retryable;
// the orchestrator maps it to a backpressure diagnostic.
var ErrBackpressure = errors.New("capture queue full")

// Config tunes the capture pool.
type Config struct {
	Workers  int           `yaml:"workers" json:"workers"`
	Queue    int           `yaml:"queue" json:"queue"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	Dir      string        `yaml:"dir" json:"dir"`
	MaxAge   time.Duration `yaml:"max_age" json:"max_age"`
	MaxFiles int           `yaml:"max_files" json:"max_files"`
}

// DefaultConfig returns the shipped pool settings.
func DefaultConfig() Config {
	return Config{
		Workers:  4,
		Queue:    32,
		Timeout:  15 * time.Second,
		Dir:      filepath.Join(os.TempDir(), "brandwise-shots"),
		MaxAge:   time.Hour,
		MaxFiles: 256,
	}
}

// Shot references one captured screenshot by immutable id. Readers open by
// id; the janitor owns deletes; workers own writes.
type Shot struct {
	ID        string         `json:"id"`
	Path      string         `json:"path"`
	Viewport  types.Viewport `json:"viewport"`
	SizeBytes int64          `json:"size_bytes"`
	CreatedAt time.Time      `json:"created_at"`
}

type job struct {
	ctx    context.Context
	html   string
	vp     types.Viewport
	result chan jobResult
}

type jobResult struct {
	png []byte
	err error
}

// Pool is the bounded capture worker pool with queue backpressure.
type Pool struct {
	cfg     Config
	factory RendererFactory
	jobs    chan job
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool starts the workers. The factory is invoked once per worker and
// again whenever a worker is torn down after a timeout.
func NewPool(cfg Config, factory RendererFactory) (*Pool, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 32
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	p := &Pool{
		cfg:     cfg,
		factory: factory,
		jobs:    make(chan job, cfg.Queue),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logging.Capture("capture pool started: %d workers, queue %d", cfg.Workers, cfg.Queue)
	return p, nil
}

// worker owns one renderer, replacing it after any timeout.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	var r Renderer
	defer func() {
		if r != nil {
			r.Close()
		}
	}()

	for j := range p.jobs {
		if r == nil {
			var err error
			r, err = p.factory()
			if err != nil {
				j.result <- jobResult{err: fmt.Errorf("renderer unavailable: %w", err)}
				continue
			}
		}

		ctx, cancel := context.WithTimeout(j.ctx, p.cfg.Timeout)
		png, err := r.Render(ctx, j.html, j.vp)
		timedOut := ctx.Err() != nil
		cancel()

		if timedOut {
			// A wedged renderer is torn down and replaced on the next job.
			logging.Capture("worker %d: capture timed out, replacing renderer", id)
			r.Close()
			r = nil
			if err == nil {
				err = context.DeadlineExceeded
			}
		}
		j.result <- jobResult{png: png, err: err}
	}
}

// Capture wraps the fragment into a document, renders it at the viewport
// and writes the PNG under an immutable id. A full queue returns
// ErrBackpressure immediately.
func (p *Pool) Capture(ctx context.Context, frag types.Fragment, vp types.Viewport) (*Shot, error) {
	timer := logging.StartTimer(logging.CategoryCapture, "Capture")
	defer timer.StopWithThreshold(5 * time.Second)

	if vp.Width <= 0 || vp.Height <= 0 {
		vp = types.Viewport{Width: 1280, Height: 800}
	}

	j := job{
		ctx:    ctx,
		html:   WrapDocument(frag),
		vp:     vp,
		result: make(chan jobResult, 1),
	}

	select {
	case p.jobs <- j:
	default:
		return nil, ErrBackpressure
	}

	var res jobResult
	select {
	case res = <-j.result:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	id := uuid.NewString()
	path := filepath.Join(p.cfg.Dir, id+".png")
	if err := os.WriteFile(path, res.png, 0644); err != nil {
		return nil, fmt.Errorf("failed to write screenshot: %w", err)
	}

	logging.CaptureDebug("captured %s at %dx%d (%d bytes)", id, vp.Width, vp.Height, len(res.png))
	return &Shot{
		ID:        id,
		Path:      path,
		Viewport:  vp,
		SizeBytes: int64(len(res.png)),
		CreatedAt: time.Now(),
	}, nil
}

// Read opens a screenshot by immutable id.
func (p *Pool) Read(id string) ([]byte, error) {
	return os.ReadFile(filepath.Join(p.cfg.Dir, id+".png"))
}

// Close drains the pool and shuts the workers down.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.jobs)
	p.wg.Wait()
}
