package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"brandwise/internal/cache"
	"brandwise/internal/capture"
	"brandwise/internal/config"
	"brandwise/internal/discovery"
	"brandwise/internal/engine"
	"brandwise/internal/patterns"
	"brandwise/internal/token"
	"brandwise/internal/vision"
)

// service bundles the orchestrator with the resources that need shutdown.
type service struct {
	orch    *engine.Orchestrator
	pool    *capture.Pool
	janitor *capture.Janitor
	history *cache.SQLiteStore
	pats    *patterns.Store
}

// buildService constructs the pipeline components. A failed constructor is
// recorded as unavailable instead of aborting: the orchestrator owns the
// degraded-mode decisions. withVisual controls whether the headless
// renderer and vision client are brought up at all.
func buildService(withVisual bool) *service {
	unavailable := map[string]error{}
	deps := engine.Deps{}
	svc := &service{}

	packSrc := newFilePackSource(flagProject)
	deps.Packs = packSrc
	deps.Resolver = discovery.NewResolver(packSrc, os.Getenv, resolveUnder(cfg.Discovery.MappingPath))

	if store, err := cache.NewSQLiteStore(resolveUnder(cfg.Cache.Path)); err != nil {
		unavailable["cache"] = err
		deps.Cache = cache.New(nil, cache.NewMemoryStore(cfg.Cache.MemoryEntries), 0, nil)
	} else {
		svc.history = store
		deps.History = store
		ttl := config.Duration(cfg.Cache.TTL, cache.DefaultTTL)
		deps.Cache = cache.New(store, cache.NewMemoryStore(cfg.Cache.MemoryEntries), ttl, nil)
	}

	if pats, err := patterns.NewStore(resolveUnder(cfg.Patterns.Path)); err != nil {
		unavailable["patterns"] = err
	} else {
		svc.pats = pats
		deps.Patterns = pats
	}

	if withVisual {
		capCfg := capture.Config{
			Workers:  cfg.Capture.Workers,
			Queue:    cfg.Capture.Queue,
			Timeout:  config.Duration(cfg.Capture.Timeout, 0),
			Dir:      cfg.Capture.Dir,
			MaxAge:   config.Duration(cfg.Capture.MaxAge, 0),
			MaxFiles: cfg.Capture.MaxFiles,
		}
		if pool, err := capture.NewPool(capCfg, capture.NewRodRenderer); err != nil {
			unavailable["capture"] = err
		} else {
			svc.pool = pool
			deps.Pool = pool
			svc.janitor = capture.NewJanitor(capCfg)
			svc.janitor.Start(config.Duration(cfg.Capture.JanitorInterval, 0))
			deps.Janitor = svc.janitor
		}

		apiKey := os.Getenv(cfg.Vision.APIKeyEnv)
		visCfg := vision.GeminiConfig{
			APIKey:        apiKey,
			Model:         cfg.Vision.Model,
			Temperature:   cfg.Vision.Temperature,
			TopP:          cfg.Vision.TopP,
			RetryAttempts: cfg.Vision.RetryAttempts,
			Timeout:       config.Duration(cfg.Vision.Timeout, 0),
		}
		if critic, err := vision.NewGeminiCritic(context.Background(), visCfg); err != nil {
			unavailable["vision"] = err
		} else {
			deps.Critic = critic
		}
	}

	svc.orch = engine.New(cfg, deps, unavailable)
	return svc
}

// close releases browser workers and store handles.
func (s *service) close() {
	if s.janitor != nil {
		s.janitor.Stop()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.history != nil {
		s.history.Close()
	}
	if s.pats != nil {
		s.pats.Close()
	}
}

// resolveUnder anchors a relative config path at the project root.
func resolveUnder(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(flagProject, path)
}

// filePackSource serves brand packs from pack JSON files under the project
// root (.agentic/brand-packs/<id>.json, or an inline brand-pack.json). The
// real pack store lives outside the core; the CLI reads its exports.
type filePackSource struct {
	root string
}

func newFilePackSource(root string) *filePackSource {
	return &filePackSource{root: root}
}

func (f *filePackSource) packDir() string {
	return filepath.Join(f.root, ".agentic", "brand-packs")
}

func (f *filePackSource) load(path string) (*token.BrandPack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pack token.BrandPack
	if err := json.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("unreadable brand pack %s: %w", path, err)
	}
	if pack.ID == "" {
		return nil, fmt.Errorf("brand pack %s has no id", path)
	}
	return &pack, nil
}

// GetBrandPack implements engine.PackSource.
func (f *filePackSource) GetBrandPack(ctx context.Context, id, version string) (*token.BrandPack, error) {
	for _, path := range []string{
		filepath.Join(f.packDir(), id+".json"),
		filepath.Join(f.root, "brand-pack.json"),
	} {
		pack, err := f.load(path)
		if err != nil {
			continue
		}
		if pack.ID == id && (version == "" || pack.Version == version) {
			return pack, nil
		}
	}
	return nil, fmt.Errorf("brand pack %s@%s not found", id, version)
}

// ListBrandPackIDs implements discovery.PackStore.
func (f *filePackSource) ListBrandPackIDs(ctx context.Context) ([]string, error) {
	var ids []string
	entries, err := os.ReadDir(f.packDir())
	if err == nil {
		for _, e := range entries {
			if filepath.Ext(e.Name()) == ".json" {
				if pack, perr := f.load(filepath.Join(f.packDir(), e.Name())); perr == nil {
					ids = append(ids, pack.ID)
				}
			}
		}
	}
	if pack, perr := f.load(filepath.Join(f.root, "brand-pack.json")); perr == nil {
		ids = append(ids, pack.ID)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no brand packs under %s", f.root)
	}
	return ids, nil
}

// LatestVersion implements discovery.PackStore.
func (f *filePackSource) LatestVersion(ctx context.Context, id string) (string, error) {
	pack, err := f.GetBrandPack(ctx, id, "")
	if err != nil {
		return "", err
	}
	return pack.Version, nil
}

// printJSON writes an indented response to stdout.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// readInput loads a fragment from a file argument or stdin ("-").
func readInput(args []string) ([]byte, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		return data, "", err
	}
	data, err := os.ReadFile(args[0])
	return data, args[0], err
}
