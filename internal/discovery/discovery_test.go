package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakePacks is an in-memory PackStore.
type fakePacks struct {
	ids     []string
	latest  map[string]string
	failAll bool
}

func (f *fakePacks) ListBrandPackIDs(ctx context.Context) ([]string, error) {
	if f.failAll {
		return nil, errors.New("pack store offline")
	}
	return f.ids, nil
}

func (f *fakePacks) LatestVersion(ctx context.Context, id string) (string, error) {
	if f.failAll {
		return "", errors.New("pack store offline")
	}
	return f.latest[id], nil
}

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestEnvWinsOverConfig(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, ".agentic", "config.json"), map[string]string{
		"brandPackId": "from-config", "brandVersion": "1.0.0",
	})

	r := NewResolver(nil, env(map[string]string{
		EnvBrandPackID:  "from-env",
		EnvBrandVersion: "2.0.0",
	}), "")

	pc, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if pc.BrandPackID != "from-env" || pc.Source != SourceEnv {
		t.Errorf("env flag must win: %+v", pc)
	}
}

func TestConfigFileResolution(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, ".agentic", "config.json"), map[string]interface{}{
		"brandPackId":  "acme",
		"brandVersion": "1.2.0",
		"projectId":    "proj-9",
		"overrides":    map[string]string{"color-primary": "prefer"},
	})

	r := NewResolver(nil, env(nil), "")
	pc, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if pc.BrandPackID != "acme" || pc.Source != SourceConfig || pc.ProjectID != "proj-9" {
		t.Errorf("config resolution wrong: %+v", pc)
	}
	if pc.OverridesHash() == "" {
		t.Error("overrides hash should be non-empty")
	}
}

func TestManifestResolution(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "package.json"), map[string]interface{}{
		"name":    "web",
		"agentic": map[string]string{"brandPackId": "acme", "brandVersion": "1.0.0"},
	})

	r := NewResolver(nil, env(nil), "")
	pc, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if pc.Source != SourceManifest || pc.BrandPackID != "acme" {
		t.Errorf("manifest resolution wrong: %+v", pc)
	}
}

func TestMarkerResolution(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "brand-pack.ref.json"), map[string]string{
		"id": "acme", "version": "3.0.0",
	})

	r := NewResolver(nil, env(nil), "")
	pc, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if pc.Source != SourceMarker || pc.BrandVersion != "3.0.0" {
		t.Errorf("marker resolution wrong: %+v", pc)
	}
}

func TestAutoBindSinglePack(t *testing.T) {
	root := t.TempDir()
	packs := &fakePacks{ids: []string{"solo"}, latest: map[string]string{"solo": "1.1.0"}}

	r := NewResolver(packs, env(nil), "")
	pc, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if pc.Source != SourceAutoBind || pc.BrandPackID != "solo" || pc.BrandVersion != "1.1.0" {
		t.Errorf("auto-bind wrong: %+v", pc)
	}

	// A successful resolution writes the lock snapshot.
	lock, ok := ReadLock(root)
	if !ok || lock.ID != "solo" {
		t.Errorf("lock snapshot missing: %+v ok=%v", lock, ok)
	}
}

func TestStrictModeHardensFallbacks(t *testing.T) {
	root := t.TempDir()
	packs := &fakePacks{ids: []string{"solo"}, latest: map[string]string{"solo": "1.1.0"}}

	r := NewResolver(packs, env(map[string]string{EnvStrict: "1"}), "")
	if _, err := r.Resolve(context.Background(), root); err == nil {
		t.Fatal("strict mode must refuse auto-bind")
	}

	r2 := NewResolver(&fakePacks{}, env(map[string]string{EnvStrict: "1"}), "")
	if _, err := r2.Resolve(context.Background(), root); err == nil {
		t.Fatal("strict mode must refuse degraded resolution")
	}
}

func TestDegradedResolution(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(&fakePacks{}, env(nil), "")
	pc, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !pc.Degraded || pc.Source != SourceDegraded {
		t.Errorf("expected degraded context: %+v", pc)
	}
	if diags := Diagnose(pc); len(diags) != 1 {
		t.Errorf("expected unresolved-brand diagnostic, got %+v", diags)
	}
}

func TestLockFallbackWhenStoreOffline(t *testing.T) {
	root := t.TempDir()

	// Seed a lock from an earlier successful resolution.
	if err := WriteLock(root, &ProjectContext{BrandPackID: "acme", BrandVersion: "1.2.0", Source: SourceConfig}); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(&fakePacks{failAll: true}, env(nil), "")
	pc, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if pc.Source != SourceLock || pc.BrandPackID != "acme" {
		t.Errorf("lock fallback wrong: %+v", pc)
	}
}

func TestDisableShortCircuit(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, ".agentic", "config.json"), map[string]string{
		"brandPackId": "acme",
	})

	r := NewResolver(nil, env(map[string]string{EnvDisable: "1"}), "")
	pc, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !pc.Disabled || pc.BrandPackID != "" {
		t.Errorf("disable flag must short-circuit: %+v", pc)
	}
}

func TestPersistentMapping(t *testing.T) {
	root := t.TempDir()
	mapping := filepath.Join(t.TempDir(), "mappings.json")

	r := NewResolver(nil, env(nil), mapping)
	rootHash := hashRoot(root)
	if err := r.BindMapping(rootHash, "acme", "2.0.0"); err != nil {
		t.Fatalf("BindMapping failed: %v", err)
	}

	pc, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if pc.Source != SourceMapping || pc.BrandVersion != "2.0.0" {
		t.Errorf("mapping resolution wrong: %+v", pc)
	}
}

func TestResolutionMemoizedAndInvalidated(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, ".agentic", "config.json"), map[string]string{
		"brandPackId": "first", "brandVersion": "1.0.0",
	})

	r := NewResolver(nil, env(nil), "")
	pc, _ := r.Resolve(context.Background(), root)
	if pc.BrandPackID != "first" {
		t.Fatalf("unexpected first resolution: %+v", pc)
	}

	writeJSON(t, filepath.Join(root, ".agentic", "config.json"), map[string]string{
		"brandPackId": "second", "brandVersion": "1.0.0",
	})

	// Memoized until invalidated.
	pc, _ = r.Resolve(context.Background(), root)
	if pc.BrandPackID != "first" {
		t.Errorf("resolution should be memoized, got %+v", pc)
	}

	r.Invalidate(root)
	pc, _ = r.Resolve(context.Background(), root)
	if pc.BrandPackID != "second" {
		t.Errorf("invalidation did not take effect: %+v", pc)
	}
}
