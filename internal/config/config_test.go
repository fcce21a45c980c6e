package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 4, cfg.Capture.Workers)
	assert.Equal(t, 8, cfg.Vision.Workers)
	assert.Equal(t, 5, cfg.Policy.MaxAutoApply)
	assert.Equal(t, 10, cfg.Router.AcceptThreshold)
	assert.Equal(t, "gemini-2.0-flash", cfg.Vision.Model)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
engine_version: "2.0.0"
capture:
  workers: 2
vision:
  model: gemini-exp
policy:
  max_auto_apply: 3
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.EngineVersion != "2.0.0" || cfg.Capture.Workers != 2 || cfg.Vision.Model != "gemini-exp" {
		t.Errorf("overlay not applied: %+v", cfg)
	}
	if cfg.Policy.MaxAutoApply != 3 {
		t.Errorf("policy overlay not applied: %+v", cfg.Policy)
	}
	// Untouched fields keep their defaults.
	if cfg.Vision.RetryAttempts != 3 {
		t.Errorf("default lost under overlay: %+v", cfg.Vision)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config must not error: %v", err)
	}
	if cfg.Name != "brandwise" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestDurationParsing(t *testing.T) {
	if got := Duration("15s", time.Minute); got != 15*time.Second {
		t.Errorf("Duration(15s) = %v", got)
	}
	if got := Duration("", time.Minute); got != time.Minute {
		t.Errorf("empty duration should fall back, got %v", got)
	}
	if got := Duration("bogus", time.Minute); got != time.Minute {
		t.Errorf("malformed duration should fall back, got %v", got)
	}
}
