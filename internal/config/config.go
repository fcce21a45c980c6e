// Package config holds the brandwise service configuration: defaults and
// the .agentic/config.yaml overlay. Environment flags are not applied here;
// the discovery package reads them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"brandwise/internal/transform"
)

// Config holds all brandwise configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// EngineVersion participates in the cache signature; bump it to
	// invalidate every cached transform.
	EngineVersion string `yaml:"engine_version"`

	Cache     CacheConfig          `yaml:"cache"`
	Capture   CaptureConfig        `yaml:"capture"`
	Vision    VisionConfig         `yaml:"vision"`
	Router    RouterConfig         `yaml:"router"`
	Patterns  PatternsConfig       `yaml:"patterns"`
	Discovery DiscoveryConfig      `yaml:"discovery"`
	Policy    transform.RulePolicy `yaml:"policy"`
	Logging   LoggingConfig        `yaml:"logging"`
}

// CacheConfig configures the signature cache stores.
type CacheConfig struct {
	Path          string `yaml:"path"`
	TTL           string `yaml:"ttl"`
	MemoryEntries int    `yaml:"memory_entries"`
}

// CaptureConfig configures the screenshot pool and janitor.
type CaptureConfig struct {
	Workers         int    `yaml:"workers"`
	Queue           int    `yaml:"queue"`
	Timeout         string `yaml:"timeout"`
	Dir             string `yaml:"dir"`
	MaxAge          string `yaml:"max_age"`
	MaxFiles        int    `yaml:"max_files"`
	JanitorInterval string `yaml:"janitor_interval"`
}

// VisionConfig configures the vision critic.
type VisionConfig struct {
	Model         string  `yaml:"model"`
	APIKeyEnv     string  `yaml:"api_key_env"`
	Temperature   float32 `yaml:"temperature"`
	TopP          float32 `yaml:"top_p"`
	RetryAttempts int     `yaml:"retry_attempts"`
	Timeout       string  `yaml:"timeout"`
	Workers       int     `yaml:"workers"`
	Queue         int     `yaml:"queue"`
}

// RouterConfig configures fix planning and validation.
type RouterConfig struct {
	MaxFixes        int `yaml:"max_fixes"`
	AcceptThreshold int `yaml:"accept_threshold"`
}

// PatternsConfig configures the pattern store.
type PatternsConfig struct {
	Path string `yaml:"path"`
}

// DiscoveryConfig configures context resolution.
type DiscoveryConfig struct {
	MappingPath string `yaml:"mapping_path"`
}

// LoggingConfig mirrors the logging package's file-config shape.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:          "brandwise",
		Version:       "1.0.0",
		EngineVersion: "1.0.0",

		Cache: CacheConfig{
			Path:          filepath.Join(".agentic", "data", "cache.db"),
			TTL:           "720h", // 30 days on lastHitAt
			MemoryEntries: 1024,
		},
		Capture: CaptureConfig{
			Workers:         4,
			Queue:           32,
			Timeout:         "15s",
			Dir:             filepath.Join(os.TempDir(), "brandwise-shots"),
			MaxAge:          "1h",
			MaxFiles:        256,
			JanitorInterval: "5m",
		},
		Vision: VisionConfig{
			Model:         "gemini-2.0-flash",
			APIKeyEnv:     "GEMINI_API_KEY",
			Temperature:   0.2,
			TopP:          0.9,
			RetryAttempts: 3,
			Timeout:       "60s",
			Workers:       8,
			Queue:         32,
		},
		Router: RouterConfig{
			MaxFixes:        10,
			AcceptThreshold: 10,
		},
		Patterns: PatternsConfig{
			Path: filepath.Join(".agentic", "data", "patterns.db"),
		},
		Discovery: DiscoveryConfig{
			MappingPath: filepath.Join(".agentic", "data", "mappings.json"),
		},
		Policy: transform.DefaultPolicy(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the yaml config at path over the defaults. A missing file is
// not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Duration parses a duration field, returning the fallback on empty or
// malformed input.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// FindWorkspaceRoot walks up from the working directory looking for a
// .agentic directory or a git root.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if stat, err := os.Stat(filepath.Join(dir, ".agentic")); err == nil && stat.IsDir() {
			return dir, nil
		}
		if stat, err := os.Stat(filepath.Join(dir, ".git")); err == nil && stat.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return os.Getwd()
}
