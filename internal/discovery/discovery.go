// Package discovery resolves the brand context for a project: which brand
// pack, which version, which project id, and which precedence level won.
// The resolution order is fixed; the first non-empty source wins. Strict
// mode hardens the last two fallbacks into errors.
package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"brandwise/internal/logging"
	"brandwise/internal/types"
)

// Source tags which precedence level produced the resolution.
type Source string

const (
	SourceEnv      Source = "env"
	SourceConfig   Source = "config"
	SourceManifest Source = "manifest"
	SourceMarker   Source = "marker"
	SourceMapping  Source = "mapping"
	SourceAutoBind Source = "auto-bind"
	SourceLock     Source = "lock"
	SourceDegraded Source = "degraded"
)

// Environment flag names consulted at the top of the precedence order.
const (
	EnvBrandPackID  = "BRAND_PACK_ID"
	EnvBrandVersion = "BRAND_VERSION"
	EnvProjectID    = "PROJECT_ID"
	EnvDisable      = "AGENTIC_DISABLE"
	EnvStrict       = "AGENTIC_STRICT"
	EnvAutoApply    = "AGENTIC_AUTO_APPLY"
	EnvMaxChanges   = "AGENTIC_AUTO_APPLY_MAX_CHANGES"
)

// ProjectContext is a successful (or degraded) resolution.
type ProjectContext struct {
	ProjectID    string            `json:"project_id"`
	RootHash     string            `json:"root_hash"`
	BrandPackID  string            `json:"brand_pack_id"`
	BrandVersion string            `json:"brand_version"`
	Overrides    map[string]string `json:"overrides,omitempty"`
	Source       Source            `json:"source"`
	Disabled     bool              `json:"disabled,omitempty"`
	Degraded     bool              `json:"degraded,omitempty"`

	// AutoApply / MaxChanges carry the env-level engine knobs when set.
	AutoApply  string `json:"auto_apply,omitempty"`
	MaxChanges int    `json:"max_changes,omitempty"`
}

// OverridesHash returns the canonical hash of the override set, stable
// under map iteration order.
func (pc *ProjectContext) OverridesHash() string {
	if len(pc.Overrides) == 0 {
		return ""
	}
	keys := make([]string, 0, len(pc.Overrides))
	for k := range pc.Overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(pc.Overrides[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PackStore is the read-only brand-pack collaborator. Writes happen
// outside the core.
type PackStore interface {
	ListBrandPackIDs(ctx context.Context) ([]string, error)
	LatestVersion(ctx context.Context, id string) (string, error)
}

// configShape is the common shape of .agentic/config.json and the
// manifest's agentic key.
type configShape struct {
	BrandPackID  string            `json:"brandPackId"`
	BrandVersion string            `json:"brandVersion"`
	ProjectID    string            `json:"projectId"`
	Overrides    map[string]string `json:"overrides"`
}

// markerRef is brand-pack.ref.json.
type markerRef struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// Resolver runs the precedence chain and memoizes per project root until
// invalidated (by the config watcher or an explicit call).
type Resolver struct {
	packs       PackStore
	getenv      func(string) string
	mappingPath string

	mu    sync.Mutex
	cache map[string]*ProjectContext
}

// NewResolver builds a resolver. getenv may be nil (defaults to os.Getenv);
// packs may be nil (mapping/auto-bind steps are skipped). mappingPath is
// the persistent rootHash -> pack mapping file, empty to disable.
func NewResolver(packs PackStore, getenv func(string) string, mappingPath string) *Resolver {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &Resolver{
		packs:       packs,
		getenv:      getenv,
		mappingPath: mappingPath,
		cache:       make(map[string]*ProjectContext),
	}
}

// Invalidate drops the memoized resolution for a project root.
func (r *Resolver) Invalidate(root string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, root)
}

// Resolve walks the precedence chain for the project root.
// In strict mode (AGENTIC_STRICT=1), auto-bind and degraded fallbacks
// become hard errors instead.
func (r *Resolver) Resolve(ctx context.Context, projectRoot string) (*ProjectContext, error) {
	r.mu.Lock()
	if pc, ok := r.cache[projectRoot]; ok {
		r.mu.Unlock()
		return pc, nil
	}
	r.mu.Unlock()

	pc, err := r.resolve(ctx, projectRoot)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[projectRoot] = pc
	r.mu.Unlock()

	if !pc.Degraded && !pc.Disabled {
		if lerr := WriteLock(projectRoot, pc); lerr != nil {
			logging.Discovery("failed to write lock snapshot: %v", lerr)
		}
	}
	return pc, nil
}

func (r *Resolver) resolve(ctx context.Context, projectRoot string) (*ProjectContext, error) {
	strict := r.getenv(EnvStrict) == "1"
	rootHash := hashRoot(projectRoot)

	base := &ProjectContext{
		RootHash:   rootHash,
		ProjectID:  r.getenv(EnvProjectID),
		AutoApply:  r.getenv(EnvAutoApply),
		MaxChanges: atoiSafe(r.getenv(EnvMaxChanges)),
	}

	if r.getenv(EnvDisable) == "1" {
		base.Disabled = true
		base.Source = SourceDegraded
		logging.Discovery("enhancement disabled by %s", EnvDisable)
		return base, nil
	}

	// 1. Environment flags.
	if id := r.getenv(EnvBrandPackID); id != "" {
		base.BrandPackID = id
		base.BrandVersion = r.getenv(EnvBrandVersion)
		base.Source = SourceEnv
		logging.Discovery("resolved %s@%s from environment", base.BrandPackID, base.BrandVersion)
		return base, nil
	}

	// 2. .agentic/config.json under the project root.
	if cfg, ok := readConfigShape(filepath.Join(projectRoot, ".agentic", "config.json"), ""); ok && cfg.BrandPackID != "" {
		return r.fromShape(base, cfg, SourceConfig), nil
	}

	// 3. Project manifest key.
	if cfg, ok := readConfigShape(filepath.Join(projectRoot, "package.json"), "agentic"); ok && cfg.BrandPackID != "" {
		return r.fromShape(base, cfg, SourceManifest), nil
	}

	// 4. Repo marker file.
	if ref, ok := readMarker(projectRoot); ok {
		base.BrandPackID = ref.ID
		base.BrandVersion = ref.Version
		base.Source = SourceMarker
		logging.Discovery("resolved %s@%s from repo marker", ref.ID, ref.Version)
		return base, nil
	}

	// 5. Persistent root-hash mapping.
	if id, version, ok := r.lookupMapping(rootHash); ok {
		base.BrandPackID = id
		base.BrandVersion = version
		base.Source = SourceMapping
		logging.Discovery("resolved %s@%s from persistent mapping", id, version)
		return base, nil
	}

	// 6. Auto-bind when exactly one brand pack exists.
	if r.packs != nil {
		ids, err := r.packs.ListBrandPackIDs(ctx)
		if err != nil {
			logging.Discovery("pack store unreachable, consulting lock snapshot: %v", err)
			if lock, ok := ReadLock(projectRoot); ok {
				base.BrandPackID = lock.ID
				base.BrandVersion = lock.Version
				base.Source = SourceLock
				return base, nil
			}
		} else if len(ids) == 1 {
			if strict {
				return nil, fmt.Errorf("strict mode: refusing to auto-bind brand pack %q", ids[0])
			}
			version, verr := r.packs.LatestVersion(ctx, ids[0])
			if verr == nil {
				base.BrandPackID = ids[0]
				base.BrandVersion = version
				base.Source = SourceAutoBind
				logging.Discovery("auto-bound sole brand pack %s@%s", ids[0], version)
				return base, nil
			}
		}
	}

	// 7. Degraded: structural rules only.
	if strict {
		return nil, fmt.Errorf("strict mode: no brand pack resolved for %s", projectRoot)
	}
	base.Source = SourceDegraded
	base.Degraded = true
	logging.Discovery("no brand pack resolved for %s, proceeding degraded", projectRoot)
	return base, nil
}

func (r *Resolver) fromShape(base *ProjectContext, cfg configShape, src Source) *ProjectContext {
	base.BrandPackID = cfg.BrandPackID
	base.BrandVersion = cfg.BrandVersion
	if cfg.ProjectID != "" && base.ProjectID == "" {
		base.ProjectID = cfg.ProjectID
	}
	base.Overrides = cfg.Overrides
	base.Source = src
	logging.Discovery("resolved %s@%s from %s", cfg.BrandPackID, cfg.BrandVersion, src)
	return base
}

// readConfigShape reads a JSON file; with key set, the shape is nested
// under that key (project manifest layout).
func readConfigShape(path, key string) (configShape, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return configShape{}, false
	}
	if key == "" {
		var cfg configShape
		if err := json.Unmarshal(data, &cfg); err != nil {
			logging.Discovery("unreadable config at %s: %v", path, err)
			return configShape{}, false
		}
		return cfg, true
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return configShape{}, false
	}
	raw, ok := outer[key]
	if !ok {
		return configShape{}, false
	}
	var cfg configShape
	if err := json.Unmarshal(raw, &cfg); err != nil {
		logging.Discovery("unreadable %s key in %s: %v", key, path, err)
		return configShape{}, false
	}
	return cfg, true
}

// readMarker checks brand-pack.ref.json, then an inline brand-pack.json.
func readMarker(projectRoot string) (markerRef, bool) {
	if data, err := os.ReadFile(filepath.Join(projectRoot, "brand-pack.ref.json")); err == nil {
		var ref markerRef
		if json.Unmarshal(data, &ref) == nil && ref.ID != "" {
			return ref, true
		}
	}
	if data, err := os.ReadFile(filepath.Join(projectRoot, "brand-pack.json")); err == nil {
		var ref markerRef
		if json.Unmarshal(data, &ref) == nil && ref.ID != "" {
			return ref, true
		}
	}
	return markerRef{}, false
}

// mappingFile is the persistent rootHash -> pack reference table.
type mappingFile map[string]markerRef

func (r *Resolver) lookupMapping(rootHash string) (string, string, bool) {
	if r.mappingPath == "" {
		return "", "", false
	}
	data, err := os.ReadFile(r.mappingPath)
	if err != nil {
		return "", "", false
	}
	var m mappingFile
	if err := json.Unmarshal(data, &m); err != nil {
		return "", "", false
	}
	ref, ok := m[rootHash]
	if !ok || ref.ID == "" {
		return "", "", false
	}
	return ref.ID, ref.Version, true
}

// BindMapping persists a rootHash -> pack binding.
func (r *Resolver) BindMapping(rootHash, id, version string) error {
	if r.mappingPath == "" {
		return fmt.Errorf("no mapping path configured")
	}
	m := mappingFile{}
	if data, err := os.ReadFile(r.mappingPath); err == nil {
		_ = json.Unmarshal(data, &m)
	}
	m[rootHash] = markerRef{ID: id, Version: version}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(r.mappingPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(r.mappingPath, data, 0644)
}

func hashRoot(projectRoot string) string {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		abs = projectRoot
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// Diagnose converts a degraded context into the diagnostic the response
// envelope carries.
func Diagnose(pc *ProjectContext) []types.Diagnostic {
	if pc == nil || !pc.Degraded {
		return nil
	}
	return []types.Diagnostic{{
		Kind:    types.DiagUnresolvedBrand,
		Message: "no brand pack resolved; token substitution skipped",
	}}
}
