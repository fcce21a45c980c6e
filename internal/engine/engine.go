package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"brandwise/internal/cache"
	"brandwise/internal/capture"
	"brandwise/internal/config"
	"brandwise/internal/discovery"
	"brandwise/internal/logging"
	"brandwise/internal/patterns"
	"brandwise/internal/token"
	"brandwise/internal/transform"
	"brandwise/internal/types"
	"brandwise/internal/vision"
)

// discoveryContext aliases the resolver's result for the entry points.
type discoveryContext = discovery.ProjectContext

// PackSource is the read-only brand-pack collaborator.
type PackSource interface {
	GetBrandPack(ctx context.Context, id, version string) (*token.BrandPack, error)
}

// Deps are the collaborators the orchestrator composes. Any of them may be
// nil: a missing component is recorded as permanently unavailable and the
// orchestrator degrades instead of failing.
type Deps struct {
	Resolver *discovery.Resolver
	Packs    PackSource
	Cache    *cache.Cache
	History  *cache.SQLiteStore
	Pool     *capture.Pool
	Janitor  *capture.Janitor
	Critic   vision.Critic
	Patterns *patterns.Store
	Metrics  *Metrics
}

// Orchestrator owns the pipeline composition and the availability registry.
type Orchestrator struct {
	cfg       *config.Config
	transform *transform.Engine
	deps      Deps
	fallback  vision.DeterministicCritic

	// unavailable records components whose construction failed; consulted
	// for degraded-mode decisions instead of re-trying dead constructors.
	unavailable map[string]error

	// visionSlots bounds concurrent critiques; visionQueue bounds waiters.
	visionSlots chan struct{}
	visionQueue chan struct{}

	// snapshots memoizes built resolver tables per pack id@version.
	snapMu    sync.Mutex
	snapshots map[string]*token.Snapshot
}

// New composes the orchestrator. Unavailable components are recorded, not
// fatal: the pipeline keeps its happy path and degrades per request.
func New(cfg *config.Config, deps Deps, unavailable map[string]error) *Orchestrator {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if unavailable == nil {
		unavailable = map[string]error{}
	}
	workers := cfg.Vision.Workers
	if workers <= 0 {
		workers = 8
	}
	queue := cfg.Vision.Queue
	if queue <= 0 {
		queue = 32
	}

	o := &Orchestrator{
		cfg:         cfg,
		transform:   transform.New(cfg.Policy),
		deps:        deps,
		unavailable: unavailable,
		visionSlots: make(chan struct{}, workers),
		visionQueue: make(chan struct{}, workers+queue),
		snapshots:   make(map[string]*token.Snapshot),
	}

	for name, err := range unavailable {
		logging.Engine("component %s unavailable: %v", name, err)
	}
	return o
}

// correlate starts a request-scoped logger and returns the correlation id.
func correlate(op string) (string, *logging.RequestLogger) {
	id := uuid.NewString()
	rl := logging.WithRequestID(logging.CategoryEngine, id)
	rl.Info("%s start", op)
	return id, rl
}

// resolveSnapshot produces the token snapshot for a request: inline tokens
// win, then the discovery chain plus the pack store. A nil snapshot means
// structural rules only.
func (o *Orchestrator) resolveSnapshot(ctx context.Context, req *EnhanceRequest) (*token.Snapshot, *discovery.ProjectContext, []types.Diagnostic) {
	if len(req.Tokens) > 0 {
		pack := &token.BrandPack{ID: "inline", Version: "0.0.0", Tokens: req.Tokens}
		return token.BuildSnapshot(pack, nil), nil, nil
	}

	var (
		pc    *discovery.ProjectContext
		diags []types.Diagnostic
	)

	id, version := req.BrandPackID, req.BrandVersion
	if id == "" && o.deps.Resolver != nil {
		root := req.ProjectPath
		if root == "" {
			root = "."
		}
		resolved, err := o.deps.Resolver.Resolve(ctx, root)
		if err != nil {
			// Strict-mode refusal is caller-visible.
			diags = append(diags, types.Diagnostic{Kind: types.DiagUnresolvedBrand, Message: err.Error()})
			return nil, nil, diags
		}
		pc = resolved
		if pc.Disabled {
			return nil, pc, nil
		}
		diags = append(diags, discovery.Diagnose(pc)...)
		id, version = pc.BrandPackID, pc.BrandVersion
	}

	if id == "" {
		if len(diags) == 0 {
			diags = append(diags, types.Diagnostic{
				Kind:    types.DiagUnresolvedBrand,
				Message: "no brand pack resolved; token substitution skipped",
			})
		}
		return nil, pc, diags
	}

	snap, err := o.snapshotFor(ctx, id, version, pc)
	if err != nil {
		diags = append(diags, types.Diagnostic{
			Kind:    types.DiagDependencyDown,
			Message: fmt.Sprintf("brand pack store unavailable: %v", err),
		})
		return nil, pc, diags
	}
	return snap, pc, diags
}

func (o *Orchestrator) snapshotFor(ctx context.Context, id, version string, pc *discovery.ProjectContext) (*token.Snapshot, error) {
	key := id + "@" + version
	if pc != nil {
		key += "+" + pc.OverridesHash()
	}

	o.snapMu.Lock()
	if snap, ok := o.snapshots[key]; ok {
		o.snapMu.Unlock()
		return snap, nil
	}
	o.snapMu.Unlock()

	if o.deps.Packs == nil {
		return nil, fmt.Errorf("no brand pack store configured")
	}
	pack, err := o.deps.Packs.GetBrandPack(ctx, id, version)
	if err != nil {
		return nil, err
	}

	var preferred []string
	if pc != nil {
		for name, pref := range pc.Overrides {
			if pref == "prefer" {
				preferred = append(preferred, name)
			}
		}
		pack.OverridesHash = pc.OverridesHash()
	}
	snap := token.BuildSnapshot(pack, preferred)

	// Publish atomically: a concurrent upgrade simply wins the map slot.
	o.snapMu.Lock()
	o.snapshots[key] = snap
	o.snapMu.Unlock()
	return snap, nil
}

// envFlagsHash folds the request-level knobs that change transform output
// into the signature.
func envFlagsHash(req *EnhanceRequest) string {
	h := sha256.New()
	h.Write([]byte(req.AutoApply))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(req.MaxChanges)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(req.Optimize)))
	if req.Guidance != nil {
		h.Write([]byte{0})
		h.Write([]byte(req.Guidance.FocusArea))
		h.Write([]byte(req.Guidance.TargetSelector))
		for _, v := range sortedAdjustments(req.Guidance.Adjustment) {
			h.Write([]byte(v))
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func sortedAdjustments(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	out := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, k, m[k])
	}
	return out
}

// deadlineExpired reports whether the caller's deadline has passed; used to
// discard completed CPU work after expiry.
func deadlineExpired(ctx context.Context) bool {
	return ctx.Err() != nil
}

// finishMetadata stamps the envelope bookkeeping.
func finishMetadata(md *types.Metadata, start time.Time, correlationID string) {
	md.DurationMs = time.Since(start).Milliseconds()
	md.CorrelationID = correlationID
}
