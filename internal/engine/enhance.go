package engine

import (
	"context"
	"strings"
	"time"

	"brandwise/internal/cache"
	"brandwise/internal/logging"
	"brandwise/internal/patterns"
	"brandwise/internal/token"
	"brandwise/internal/transform"
	"brandwise/internal/types"
)

// Enhance runs the deterministic enhancement path without the cache.
func (o *Orchestrator) Enhance(ctx context.Context, req *EnhanceRequest) *EnhanceResponse {
	start := time.Now()
	correlationID, rl := correlate("Enhance")

	resp := &EnhanceResponse{Success: true}
	defer finishMetadata(&resp.Metadata, start, correlationID)

	if diag, ok := validateEnhance(req); !ok {
		resp.Success = false
		resp.Diagnostics = append(resp.Diagnostics, diag)
		return resp
	}

	snap, pc, diags := o.resolveSnapshot(ctx, req)
	resp.Diagnostics = append(resp.Diagnostics, diags...)
	o.stampContext(&resp.Metadata, pc)

	if pc != nil && pc.Disabled {
		resp.Code = req.Code
		resp.ChangeLog = &types.ChangeLog{}
		return resp
	}

	code, changeLog, tdiags := o.runTransform(ctx, req, snap, pc)
	resp.Diagnostics = append(resp.Diagnostics, tdiags...)

	if deadlineExpired(ctx) {
		// The CPU work completed but the caller is gone; the result is
		// discarded and the partial is marked.
		resp.Code = req.Code
		resp.ChangeLog = &types.ChangeLog{}
		resp.Diagnostics = append(resp.Diagnostics, types.Diagnostic{
			Kind:    types.DiagTimeout,
			Message: "deadline exceeded, transform result discarded",
		})
		return resp
	}

	resp.Code = string(code)
	resp.ChangeLog = &changeLog

	o.observeApplied(req, &changeLog)
	resp.Suggestions = o.suggestFor(ctx, req, snap, &changeLog)

	rl.Info("Enhance done: %d applied, %d advisory", len(changeLog.Applied), len(changeLog.Advisory))
	return resp
}

// EnhanceCached consults the signature cache around the same path and
// reports cacheHit.
func (o *Orchestrator) EnhanceCached(ctx context.Context, req *EnhanceRequest) *EnhanceResponse {
	start := time.Now()
	correlationID, rl := correlate("EnhanceCached")

	resp := &EnhanceResponse{Success: true}
	defer finishMetadata(&resp.Metadata, start, correlationID)

	if diag, ok := validateEnhance(req); !ok {
		resp.Success = false
		resp.Diagnostics = append(resp.Diagnostics, diag)
		return resp
	}

	snap, pc, diags := o.resolveSnapshot(ctx, req)
	resp.Diagnostics = append(resp.Diagnostics, diags...)
	o.stampContext(&resp.Metadata, pc)

	if pc != nil && pc.Disabled {
		resp.Code = req.Code
		resp.ChangeLog = &types.ChangeLog{}
		return resp
	}

	if o.deps.Cache == nil {
		// No cache constructed: the cached entry point still answers.
		resp.Diagnostics = append(resp.Diagnostics, types.Diagnostic{
			Kind:    types.DiagDependencyDown,
			Message: "cache unavailable, serving uncached transform",
		})
		resp.Metadata.Degraded = true
		inner := o.Enhance(ctx, req)
		resp.Code, resp.ChangeLog, resp.Suggestions = inner.Code, inner.ChangeLog, inner.Suggestions
		resp.Diagnostics = append(resp.Diagnostics, inner.Diagnostics...)
		return resp
	}

	sig := o.signatureFor(req, snap, pc)

	outcome, err := o.deps.Cache.GetOrCompute(ctx, sig, func(ctx context.Context) ([]byte, types.ChangeLog, []types.Diagnostic, error) {
		code, changeLog, tdiags := o.runTransform(ctx, req, snap, pc)
		return code, changeLog, tdiags, nil
	})
	if err != nil {
		resp.Success = false
		resp.Diagnostics = append(resp.Diagnostics, types.Diagnostic{
			Kind: types.DiagInternal, Message: "enhancement failed", Detail: err.Error(),
		})
		return resp
	}

	o.deps.Metrics.cacheResult(outcome.CacheHit)
	resp.Code = string(outcome.Code)
	changeLog := outcome.ChangeLog
	resp.ChangeLog = &changeLog
	resp.Metadata.CacheHit = outcome.CacheHit
	resp.Metadata.Degraded = resp.Metadata.Degraded || outcome.Degraded
	resp.Diagnostics = append(resp.Diagnostics, outcome.Diagnostics...)

	if !outcome.CacheHit {
		o.observeApplied(req, &changeLog)
		o.recordHistory(ctx, sig, &changeLog, time.Since(start))
	}
	resp.Suggestions = o.suggestFor(ctx, req, snap, &changeLog)

	rl.Info("EnhanceCached done: hit=%v", outcome.CacheHit)
	return resp
}

func validateEnhance(req *EnhanceRequest) (types.Diagnostic, bool) {
	switch {
	case req == nil || strings.TrimSpace(req.Code) == "":
		return types.Diagnostic{Kind: types.DiagInvalidInput, Message: "code is required"}, false
	case !req.CodeType.Valid():
		return types.Diagnostic{Kind: types.DiagInvalidInput, Message: "codeType must be one of css, html, jsx, tsx, js"}, false
	}
	return types.Diagnostic{}, true
}

// runTransform invokes the transform engine with the request's options.
func (o *Orchestrator) runTransform(ctx context.Context, req *EnhanceRequest, snap *token.Snapshot, pc *discoveryContext) ([]byte, types.ChangeLog, []types.Diagnostic) {
	start := time.Now()
	frag := types.Fragment{
		CodeType: req.CodeType,
		Bytes:    []byte(req.Code),
		FilePath: req.FilePath,
	}

	opts := transform.Options{
		AutoApply:     req.AutoApply,
		MaxChanges:    req.MaxChanges,
		Optimize:      req.Optimize,
		Guidance:      req.Guidance,
		ComponentType: req.ComponentType,
	}
	if pc != nil {
		if opts.AutoApply == "" && pc.AutoApply != "" {
			opts.AutoApply = pc.AutoApply
		}
		if opts.MaxChanges == 0 && pc.MaxChanges > 0 {
			opts.MaxChanges = pc.MaxChanges
		}
	}

	res := o.transform.Transform(ctx, frag, snap, opts)
	o.deps.Metrics.transform(time.Since(start).Seconds())
	return res.Code, res.ChangeLog, res.Diagnostics
}

// signatureFor assembles the composite cache signature for a request.
func (o *Orchestrator) signatureFor(req *EnhanceRequest, snap *token.Snapshot, pc *discoveryContext) string {
	in := cache.SignatureInput{
		Code:           []byte(req.Code),
		CodeType:       req.CodeType,
		EngineVersion:  o.cfg.EngineVersion,
		RulesetVersion: o.cfg.Policy.Version,
		EnvFlagsHash:   envFlagsHash(req),
	}
	if snap != nil {
		in.BrandPackID = snap.PackID
		in.BrandVersion = snap.Version
		in.OverridesHash = snap.OverridesHash
	}
	return cache.Signature(in)
}

// observeApplied records one pattern observation per applied edit.
// Fire-and-forget with at most one retry inside the store.
func (o *Orchestrator) observeApplied(req *EnhanceRequest, changeLog *types.ChangeLog) {
	if o.deps.Patterns == nil || changeLog.Empty() {
		return
	}
	projectID := req.ProjectPath
	if projectID == "" {
		projectID = "default"
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, e := range changeLog.Applied {
			obs := patterns.Observation{
				ProjectID:     projectID,
				ComponentType: req.ComponentType,
				RuleID:        e.RuleID,
				TokenChosen:   e.After,
				Accepted:      true,
			}
			if err := o.deps.Patterns.Observe(ctx, obs); err != nil {
				logging.Patterns("observation dropped: %v", err)
			}
		}
	}()
}

// suggestFor intersects the change log's advisory candidates with the
// learned patterns.
func (o *Orchestrator) suggestFor(ctx context.Context, req *EnhanceRequest, snap *token.Snapshot, changeLog *types.ChangeLog) []patterns.Suggestion {
	if o.deps.Patterns == nil || snap == nil {
		return nil
	}
	var candidates []patterns.Candidate
	for _, e := range changeLog.Advisory {
		candidates = append(candidates, patterns.Candidate{
			RuleID:      e.RuleID,
			TokenChosen: e.After,
			SafeClass:   false,
		})
	}
	for _, e := range changeLog.Applied {
		candidates = append(candidates, patterns.Candidate{
			RuleID:      e.RuleID,
			TokenChosen: e.After,
			SafeClass:   true,
		})
	}
	if len(candidates) == 0 {
		return nil
	}
	projectID := req.ProjectPath
	if projectID == "" {
		projectID = "default"
	}
	got, err := o.deps.Patterns.Suggest(ctx, projectID, req.ComponentType, candidates, 5)
	if err != nil {
		logging.Patterns("suggestion lookup failed: %v", err)
		return nil
	}
	return got
}

// TrackUsage is the explicit feedback endpoint: accept or reject a
// previously suggested pattern.
func (o *Orchestrator) TrackUsage(ctx context.Context, projectID, componentType, ruleID, tokenChosen string, accepted bool) error {
	if o.deps.Patterns == nil {
		return nil
	}
	return o.deps.Patterns.Observe(ctx, patterns.Observation{
		ProjectID:     projectID,
		ComponentType: componentType,
		RuleID:        ruleID,
		TokenChosen:   tokenChosen,
		Accepted:      accepted,
	})
}

// recordHistory appends to the transforms log, best-effort.
func (o *Orchestrator) recordHistory(ctx context.Context, sig string, changeLog *types.ChangeLog, dur time.Duration) {
	if o.deps.History == nil {
		return
	}
	guardrailed := 0
	for _, d := range changeLog.Dropped {
		if d.Reason == types.DropContrastGuard || d.Reason == types.DropChangeCap {
			guardrailed++
		}
	}
	if err := o.deps.History.RecordTransform(ctx, sig, "applied", dur,
		len(changeLog.Applied), len(changeLog.Advisory), guardrailed); err != nil {
		logging.Cache("history write dropped: %v", err)
	}
}

func (o *Orchestrator) stampContext(md *types.Metadata, pc *discoveryContext) {
	if pc == nil {
		return
	}
	md.BrandPackID = pc.BrandPackID
	md.BrandVersion = pc.BrandVersion
	md.BrandPackSource = string(pc.Source)
	md.Degraded = md.Degraded || pc.Degraded
}
