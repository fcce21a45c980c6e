package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"brandwise/internal/capture"
	"brandwise/internal/logging"
	"brandwise/internal/router"
	"brandwise/internal/types"
	"brandwise/internal/vision"
)

// analyzeFragment captures and critiques one fragment, degrading to the
// deterministic critic when capture or vision is unavailable.
func (o *Orchestrator) analyzeFragment(ctx context.Context, frag types.Fragment, vp types.Viewport) (*types.VisualAnalysis, []types.Diagnostic) {
	var diags []types.Diagnostic

	if o.deps.Pool != nil && o.deps.Critic != nil {
		shot, err := o.deps.Pool.Capture(ctx, frag, vp)
		if err != nil {
			diags = append(diags, mapCaptureError(err))
		} else if png, rerr := o.deps.Pool.Read(shot.ID); rerr == nil {
			analysis, cerr := o.critique(ctx, png, vision.Context{CodeType: frag.CodeType, Viewport: vp})
			if cerr == nil {
				analysis.ScreenshotRef = shot.ID
				o.deps.Metrics.vision(false)
				return analysis, diags
			}
			if errors.Is(cerr, errBackpressure) {
				diags = append(diags, types.Diagnostic{
					Kind:    types.DiagBackpressure,
					Message: "vision queue full, using deterministic analysis",
				})
			} else {
				diags = append(diags, types.Diagnostic{
					Kind:    types.DiagVisionUnavailable,
					Message: "vision critique failed, using deterministic analysis",
					Detail:  cerr.Error(),
				})
			}
		}
	} else {
		diags = append(diags, types.Diagnostic{
			Kind:    types.DiagDependencyDown,
			Message: "renderer or vision critic unavailable, using deterministic analysis",
		})
	}

	o.deps.Metrics.vision(true)
	analysis, err := o.fallback.CritiqueFragment(ctx, frag)
	if err != nil {
		diags = append(diags, types.Diagnostic{
			Kind:    types.DiagParseError,
			Message: "fragment could not be analyzed",
			Detail:  err.Error(),
		})
		return nil, diags
	}
	return analysis, diags
}

// critique runs the vision call under the bounded vision pool.
func (o *Orchestrator) critique(ctx context.Context, png []byte, vctx vision.Context) (*types.VisualAnalysis, error) {
	select {
	case o.visionQueue <- struct{}{}:
	default:
		return nil, errBackpressure
	}
	defer func() { <-o.visionQueue }()

	select {
	case o.visionSlots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-o.visionSlots }()

	return o.deps.Critic.Critique(ctx, png, vctx)
}

var errBackpressure = fmt.Errorf("vision queue full")

// AnalyzeAndFix runs the visual loop: capture, critique, plan, and either
// return the plan (autoApply off) or apply it sequentially and validate.
func (o *Orchestrator) AnalyzeAndFix(ctx context.Context, req *AnalyzeRequest) *AnalyzeResponse {
	start := time.Now()
	correlationID, rl := correlate("AnalyzeAndFix")

	resp := &AnalyzeResponse{Success: true, Code: req.Code}
	defer finishMetadata(&resp.Metadata, start, correlationID)
	defer o.sweepAfterAnalysis()

	if req.Code == "" || !req.CodeType.Valid() {
		resp.Success = false
		resp.Diagnostics = append(resp.Diagnostics, types.Diagnostic{
			Kind: types.DiagInvalidInput, Message: "code and a valid codeType are required",
		})
		return resp
	}

	frag := types.Fragment{CodeType: req.CodeType, Bytes: []byte(req.Code)}
	analysis, diags := o.analyzeFragment(ctx, frag, req.Viewport)
	resp.Diagnostics = append(resp.Diagnostics, diags...)
	if analysis == nil {
		return resp
	}
	resp.VisualAnalysis = analysis

	plan := router.BuildPlan(analysis, router.Config{
		MaxFixes:        o.cfg.Router.MaxFixes,
		AcceptThreshold: o.cfg.Router.AcceptThreshold,
	})
	resp.FixPlan = plan

	if req.AutoApply == "off" || req.AutoApply == "" {
		rl.Info("plan returned without execution (%d fixes)", len(plan.Fixes))
		return resp
	}

	improved, logs, err := router.Execute(ctx, frag, plan, o.guidedTransformer(req))
	if err != nil {
		resp.Diagnostics = append(resp.Diagnostics, types.Diagnostic{
			Kind: types.DiagTimeout, Message: "fix execution interrupted", Detail: err.Error(),
		})
		return resp
	}
	resp.Code = string(improved.Bytes)
	logging.EngineDebug("applied %d fix change logs", len(logs))

	if req.ValidateAfterFix {
		post, pdiags := o.analyzeFragment(ctx, improved, req.Viewport)
		resp.Diagnostics = append(resp.Diagnostics, pdiags...)
		if post != nil {
			resp.PostAnalysis = post
			outcome := router.Validate(analysis, post, router.Config{
				AcceptThreshold: o.cfg.Router.AcceptThreshold,
			})
			resp.ScoreDelta = outcome.ScoreDelta
			resp.Recommendation = outcome.Recommendation
		}
	}

	rl.Info("AnalyzeAndFix done: delta %+d", resp.ScoreDelta)
	return resp
}

// guidedTransformer adapts the enhancement path into the router's
// transformer contract.
func (o *Orchestrator) guidedTransformer(req *AnalyzeRequest) router.Transformer {
	return func(ctx context.Context, frag types.Fragment, g *types.VisualGuidance) (types.Fragment, *types.ChangeLog, error) {
		inner := &EnhanceRequest{
			Code:         string(frag.Bytes),
			CodeType:     frag.CodeType,
			BrandPackID:  req.BrandPackID,
			BrandVersion: req.BrandVersion,
			ProjectPath:  req.ProjectPath,
			AutoApply:    req.AutoApply,
			Guidance:     g,
		}
		snap, pc, _ := o.resolveSnapshot(ctx, inner)
		code, changeLog, _ := o.runTransform(ctx, inner, snap, pc)
		return types.Fragment{CodeType: frag.CodeType, Bytes: code}, &changeLog, nil
	}
}

// ValidateImprovements captures and critiques both fragments and diffs the
// results.
func (o *Orchestrator) ValidateImprovements(ctx context.Context, req *ValidateRequest) *ValidateResponse {
	start := time.Now()
	correlationID, rl := correlate("ValidateImprovements")

	resp := &ValidateResponse{Success: true}
	defer finishMetadata(&resp.Metadata, start, correlationID)
	defer o.sweepAfterAnalysis()

	if req.OriginalCode == "" || req.ImprovedCode == "" || !req.CodeType.Valid() {
		resp.Success = false
		resp.Diagnostics = append(resp.Diagnostics, types.Diagnostic{
			Kind: types.DiagInvalidInput, Message: "originalCode, improvedCode and a valid codeType are required",
		})
		return resp
	}

	before, d1 := o.analyzeFragment(ctx, types.Fragment{CodeType: req.CodeType, Bytes: []byte(req.OriginalCode)}, req.Viewport)
	after, d2 := o.analyzeFragment(ctx, types.Fragment{CodeType: req.CodeType, Bytes: []byte(req.ImprovedCode)}, req.Viewport)
	resp.Diagnostics = append(resp.Diagnostics, d1...)
	resp.Diagnostics = append(resp.Diagnostics, d2...)
	if before == nil || after == nil {
		return resp
	}

	resp.Improvements = router.Validate(before, after, router.Config{
		AcceptThreshold: o.cfg.Router.AcceptThreshold,
	})
	rl.Info("ValidateImprovements done: delta %+d", resp.Improvements.ScoreDelta)
	return resp
}

// AnalyzeResponsive fans the fragment out across viewports and joins the
// critiques into one report with cross-viewport consistency findings.
func (o *Orchestrator) AnalyzeResponsive(ctx context.Context, req *ResponsiveRequest) *ResponsiveResponse {
	start := time.Now()
	correlationID, rl := correlate("AnalyzeResponsive")

	resp := &ResponsiveResponse{Success: true}
	defer finishMetadata(&resp.Metadata, start, correlationID)
	defer o.sweepAfterAnalysis()

	if req.Code == "" || !req.CodeType.Valid() || len(req.Viewports) == 0 {
		resp.Success = false
		resp.Diagnostics = append(resp.Diagnostics, types.Diagnostic{
			Kind: types.DiagInvalidInput, Message: "code, codeType and at least one viewport are required",
		})
		return resp
	}

	frag := types.Fragment{CodeType: req.CodeType, Bytes: []byte(req.Code)}
	results := make([]ViewportAnalysis, len(req.Viewports))

	g, gctx := errgroup.WithContext(ctx)
	for i, vp := range req.Viewports {
		i, vp := i, vp
		g.Go(func() error {
			analysis, diags := o.analyzeFragment(gctx, frag, vp)
			results[i] = ViewportAnalysis{Viewport: vp, Analysis: analysis}
			if analysis == nil && len(diags) > 0 {
				results[i].Error = diags[len(diags)-1].Message
			}
			return nil
		})
	}
	_ = g.Wait()
	resp.ViewportAnalyses = results

	resp.ResponsiveScore, resp.ResponsiveIssues, resp.Recommendations = joinResponsive(results)
	rl.Info("AnalyzeResponsive done: score %d over %d viewports", resp.ResponsiveScore, len(results))
	return resp
}

// joinResponsive computes the joint score and the cross-viewport
// consistency findings: violations that appear at some widths only, and
// wide score spreads.
func joinResponsive(results []ViewportAnalysis) (int, []string, []string) {
	type seenAt struct {
		widths []int
	}
	occurrences := map[string]*seenAt{}
	minScore, maxScore := 101, -1
	analyzed := 0

	for _, r := range results {
		if r.Analysis == nil {
			continue
		}
		analyzed++
		if r.Analysis.OverallScore < minScore {
			minScore = r.Analysis.OverallScore
		}
		if r.Analysis.OverallScore > maxScore {
			maxScore = r.Analysis.OverallScore
		}
		for _, v := range r.Analysis.Violations {
			key := v.RecommendedEndpoint + "|" + v.Location
			if occurrences[key] == nil {
				occurrences[key] = &seenAt{}
			}
			occurrences[key].widths = append(occurrences[key].widths, r.Viewport.Width)
		}
	}
	if analyzed == 0 {
		return 0, nil, nil
	}

	var issues, recs []string
	for key, occ := range occurrences {
		if len(occ.widths) < analyzed {
			sort.Ints(occ.widths)
			issues = append(issues, fmt.Sprintf("%s appears only at widths %v", key, occ.widths))
		}
	}
	sort.Strings(issues)

	if spread := maxScore - minScore; spread > 15 {
		recs = append(recs, fmt.Sprintf("score varies %d points across viewports; review breakpoint styles", spread))
	}
	if len(issues) > 0 {
		recs = append(recs, "resolve viewport-specific violations before shipping responsive layouts")
	}

	// The joint score is the worst viewport: a layout is as responsive as
	// its weakest width.
	return minScore, issues, recs
}

// sweepAfterAnalysis runs the screenshot janitor opportunistically.
func (o *Orchestrator) sweepAfterAnalysis() {
	if o.deps.Janitor != nil {
		o.deps.Janitor.Sweep()
	}
}

func mapCaptureError(err error) types.Diagnostic {
	switch {
	case errors.Is(err, capture.ErrBackpressure):
		return types.Diagnostic{Kind: types.DiagBackpressure, Message: "screenshot queue full, retry later"}
	case errors.Is(err, context.DeadlineExceeded):
		return types.Diagnostic{Kind: types.DiagTimeout, Message: "screenshot capture timed out"}
	default:
		return types.Diagnostic{Kind: types.DiagDependencyDown, Message: "renderer unavailable", Detail: err.Error()}
	}
}
