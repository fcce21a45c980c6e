package transform

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"brandwise/internal/logging"
	"brandwise/internal/parser"
	"brandwise/internal/token"
	"brandwise/internal/types"
)

// AutoApply modes accepted by the engine.
const (
	AutoSafe = "safe" // safe rule classes auto-apply (default)
	AutoOff  = "off"  // everything is advisory
	AutoAll  = "all"  // any class auto-applies above its floor
)

// Options tune a single transform invocation.
type Options struct {
	AutoApply     string
	MaxChanges    int // 0 uses the policy default
	Optimize      int // 0 off, 1 whitespace+comments, 2 also shorthand/dedup
	Guidance      *types.VisualGuidance
	ComponentType string
}

// Result is the outcome of a transform: rewritten bytes plus the change log.
type Result struct {
	Code        []byte
	ChangeLog   types.ChangeLog
	Diagnostics []types.Diagnostic
}

// Engine applies the rule stages over a fragment. Deterministic: identical
// inputs produce byte-identical output, so a transform is never retried.
type Engine struct {
	policy RulePolicy
}

// New builds an engine with the given policy.
func New(policy RulePolicy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the injected rule policy.
func (e *Engine) Policy() RulePolicy { return e.policy }

// proposal is one scored candidate edit before policy filtering.
type proposal struct {
	edit      types.Edit
	class     RuleClass
	block     int // -1 for className edits
	prop      string
	ambiguous bool
	// tokenColor is the resolved raw color for contrast checking, when the
	// edit changes a color to a different value.
	tokenColor string
	consistent bool
	preferred  bool
	penalty    float64 // layout-safety penalty from !important / keyframes
}

func (p *proposal) property() string { return p.prop }

// Transform runs the fixed stage order over the fragment and returns the
// rewritten code with its change log. A fragment that fails to parse is
// echoed untouched with a parse-error diagnostic.
func (e *Engine) Transform(ctx context.Context, frag types.Fragment, snap *token.Snapshot, opts Options) *Result {
	timer := logging.StartTimer(logging.CategoryTransform, "Transform")
	defer timer.Stop()

	res := &Result{Code: frag.Bytes}

	doc := parser.Parse(ctx, frag)
	if !doc.OK() {
		res.Diagnostics = append(res.Diagnostics, doc.Diagnostics...)
		return res
	}

	if e.policy.VendorExcluded(frag.FilePath) {
		logging.Transform("vendor-excluded fragment %s: parsed, not transformed", frag.FilePath)
		return res
	}

	if opts.AutoApply == "" {
		opts.AutoApply = AutoSafe
	}
	cap := opts.MaxChanges
	if cap <= 0 {
		cap = e.policy.MaxAutoApply
	}

	cur := frag.Bytes
	applied := 0

	for _, stage := range StageOrder {
		if stage == StageOptimize {
			if opts.Optimize > 0 {
				cur = e.optimize(ctx, cur, frag.CodeType, opts.Optimize, res)
			}
			continue
		}
		if !stageEnabled(stage, opts.Guidance) {
			continue
		}

		stageFrag := types.Fragment{CodeType: frag.CodeType, Bytes: cur, FilePath: frag.FilePath}
		doc := parser.Parse(ctx, stageFrag)
		if !doc.OK() {
			// A previous stage produced unparseable output; this cannot
			// happen after the re-parse guard, but stay conservative.
			break
		}

		proposals := e.propose(ctx, stage, doc, snap, opts)
		if len(proposals) == 0 {
			continue
		}

		auto, advisory, dropped := e.filter(doc, proposals, opts, cap-applied)

		if len(auto) > 0 {
			candidate := parser.Apply(cur, editsOf(auto))
			check := parser.Parse(ctx, types.Fragment{CodeType: frag.CodeType, Bytes: candidate})
			if !check.OK() {
				// Conservative: reject the whole stage batch.
				logging.Transform("stage %s output failed re-parse, rejecting %d edits", stage, len(auto))
				for _, p := range auto {
					dropped = append(dropped, types.DroppedEdit{Edit: p.edit, Reason: types.DropReparseFailure})
				}
				auto = nil
			} else {
				cur = candidate
				applied += len(auto)
				res.ChangeLog.Applied = append(res.ChangeLog.Applied, editsOf(auto)...)
			}
		}

		res.ChangeLog.Advisory = append(res.ChangeLog.Advisory, editsOf(advisory)...)
		res.ChangeLog.Dropped = append(res.ChangeLog.Dropped, dropped...)
		for _, d := range dropped {
			if d.Reason == types.DropContrastGuard {
				res.Diagnostics = append(res.Diagnostics, types.Diagnostic{
					Kind:    types.DiagGuardrailViolation,
					Message: fmt.Sprintf("color edit at %s would regress contrast, demoted to advisory", d.Edit.Anchor),
				})
			}
		}
	}

	res.Code = cur
	logging.Transform("transform done: %d applied, %d advisory, %d dropped",
		len(res.ChangeLog.Applied), len(res.ChangeLog.Advisory), len(res.ChangeLog.Dropped))
	return res
}

// filter scores proposals, enforces the auto-apply policy, the contrast
// guardrail and the change cap, and splits them into auto / advisory /
// dropped buckets. Auto edits come back in source order.
func (e *Engine) filter(doc *parser.Document, proposals []proposal, opts Options, remaining int) (auto, advisory []proposal, dropped []types.DroppedEdit) {
	for i := range proposals {
		p := &proposals[i]
		p.edit.Confidence = e.score(p)
		// Contrast pre-check: a color edit whose block contrast does not
		// drop earns the contrast boost.
		if p.edit.Kind == types.EditColorToken && p.tokenColor != "" {
			if regresses, after := e.contrastRegresses(doc, p); !regresses && after > 0 {
				p.edit.Confidence = saturate(p.edit.Confidence + e.policy.ContrastBoost)
			}
		}
	}

	sort.SliceStable(proposals, func(i, j int) bool {
		return proposals[i].edit.Span.Start < proposals[j].edit.Span.Start
	})

	for _, p := range proposals {
		if p.ambiguous {
			if p.edit.Confidence >= e.policy.AdvisoryFloor {
				advisory = append(advisory, p)
			} else {
				dropped = append(dropped, types.DroppedEdit{Edit: p.edit, Reason: types.DropAmbiguous})
			}
			continue
		}

		floor := e.policy.SafeFloor
		if p.class == ClassAdvisory {
			floor = e.policy.AdvisoryFloor
		}
		if p.edit.Confidence < floor {
			dropped = append(dropped, types.DroppedEdit{Edit: p.edit, Reason: types.DropLowConfidence})
			continue
		}

		autoFloor := e.policy.SafeFloor
		if opts.AutoApply == AutoAll && p.class == ClassAdvisory {
			autoFloor = e.policy.AdvisoryFloor
		}
		autoEligible := opts.AutoApply != AutoOff &&
			(p.class == ClassSafe || opts.AutoApply == AutoAll) &&
			p.edit.Confidence >= autoFloor

		if !autoEligible {
			advisory = append(advisory, p)
			continue
		}

		if p.edit.Kind == types.EditColorToken && p.tokenColor != "" {
			if regresses, _ := e.contrastRegresses(doc, p); regresses {
				dropped = append(dropped, types.DroppedEdit{Edit: p.edit, Reason: types.DropContrastGuard})
				continue
			}
		}

		if len(auto) >= remaining {
			dropped = append(dropped, types.DroppedEdit{Edit: p.edit, Reason: types.DropChangeCap})
			continue
		}
		auto = append(auto, p)
	}

	// The demotion list reads best-first.
	sort.SliceStable(dropped, func(i, j int) bool {
		return dropped[i].Edit.Confidence > dropped[j].Edit.Confidence
	})
	return auto, advisory, dropped
}

// score applies the additive confidence boosters, saturating at 1.0.
func (e *Engine) score(p *proposal) float64 {
	c := p.edit.Confidence
	if p.consistent {
		c += e.policy.ConsistencyBoost
	}
	if p.preferred {
		c += e.policy.OverrideBoost
	}
	c -= p.penalty
	if p.ambiguous {
		c -= e.policy.AmbiguityPenalty
	}
	return saturate(c)
}

// contrastRegresses checks every fg/bg pair in the edit's rule block.
// An auto-applied color edit must never lower the measured ratio.
func (e *Engine) contrastRegresses(doc *parser.Document, p *proposal) (bool, float64) {
	if p.block < 0 || p.block >= len(doc.Blocks) {
		return false, 0
	}

	var fg, bg string
	for _, d := range doc.BlockDecls(p.block) {
		switch d.Property {
		case "color":
			fg = d.Value
		case "background-color", "background":
			bg = d.Value
		}
	}
	if fg == "" || bg == "" {
		return false, 0
	}

	before := token.Contrast(fg, bg)
	if before == 0 {
		return false, 0
	}

	// Substitute the edited side with the token's raw color.
	afterFg, afterBg := fg, bg
	switch strings.ToLower(p.property()) {
	case "color":
		afterFg = p.tokenColor
	case "background-color", "background":
		afterBg = p.tokenColor
	default:
		return false, 0
	}
	after := token.Contrast(afterFg, afterBg)
	if after == 0 {
		return false, 0
	}
	return after < before, after
}

func editsOf(ps []proposal) []types.Edit {
	out := make([]types.Edit, len(ps))
	for i, p := range ps {
		out[i] = p.edit
	}
	return out
}

// stageEnabled narrows the stage set when visual guidance is present.
func stageEnabled(stage Stage, g *types.VisualGuidance) bool {
	if g == nil || g.FocusArea == "" {
		return true
	}
	switch g.FocusArea {
	case "typography":
		return stage == StageTypography
	case "color", "colors":
		return stage == StageColors || stage == StageGradients
	case "spacing":
		return stage == StageSpacing
	case "radius":
		return stage == StageRadius
	case "elevation", "shadows":
		return stage == StageElevation
	case "animation", "animations":
		return stage == StageAnimations
	case "accessibility":
		return stage == StageColors || stage == StageTypography || stage == StageSpacing
	}
	return true
}

// selectorMatches applies the guidance target selector filter.
func selectorMatches(sel string, g *types.VisualGuidance) bool {
	if g == nil || g.TargetSelector == "" {
		return true
	}
	return strings.Contains(sel, g.TargetSelector)
}
