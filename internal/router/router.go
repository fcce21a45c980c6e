// Package router plans and executes fixes derived from a visual critique.
// Each violation maps to one guided transform invocation; fixes apply
// strictly sequentially, each one's output feeding the next, and the run
// ends with a before/after validation verdict.
package router

import (
	"context"
	"fmt"
	"sort"

	"brandwise/internal/logging"
	"brandwise/internal/types"
)

// Config tunes planning and validation.
type Config struct {
	MaxFixes        int `yaml:"max_fixes" json:"max_fixes"`
	AcceptThreshold int `yaml:"accept_threshold" json:"accept_threshold"`
}

// DefaultConfig returns the shipped router settings.
func DefaultConfig() Config {
	return Config{MaxFixes: 10, AcceptThreshold: 10}
}

// Fix is one planned transform invocation.
type Fix struct {
	Endpoint  string               `json:"endpoint"`
	Violation types.Violation      `json:"violation"`
	Guidance  types.VisualGuidance `json:"guidance"`
}

// Plan is the ordered fix list, with a count of fixes dropped by the cap.
type Plan struct {
	Fixes     []Fix `json:"fixes"`
	Truncated int   `json:"truncated"`
}

// Endpoints returns the planned endpoints in execution order, deduplicated.
func (p *Plan) Endpoints() []string {
	var out []string
	seen := map[string]bool{}
	for _, f := range p.Fixes {
		if !seen[f.Endpoint] {
			seen[f.Endpoint] = true
			out = append(out, f.Endpoint)
		}
	}
	return out
}

// endpointFocus narrows the transform rule set per endpoint.
var endpointFocus = map[string]string{
	"enhance-typography":    "typography",
	"analyze-accessibility": "accessibility",
	"spacing-optimization":  "spacing",
	"color-harmony":         "colors",
	"elevation-tuning":      "elevation",
}

// endpointRank breaks ordering ties between violations of equal severity
// and confidence: typography unlocks the most downstream wins.
var endpointRank = map[string]int{
	"enhance-typography":    0,
	"analyze-accessibility": 1,
	"spacing-optimization":  2,
	"color-harmony":         3,
	"elevation-tuning":      4,
}

// BuildPlan orders the critique's violations by (severity, confidence)
// descending and truncates to the per-run cap.
func BuildPlan(analysis *types.VisualAnalysis, cfg Config) *Plan {
	if cfg.MaxFixes <= 0 {
		cfg.MaxFixes = 10
	}

	violations := make([]types.Violation, len(analysis.Violations))
	copy(violations, analysis.Violations)
	sort.SliceStable(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if endpointRank[a.RecommendedEndpoint] != endpointRank[b.RecommendedEndpoint] {
			return endpointRank[a.RecommendedEndpoint] < endpointRank[b.RecommendedEndpoint]
		}
		return a.Location < b.Location
	})

	plan := &Plan{}
	for _, v := range violations {
		if v.RecommendedEndpoint == "" {
			continue
		}
		if len(plan.Fixes) >= cfg.MaxFixes {
			plan.Truncated++
			continue
		}
		plan.Fixes = append(plan.Fixes, Fix{
			Endpoint:  v.RecommendedEndpoint,
			Violation: v,
			Guidance: types.VisualGuidance{
				FocusArea:      endpointFocus[v.RecommendedEndpoint],
				TargetSelector: v.Parameters["selector"],
				Adjustment:     v.Parameters,
			},
		})
	}

	logging.Router("fix plan: %d fixes (%d truncated) over endpoints %v",
		len(plan.Fixes), plan.Truncated, plan.Endpoints())
	return plan
}

// Transformer applies one guided enhancement pass. The orchestrator passes
// the engine entry point here; the router never imports it.
type Transformer func(ctx context.Context, frag types.Fragment, g *types.VisualGuidance) (types.Fragment, *types.ChangeLog, error)

// Execute runs the plan sequentially; each fix sees the previous fix's
// output. A fix that errors is skipped, not fatal.
func Execute(ctx context.Context, frag types.Fragment, plan *Plan, transform Transformer) (types.Fragment, []*types.ChangeLog, error) {
	cur := frag
	var logs []*types.ChangeLog

	for i, fix := range plan.Fixes {
		if err := ctx.Err(); err != nil {
			return cur, logs, err
		}
		next, changeLog, err := transform(ctx, cur, &fix.Guidance)
		if err != nil {
			logging.Router("fix %d (%s) failed, skipping: %v", i, fix.Endpoint, err)
			continue
		}
		cur = next
		logs = append(logs, changeLog)
		logging.RouterDebug("fix %d (%s) applied %d edits", i, fix.Endpoint, len(changeLog.Applied))
	}
	return cur, logs, nil
}

// Recommendation verdicts.
const (
	RecommendAccept = "accept"
	RecommendReview = "review"
	RecommendReject = "reject"
)

// Outcome is the before/after validation report.
type Outcome struct {
	ScoreDelta      int                   `json:"score_delta"`
	DimensionDeltas map[string]int        `json:"dimension_deltas"`
	Resolved        []types.Violation     `json:"resolved"`
	Remaining       []types.Violation     `json:"remaining"`
	Recommendation  string                `json:"recommendation"`
}

// Validate diffs two critiques and issues the accept/review/reject verdict.
func Validate(original, improved *types.VisualAnalysis, cfg Config) *Outcome {
	if cfg.AcceptThreshold <= 0 {
		cfg.AcceptThreshold = 10
	}

	out := &Outcome{
		ScoreDelta: improved.OverallScore - original.OverallScore,
		DimensionDeltas: map[string]int{
			"hierarchy":     improved.DimensionScores.Hierarchy - original.DimensionScores.Hierarchy,
			"typography":    improved.DimensionScores.Typography - original.DimensionScores.Typography,
			"spacing":       improved.DimensionScores.Spacing - original.DimensionScores.Spacing,
			"color":         improved.DimensionScores.Color - original.DimensionScores.Color,
			"accessibility": improved.DimensionScores.Accessibility - original.DimensionScores.Accessibility,
			"brand":         improved.DimensionScores.Brand - original.DimensionScores.Brand,
		},
		Remaining: improved.Violations,
	}

	still := map[string]bool{}
	for _, v := range improved.Violations {
		still[violationKey(v)] = true
	}
	for _, v := range original.Violations {
		if !still[violationKey(v)] {
			out.Resolved = append(out.Resolved, v)
		}
	}

	switch {
	case out.ScoreDelta >= cfg.AcceptThreshold:
		out.Recommendation = RecommendAccept
	case out.ScoreDelta > 0:
		out.Recommendation = RecommendReview
	default:
		out.Recommendation = RecommendReject
	}

	logging.Router("validation: delta %+d, %d resolved, %d remaining -> %s",
		out.ScoreDelta, len(out.Resolved), len(out.Remaining), out.Recommendation)
	return out
}

func violationKey(v types.Violation) string {
	return fmt.Sprintf("%s|%s", v.RecommendedEndpoint, v.Location)
}
