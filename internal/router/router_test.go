package router

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"brandwise/internal/types"
)

func analysisWith(violations ...types.Violation) *types.VisualAnalysis {
	return &types.VisualAnalysis{OverallScore: 30, Violations: violations}
}

func TestBuildPlanOrdering(t *testing.T) {
	a := analysisWith(
		types.Violation{Severity: types.SeverityMedium, Confidence: 90, RecommendedEndpoint: "spacing-optimization", Location: ".card"},
		types.Violation{Severity: types.SeverityCritical, Confidence: 80, RecommendedEndpoint: "analyze-accessibility", Location: ".btn"},
		types.Violation{Severity: types.SeverityCritical, Confidence: 95, RecommendedEndpoint: "enhance-typography", Location: "body"},
		types.Violation{Severity: types.SeverityHigh, Confidence: 85, RecommendedEndpoint: "enhance-typography", Location: "p"},
	)

	plan := BuildPlan(a, DefaultConfig())
	if len(plan.Fixes) != 4 {
		t.Fatalf("plan has %d fixes", len(plan.Fixes))
	}

	// (severityRank, confidence) descending.
	wantOrder := []string{"body", ".btn", "p", ".card"}
	for i, w := range wantOrder {
		if plan.Fixes[i].Violation.Location != w {
			t.Errorf("fix %d at %q, want %q", i, plan.Fixes[i].Violation.Location, w)
		}
	}

	if got := plan.Endpoints(); got[0] != "enhance-typography" || got[1] != "analyze-accessibility" {
		t.Errorf("endpoint order wrong: %v", got)
	}
}

func TestBuildPlanTruncates(t *testing.T) {
	var violations []types.Violation
	for i := 0; i < 15; i++ {
		violations = append(violations, types.Violation{
			Severity: types.SeverityHigh, Confidence: 50 + i,
			RecommendedEndpoint: "enhance-typography", Location: "el",
		})
	}

	plan := BuildPlan(analysisWith(violations...), Config{MaxFixes: 10})
	if len(plan.Fixes) != 10 || plan.Truncated != 5 {
		t.Errorf("fixes=%d truncated=%d, want 10/5", len(plan.Fixes), plan.Truncated)
	}
}

func TestBuildPlanGuidanceFromParameters(t *testing.T) {
	a := analysisWith(types.Violation{
		Severity:            types.SeverityCritical,
		RecommendedEndpoint: "enhance-typography",
		Location:            "body",
		Parameters:          map[string]string{"min-font-size": "16px", "selector": "body"},
	})

	plan := BuildPlan(a, DefaultConfig())
	g := plan.Fixes[0].Guidance
	if g.FocusArea != "typography" || g.TargetSelector != "body" {
		t.Errorf("guidance wrong: %+v", g)
	}
	if g.Adjustment["min-font-size"] != "16px" {
		t.Errorf("adjustment not threaded: %+v", g.Adjustment)
	}
}

func TestExecuteSequential(t *testing.T) {
	plan := &Plan{Fixes: []Fix{
		{Endpoint: "enhance-typography", Guidance: types.VisualGuidance{FocusArea: "typography"}},
		{Endpoint: "spacing-optimization", Guidance: types.VisualGuidance{FocusArea: "spacing"}},
	}}

	// Each invocation appends its focus area; order and chaining are the
	// contract under test.
	var calls []string
	transform := func(ctx context.Context, frag types.Fragment, g *types.VisualGuidance) (types.Fragment, *types.ChangeLog, error) {
		calls = append(calls, g.FocusArea)
		next := types.Fragment{
			CodeType: frag.CodeType,
			Bytes:    append(frag.Bytes, []byte("+"+g.FocusArea)...),
		}
		return next, &types.ChangeLog{Applied: []types.Edit{{RuleID: g.FocusArea}}}, nil
	}

	out, logs, err := Execute(context.Background(),
		types.Fragment{CodeType: types.CodeCSS, Bytes: []byte("base")}, plan, transform)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if strings.Join(calls, ",") != "typography,spacing" {
		t.Errorf("call order = %v", calls)
	}
	// The second fix saw the first fix's output.
	if string(out.Bytes) != "base+typography+spacing" {
		t.Errorf("chaining broken: %s", out.Bytes)
	}
	if len(logs) != 2 {
		t.Errorf("expected 2 change logs, got %d", len(logs))
	}
}

func TestValidateVerdicts(t *testing.T) {
	before := &types.VisualAnalysis{
		OverallScore: 30,
		Violations: []types.Violation{
			{RecommendedEndpoint: "enhance-typography", Location: "body", Severity: types.SeverityCritical},
			{RecommendedEndpoint: "spacing-optimization", Location: ".card", Severity: types.SeverityMedium},
		},
	}
	after := &types.VisualAnalysis{
		OverallScore: 72,
		Violations: []types.Violation{
			{RecommendedEndpoint: "spacing-optimization", Location: ".card", Severity: types.SeverityMedium},
		},
	}

	out := Validate(before, after, DefaultConfig())
	if out.ScoreDelta != 42 || out.Recommendation != RecommendAccept {
		t.Errorf("verdict = %+v", out)
	}
	if diff := cmp.Diff(before.Violations[:1], out.Resolved); diff != "" {
		t.Errorf("resolved mismatch (-want +got):\n%s", diff)
	}
	if len(out.Remaining) != 1 {
		t.Errorf("remaining = %+v", out.Remaining)
	}

	review := Validate(&types.VisualAnalysis{OverallScore: 50}, &types.VisualAnalysis{OverallScore: 55}, DefaultConfig())
	if review.Recommendation != RecommendReview {
		t.Errorf("small gain should be review, got %s", review.Recommendation)
	}

	reject := Validate(&types.VisualAnalysis{OverallScore: 50}, &types.VisualAnalysis{OverallScore: 48}, DefaultConfig())
	if reject.Recommendation != RecommendReject {
		t.Errorf("regression should be reject, got %s", reject.Recommendation)
	}
}
