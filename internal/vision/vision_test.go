package vision

import (
	"context"
	"testing"

	"brandwise/internal/types"
)

func TestParseCritiqueCanonical(t *testing.T) {
	raw := `{
	  "overallScore": 42,
	  "dimensionScores": {"hierarchy": 50, "typography": 30, "spacing": 60,
	                      "color": 40, "accessibility": 35, "brand": 70},
	  "violations": [{
	    "severity": "critical",
	    "location": "body",
	    "evidence": "body text 12px below 16px",
	    "recommendedEndpoint": "enhance-typography",
	    "parameters": {"min-font-size": "16px"},
	    "confidence": 95
	  }],
	  "executionOrder": ["enhance-typography"],
	  "estimatedGain": 30
	}`

	a, err := ParseCritique(raw, "shot-1")
	if err != nil {
		t.Fatalf("ParseCritique failed: %v", err)
	}
	if a.OverallScore != 42 || a.DimensionScores.Typography != 30 {
		t.Errorf("scores wrong: %+v", a)
	}
	if len(a.Violations) != 1 || a.Violations[0].Severity != types.SeverityCritical {
		t.Errorf("violations wrong: %+v", a.Violations)
	}
	if a.Violations[0].Parameters["min-font-size"] != "16px" {
		t.Errorf("parameters not stringified: %+v", a.Violations[0].Parameters)
	}
	if a.ScreenshotRef != "shot-1" {
		t.Errorf("screenshot ref lost: %q", a.ScreenshotRef)
	}
}

func TestParseCritiqueAliases(t *testing.T) {
	// criticalViolations and criticalIssues are accepted as aliases and
	// merged into the single internal violations field.
	for _, alias := range []string{"criticalViolations", "criticalIssues"} {
		raw := `{"overallScore": 20, "` + alias + `": [{
		  "location": ".btn",
		  "evidence": "touch target 20px",
		  "recommendedEndpoint": "analyze-accessibility",
		  "confidence": 80
		}]}`

		a, err := ParseCritique(raw, "")
		if err != nil {
			t.Fatalf("alias %s: %v", alias, err)
		}
		if len(a.Violations) != 1 {
			t.Fatalf("alias %s not merged: %+v", alias, a.Violations)
		}
		if a.Violations[0].Severity != types.SeverityCritical {
			t.Errorf("alias %s should imply critical, got %s", alias, a.Violations[0].Severity)
		}
	}
}

func TestParseCritiqueFencedAndNumericParams(t *testing.T) {
	raw := "Here is the analysis:\n```json\n" + `{
	  "overallScore": 55,
	  "violations": [{
	    "severity": "high",
	    "location": "p",
	    "evidence": "line-height 1.2",
	    "recommendedEndpoint": "enhance-typography",
	    "parameters": {"line-height": 1.4},
	    "confidence": 88
	  }]
	}` + "\n```\nHope this helps."

	a, err := ParseCritique(raw, "")
	if err != nil {
		t.Fatalf("fenced response should parse: %v", err)
	}
	if a.Violations[0].Parameters["line-height"] != "1.4" {
		t.Errorf("numeric parameter not stringified: %+v", a.Violations[0].Parameters)
	}
	// Missing executionOrder is derived from the violations.
	if len(a.ExecutionOrder) != 1 || a.ExecutionOrder[0] != EndpointTypography {
		t.Errorf("derived order wrong: %v", a.ExecutionOrder)
	}
}

func TestParseCritiqueRejectsGarbage(t *testing.T) {
	if _, err := ParseCritique("not json at all", ""); err == nil {
		t.Error("garbage must error so the caller retries")
	}
	if _, err := ParseCritique("{}", ""); err == nil {
		t.Error("empty critique must error")
	}
}

func TestDeriveExecutionOrderSeverityThenPriority(t *testing.T) {
	violations := []types.Violation{
		{Severity: types.SeverityMedium, RecommendedEndpoint: EndpointSpacing},
		{Severity: types.SeverityCritical, RecommendedEndpoint: EndpointAccessibility},
		{Severity: types.SeverityCritical, RecommendedEndpoint: EndpointTypography},
	}
	order := DeriveExecutionOrder(violations)
	want := []string{EndpointTypography, EndpointAccessibility, EndpointSpacing}
	if len(order) != 3 {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDeterministicCriticDegradedPage(t *testing.T) {
	src := `<html><head><style>
body { font-size: 12px; color: #cccccc; background: #ffffff; }
h1 { font-size: 16px; }
.btn { padding: 2px 4px; }
.card { margin: 7px; }
</style></head><body><h1>T</h1><p>text</p><button class="btn">go</button></body></html>`

	a, err := DeterministicCritic{}.CritiqueFragment(context.Background(),
		types.Fragment{CodeType: types.CodeHTML, Bytes: []byte(src)})
	if err != nil {
		t.Fatalf("CritiqueFragment failed: %v", err)
	}

	if a.OverallScore > 35 {
		t.Errorf("degraded page scored %d, want <= 35", a.OverallScore)
	}

	criticals := 0
	endpoints := map[string]bool{}
	for _, v := range a.Violations {
		if v.Severity == types.SeverityCritical {
			criticals++
		}
		endpoints[v.RecommendedEndpoint] = true
	}
	if criticals < 4 {
		t.Errorf("expected at least 4 critical violations, got %d: %+v", criticals, a.Violations)
	}

	// Typography first, then accessibility, then spacing.
	var order []string
	for _, e := range a.ExecutionOrder {
		if endpoints[e] {
			order = append(order, e)
		}
	}
	want := []string{EndpointTypography, EndpointAccessibility, EndpointSpacing}
	if len(order) < 3 {
		t.Fatalf("execution order missing endpoints: %v", a.ExecutionOrder)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", a.ExecutionOrder, want)
		}
	}
}

func TestDeterministicCriticCleanPage(t *testing.T) {
	src := `<html><head><style>
body { font-size: 16px; line-height: 1.5; color: #1a1a1a; background: #ffffff; }
h1 { font-size: 32px; }
.btn { padding: 16px 24px; font-size: 16px; }
</style></head><body><h1>T</h1><p>text</p><button class="btn">go</button></body></html>`

	a, err := DeterministicCritic{}.CritiqueFragment(context.Background(),
		types.Fragment{CodeType: types.CodeHTML, Bytes: []byte(src)})
	if err != nil {
		t.Fatalf("CritiqueFragment failed: %v", err)
	}
	if len(a.Violations) != 0 {
		t.Errorf("clean page has violations: %+v", a.Violations)
	}
	if a.OverallScore < 90 {
		t.Errorf("clean page scored %d", a.OverallScore)
	}
}
