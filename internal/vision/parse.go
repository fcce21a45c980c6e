package vision

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"brandwise/internal/types"
)

// rawViolation is the lenient wire form of a violation. Parameters accept
// any JSON scalar and are stringified.
type rawViolation struct {
	Severity            string                 `json:"severity"`
	Location            string                 `json:"location"`
	Evidence            string                 `json:"evidence"`
	RecommendedEndpoint string                 `json:"recommendedEndpoint"`
	Parameters          map[string]interface{} `json:"parameters"`
	Confidence          float64                `json:"confidence"`
}

// rawAnalysis is the wire shape the model returns. Leniency is one-way:
// criticalViolations and criticalIssues are accepted as aliases of the
// violations list; internally there is a single field.
type rawAnalysis struct {
	OverallScore       float64        `json:"overallScore"`
	DimensionScores    map[string]int `json:"dimensionScores"`
	Violations         []rawViolation `json:"violations"`
	CriticalViolations []rawViolation `json:"criticalViolations"`
	CriticalIssues     []rawViolation `json:"criticalIssues"`
	ExecutionOrder     []string       `json:"executionOrder"`
	EstimatedGain      float64        `json:"estimatedGain"`
}

// ParseCritique coerces a model response into a VisualAnalysis. It strips
// code fences, merges the violation aliases, normalizes severities and
// derives a missing execution order. An uncoercible response errors so the
// caller can retry.
func ParseCritique(raw string, screenshotRef string) (*types.VisualAnalysis, error) {
	body := stripFences(raw)

	var parsed rawAnalysis
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("critique is not valid JSON: %w", err)
	}

	sets := []struct {
		list     []rawViolation
		critical bool // alias lists imply critical when unmarked
	}{
		{parsed.Violations, false},
		{parsed.CriticalViolations, true},
		{parsed.CriticalIssues, true},
	}

	var violations []types.Violation
	for _, set := range sets {
		for _, rv := range set.list {
			v := types.Violation{
				Severity:            normalizeSeverity(rv.Severity),
				Location:            rv.Location,
				Evidence:            rv.Evidence,
				RecommendedEndpoint: rv.RecommendedEndpoint,
				Confidence:          clampScore(rv.Confidence),
			}
			if rv.Severity == "" && set.critical {
				v.Severity = types.SeverityCritical
			}
			if len(rv.Parameters) > 0 {
				v.Parameters = make(map[string]string, len(rv.Parameters))
				for k, val := range rv.Parameters {
					v.Parameters[k] = fmt.Sprintf("%v", val)
				}
			}
			if v.RecommendedEndpoint == "" {
				continue
			}
			violations = append(violations, v)
		}
	}
	if parsed.DimensionScores == nil && len(violations) == 0 && parsed.OverallScore == 0 {
		return nil, fmt.Errorf("critique carries no scores and no violations")
	}

	dims := types.DimensionScores{
		Hierarchy:     clampScore(float64(parsed.DimensionScores["hierarchy"])),
		Typography:    clampScore(float64(parsed.DimensionScores["typography"])),
		Spacing:       clampScore(float64(parsed.DimensionScores["spacing"])),
		Color:         clampScore(float64(parsed.DimensionScores["color"])),
		Accessibility: clampScore(float64(parsed.DimensionScores["accessibility"])),
		Brand:         clampScore(float64(parsed.DimensionScores["brand"])),
	}

	order := parsed.ExecutionOrder
	if len(order) == 0 {
		order = DeriveExecutionOrder(violations)
	}

	return &types.VisualAnalysis{
		AnalysisID:      uuid.NewString(),
		ScreenshotRef:   screenshotRef,
		OverallScore:    clampScore(parsed.OverallScore),
		DimensionScores: dims,
		Violations:      violations,
		ExecutionOrder:  order,
		EstimatedGain:   clampScore(parsed.EstimatedGain),
		CreatedAt:       time.Now(),
	}, nil
}

// DeriveExecutionOrder groups violations by endpoint and orders the
// endpoints by worst severity, breaking ties with the fixed priority.
func DeriveExecutionOrder(violations []types.Violation) []string {
	type group struct {
		endpoint string
		maxRank  int
	}
	byEndpoint := map[string]*group{}
	for _, v := range violations {
		g, ok := byEndpoint[v.RecommendedEndpoint]
		if !ok {
			g = &group{endpoint: v.RecommendedEndpoint}
			byEndpoint[v.RecommendedEndpoint] = g
		}
		if r := v.Severity.Rank(); r > g.maxRank {
			g.maxRank = r
		}
	}

	groups := make([]*group, 0, len(byEndpoint))
	for _, g := range byEndpoint {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].maxRank != groups[j].maxRank {
			return groups[i].maxRank > groups[j].maxRank
		}
		return endpointPriority[groups[i].endpoint] < endpointPriority[groups[j].endpoint]
	})

	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.endpoint
	}
	return out
}

// stripFences removes markdown code fences and any prose around the outer
// JSON object.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "}"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return s
}

func normalizeSeverity(s string) types.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return types.SeverityCritical
	case "high":
		return types.SeverityHigh
	case "medium", "moderate":
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func clampScore(f float64) int {
	n := int(f)
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
