package vision

import (
	"fmt"

	"brandwise/internal/types"
)

// forensicPrompt is the three-pass critique prompt. Violation-first: praise
// is forbidden, every claim needs a measurement.
func forensicPrompt(vctx Context) string {
	return fmt.Sprintf(`You are a forensic UI auditor. Analyze the attached screenshot in three passes.

PASS 1 - MEASURE. Measure every text element (font size in px, line height),
every interactive target (width x height in px), every spacing value between
elements, and every foreground/background color pair (as hex).

PASS 2 - DETECT VIOLATIONS. Flag every measurement that breaks these fixed
thresholds:
- body text >= %gpx
- primary heading (H1) >= %gpx
- contrast ratio >= %g:1 for normal text (WCAG AA)
- touch targets >= %gpx in both dimensions
- line-height >= %g
- spacing values drawn from a systematic scale (multiples of 4px)

PASS 3 - SCORE. Score six dimensions from 0-100 (hierarchy, typography,
spacing, color, accessibility, brand), deducting per violation: critical -40
on the primary dimension, high -25, medium -10, low -5. The overall score is
the weighted sum (hierarchy 0.15, typography 0.25, spacing 0.15, color 0.15,
accessibility 0.20, brand 0.10) minus 5 per critical violation.

Do not praise. Report violations only. Respond with ONLY a JSON object:
{
  "overallScore": <int 0-100>,
  "dimensionScores": {"hierarchy": <int>, "typography": <int>, "spacing": <int>,
                      "color": <int>, "accessibility": <int>, "brand": <int>},
  "violations": [{
     "severity": "critical|high|medium|low",
     "location": "<element or region>",
     "evidence": "<the measurement that proves it>",
     "recommendedEndpoint": "%s|%s|%s|%s|%s",
     "parameters": {"<knob>": "<value>"},
     "confidence": <int 0-100>
  }],
  "executionOrder": ["<endpoint>", ...],
  "estimatedGain": <int>
}
Viewport: %dx%d. Code type: %s.`,
		MinBodyFontPx, MinH1FontPx, MinContrast, MinTouchTargetPx, MinLineHeight,
		EndpointTypography, EndpointAccessibility, EndpointSpacing, EndpointColor, EndpointElevation,
		vctx.Viewport.Width, vctx.Viewport.Height, vctx.CodeType)
}

// weightedOverall folds dimension scores into the overall score, minus the
// per-critical deduction, clamped to [0, 100].
func weightedOverall(d types.DimensionScores, criticals int) int {
	sum := dimensionWeights["hierarchy"]*float64(d.Hierarchy) +
		dimensionWeights["typography"]*float64(d.Typography) +
		dimensionWeights["spacing"]*float64(d.Spacing) +
		dimensionWeights["color"]*float64(d.Color) +
		dimensionWeights["accessibility"]*float64(d.Accessibility) +
		dimensionWeights["brand"]*float64(d.Brand)
	score := int(sum) - 5*criticals
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
