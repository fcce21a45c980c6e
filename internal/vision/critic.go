// Package vision turns screenshots into structured critiques. The primary
// critic calls a vision model with a forensic three-pass prompt; a
// deterministic fallback scores measurable properties straight from the
// fragment when the model is unavailable.
package vision

import (
	"context"

	"brandwise/internal/types"
)

// Thresholds the critique measures against. Fixed; the prompt quotes them
// and the fallback critic enforces them directly.
const (
	MinBodyFontPx   = 16.0
	MinH1FontPx     = 24.0
	MinContrast     = 4.5
	MinTouchTargetPx = 44.0
	MinLineHeight   = 1.4
)

// Endpoints a violation can route to.
const (
	EndpointTypography    = "enhance-typography"
	EndpointAccessibility = "analyze-accessibility"
	EndpointSpacing       = "spacing-optimization"
	EndpointColor         = "color-harmony"
	EndpointElevation     = "elevation-tuning"
)

// Context carries what the critic knows about the fragment beyond pixels.
type Context struct {
	CodeType    types.CodeType
	BrandPackID string
	Viewport    types.Viewport
}

// Critic produces a VisualAnalysis from a screenshot.
type Critic interface {
	Critique(ctx context.Context, png []byte, vctx Context) (*types.VisualAnalysis, error)
}

// dimension weights for the overall score.
var dimensionWeights = map[string]float64{
	"hierarchy":     0.15,
	"typography":    0.25,
	"spacing":       0.15,
	"color":         0.15,
	"accessibility": 0.20,
	"brand":         0.10,
}

// endpointPriority breaks ordering ties between endpoints with equal
// severity: typography fixes unlock the most downstream wins.
var endpointPriority = map[string]int{
	EndpointTypography:    0,
	EndpointAccessibility: 1,
	EndpointSpacing:       2,
	EndpointColor:         3,
	EndpointElevation:     4,
}
