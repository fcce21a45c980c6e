// Package types defines the shared data model for the enhancement pipeline:
// fragments, edit lists, change logs, diagnostics, and visual analyses.
// It has no dependencies on other brandwise packages so every component can
// share it without cycles.
package types

import (
	"time"
)

// CodeType identifies the language of a fragment.
type CodeType string

const (
	CodeCSS  CodeType = "css"
	CodeHTML CodeType = "html"
	CodeJSX  CodeType = "jsx"
	CodeTSX  CodeType = "tsx"
	CodeJS   CodeType = "js"
)

// Valid reports whether the code type is one the pipeline accepts.
func (c CodeType) Valid() bool {
	switch c {
	case CodeCSS, CodeHTML, CodeJSX, CodeTSX, CodeJS:
		return true
	}
	return false
}

// Fragment is a parseable chunk of source presented to the engine.
// Parsing is whole-or-fail: a partially parsed fragment is never emitted.
type Fragment struct {
	CodeType CodeType `json:"code_type"`
	Bytes    []byte   `json:"bytes"`
	FilePath string   `json:"file_path,omitempty"` // hint only, used for vendor exclusion
}

// EditKind classifies an edit by the rule family that produced it.
type EditKind string

const (
	EditColorToken     EditKind = "color-token"
	EditSpacingToken   EditKind = "spacing-token"
	EditRadiusToken    EditKind = "radius-token"
	EditElevationToken EditKind = "elevation-token"
	EditTypography     EditKind = "typography"
	EditAnimation      EditKind = "animation"
	EditGradient       EditKind = "gradient"
	EditStateVariant   EditKind = "state-variant"
	EditClassName      EditKind = "class-name"
	EditOptimization   EditKind = "optimization"
)

// Span is a half-open byte range [Start, End) into a fragment snapshot.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Edit is one proposed replacement inside a fragment.
// Spans are relative to the fragment snapshot the edit list was built from.
type Edit struct {
	Kind       EditKind `json:"kind"`
	Span       Span     `json:"span"`
	Anchor     string   `json:"anchor"` // semantic anchor, e.g. ".btn color" or "className"
	Before     string   `json:"before"`
	After      string   `json:"after"`
	Confidence float64  `json:"confidence"`
	RuleID     string   `json:"rule_id"`
}

// EditList is an ordered sequence of edits relative to one fragment snapshot.
type EditList []Edit

// DropReason explains why a proposed edit was not applied.
type DropReason string

const (
	DropLowConfidence  DropReason = "below-confidence-floor"
	DropAdvisoryClass  DropReason = "advisory-rule-class"
	DropContrastGuard  DropReason = "contrast-regression"
	DropChangeCap      DropReason = "change-cap-exceeded"
	DropAmbiguous      DropReason = "ambiguous-candidates"
	DropVendorPath     DropReason = "vendor-excluded"
	DropReparseFailure DropReason = "output-reparse-failed"
)

// DroppedEdit records an edit that was demoted to advisory, with the reason.
type DroppedEdit struct {
	Edit   Edit       `json:"edit"`
	Reason DropReason `json:"reason"`
}

// ChangeLog is the subset of an EditList that was actually applied,
// plus the edits that were dropped or demoted and why.
type ChangeLog struct {
	Applied  []Edit        `json:"applied"`
	Advisory []Edit        `json:"advisory"`
	Dropped  []DroppedEdit `json:"dropped"`
}

// Empty reports whether nothing was applied.
func (c *ChangeLog) Empty() bool {
	return c == nil || len(c.Applied) == 0
}

// DiagnosticKind is the cross-component error taxonomy. Components map their
// native failures into one of these kinds at the boundary; the orchestrator
// never re-throws a lower-level failure opaquely.
type DiagnosticKind string

const (
	DiagInvalidInput       DiagnosticKind = "invalid-input"
	DiagParseError         DiagnosticKind = "parse-error"
	DiagUnresolvedBrand    DiagnosticKind = "unresolved-brand"
	DiagBackpressure       DiagnosticKind = "backpressure"
	DiagTimeout            DiagnosticKind = "timeout"
	DiagDependencyDown     DiagnosticKind = "dependency-unavailable"
	DiagGuardrailViolation DiagnosticKind = "guardrail-violation"
	DiagVisionUnavailable  DiagnosticKind = "vision-unavailable"
	DiagInternal           DiagnosticKind = "internal"
)

// Diagnostic is a structured, non-fatal problem report attached to a response.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
	Detail  string         `json:"detail,omitempty"`
}

// Metadata is the bookkeeping block of every response envelope.
type Metadata struct {
	DurationMs      int64  `json:"duration_ms"`
	CorrelationID   string `json:"correlation_id"`
	CacheHit        bool   `json:"cache_hit,omitempty"`
	BrandPackID     string `json:"brand_pack_id,omitempty"`
	BrandVersion    string `json:"brand_version,omitempty"`
	BrandPackSource string `json:"brand_pack_source,omitempty"`
	Degraded        bool   `json:"degraded,omitempty"`
}

// Viewport is a render size in CSS pixels.
type Viewport struct {
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Severity ranks a violation for fix ordering.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank maps severity onto the ordering scale used by the router.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	}
	return 0
}

// Violation is one defect detected by the vision critic.
type Violation struct {
	Severity            Severity          `json:"severity"`
	Location            string            `json:"location"`
	Evidence            string            `json:"evidence"`
	RecommendedEndpoint string            `json:"recommended_endpoint"`
	Parameters          map[string]string `json:"parameters,omitempty"`
	Confidence          int               `json:"confidence"` // 0-100
}

// DimensionScores are the six weighted critique dimensions, 0-100 each.
type DimensionScores struct {
	Hierarchy     int `json:"hierarchy"`
	Typography    int `json:"typography"`
	Spacing       int `json:"spacing"`
	Color         int `json:"color"`
	Accessibility int `json:"accessibility"`
	Brand         int `json:"brand"`
}

// VisualAnalysis is the structured output of a critique pass.
type VisualAnalysis struct {
	AnalysisID      string          `json:"analysis_id"`
	ScreenshotRef   string          `json:"screenshot_ref"`
	OverallScore    int             `json:"overall_score"` // 0-100
	DimensionScores DimensionScores `json:"dimension_scores"`
	Violations      []Violation     `json:"violations"`
	ExecutionOrder  []string        `json:"execution_order"`
	EstimatedGain   int             `json:"estimated_gain"`
	CreatedAt       time.Time       `json:"created_at"`
}

// VisualGuidance narrows the transform rule set when a fix is routed back
// into the enhancement path from a critique violation.
type VisualGuidance struct {
	FocusArea      string            `json:"focus_area"`      // e.g. "typography", "spacing"
	TargetSelector string            `json:"target_selector"` // optional CSS selector
	Adjustment     map[string]string `json:"adjustment"`      // endpoint parameters
}
