// Package engine is the orchestrator: the public entry points Enhance,
// EnhanceCached, AnalyzeAndFix, ValidateImprovements and AnalyzeResponsive,
// composed over the token resolver, parsers, transform engine, cache,
// discovery, capture pool, vision critic, smart router and pattern store.
package engine

import (
	"brandwise/internal/patterns"
	"brandwise/internal/router"
	"brandwise/internal/token"
	"brandwise/internal/types"
)

// EnhanceRequest is the language-neutral enhancement request record.
type EnhanceRequest struct {
	Code          string             `json:"code"`
	CodeType      types.CodeType     `json:"codeType"`
	BrandPackID   string             `json:"brandPackId,omitempty"`
	BrandVersion  string             `json:"brandVersion,omitempty"`
	ProjectPath   string             `json:"projectPath,omitempty"`
	ComponentType string             `json:"componentType,omitempty"`
	FilePath      string             `json:"filePath,omitempty"`
	Tokens        []token.BrandToken `json:"tokens,omitempty"`

	AutoApply  string                `json:"autoApply,omitempty"` // safe|off|all
	MaxChanges int                   `json:"maxChanges,omitempty"`
	Optimize   int                   `json:"optimize,omitempty"`
	Guidance   *types.VisualGuidance `json:"guidance,omitempty"`
}

// EnhanceResponse is the common response envelope.
type EnhanceResponse struct {
	Success     bool                  `json:"success"`
	Code        string                `json:"code,omitempty"`
	ChangeLog   *types.ChangeLog      `json:"changeLog,omitempty"`
	Suggestions []patterns.Suggestion `json:"suggestions,omitempty"`
	Diagnostics []types.Diagnostic    `json:"diagnostics"`
	Metadata    types.Metadata        `json:"metadata"`
}

// AnalyzeRequest drives the visual loop.
type AnalyzeRequest struct {
	Code             string         `json:"code"`
	CodeType         types.CodeType `json:"codeType"`
	BrandPackID      string         `json:"brandPackId,omitempty"`
	BrandVersion     string         `json:"brandVersion,omitempty"`
	ProjectPath      string         `json:"projectPath,omitempty"`
	Viewport         types.Viewport `json:"viewport,omitempty"`
	AutoApply        string         `json:"autoApply,omitempty"` // safe|off|all
	ValidateAfterFix bool           `json:"validateAfterFix,omitempty"`
}

// AnalyzeResponse reports the visual loop outcome.
type AnalyzeResponse struct {
	Success        bool                  `json:"success"`
	Code           string                `json:"code,omitempty"`
	VisualAnalysis *types.VisualAnalysis `json:"visualAnalysis,omitempty"`
	FixPlan        *router.Plan          `json:"fixPlan,omitempty"`
	PostAnalysis   *types.VisualAnalysis `json:"postAnalysis,omitempty"`
	ScoreDelta     int                   `json:"scoreDelta,omitempty"`
	Recommendation string                `json:"recommendation,omitempty"`
	Diagnostics    []types.Diagnostic    `json:"diagnostics"`
	Metadata       types.Metadata        `json:"metadata"`
}

// ValidateRequest compares an original and an improved fragment.
type ValidateRequest struct {
	OriginalCode string         `json:"originalCode"`
	ImprovedCode string         `json:"improvedCode"`
	CodeType     types.CodeType `json:"codeType"`
	BrandPackID  string         `json:"brandPackId,omitempty"`
	Viewport     types.Viewport `json:"viewport,omitempty"`
}

// ValidateResponse carries the diff verdict.
type ValidateResponse struct {
	Success      bool               `json:"success"`
	Improvements *router.Outcome    `json:"improvements,omitempty"`
	Diagnostics  []types.Diagnostic `json:"diagnostics"`
	Metadata     types.Metadata     `json:"metadata"`
}

// ResponsiveRequest fans one fragment out across viewports.
type ResponsiveRequest struct {
	Code      string           `json:"code"`
	CodeType  types.CodeType   `json:"codeType"`
	Viewports []types.Viewport `json:"viewports"`
}

// ViewportAnalysis is one viewport's critique in a responsive report.
type ViewportAnalysis struct {
	Viewport types.Viewport        `json:"viewport"`
	Analysis *types.VisualAnalysis `json:"analysis,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// ResponsiveResponse joins the per-viewport critiques with cross-viewport
// consistency findings.
type ResponsiveResponse struct {
	Success          bool               `json:"success"`
	ResponsiveScore  int                `json:"responsiveScore"`
	ViewportAnalyses []ViewportAnalysis `json:"viewportAnalyses"`
	ResponsiveIssues []string           `json:"responsiveIssues,omitempty"`
	Recommendations  []string           `json:"recommendations,omitempty"`
	Diagnostics      []types.Diagnostic `json:"diagnostics"`
	Metadata         types.Metadata     `json:"metadata"`
}
