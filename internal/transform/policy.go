// Package transform implements the deterministic transform engine: the rule
// stages, the auto-apply policy with its guardrails, and the optimization
// pass. The engine is CPU-bound and single-owner per fragment; it holds no
// shared mutable state.
package transform

import (
	"path/filepath"
	"strings"
)

// RuleClass buckets rules by their auto-apply treatment.
type RuleClass string

const (
	// ClassSafe rules auto-apply at or above the safe confidence floor.
	ClassSafe RuleClass = "safe"
	// ClassAdvisory rules are suggestion-only under the default policy.
	ClassAdvisory RuleClass = "advisory"
)

// Stage identifies one pass of the fixed rule ordering.
type Stage string

const (
	StageTypography Stage = "typography"
	StageColors     Stage = "colors"
	StageSpacing    Stage = "spacing"
	StageRadius     Stage = "radius"
	StageElevation  Stage = "elevation"
	StageAnimations Stage = "animations"
	StageGradients  Stage = "gradients"
	StageStates     Stage = "states"
	StageOptimize   Stage = "optimization"
)

// StageOrder is the fixed rule ordering. Each stage consumes the previous
// stage's output; within a stage, edits apply in source order.
var StageOrder = []Stage{
	StageTypography,
	StageColors,
	StageSpacing,
	StageRadius,
	StageElevation,
	StageAnimations,
	StageGradients,
	StageStates,
	StageOptimize,
}

// RulePolicy collects every auto-apply threshold in one injected value
// object. It is versioned into the cache signature, so changing any knob
// invalidates cached transforms.
type RulePolicy struct {
	Version string `yaml:"version" json:"version"`

	// Confidence floors per rule class.
	SafeFloor     float64 `yaml:"safe_floor" json:"safe_floor"`
	AdvisoryFloor float64 `yaml:"advisory_floor" json:"advisory_floor"`

	// MaxAutoApply caps auto-applied edits per fragment; excess
	// high-confidence edits degrade to advisory.
	MaxAutoApply int `yaml:"max_auto_apply" json:"max_auto_apply"`

	// Confidence boosters, additive, saturating at 1.0.
	ConsistencyBoost float64 `yaml:"consistency_boost" json:"consistency_boost"`
	ContrastBoost    float64 `yaml:"contrast_boost" json:"contrast_boost"`
	LayoutPenalty    float64 `yaml:"layout_penalty" json:"layout_penalty"`
	AmbiguityPenalty float64 `yaml:"ambiguity_penalty" json:"ambiguity_penalty"`
	OverrideBoost    float64 `yaml:"override_boost" json:"override_boost"`

	// VendorPatterns exclude fragments by file path: matched fragments are
	// parsed but never transformed.
	VendorPatterns []string `yaml:"vendor_patterns" json:"vendor_patterns"`
}

// DefaultPolicy returns the shipped rule policy.
func DefaultPolicy() RulePolicy {
	return RulePolicy{
		Version:          "1",
		SafeFloor:        0.90,
		AdvisoryFloor:    0.80,
		MaxAutoApply:     5,
		ConsistencyBoost: 0.05,
		ContrastBoost:    0.05,
		LayoutPenalty:    0.10,
		AmbiguityPenalty: 0.20,
		OverrideBoost:    0.05,
		VendorPatterns: []string{
			"**/node_modules/**",
			"**/vendor/**",
			"**/dist/**",
			"**/build/**",
			"**/*.min.css",
			"**/*.min.js",
		},
	}
}

// VendorExcluded reports whether the fragment path matches the vendor set.
func (p RulePolicy) VendorExcluded(path string) bool {
	if path == "" {
		return false
	}
	norm := filepath.ToSlash(path)
	for _, pat := range p.VendorPatterns {
		if matchVendor(pat, norm) {
			return true
		}
	}
	return false
}

// matchVendor supports the ** glob the vendor set uses; path.Match alone
// does not cross separators.
func matchVendor(pat, path string) bool {
	switch {
	case strings.HasPrefix(pat, "**/") && strings.HasSuffix(pat, "/**"):
		needle := strings.TrimSuffix(strings.TrimPrefix(pat, "**/"), "/**")
		for _, seg := range strings.Split(path, "/") {
			if seg == needle {
				return true
			}
		}
		return false
	case strings.HasPrefix(pat, "**/"):
		suffix := strings.TrimPrefix(pat, "**/")
		if ok, _ := filepath.Match(suffix, filepath.Base(path)); ok {
			return true
		}
		return strings.HasSuffix(path, "/"+suffix)
	default:
		ok, _ := filepath.Match(pat, path)
		return ok
	}
}

// saturate clamps a boosted confidence into [0, 1].
func saturate(c float64) float64 {
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}
