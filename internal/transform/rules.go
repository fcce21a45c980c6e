package transform

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"brandwise/internal/parser"
	"brandwise/internal/token"
	"brandwise/internal/types"
)

// Property sets per stage. The engine only ever looks at declarations whose
// property is in the stage's set.
var (
	colorProps = map[string]bool{
		"color": true, "background-color": true, "border-color": true,
		"outline-color": true, "caret-color": true, "fill": true,
		"stroke": true, "text-decoration-color": true,
	}
	spacingProps = map[string]bool{
		"margin": true, "padding": true, "gap": true, "row-gap": true,
		"column-gap": true, "margin-top": true, "margin-right": true,
		"margin-bottom": true, "margin-left": true, "padding-top": true,
		"padding-right": true, "padding-bottom": true, "padding-left": true,
		"top": true, "right": true, "bottom": true, "left": true, "inset": true,
	}
	radiusProps = map[string]bool{
		"border-radius": true, "border-top-left-radius": true,
		"border-top-right-radius": true, "border-bottom-left-radius": true,
		"border-bottom-right-radius": true,
	}
	durationProps = map[string]bool{
		"transition-duration": true, "animation-duration": true,
	}
	easingProps = map[string]bool{
		"transition-timing-function": true, "animation-timing-function": true,
	}
	gradientProps = map[string]bool{
		"background": true, "background-image": true,
	}
)

// propose produces the stage's scored candidate edits over the document.
// With a nil snapshot only structural (guidance-driven) rules run.
func (e *Engine) propose(ctx context.Context, stage Stage, doc *parser.Document, snap *token.Snapshot, opts Options) []proposal {
	var out []proposal
	switch stage {
	case StageTypography:
		out = e.proposeTypography(doc, snap, opts)
	case StageColors:
		out = e.proposeColors(doc, snap, opts)
		out = append(out, e.proposeGuidedContrast(doc, opts)...)
	case StageSpacing:
		out = e.proposeLengths(doc, snap, opts, token.CategorySpacing, spacingProps, types.EditSpacingToken, "spacing-token")
		out = append(out, e.proposeGuidedSpacing(doc, opts)...)
		out = append(out, e.proposeClassNames(doc, snap, token.CategorySpacing)...)
	case StageRadius:
		out = e.proposeLengths(doc, snap, opts, token.CategoryRadius, radiusProps, types.EditRadiusToken, "radius-token")
		out = append(out, e.proposeClassNames(doc, snap, token.CategoryRadius)...)
	case StageElevation:
		out = e.proposeShadows(doc, snap, opts)
	case StageAnimations:
		out = e.proposeAnimations(doc, snap, opts)
	case StageGradients:
		out = e.proposeGradients(doc, snap, opts)
	case StageStates:
		out = e.proposeStates(doc, snap, opts)
	}

	// Interpolation holes are opaque: no edit may touch one.
	filtered := out[:0]
	for _, p := range out {
		if !doc.InHole(p.edit.Span) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// blockPenaltyFor computes the layout-safety penalty for a declaration's
// surrounding block: explicit !important or keyframes context.
func (e *Engine) blockPenaltyFor(doc *parser.Document, block int) float64 {
	if block < 0 || block >= len(doc.Blocks) {
		return 0
	}
	b := doc.Blocks[block]
	if b.InKeyframes {
		return e.policy.LayoutPenalty
	}
	for _, d := range doc.BlockDecls(block) {
		if d.Important {
			return e.policy.LayoutPenalty
		}
	}
	return 0
}

func anchorOf(doc *parser.Document, d parser.Declaration) string {
	sel := ""
	if d.Block >= 0 && d.Block < len(doc.Blocks) {
		sel = doc.Blocks[d.Block].Selector
	}
	return fmt.Sprintf("%s %s", sel, d.Property)
}

// ----------------------------------------------------------------------------
// Colors
// ----------------------------------------------------------------------------

func (e *Engine) proposeColors(doc *parser.Document, snap *token.Snapshot, opts Options) []proposal {
	if snap == nil {
		return nil
	}

	// Consistency pre-pass: how often does each normalized color appear?
	seen := map[string]int{}
	for _, d := range doc.Decls {
		if colorProps[d.Property] || d.Property == "background" {
			if hex, ok := token.NormalizeColor(d.Value); ok {
				seen[hex]++
			}
		}
	}

	var out []proposal
	for _, d := range doc.Decls {
		if !colorProps[d.Property] && d.Property != "background" {
			continue
		}
		if !selectorMatches(doc.Blocks[d.Block].Selector, opts.Guidance) {
			continue
		}
		hex, ok := token.NormalizeColor(d.Value)
		if !ok {
			continue
		}

		penalty := e.blockPenaltyFor(doc, d.Block)

		if res := snap.ResolveColor(d.Value); res.Matched() {
			out = append(out, proposal{
				edit: types.Edit{
					Kind:       types.EditColorToken,
					Span:       d.ValueSpan,
					Anchor:     anchorOf(doc, d),
					Before:     d.Value,
					After:      res.Token.Reference(),
					Confidence: 0.90,
					RuleID:     "color-exact",
				},
				class:      ClassSafe,
				block:      d.Block,
				prop:       d.Property,
				tokenColor: res.Token.Value,
				consistent: seen[hex] >= 2,
				preferred:  snap.Preferred(res.Token),
				penalty:    penalty,
			})
			continue
		}

		if near, ok := snap.ResolveColorNear(d.Value, 0.1); ok && near.Distance > 0 {
			out = append(out, proposal{
				edit: types.Edit{
					Kind:       types.EditColorToken,
					Span:       d.ValueSpan,
					Anchor:     anchorOf(doc, d),
					Before:     d.Value,
					After:      near.Token.Reference(),
					Confidence: 0.80,
					RuleID:     "color-near",
				},
				class:      ClassAdvisory,
				block:      d.Block,
				prop:       d.Property,
				tokenColor: near.Token.Value,
				preferred:  snap.Preferred(near.Token),
				penalty:    penalty,
			})
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// Lengths (spacing, radius) - multi-value declarations combine into one edit
// ----------------------------------------------------------------------------

func (e *Engine) proposeLengths(doc *parser.Document, snap *token.Snapshot, opts Options, cat token.Category, props map[string]bool, kind types.EditKind, ruleID string) []proposal {
	if snap == nil {
		return nil
	}

	seen := map[float64]int{}
	for _, d := range doc.Decls {
		if !props[d.Property] {
			continue
		}
		for _, part := range strings.Fields(d.Value) {
			if px, ok := token.ParseLength(part); ok {
				seen[px]++
			}
		}
	}

	var out []proposal
	for _, d := range doc.Decls {
		if !props[d.Property] {
			continue
		}
		if !selectorMatches(doc.Blocks[d.Block].Selector, opts.Guidance) {
			continue
		}

		parts := strings.Fields(d.Value)
		if len(parts) == 0 || len(parts) > 4 {
			continue
		}

		resolvedAny := false
		ambiguous := false
		consistent := false
		preferred := false
		replaced := make([]string, len(parts))
		for i, part := range parts {
			replaced[i] = part
			res := snap.ResolveLength(part, cat)
			if res.Ambiguous() {
				ambiguous = true
				continue
			}
			if !res.Matched() {
				continue
			}
			replaced[i] = res.Token.Reference()
			resolvedAny = true
			if px, ok := token.ParseLength(part); ok && seen[px] >= 2 {
				consistent = true
			}
			if snap.Preferred(res.Token) {
				preferred = true
			}
		}
		if !resolvedAny && !ambiguous {
			continue
		}

		after := strings.Join(replaced, " ")
		if after == d.Value && !ambiguous {
			continue
		}
		out = append(out, proposal{
			edit: types.Edit{
				Kind:       kind,
				Span:       d.ValueSpan,
				Anchor:     anchorOf(doc, d),
				Before:     d.Value,
				After:      after,
				Confidence: 0.90,
				RuleID:     ruleID,
			},
			class:      ClassSafe,
			block:      d.Block,
			prop:       d.Property,
			ambiguous:  ambiguous,
			consistent: consistent,
			preferred:  preferred,
			penalty:    e.blockPenaltyFor(doc, d.Block),
		})
	}
	return out
}

// ----------------------------------------------------------------------------
// Elevation
// ----------------------------------------------------------------------------

func (e *Engine) proposeShadows(doc *parser.Document, snap *token.Snapshot, opts Options) []proposal {
	if snap == nil {
		return nil
	}
	var out []proposal
	for _, d := range doc.Decls {
		if d.Property != "box-shadow" {
			continue
		}
		if !selectorMatches(doc.Blocks[d.Block].Selector, opts.Guidance) {
			continue
		}
		res := snap.ResolveShadow(d.Value)
		if !res.Matched() && !res.Ambiguous() {
			continue
		}
		p := proposal{
			edit: types.Edit{
				Kind:       types.EditElevationToken,
				Span:       d.ValueSpan,
				Anchor:     anchorOf(doc, d),
				Before:     d.Value,
				Confidence: 0.90,
				RuleID:     "elevation-token",
			},
			class:     ClassSafe,
			block:     d.Block,
			prop:      d.Property,
			ambiguous: res.Ambiguous(),
			penalty:   e.blockPenaltyFor(doc, d.Block),
		}
		if res.Matched() {
			p.edit.After = res.Token.Reference()
			p.preferred = snap.Preferred(res.Token)
		}
		out = append(out, p)
	}
	return out
}

// ----------------------------------------------------------------------------
// Typography
// ----------------------------------------------------------------------------

func (e *Engine) proposeTypography(doc *parser.Document, snap *token.Snapshot, opts Options) []proposal {
	var out []proposal

	if snap != nil {
		for _, d := range doc.Decls {
			if !selectorMatches(doc.Blocks[d.Block].Selector, opts.Guidance) {
				continue
			}
			switch d.Property {
			case "font-size":
				res := snap.ResolveLength(d.Value, token.CategoryFontSize)
				if !res.Matched() {
					continue
				}
				out = append(out, proposal{
					edit: types.Edit{
						Kind:       types.EditTypography,
						Span:       d.ValueSpan,
						Anchor:     anchorOf(doc, d),
						Before:     d.Value,
						After:      res.Token.Reference(),
						Confidence: 0.80,
						RuleID:     "type-scale",
					},
					class:     ClassAdvisory,
					block:     d.Block,
					prop:      d.Property,
					preferred: snap.Preferred(res.Token),
					penalty:   e.blockPenaltyFor(doc, d.Block),
				})
			case "font-family":
				res := snap.ResolveFontFamily(d.Value)
				if !res.Matched() {
					continue
				}
				if strings.HasPrefix(d.Value, "var(") {
					continue
				}
				out = append(out, proposal{
					edit: types.Edit{
						Kind:       types.EditTypography,
						Span:       d.ValueSpan,
						Anchor:     anchorOf(doc, d),
						Before:     d.Value,
						After:      res.Token.Reference(),
						Confidence: 0.80,
						RuleID:     "font-family",
					},
					class:     ClassAdvisory,
					block:     d.Block,
					prop:      d.Property,
					preferred: snap.Preferred(res.Token),
					penalty:   e.blockPenaltyFor(doc, d.Block),
				})
			}
		}
	}

	out = append(out, e.proposeGuidedTypography(doc, opts)...)
	return out
}

// proposeGuidedTypography turns vision guidance into structural fixes:
// raise undersized font-size values and low line-heights to the guided
// minimums. These rules need no brand tokens.
func (e *Engine) proposeGuidedTypography(doc *parser.Document, opts Options) []proposal {
	g := opts.Guidance
	if g == nil {
		return nil
	}

	var out []proposal
	if minStr, ok := g.Adjustment["min-font-size"]; ok {
		if minPx, err := strconv.ParseFloat(strings.TrimSuffix(minStr, "px"), 64); err == nil {
			for _, d := range doc.Decls {
				if d.Property != "font-size" {
					continue
				}
				if !selectorMatches(doc.Blocks[d.Block].Selector, g) {
					continue
				}
				px, ok := token.ParseLength(d.Value)
				if !ok || px >= minPx {
					continue
				}
				out = append(out, proposal{
					edit: types.Edit{
						Kind:       types.EditTypography,
						Span:       d.ValueSpan,
						Anchor:     anchorOf(doc, d),
						Before:     d.Value,
						After:      fmt.Sprintf("%gpx", minPx),
						Confidence: 0.92,
						RuleID:     "guided-min-font-size",
					},
					class:   ClassAdvisory,
					block:   d.Block,
					prop:    d.Property,
					penalty: e.blockPenaltyFor(doc, d.Block),
				})
			}
		}
	}

	if minStr, ok := g.Adjustment["line-height"]; ok {
		if minLH, err := strconv.ParseFloat(minStr, 64); err == nil {
			for _, d := range doc.Decls {
				if d.Property != "line-height" {
					continue
				}
				lh, err := strconv.ParseFloat(strings.TrimSpace(d.Value), 64)
				if err != nil || lh >= minLH {
					continue
				}
				out = append(out, proposal{
					edit: types.Edit{
						Kind:       types.EditTypography,
						Span:       d.ValueSpan,
						Anchor:     anchorOf(doc, d),
						Before:     d.Value,
						After:      strconv.FormatFloat(minLH, 'g', -1, 64),
						Confidence: 0.92,
						RuleID:     "guided-line-height",
					},
					class:   ClassAdvisory,
					block:   d.Block,
					prop:    d.Property,
					penalty: e.blockPenaltyFor(doc, d.Block),
				})
			}
		}
	}
	return out
}

// proposeGuidedContrast repairs fg/bg pairs below the guided minimum
// contrast by swinging the foreground to whichever neutral (near-black or
// near-white) reads better on the block's background. Needs no tokens.
func (e *Engine) proposeGuidedContrast(doc *parser.Document, opts Options) []proposal {
	g := opts.Guidance
	if g == nil {
		return nil
	}
	minStr, ok := g.Adjustment["min-contrast"]
	if !ok {
		return nil
	}
	minRatio, err := strconv.ParseFloat(minStr, 64)
	if err != nil || minRatio <= 0 {
		return nil
	}

	var out []proposal
	for bi, b := range doc.Blocks {
		if !selectorMatches(b.Selector, g) {
			continue
		}
		var fgDecl *parser.Declaration
		var bg string
		for _, d := range doc.BlockDecls(bi) {
			d := d
			switch d.Property {
			case "color":
				fgDecl = &d
			case "background", "background-color":
				bg = d.Value
			}
		}
		if fgDecl == nil || bg == "" {
			continue
		}
		if ratio := token.Contrast(fgDecl.Value, bg); ratio == 0 || ratio >= minRatio {
			continue
		}

		candidate := "#1a1a1a"
		if token.Contrast("#f5f5f5", bg) > token.Contrast(candidate, bg) {
			candidate = "#f5f5f5"
		}
		if token.Contrast(candidate, bg) < minRatio {
			continue
		}
		out = append(out, proposal{
			edit: types.Edit{
				Kind:       types.EditColorToken,
				Span:       fgDecl.ValueSpan,
				Anchor:     anchorOf(doc, *fgDecl),
				Before:     fgDecl.Value,
				After:      candidate,
				Confidence: 0.92,
				RuleID:     "guided-contrast",
			},
			class:      ClassAdvisory,
			block:      bi,
			prop:       "color",
			tokenColor: candidate,
			penalty:    e.blockPenaltyFor(doc, bi),
		})
	}
	return out
}

// proposeGuidedSpacing raises padding below the guided minimum (touch
// target fixes routed from the critic).
func (e *Engine) proposeGuidedSpacing(doc *parser.Document, opts Options) []proposal {
	g := opts.Guidance
	if g == nil {
		return nil
	}
	minStr, ok := g.Adjustment["min-padding"]
	if !ok {
		return nil
	}
	minPx, err := strconv.ParseFloat(strings.TrimSuffix(minStr, "px"), 64)
	if err != nil {
		return nil
	}

	var out []proposal
	for _, d := range doc.Decls {
		if !strings.HasPrefix(d.Property, "padding") {
			continue
		}
		if !selectorMatches(doc.Blocks[d.Block].Selector, g) {
			continue
		}
		parts := strings.Fields(d.Value)
		raised := false
		replaced := make([]string, len(parts))
		for i, part := range parts {
			replaced[i] = part
			if px, ok := token.ParseLength(part); ok && px < minPx {
				replaced[i] = fmt.Sprintf("%gpx", minPx)
				raised = true
			}
		}
		if !raised {
			continue
		}
		out = append(out, proposal{
			edit: types.Edit{
				Kind:       types.EditSpacingToken,
				Span:       d.ValueSpan,
				Anchor:     anchorOf(doc, d),
				Before:     d.Value,
				After:      strings.Join(replaced, " "),
				Confidence: 0.92,
				RuleID:     "guided-min-padding",
			},
			class:   ClassAdvisory,
			block:   d.Block,
			prop:    d.Property,
			penalty: e.blockPenaltyFor(doc, d.Block),
		})
	}
	return out
}

// ----------------------------------------------------------------------------
// Animations
// ----------------------------------------------------------------------------

func (e *Engine) proposeAnimations(doc *parser.Document, snap *token.Snapshot, opts Options) []proposal {
	if snap == nil {
		return nil
	}
	var out []proposal
	for _, d := range doc.Decls {
		if !selectorMatches(doc.Blocks[d.Block].Selector, opts.Guidance) {
			continue
		}

		var res token.Resolution
		switch {
		case durationProps[d.Property]:
			res = snap.ResolveDuration(d.Value)
		case easingProps[d.Property]:
			res = snap.ResolveEasing(d.Value)
		default:
			continue
		}
		if !res.Matched() && !res.Ambiguous() {
			continue
		}

		p := proposal{
			edit: types.Edit{
				Kind:       types.EditAnimation,
				Span:       d.ValueSpan,
				Anchor:     anchorOf(doc, d),
				Before:     d.Value,
				Confidence: 0.80,
				RuleID:     "animation-token",
			},
			class:     ClassAdvisory,
			block:     d.Block,
			prop:      d.Property,
			ambiguous: res.Ambiguous(),
			penalty:   e.blockPenaltyFor(doc, d.Block),
		}
		if res.Matched() {
			p.edit.After = res.Token.Reference()
			p.preferred = snap.Preferred(res.Token)
		}
		out = append(out, p)
	}
	return out
}

// ----------------------------------------------------------------------------
// Gradients
// ----------------------------------------------------------------------------

func (e *Engine) proposeGradients(doc *parser.Document, snap *token.Snapshot, opts Options) []proposal {
	if snap == nil {
		return nil
	}
	var out []proposal
	for _, d := range doc.Decls {
		if !gradientProps[d.Property] || !strings.Contains(d.Value, "linear-gradient") {
			continue
		}
		if !selectorMatches(doc.Blocks[d.Block].Selector, opts.Guidance) {
			continue
		}
		res := snap.ResolveGradient(d.Value)
		if !res.Matched() {
			continue
		}
		out = append(out, proposal{
			edit: types.Edit{
				Kind:       types.EditGradient,
				Span:       d.ValueSpan,
				Anchor:     anchorOf(doc, d),
				Before:     d.Value,
				After:      res.Token.Reference(),
				Confidence: 0.80,
				RuleID:     "gradient-preset",
			},
			class:     ClassAdvisory,
			block:     d.Block,
			prop:      d.Property,
			preferred: snap.Preferred(res.Token),
			penalty:   e.blockPenaltyFor(doc, d.Block),
		})
	}
	return out
}

// ----------------------------------------------------------------------------
// State variants
// ----------------------------------------------------------------------------

// proposeStates synthesizes :hover variants for blocks whose background
// resolved to a token with a "-hover" sibling in the pack. Always advisory;
// the synthesized rule is an insertion after the block.
func (e *Engine) proposeStates(doc *parser.Document, snap *token.Snapshot, opts Options) []proposal {
	if snap == nil || doc.Fragment.CodeType != types.CodeCSS {
		return nil
	}

	hoverTokens := map[string]*token.BrandToken{}
	for _, t := range snap.Tokens(token.CategoryColor) {
		if strings.HasSuffix(t.Name, "-hover") {
			hoverTokens[strings.TrimSuffix(t.Name, "-hover")] = t
		}
	}
	if len(hoverTokens) == 0 {
		return nil
	}

	// Selectors that already have a hover rule.
	haveHover := map[string]bool{}
	for _, b := range doc.Blocks {
		if strings.Contains(b.Selector, ":hover") {
			haveHover[strings.Replace(b.Selector, ":hover", "", 1)] = true
		}
	}

	var out []proposal
	for bi, b := range doc.Blocks {
		if b.InKeyframes || strings.Contains(b.Selector, ":") || haveHover[b.Selector] {
			continue
		}
		if !selectorMatches(b.Selector, opts.Guidance) {
			continue
		}
		for _, d := range doc.BlockDecls(bi) {
			if d.Property != "background-color" && d.Property != "background" {
				continue
			}
			res := snap.ResolveColor(d.Value)
			if !res.Matched() {
				continue
			}
			hover, ok := hoverTokens[res.Token.Name]
			if !ok {
				continue
			}
			insert := fmt.Sprintf("\n%s:hover { %s: %s; }", b.Selector, d.Property, hover.Reference())
			out = append(out, proposal{
				edit: types.Edit{
					Kind:       types.EditStateVariant,
					Span:       types.Span{Start: b.Span.End, End: b.Span.End},
					Anchor:     b.Selector + ":hover",
					Before:     "",
					After:      insert,
					Confidence: 0.80,
					RuleID:     "state-hover",
				},
				class:   ClassAdvisory,
				block:   bi,
				prop:    d.Property,
				penalty: e.blockPenaltyFor(doc, bi),
			})
			break
		}
	}
	return out
}
