package vision

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	xhtml "golang.org/x/net/html"

	"brandwise/internal/logging"
	"brandwise/internal/parser"
	"brandwise/internal/token"
	"brandwise/internal/types"
)

// DeterministicCritic scores a fragment from measurable source properties
// only. It backs the visual loop when the vision model is unavailable, and
// needs the fragment rather than pixels.
type DeterministicCritic struct{}

// spacingScale is the systematic scale off-scale values are measured
// against (multiples of 4, plus the sub-grid steps).
var spacingScale = map[float64]bool{
	0: true, 1: true, 2: true, 4: true, 8: true, 12: true, 16: true,
	20: true, 24: true, 32: true, 40: true, 48: true, 56: true, 64: true,
}

// CritiqueFragment measures the fragment's stylesheet and inline styles
// against the fixed thresholds and scores the same six dimensions as the
// vision critic.
func (DeterministicCritic) CritiqueFragment(ctx context.Context, frag types.Fragment) (*types.VisualAnalysis, error) {
	timer := logging.StartTimer(logging.CategoryVision, "CritiqueFragment")
	defer timer.Stop()

	doc := parser.Parse(ctx, frag)
	if !doc.OK() {
		return nil, fmt.Errorf("fragment does not parse")
	}

	m := newMeasurements()
	m.collectCSS(doc)
	if frag.CodeType == types.CodeHTML {
		m.collectMarkup(frag.Bytes)
	}

	violations := m.detect()

	dims := types.DimensionScores{
		Hierarchy: 100, Typography: 100, Spacing: 100,
		Color: 100, Accessibility: 100, Brand: 100,
	}
	criticals := 0
	for _, v := range violations {
		if v.Severity == types.SeverityCritical {
			criticals++
		}
		deduct(&dims, v)
	}

	gain := criticals * 10
	if gain > 40 {
		gain = 40
	}

	return &types.VisualAnalysis{
		AnalysisID:      uuid.NewString(),
		OverallScore:    weightedOverall(dims, criticals),
		DimensionScores: dims,
		Violations:      violations,
		ExecutionOrder:  DeriveExecutionOrder(violations),
		EstimatedGain:   gain,
		CreatedAt:       time.Now(),
	}, nil
}

func deduct(d *types.DimensionScores, v types.Violation) {
	amount := map[types.Severity]int{
		types.SeverityCritical: 40,
		types.SeverityHigh:     25,
		types.SeverityMedium:   10,
		types.SeverityLow:      5,
	}[v.Severity]

	sub := func(dim *int) {
		*dim -= amount
		if *dim < 0 {
			*dim = 0
		}
	}

	switch v.RecommendedEndpoint {
	case EndpointTypography:
		sub(&d.Typography)
		if strings.Contains(v.Location, "h1") {
			sub(&d.Hierarchy)
		}
	case EndpointAccessibility:
		sub(&d.Accessibility)
		if strings.Contains(v.Evidence, "contrast") {
			sub(&d.Color)
		}
	case EndpointSpacing:
		sub(&d.Spacing)
	case EndpointColor:
		sub(&d.Color)
	default:
		sub(&d.Brand)
	}
}

// measurements accumulates the per-selector style facts the detector needs.
type measurements struct {
	fontSize   map[string]float64 // selector -> px
	lineHeight map[string]float64
	padding    map[string][]float64
	spacings   []measuredSpacing
	colorPairs []colorPair
}

type measuredSpacing struct {
	selector string
	property string
	px       float64
}

type colorPair struct {
	selector string
	fg, bg   string
}

func newMeasurements() *measurements {
	return &measurements{
		fontSize:   map[string]float64{},
		lineHeight: map[string]float64{},
		padding:    map[string][]float64{},
	}
}

func (m *measurements) collectCSS(doc *parser.Document) {
	for bi := range doc.Blocks {
		sel := strings.ToLower(doc.Blocks[bi].Selector)
		var fg, bg string
		for _, d := range doc.BlockDecls(bi) {
			m.record(sel, d.Property, d.Value)
			switch d.Property {
			case "color":
				fg = d.Value
			case "background", "background-color":
				bg = d.Value
			}
		}
		if fg != "" && bg != "" {
			m.colorPairs = append(m.colorPairs, colorPair{selector: sel, fg: fg, bg: bg})
		}
	}
}

func (m *measurements) record(sel, prop, value string) {
	switch prop {
	case "font-size":
		if px, ok := token.ParseLength(value); ok {
			m.fontSize[sel] = px
		}
	case "line-height":
		if lh, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			m.lineHeight[sel] = lh
		}
	case "padding", "padding-top", "padding-bottom", "padding-left", "padding-right":
		for _, part := range strings.Fields(value) {
			if px, ok := token.ParseLength(part); ok {
				m.padding[sel] = append(m.padding[sel], px)
				m.spacings = append(m.spacings, measuredSpacing{sel, prop, px})
			}
		}
	case "margin", "margin-top", "margin-bottom", "margin-left", "margin-right", "gap":
		for _, part := range strings.Fields(value) {
			if px, ok := token.ParseLength(part); ok {
				m.spacings = append(m.spacings, measuredSpacing{sel, prop, px})
			}
		}
	}
}

// collectMarkup walks the HTML for inline style attributes, keyed by tag
// name so thresholds can target body text and headings.
func (m *measurements) collectMarkup(src []byte) {
	root, err := xhtml.Parse(strings.NewReader(string(src)))
	if err != nil {
		return
	}
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			for _, attr := range n.Attr {
				if attr.Key != "style" {
					continue
				}
				for _, decl := range strings.Split(attr.Val, ";") {
					kv := strings.SplitN(decl, ":", 2)
					if len(kv) != 2 {
						continue
					}
					m.record(n.Data, strings.TrimSpace(strings.ToLower(kv[0])), strings.TrimSpace(kv[1]))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

func isBodySelector(sel string) bool {
	return sel == "body" || sel == "p" || sel == "html" ||
		strings.HasSuffix(sel, " p") || strings.Contains(sel, "body")
}

func isButtonSelector(sel string) bool {
	return strings.Contains(sel, "button") || strings.Contains(sel, "btn") || sel == "a"
}

// detect applies the fixed thresholds over the measurements.
func (m *measurements) detect() []types.Violation {
	var out []types.Violation

	for sel, px := range m.fontSize {
		switch {
		case strings.Contains(sel, "h1") && px < MinH1FontPx:
			out = append(out, types.Violation{
				Severity:            types.SeverityCritical,
				Location:            sel,
				Evidence:            fmt.Sprintf("h1 font-size %gpx below %gpx", px, MinH1FontPx),
				RecommendedEndpoint: EndpointTypography,
				Parameters:          map[string]string{"min-font-size": fmt.Sprintf("%gpx", MinH1FontPx), "selector": sel},
				Confidence:          95,
			})
		case isBodySelector(sel) && px < MinBodyFontPx:
			out = append(out, types.Violation{
				Severity:            types.SeverityCritical,
				Location:            sel,
				Evidence:            fmt.Sprintf("body text %gpx below %gpx", px, MinBodyFontPx),
				RecommendedEndpoint: EndpointTypography,
				Parameters:          map[string]string{"min-font-size": fmt.Sprintf("%gpx", MinBodyFontPx), "selector": sel},
				Confidence:          95,
			})
		}
	}

	for sel, lh := range m.lineHeight {
		if lh > 0 && lh < MinLineHeight {
			out = append(out, types.Violation{
				Severity:            types.SeverityHigh,
				Location:            sel,
				Evidence:            fmt.Sprintf("line-height %g below %g", lh, MinLineHeight),
				RecommendedEndpoint: EndpointTypography,
				Parameters:          map[string]string{"line-height": fmt.Sprintf("%g", MinLineHeight), "selector": sel},
				Confidence:          90,
			})
		}
	}

	for _, pair := range m.colorPairs {
		ratio := token.Contrast(pair.fg, pair.bg)
		if ratio > 0 && ratio < MinContrast {
			out = append(out, types.Violation{
				Severity:            types.SeverityCritical,
				Location:            pair.selector,
				Evidence:            fmt.Sprintf("contrast %.2f:1 below %g:1", ratio, MinContrast),
				RecommendedEndpoint: EndpointAccessibility,
				Parameters:          map[string]string{"min-contrast": fmt.Sprintf("%g", MinContrast), "selector": pair.selector},
				Confidence:          95,
			})
		}
	}

	for sel, pads := range m.padding {
		if !isButtonSelector(sel) {
			continue
		}
		// Approximate rendered height: vertical padding + a text line.
		vertical := pads[0]
		if len(pads) >= 3 {
			vertical = pads[0] + pads[2]
		} else {
			vertical *= 2
		}
		font := m.fontSize[sel]
		if font == 0 {
			font = 16
		}
		if height := vertical + font; height < MinTouchTargetPx {
			out = append(out, types.Violation{
				Severity:            types.SeverityCritical,
				Location:            sel,
				Evidence:            fmt.Sprintf("touch target ~%gpx below %gpx", height, MinTouchTargetPx),
				RecommendedEndpoint: EndpointAccessibility,
				Parameters:          map[string]string{"min-padding": "16px", "selector": sel},
				Confidence:          85,
			})
		}
	}

	offScale := map[string]bool{}
	for _, sp := range m.spacings {
		onGrid := sp.px == float64(int(sp.px/4))*4
		if spacingScale[sp.px] || onGrid || sp.px < 0 || offScale[sp.selector] {
			continue
		}
		offScale[sp.selector] = true
		out = append(out, types.Violation{
			Severity:            types.SeverityMedium,
			Location:            sp.selector,
			Evidence:            fmt.Sprintf("%s %gpx off the 4px scale", sp.property, sp.px),
			RecommendedEndpoint: EndpointSpacing,
			Parameters:          map[string]string{"selector": sp.selector},
			Confidence:          75,
		})
	}

	return out
}
