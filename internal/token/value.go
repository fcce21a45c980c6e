package token

import (
	"regexp"
	"strconv"
	"strings"
)

// Length, duration, shadow and gradient parsing. These functions return
// false for raw values they cannot interpret; they never error. Upstream
// parsers are responsible for handing in well-formed declaration values.

var lengthRe = regexp.MustCompile(`^(-?[\d.]+)(px|rem|em)?$`)

// ParseLength converts a CSS length to pixels at a 16px root.
// Bare zero is accepted; other unitless values are not.
func ParseLength(raw string) (float64, bool) {
	m := lengthRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "px":
		return f, true
	case "rem", "em":
		return f * RootFontSize, true
	case "":
		if f == 0 {
			return 0, true
		}
		return 0, false
	}
	return 0, false
}

var durationRe = regexp.MustCompile(`^([\d.]+)(ms|s)$`)

// ParseDuration converts a CSS time to milliseconds.
func ParseDuration(raw string) (float64, bool) {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if m[2] == "s" {
		f *= 1000
	}
	return f, true
}

// Shadow is the structural form of a box-shadow layer.
type Shadow struct {
	Inset   bool
	OffsetX float64 // px
	OffsetY float64 // px
	Blur    float64 // px
	Spread  float64 // px
	Color   string  // normalized hex, empty when omitted
}

// ParseShadow parses a single box-shadow layer into its structural form.
// Multi-layer shadows (comma separated) are rejected; elevation tokens are
// single layers by construction.
func ParseShadow(raw string) (*Shadow, bool) {
	v := strings.TrimSpace(raw)
	if v == "" || v == "none" || strings.Contains(v, ",") && !strings.Contains(v, "rgb") {
		return nil, false
	}

	sh := &Shadow{}
	var lengths []float64

	for _, part := range splitShadowParts(v) {
		if part == "inset" {
			sh.Inset = true
			continue
		}
		if px, ok := ParseLength(part); ok {
			lengths = append(lengths, px)
			continue
		}
		if hex, ok := NormalizeColor(part); ok {
			sh.Color = hex
			continue
		}
		return nil, false
	}

	if len(lengths) < 2 || len(lengths) > 4 {
		return nil, false
	}
	sh.OffsetX = lengths[0]
	sh.OffsetY = lengths[1]
	if len(lengths) > 2 {
		sh.Blur = lengths[2]
	}
	if len(lengths) > 3 {
		sh.Spread = lengths[3]
	}
	return sh, true
}

// splitShadowParts splits on spaces while keeping rgb()/hsl() calls whole.
func splitShadowParts(v string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range v {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ' ':
			if depth == 0 {
				if i > start {
					parts = append(parts, strings.ToLower(v[start:i]))
				}
				start = i + 1
			}
		}
	}
	if start < len(v) {
		parts = append(parts, strings.ToLower(v[start:]))
	}
	return parts
}

// withinTolerance reports whether got is within Tolerance of want.
// A zero candidate only matches exactly.
func withinTolerance(got, want float64) bool {
	if want == 0 {
		return got == 0
	}
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= Tolerance*abs(want)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// GradientStop is one color stop with an optional position in percent.
type GradientStop struct {
	Color    string
	Position float64 // percent, -1 when unspecified
}

// Gradient is the structured form of a linear-gradient value.
type Gradient struct {
	Angle float64 // degrees
	Stops []GradientStop
}

var gradientRe = regexp.MustCompile(`^linear-gradient\(\s*(.+)\)$`)

// ParseGradient parses a linear-gradient into angle + stop list. Radial and
// conic gradients are out of the preset vocabulary and return false.
func ParseGradient(raw string) (*Gradient, bool) {
	m := gradientRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return nil, false
	}

	g := &Gradient{Angle: 180} // CSS default: to bottom
	args := splitTopLevel(m[1], ',')
	if len(args) == 0 {
		return nil, false
	}

	first := strings.TrimSpace(args[0])
	rest := args
	if strings.HasSuffix(first, "deg") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(first, "deg"), 64)
		if err != nil {
			return nil, false
		}
		g.Angle = f
		rest = args[1:]
	} else if strings.HasPrefix(first, "to ") {
		switch strings.TrimSpace(strings.TrimPrefix(first, "to ")) {
		case "top":
			g.Angle = 0
		case "right":
			g.Angle = 90
		case "bottom":
			g.Angle = 180
		case "left":
			g.Angle = 270
		default:
			return nil, false
		}
		rest = args[1:]
	}

	for _, arg := range rest {
		fields := splitShadowParts(strings.TrimSpace(arg))
		if len(fields) == 0 {
			return nil, false
		}
		hex, ok := NormalizeColor(fields[0])
		if !ok {
			return nil, false
		}
		stop := GradientStop{Color: hex, Position: -1}
		if len(fields) > 1 {
			p := strings.TrimSuffix(fields[1], "%")
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, false
			}
			stop.Position = f
		}
		g.Stops = append(g.Stops, stop)
	}
	if len(g.Stops) < 2 {
		return nil, false
	}
	return g, true
}

// splitTopLevel splits on sep outside parentheses.
func splitTopLevel(v string, sep rune) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range v {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, v[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, v[start:])
	return parts
}

var wsRe = regexp.MustCompile(`\s+`)

func normalizeEasing(v string) string {
	return wsRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(v)), "")
}

// foldFamily normalizes a font-family list for comparison: lowercase,
// quotes stripped, single spacing.
func foldFamily(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, `"`, "")
	v = strings.ReplaceAll(v, `'`, "")
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = wsRe.ReplaceAllString(strings.TrimSpace(parts[i]), " ")
	}
	return strings.Join(parts, ",")
}
