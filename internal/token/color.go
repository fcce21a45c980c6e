package token

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Colors are canonicalized to lowercase hex sRGB with explicit alpha only
// when alpha < 1. Matching is exact after normalization; a non-exact color
// is never auto-applied, only suggested.

var (
	hexRe = regexp.MustCompile(`^#([0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	rgbRe = regexp.MustCompile(`^rgba?\(\s*([\d.]+)\s*[, ]\s*([\d.]+)\s*[, ]\s*([\d.]+)\s*(?:[,/]\s*([\d.]+%?)\s*)?\)$`)
	hslRe = regexp.MustCompile(`^hsla?\(\s*([\d.]+)(?:deg)?\s*[, ]\s*([\d.]+)%\s*[, ]\s*([\d.]+)%\s*(?:[,/]\s*([\d.]+%?)\s*)?\)$`)
)

// Named colors the engine recognizes in raw values. Anything else passes
// through unmatched rather than erroring.
var namedColors = map[string]string{
	"white":       "#ffffff",
	"black":       "#000000",
	"red":         "#ff0000",
	"green":       "#008000",
	"blue":        "#0000ff",
	"transparent": "#00000000",
}

// NormalizeColor canonicalizes a raw CSS color to lowercase hex sRGB.
// Returns false for values it cannot interpret; it never errors on
// malformed input.
func NormalizeColor(raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", false
	}

	if hex, ok := namedColors[v]; ok {
		return hex, true
	}

	if hexRe.MatchString(v) {
		return expandHex(v), true
	}

	if m := rgbRe.FindStringSubmatch(v); m != nil {
		r := clamp255(parseFloat(m[1]))
		g := clamp255(parseFloat(m[2]))
		b := clamp255(parseFloat(m[3]))
		return withAlpha(fmt.Sprintf("#%02x%02x%02x", r, g, b), m[4]), true
	}

	if m := hslRe.FindStringSubmatch(v); m != nil {
		h := parseFloat(m[1])
		sat := parseFloat(m[2]) / 100
		lig := parseFloat(m[3]) / 100
		c := colorful.Hsl(h, sat, lig).Clamped()
		r, g, b := c.RGB255()
		return withAlpha(fmt.Sprintf("#%02x%02x%02x", r, g, b), m[4]), true
	}

	return "", false
}

// expandHex lowercases and expands 3/4-digit hex to 6/8-digit form, and
// drops a fully opaque alpha channel.
func expandHex(v string) string {
	body := v[1:]
	if len(body) == 3 || len(body) == 4 {
		var sb strings.Builder
		sb.WriteByte('#')
		for _, c := range body {
			sb.WriteRune(c)
			sb.WriteRune(c)
		}
		body = sb.String()[1:]
	}
	if len(body) == 8 && strings.HasSuffix(body, "ff") {
		body = body[:6]
	}
	return "#" + body
}

func withAlpha(hex, alpha string) string {
	if alpha == "" {
		return hex
	}
	a := parseFloat(strings.TrimSuffix(alpha, "%"))
	if strings.HasSuffix(alpha, "%") {
		a /= 100
	}
	if a >= 1 {
		return hex
	}
	return fmt.Sprintf("%s%02x", hex, clamp255(a*255))
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func clamp255(f float64) int {
	i := int(math.Round(f))
	if i < 0 {
		return 0
	}
	if i > 255 {
		return 255
	}
	return i
}

// Contrast returns the WCAG 2.1 contrast ratio between two colors,
// in [1, 21]. Unparseable inputs yield 0 so callers can skip the check.
func Contrast(fg, bg string) float64 {
	lf, ok1 := relativeLuminance(fg)
	lb, ok2 := relativeLuminance(bg)
	if !ok1 || !ok2 {
		return 0
	}
	lighter, darker := lf, lb
	if darker > lighter {
		lighter, darker = darker, lighter
	}
	return (lighter + 0.05) / (darker + 0.05)
}

// relativeLuminance implements the WCAG 2.1 definition over sRGB.
func relativeLuminance(raw string) (float64, bool) {
	hex, ok := NormalizeColor(raw)
	if !ok {
		return 0, false
	}
	if len(hex) > 7 {
		hex = hex[:7] // alpha ignored for luminance
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return 0, false
	}
	r, g, b := c.LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b, true
}

// ColorDistance returns the perceptual distance between two colors for
// near-match suggestions. Unparseable inputs yield +Inf.
func ColorDistance(a, b string) float64 {
	ha, ok1 := NormalizeColor(a)
	hb, ok2 := NormalizeColor(b)
	if !ok1 || !ok2 {
		return math.Inf(1)
	}
	if len(ha) > 7 {
		ha = ha[:7]
	}
	if len(hb) > 7 {
		hb = hb[:7]
	}
	ca, err1 := colorful.Hex(ha)
	cb, err2 := colorful.Hex(hb)
	if err1 != nil || err2 != nil {
		return math.Inf(1)
	}
	return ca.DistanceLab(cb)
}
