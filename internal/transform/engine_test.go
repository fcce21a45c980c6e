package transform

import (
	"context"
	"strings"
	"testing"

	"brandwise/internal/token"
	"brandwise/internal/types"
)

func testSnapshot(extra ...token.BrandToken) *token.Snapshot {
	tokens := []token.BrandToken{
		{Category: token.CategoryColor, Name: "primary", Value: "#1b3668"},
		{Category: token.CategorySpacing, Name: "spacing-md", Value: "16px"},
		{Category: token.CategorySpacing, Name: "spacing-lg", Value: "32px"},
		{Category: token.CategoryRadius, Name: "radius-lg", Value: "8px"},
		{Category: token.CategoryElevation, Name: "elevation-1", Value: "0 1px 3px rgba(0,0,0,0.2)"},
	}
	tokens = append(tokens, extra...)
	return token.BuildSnapshot(&token.BrandPack{ID: "acme", Version: "1.0.0", Tokens: tokens}, nil)
}

func run(t *testing.T, src string, ct types.CodeType, snap *token.Snapshot, opts Options) *Result {
	t.Helper()
	e := New(DefaultPolicy())
	return e.Transform(context.Background(), types.Fragment{CodeType: ct, Bytes: []byte(src)}, snap, opts)
}

func TestExactColorAutoApply(t *testing.T) {
	res := run(t, ".btn { color: #1B3668; }", types.CodeCSS, testSnapshot(), Options{})

	if !strings.Contains(string(res.Code), "color: var(--color-primary)") {
		t.Fatalf("output = %s", res.Code)
	}
	if len(res.ChangeLog.Applied) != 1 {
		t.Fatalf("expected exactly one applied edit, got %d", len(res.ChangeLog.Applied))
	}
	e := res.ChangeLog.Applied[0]
	if e.Kind != types.EditColorToken || e.Before != "#1B3668" {
		t.Errorf("unexpected edit %+v", e)
	}
}

func TestSpacingCombinedEdit(t *testing.T) {
	res := run(t, ".card { padding: 16.5px 31px; }", types.CodeCSS, testSnapshot(), Options{})

	if !strings.Contains(string(res.Code), "padding: var(--spacing-md) var(--spacing-lg)") {
		t.Fatalf("output = %s", res.Code)
	}
	if len(res.ChangeLog.Applied) != 1 {
		t.Fatalf("both values must combine into a single edit, got %d", len(res.ChangeLog.Applied))
	}
}

func TestAmbiguityGuardSuppressed(t *testing.T) {
	snap := token.BuildSnapshot(&token.BrandPack{ID: "p", Version: "1.0.0", Tokens: []token.BrandToken{
		{Category: token.CategorySpacing, Name: "spacing-sm", Value: "8px"},
		{Category: token.CategorySpacing, Name: "spacing-sm2", Value: "8.1px"},
	}}, nil)

	res := run(t, ".x { margin: 8.05px; }", types.CodeCSS, snap, Options{})

	if !res.ChangeLog.Empty() {
		t.Fatalf("ambiguous value must not apply: %+v", res.ChangeLog.Applied)
	}
	if len(res.ChangeLog.Advisory) != 0 {
		t.Fatalf("suggestion below the advisory floor must be suppressed: %+v", res.ChangeLog.Advisory)
	}
	foundAmbiguous := false
	for _, d := range res.ChangeLog.Dropped {
		if d.Reason == types.DropAmbiguous {
			foundAmbiguous = true
		}
	}
	if !foundAmbiguous {
		t.Error("dropped list should record the ambiguity")
	}
	if string(res.Code) != ".x { margin: 8.05px; }" {
		t.Errorf("code changed: %s", res.Code)
	}
}

func TestContrastRegressionBlocked(t *testing.T) {
	// #f8f8f8 is a near match for #ffffff but lowers contrast on the cream
	// background, so the auto-apply (under "all") must be demoted.
	snap := testSnapshot(token.BrandToken{Category: token.CategoryColor, Name: "paper", Value: "#f8f8f8"})

	res := run(t, ".warn { color: #ffffff; background: #ffeecc; }", types.CodeCSS, snap, Options{AutoApply: AutoAll})

	if !res.ChangeLog.Empty() {
		t.Fatalf("regressive color edit must not apply: %+v", res.ChangeLog.Applied)
	}
	guard := false
	for _, d := range res.Diagnostics {
		if d.Kind == types.DiagGuardrailViolation {
			guard = true
		}
	}
	if !guard {
		t.Errorf("expected guardrail-violation diagnostic, got %+v", res.Diagnostics)
	}
}

func TestChangeCapDemotesExcess(t *testing.T) {
	src := `.a { color: #1b3668; }
.b { color: #1b3668; }
.c { color: #1b3668; }
.d { color: #1b3668; }
.e { color: #1b3668; }
.f { color: #1b3668; }
.g { color: #1b3668; }`

	res := run(t, src, types.CodeCSS, testSnapshot(), Options{})

	if got := len(res.ChangeLog.Applied); got != 5 {
		t.Fatalf("cap is 5 auto edits, applied %d", got)
	}
	capDrops := 0
	for _, d := range res.ChangeLog.Dropped {
		if d.Reason == types.DropChangeCap {
			capDrops++
		}
	}
	if capDrops != 2 {
		t.Errorf("expected 2 cap demotions, got %d", capDrops)
	}
}

func TestIdempotence(t *testing.T) {
	src := ".btn { color: #1B3668; padding: 16px; border-radius: 8px; }"
	snap := testSnapshot()

	first := run(t, src, types.CodeCSS, snap, Options{})
	if first.ChangeLog.Empty() {
		t.Fatal("first pass should apply edits")
	}

	second := run(t, string(first.Code), types.CodeCSS, snap, Options{})
	if !second.ChangeLog.Empty() {
		t.Fatalf("second pass must be empty, applied %+v", second.ChangeLog.Applied)
	}
	if string(second.Code) != string(first.Code) {
		t.Error("second pass changed bytes")
	}
}

func TestDeterminism(t *testing.T) {
	src := ".btn { color: #1B3668; padding: 16px 32px; box-shadow: 0 1px 3px rgba(0,0,0,0.2); }"
	snap := testSnapshot()

	a := run(t, src, types.CodeCSS, snap, Options{})
	b := run(t, src, types.CodeCSS, snap, Options{})
	if string(a.Code) != string(b.Code) {
		t.Error("repeated transforms differ")
	}
	if len(a.ChangeLog.Applied) != len(b.ChangeLog.Applied) {
		t.Error("change logs differ")
	}
}

func TestVendorExclusion(t *testing.T) {
	e := New(DefaultPolicy())
	frag := types.Fragment{
		CodeType: types.CodeCSS,
		Bytes:    []byte(".x { color: #1b3668; }"),
		FilePath: "web/node_modules/lib/styles.css",
	}
	res := e.Transform(context.Background(), frag, testSnapshot(), Options{})

	if !res.ChangeLog.Empty() {
		t.Fatal("vendor fragment must never be transformed")
	}
	if string(res.Code) != string(frag.Bytes) {
		t.Error("vendor fragment bytes changed")
	}
}

func TestParseErrorEchoesInput(t *testing.T) {
	res := run(t, ".x { color: ", types.CodeCSS, testSnapshot(), Options{})
	if string(res.Code) != ".x { color: " {
		t.Error("unparseable input must be echoed untouched")
	}
	if len(res.Diagnostics) == 0 || res.Diagnostics[0].Kind != types.DiagParseError {
		t.Errorf("expected parse-error diagnostic, got %+v", res.Diagnostics)
	}
}

func TestNoSnapshotStructuralOnly(t *testing.T) {
	res := run(t, ".x { color: #1b3668; }", types.CodeCSS, nil, Options{})
	if !res.ChangeLog.Empty() {
		t.Fatal("token rules must not run without a snapshot")
	}
}

func TestTailwindClassRewrite(t *testing.T) {
	src := `const B = () => <button className="p-4 rounded-lg custom-x">Go</button>;`
	res := run(t, src, types.CodeJSX, testSnapshot(), Options{})

	out := string(res.Code)
	if !strings.Contains(out, "p-[var(--spacing-md)]") {
		t.Errorf("spacing utility not rewritten: %s", out)
	}
	if !strings.Contains(out, "rounded-[var(--radius-lg)]") {
		t.Errorf("radius utility not rewritten: %s", out)
	}
	if !strings.Contains(out, "custom-x") {
		t.Error("unmapped class must stay intact")
	}

	// Rewritten output is a fixed point.
	again := run(t, out, types.CodeJSX, testSnapshot(), Options{})
	if !again.ChangeLog.Empty() {
		t.Errorf("className rewrite not idempotent: %+v", again.ChangeLog.Applied)
	}
}

func TestTernaryStructurePreserved(t *testing.T) {
	src := `const C = ({on}) => <i className={on ? "p-4" : "p-8"}>x</i>;`
	res := run(t, src, types.CodeJSX, testSnapshot(token.BrandToken{
		Category: token.CategorySpacing, Name: "spacing-xl", Value: "32px",
	}), Options{})

	out := string(res.Code)
	if !strings.Contains(out, "?") || !strings.Contains(out, ":") {
		t.Fatalf("ternary structure changed: %s", out)
	}
	if !strings.Contains(out, "p-[var(--spacing-md)]") {
		t.Errorf("consequence branch untouched: %s", out)
	}
}

func TestHTMLStyleRoundTrip(t *testing.T) {
	src := `<html><head><style>.hero { color: #1b3668; margin: 16px; }</style></head><body></body></html>`
	res := run(t, src, types.CodeHTML, testSnapshot(), Options{})

	out := string(res.Code)
	if !strings.Contains(out, "color: var(--color-primary)") {
		t.Errorf("style block not rewritten: %s", out)
	}
	if !strings.Contains(out, "<style>") || !strings.Contains(out, "</html>") {
		t.Error("markup structure damaged")
	}

	again := run(t, out, types.CodeHTML, testSnapshot(), Options{})
	if !again.ChangeLog.Empty() {
		t.Errorf("html transform not idempotent: %+v", again.ChangeLog.Applied)
	}
}

func TestStyledTemplateHolesUntouched(t *testing.T) {
	src := "const Box = styled.div`\n  color: #1b3668;\n  width: ${p => p.w}px;\n`;"
	res := run(t, src, types.CodeJS, testSnapshot(), Options{})

	out := string(res.Code)
	if !strings.Contains(out, "var(--color-primary)") {
		t.Errorf("styled body color not rewritten: %s", out)
	}
	if !strings.Contains(out, "${p => p.w}") {
		t.Errorf("interpolation hole modified: %s", out)
	}
}

func TestGuidedTypographyFix(t *testing.T) {
	src := "body { font-size: 12px; line-height: 1.2; }"
	g := &types.VisualGuidance{
		FocusArea:  "typography",
		Adjustment: map[string]string{"min-font-size": "16px", "line-height": "1.4"},
	}
	res := run(t, src, types.CodeCSS, nil, Options{AutoApply: AutoAll, Guidance: g})

	out := string(res.Code)
	if !strings.Contains(out, "font-size: 16px") {
		t.Errorf("font-size not raised: %s", out)
	}
	if !strings.Contains(out, "line-height: 1.4") {
		t.Errorf("line-height not raised: %s", out)
	}
}

func TestOptimizeIdempotent(t *testing.T) {
	src := `/* a comment */
.a {
  margin: 8px   8px 8px 8px;
  color: #fff;
  color: #000;
}`
	res := run(t, src, types.CodeCSS, nil, Options{Optimize: 2})
	out := string(res.Code)

	if strings.Contains(out, "comment") {
		t.Error("comment not stripped")
	}
	if strings.Contains(out, "#fff") {
		t.Errorf("duplicate declaration not merged: %s", out)
	}
	if !strings.Contains(out, "margin: 8px;") {
		t.Errorf("shorthand not collapsed: %s", out)
	}

	again := run(t, out, types.CodeCSS, nil, Options{Optimize: 2})
	if string(again.Code) != out {
		t.Errorf("optimization not idempotent:\n%s\nvs\n%s", out, again.Code)
	}
}

func TestVendorPatternMatching(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		path string
		want bool
	}{
		{"src/app.css", false},
		{"node_modules/x/y.css", true},
		{"a/b/vendor/c.css", true},
		{"assets/site.min.css", true},
		{"styles/main.css", false},
		{"", false},
	}
	for _, c := range cases {
		if got := p.VendorExcluded(c.path); got != c.want {
			t.Errorf("VendorExcluded(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}
