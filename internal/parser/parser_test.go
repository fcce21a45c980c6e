package parser

import (
	"context"
	"strings"
	"testing"

	"brandwise/internal/types"
)

func parseStr(t *testing.T, ct types.CodeType, src string) *Document {
	t.Helper()
	doc := Parse(context.Background(), types.Fragment{CodeType: ct, Bytes: []byte(src)})
	return doc
}

func TestParseCSSDeclarations(t *testing.T) {
	src := `/* header */
.btn {
  color: #1B3668;
  padding: 16px 32px;
}
.card { margin: 8px !important; }`

	doc := parseStr(t, types.CodeCSS, src)
	if !doc.OK() {
		t.Fatalf("parse failed: %+v", doc.Diagnostics)
	}
	if len(doc.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(doc.Blocks))
	}
	if doc.Blocks[0].Selector != ".btn" {
		t.Errorf("selector = %q, want .btn", doc.Blocks[0].Selector)
	}
	if len(doc.Decls) != 3 {
		t.Fatalf("expected 3 declarations, got %d", len(doc.Decls))
	}

	d := doc.Decls[0]
	if d.Property != "color" || d.Value != "#1B3668" {
		t.Errorf("decl 0 = %q: %q", d.Property, d.Value)
	}
	// Spans must be byte-accurate into the original source.
	if got := src[d.ValueSpan.Start:d.ValueSpan.End]; got != "#1B3668" {
		t.Errorf("value span slices to %q", got)
	}

	last := doc.Decls[2]
	if !last.Important {
		t.Error("expected !important flag on .card margin")
	}
	if got := src[last.ValueSpan.Start:last.ValueSpan.End]; got != "8px" {
		t.Errorf("important value span slices to %q, want 8px", got)
	}
}

func TestParseCSSWholeOrFail(t *testing.T) {
	doc := parseStr(t, types.CodeCSS, ".btn { color: #fff;")
	if doc.OK() {
		t.Fatal("unbalanced CSS should fail whole")
	}
	if len(doc.Diagnostics) != 1 || doc.Diagnostics[0].Kind != types.DiagParseError {
		t.Fatalf("expected a parse-error diagnostic, got %+v", doc.Diagnostics)
	}
	if len(doc.Decls) != 0 {
		t.Error("failed parse must not emit a partial edit surface")
	}
}

func TestParseCSSKeyframes(t *testing.T) {
	src := `@keyframes spin { from { transform: rotate(0); } to { transform: rotate(360deg); } }`
	doc := parseStr(t, types.CodeCSS, src)
	if !doc.OK() {
		t.Fatalf("parse failed: %+v", doc.Diagnostics)
	}
	for _, b := range doc.Blocks {
		if !b.InKeyframes {
			t.Errorf("block %q should be marked in-keyframes", b.Selector)
		}
	}
}

func TestParseHTMLStyleBlock(t *testing.T) {
	src := `<html><head><style>
.hero { color: #1b3668; }
</style></head><body><div style="margin: 8px">x</div></body></html>`

	doc := parseStr(t, types.CodeHTML, src)
	if !doc.OK() {
		t.Fatalf("parse failed: %+v", doc.Diagnostics)
	}
	if len(doc.Decls) != 2 {
		t.Fatalf("expected 2 declarations (style block + inline), got %d", len(doc.Decls))
	}

	for _, d := range doc.Decls {
		got := src[d.ValueSpan.Start:d.ValueSpan.End]
		if got != d.Value {
			t.Errorf("span slices to %q, decl value is %q", got, d.Value)
		}
	}

	var inline *Declaration
	for i := range doc.Decls {
		if doc.Decls[i].Property == "margin" {
			inline = &doc.Decls[i]
		}
	}
	if inline == nil {
		t.Fatal("inline style declaration missing")
	}
	if doc.Blocks[inline.Block].Selector != inlineSelector {
		t.Errorf("inline decl selector = %q", doc.Blocks[inline.Block].Selector)
	}
}

func TestParseJSXClassNameForms(t *testing.T) {
	src := `export function Button({active}) {
  return (
    <div>
      <button className="p-4 rounded-lg">A</button>
      <span className={active ? "text-sm bold" : "text-xs"}>B</span>
      <i className={` + "`base ${active} tail`" + `}>C</i>
    </div>
  );
}`

	doc := parseStr(t, types.CodeJSX, src)
	if !doc.OK() {
		t.Fatalf("parse failed: %+v", doc.Diagnostics)
	}

	var values []string
	for _, c := range doc.Classes {
		values = append(values, c.Value)
		if got := src[c.Span.Start:c.Span.End]; got != c.Value {
			t.Errorf("class span slices to %q, want %q", got, c.Value)
		}
	}

	want := map[string]bool{"p-4 rounded-lg": true, "text-sm bold": true, "text-xs": true}
	found := 0
	for _, v := range values {
		if want[v] {
			found++
		}
	}
	if found != 3 {
		t.Errorf("missing className literals, got %v", values)
	}

	// Template chunks around the interpolation, hole recorded.
	if len(doc.Holes) != 1 {
		t.Fatalf("expected 1 interpolation hole, got %d", len(doc.Holes))
	}
	hasBase, hasTail := false, false
	for _, v := range values {
		if strings.Contains(v, "base") {
			hasBase = true
		}
		if strings.Contains(v, "tail") {
			hasTail = true
		}
	}
	if !hasBase || !hasTail {
		t.Errorf("template chunks missing: %v", values)
	}
}

func TestParseStyledTemplate(t *testing.T) {
	src := "const Box = styled.div`\n  color: #1b3668;\n  padding: ${props => props.pad}px;\n`;"

	doc := parseStr(t, types.CodeJS, src)
	if !doc.OK() {
		t.Fatalf("parse failed: %+v", doc.Diagnostics)
	}

	var colorDecl *Declaration
	for i := range doc.Decls {
		if doc.Decls[i].Property == "color" {
			colorDecl = &doc.Decls[i]
		}
	}
	if colorDecl == nil {
		t.Fatal("styled body color declaration missing")
	}
	if got := src[colorDecl.ValueSpan.Start:colorDecl.ValueSpan.End]; got != "#1b3668" {
		t.Errorf("styled value span slices to %q", got)
	}

	if len(doc.Holes) == 0 {
		t.Fatal("interpolation should be recorded as a hole")
	}
	for _, d := range doc.Decls {
		if doc.InHole(d.ValueSpan) && d.Property == "color" {
			t.Error("color declaration must not intersect a hole")
		}
	}
}

func TestParseCSSObjectForm(t *testing.T) {
	src := `const style = css({ backgroundColor: "#1b3668", padding: "16px", width: 4 });`

	doc := parseStr(t, types.CodeJS, src)
	if !doc.OK() {
		t.Fatalf("parse failed: %+v", doc.Diagnostics)
	}

	props := map[string]string{}
	for _, d := range doc.Decls {
		props[d.Property] = d.Value
	}
	if props["background-color"] != "#1b3668" {
		t.Errorf("camelCase key not converted: %v", props)
	}
	if props["padding"] != "16px" {
		t.Errorf("padding missing: %v", props)
	}
	if _, ok := props["width"]; ok {
		t.Error("numeric object values must stay untouched")
	}
}

func TestApplySplice(t *testing.T) {
	src := []byte(".a { color: #fff; margin: 8px; }")
	edits := []types.Edit{
		{Span: types.Span{Start: 12, End: 16}, After: "var(--color-surface)"},
		{Span: types.Span{Start: 26, End: 29}, After: "var(--spacing-sm)"},
	}
	got := string(Apply(src, edits))
	want := ".a { color: var(--color-surface); margin: var(--spacing-sm); }"
	if got != want {
		t.Errorf("Apply = %q, want %q", got, want)
	}

	if string(Apply(src, nil)) != string(src) {
		t.Error("empty edit list must be identity")
	}
}
