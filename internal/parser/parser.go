// Package parser turns CSS, HTML, JSX/TSX and CSS-in-JS fragments into a
// uniform document abstraction the transform engine can work over without
// knowing the code type. All spans are byte-accurate into the original
// fragment so edits splice without disturbing surrounding text.
//
// Parsing is whole-or-fail: a fragment that does not parse returns the
// original bytes, an empty document and a parse-error diagnostic. The
// orchestrator surfaces the diagnostic but never fails the request.
package parser

import (
	"context"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"

	"brandwise/internal/logging"
	"brandwise/internal/types"
)

// Declaration is one CSS property/value pair with byte-accurate spans.
type Declaration struct {
	Property  string
	Value     string
	ValueSpan types.Span // span of the value text, excluding !important
	Important bool
	Block     int // index into Document.Blocks
}

// Block is one rule block (selector + declarations).
type Block struct {
	Selector    string
	Span        types.Span
	Decls       []int // indices into Document.Decls
	InKeyframes bool
}

// ClassKind describes the syntactic form a className literal appeared in.
type ClassKind string

const (
	ClassString   ClassKind = "string"
	ClassTemplate ClassKind = "template"
	ClassTernary  ClassKind = "ternary"
)

// ClassLiteral is one rewritable className string chunk in a JSX fragment.
// The span covers the string contents without quotes; template interpolation
// stubs never fall inside a chunk.
type ClassLiteral struct {
	Span  types.Span
	Value string
	Kind  ClassKind
}

// Document is the uniform parse result over all code types.
type Document struct {
	Fragment types.Fragment
	Decls    []Declaration
	Blocks   []Block
	Classes  []ClassLiteral

	// Holes are opaque byte ranges (CSS-in-JS interpolations) that no edit
	// may touch or cross.
	Holes []types.Span

	Diagnostics []types.Diagnostic
	parsed      bool
}

// OK reports whether the fragment parsed whole.
func (d *Document) OK() bool { return d.parsed }

// Source returns the fragment bytes.
func (d *Document) Source() []byte { return d.Fragment.Bytes }

// BlockDecls returns the declarations of a block.
func (d *Document) BlockDecls(block int) []Declaration {
	var out []Declaration
	for _, i := range d.Blocks[block].Decls {
		out = append(out, d.Decls[i])
	}
	return out
}

// InHole reports whether the span touches an opaque interpolation hole.
func (d *Document) InHole(span types.Span) bool {
	for _, h := range d.Holes {
		if span.Start < h.End && h.Start < span.End {
			return true
		}
	}
	return false
}

// Parse parses a fragment according to its code type.
func Parse(ctx context.Context, frag types.Fragment) *Document {
	timer := logging.StartTimer(logging.CategoryParser, fmt.Sprintf("Parse(%s)", frag.CodeType))
	defer timer.Stop()

	var (
		doc *Document
		err error
	)
	switch frag.CodeType {
	case types.CodeCSS:
		doc, err = parseCSS(ctx, frag)
	case types.CodeHTML:
		doc, err = parseHTML(ctx, frag)
	case types.CodeJSX, types.CodeTSX, types.CodeJS:
		doc, err = parseJSX(ctx, frag)
	default:
		err = fmt.Errorf("unsupported code type %q", frag.CodeType)
	}

	if err != nil {
		logging.Parser("parse failed for %s fragment (%d bytes): %v", frag.CodeType, len(frag.Bytes), err)
		return &Document{
			Fragment: frag,
			Diagnostics: []types.Diagnostic{{
				Kind:    types.DiagParseError,
				Message: fmt.Sprintf("%s fragment could not be parsed", frag.CodeType),
				Detail:  err.Error(),
			}},
		}
	}

	doc.parsed = true
	sortSpans(doc)
	logging.ParserDebug("parsed %s fragment: %d blocks, %d decls, %d class literals, %d holes",
		frag.CodeType, len(doc.Blocks), len(doc.Decls), len(doc.Classes), len(doc.Holes))
	return doc
}

// sortSpans puts declarations and classes in source order so the transform
// engine applies edits deterministically.
func sortSpans(doc *Document) {
	sort.SliceStable(doc.Decls, func(i, j int) bool {
		return doc.Decls[i].ValueSpan.Start < doc.Decls[j].ValueSpan.Start
	})
	// Re-link blocks after the sort.
	for b := range doc.Blocks {
		doc.Blocks[b].Decls = doc.Blocks[b].Decls[:0]
	}
	for i, d := range doc.Decls {
		doc.Blocks[d.Block].Decls = append(doc.Blocks[d.Block].Decls, i)
	}
	sort.SliceStable(doc.Classes, func(i, j int) bool {
		return doc.Classes[i].Span.Start < doc.Classes[j].Span.Start
	})
}

// Apply splices a set of edits into the source and returns the new bytes.
// Edits must not overlap; they are applied back-to-front so earlier spans
// stay valid.
func Apply(src []byte, edits []types.Edit) []byte {
	if len(edits) == 0 {
		return src
	}
	sorted := make([]types.Edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Span.Start > sorted[j].Span.Start
	})

	out := make([]byte, len(src))
	copy(out, src)
	for _, e := range sorted {
		if e.Span.Start < 0 || e.Span.End > len(out) || e.Span.Start > e.Span.End {
			continue
		}
		out = append(out[:e.Span.Start], append([]byte(e.After), out[e.Span.End:]...)...)
	}
	return out
}

// language returns the tree-sitter language for a code type.
func language(ct types.CodeType) *sitter.Language {
	switch ct {
	case types.CodeCSS:
		return css.GetLanguage()
	case types.CodeHTML:
		return html.GetLanguage()
	case types.CodeTSX:
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// parseTree runs tree-sitter and rejects trees containing errors, keeping
// the whole-or-fail invariant.
func parseTree(ctx context.Context, ct types.CodeType, src []byte) (*sitter.Tree, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(language(ct))

	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	if tree.RootNode().HasError() {
		tree.Close()
		return nil, fmt.Errorf("syntax error in %s source", ct)
	}
	return tree, nil
}
