package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"brandwise/internal/types"
)

// cssObjectSelector names blocks that came from a css({...}) object literal.
const cssObjectSelector = "css-object"

// parseJSX walks a JSX/TSX/JS fragment for className literals and CSS-in-JS
// blocks. Template interpolations are kept verbatim as opaque holes; the
// transform engine never crosses them.
func parseJSX(ctx context.Context, frag types.Fragment) (*Document, error) {
	tree, err := parseTree(ctx, frag.CodeType, frag.Bytes)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	doc := &Document{Fragment: frag}
	walkJSX(ctx, tree.RootNode(), frag.Bytes, doc)
	return doc, nil
}

func walkJSX(ctx context.Context, n *sitter.Node, src []byte, doc *Document) {
	switch n.Type() {
	case "jsx_attribute":
		if jsxAttrName(n, src) == "className" {
			collectClassName(n, src, doc)
			return
		}

	case "call_expression":
		if collectCSSinJS(ctx, n, src, doc) {
			return
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		walkJSX(ctx, n.Child(i), src, doc)
	}
}

func jsxAttrName(n *sitter.Node, src []byte) string {
	if n.ChildCount() == 0 {
		return ""
	}
	return n.Child(0).Content(src)
}

// collectClassName records the rewritable string chunks of a className
// value. Three forms are supported: string literal, template literal, and a
// ternary of string/template literals. Anything else is left intact.
func collectClassName(attr *sitter.Node, src []byte, doc *Document) {
	for i := 0; i < int(attr.ChildCount()); i++ {
		c := attr.Child(i)
		switch c.Type() {
		case "string":
			addStringChunk(c, src, doc, ClassString)
		case "jsx_expression":
			for j := 0; j < int(c.ChildCount()); j++ {
				collectClassExpr(c.Child(j), src, doc, ClassString)
			}
		}
	}
}

func collectClassExpr(n *sitter.Node, src []byte, doc *Document, kind ClassKind) {
	switch n.Type() {
	case "string":
		addStringChunk(n, src, doc, kind)
	case "template_string":
		addTemplateChunks(n, src, doc, ClassTemplate)
	case "ternary_expression":
		// Both branches are rewritable; the ternary structure itself is not.
		if cons := n.ChildByFieldName("consequence"); cons != nil {
			collectClassExpr(cons, src, doc, ClassTernary)
		}
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			collectClassExpr(alt, src, doc, ClassTernary)
		}
	case "parenthesized_expression":
		for i := 0; i < int(n.ChildCount()); i++ {
			collectClassExpr(n.Child(i), src, doc, kind)
		}
	}
}

// addStringChunk records the contents of a string literal, quotes excluded.
func addStringChunk(n *sitter.Node, src []byte, doc *Document, kind ClassKind) {
	start, end := int(n.StartByte())+1, int(n.EndByte())-1
	if end <= start {
		return
	}
	doc.Classes = append(doc.Classes, ClassLiteral{
		Span:  types.Span{Start: start, End: end},
		Value: string(src[start:end]),
		Kind:  kind,
	})
}

// addTemplateChunks records the literal runs of a template string between
// interpolations. The interpolations become opaque holes.
func addTemplateChunks(n *sitter.Node, src []byte, doc *Document, kind ClassKind) {
	bodyStart, bodyEnd := int(n.StartByte())+1, int(n.EndByte())-1
	cursor := bodyStart
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() != "template_substitution" {
			continue
		}
		hStart, hEnd := int(c.StartByte()), int(c.EndByte())
		if hStart > cursor {
			doc.Classes = append(doc.Classes, ClassLiteral{
				Span:  types.Span{Start: cursor, End: hStart},
				Value: string(src[cursor:hStart]),
				Kind:  kind,
			})
		}
		doc.Holes = append(doc.Holes, types.Span{Start: hStart, End: hEnd})
		cursor = hEnd
	}
	if cursor < bodyEnd {
		doc.Classes = append(doc.Classes, ClassLiteral{
			Span:  types.Span{Start: cursor, End: bodyEnd},
			Value: string(src[cursor:bodyEnd]),
			Kind:  kind,
		})
	}
}

// collectCSSinJS handles styled.X`...`, css`...` and css({...}) call
// expressions. Returns true when the node was consumed.
func collectCSSinJS(ctx context.Context, call *sitter.Node, src []byte, doc *Document) bool {
	fn := call.ChildByFieldName("function")
	args := call.ChildByFieldName("arguments")
	if fn == nil || args == nil {
		return false
	}

	fnText := fn.Content(src)
	if !isStyledTag(fnText) {
		return false
	}

	switch args.Type() {
	case "template_string":
		parseStyledTemplate(ctx, args, src, doc, fnText)
		return true
	case "arguments":
		for i := 0; i < int(args.ChildCount()); i++ {
			if o := args.Child(i); o.Type() == "object" {
				collectCSSObject(o, src, doc)
			}
		}
		return true
	}
	return false
}

func isStyledTag(fnText string) bool {
	if fnText == "css" || fnText == "keyframes" {
		return true
	}
	return strings.HasPrefix(fnText, "styled.") || strings.HasPrefix(fnText, "styled(")
}

// parseStyledTemplate parses a tagged template body as CSS. Interpolations
// are masked with same-length comments so every span lines up with the
// original bytes, then recorded as holes.
func parseStyledTemplate(ctx context.Context, tmpl *sitter.Node, src []byte, doc *Document, tag string) {
	bodyStart, bodyEnd := int(tmpl.StartByte())+1, int(tmpl.EndByte())-1
	if bodyEnd <= bodyStart {
		return
	}

	masked := make([]byte, bodyEnd-bodyStart)
	copy(masked, src[bodyStart:bodyEnd])

	var holes []types.Span
	for i := 0; i < int(tmpl.ChildCount()); i++ {
		c := tmpl.Child(i)
		if c.Type() != "template_substitution" {
			continue
		}
		h := types.Span{Start: int(c.StartByte()), End: int(c.EndByte())}
		holes = append(holes, h)
		maskHole(masked, h.Start-bodyStart, h.End-bodyStart)
	}

	// A styled body is usually a bare declaration list; a css block may be a
	// full stylesheet. Try the declaration form first, fall back to raw.
	probe := &Document{Fragment: doc.Fragment}
	if err := parseDeclList(ctx, masked, bodyStart, tag, probe); err != nil {
		probe = &Document{Fragment: doc.Fragment}
		if err := parseCSSInto(ctx, masked, bodyStart, probe); err != nil {
			// Body we cannot parse stays untouched; not a fragment-level failure.
			return
		}
	}

	blockBase := len(doc.Blocks)
	doc.Blocks = append(doc.Blocks, probe.Blocks...)
	for _, d := range probe.Decls {
		d.Block += blockBase
		doc.Decls = append(doc.Decls, d)
	}
	doc.Holes = append(doc.Holes, holes...)
}

// maskHole overwrites masked[start:end) with a same-length CSS comment.
// The shortest interpolation "${x}" is four bytes, exactly "/**/".
func maskHole(masked []byte, start, end int) {
	if end-start < 4 {
		for i := start; i < end; i++ {
			masked[i] = ' '
		}
		return
	}
	masked[start], masked[start+1] = '/', '*'
	for i := start + 2; i < end-2; i++ {
		masked[i] = '*'
	}
	masked[end-2], masked[end-1] = '*', '/'
}

// collectCSSObject records string-valued properties of a css({...}) object
// as declarations. Numeric values stay untouched: rewriting them to a token
// reference would change the JS type.
func collectCSSObject(obj *sitter.Node, src []byte, doc *Document) {
	doc.Blocks = append(doc.Blocks, Block{
		Selector: cssObjectSelector,
		Span:     types.Span{Start: int(obj.StartByte()), End: int(obj.EndByte())},
	})
	blockIdx := len(doc.Blocks) - 1

	for i := 0; i < int(obj.ChildCount()); i++ {
		pair := obj.Child(i)
		if pair.Type() != "pair" {
			continue
		}
		key := pair.ChildByFieldName("key")
		val := pair.ChildByFieldName("value")
		if key == nil || val == nil || val.Type() != "string" {
			continue
		}

		prop := key.Content(src)
		prop = strings.Trim(prop, `"'`)
		start, end := int(val.StartByte())+1, int(val.EndByte())-1
		if end <= start {
			continue
		}
		doc.Decls = append(doc.Decls, Declaration{
			Property:  camelToKebab(prop),
			Value:     string(src[start:end]),
			ValueSpan: types.Span{Start: start, End: end},
			Block:     blockIdx,
		})
		doc.Blocks[blockIdx].Decls = append(doc.Blocks[blockIdx].Decls, len(doc.Decls)-1)
	}
}

func camelToKebab(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			sb.WriteByte('-')
			sb.WriteRune(r + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
