package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"brandwise/internal/types"
)

// inlineSelector is the synthetic selector recorded for style="" attributes
// and wrapped CSS-in-JS bodies.
const inlineSelector = "style-attr"

// inlineWrapPrefix wraps a bare declaration list so the CSS grammar accepts
// it; spans are rebased afterwards so edits land in the original bytes.
const inlineWrapPrefix = "x{"

func parseCSS(ctx context.Context, frag types.Fragment) (*Document, error) {
	doc := &Document{Fragment: frag}
	if err := parseCSSInto(ctx, frag.Bytes, 0, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// parseCSSInto parses src as a stylesheet and appends blocks/declarations to
// doc with all spans shifted by base (the offset of src inside the fragment).
func parseCSSInto(ctx context.Context, src []byte, base int, doc *Document) error {
	tree, err := parseTree(ctx, types.CodeCSS, src)
	if err != nil {
		return err
	}
	defer tree.Close()

	walkCSS(tree.RootNode(), src, base, doc, false)
	return nil
}

// parseDeclList parses a bare declaration list (inline style attribute or a
// CSS-in-JS body) by wrapping it in a synthetic rule. selector names the
// block in anchors; base is the offset of src inside the fragment.
func parseDeclList(ctx context.Context, src []byte, base int, selector string, doc *Document) error {
	wrapped := append([]byte(inlineWrapPrefix), append(src, '}')...)
	tree, err := parseTree(ctx, types.CodeCSS, wrapped)
	if err != nil {
		return err
	}
	defer tree.Close()

	// Spans inside the wrapper are shifted left by the prefix length.
	sub := &Document{Fragment: doc.Fragment}
	walkCSS(tree.RootNode(), wrapped, base-len(inlineWrapPrefix), sub, false)

	blockBase := len(doc.Blocks)
	for _, b := range sub.Blocks {
		b.Selector = selector
		b.Span = types.Span{Start: base, End: base + len(src)}
		doc.Blocks = append(doc.Blocks, b)
	}
	for _, d := range sub.Decls {
		d.Block += blockBase
		doc.Decls = append(doc.Decls, d)
	}
	return nil
}

func walkCSS(n *sitter.Node, src []byte, base int, doc *Document, inKeyframes bool) {
	switch n.Type() {
	case "rule_set":
		sel := ""
		if s := n.ChildByFieldName("selectors"); s != nil {
			sel = s.Content(src)
		} else if n.ChildCount() > 0 {
			sel = n.Child(0).Content(src)
		}
		block := Block{
			Selector:    strings.TrimSpace(sel),
			Span:        spanOf(n, base),
			InKeyframes: inKeyframes,
		}
		doc.Blocks = append(doc.Blocks, block)
		blockIdx := len(doc.Blocks) - 1

		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() == "block" {
				collectDecls(c, src, base, doc, blockIdx)
			}
		}
		return

	case "keyframes_statement":
		for i := 0; i < int(n.ChildCount()); i++ {
			walkCSS(n.Child(i), src, base, doc, true)
		}
		return

	case "keyframe_block":
		sel := ""
		if n.ChildCount() > 0 {
			sel = n.Child(0).Content(src)
		}
		doc.Blocks = append(doc.Blocks, Block{
			Selector:    strings.TrimSpace(sel),
			Span:        spanOf(n, base),
			InKeyframes: true,
		})
		blockIdx := len(doc.Blocks) - 1
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() == "block" {
				collectDecls(c, src, base, doc, blockIdx)
			}
		}
		return
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		walkCSS(n.Child(i), src, base, doc, inKeyframes)
	}
}

// collectDecls pulls the declarations out of a rule block node.
func collectDecls(block *sitter.Node, src []byte, base int, doc *Document, blockIdx int) {
	for i := 0; i < int(block.ChildCount()); i++ {
		c := block.Child(i)
		switch c.Type() {
		case "declaration":
			if d, ok := extractDecl(c, src, base, blockIdx); ok {
				doc.Decls = append(doc.Decls, d)
				doc.Blocks[blockIdx].Decls = append(doc.Blocks[blockIdx].Decls, len(doc.Decls)-1)
			}
		case "rule_set", "keyframes_statement", "media_statement":
			walkCSS(c, src, base, doc, doc.Blocks[blockIdx].InKeyframes)
		}
	}
}

// extractDecl builds a Declaration from a declaration node. The value span
// runs from the first value child to the last, excluding !important and the
// trailing semicolon.
func extractDecl(n *sitter.Node, src []byte, base int, blockIdx int) (Declaration, bool) {
	d := Declaration{Block: blockIdx}

	var first, last *sitter.Node
	seenColon := false
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "property_name":
			d.Property = strings.ToLower(c.Content(src))
		case ":":
			seenColon = true
		case "important":
			d.Important = true
		case ";", "comment":
			// skip
		default:
			if !seenColon {
				continue
			}
			if first == nil {
				first = c
			}
			last = c
		}
	}
	if d.Property == "" || first == nil {
		return d, false
	}

	d.ValueSpan = types.Span{
		Start: int(first.StartByte()) + base,
		End:   int(last.EndByte()) + base,
	}
	d.Value = string(src[first.StartByte():last.EndByte()])
	return d, true
}

func spanOf(n *sitter.Node, base int) types.Span {
	return types.Span{Start: int(n.StartByte()) + base, End: int(n.EndByte()) + base}
}
