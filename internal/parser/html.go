package parser

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"brandwise/internal/types"
)

// parseHTML extracts every <style> block and inline style= attribute and
// delegates each to the CSS parser at the right byte offset. The containing
// document bytes are preserved untouched, so a rewritten block re-splices
// without disturbing the markup around it.
func parseHTML(ctx context.Context, frag types.Fragment) (*Document, error) {
	tree, err := parseTree(ctx, types.CodeHTML, frag.Bytes)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	doc := &Document{Fragment: frag}
	if err := walkHTML(ctx, tree.RootNode(), frag.Bytes, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func walkHTML(ctx context.Context, n *sitter.Node, src []byte, doc *Document) error {
	switch n.Type() {
	case "style_element":
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() == "raw_text" {
				if err := parseCSSInto(ctx, []byte(c.Content(src)), int(c.StartByte()), doc); err != nil {
					return err
				}
			}
		}
		return nil

	case "attribute":
		if attrName(n, src) == "style" {
			if v := attrValue(n); v != nil {
				// Inline style is a one-rule CSS fragment.
				if err := parseDeclList(ctx, []byte(v.Content(src)), int(v.StartByte()), inlineSelector, doc); err != nil {
					return err
				}
			}
			return nil
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if err := walkHTML(ctx, n.Child(i), src, doc); err != nil {
			return err
		}
	}
	return nil
}

func attrName(n *sitter.Node, src []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "attribute_name" {
			return c.Content(src)
		}
	}
	return ""
}

// attrValue returns the unquoted attribute_value node, if any.
func attrValue(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "quoted_attribute_value":
			for j := 0; j < int(c.ChildCount()); j++ {
				if c.Child(j).Type() == "attribute_value" {
					return c.Child(j)
				}
			}
		case "attribute_value":
			return c
		}
	}
	return nil
}
