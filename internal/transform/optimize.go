package transform

import (
	"context"
	"sort"
	"strings"

	"brandwise/internal/parser"
	"brandwise/internal/types"
)

// optimize runs the optimization stage. Level 1 compacts whitespace and
// strips comments; level 2 additionally merges duplicate declarations and
// collapses repeated shorthand values. Only CSS fragments are optimized;
// markup and JSX carry too much meaning in their whitespace. The stage is
// idempotent: optimizing optimized output is a no-op.
func (e *Engine) optimize(ctx context.Context, src []byte, ct types.CodeType, level int, res *Result) []byte {
	if ct != types.CodeCSS {
		return src
	}

	cur := src
	if level >= 2 {
		cur = e.mergeAndCollapse(ctx, cur)
	}

	out := compactCSS(cur)
	if string(out) != string(src) {
		res.ChangeLog.Applied = append(res.ChangeLog.Applied, types.Edit{
			Kind:       types.EditOptimization,
			Span:       types.Span{Start: 0, End: len(src)},
			Anchor:     "stylesheet",
			Before:     "",
			After:      "",
			Confidence: 1,
			RuleID:     "optimize-l" + string(rune('0'+level)),
		})
	}
	return out
}

// mergeAndCollapse rewrites each rule block with duplicate properties
// merged (last wins) and shorthand value runs collapsed. Blocks are
// replaced span-by-span so at-rule wrappers survive untouched.
func (e *Engine) mergeAndCollapse(ctx context.Context, src []byte) []byte {
	doc := parser.Parse(ctx, types.Fragment{CodeType: types.CodeCSS, Bytes: src})
	if !doc.OK() {
		return src
	}

	var edits []types.Edit
	for bi, b := range doc.Blocks {
		if b.InKeyframes || b.Selector == "" {
			continue
		}
		decls := doc.BlockDecls(bi)
		if len(decls) == 0 {
			continue
		}

		// Last declaration of a property wins.
		lastIdx := map[string]int{}
		for i, d := range decls {
			lastIdx[d.Property] = i
		}

		var parts []string
		changed := len(lastIdx) != len(decls)
		for i, d := range decls {
			if lastIdx[d.Property] != i {
				continue
			}
			value := d.Value
			if isShorthandProp(d.Property) {
				if collapsed := collapseShorthand(value); collapsed != value {
					value = collapsed
					changed = true
				}
			}
			entry := d.Property + ": " + value
			if d.Important {
				entry += " !important"
			}
			parts = append(parts, entry)
		}
		if !changed {
			continue
		}

		edits = append(edits, types.Edit{
			Kind:   types.EditOptimization,
			Span:   b.Span,
			Anchor: b.Selector,
			After:  b.Selector + " { " + strings.Join(parts, "; ") + "; }",
			RuleID: "merge-duplicates",
		})
	}
	if len(edits) == 0 {
		return src
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].Span.Start > edits[j].Span.Start })
	return parser.Apply(src, edits)
}

func isShorthandProp(p string) bool {
	switch p {
	case "margin", "padding", "inset", "border-radius", "border-width", "gap":
		return true
	}
	return false
}

// collapseShorthand reduces repeated multi-value runs:
// "a a a a" -> "a", "a b a b" -> "a b", "a b c b" -> "a b c".
func collapseShorthand(v string) string {
	parts := strings.Fields(v)
	switch len(parts) {
	case 4:
		if parts[1] == parts[3] {
			if parts[0] == parts[2] {
				if parts[0] == parts[1] {
					return parts[0]
				}
				return parts[0] + " " + parts[1]
			}
			return parts[0] + " " + parts[1] + " " + parts[2]
		}
	case 3:
		if parts[0] == parts[2] {
			if parts[0] == parts[1] {
				return parts[0]
			}
			return parts[0] + " " + parts[1]
		}
	case 2:
		if parts[0] == parts[1] {
			return parts[0]
		}
	}
	return strings.Join(parts, " ")
}

// compactCSS strips comments and collapses whitespace runs outside quoted
// strings. Running it on its own output changes nothing.
func compactCSS(src []byte) []byte {
	var sb strings.Builder
	sb.Grow(len(src))

	inComment := false
	var quote byte
	lastSpace := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if inComment {
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				inComment = false
				i++
			}
			continue
		}

		if quote != 0 {
			sb.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			inComment = true
			i++
		case c == '"' || c == '\'':
			quote = c
			sb.WriteByte(c)
			lastSpace = false
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if !lastSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				lastSpace = true
			}
		default:
			sb.WriteByte(c)
			lastSpace = false
		}
	}

	return []byte(strings.TrimSpace(sb.String()))
}
