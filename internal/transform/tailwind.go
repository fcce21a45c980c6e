package transform

import (
	"fmt"
	"strings"

	"brandwise/internal/parser"
	"brandwise/internal/token"
	"brandwise/internal/types"
)

// tailwindEntry maps one utility class onto the design value it hardcodes.
// When the brand pack resolves that value to a token, the class is rewritten
// to the arbitrary-value form carrying the token reference. Unmapped classes
// are left intact.
type tailwindEntry struct {
	category token.Category
	raw      string // canonical raw value, e.g. "16px"
	template string // rewrite template, %s receives the token reference
}

// tailwindMap is the static utility mapping table. Spacing follows the
// default 4px scale.
var tailwindMap = buildTailwindMap()

func buildTailwindMap() map[string]tailwindEntry {
	m := map[string]tailwindEntry{}

	spacingSteps := map[string]float64{
		"0": 0, "0.5": 2, "1": 4, "1.5": 6, "2": 8, "2.5": 10, "3": 12,
		"3.5": 14, "4": 16, "5": 20, "6": 24, "7": 28, "8": 32, "9": 36,
		"10": 40, "11": 44, "12": 48, "14": 56, "16": 64, "20": 80, "24": 96,
	}
	spacingPrefixes := []string{
		"p", "px", "py", "pt", "pr", "pb", "pl",
		"m", "mx", "my", "mt", "mr", "mb", "ml",
		"gap", "gap-x", "gap-y", "space-x", "space-y",
	}
	for _, prefix := range spacingPrefixes {
		for step, px := range spacingSteps {
			m[prefix+"-"+step] = tailwindEntry{
				category: token.CategorySpacing,
				raw:      fmt.Sprintf("%gpx", px),
				template: prefix + "-[%s]",
			}
		}
	}

	radii := map[string]string{
		"rounded-sm":  "2px",
		"rounded":     "4px",
		"rounded-md":  "6px",
		"rounded-lg":  "8px",
		"rounded-xl":  "12px",
		"rounded-2xl": "16px",
		"rounded-3xl": "24px",
	}
	for class, px := range radii {
		m[class] = tailwindEntry{
			category: token.CategoryRadius,
			raw:      px,
			template: "rounded-[%s]",
		}
	}

	sizes := map[string]string{
		"text-xs":   "12px",
		"text-sm":   "14px",
		"text-base": "16px",
		"text-lg":   "18px",
		"text-xl":   "20px",
		"text-2xl":  "24px",
		"text-3xl":  "30px",
		"text-4xl":  "36px",
	}
	for class, px := range sizes {
		m[class] = tailwindEntry{
			category: token.CategoryFontSize,
			raw:      px,
			template: "text-[length:%s]",
		}
	}

	durations := map[string]string{
		"duration-75":   "75ms",
		"duration-100":  "100ms",
		"duration-150":  "150ms",
		"duration-200":  "200ms",
		"duration-300":  "300ms",
		"duration-500":  "500ms",
		"duration-700":  "700ms",
		"duration-1000": "1000ms",
	}
	for class, ms := range durations {
		m[class] = tailwindEntry{
			category: token.CategoryDuration,
			raw:      ms,
			template: "duration-[%s]",
		}
	}

	return m
}

// proposeClassNames rewrites mapped utility classes inside className
// literals to token-carrying arbitrary values. Only classes whose hardcoded
// value resolves in the brand pack are touched; rewritten classes contain
// "[var(" and never re-match, keeping the rule idempotent.
func (e *Engine) proposeClassNames(doc *parser.Document, snap *token.Snapshot, cat token.Category) []proposal {
	if snap == nil {
		return nil
	}

	var out []proposal
	for _, lit := range doc.Classes {
		offset := 0
		for _, class := range strings.Split(lit.Value, " ") {
			start := lit.Span.Start + offset
			offset += len(class) + 1
			if class == "" {
				continue
			}

			entry, ok := tailwindMap[class]
			if !ok || entry.category != cat {
				continue
			}

			var res token.Resolution
			switch cat {
			case token.CategoryDuration:
				res = snap.ResolveDuration(entry.raw)
			default:
				res = snap.ResolveLength(entry.raw, cat)
			}
			if !res.Matched() {
				continue
			}

			out = append(out, proposal{
				edit: types.Edit{
					Kind:       types.EditClassName,
					Span:       types.Span{Start: start, End: start + len(class)},
					Anchor:     "className " + class,
					Before:     class,
					After:      fmt.Sprintf(entry.template, res.Token.Reference()),
					Confidence: 0.90,
					RuleID:     "tailwind-" + string(cat),
				},
				class:     ClassSafe,
				block:     -1,
				preferred: snap.Preferred(res.Token),
			})
		}
	}
	return out
}
