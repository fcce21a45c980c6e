// Package token implements the brand token model and resolver. Tokens carry a
// raw value used for matching and a reference form (the CSS custom property
// substitute) used for rewriting. Resolver tables are immutable snapshots:
// a brand-pack upgrade publishes a new snapshot pointer, never mutates one.
package token

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Category classifies a brand token by the design concern it binds.
type Category string

const (
	CategoryColor      Category = "color"
	CategorySpacing    Category = "spacing"
	CategoryRadius     Category = "radius"
	CategoryElevation  Category = "elevation"
	CategoryFontSize   Category = "font-size"
	CategoryFontFamily Category = "font-family"
	CategoryDuration   Category = "duration"
	CategoryEasing     Category = "easing"
	CategoryGradient   Category = "gradient"
)

// Tolerance is the numeric matching tolerance for lengths, shadows and
// durations, as a fraction of the candidate token's value.
const Tolerance = 0.05

// RootFontSize is the rem conversion base in pixels.
const RootFontSize = 16.0

// BrandToken binds a symbolic name to a concrete design value.
type BrandToken struct {
	Category Category          `json:"category"`
	Name     string            `json:"name"`
	Value    string            `json:"value"` // canonical raw form, category-typed
	Metadata map[string]string `json:"metadata,omitempty"`

	// Parsed forms, populated when the snapshot is built.
	px     float64     // spacing/radius/font-size/duration numeric value
	color  string      // normalized hex for color tokens
	shadow *Shadow     // parsed shadow for elevation tokens
	grad   *Gradient   // parsed gradient for gradient tokens
}

// Reference returns the symbolic substitute for the token, e.g.
// var(--color-primary) for a color token named "primary".
func (t *BrandToken) Reference() string {
	return fmt.Sprintf("var(--%s)", t.VarName())
}

// VarName returns the custom property name without the leading dashes.
// Token names that already carry their category prefix are not doubled:
// "spacing-md" stays --spacing-md, "primary" becomes --color-primary.
func (t *BrandToken) VarName() string {
	prefix := string(t.Category)
	if strings.HasPrefix(t.Name, prefix+"-") || t.Name == prefix {
		return t.Name
	}
	return prefix + "-" + t.Name
}

// Pixels returns the numeric pixel (or millisecond) value for length-like tokens.
func (t *BrandToken) Pixels() float64 { return t.px }

// BrandPack is an immutable versioned bundle of tokens. A pack is resolved
// to a specific version before use; ranges are not accepted here.
type BrandPack struct {
	ID            string       `json:"id"`
	Version       string       `json:"version"`
	Tokens        []BrandToken `json:"tokens"`
	OverridesHash string       `json:"overrides_hash,omitempty"`
}

// Snapshot is an immutable, pre-indexed view of a resolved brand pack used
// by the resolver functions. Build once, share freely.
type Snapshot struct {
	PackID        string
	Version       string
	OverridesHash string

	byCategory map[Category][]*BrandToken
	colorExact map[string]*BrandToken // normalized hex -> token
	easing     map[string]*BrandToken // normalized easing -> token
	fontFamily map[string]*BrandToken // folded family -> token
	preferred  map[string]bool        // token var names the overrides prefer
}

// BuildSnapshot indexes a resolved brand pack for matching. Tokens whose raw
// value does not parse for their category are kept out of the numeric
// indexes but still listed under their category.
func BuildSnapshot(pack *BrandPack, preferred []string) *Snapshot {
	s := &Snapshot{
		PackID:        pack.ID,
		Version:       pack.Version,
		OverridesHash: pack.OverridesHash,
		byCategory:    make(map[Category][]*BrandToken),
		colorExact:    make(map[string]*BrandToken),
		easing:        make(map[string]*BrandToken),
		fontFamily:    make(map[string]*BrandToken),
		preferred:     make(map[string]bool),
	}
	for _, name := range preferred {
		s.preferred[name] = true
	}

	for i := range pack.Tokens {
		t := pack.Tokens[i] // copy, snapshot owns its tokens
		switch t.Category {
		case CategoryColor:
			if hex, ok := NormalizeColor(t.Value); ok {
				t.color = hex
				s.colorExact[hex] = &t
			}
		case CategorySpacing, CategoryRadius, CategoryFontSize:
			if px, ok := ParseLength(t.Value); ok {
				t.px = px
			}
		case CategoryDuration:
			if ms, ok := ParseDuration(t.Value); ok {
				t.px = ms
			}
		case CategoryElevation:
			if sh, ok := ParseShadow(t.Value); ok {
				t.shadow = sh
			}
		case CategoryEasing:
			s.easing[normalizeEasing(t.Value)] = &t
		case CategoryFontFamily:
			s.fontFamily[foldFamily(t.Value)] = &t
		case CategoryGradient:
			if g, ok := ParseGradient(t.Value); ok {
				t.grad = g
			}
		}
		s.byCategory[t.Category] = append(s.byCategory[t.Category], &t)
	}

	// Deterministic candidate ordering regardless of pack token order.
	for cat := range s.byCategory {
		list := s.byCategory[cat]
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}
	return s
}

// Tokens returns the snapshot's tokens for a category, sorted by name.
func (s *Snapshot) Tokens(cat Category) []*BrandToken {
	return s.byCategory[cat]
}

// Preferred reports whether the project overrides explicitly prefer the token.
func (s *Snapshot) Preferred(t *BrandToken) bool {
	return s.preferred[t.VarName()]
}

// Holder publishes the current snapshot pointer atomically so a brand-pack
// upgrade swaps in a new immutable snapshot without locking readers.
type Holder struct {
	ptr atomic.Pointer[Snapshot]
}

// Load returns the current snapshot, or nil before the first Store.
func (h *Holder) Load() *Snapshot { return h.ptr.Load() }

// Store publishes a new snapshot.
func (h *Holder) Store(s *Snapshot) { h.ptr.Store(s) }
