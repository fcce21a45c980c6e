// Package cache implements the content-addressed transform cache. Results
// are keyed by a composite signature over everything that can change the
// output; bumping any component forces a miss, which is how engine and
// ruleset upgrades invalidate en masse without explicit eviction.
package cache

import (
	"crypto/sha256"
	"encoding/hex"

	"brandwise/internal/types"
)

// SignatureInput lists every component of the composite signature.
// Invariant: the signature uniquely determines (codeOut, changeLog).
type SignatureInput struct {
	Code           []byte
	CodeType       types.CodeType
	BrandPackID    string
	BrandVersion   string // resolved version, never a range
	EngineVersion  string
	RulesetVersion string
	OverridesHash  string
	EnvFlagsHash   string
}

// Signature computes the composite SHA-256 signature. Components are
// NUL-delimited so no concatenation of fields can collide with another.
func Signature(in SignatureInput) string {
	h := sha256.New()
	h.Write(in.Code)
	for _, part := range []string{
		string(in.CodeType),
		in.BrandPackID,
		in.BrandVersion,
		in.EngineVersion,
		in.RulesetVersion,
		in.OverridesHash,
		in.EnvFlagsHash,
	} {
		h.Write([]byte{0})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
