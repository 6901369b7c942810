// Package visitors implements the visitor registry lookup: key normalization,
// row sanitizing, the in-memory index and the TTL cache that serves it.
package visitors

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key is a normalized record identifier. Equality is the only match criterion.
type Key string

// KeyPolicy selects how identifiers are canonicalized
type KeyPolicy string

const (
	// PolicyOpaque compares the cleaned identifier as-is
	PolicyOpaque KeyPolicy = "opaque"
	// PolicyStripZeros removes leading zeros from the cleaned identifier
	PolicyStripZeros KeyPolicy = "strip-zeros"
	// PolicyNumeric parses the identifier as a decimal and truncates it to an integer
	PolicyNumeric KeyPolicy = "numeric"
)

// ParseKeyPolicy converts a configuration value into a KeyPolicy
func ParseKeyPolicy(s string) (KeyPolicy, error) {
	switch KeyPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyNumeric:
		return PolicyNumeric, nil
	case PolicyOpaque:
		return PolicyOpaque, nil
	case PolicyStripZeros:
		return PolicyStripZeros, nil
	default:
		return "", fmt.Errorf("unknown key policy %q", s)
	}
}

// invisible covers zero-width characters, bidi controls and soft hyphens that
// spreadsheet exports and chat clients tend to leave inside identifiers.
var invisible = runes.In(&unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00AD, Hi: 0x00AD, Stride: 1},
		{Lo: 0x200B, Hi: 0x200F, Stride: 1},
		{Lo: 0x202A, Hi: 0x202E, Stride: 1},
		{Lo: 0x2060, Hi: 0x2064, Stride: 1},
		{Lo: 0x2066, Hi: 0x2069, Stride: 1},
		{Lo: 0xFEFF, Hi: 0xFEFF, Stride: 1},
	},
	LatinOffset: 1,
})

// Normalizer canonicalizes identifiers. It holds no mutable state and is safe
// for concurrent use.
type Normalizer struct {
	policy KeyPolicy
}

// NewNormalizer creates a normalizer for the given policy
func NewNormalizer(policy KeyPolicy) *Normalizer {
	if policy == "" {
		policy = PolicyNumeric
	}
	return &Normalizer{policy: policy}
}

// Policy returns the configured policy
func (n *Normalizer) Policy() KeyPolicy {
	return n.policy
}

// Normalize returns the canonical key for raw, or false when raw does not
// denote an identifier.
func (n *Normalizer) Normalize(raw string) (Key, bool) {
	cleaned := clean(raw)
	if cleaned == "" {
		return "", false
	}

	switch n.policy {
	case PolicyOpaque:
		return Key(cleaned), true
	case PolicyStripZeros:
		return Key(stripZeros(cleaned)), true
	default:
		return numericKey(cleaned)
	}
}

// NormalizeValue accepts a decoded JSON value (nil, string, float64 or json.Number)
func (n *Normalizer) NormalizeValue(v any) (Key, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return n.Normalize(val)
	case json.Number:
		return n.Normalize(val.String())
	case float64:
		return n.Normalize(decimal.NewFromFloat(val).String())
	case int:
		return n.Normalize(fmt.Sprint(val))
	case int64:
		return n.Normalize(fmt.Sprint(val))
	default:
		return "", false
	}
}

func clean(raw string) string {
	s, _, err := transform.String(transform.Chain(runes.Remove(invisible), norm.NFKC), raw)
	if err != nil {
		return ""
	}
	return strings.TrimFunc(s, unicode.IsSpace)
}

func stripZeros(s string) string {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// maxNumericLen bounds identifiers accepted by the numeric policy
const maxNumericLen = 64

// numericForm is a plain decimal with an optional dot or comma fraction.
// Exponent notation is rejected: decimal rescales by the exponent.
var numericForm = regexp.MustCompile(`^[+-]?[0-9]+([.,][0-9]*)?$`)

func numericKey(s string) (Key, bool) {
	if len(s) > maxNumericLen || !numericForm.MatchString(s) {
		return "", false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return "", false
	}
	return Key(d.Truncate(0).String()), true
}
