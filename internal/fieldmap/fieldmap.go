// Package fieldmap makes the fallback-chain lookup a first-class type:
// an ordered list of vendor field names resolved against an untyped
// sample, replacing a per-field if/else ladder at every call site.
package fieldmap

import (
	"math"
	"strconv"
	"strings"
)

// Chain is an ordered list of source field names tried in sequence; the
// first one present with a non-null value wins.
type Chain []string

// NewChain builds a Chain from the given names, primary first.
func NewChain(names ...string) Chain {
	return Chain(names)
}

// Lookup returns the first non-null value found in sample across the
// chain, trying each name in order.
func (c Chain) Lookup(sample map[string]any) (any, bool) {
	for _, name := range c {
		if v, ok := sample[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Float resolves the chain to a float64, coercing strings with a
// decimal-only grammar. ok is
// false if no field in the chain was present or the value could not be
// coerced to a finite number.
func (c Chain) Float(sample map[string]any) (float64, bool) {
	raw, ok := c.Lookup(sample)
	if !ok {
		return 0, false
	}
	return coerceFloat(raw)
}

// String resolves the chain to a string value.
func (c Chain) String(sample map[string]any) (string, bool) {
	raw, ok := c.Lookup(sample)
	if !ok {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	default:
		return "", false
	}
}

// Int resolves the chain to an int64 via Float then truncation, so
// numeric strings and floats are accepted anywhere an integer field is
// expected.
func (c Chain) Int(sample map[string]any) (int64, bool) {
	f, ok := c.Float(sample)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Coerce applies the same numeric coercion Float uses to an
// already-looked-up value, letting callers distinguish an absent field
// from a present-but-unusable one.
func Coerce(raw any) (float64, bool) {
	return coerceFloat(raw)
}

func coerceFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, isFinite(v)
	case float32:
		return float64(v), isFinite(float64(v))
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return f, isFinite(f)
	default:
		return 0, false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
