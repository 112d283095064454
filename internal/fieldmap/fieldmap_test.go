package fieldmap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChain_Lookup_FirstWinnerInOrder(t *testing.T) {
	chain := NewChain("broker.bytesInPerSecond", "net.bytesInPerSec")
	sample := map[string]any{
		"net.bytesInPerSec": 1500.0,
	}

	v, ok := chain.Float(sample)
	assert.True(t, ok)
	assert.Equal(t, 1500.0, v, "fallback chain must resolve to the secondary field when the primary is absent")
}

func TestChain_Lookup_PrimaryWinsOverFallback(t *testing.T) {
	chain := NewChain("primary", "fallback")
	sample := map[string]any{"primary": 1.0, "fallback": 2.0}

	v, ok := chain.Float(sample)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestChain_Float_CoercesNumericString(t *testing.T) {
	chain := NewChain("value")
	v, ok := chain.Float(map[string]any{"value": "42.5"})
	assert.True(t, ok)
	assert.Equal(t, 42.5, v)
}

func TestChain_Float_RejectsNonNumericString(t *testing.T) {
	chain := NewChain("value")
	_, ok := chain.Float(map[string]any{"value": "not a number"})
	assert.False(t, ok, "non-numeric string must fail coercion, not panic")
}

func TestChain_Float_RejectsNaNAndInf(t *testing.T) {
	chain := NewChain("value")

	_, ok := chain.Float(map[string]any{"value": math.NaN()})
	assert.False(t, ok, "NaN must be rejected")

	_, ok = chain.Float(map[string]any{"value": math.Inf(1)})
	assert.False(t, ok, "+Inf must be rejected")
}

func TestChain_Lookup_AllAbsent(t *testing.T) {
	chain := NewChain("a", "b", "c")
	_, ok := chain.Lookup(map[string]any{"d": 1})
	assert.False(t, ok)
}

func TestChain_Int_Truncates(t *testing.T) {
	chain := NewChain("count")
	v, ok := chain.Int(map[string]any{"count": 3.9})
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)
}
