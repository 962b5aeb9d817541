package adaptive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

type fakeCounter map[string]int

func (f fakeCounter) Violations(identifier string, _ time.Duration) int {
	return f[identifier]
}

func TestViolationThreatScorer(t *testing.T) {
	counter := fakeCounter{"clean": 0, "some": 10, "many": 1000}
	s := NewViolationThreatScorer(counter)

	assert.Equal(t, 1.0, s.Threat(ctx, "clean", limits.RequestContext{}))
	assert.InDelta(t, 0.5, s.Threat(ctx, "some", limits.RequestContext{}), 1e-12)
	assert.Equal(t, 0.1, s.Threat(ctx, "many", limits.RequestContext{}))
	assert.Equal(t, 1.0, s.Threat(ctx, "unknown", limits.RequestContext{}))
}

func TestViolationThreatScorer_Monotone(t *testing.T) {
	counter := fakeCounter{}
	s := NewViolationThreatScorer(counter)

	prev := s.Threat(ctx, "x", limits.RequestContext{})
	for v := 1; v <= 200; v++ {
		counter["x"] = v
		cur := s.Threat(ctx, "x", limits.RequestContext{})
		assert.LessOrEqual(t, cur, prev, "factor grew at %d violations", v)
		prev = cur
	}
}

func TestViolationThreatScorer_NilCounter(t *testing.T) {
	s := &ViolationThreatScorer{Tolerance: 10, Floor: 0.1}
	assert.Equal(t, 1.0, s.Threat(ctx, "x", limits.RequestContext{}))
}

func TestRuntimeLoadScorer(t *testing.T) {
	s := NewRuntimeLoadScorer(100, 300)

	tests := []struct {
		goroutines int
		want       float64
	}{
		{10, 1},
		{100, 1},
		{200, 2.5},
		{300, 4},
		{5000, 4},
	}
	for _, tt := range tests {
		n := tt.goroutines
		s.count = func() int { return n }
		assert.InDelta(t, tt.want, s.Load(ctx), 1e-12, "goroutines=%d", n)
	}
}

func TestRuntimeLoadScorer_Real(t *testing.T) {
	s := NewRuntimeLoadScorer(1<<20, 1<<21)
	assert.Equal(t, 1.0, s.Load(ctx))
}

func TestStaticLoadScorer(t *testing.T) {
	var s StaticLoadScorer
	assert.Equal(t, 1.0, s.Load(ctx))

	s.Set(2.5)
	assert.Equal(t, 2.5, s.Load(ctx))
}

func TestStaticReputationScorer(t *testing.T) {
	s := NewStaticReputationScorer(map[string]float64{"trusted": 3})
	assert.Equal(t, 3.0, s.Reputation(ctx, "trusted", limits.RequestContext{}))
	assert.Equal(t, 1.0, s.Reputation(ctx, "stranger", limits.RequestContext{}))

	s.Set("stranger", 0.5)
	assert.Equal(t, 0.5, s.Reputation(ctx, "stranger", limits.RequestContext{}))
}
