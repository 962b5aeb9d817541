package adaptive

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

var ctx = context.Background()

func userClass() limits.LimitClass {
	return limits.LimitClass{
		Name:       limits.User,
		Capacity:   300,
		Window:     time.Minute,
		Burst:      30,
		RefillRate: 5,
		Algorithm:  limits.AlgorithmSlidingWindow,
	}
}

func constReputation(f float64) ReputationFunc {
	return func(context.Context, string, limits.RequestContext) float64 { return f }
}

func constThreat(f float64) ThreatFunc {
	return func(context.Context, string, limits.RequestContext) float64 { return f }
}

func constLoad(f float64) LoadFunc {
	return func(context.Context) float64 { return f }
}

func TestCalculator_NeutralLeavesClassUnchanged(t *testing.T) {
	calc := NewCalculator(DefaultConfig(), nil, nil, nil)

	eff := calc.Effective(ctx, "alice", userClass(), limits.RequestContext{})
	assert.Equal(t, userClass().Effective(), eff)
}

func TestCalculator_Multiplier(t *testing.T) {
	tests := []struct {
		name       string
		reputation float64
		threat     float64
		load       float64
		want       float64
	}{
		{"good reputation raises", 2, 1, 1, 2},
		{"threat lowers", 1, 0.5, 1, 0.5},
		{"load lowers", 1, 1, 4, 0.25},
		{"combined", 2, 0.5, 2, 0.5},
		{"clamped to max", 100, 1, 1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := NewCalculator(DefaultConfig(), constReputation(tt.reputation), constThreat(tt.threat), constLoad(tt.load))
			assert.InDelta(t, tt.want, calc.Multiplier(ctx, "id", limits.RequestContext{}), 1e-12)
		})
	}
}

func TestCalculator_InvalidFactorsAreNeutral(t *testing.T) {
	for _, bad := range []float64{0, -3, math.NaN(), math.Inf(1)} {
		calc := NewCalculator(DefaultConfig(), constReputation(bad), constThreat(bad), constLoad(bad))
		assert.Equal(t, 1.0, calc.Multiplier(ctx, "id", limits.RequestContext{}), "factor %v", bad)
	}
}

func TestCalculator_ScaleFloorsAndRefill(t *testing.T) {
	calc := NewCalculator(Config{MinRequestsPerWindow: 5, MinBurst: 2, MaxMultiplier: 10}, nil, nil, nil)

	eff := calc.Scale(userClass(), 0.5)
	assert.Equal(t, 150, eff.Capacity)
	assert.Equal(t, 15, eff.Burst)
	assert.InDelta(t, 2.5, eff.RefillRate, 1e-12)
	assert.Equal(t, 0.5, eff.Multiplier)

	eff = calc.Scale(userClass(), 0.001)
	assert.Equal(t, 5, eff.Capacity, "capacity floored at MinRequestsPerWindow")
	assert.Equal(t, 2, eff.Burst, "burst floored at MinBurst")
	assert.Positive(t, eff.RefillRate)
}

func TestCalculator_BurstNeverExceedsCapacity(t *testing.T) {
	calc := NewCalculator(Config{MinRequestsPerWindow: 1, MinBurst: 10, MaxMultiplier: 10}, nil, nil, nil)

	eff := calc.Scale(limits.LimitClass{
		Name: "tiny", Capacity: 4, Window: time.Second, RefillRate: 4, Algorithm: limits.AlgorithmTokenBucket,
	}, 1.5)
	assert.Equal(t, 6, eff.Capacity)
	assert.Equal(t, 6, eff.Burst)
}

func TestCalculator_NeverScalesToZero(t *testing.T) {
	calc := NewCalculator(Config{}, constReputation(1e-9), nil, nil)

	eff := calc.Effective(ctx, "id", userClass(), limits.RequestContext{})
	require.GreaterOrEqual(t, eff.Capacity, 1)
	assert.GreaterOrEqual(t, eff.Burst, 0)
}

func TestCalculator_ThreatSanitized(t *testing.T) {
	calc := NewCalculator(DefaultConfig(), nil, constThreat(-1), nil)
	assert.Equal(t, 1.0, calc.Threat(ctx, "id", limits.RequestContext{}))
}

func TestCalculator_Assess(t *testing.T) {
	calc := NewCalculator(DefaultConfig(), constReputation(3), constThreat(0.5), constLoad(1.5))

	a := calc.Assess(ctx, "id", limits.RequestContext{})
	assert.Equal(t, 3.0, a.Reputation)
	assert.Equal(t, 0.5, a.Threat)
	assert.Equal(t, 1.5, a.Load)
	assert.InDelta(t, 1.0, a.Multiplier, 1e-12)
}
