package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmitUplenchwar2687/gatekeeper/pkg/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/config"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/store"
)

func TestNewFromConfig_LoginScenario(t *testing.T) {
	ctx := context.Background()
	vc := clock.NewVirtualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctrl, err := NewFromConfig(ctx, config.Default(), BuildOptions{Clock: vc})
	require.NoError(t, err)
	defer ctrl.Close()

	rc := RequestContext{IP: "203.0.113.7", UserID: "user-42", Endpoint: "POST /login"}
	for i := 0; i < 5; i++ {
		dec, err := ctrl.IsAllowed(ctx, "user-42", limits.Login, rc)
		require.NoError(t, err)
		require.True(t, dec.Allowed, "attempt %d", i+1)
	}

	dec, err := ctrl.IsAllowed(ctx, "user-42", limits.Login, rc)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, limits.Login, dec.Reason)
	assert.Equal(t, 167, dec.RetryAfter)
}

func TestNew_WithStoreAndRegistry(t *testing.T) {
	ctx := context.Background()
	vc := clock.NewVirtualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	st, err := store.NewMemoryStore(&store.MemoryConfig{Clock: vc})
	require.NoError(t, err)
	defer st.Close()

	reg, err := limits.NewRegistry([]limits.LimitClass{
		{Name: limits.Global, Capacity: 1000, Window: time.Minute, Algorithm: limits.AlgorithmSlidingWindow},
		{Name: "export", Capacity: 2, Window: time.Hour, Algorithm: limits.AlgorithmSlidingWindow},
	}, nil)
	require.NoError(t, err)

	ctrl, err := New(Options{Registry: reg, Store: st, Clock: vc})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		dec, err := ctrl.IsAllowed(ctx, "acme", "export", RequestContext{})
		require.NoError(t, err)
		assert.True(t, dec.Allowed)
	}
	dec, err := ctrl.IsAllowed(ctx, "acme", "export", RequestContext{})
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 3600, dec.RetryAfter)

	_, err = ctrl.IsAllowed(ctx, "acme", limits.Login, RequestContext{})
	assert.ErrorIs(t, err, limits.ErrUnknownLimitClass)
}

func TestBuildOptions_ReputationFunc(t *testing.T) {
	ctx := context.Background()
	vc := clock.NewVirtualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	trusted := ReputationFunc(func(_ context.Context, id string, _ RequestContext) float64 {
		if id == "trusted" {
			return 2
		}
		return 1
	})
	ctrl, err := NewFromConfig(ctx, config.Default(), BuildOptions{Clock: vc, Reputation: trusted})
	require.NoError(t, err)
	defer ctrl.Close()

	// search allows 50 per minute; a reputation of 2 doubles it.
	allowed := 0
	for i := 0; i < 120; i++ {
		dec, err := ctrl.IsAllowed(ctx, "trusted", limits.Search, RequestContext{})
		require.NoError(t, err)
		if dec.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 100, allowed)
}
