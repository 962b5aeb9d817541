package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

var (
	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx   = context.Background()
)

func newTestStore(t testing.TB, vc *clock.VirtualClock) *store.MemoryStore {
	t.Helper()
	st, err := store.NewMemoryStore(&store.MemoryConfig{CleanupInterval: time.Hour, Clock: vc})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func tokenBucketLimit(capacity, burst int, window time.Duration, rate float64) limits.Effective {
	return limits.Effective{
		Class:      "tb",
		Algorithm:  limits.AlgorithmTokenBucket,
		Capacity:   capacity,
		Burst:      burst,
		Window:     window,
		RefillRate: rate,
		Multiplier: 1,
	}
}

func slidingLimit(capacity int, window time.Duration) limits.Effective {
	return limits.Effective{
		Class:      "sw",
		Algorithm:  limits.AlgorithmSlidingWindow,
		Capacity:   capacity,
		Window:     window,
		RefillRate: float64(capacity) / window.Seconds(),
		Multiplier: 1,
	}
}

func key(id string) limits.Key {
	return limits.Key{Identifier: id, Class: "test"}
}
