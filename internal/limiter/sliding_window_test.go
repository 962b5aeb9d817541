package limiter

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

func newTestSlidingWindow(t *testing.T) (*SlidingWindow, *clock.VirtualClock) {
	t.Helper()
	vc := clock.NewVirtualClock(epoch)
	return NewSlidingWindow(newTestStore(t, vc), vc, 0), vc
}

func TestSlidingWindow_BasicAllow(t *testing.T) {
	sw, vc := newTestSlidingWindow(t)

	res, err := sw.Consume(ctx, key("user1"), slidingLimit(5, time.Minute), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, 1, res.Count)
	assert.True(t, res.ResetAt.Equal(vc.Now().Add(time.Minute)))
}

func TestSlidingWindow_SearchScenario(t *testing.T) {
	sw, vc := newTestSlidingWindow(t)
	search, err := limits.DefaultRegistry().Lookup(limits.Search)
	require.NoError(t, err)
	lim := search.Effective()

	for i := 0; i < 50; i++ {
		res, err := sw.Consume(ctx, key("bob"), lim, 1)
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d should be allowed", i+1)
	}

	res, err := sw.Consume(ctx, key("bob"), lim, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 60, res.RetryAfter)
	assert.Equal(t, 0, res.Remaining)

	vc.Advance(61 * time.Second)
	res, err = sw.Consume(ctx, key("bob"), lim, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 49, res.Remaining)
}

func TestSlidingWindow_Exactness(t *testing.T) {
	sw, vc := newTestSlidingWindow(t)
	const eps = time.Millisecond
	window := 10 * time.Second
	lim := slidingLimit(3, window)

	start := vc.Now()
	for i := 0; i < 3; i++ {
		res, err := sw.Consume(ctx, key("u"), lim, 1)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		vc.Advance(eps)
	}

	vc.Set(start.Add(window - eps))
	res, err := sw.Consume(ctx, key("u"), lim, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "earliest event is still inside the window")

	vc.Set(start.Add(window + eps))
	res, err = sw.Consume(ctx, key("u"), lim, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "earliest event has left the window")
}

func TestSlidingWindow_BoundaryIsHalfOpen(t *testing.T) {
	sw, vc := newTestSlidingWindow(t)
	window := 10 * time.Second
	lim := slidingLimit(1, window)

	start := vc.Now()
	res, err := sw.Consume(ctx, key("u"), lim, 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	vc.Set(start.Add(window - time.Nanosecond))
	res, err = sw.Consume(ctx, key("u"), lim, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "one nanosecond before a full window")

	// An event exactly one window old is no longer counted.
	vc.Set(start.Add(window))
	res, err = sw.Consume(ctx, key("u"), lim, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "exactly one window later")
}

func TestSlidingWindow_LargeCapacityLogIsBounded(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	st := newTestStore(t, vc)
	sw := NewSlidingWindow(st, vc, 0)
	lim := slidingLimit(10000, time.Minute)

	for i := 0; i < 5000; i++ {
		res, err := sw.Consume(ctx, key("*"), lim, 1)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		vc.Advance(time.Millisecond)
	}

	raw, err := st.Get(ctx, storeKey(limits.AlgorithmSlidingWindow, key("*")))
	require.NoError(t, err)
	entries, ok := decodeWindow(raw)
	require.True(t, ok)
	// 5s of traffic in 100ms slots.
	assert.LessOrEqual(t, len(entries), 51)

	res, err := sw.Consume(ctx, key("*"), lim, 1)
	require.NoError(t, err)
	assert.Equal(t, 5001, res.Count)
}

func TestSlidingWindow_LargeCapacityNeverExpiresEarly(t *testing.T) {
	sw, vc := newTestSlidingWindow(t)
	window := 10 * time.Second
	lim := slidingLimit(1000, window)
	slot := window / windowLogMaxEntries

	start := vc.Now()
	res, err := sw.Consume(ctx, key("u"), lim, 1000)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	vc.Set(start.Add(window - time.Nanosecond))
	res, err = sw.Consume(ctx, key("u"), lim, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	vc.Set(start.Add(window + slot))
	res, err = sw.Consume(ctx, key("u"), lim, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSlidingWindow_RetryAfterIsExact(t *testing.T) {
	sw, vc := newTestSlidingWindow(t)
	lim := slidingLimit(2, 30*time.Second)

	_, _ = sw.Consume(ctx, key("u"), lim, 1)
	vc.Advance(10 * time.Second)
	_, _ = sw.Consume(ctx, key("u"), lim, 1)

	res, err := sw.Consume(ctx, key("u"), lim, 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	assert.Equal(t, 20, res.RetryAfter)

	vc.Advance(time.Duration(res.RetryAfter) * time.Second)
	res, err = sw.Consume(ctx, key("u"), lim, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSlidingWindow_RetryAfterClampedToOneSecond(t *testing.T) {
	sw, vc := newTestSlidingWindow(t)
	lim := slidingLimit(1, time.Second)

	_, _ = sw.Consume(ctx, key("u"), lim, 1)
	vc.Advance(900 * time.Millisecond)

	res, err := sw.Consume(ctx, key("u"), lim, 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	assert.Equal(t, 1, res.RetryAfter)
}

func TestSlidingWindow_CostFreesEnoughEntries(t *testing.T) {
	sw, vc := newTestSlidingWindow(t)
	lim := slidingLimit(4, time.Minute)

	for i := 0; i < 4; i++ {
		_, _ = sw.Consume(ctx, key("u"), lim, 1)
		vc.Advance(10 * time.Second)
	}

	// Now at t=40s with entries at 0,10,20,30. Cost 2 needs the first two
	// entries gone, which happens when the one at 10s expires.
	res, err := sw.Consume(ctx, key("u"), lim, 2)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	assert.Equal(t, 30, res.RetryAfter)
	assert.Equal(t, 4, res.Count)
}

func TestSlidingWindow_CostAboveCapacity(t *testing.T) {
	sw, _ := newTestSlidingWindow(t)

	res, err := sw.Consume(ctx, key("u"), slidingLimit(3, time.Minute), 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 60, res.RetryAfter)
}

func TestSlidingWindow_CostConsumesSlots(t *testing.T) {
	sw, _ := newTestSlidingWindow(t)
	lim := slidingLimit(5, time.Minute)

	res, err := sw.Consume(ctx, key("u"), lim, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, 3, res.Count)
}

func TestSlidingWindow_ClockMovingBackwards(t *testing.T) {
	sw, vc := newTestSlidingWindow(t)
	lim := slidingLimit(3, time.Minute)

	_, _ = sw.Consume(ctx, key("u"), lim, 1)
	vc.Rewind(30 * time.Second)

	res, err := sw.Consume(ctx, key("u"), lim, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Count)
	assert.GreaterOrEqual(t, res.RetryAfter, 0)
}

func TestSlidingWindow_SeparateKeys(t *testing.T) {
	sw, _ := newTestSlidingWindow(t)
	lim := slidingLimit(1, time.Minute)

	res, _ := sw.Consume(ctx, key("a"), lim, 1)
	require.True(t, res.Allowed)
	res, _ = sw.Consume(ctx, key("a"), lim, 1)
	require.False(t, res.Allowed)

	res, _ = sw.Consume(ctx, key("b"), lim, 1)
	assert.True(t, res.Allowed)
}

func TestSlidingWindow_ConcurrentNeverOverAdmits(t *testing.T) {
	sw, _ := newTestSlidingWindow(t)
	lim := slidingLimit(25, time.Minute)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := sw.Consume(ctx, key("hot"), lim, 1)
			if assert.NoError(t, err) && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(25), allowed.Load())
}

func TestTokenBucket_ConcurrentNeverOverAdmits(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	tb := NewTokenBucket(newTestStore(t, vc), vc, 0)
	lim := tokenBucketLimit(30, 5, time.Minute, 0.5)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := tb.Consume(ctx, key("hot"), lim, 1)
			if assert.NoError(t, err) && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(30), allowed.Load())
}

func TestSet_For(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	set := NewSet(newTestStore(t, vc), vc, 0)

	e, err := set.For(limits.AlgorithmTokenBucket)
	require.NoError(t, err)
	assert.Equal(t, limits.AlgorithmTokenBucket, e.Algorithm())

	e, err = set.For(limits.AlgorithmSlidingWindow)
	require.NoError(t, err)
	assert.Equal(t, limits.AlgorithmSlidingWindow, e.Algorithm())

	_, err = set.For("fixed_window")
	assert.Error(t, err)
}

func TestWindowCodec_RejectsCorruptInput(t *testing.T) {
	_, ok := decodeWindow([]byte{1, 2, 3})
	assert.False(t, ok)

	out := encodeWindow([]windowEntry{{at: 20, n: 1}, {at: 10, n: 1}})
	_, ok = decodeWindow(out)
	assert.False(t, ok, "out-of-order entries are corrupt")

	entries, ok := decodeWindow(encodeWindow([]windowEntry{{at: 10, n: 2}, {at: 20, n: 1}}))
	require.True(t, ok)
	assert.Len(t, entries, 2)
}
