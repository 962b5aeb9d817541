package store

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
)

var (
	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx   = context.Background()
)

func newTestMemoryStore(t *testing.T) (*MemoryStore, *clock.VirtualClock) {
	t.Helper()
	vc := clock.NewVirtualClock(epoch)
	s, err := NewMemoryStore(&MemoryConfig{CleanupInterval: time.Hour, Clock: vc})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, vc
}

func put(value []byte) UpdateFunc {
	return func([]byte) ([]byte, error) { return value, nil }
}

// incr treats the state as a big-endian counter.
func incr(cur []byte) ([]byte, error) {
	var n uint64
	if len(cur) == 8 {
		n = binary.BigEndian.Uint64(cur)
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, n+1)
	return out, nil
}

func TestMemoryStore_UpdateGet(t *testing.T) {
	s, _ := newTestMemoryStore(t)

	require.NoError(t, s.Update(ctx, "k", 0, put([]byte("hello"))))
	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(val))
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s, _ := newTestMemoryStore(t)

	val, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestMemoryStore_UpdateSeesCurrentState(t *testing.T) {
	s, _ := newTestMemoryStore(t)

	var seen []byte
	require.NoError(t, s.Update(ctx, "k", 0, put([]byte("v1"))))
	require.NoError(t, s.Update(ctx, "k", 0, func(cur []byte) ([]byte, error) {
		seen = cur
		return []byte("v2"), nil
	}))
	assert.Equal(t, "v1", string(seen))
}

func TestMemoryStore_Expiration(t *testing.T) {
	s, vc := newTestMemoryStore(t)

	require.NoError(t, s.Update(ctx, "k", 10*time.Second, put([]byte("v"))))

	vc.Advance(9 * time.Second)
	val, _ := s.Get(ctx, "k")
	assert.NotNil(t, val)

	vc.Advance(time.Second)
	val, _ = s.Get(ctx, "k")
	assert.Nil(t, val, "value should expire exactly at ttl")

	var seen []byte
	require.NoError(t, s.Update(ctx, "k", 0, func(cur []byte) ([]byte, error) {
		seen = cur
		return []byte("fresh"), nil
	}))
	assert.Nil(t, seen, "update should not observe expired state")
}

func TestMemoryStore_UpdateErrorKeepsState(t *testing.T) {
	s, _ := newTestMemoryStore(t)
	boom := errors.New("boom")

	require.NoError(t, s.Update(ctx, "k", 0, put([]byte("v1"))))
	err := s.Update(ctx, "k", 0, func([]byte) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	val, _ := s.Get(ctx, "k")
	assert.Equal(t, "v1", string(val))
}

func TestMemoryStore_Cleanup(t *testing.T) {
	s, vc := newTestMemoryStore(t)

	require.NoError(t, s.Update(ctx, "short", time.Second, put([]byte("a"))))
	require.NoError(t, s.Update(ctx, "long", time.Hour, put([]byte("b"))))
	require.NoError(t, s.Update(ctx, "forever", 0, put([]byte("c"))))
	assert.Equal(t, 3, s.Len())

	vc.Advance(time.Minute)
	assert.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_ConcurrentUpdatesAreAtomic(t *testing.T) {
	s, _ := newTestMemoryStore(t)

	const workers = 50
	const perWorker = 40

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				assert.NoError(t, s.Update(ctx, "counter", 0, incr))
			}
		}()
	}
	wg.Wait()

	val, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, uint64(workers*perWorker), binary.BigEndian.Uint64(val))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s, _ := newTestMemoryStore(t)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err := s.Update(cctx, "k", 0, put([]byte("v")))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_EmptyKey(t *testing.T) {
	s, _ := newTestMemoryStore(t)
	assert.Error(t, s.Update(ctx, "", 0, put(nil)))
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	s, err := NewMemoryStore(nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Update(ctx, "k", 0, put(nil)), ErrClosed)
}

func TestNewMemoryStore_NegativeInterval(t *testing.T) {
	_, err := NewMemoryStore(&MemoryConfig{CleanupInterval: -time.Second})
	assert.Error(t, err)
}

func TestFailingStore(t *testing.T) {
	var s Store = FailingStore{}
	assert.ErrorIs(t, s.Update(ctx, "k", 0, put(nil)), ErrUnavailable)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, s.Close())
}
