package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
)

const (
	memoryShardCount          = 256
	defaultMemoryCleanupEvery = time.Minute
)

// MemoryConfig configures the in-memory backend.
type MemoryConfig struct {
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	Clock           clock.Clock   `json:"-" yaml:"-"`
}

// MemoryStore is a single-process Store. Each key owns its own mutex, so
// updates to different keys never wait on each other; the shard lock only
// guards map membership.
type MemoryStore struct {
	clock  clock.Clock
	shards [memoryShardCount]*memoryShard

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

type memoryShard struct {
	mu    sync.RWMutex
	items map[string]*memItem
}

type memItem struct {
	mu        sync.Mutex
	value     []byte
	expiresAt time.Time // zero value means no expiration
	deleted   bool
}

// NewMemoryStore constructs a memory-backed Store and starts its cleanup loop.
func NewMemoryStore(cfg *MemoryConfig) (*MemoryStore, error) {
	interval := defaultMemoryCleanupEvery
	var c clock.Clock
	if cfg != nil {
		if cfg.CleanupInterval < 0 {
			return nil, fmt.Errorf("cleanup_interval must not be negative, got %s", cfg.CleanupInterval)
		}
		if cfg.CleanupInterval > 0 {
			interval = cfg.CleanupInterval
		}
		c = cfg.Clock
	}

	s := &MemoryStore{
		clock:  clock.OrReal(c),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		closed: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &memoryShard{items: make(map[string]*memItem)}
	}
	go s.cleanupLoop(interval)

	return s, nil
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%memoryShardCount]
}

// acquire returns the locked item for key, creating it when missing.
func (s *MemoryStore) acquire(key string) *memItem {
	sh := s.shard(key)
	for {
		sh.mu.RLock()
		item, ok := sh.items[key]
		sh.mu.RUnlock()

		if !ok {
			sh.mu.Lock()
			item, ok = sh.items[key]
			if !ok {
				item = &memItem{}
				sh.items[key] = item
			}
			sh.mu.Unlock()
		}

		item.mu.Lock()
		if !item.deleted {
			return item
		}
		// Lost a race with cleanup; look the key up again.
		item.mu.Unlock()
	}
}

func (s *MemoryStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}

	item := s.acquire(key)
	defer item.mu.Unlock()

	now := s.clock.Now()
	var cur []byte
	if item.value != nil && (item.expiresAt.IsZero() || now.Before(item.expiresAt)) {
		cur = make([]byte, len(item.value))
		copy(cur, item.value)
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}

	item.value = make([]byte, len(next))
	copy(item.value, next)
	item.expiresAt = time.Time{}
	if ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, err
	}

	sh := s.shard(key)
	sh.mu.RLock()
	item, ok := sh.items[key]
	sh.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	item.mu.Lock()
	defer item.mu.Unlock()
	if item.deleted || item.value == nil {
		return nil, nil
	}
	if !item.expiresAt.IsZero() && !s.clock.Now().Before(item.expiresAt) {
		return nil, nil
	}
	val := make([]byte, len(item.value))
	copy(val, item.value)
	return val, nil
}

func (s *MemoryStore) check(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	case <-s.closed:
		return ErrClosed
	default:
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}
	return nil
}

// Len returns the number of keys held, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Cleanup removes expired keys. It runs periodically in the background and
// may also be called directly.
func (s *MemoryStore) Cleanup() int {
	now := s.clock.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, item := range sh.items {
			item.mu.Lock()
			expired := item.value == nil || (!item.expiresAt.IsZero() && !now.Before(item.expiresAt))
			if expired {
				item.deleted = true
				delete(sh.items, key)
				removed++
			}
			item.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		close(s.doneCh)
	}()

	for {
		select {
		case <-ticker.C:
			if n := s.Cleanup(); n > 0 {
				log.WithField("removed", n).Debug("memory store: swept expired keys")
			}
		case <-s.stopCh:
			return
		}
	}
}

// Close stops background cleanup. It is idempotent.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		close(s.stopCh)
		<-s.doneCh
	})
	return nil
}
