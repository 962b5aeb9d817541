// Package store provides the counter store behind the limiter engines: an
// atomic per-key read-modify-write over opaque state blobs.
package store

import (
	"context"
	"errors"
	"time"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var (
	// ErrUnavailable marks failures of the backing store itself (network,
	// timeout, contention). The admission controller fails open on it.
	ErrUnavailable = errors.New("counter store unavailable")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("counter store closed")
)

// UpdateFunc receives the current state for a key (nil when absent or
// expired) and returns the state to store.
type UpdateFunc func(cur []byte) ([]byte, error)

// Store is the keyed state backend for limiter engines.
// Implementations must be safe for concurrent use.
type Store interface {
	// Update atomically applies fn to the state stored under key. No other
	// Update for the same key interleaves between the read and the write.
	// ttl sets the expiry of the written value; zero means no expiry.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error

	// Get returns the stored state, or nil if the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Close releases backend resources. It is idempotent.
	Close() error
}
