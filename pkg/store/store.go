// Package store exposes the counter stores for embedders that build an
// admission controller by hand.
package store

import (
	"context"

	internalstore "github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

const (
	BackendMemory = internalstore.BackendMemory
	BackendRedis  = internalstore.BackendRedis
)

// ErrUnavailable marks store failures the controller fails open on.
var ErrUnavailable = internalstore.ErrUnavailable

// Store is the atomic per-key counter store.
type Store = internalstore.Store

// MemoryConfig configures the in-memory backend.
type MemoryConfig = internalstore.MemoryConfig

// RedisConfig configures the Redis backend.
type RedisConfig = internalstore.RedisConfig

// NewMemoryStore constructs a memory-backed Store.
func NewMemoryStore(cfg *MemoryConfig) (*internalstore.MemoryStore, error) {
	return internalstore.NewMemoryStore(cfg)
}

// NewRedisStore connects to Redis and returns a Store.
func NewRedisStore(ctx context.Context, cfg *RedisConfig) (*internalstore.RedisStore, error) {
	return internalstore.NewRedisStore(ctx, cfg)
}
