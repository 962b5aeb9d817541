// Package limiter implements the two counting engines, token bucket and
// sliding window, on top of a store.Store.
package limiter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

// DefaultExpiryBuffer is added to every state TTL so a key never expires
// while it can still influence a decision.
const DefaultExpiryBuffer = 5 * time.Second

// Engine consumes cost units from the counter addressed by key.
// All engines read and write state through one store.Update call, which makes
// the read-refill-compare-write sequence atomic per key.
type Engine interface {
	Consume(ctx context.Context, key limits.Key, limit limits.Effective, cost int) (Result, error)
	Algorithm() limits.Algorithm
}

// Result is one engine's verdict for one key.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Count     int       `json:"count,omitempty"` // events in window after this call, sliding window only
	ResetAt   time.Time `json:"reset_at"`
	// RetryAfter is the wait in whole seconds before the same cost can be
	// admitted. Zero when allowed.
	RetryAfter int `json:"retry_after,omitempty"`
}

// Set holds one engine per algorithm.
type Set struct {
	TokenBucket   *TokenBucket
	SlidingWindow *SlidingWindow
}

// NewSet builds both engines over the same store and clock.
func NewSet(st store.Store, c clock.Clock, expiryBuffer time.Duration) *Set {
	return &Set{
		TokenBucket:   NewTokenBucket(st, c, expiryBuffer),
		SlidingWindow: NewSlidingWindow(st, c, expiryBuffer),
	}
}

// For returns the engine implementing algo.
func (s *Set) For(algo limits.Algorithm) (Engine, error) {
	switch algo {
	case limits.AlgorithmTokenBucket:
		return s.TokenBucket, nil
	case limits.AlgorithmSlidingWindow:
		return s.SlidingWindow, nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", algo)
	}
}

func storeKey(algo limits.Algorithm, key limits.Key) string {
	return string(algo) + ":" + key.Class + ":" + key.Identifier
}

func normalizeCost(cost int) int {
	if cost < 1 {
		return 1
	}
	return cost
}

// ceilSeconds rounds d up to whole seconds, never below 1.
func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
