package limiter

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

// tokenEpsilon absorbs float drift so a caller who waits exactly RetryAfter
// is admitted.
const tokenEpsilon = 1e-9

// TokenBucket implements the token bucket algorithm.
//
// Tokens accrue continuously at RefillRate up to Capacity+Burst and each
// request spends cost tokens. A new bucket starts with Capacity tokens, so
// the burst allowance is earned by staying idle. Short spikes are absorbed
// while the long-run rate stays at RefillRate, which suits login and write
// paths.
type TokenBucket struct {
	store        store.Store
	clock        clock.Clock
	expiryBuffer time.Duration
}

// NewTokenBucket creates a token bucket engine over st.
func NewTokenBucket(st store.Store, c clock.Clock, expiryBuffer time.Duration) *TokenBucket {
	if expiryBuffer <= 0 {
		expiryBuffer = DefaultExpiryBuffer
	}
	return &TokenBucket{
		store:        st,
		clock:        clock.OrReal(c),
		expiryBuffer: expiryBuffer,
	}
}

func (tb *TokenBucket) Algorithm() limits.Algorithm {
	return limits.AlgorithmTokenBucket
}

func (tb *TokenBucket) Consume(ctx context.Context, key limits.Key, limit limits.Effective, cost int) (Result, error) {
	cost = normalizeCost(cost)
	maxTokens := limit.MaxTokens()
	rate := limit.RefillRate

	var res Result
	err := tb.store.Update(ctx, storeKey(limits.AlgorithmTokenBucket, key), tb.ttl(limit), func(cur []byte) ([]byte, error) {
		now := tb.clock.Now()

		state, ok := decodeBucket(cur)
		if !ok {
			if cur != nil {
				log.WithField("key", key.String()).Warn("token bucket: discarding unreadable state")
			}
			state = bucketState{tokens: float64(limit.Capacity), lastRefill: now}
		}

		// A clock that steps backwards yields no tokens, and lastRefill
		// stays put so the same span is not credited twice once it recovers.
		elapsed := now.Sub(state.lastRefill).Seconds()
		if elapsed > 0 {
			state.tokens = math.Min(maxTokens, state.tokens+elapsed*rate)
			state.lastRefill = now
		}
		// Scaling can shrink the ceiling between calls.
		if state.tokens > maxTokens {
			state.tokens = maxTokens
		}

		if state.tokens+tokenEpsilon >= float64(cost) {
			state.tokens = math.Max(0, state.tokens-float64(cost))
			res = Result{Allowed: true}
		} else {
			res = Result{
				Allowed:    false,
				RetryAfter: ceilSeconds(secondsToDuration((float64(cost) - state.tokens) / rate)),
			}
		}

		res.Remaining = int(math.Floor(state.tokens + tokenEpsilon))
		res.ResetAt = now.Add(secondsToDuration((maxTokens - state.tokens) / rate))
		return encodeBucket(state), nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// ttl keeps the state at least until the bucket would be full again, so an
// expired bucket never restarts with fewer tokens than it had earned.
func (tb *TokenBucket) ttl(limit limits.Effective) time.Duration {
	full := secondsToDuration(limit.MaxTokens() / limit.RefillRate)
	if full < limit.Window {
		full = limit.Window
	}
	return full + tb.expiryBuffer
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
