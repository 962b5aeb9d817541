package limiter

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

// windowLogMaxEntries bounds the log of one key. Classes with a larger
// capacity record timestamps rounded up to window/windowLogMaxEntries.
const windowLogMaxEntries = 600

// SlidingWindow implements the sliding window log algorithm.
//
// It keeps the timestamp of every admitted event and counts those inside the
// trailing window (now-window, now]. Events sharing a timestamp share one
// entry. For capacities up to windowLogMaxEntries counting is exact; above
// that, timestamps are rounded up to a slot so an event can only stay in the
// window slightly longer, never shorter. Expired entries are purged on every
// access.
type SlidingWindow struct {
	store        store.Store
	clock        clock.Clock
	expiryBuffer time.Duration
}

// NewSlidingWindow creates a sliding window engine over st.
func NewSlidingWindow(st store.Store, c clock.Clock, expiryBuffer time.Duration) *SlidingWindow {
	if expiryBuffer <= 0 {
		expiryBuffer = DefaultExpiryBuffer
	}
	return &SlidingWindow{
		store:        st,
		clock:        clock.OrReal(c),
		expiryBuffer: expiryBuffer,
	}
}

func (sw *SlidingWindow) Algorithm() limits.Algorithm {
	return limits.AlgorithmSlidingWindow
}

func (sw *SlidingWindow) Consume(ctx context.Context, key limits.Key, limit limits.Effective, cost int) (Result, error) {
	cost = normalizeCost(cost)
	window := limit.Window

	var res Result
	err := sw.store.Update(ctx, storeKey(limits.AlgorithmSlidingWindow, key), window+sw.expiryBuffer, func(cur []byte) ([]byte, error) {
		now := sw.clock.Now()
		windowStart := now.Add(-window).UnixNano()

		entries, ok := decodeWindow(cur)
		if !ok {
			log.WithField("key", key.String()).Warn("sliding window: discarding unreadable state")
			entries = nil
		}

		// Prune expired entries.
		first := 0
		for first < len(entries) && entries[first].at <= windowStart {
			first++
		}
		entries = entries[first:]

		count := 0
		for _, e := range entries {
			count += int(e.n)
		}

		if count+cost <= limit.Capacity {
			at := entryTime(now, window, limit.Capacity)
			if n := len(entries); n > 0 && entries[n-1].at >= at {
				// Same slot, or a clock that stepped back: fold into the
				// newest entry to keep the log ordered.
				entries[n-1].n += uint32(cost)
			} else {
				entries = append(entries, windowEntry{at: at, n: uint32(cost)})
			}
			count += cost
			res = Result{
				Allowed:   true,
				Remaining: limit.Capacity - count,
				Count:     count,
				ResetAt:   time.Unix(0, entries[0].at).Add(window),
			}
			return encodeWindow(entries), nil
		}

		res = Result{
			Allowed:    false,
			Remaining:  max(0, limit.Capacity-count),
			Count:      count,
			RetryAfter: retryAfterWindow(entries, now, window, count+cost-limit.Capacity, cost > limit.Capacity),
		}
		if len(entries) > 0 {
			res.ResetAt = time.Unix(0, entries[0].at).Add(window)
		} else {
			res.ResetAt = now.Add(window)
		}
		return encodeWindow(entries), nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// entryTime is the timestamp an event admitted at now is logged under.
func entryTime(now time.Time, window time.Duration, capacity int) int64 {
	at := now.UnixNano()
	if capacity <= windowLogMaxEntries {
		return at
	}
	slot := int64(window) / windowLogMaxEntries
	if slot <= 1 {
		return at
	}
	if rem := at % slot; rem != 0 {
		at += slot - rem
	}
	return at
}

// retryAfterWindow returns the seconds until enough of the oldest entries
// leave the window to free `needed` slots. For a cost of one this is the
// moment the oldest entry expires.
func retryAfterWindow(entries []windowEntry, now time.Time, window time.Duration, needed int, impossible bool) int {
	if impossible || len(entries) == 0 {
		return ceilSeconds(window)
	}
	freed := 0
	for _, e := range entries {
		freed += int(e.n)
		if freed >= needed {
			return ceilSeconds(time.Unix(0, e.at).Add(window).Sub(now))
		}
	}
	return ceilSeconds(window)
}
