// Package coordinator shares admitted request counts across gatekeeper
// nodes so a limit holds cluster-wide, with eventual consistency.
package coordinator

import (
	"context"
	"time"
)

// Coordinator reserves capacity for a key across the cluster.
type Coordinator interface {
	// Reserve admits cost units against the cluster-wide count for key in
	// the current window and returns the merged total after the call.
	Reserve(ctx context.Context, key string, window time.Duration, limit, cost int) (bool, int64, error)
	Close() error
}

// Noop admits everything. It is used when coordination is disabled.
type Noop struct{}

func (Noop) Reserve(context.Context, string, time.Duration, int, int) (bool, int64, error) {
	return true, 0, nil
}

func (Noop) Close() error { return nil }
