package coordinator

import "sync"

// GCounter is a grow-only counter CRDT.
// It keeps per-node counts and merges by taking max per node.
type GCounter struct {
	mu     sync.RWMutex
	counts map[string]int64
}

// NewGCounter creates an empty grow-only counter.
func NewGCounter() *GCounter {
	return &GCounter{counts: make(map[string]int64)}
}

// Increment increases nodeID's count by delta.
func (g *GCounter) Increment(nodeID string, delta int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts[nodeID] += delta
}

// Merge folds another replica's counts in. Merging is idempotent and
// commutative, so gossip can be repeated or reordered freely.
func (g *GCounter) Merge(other map[string]int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	changed := false
	for nodeID, c := range other {
		if c > g.counts[nodeID] {
			g.counts[nodeID] = c
			changed = true
		}
	}
	return changed
}

// Total returns the sum of all node counts.
func (g *GCounter) Total() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.totalLocked()
}

func (g *GCounter) totalLocked() int64 {
	var total int64
	for _, c := range g.counts {
		total += c
	}
	return total
}

// Snapshot returns a copy of the per-node counts.
func (g *GCounter) Snapshot() map[string]int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]int64, len(g.counts))
	for nodeID, c := range g.counts {
		out[nodeID] = c
	}
	return out
}

// Reserve adds cost to nodeID's count if the total stays within limit. It
// returns whether it did and the total after the call.
func (g *GCounter) Reserve(nodeID string, limit, cost int64) (bool, int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := g.totalLocked()
	if total+cost > limit {
		return false, total
	}
	g.counts[nodeID] += cost
	return true, total + cost
}
