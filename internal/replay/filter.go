package replay

import (
	"slices"
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

// Filter selects which recorded events are replayed.
type Filter struct {
	Identifiers []string  // empty means all
	Endpoints   []string  // exact or substring match; empty means all
	After       time.Time // zero means no lower bound
	Before      time.Time // zero means no upper bound
}

// Match reports whether ev passes the filter.
func (f *Filter) Match(ev recorder.DecisionEvent) bool {
	if len(f.Identifiers) > 0 && !slices.Contains(f.Identifiers, ev.Identifier) {
		return false
	}
	if len(f.Endpoints) > 0 && !matchEndpoint(f.Endpoints, ev.Request.Endpoint) {
		return false
	}
	if !f.After.IsZero() && !ev.Time.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !ev.Time.Before(f.Before) {
		return false
	}
	return true
}

func matchEndpoint(patterns []string, endpoint string) bool {
	for _, p := range patterns {
		if p == endpoint || strings.Contains(endpoint, p) {
			return true
		}
	}
	return false
}
