package recorder

import (
	"encoding/json"
	"time"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

// DecisionEvent is one admission outcome. Events are streamed as NDJSON,
// published to the live feed and kept for export.
type DecisionEvent struct {
	ID         string                `json:"id"`
	Time       time.Time             `json:"time"`
	Identifier string                `json:"identifier"`
	Class      string                `json:"class"` // class that decided the outcome
	Allowed    bool                  `json:"allowed"`
	Request    limits.RequestContext `json:"request"`
}

// LimitCount is the number of violations one class collected.
type LimitCount struct {
	Class string `json:"class"`
	Count int64  `json:"count"`
}

// Statistics aggregates outcomes over a trailing period.
type Statistics struct {
	TotalRequests     int64         `json:"total_requests"`
	BlockedRequests   int64         `json:"blocked_requests"`
	BlockRate         float64       `json:"block_rate"`
	TopViolatedLimits []LimitCount  `json:"top_violated_limits"`
	Period            time.Duration `json:"-"`
}

// MarshalJSON renders Period as a duration string such as "1h0m0s".
func (s Statistics) MarshalJSON() ([]byte, error) {
	type alias Statistics
	return json.Marshal(struct {
		alias
		Period string `json:"period"`
	}{alias: alias(s), Period: s.Period.String()})
}

// minuteBucket holds the counts for one wall-clock minute.
type minuteBucket struct {
	total      int64
	blocked    int64
	violations map[string]int64
}
