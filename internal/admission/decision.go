package admission

import (
	"encoding/json"
	"time"
)

// Decision is the aggregate verdict of one admission check.
type Decision struct {
	Allowed bool
	// Remaining is the capacity left per class checked.
	Remaining map[string]int
	// ResetTimes is when each checked class is fully replenished.
	ResetTimes map[string]time.Time
	// RetryAfter is the wait in seconds before retrying. Zero when allowed.
	RetryAfter int
	// Reason names the class that denied the request.
	Reason        string
	LimitsChecked []string
	// Degraded is set when a class was skipped because the counter store
	// was unavailable.
	Degraded bool
}

type decisionJSON struct {
	Allowed       bool             `json:"allowed"`
	Remaining     map[string]int   `json:"remaining"`
	ResetTimes    map[string]int64 `json:"reset_times"`
	RetryAfter    int              `json:"retry_after"`
	Reason        string           `json:"reason,omitempty"`
	LimitsChecked []string         `json:"limits_checked"`
	Degraded      bool             `json:"degraded,omitempty"`
}

// MarshalJSON encodes reset times as unix seconds.
func (d Decision) MarshalJSON() ([]byte, error) {
	out := decisionJSON{
		Allowed:       d.Allowed,
		Remaining:     d.Remaining,
		ResetTimes:    make(map[string]int64, len(d.ResetTimes)),
		RetryAfter:    d.RetryAfter,
		Reason:        d.Reason,
		LimitsChecked: d.LimitsChecked,
		Degraded:      d.Degraded,
	}
	for class, t := range d.ResetTimes {
		out.ResetTimes[class] = t.Unix()
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var in decisionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*d = Decision{
		Allowed:       in.Allowed,
		Remaining:     in.Remaining,
		ResetTimes:    make(map[string]time.Time, len(in.ResetTimes)),
		RetryAfter:    in.RetryAfter,
		Reason:        in.Reason,
		LimitsChecked: in.LimitsChecked,
		Degraded:      in.Degraded,
	}
	for class, s := range in.ResetTimes {
		d.ResetTimes[class] = time.Unix(s, 0)
	}
	return nil
}

// MinRemaining returns the smallest remaining capacity across the checked
// classes, or -1 when none reported.
func (d Decision) MinRemaining() int {
	lowest := -1
	for _, r := range d.Remaining {
		if lowest < 0 || r < lowest {
			lowest = r
		}
	}
	return lowest
}

// LatestReset returns the furthest reset time across the checked classes.
func (d Decision) LatestReset() time.Time {
	var latest time.Time
	for _, t := range d.ResetTimes {
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}
