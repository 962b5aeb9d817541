// Package replay re-runs recorded decision events through an admission
// controller on a virtual clock, so a limit catalog can be tried against
// real traffic without waiting for it.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/admission"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

// ErrNoEvents is returned by Run when nothing was loaded.
var ErrNoEvents = errors.New("no events loaded")

// Checker is the admission entry point replayed events go through.
type Checker interface {
	IsAllowed(ctx context.Context, identifier, limitType string, rc limits.RequestContext) (admission.Decision, error)
}

// Replayer feeds recorded events to a Checker, advancing a virtual clock
// by the recorded gaps.
type Replayer struct {
	events    []recorder.DecisionEvent
	checker   Checker
	clock     *clock.VirtualClock
	filter    Filter
	limitType string
	speed     float64 // 1.0 = real-time, 10.0 = 10x, 0 = instant
}

// Result is the replayed outcome of one event.
type Result struct {
	Event    recorder.DecisionEvent `json:"event"`
	Decision admission.Decision     `json:"decision"`
	Time     time.Time              `json:"time"` // virtual time of the check
	// Changed is set when the replayed outcome differs from the recorded one.
	Changed bool `json:"changed"`
}

// Summary aggregates a replay.
type Summary struct {
	TotalEvents   int                          `json:"total_events"`
	Filtered      int                          `json:"filtered"`
	Replayed      int                          `json:"replayed"`
	Allowed       int                          `json:"allowed"`
	Denied        int                          `json:"denied"`
	Changed       int                          `json:"changed"`
	Duration      time.Duration                `json:"duration"`      // virtual time span
	WallDuration  time.Duration                `json:"wall_duration"` // actual wall clock time
	PerIdentifier map[string]IdentifierSummary `json:"per_identifier"`
}

// IdentifierSummary holds per-identifier counts.
type IdentifierSummary struct {
	Allowed int `json:"allowed"`
	Denied  int `json:"denied"`
}

// New creates a replayer. Every event is checked against limitType
// ("default" when empty); endpoint classes still apply through the
// recorded endpoint.
func New(checker Checker, vc *clock.VirtualClock, limitType string, speed float64, filter Filter) *Replayer {
	if speed < 0 {
		speed = 0
	}
	return &Replayer{
		checker:   checker,
		clock:     vc,
		limitType: limitType,
		speed:     speed,
		filter:    filter,
	}
}

// Load reads events from a JSON array as written by Recorder.ExportJSON.
func (r *Replayer) Load(rd io.Reader) error {
	events, err := recorder.LoadJSON(rd)
	if err != nil {
		return fmt.Errorf("loading events: %w", err)
	}
	r.events = events
	return nil
}

// LoadEvents sets the events directly.
func (r *Replayer) LoadEvents(events []recorder.DecisionEvent) {
	r.events = append([]recorder.DecisionEvent(nil), events...)
}

// Run replays the loaded events in time order, calling cb with each
// result. The virtual clock is moved to the first event's time if it is
// behind it.
func (r *Replayer) Run(ctx context.Context, cb func(Result)) (*Summary, error) {
	if len(r.events) == 0 {
		return nil, ErrNoEvents
	}

	sorted := append([]recorder.DecisionEvent(nil), r.events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	var filtered []recorder.DecisionEvent
	for _, ev := range sorted {
		if r.filter.Match(ev) {
			filtered = append(filtered, ev)
		}
	}

	summary := &Summary{
		TotalEvents:   len(sorted),
		Filtered:      len(filtered),
		PerIdentifier: make(map[string]IdentifierSummary),
	}
	if len(filtered) == 0 {
		return summary, nil
	}

	wallStart := time.Now()
	if first := filtered[0].Time; r.clock.Now().Before(first) {
		r.clock.Set(first)
	}

	for i, ev := range filtered {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if i > 0 {
			if gap := ev.Time.Sub(filtered[i-1].Time); gap > 0 {
				if err := r.pace(ctx, gap); err != nil {
					return summary, err
				}
				r.clock.Advance(gap)
			}
		}

		dec, err := r.checker.IsAllowed(ctx, ev.Identifier, r.limitType, ev.Request)
		if err != nil {
			return summary, fmt.Errorf("replaying event %s: %w", ev.ID, err)
		}
		res := Result{
			Event:    ev,
			Decision: dec,
			Time:     r.clock.Now(),
			Changed:  dec.Allowed != ev.Allowed,
		}

		summary.Replayed++
		is := summary.PerIdentifier[ev.Identifier]
		if dec.Allowed {
			summary.Allowed++
			is.Allowed++
		} else {
			summary.Denied++
			is.Denied++
		}
		summary.PerIdentifier[ev.Identifier] = is
		if res.Changed {
			summary.Changed++
		}

		if cb != nil {
			cb(res)
		}
	}

	summary.Duration = filtered[len(filtered)-1].Time.Sub(filtered[0].Time)
	summary.WallDuration = time.Since(wallStart)
	return summary, nil
}

// pace sleeps for the scaled gap so a replay can be watched live.
func (r *Replayer) pace(ctx context.Context, gap time.Duration) error {
	if r.speed == 0 {
		return nil
	}
	scaled := time.Duration(float64(gap) / r.speed)
	if scaled <= time.Millisecond {
		return nil
	}
	t := time.NewTimer(scaled)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
