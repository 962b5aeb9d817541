package replay

import (
	internalreplay "github.com/SmitUplenchwar2687/gatekeeper/internal/replay"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/recorder"
)

// Filter selects which recorded events are replayed.
type Filter = internalreplay.Filter

// Checker is the admission surface a replay drives.
type Checker = internalreplay.Checker

// Replayer re-runs recorded events on a virtual clock.
type Replayer = internalreplay.Replayer

// Result captures the outcome of replaying one event.
type Result = internalreplay.Result

// Summary aggregates replay statistics.
type Summary = internalreplay.Summary

// IdentifierSummary holds per-identifier replay stats.
type IdentifierSummary = internalreplay.IdentifierSummary

// GenerateOptions controls synthetic traffic generation.
type GenerateOptions = internalreplay.GenerateOptions

// ErrNoEvents is returned when a replay has nothing to run.
var ErrNoEvents = internalreplay.ErrNoEvents

// New creates a replayer that checks every event against limitType.
func New(checker Checker, vc *clock.VirtualClock, limitType string, speed float64, filter Filter) *Replayer {
	return internalreplay.New(checker, vc, limitType, speed, filter)
}

// Generate synthesizes traffic events.
func Generate(opts GenerateOptions) ([]recorder.DecisionEvent, error) {
	return internalreplay.Generate(opts)
}
