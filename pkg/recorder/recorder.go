package recorder

import (
	"io"

	internalrecorder "github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

// Recorder keeps violation history and usage statistics.
type Recorder = internalrecorder.Recorder

// Options configures a Recorder.
type Options = internalrecorder.Options

// DecisionEvent is one recorded admission outcome.
type DecisionEvent = internalrecorder.DecisionEvent

// Statistics summarizes outcomes over a period.
type Statistics = internalrecorder.Statistics

// LimitCount is the number of violations one class collected.
type LimitCount = internalrecorder.LimitCount

// Publisher receives every recorded event.
type Publisher = internalrecorder.Publisher

// New creates a recorder.
func New(opts Options) *Recorder {
	return internalrecorder.New(opts)
}

// LoadJSON reads events from a JSON array or an NDJSON stream.
func LoadJSON(r io.Reader) ([]DecisionEvent, error) {
	return internalrecorder.LoadJSON(r)
}
