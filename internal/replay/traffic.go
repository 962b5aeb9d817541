package replay

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

// Traffic patterns understood by Generate.
const (
	PatternSteady = "steady"
	PatternBurst  = "burst"
	PatternRamp   = "ramp"
)

// GenerateOptions shapes synthetic traffic.
type GenerateOptions struct {
	Count       int
	Identifiers int
	Duration    time.Duration
	Pattern     string
	Start       time.Time
	// Endpoints requests are spread over. Defaults to the built-in
	// endpoint map plus a few unclassified paths.
	Endpoints []string
	Seed      int64
}

// Generate builds synthetic events in a replayable form. Each event is
// marked allowed so a replay reports every denial as a change.
func Generate(opts GenerateOptions) ([]recorder.DecisionEvent, error) {
	if opts.Count < 1 {
		return nil, fmt.Errorf("count must be >= 1, got %d", opts.Count)
	}
	if opts.Identifiers < 1 {
		return nil, fmt.Errorf("identifiers must be >= 1, got %d", opts.Identifiers)
	}
	if opts.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", opts.Duration)
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().Truncate(time.Second)
	}
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = defaultEndpoints()
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	var offsets []time.Duration
	switch opts.Pattern {
	case "", PatternSteady:
		offsets = steadyOffsets(opts.Count, opts.Duration)
	case PatternBurst:
		offsets = burstOffsets(rng, opts.Count, opts.Duration)
	case PatternRamp:
		offsets = rampOffsets(opts.Count, opts.Duration)
	default:
		return nil, fmt.Errorf("unknown pattern %q, must be one of: steady, burst, ramp", opts.Pattern)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	events := make([]recorder.DecisionEvent, len(offsets))
	for i, off := range offsets {
		n := rng.Intn(opts.Identifiers) + 1
		id := fmt.Sprintf("user-%d", n)
		events[i] = recorder.DecisionEvent{
			ID:         uuid.NewString(),
			Time:       opts.Start.Add(off),
			Identifier: id,
			Class:      limits.Default,
			Allowed:    true,
			Request: limits.RequestContext{
				IP:       fmt.Sprintf("10.0.%d.%d", n/256, n%256),
				UserID:   id,
				Endpoint: opts.Endpoints[rng.Intn(len(opts.Endpoints))],
				Cost:     1,
			},
		}
	}
	return events, nil
}

func defaultEndpoints() []string {
	eps := make([]string, 0, 8)
	for ep := range limits.DefaultEndpoints() {
		eps = append(eps, ep)
	}
	sort.Strings(eps)
	return append(eps, "GET /", "GET /stories", "GET /users")
}

func steadyOffsets(count int, dur time.Duration) []time.Duration {
	interval := dur / time.Duration(count)
	out := make([]time.Duration, count)
	for i := range out {
		out[i] = time.Duration(i) * interval
	}
	return out
}

// burstOffsets packs requests into four one-second bursts spread over dur.
func burstOffsets(rng *rand.Rand, count int, dur time.Duration) []time.Duration {
	const bursts = 4
	gap := dur / bursts
	out := make([]time.Duration, 0, count)
	for i := 0; i < count; i++ {
		b := i % bursts
		jitter := time.Duration(rng.Intn(1000)) * time.Millisecond
		out = append(out, time.Duration(b)*gap+jitter)
	}
	return out
}

// rampOffsets concentrates requests towards the end of dur.
func rampOffsets(count int, dur time.Duration) []time.Duration {
	out := make([]time.Duration, count)
	for i := range out {
		frac := float64(i) / float64(count)
		out[i] = time.Duration(math.Sqrt(frac) * float64(dur))
	}
	return out
}
