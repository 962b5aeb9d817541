// Package recorder keeps the outcome history of admission decisions: per
// minute counters for statistics, per identifier violation history for the
// threat scorer, and an optional event stream.
package recorder

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

const (
	DefaultRetention             = 24 * time.Hour
	DefaultMaxEvents             = 10000
	DefaultMaxTrackedIdentifiers = 10000
	DefaultViolationHistory      = time.Hour

	// maxViolationsPerIdentifier bounds one identifier's history.
	maxViolationsPerIdentifier = 1024
	topViolatedLimits          = 5
)

// Publisher receives every event after it is recorded. The websocket hub
// implements it.
type Publisher interface {
	Publish(DecisionEvent)
}

// Options configures a Recorder. Zero values pick the defaults.
type Options struct {
	Clock clock.Clock
	// Retention is how long per-minute counters are kept.
	Retention time.Duration
	// MaxEvents bounds the events kept for Events and ExportJSON. Negative
	// disables capture.
	MaxEvents int
	// MaxTrackedIdentifiers bounds the identifiers with violation history.
	MaxTrackedIdentifiers int
	// ViolationHistory is how far back violation timestamps are kept.
	ViolationHistory time.Duration
	// Stream, when set, receives every event as newline-delimited JSON.
	Stream io.Writer
}

// Recorder records admission outcomes.
// Thread-safe for concurrent use.
type Recorder struct {
	clock            clock.Clock
	retention        time.Duration
	maxEvents        int
	violationHistory time.Duration

	mu         sync.Mutex
	buckets    map[int64]*minuteBucket // keyed by unix minute
	oldest     int64
	violators  *lru.Cache[string, []time.Time]
	events     []DecisionEvent
	stream     *json.Encoder
	publishers []Publisher
}

// New creates a Recorder.
func New(opts Options) *Recorder {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.MaxEvents == 0 {
		opts.MaxEvents = DefaultMaxEvents
	}
	if opts.MaxTrackedIdentifiers <= 0 {
		opts.MaxTrackedIdentifiers = DefaultMaxTrackedIdentifiers
	}
	if opts.ViolationHistory <= 0 {
		opts.ViolationHistory = DefaultViolationHistory
	}

	// lru.New only fails on a non-positive size.
	violators, _ := lru.New[string, []time.Time](opts.MaxTrackedIdentifiers)

	r := &Recorder{
		clock:            clock.OrReal(opts.Clock),
		retention:        opts.Retention,
		maxEvents:        opts.MaxEvents,
		violationHistory: opts.ViolationHistory,
		buckets:          make(map[int64]*minuteBucket),
		violators:        violators,
	}
	if opts.Stream != nil {
		r.stream = json.NewEncoder(opts.Stream)
	}
	return r
}

// AddPublisher registers p to receive future events.
func (r *Recorder) AddPublisher(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers = append(r.publishers, p)
}

// RecordOutcome records one decision. It never fails: stream errors are
// logged and the outcome is still counted.
func (r *Recorder) RecordOutcome(identifier, class string, allowed bool, rc limits.RequestContext) {
	now := r.clock.Now()
	ev := DecisionEvent{
		ID:         uuid.NewString(),
		Time:       now,
		Identifier: identifier,
		Class:      class,
		Allowed:    allowed,
		Request:    rc,
	}

	r.mu.Lock()
	minute := now.Unix() / 60
	b := r.buckets[minute]
	if b == nil {
		b = &minuteBucket{}
		r.buckets[minute] = b
		r.pruneLocked(minute)
	}
	b.total++
	if !allowed {
		b.blocked++
		if b.violations == nil {
			b.violations = make(map[string]int64)
		}
		b.violations[class]++
		r.addViolationLocked(identifier, now)
	}

	if r.maxEvents > 0 {
		if len(r.events) >= r.maxEvents {
			// Drop the oldest half in one go to keep appends amortized.
			n := copy(r.events, r.events[len(r.events)/2:])
			r.events = r.events[:n]
		}
		r.events = append(r.events, ev)
	}

	if r.stream != nil {
		if err := r.stream.Encode(ev); err != nil {
			log.WithError(err).WithField("identifier", identifier).Warn("recorder: failed to stream event")
		}
	}
	publishers := r.publishers
	r.mu.Unlock()

	for _, p := range publishers {
		p.Publish(ev)
	}
}

func (r *Recorder) addViolationLocked(identifier string, now time.Time) {
	history, _ := r.violators.Get(identifier)
	history = trimBefore(history, now.Add(-r.violationHistory))
	if len(history) >= maxViolationsPerIdentifier {
		history = history[1:]
	}
	r.violators.Add(identifier, append(history, now))
}

// pruneLocked drops buckets that fell out of the retention period. It runs
// only when a new minute opens.
func (r *Recorder) pruneLocked(current int64) {
	cutoff := current - int64(r.retention/time.Minute)
	if r.oldest > cutoff {
		return
	}
	oldest := current
	for m := range r.buckets {
		if m <= cutoff {
			delete(r.buckets, m)
			continue
		}
		if m < oldest {
			oldest = m
		}
	}
	r.oldest = oldest
}

// Violations returns the denials recorded for identifier within lookback.
func (r *Recorder) Violations(identifier string, lookback time.Duration) int {
	since := r.clock.Now().Add(-lookback)

	r.mu.Lock()
	defer r.mu.Unlock()

	history, ok := r.violators.Peek(identifier)
	if !ok {
		return 0
	}
	n := 0
	for _, ts := range history {
		if ts.After(since) {
			n++
		}
	}
	return n
}

// Statistics aggregates the minutes that overlap the trailing period. A
// non-positive period covers the whole retention. Reading has no side
// effects, so repeated calls with no traffic in between return equal
// results.
func (r *Recorder) Statistics(period time.Duration) Statistics {
	now := r.clock.Now()
	if period <= 0 || period > r.retention {
		period = r.retention
	}
	from := now.Add(-period).Unix() / 60

	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Statistics{Period: period, TopViolatedLimits: []LimitCount{}}
	byClass := make(map[string]int64)
	for m, b := range r.buckets {
		if m < from {
			continue
		}
		stats.TotalRequests += b.total
		stats.BlockedRequests += b.blocked
		for class, n := range b.violations {
			byClass[class] += n
		}
	}
	if stats.TotalRequests > 0 {
		stats.BlockRate = float64(stats.BlockedRequests) / float64(stats.TotalRequests)
	}

	for class, n := range byClass {
		stats.TopViolatedLimits = append(stats.TopViolatedLimits, LimitCount{Class: class, Count: n})
	}
	sort.Slice(stats.TopViolatedLimits, func(i, j int) bool {
		a, b := stats.TopViolatedLimits[i], stats.TopViolatedLimits[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Class < b.Class
	})
	if len(stats.TopViolatedLimits) > topViolatedLimits {
		stats.TopViolatedLimits = stats.TopViolatedLimits[:topViolatedLimits]
	}
	return stats
}

// Events returns a copy of the captured events, oldest first.
func (r *Recorder) Events() []DecisionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DecisionEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of captured events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// ExportJSON writes the captured events to w as a JSON array.
func (r *Recorder) ExportJSON(w io.Writer) error {
	events := r.Events()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}

// ExportFile writes the captured events to a file as a JSON array.
func (r *Recorder) ExportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.ExportJSON(f)
}

// LoadJSON reads events written by ExportJSON, or an NDJSON event stream.
func LoadJSON(rd io.Reader) ([]DecisionEvent, error) {
	br := bufio.NewReader(rd)
	dec := json.NewDecoder(br)

	first, err := peekNonSpace(br)
	if err != nil {
		return nil, err
	}
	var events []DecisionEvent
	if first == '[' {
		if err := dec.Decode(&events); err != nil {
			return nil, err
		}
		return events, nil
	}
	for {
		var ev DecisionEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return nil, fmt.Errorf("event %d: %w", len(events)+1, err)
		}
		events = append(events, ev)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func trimBefore(history []time.Time, since time.Time) []time.Time {
	i := 0
	for i < len(history) && !history[i].After(since) {
		i++
	}
	return history[i:]
}
