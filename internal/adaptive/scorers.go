package adaptive

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

// ViolationCounter reports how many denials an identifier collected in the
// trailing lookback. The recorder implements it.
type ViolationCounter interface {
	Violations(identifier string, lookback time.Duration) int
}

// ViolationThreatScorer turns recent violations into a threat factor:
//
//	factor = max(Floor, 1 / (1 + violations/Tolerance))
//
// The factor never increases as violations grow, closing the loop between
// denials and future limits.
type ViolationThreatScorer struct {
	Counter   ViolationCounter
	Lookback  time.Duration
	Tolerance float64 // violations that halve the factor
	Floor     float64 // lowest factor returned
}

// NewViolationThreatScorer returns a scorer with a 15 minute lookback, a
// tolerance of 10 violations and a floor of 0.1.
func NewViolationThreatScorer(counter ViolationCounter) *ViolationThreatScorer {
	return &ViolationThreatScorer{
		Counter:   counter,
		Lookback:  15 * time.Minute,
		Tolerance: 10,
		Floor:     0.1,
	}
}

func (s *ViolationThreatScorer) Threat(_ context.Context, identifier string, _ limits.RequestContext) float64 {
	if s.Counter == nil || s.Tolerance <= 0 {
		return Neutral
	}
	v := s.Counter.Violations(identifier, s.Lookback)
	if v <= 0 {
		return Neutral
	}
	return math.Max(s.Floor, 1/(1+float64(v)/s.Tolerance))
}

// RuntimeLoadScorer derives load from the goroutine count. Below SoftLimit
// the factor is 1.0; between SoftLimit and HardLimit it rises linearly to
// MaxFactor and stays there beyond HardLimit.
type RuntimeLoadScorer struct {
	SoftLimit int
	HardLimit int
	MaxFactor float64

	// count is swapped in tests.
	count func() int
}

// NewRuntimeLoadScorer returns a scorer with the given goroutine limits and
// a MaxFactor of 4.
func NewRuntimeLoadScorer(soft, hard int) *RuntimeLoadScorer {
	return &RuntimeLoadScorer{
		SoftLimit: soft,
		HardLimit: hard,
		MaxFactor: 4,
		count:     runtime.NumGoroutine,
	}
}

func (s *RuntimeLoadScorer) Load(context.Context) float64 {
	count := s.count
	if count == nil {
		count = runtime.NumGoroutine
	}
	n := count()
	if n <= s.SoftLimit || s.MaxFactor <= Neutral {
		return Neutral
	}

	ratio := 1.0
	if s.HardLimit > s.SoftLimit {
		ratio = math.Min(1, float64(n-s.SoftLimit)/float64(s.HardLimit-s.SoftLimit))
	}
	return Neutral + (s.MaxFactor-Neutral)*ratio
}

// StaticLoadScorer reports a load factor set from outside, for operators
// and tests. The zero value reports 1.0.
type StaticLoadScorer struct {
	bits atomic.Uint64
}

// Set stores a new load factor.
func (s *StaticLoadScorer) Set(f float64) {
	s.bits.Store(math.Float64bits(f))
}

func (s *StaticLoadScorer) Load(context.Context) float64 {
	b := s.bits.Load()
	if b == 0 {
		return Neutral
	}
	return math.Float64frombits(b)
}

// StaticReputationScorer returns per-identifier overrides and 1.0 for
// everyone else.
type StaticReputationScorer struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// NewStaticReputationScorer copies scores into a new scorer.
func NewStaticReputationScorer(scores map[string]float64) *StaticReputationScorer {
	s := &StaticReputationScorer{scores: make(map[string]float64, len(scores))}
	for id, f := range scores {
		s.scores[id] = f
	}
	return s
}

// Set overrides the reputation of identifier.
func (s *StaticReputationScorer) Set(identifier string, f float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scores == nil {
		s.scores = make(map[string]float64)
	}
	s.scores[identifier] = f
}

func (s *StaticReputationScorer) Reputation(_ context.Context, identifier string, _ limits.RequestContext) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.scores[identifier]; ok {
		return f
	}
	return Neutral
}
