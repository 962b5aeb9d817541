// Package adaptive scales base limit classes per caller using reputation,
// threat and load factors.
package adaptive

import (
	"context"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

// Config bounds the scaling.
type Config struct {
	// MinRequestsPerWindow is the lowest capacity scaling may produce.
	MinRequestsPerWindow int
	// MinBurst is the lowest burst scaling may produce.
	MinBurst int
	// MaxMultiplier caps the combined multiplier.
	MaxMultiplier float64
}

// DefaultConfig returns the bounds used when none are configured.
func DefaultConfig() Config {
	return Config{
		MinRequestsPerWindow: 1,
		MinBurst:             0,
		MaxMultiplier:        10,
	}
}

// Calculator derives effective limits:
//
//	multiplier = reputation * threat / load
//
// clamped to [0, MaxMultiplier], then applied to capacity and burst with the
// configured floors. It holds no state of its own.
type Calculator struct {
	cfg        Config
	reputation ReputationScorer
	threat     ThreatScorer
	load       LoadScorer
}

// NewCalculator builds a calculator. Nil scorers are neutral.
func NewCalculator(cfg Config, reputation ReputationScorer, threat ThreatScorer, load LoadScorer) *Calculator {
	if cfg.MinRequestsPerWindow < 1 {
		cfg.MinRequestsPerWindow = 1
	}
	if cfg.MinBurst < 0 {
		cfg.MinBurst = 0
	}
	if cfg.MaxMultiplier <= 0 {
		cfg.MaxMultiplier = DefaultConfig().MaxMultiplier
	}
	if reputation == nil {
		reputation = NeutralScorer{}
	}
	if threat == nil {
		threat = NeutralScorer{}
	}
	if load == nil {
		load = NeutralScorer{}
	}
	return &Calculator{cfg: cfg, reputation: reputation, threat: threat, load: load}
}

// Config returns the bounds in use.
func (c *Calculator) Config() Config {
	return c.cfg
}

// Assessment is the set of factors computed for one request.
type Assessment struct {
	Reputation float64
	Threat     float64
	Load       float64
	Multiplier float64
}

// Assess queries every scorer once and combines the results.
func (c *Calculator) Assess(ctx context.Context, identifier string, rc limits.RequestContext) Assessment {
	a := Assessment{
		Reputation: sanitize(c.reputation.Reputation(ctx, identifier, rc), "reputation", identifier),
		Threat:     sanitize(c.threat.Threat(ctx, identifier, rc), "threat", identifier),
		Load:       sanitize(c.load.Load(ctx), "load", identifier),
	}
	m := a.Reputation * a.Threat / a.Load
	a.Multiplier = math.Min(math.Max(m, 0), c.cfg.MaxMultiplier)
	return a
}

// Threat returns the sanitized threat factor alone.
func (c *Calculator) Threat(ctx context.Context, identifier string, rc limits.RequestContext) float64 {
	return sanitize(c.threat.Threat(ctx, identifier, rc), "threat", identifier)
}

// Multiplier returns the combined, clamped multiplier for identifier.
func (c *Calculator) Multiplier(ctx context.Context, identifier string, rc limits.RequestContext) float64 {
	return c.Assess(ctx, identifier, rc).Multiplier
}

// Effective scales class for identifier.
func (c *Calculator) Effective(ctx context.Context, identifier string, class limits.LimitClass, rc limits.RequestContext) limits.Effective {
	return c.Scale(class, c.Multiplier(ctx, identifier, rc))
}

// Scale applies multiplier m to class.
func (c *Calculator) Scale(class limits.LimitClass, m float64) limits.Effective {
	eff := class.Effective()
	eff.Multiplier = m
	if m == Neutral {
		return eff
	}

	capacity := max(c.cfg.MinRequestsPerWindow, int(math.Floor(float64(class.Capacity)*m)))
	burst := max(c.cfg.MinBurst, int(math.Floor(float64(class.Burst)*m)))
	if burst > capacity {
		burst = capacity
	}

	eff.Capacity = capacity
	eff.Burst = burst
	eff.RefillRate = class.RefillRate * float64(capacity) / float64(class.Capacity)
	return eff
}

func sanitize(f float64, factor, identifier string) float64 {
	if f > 0 && !math.IsInf(f, 1) {
		return f
	}
	log.WithFields(log.Fields{
		"factor":     factor,
		"identifier": identifier,
		"value":      f,
	}).Warn("adaptive: scorer returned a non-positive value, using neutral")
	return Neutral
}
