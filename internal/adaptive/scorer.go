package adaptive

import (
	"context"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

// Neutral is the factor that leaves a limit unchanged.
const Neutral = 1.0

// ReputationScorer rates how trustworthy a caller is. Values above 1 raise
// the caller's limits.
type ReputationScorer interface {
	Reputation(ctx context.Context, identifier string, rc limits.RequestContext) float64
}

// ThreatScorer rates how dangerous a caller currently looks. The factor
// shrinks as the threat grows, so values below 1 lower the caller's limits.
type ThreatScorer interface {
	Threat(ctx context.Context, identifier string, rc limits.RequestContext) float64
}

// LoadScorer reports system utilization. Values above 1 lower every limit.
type LoadScorer interface {
	Load(ctx context.Context) float64
}

// ReputationFunc adapts a function to ReputationScorer.
type ReputationFunc func(ctx context.Context, identifier string, rc limits.RequestContext) float64

func (f ReputationFunc) Reputation(ctx context.Context, identifier string, rc limits.RequestContext) float64 {
	return f(ctx, identifier, rc)
}

// ThreatFunc adapts a function to ThreatScorer.
type ThreatFunc func(ctx context.Context, identifier string, rc limits.RequestContext) float64

func (f ThreatFunc) Threat(ctx context.Context, identifier string, rc limits.RequestContext) float64 {
	return f(ctx, identifier, rc)
}

// LoadFunc adapts a function to LoadScorer.
type LoadFunc func(ctx context.Context) float64

func (f LoadFunc) Load(ctx context.Context) float64 {
	return f(ctx)
}

// NeutralScorer returns 1.0 for every factor.
type NeutralScorer struct{}

func (NeutralScorer) Reputation(context.Context, string, limits.RequestContext) float64 {
	return Neutral
}

func (NeutralScorer) Threat(context.Context, string, limits.RequestContext) float64 {
	return Neutral
}

func (NeutralScorer) Load(context.Context) float64 {
	return Neutral
}
