// Package admission is the embedding API: build a Controller and ask it
// whether a caller may proceed.
//
//	ctrl, err := admission.NewFromConfig(ctx, config.Default(), admission.BuildOptions{})
//	dec, err := ctrl.IsAllowed(ctx, "user-42", limits.Login, admission.RequestContext{
//		IP:       "203.0.113.7",
//		UserID:   "user-42",
//		Endpoint: "POST /login",
//	})
//	if !dec.Allowed {
//		// respond 429 with Retry-After: dec.RetryAfter
//	}
package admission

import (
	"context"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/adaptive"
	internaladmission "github.com/SmitUplenchwar2687/gatekeeper/internal/admission"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

// Controller evaluates every applicable limit class for a request.
type Controller = internaladmission.Controller

// Decision is the aggregate outcome of one admission check.
type Decision = internaladmission.Decision

// RequestContext carries the request attributes limits are keyed on.
type RequestContext = limits.RequestContext

// Options wires a Controller by hand.
type Options = internaladmission.Options

// BuildOptions overrides pieces NewFromConfig would otherwise construct.
type BuildOptions = internaladmission.BuildOptions

// Scorer adapters for BuildOptions.
type (
	ReputationFunc = adaptive.ReputationFunc
	ThreatFunc     = adaptive.ThreatFunc
	LoadFunc       = adaptive.LoadFunc
)

// New builds a Controller from explicit options.
func New(opts Options) (*Controller, error) {
	return internaladmission.New(opts)
}

// NewFromConfig wires a Controller, its store, recorder and scorers from
// configuration.
func NewFromConfig(ctx context.Context, cfg config.Config, opts BuildOptions) (*Controller, error) {
	return internaladmission.NewFromConfig(ctx, cfg, opts)
}
