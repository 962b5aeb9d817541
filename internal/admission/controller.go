// Package admission composes the limit classes that apply to a request and
// decides whether to admit it.
package admission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/adaptive"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/coordinator"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

const (
	DefaultStoreTimeout = 50 * time.Millisecond

	// GlobalIdentifier keys the single counter shared by every caller.
	GlobalIdentifier = "*"

	anonymousIdentifier = "anonymous"
)

// Recorder receives every outcome and answers statistics queries.
type Recorder interface {
	RecordOutcome(identifier, class string, allowed bool, rc limits.RequestContext)
	Statistics(period time.Duration) recorder.Statistics
}

// Options wires a Controller. Store (or Engines) is required; everything
// else has a default.
type Options struct {
	Registry    *limits.Registry
	Store       store.Store
	Engines     *limiter.Set
	Clock       clock.Clock
	Calculator  *adaptive.Calculator
	Recorder    Recorder
	Coordinator coordinator.Coordinator

	// StoreTimeout bounds each counter update. On timeout the class is
	// skipped and the decision marked degraded.
	StoreTimeout time.Duration
	ExpiryBuffer time.Duration
	// SuspiciousThreshold applies the suspicious class to callers whose
	// threat factor falls below it. Zero disables the class.
	SuspiciousThreshold float64
}

// Controller evaluates every applicable limit class for a request, in a
// fixed order, and stops at the first denial.
// Safe for concurrent use.
type Controller struct {
	registry            *limits.Registry
	engines             *limiter.Set
	clock               clock.Clock
	calc                *adaptive.Calculator
	recorder            Recorder
	coord               coordinator.Coordinator
	storeTimeout        time.Duration
	suspiciousThreshold float64

	// degradedLog samples fail-open warnings so a store outage cannot
	// flood the log.
	degradedLog *rate.Limiter
	suppressed  atomic.Int64

	closers []io.Closer
}

// New builds a Controller.
func New(opts Options) (*Controller, error) {
	c := clock.OrReal(opts.Clock)

	engines := opts.Engines
	if engines == nil {
		if opts.Store == nil {
			return nil, errors.New("admission: a store is required")
		}
		engines = limiter.NewSet(opts.Store, c, opts.ExpiryBuffer)
	}
	registry := opts.Registry
	if registry == nil {
		registry = limits.DefaultRegistry()
	}
	calc := opts.Calculator
	if calc == nil {
		calc = adaptive.NewCalculator(adaptive.DefaultConfig(), nil, nil, nil)
	}
	rec := opts.Recorder
	if rec == nil {
		rec = recorder.New(recorder.Options{Clock: c})
	}
	timeout := opts.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}

	return &Controller{
		registry:            registry,
		engines:             engines,
		clock:               c,
		calc:                calc,
		recorder:            rec,
		coord:               opts.Coordinator,
		storeTimeout:        timeout,
		suspiciousThreshold: opts.SuspiciousThreshold,
		degradedLog:         rate.NewLimiter(rate.Limit(1), 5),
	}, nil
}

// Registry returns the limit catalog in use.
func (c *Controller) Registry() *limits.Registry {
	return c.registry
}

// Recorder returns the outcome recorder.
func (c *Controller) Recorder() Recorder {
	return c.recorder
}

// check is one class to evaluate.
type check struct {
	class string
	key   limits.Key
	limit limits.Effective
}

// IsAllowed decides whether identifier may perform an action of limitType.
//
// Classes are evaluated in the order global, limitType, ip, user, the
// endpoint class, then suspicious. The first denial wins and later classes
// are not touched, so a denied request spends nothing from them. A class
// whose counter store fails is skipped and the decision is marked Degraded.
// An unregistered limitType is an error; exceeding a limit is not.
func (c *Controller) IsAllowed(ctx context.Context, identifier, limitType string, rc limits.RequestContext) (Decision, error) {
	if limitType == "" {
		limitType = limits.Default
	}
	if !c.registry.Has(limitType) {
		return Decision{}, fmt.Errorf("admission: %w %q", limits.ErrUnknownLimitClass, limitType)
	}
	if identifier == "" {
		identifier = fallbackIdentifier(rc)
	}
	if rc.Cost < 1 {
		rc.Cost = 1
	}

	assessment := c.calc.Assess(ctx, identifier, rc)
	checks := c.resolve(identifier, limitType, rc, assessment)

	dec := Decision{
		Allowed:       true,
		Remaining:     make(map[string]int, len(checks)),
		ResetTimes:    make(map[string]time.Time, len(checks)),
		LimitsChecked: make([]string, 0, len(checks)),
	}

	for _, chk := range checks {
		dec.LimitsChecked = append(dec.LimitsChecked, chk.class)

		res, err := c.consume(ctx, chk, rc.Cost)
		if err != nil {
			dec.Degraded = true
			c.warnDegraded(err, identifier, chk.class)
			continue
		}
		dec.Remaining[chk.class] = res.Remaining
		dec.ResetTimes[chk.class] = res.ResetAt

		if !res.Allowed {
			c.deny(&dec, identifier, chk.class, chk.class, res.RetryAfter, rc)
			return dec, nil
		}

		if c.coord == nil {
			continue
		}
		ok, total, err := c.coord.Reserve(ctx, chk.key.String(), chk.limit.Window, chk.limit.Capacity, rc.Cost)
		if err != nil {
			dec.Degraded = true
			c.warnDegraded(err, identifier, chk.class)
			continue
		}
		if left := chk.limit.Capacity - int(total); left < dec.Remaining[chk.class] {
			dec.Remaining[chk.class] = max(0, left)
		}
		if !ok {
			reset := coordinator.WindowReset(chk.limit.Window, c.clock.Now())
			dec.ResetTimes[chk.class] = reset
			c.deny(&dec, identifier, chk.class, chk.class+" (cluster)", ceilSeconds(reset.Sub(c.clock.Now())), rc)
			return dec, nil
		}
	}

	c.recorder.RecordOutcome(identifier, limitType, true, rc)
	return dec, nil
}

func (c *Controller) deny(dec *Decision, identifier, class, reason string, retryAfter int, rc limits.RequestContext) {
	dec.Allowed = false
	dec.Reason = reason
	dec.RetryAfter = max(dec.RetryAfter, retryAfter)
	c.recorder.RecordOutcome(identifier, class, false, rc)

	log.WithFields(log.Fields{
		"identifier":  identifier,
		"reason":      reason,
		"retry_after": dec.RetryAfter,
	}).Debug("admission: request denied")
}

// resolve lists the classes that apply, in evaluation order, without
// duplicates.
func (c *Controller) resolve(identifier, limitType string, rc limits.RequestContext, a adaptive.Assessment) []check {
	checks := make([]check, 0, 6)
	seen := make(map[string]bool, 6)

	add := func(class, id string, scaled bool) {
		if id == "" || seen[class] {
			return
		}
		lc, err := c.registry.Lookup(class)
		if err != nil {
			return
		}
		seen[class] = true

		eff := lc.Effective()
		if scaled {
			eff = c.calc.Scale(lc, a.Multiplier)
		}
		checks = append(checks, check{
			class: class,
			key:   limits.Key{Identifier: id, Class: class},
			limit: eff,
		})
	}

	add(limits.Global, GlobalIdentifier, false)
	add(limitType, identifier, true)
	add(limits.IP, rc.IP, true)
	add(limits.User, rc.UserID, true)
	if class, ok := c.registry.EndpointClass(rc.Endpoint); ok {
		add(class, identifier, true)
	}
	if a.Threat < c.suspiciousThreshold {
		add(limits.Suspicious, identifier, true)
	}
	return checks
}

func (c *Controller) consume(ctx context.Context, chk check, cost int) (limiter.Result, error) {
	engine, err := c.engines.For(chk.limit.Algorithm)
	if err != nil {
		return limiter.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return engine.Consume(ctx, chk.key, chk.limit, cost)
}

func (c *Controller) warnDegraded(err error, identifier, class string) {
	if !c.degradedLog.Allow() {
		c.suppressed.Add(1)
		return
	}
	entry := log.WithError(err).WithFields(log.Fields{
		"identifier": identifier,
		"class":      class,
	})
	if n := c.suppressed.Swap(0); n > 0 {
		entry = entry.WithField("suppressed", n)
	}
	entry.Warn("admission: counter store unavailable, failing open")
}

// Statistics reports aggregate outcomes over the trailing period.
func (c *Controller) Statistics(period time.Duration) recorder.Statistics {
	return c.recorder.Statistics(period)
}

// Close releases the store, coordinator and any stream the controller was
// built with.
func (c *Controller) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func fallbackIdentifier(rc limits.RequestContext) string {
	switch {
	case rc.UserID != "":
		return rc.UserID
	case rc.IP != "":
		return rc.IP
	default:
		return anonymousIdentifier
	}
}

func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
