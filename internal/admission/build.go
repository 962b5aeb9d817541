package admission

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/adaptive"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/coordinator"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

// BuildOptions overrides pieces NewFromConfig would otherwise construct.
type BuildOptions struct {
	Clock clock.Clock
	// Store replaces the configured backend.
	Store      store.Store
	Reputation adaptive.ReputationScorer
	// Threat replaces the violation-driven threat scorer.
	Threat adaptive.ThreatScorer
	Load   adaptive.LoadScorer
}

// NewFromConfig wires a Controller from configuration: the counter store,
// recorder, scorers and, when enabled, the gossip coordinator. Close on
// the returned controller releases all of them.
func NewFromConfig(ctx context.Context, cfg config.Config, opts BuildOptions) (ctrl *Controller, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	c := clock.OrReal(opts.Clock)

	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i].Close()
			}
		}
	}()

	st := opts.Store
	if st == nil {
		st, err = NewStore(ctx, cfg.Storage, c)
		if err != nil {
			return nil, err
		}
		closers = append(closers, st)
	}

	recOpts := recorder.Options{
		Clock:                 c,
		Retention:             cfg.Recorder.Retention,
		MaxEvents:             cfg.Recorder.MaxEvents,
		MaxTrackedIdentifiers: cfg.Recorder.MaxTrackedIdentifiers,
		// The threat scorer can only count violations the recorder keeps.
		ViolationHistory: max(cfg.Admission.ThreatLookback, recorder.DefaultViolationHistory),
	}
	if cfg.Recorder.StreamPath != "" {
		f, err := os.OpenFile(cfg.Recorder.StreamPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening event stream: %w", err)
		}
		closers = append(closers, f)
		recOpts.Stream = f
	}
	rec := recorder.New(recOpts)

	a := cfg.Admission
	threat := opts.Threat
	if threat == nil {
		threat = &adaptive.ViolationThreatScorer{
			Counter:   rec,
			Lookback:  a.ThreatLookback,
			Tolerance: a.ThreatTolerance,
			Floor:     a.ThreatFloor,
		}
	}
	load := opts.Load
	if load == nil {
		load = adaptive.NewRuntimeLoadScorer(a.LoadSoftGoroutines, a.LoadHardGoroutines)
	}
	calc := adaptive.NewCalculator(adaptive.Config{
		MinRequestsPerWindow: a.MinRequestsPerWindow,
		MinBurst:             a.MinBurst,
		MaxMultiplier:        a.MaxMultiplier,
	}, opts.Reputation, threat, load)

	var coord coordinator.Coordinator
	if cfg.Coordinator.Enabled {
		g, err := coordinator.NewGossipCoordinator(&coordinator.Config{
			NodeID:         cfg.Coordinator.NodeID,
			BindAddr:       cfg.Coordinator.BindAddr,
			Peers:          cfg.Coordinator.Peers,
			GossipInterval: cfg.Coordinator.GossipInterval,
			Clock:          c,
		})
		if err != nil {
			return nil, err
		}
		closers = append(closers, g)
		coord = g
	}

	ctrl, err = New(Options{
		Registry:            registry,
		Store:               st,
		Clock:               c,
		Calculator:          calc,
		Recorder:            rec,
		Coordinator:         coord,
		StoreTimeout:        a.StoreTimeout,
		ExpiryBuffer:        a.ExpiryBuffer,
		SuspiciousThreshold: a.SuspiciousThreshold,
	})
	if err != nil {
		return nil, err
	}
	ctrl.closers = closers

	log.WithFields(log.Fields{
		"storage":     cfg.Storage.Backend,
		"classes":     len(registry.Names()),
		"coordinator": cfg.Coordinator.Enabled,
	}).Info("admission: controller ready")
	return ctrl, nil
}

// NewStore builds the configured counter store.
func NewStore(ctx context.Context, cfg config.StorageConfig, c clock.Clock) (store.Store, error) {
	switch cfg.Backend {
	case "", store.BackendMemory:
		mem := cfg.Memory
		mem.Clock = c
		return store.NewMemoryStore(&mem)
	case store.BackendRedis:
		redisCfg := cfg.Redis
		return store.NewRedisStore(ctx, &redisCfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
