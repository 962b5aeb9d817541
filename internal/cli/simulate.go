package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/adaptive"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/admission"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

// simulation describes one simulate run.
type simulation struct {
	limitType   string
	requests    int
	identifiers []string
	request     limits.RequestContext
	fastForward time.Duration
	storeDown   bool
	adaptive    bool
	load        float64
}

func newSimulateCmd(g *globalOptions) *cobra.Command {
	var (
		sim        simulation
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run admission checks against a virtual clock",
		Long: `Runs admission checks against a virtual clock, so limits that take minutes
or hours to recover can be exercised in milliseconds.

A batch of requests is sent per identifier, time is optionally
fast-forwarded, and a second batch shows how the limits recovered.
--store-down makes every counter read fail to show fail-open behavior.`,
		Example: `  gatekeeper simulate --type login --requests 6 --fast-forward 167s
  gatekeeper simulate --type search --requests 55 --endpoint "GET /search" --fast-forward 61s
  gatekeeper simulate --identifiers alice,bob --requests 10 --load 2 --json
  gatekeeper simulate --type login --requests 10 --store-down`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if len(sim.identifiers) == 0 {
				sim.identifiers = []string{"sim-user"}
			}

			result, err := runSimulation(cmd.Context(), cfg, sim)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printSimulation(out, &result)
			return nil
		},
	}

	cmd.Flags().StringVar(&sim.limitType, "type", limits.Default, "limit class of the simulated action")
	cmd.Flags().IntVar(&sim.requests, "requests", 15, "requests per identifier per batch")
	cmd.Flags().StringSliceVar(&sim.identifiers, "identifiers", nil, "comma-separated caller identifiers")
	cmd.Flags().StringVar(&sim.request.IP, "ip", "", "client IP attached to every request")
	cmd.Flags().StringVar(&sim.request.UserID, "user", "", "user id attached to every request")
	cmd.Flags().StringVar(&sim.request.Endpoint, "endpoint", "", `endpoint attached to every request, such as "POST /login"`)
	cmd.Flags().IntVar(&sim.request.Cost, "cost", 1, "units consumed per request")
	cmd.Flags().DurationVar(&sim.fastForward, "fast-forward", 0, "virtual time to skip between batches")
	cmd.Flags().BoolVar(&sim.storeDown, "store-down", false, "simulate an unavailable counter store")
	cmd.Flags().BoolVar(&sim.adaptive, "adaptive", true, "scale limits by violation history")
	cmd.Flags().Float64Var(&sim.load, "load", 0, "fixed system load factor (0 = neutral)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")

	return cmd
}

// SimulationResult captures the output of a simulate run.
type SimulationResult struct {
	LimitType   string                       `json:"limit_type"`
	FastForward string                       `json:"fast_forward,omitempty"`
	Batches     []BatchResult                `json:"batches"`
	Summary     map[string]IdentifierSummary `json:"summary"`
}

// BatchResult captures one batch of requests.
type BatchResult struct {
	Label     string           `json:"label"`
	Time      string           `json:"time"`
	Decisions []DecisionRecord `json:"decisions"`
}

// DecisionRecord is one admission check.
type DecisionRecord struct {
	Identifier string             `json:"identifier"`
	Decision   admission.Decision `json:"decision"`
}

// IdentifierSummary aggregates outcomes per identifier.
type IdentifierSummary struct {
	TotalRequests int `json:"total_requests"`
	Allowed       int `json:"allowed"`
	Denied        int `json:"denied"`
	Degraded      int `json:"degraded"`
}

func runSimulation(ctx context.Context, cfg config.Config, sim simulation) (SimulationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sim.requests < 1 {
		return SimulationResult{}, fmt.Errorf("requests must be >= 1, got %d", sim.requests)
	}

	// Simulations are local and never write the configured event stream.
	cfg.Coordinator.Enabled = false
	cfg.Recorder.StreamPath = ""

	vc := clock.NewVirtualClock(time.Now().Truncate(time.Second))

	var st store.Store = store.FailingStore{}
	if !sim.storeDown {
		mem, err := store.NewMemoryStore(&store.MemoryConfig{CleanupInterval: time.Hour, Clock: vc})
		if err != nil {
			return SimulationResult{}, err
		}
		defer mem.Close()
		st = mem
	}

	load := &adaptive.StaticLoadScorer{}
	load.Set(sim.load)
	opts := admission.BuildOptions{Clock: vc, Store: st, Load: load}
	if !sim.adaptive {
		opts.Threat = adaptive.NeutralScorer{}
	}
	ctrl, err := admission.NewFromConfig(ctx, cfg, opts)
	if err != nil {
		return SimulationResult{}, err
	}
	defer ctrl.Close()

	result := SimulationResult{
		LimitType: sim.limitType,
		Summary:   make(map[string]IdentifierSummary),
	}

	batch, err := runBatch(ctx, ctrl, vc, "Initial requests", sim, result.Summary)
	if err != nil {
		return result, err
	}
	result.Batches = append(result.Batches, batch)

	if sim.fastForward > 0 {
		vc.Advance(sim.fastForward)
		result.FastForward = sim.fastForward.String()

		batch, err := runBatch(ctx, ctrl, vc, fmt.Sprintf("After fast-forward %s", sim.fastForward), sim, result.Summary)
		if err != nil {
			return result, err
		}
		result.Batches = append(result.Batches, batch)
	}
	return result, nil
}

func runBatch(ctx context.Context, ctrl *admission.Controller, vc *clock.VirtualClock, label string, sim simulation, summary map[string]IdentifierSummary) (BatchResult, error) {
	batch := BatchResult{
		Label: label,
		Time:  vc.Now().Format(time.RFC3339),
	}
	for i := 0; i < sim.requests; i++ {
		for _, id := range sim.identifiers {
			dec, err := ctrl.IsAllowed(ctx, id, sim.limitType, sim.request)
			if err != nil {
				return batch, err
			}
			batch.Decisions = append(batch.Decisions, DecisionRecord{Identifier: id, Decision: dec})

			s := summary[id]
			s.TotalRequests++
			if dec.Allowed {
				s.Allowed++
			} else {
				s.Denied++
			}
			if dec.Degraded {
				s.Degraded++
			}
			summary[id] = s
		}
	}
	return batch, nil
}

func printSimulation(w io.Writer, r *SimulationResult) {
	fmt.Fprintln(w, "=== Gatekeeper Simulation ===")
	fmt.Fprintf(w, "limit type: %s\n\n", r.LimitType)

	for _, batch := range r.Batches {
		fmt.Fprintf(w, "--- %s (at %s) ---\n", batch.Label, batch.Time)
		for i, dr := range batch.Decisions {
			d := dr.Decision
			status := "ALLOW"
			detail := fmt.Sprintf("remaining=%d", d.MinRemaining())
			if !d.Allowed {
				status = "DENY "
				detail = fmt.Sprintf("reason=%s retry_after=%ds", d.Reason, d.RetryAfter)
			}
			if d.Degraded {
				detail += " degraded"
			}
			fmt.Fprintf(w, "  #%03d [%s] %s %s\n", i+1, status, dr.Identifier, detail)
		}
		fmt.Fprintln(w)
	}

	ids := make([]string, 0, len(r.Summary))
	for id := range r.Summary {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(w, "--- Summary ---")
	for _, id := range ids {
		s := r.Summary[id]
		fmt.Fprintf(w, "  %s: %d total, %d allowed, %d denied", id, s.TotalRequests, s.Allowed, s.Denied)
		if s.Degraded > 0 {
			fmt.Fprintf(w, ", %d degraded", s.Degraded)
		}
		fmt.Fprintln(w)
	}

	if r.FastForward == "" || len(r.Batches) < 2 {
		return
	}
	denied, recovered := false, false
	for _, dr := range r.Batches[0].Decisions {
		if !dr.Decision.Allowed {
			denied = true
			break
		}
	}
	for _, dr := range r.Batches[1].Decisions {
		if dr.Decision.Allowed {
			recovered = true
			break
		}
	}
	if denied && recovered {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("=", 50))
		fmt.Fprintf(w, "Limits recovered after fast-forwarding %s.\n", r.FastForward)
		fmt.Fprintln(w, strings.Repeat("=", 50))
	}
}
