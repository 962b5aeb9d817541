package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/adaptive"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/admission"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/replay"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

func newReplayCmd(g *globalOptions) *cobra.Command {
	var (
		file        string
		limitType   string
		speed       float64
		identifiers []string
		endpoints   []string
		outputJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded decision events through the configured limits",
		Long: `Replays decision events captured by "serve --record" or "serve --stream"
(or made by "generate traffic") through a controller built from the
current config.

Events are replayed in time order and the virtual clock advances to match
the recorded gaps, so a limit catalog can be tried against real traffic.
Outcomes that differ from the recording are counted as changed.

Speed: 0 = instant, 1 = real-time, 10 = 10x, 100 = 100x`,
		Example: `  gatekeeper replay --file events.json
  gatekeeper replay --file events.ndjson --config stricter.yaml --json
  gatekeeper replay --file events.json --identifiers alice,bob --endpoints /login
  gatekeeper replay --file traffic.json --speed 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening file: %w", err)
			}
			defer f.Close()

			filter := replay.Filter{Identifiers: identifiers, Endpoints: endpoints}
			out := cmd.OutOrStdout()
			if !outputJSON {
				fmt.Fprintf(out, "Replaying %s at %gx speed...\n\n", file, speed)
			}

			var results []replay.Result
			summary, err := runReplay(cmd.Context(), cfg, f, limitType, speed, filter, func(res replay.Result) {
				if outputJSON {
					results = append(results, res)
					return
				}
				printReplayResult(out, res)
			})
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"results": results,
					"summary": summary,
				})
			}
			printReplaySummary(out, summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "recorded events, JSON array or NDJSON (required)")
	cmd.Flags().StringVar(&limitType, "type", limits.Default, "limit class every replayed request is checked against")
	cmd.Flags().Float64Var(&speed, "speed", 0, "replay speed (0=instant, 1=real-time, 10=10x)")
	cmd.Flags().StringSliceVar(&identifiers, "identifiers", nil, "only replay these identifiers")
	cmd.Flags().StringSliceVar(&endpoints, "endpoints", nil, "only replay matching endpoints")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")

	return cmd
}

func runReplay(ctx context.Context, cfg config.Config, rd io.Reader, limitType string, speed float64, filter replay.Filter, cb func(replay.Result)) (*replay.Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.Coordinator.Enabled = false
	cfg.Recorder.StreamPath = ""

	vc := clock.NewVirtualClock(time.Unix(0, 0).UTC())
	mem, err := store.NewMemoryStore(&store.MemoryConfig{CleanupInterval: time.Hour, Clock: vc})
	if err != nil {
		return nil, err
	}
	defer mem.Close()

	ctrl, err := admission.NewFromConfig(ctx, cfg, admission.BuildOptions{
		Clock: vc,
		Store: mem,
		Load:  adaptive.NeutralScorer{},
	})
	if err != nil {
		return nil, err
	}
	defer ctrl.Close()

	r := replay.New(ctrl, vc, limitType, speed, filter)
	if err := r.Load(rd); err != nil {
		return nil, err
	}
	return r.Run(ctx, cb)
}

func printReplayResult(w io.Writer, res replay.Result) {
	status := "ALLOW"
	if !res.Decision.Allowed {
		status = "DENY "
	}
	line := fmt.Sprintf("  [%s] %s %s", status, res.Event.Time.Format("15:04:05"), res.Event.Identifier)
	if ep := res.Event.Request.Endpoint; ep != "" {
		line += " " + ep
	}
	if !res.Decision.Allowed {
		line += " reason=" + res.Decision.Reason
	}
	if res.Changed {
		line += " (changed)"
	}
	fmt.Fprintln(w, line)
}

func printReplaySummary(w io.Writer, s *replay.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "--- Replay Summary ---")
	fmt.Fprintf(w, "  Total events:   %d\n", s.TotalEvents)
	fmt.Fprintf(w, "  Filtered:       %d\n", s.Filtered)
	fmt.Fprintf(w, "  Replayed:       %d\n", s.Replayed)
	fmt.Fprintf(w, "  Allowed:        %d\n", s.Allowed)
	fmt.Fprintf(w, "  Denied:         %d\n", s.Denied)
	fmt.Fprintf(w, "  Changed:        %d\n", s.Changed)
	fmt.Fprintf(w, "  Virtual time:   %s\n", s.Duration)
	fmt.Fprintf(w, "  Wall time:      %s\n", s.WallDuration.Round(time.Millisecond))

	if len(s.PerIdentifier) > 1 {
		ids := make([]string, 0, len(s.PerIdentifier))
		for id := range s.PerIdentifier {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Per identifier:")
		for _, id := range ids {
			is := s.PerIdentifier[id]
			fmt.Fprintf(w, "    %s: %d allowed, %d denied\n", id, is.Allowed, is.Denied)
		}
	}

	if s.Denied > 0 && s.Allowed > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("=", 50))
		denyRate := float64(s.Denied) / float64(s.Replayed) * 100
		fmt.Fprintf(w, "Deny rate: %.1f%% (%d/%d requests denied)\n", denyRate, s.Denied, s.Replayed)
		fmt.Fprintln(w, strings.Repeat("=", 50))
	}
}
