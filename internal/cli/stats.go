package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

const statsRequestTimeout = 5 * time.Second

// statsView mirrors the /api/stats payload, whose period is a duration
// string.
type statsView struct {
	TotalRequests     int64                 `json:"total_requests"`
	BlockedRequests   int64                 `json:"blocked_requests"`
	BlockRate         float64               `json:"block_rate"`
	TopViolatedLimits []recorder.LimitCount `json:"top_violated_limits"`
	Period            string                `json:"period"`
}

func newStatsCmd(g *globalOptions) *cobra.Command {
	var (
		serverURL  string
		file       string
		period     time.Duration
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show admission statistics",
		Long: `Shows total and blocked requests, the block rate and the most violated
limit classes over a trailing period.

By default the numbers come from a running server. With --file they are
computed offline from recorded events, over the period ending at the last
event.`,
		Example: `  gatekeeper stats
  gatekeeper stats --server http://gk.internal:8080 --period 15m
  gatekeeper stats --file events.json --period 24h --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := g.load(); err != nil {
				return err
			}

			var (
				view statsView
				err  error
			)
			if file != "" {
				view, err = statsFromFile(file, period)
			} else {
				view, err = fetchStats(cmd.Context(), serverURL, period)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			printStats(out, view)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of a running gatekeeper server")
	cmd.Flags().StringVar(&file, "file", "", "compute statistics from recorded events instead")
	cmd.Flags().DurationVar(&period, "period", time.Hour, "trailing period")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")

	return cmd
}

func fetchStats(ctx context.Context, base string, period time.Duration) (statsView, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, statsRequestTimeout)
	defer cancel()

	u := strings.TrimRight(base, "/") + "/api/stats?period=" + url.QueryEscape(period.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return statsView{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return statsView{}, fmt.Errorf("querying %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return statsView{}, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var view statsView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return statsView{}, fmt.Errorf("decoding stats: %w", err)
	}
	return view, nil
}

// statsFromFile feeds recorded events through a recorder on a virtual
// clock and reads its statistics at the time of the last event.
func statsFromFile(path string, period time.Duration) (statsView, error) {
	f, err := os.Open(path)
	if err != nil {
		return statsView{}, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	events, err := recorder.LoadJSON(f)
	if err != nil {
		return statsView{}, fmt.Errorf("loading events: %w", err)
	}
	if len(events) == 0 {
		return statsView{Period: period.String(), TopViolatedLimits: []recorder.LimitCount{}}, nil
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })

	vc := clock.NewVirtualClock(events[0].Time)
	rec := recorder.New(recorder.Options{
		Clock:     vc,
		Retention: max(period, time.Minute),
		MaxEvents: -1,
	})
	for _, ev := range events {
		if ev.Time.After(vc.Now()) {
			vc.Set(ev.Time)
		}
		rec.RecordOutcome(ev.Identifier, ev.Class, ev.Allowed, ev.Request)
	}

	s := rec.Statistics(period)
	return statsView{
		TotalRequests:     s.TotalRequests,
		BlockedRequests:   s.BlockedRequests,
		BlockRate:         s.BlockRate,
		TopViolatedLimits: s.TopViolatedLimits,
		Period:            s.Period.String(),
	}, nil
}

func printStats(w io.Writer, s statsView) {
	fmt.Fprintf(w, "Period:           %s\n", s.Period)
	fmt.Fprintf(w, "Total requests:   %d\n", s.TotalRequests)
	fmt.Fprintf(w, "Blocked requests: %d\n", s.BlockedRequests)
	fmt.Fprintf(w, "Block rate:       %.1f%%\n", s.BlockRate*100)
	if len(s.TopViolatedLimits) == 0 {
		return
	}
	fmt.Fprintln(w, "Top violated limits:")
	for _, lc := range s.TopViolatedLimits {
		fmt.Fprintf(w, "  %-12s %d\n", lc.Class, lc.Count)
	}
}
