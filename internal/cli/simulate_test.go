package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
)

func TestRunSimulation_LoginRecovers(t *testing.T) {
	result, err := runSimulation(context.Background(), config.Default(), simulation{
		limitType:   limits.Login,
		requests:    6,
		identifiers: []string{"alice"},
		fastForward: 167 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(result.Batches))
	}
	first := result.Batches[0].Decisions
	if !first[4].Decision.Allowed || first[5].Decision.Allowed {
		t.Fatal("expected 5 allowed then a denial")
	}
	if first[5].Decision.RetryAfter != 167 {
		t.Errorf("retry_after = %d, want 167", first[5].Decision.RetryAfter)
	}
	if !result.Batches[1].Decisions[0].Decision.Allowed {
		t.Error("first attempt after fast-forward should be allowed")
	}

	s := result.Summary["alice"]
	if s.TotalRequests != 12 || s.Allowed != 6 || s.Denied != 6 {
		t.Errorf("summary = %+v, want 12 total, 6 allowed, 6 denied", s)
	}
	if result.FastForward != "2m47s" {
		t.Errorf("fast_forward = %q, want %q", result.FastForward, "2m47s")
	}
}

func TestRunSimulation_AdaptiveTightensAfterViolations(t *testing.T) {
	result, err := runSimulation(context.Background(), config.Default(), simulation{
		limitType:   limits.Login,
		requests:    6,
		identifiers: []string{"alice"},
		fastForward: 167 * time.Second,
		adaptive:    true,
	})
	if err != nil {
		t.Fatal(err)
	}

	// One violation scales login down, so 167s no longer refills a token.
	s := result.Summary["alice"]
	if s.Allowed != 5 || s.Denied != 7 {
		t.Errorf("summary = %+v, want 5 allowed, 7 denied", s)
	}
}

func TestRunSimulation_StoreDownFailsOpen(t *testing.T) {
	result, err := runSimulation(context.Background(), config.Default(), simulation{
		limitType:   limits.Login,
		requests:    10,
		identifiers: []string{"alice", "bob"},
		storeDown:   true,
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"alice", "bob"} {
		s := result.Summary[id]
		if s.Allowed != 10 || s.Denied != 0 || s.Degraded != 10 {
			t.Errorf("%s: summary = %+v, want all allowed and degraded", id, s)
		}
	}
}

func TestRunSimulation_Errors(t *testing.T) {
	_, err := runSimulation(context.Background(), config.Default(), simulation{
		limitType:   "nope",
		requests:    1,
		identifiers: []string{"alice"},
	})
	if !errors.Is(err, limits.ErrUnknownLimitClass) {
		t.Errorf("error = %v, want ErrUnknownLimitClass", err)
	}

	_, err = runSimulation(context.Background(), config.Default(), simulation{limitType: limits.Login})
	if err == nil {
		t.Error("expected error for zero requests")
	}
}

func TestSimulateCmd_JSON(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"simulate", "--type", "search", "--requests", "55",
		"--fast-forward", "61s", "--adaptive=false", "--json", "--log-level", "error",
	})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	var result SimulationResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	s := result.Summary["sim-user"]
	if s.TotalRequests != 110 || s.Allowed != 100 || s.Denied != 10 {
		t.Errorf("summary = %+v, want 110 total, 100 allowed, 10 denied", s)
	}
	if d := result.Batches[0].Decisions[50].Decision; d.Allowed || d.RetryAfter != 60 || d.Reason != limits.Search {
		t.Errorf("51st decision = %+v, want search denial with retry 60", d)
	}
}

func TestSimulateCmd_Text(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"simulate", "--type", "login", "--requests", "6", "--fast-forward", "167s", "--adaptive=false"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	text := out.String()
	for _, want := range []string{"[DENY ] sim-user reason=login retry_after=167s", "sim-user: 12 total, 6 allowed, 6 denied", "Limits recovered"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}
