package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limits"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

func TestStatsFromFile(t *testing.T) {
	events := loginEvents(3, "alice")
	for i := 0; i < 2; i++ {
		events = append(events, recorder.DecisionEvent{
			Time:       epoch.Add(10 * time.Second),
			Identifier: "alice",
			Class:      limits.Login,
		})
	}
	events = append(events, recorder.DecisionEvent{
		Time:       epoch.Add(20 * time.Second),
		Identifier: "bob",
		Class:      limits.Search,
	})

	view, err := statsFromFile(writeEvents(t, events), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if view.TotalRequests != 6 || view.BlockedRequests != 3 {
		t.Errorf("total/blocked = %d/%d, want 6/3", view.TotalRequests, view.BlockedRequests)
	}
	if view.BlockRate != 0.5 {
		t.Errorf("block rate = %v, want 0.5", view.BlockRate)
	}
	if len(view.TopViolatedLimits) != 2 || view.TopViolatedLimits[0].Class != limits.Login || view.TopViolatedLimits[0].Count != 2 {
		t.Errorf("top violated = %+v, want login:2 first", view.TopViolatedLimits)
	}
}

func TestFetchStats(t *testing.T) {
	var gotPeriod string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" {
			http.NotFound(w, r)
			return
		}
		gotPeriod = r.URL.Query().Get("period")
		json.NewEncoder(w).Encode(map[string]any{
			"total_requests":      10,
			"blocked_requests":    4,
			"block_rate":          0.4,
			"top_violated_limits": []map[string]any{{"class": "login", "count": 4}},
			"period":              "15m0s",
		})
	}))
	defer ts.Close()

	view, err := fetchStats(context.Background(), ts.URL+"/", 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if gotPeriod != "15m0s" {
		t.Errorf("period query = %q, want 15m0s", gotPeriod)
	}
	if view.TotalRequests != 10 || view.BlockedRequests != 4 || view.Period != "15m0s" {
		t.Errorf("view = %+v", view)
	}
}

func TestFetchStats_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad period", http.StatusBadRequest)
	}))
	defer ts.Close()

	if _, err := fetchStats(context.Background(), ts.URL, time.Hour); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
