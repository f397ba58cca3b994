package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lamassu-labs/sentinel/internal/core/config"
	"github.com/lamassu-labs/sentinel/internal/core/domain"
	redisclient "github.com/lamassu-labs/sentinel/internal/infra/redis"
	"github.com/lamassu-labs/sentinel/internal/infra/storage/memory"
)

// fakeExplorer serves the two queries the poller issues per program: the
// descriptor lookup and the recent-activity window.
func fakeExplorer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/program/prog-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "prog-1"})
	})
	mux.HandleFunc("/program/prog-1/transactions", func(w http.ResponseWriter, r *http.Request) {
		recent := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
		fmt.Fprintf(w, `[{"status":"accepted","timestamp":%q},{"status":"rejected","timestamp":%q}]`,
			recent, recent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(explorerURL string) Config {
	return Config{
		HTTPPort: 0, // Random port
		GRPCPort: 0,
		Programs: []domain.Program{{ID: "prog-1", Name: "Alpha"}},
		Explorer: config.ExplorerConfig{
			Endpoints:     []config.EndpointConfig{{Name: "test", URL: explorerURL}},
			Timeout:       config.Duration(2 * time.Second),
			CacheTTL:      config.Duration(30 * time.Second),
			ActivityLimit: 50,
		},
		Monitor: config.MonitorConfig{
			PollInterval: config.Duration(time.Minute),
			Thresholds: config.ThresholdConfig{
				WarnSuccessRate: 90,
				CritSuccessRate: 80,
				DegradedAfter:   config.Duration(24 * time.Hour),
				UnhealthyAfter:  config.Duration(48 * time.Hour),
			},
		},
	}
}

func TestMonitor_Lifecycle(t *testing.T) {
	srv := fakeExplorer(t)

	m, err := NewMonitor(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}

	// Without a database URL the archive must be the in-memory one.
	if _, ok := m.archive.(*memory.Archive); !ok {
		t.Fatalf("expected in-memory archive, got %T", m.archive)
	}

	// The store seeds every configured program before the first poll.
	dash := m.Dashboard()
	if len(dash.Programs) != 1 {
		t.Fatalf("expected 1 seeded program, got %d", len(dash.Programs))
	}
	if got := dash.Programs["prog-1"].Health; got != domain.HealthInactive {
		t.Errorf("expected seeded snapshot to be inactive, got %s", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start returns immediately; the servers and the poll loop run in
	// goroutines, and the first cycle fires without waiting an interval.
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Dashboard().Cycle.Sequence == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first poll cycle never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	dash = m.Dashboard()
	snap := dash.Programs["prog-1"]
	if snap.Health != domain.HealthHealthy {
		t.Errorf("expected healthy after first cycle, got %s", snap.Health)
	}
	if snap.Total != 2 || snap.Succeeded != 1 || snap.Failed != 1 {
		t.Errorf("unexpected counts: total=%d succeeded=%d failed=%d",
			snap.Total, snap.Succeeded, snap.Failed)
	}
	if dash.Cycle.ActiveEndpoint != "test" {
		t.Errorf("expected active endpoint %q, got %q", "test", dash.Cycle.ActiveEndpoint)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := m.Stop(shutdownCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestMonitor_RedisUnavailableDegradesGracefully(t *testing.T) {
	srv := fakeExplorer(t)

	cfg := testConfig(srv.URL)
	cfg.Redis = redisclient.Config{URL: "redis://127.0.0.1:1"}

	// An unreachable Redis disables persistence but never fails startup.
	m, err := NewMonitor(cfg)
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}
	if m.redis != nil {
		t.Error("expected nil redis client when the connection fails")
	}
	if len(m.Dashboard().Programs) != 1 {
		t.Errorf("expected seeded dashboard despite redis failure")
	}
}
