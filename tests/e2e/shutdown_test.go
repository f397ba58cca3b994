package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/lamassu-labs/sentinel/internal/control"
)

func TestGracefulShutdown(t *testing.T) {
	// Dead endpoint: every fetch fails fast with connection refused,
	// which exercises the all-candidates-down path during shutdown.
	cfg := baseConfig("http://127.0.0.1:1")

	monitor, err := control.NewMonitor(cfg)
	if err != nil {
		t.Fatalf("Failed to create monitor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := monitor.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the first (failing) cycle complete
	deadline := time.Now().Add(5 * time.Second)
	for monitor.Dashboard().Cycle.Sequence == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first poll cycle never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Failed fetches never empty the dashboard: the seeded snapshot
	// survives, flagged stale.
	dash := monitor.Dashboard()
	if len(dash.Programs) != 1 {
		t.Fatalf("expected 1 program on dashboard, got %d", len(dash.Programs))
	}
	if !dash.Programs["prog-1"].Stale {
		t.Error("expected stale flag after failed cycle")
	}

	// Trigger shutdown
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	if err := monitor.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
