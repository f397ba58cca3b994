package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/lamassu-labs/sentinel/internal/core/config"
	"github.com/lamassu-labs/sentinel/internal/core/domain"
	"github.com/lamassu-labs/sentinel/internal/infra/explorer"
	"github.com/lamassu-labs/sentinel/internal/monitor/health"
	"github.com/lamassu-labs/sentinel/internal/monitor/poller"
	"github.com/lamassu-labs/sentinel/internal/monitor/store"
)

// checkCmd runs a single poll cycle without the servers, so cron jobs
// and CI can probe program health with just a config file.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Poll once and exit non-zero when any program is unhealthy",
	Run:   runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogging(config.LoggingConfig{}, false)
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	initLogging(cfg.Logging, isDebug)

	clock := clockwork.NewRealClock()
	st := store.New(cfg.ProgramList(), clock, nil)

	endpoints := make([]explorer.Endpoint, 0, len(cfg.Explorer.Endpoints))
	for _, ep := range cfg.Explorer.Endpoints {
		endpoints = append(endpoints, explorer.Endpoint{Name: ep.Name, URL: ep.URL})
	}
	client := explorer.NewClient(endpoints, explorer.Options{
		Timeout:       time.Duration(cfg.Explorer.Timeout),
		CacheTTL:      time.Duration(cfg.Explorer.CacheTTL),
		ActivityLimit: cfg.Explorer.ActivityLimit,
		Clock:         clock,
	})
	defer func() {
		_ = client.Close()
	}()

	t := cfg.Monitor.Thresholds
	p := poller.New(poller.Config{
		Interval: time.Duration(cfg.Monitor.PollInterval),
		Thresholds: health.Thresholds{
			WarnSuccessRate: t.WarnSuccessRate,
			CritSuccessRate: t.CritSuccessRate,
			DegradedAfter:   time.Duration(t.DegradedAfter),
			UnhealthyAfter:  time.Duration(t.UnhealthyAfter),
		},
	}, client, st, nil, clock)

	// Worst case is every candidate timing out on both queries for every
	// program, plus slack for the merge.
	budget := 2 * time.Duration(cfg.Explorer.Timeout) * time.Duration(len(cfg.Explorer.Endpoints))
	ctx, cancel := context.WithTimeout(context.Background(), budget+5*time.Second)
	defer cancel()

	if _, err := p.RunCycle(ctx); err != nil {
		slog.Error("Poll cycle failed", "error", err)
		os.Exit(1)
	}

	dash := st.Dashboard()
	printDashboard(dash)

	for _, snap := range dash.Programs {
		if snap.Health == domain.HealthUnhealthy || snap.Health == domain.HealthError {
			os.Exit(1)
		}
	}
}
