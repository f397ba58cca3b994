package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lamassu-labs/sentinel/internal/core/config"
	"github.com/lamassu-labs/sentinel/internal/core/domain"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current health of all monitored programs",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "base URL of a running sentinel (default http://localhost:<server.port>)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	addr := statusAddr
	if addr == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
		addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(addr + "/api/dashboard")
	if err != nil {
		slog.Error("Failed to reach sentinel", "addr", addr, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		slog.Error("Unexpected response from sentinel", "addr", addr, "status", resp.StatusCode)
		os.Exit(1)
	}

	var dash domain.Dashboard
	if err := json.NewDecoder(resp.Body).Decode(&dash); err != nil {
		slog.Error("Failed to decode dashboard", "error", err)
		os.Exit(1)
	}

	printDashboard(dash)
}

// printDashboard renders the dashboard as the tables the status and
// check commands share.
func printDashboard(dash domain.Dashboard) {
	ids := make([]domain.ProgramID, 0, len(dash.Programs))
	for id := range dash.Programs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PROGRAM\tNAME\tHEALTH\tTOTAL\tRATE\tLAST ACTIVITY\tSTALE")

	for _, id := range ids {
		snap := dash.Programs[id]
		lastActivity := "-"
		if snap.LastActivityAt != nil {
			lastActivity = snap.LastActivityAt.UTC().Format(time.RFC3339)
		}
		stale := ""
		if snap.Stale {
			stale = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f%%\t%s\t%s\n",
			id, snap.Name, snap.Health, snap.Total, snap.SuccessRate, lastActivity, stale)
	}
	_ = w.Flush()

	if dash.Cycle.Sequence > 0 {
		fmt.Printf("\nCycle %d at %s via %s (%dms)\n",
			dash.Cycle.Sequence,
			dash.Cycle.PolledAt.UTC().Format(time.RFC3339),
			dash.Cycle.ActiveEndpoint,
			dash.Cycle.DurationMS)
	}

	for _, alert := range dash.Alerts {
		fmt.Printf("[%s] %s: %s\n", alert.Severity, alert.ProgramID, alert.Message)
	}
}
