package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lamassu-labs/sentinel/internal/control"
	"github.com/lamassu-labs/sentinel/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel program health monitor",
	Long: `Sentinel polls blockchain explorer endpoints for on-chain program activity
and serves a health dashboard that never regresses to an empty state.`,
	Run: runMonitor,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func runMonitor(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration first (before setting up logger)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogging(config.LoggingConfig{}, false)
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	initLogging(cfg.Logging, isDebug)

	// Transform config
	controlCfg := control.Config{
		HTTPPort: cfg.Server.Port,
		GRPCPort: cfg.Server.GRPCPort,
		Programs: cfg.ProgramList(),
		Explorer: cfg.Explorer,
		Monitor:  cfg.Monitor,
		Redis:    cfg.Redis,
		Database: cfg.Database,
	}

	// Initialize Monitor
	app, err := control.NewMonitor(controlCfg)
	if err != nil {
		slog.Error("Failed to initialize Monitor", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start Monitor", "error", err)
		os.Exit(1)
	}

	slog.Info("Sentinel started", "config", cfgPath, "programs", len(controlCfg.Programs))

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Sentinel stopped gracefully")
}
