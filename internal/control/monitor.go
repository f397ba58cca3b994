package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pressly/goose/v3"

	"github.com/lamassu-labs/sentinel/internal/core/config"
	"github.com/lamassu-labs/sentinel/internal/core/domain"
	"github.com/lamassu-labs/sentinel/internal/core/worker"
	"github.com/lamassu-labs/sentinel/internal/infra/explorer"
	redisclient "github.com/lamassu-labs/sentinel/internal/infra/redis"
	"github.com/lamassu-labs/sentinel/internal/infra/storage"
	"github.com/lamassu-labs/sentinel/internal/infra/storage/memory"
	"github.com/lamassu-labs/sentinel/internal/infra/storage/postgres"
	"github.com/lamassu-labs/sentinel/internal/monitor/health"
	"github.com/lamassu-labs/sentinel/internal/monitor/poller"
	"github.com/lamassu-labs/sentinel/internal/monitor/store"
	"github.com/lamassu-labs/sentinel/internal/server"
)

// Monitor is the main application struct that manages the polling lifecycle.
type Monitor struct {
	cfg        Config
	store      *store.Store
	poller     *poller.Poller
	explorer   *explorer.Client
	archive    storage.SnapshotArchive
	pruner     *worker.Pruner
	httpServer *server.HTTP
	grpcServer *server.GRPC
	db         *postgres.DB
	redis      *redisclient.Client
	log        *slog.Logger
}

// Config holds the application configuration.
type Config struct {
	HTTPPort int
	GRPCPort int
	Programs []domain.Program
	Explorer config.ExplorerConfig
	Monitor  config.MonitorConfig
	Redis    redisclient.Config
	Database postgres.Config
}

// NewMonitor creates a new Monitor instance with all dependencies initialized.
func NewMonitor(cfg Config) (*Monitor, error) {
	clock := clockwork.NewRealClock()

	// 1. Initialize Snapshot Archive
	var archive storage.SnapshotArchive
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		// Note: Goose needs the direct *sql.DB that sqlx wraps
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		// Assuming migrations are in "migrations" folder relative to CWD
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		archive = postgres.NewSnapshotRepo(db)
		slog.Info("Using PostgreSQL snapshot archive")
	} else {
		archive = memory.NewArchive(clock)
		slog.Info("Using in-memory snapshot archive")
	}

	// 2. Optional Redis persistence for last-known-good snapshots
	var persister store.Persister
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, snapshot persistence disabled", "error", err)
		} else {
			persister = redisClient
			slog.Info("Snapshot persistence enabled")
		}
	}

	// 3. Seed the store and restore any persisted state
	st := store.New(cfg.Programs, clock, persister)
	st.Restore(context.Background())

	// 4. Explorer client over the candidate endpoints
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

	// 5. Poller
	t := cfg.Monitor.Thresholds
	p := poller.New(poller.Config{
		Interval: time.Duration(cfg.Monitor.PollInterval),
		Thresholds: health.Thresholds{
			WarnSuccessRate: t.WarnSuccessRate,
			CritSuccessRate: t.CritSuccessRate,
			DegradedAfter:   time.Duration(t.DegradedAfter),
			UnhealthyAfter:  time.Duration(t.UnhealthyAfter),
		},
	}, client, st, archive, clock)

	// 6. Servers
	httpServer := server.NewHTTP(cfg.HTTPPort, st, p, archive, clock)
	grpcServer := server.NewGRPC(cfg.GRPCPort)
	p.OnCycle(grpcServer.Publish)

	// 7. Archive retention
	pruner := worker.NewPruner(time.Duration(cfg.Monitor.RetentionPeriod), archive, clock)

	return &Monitor{
		cfg:        cfg,
		store:      st,
		poller:     p,
		explorer:   client,
		archive:    archive,
		pruner:     pruner,
		httpServer: httpServer,
		grpcServer: grpcServer,
		db:         db,
		redis:      redisClient,
		log:        slog.Default(),
	}, nil
}

// Start starts the monitor and all its components.
func (m *Monitor) Start(ctx context.Context) error {
	// Start HTTP API
	go func() {
		if err := m.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("HTTP server failed", "error", err)
		}
	}()

	// Start gRPC health server
	go func() {
		if err := m.grpcServer.Start(); err != nil {
			m.log.Error("gRPC server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if m.db != nil {
		m.db.StartMetricsCollector(ctx)
	}

	// Start Poller
	m.log.Info("Starting poller", "programs", len(m.cfg.Programs))
	go func() {
		if err := m.poller.Start(ctx); err != nil {
			m.log.Error("Poller failed", "error", err)
		}
	}()

	// Start Archive Pruner
	go m.pruner.Start(ctx)

	// Start Endpoint Metrics Updater
	go m.runMetricsUpdater(ctx)

	return nil
}

// Stop stops the monitor.
func (m *Monitor) Stop(ctx context.Context) error {
	m.log.Info("Stopping Monitor...")

	// Stop the poll loop first so nothing writes during teardown
	m.poller.Stop()

	m.grpcServer.Stop()

	// Close Redis
	if m.redis != nil {
		if err := m.redis.Close(); err != nil {
			m.log.Warn("Failed to close Redis", "error", err)
		}
	}

	// Close the archive (owns the DB connection in postgres mode)
	if err := m.archive.Close(); err != nil {
		m.log.Warn("Failed to close archive", "error", err)
	}

	// Stop HTTP server last so health probes see the shutdown
	return m.httpServer.Stop(ctx)
}

// Dashboard exposes the current state for the status command.
func (m *Monitor) Dashboard() domain.Dashboard {
	return m.store.Dashboard()
}

// Endpoints exposes explorer endpoint bookkeeping for the status command.
func (m *Monitor) Endpoints() []explorer.EndpointStatus {
	return m.explorer.Endpoints()
}

func (m *Monitor) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.explorer.UpdateMetrics()
			slog.Debug("Updated endpoint metrics")
		}
	}
}
