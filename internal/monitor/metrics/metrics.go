package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollCyclesTotal counts completed poll cycles.
	PollCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_poll_cycles_total",
			Help: "Total number of completed poll cycles",
		},
	)

	// PollCyclesSkipped counts ticks skipped because the previous cycle
	// was still running.
	PollCyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_poll_cycles_skipped_total",
			Help: "Total number of poll ticks skipped due to an in-flight cycle",
		},
	)

	// CycleDuration tracks end-to-end poll cycle duration.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_poll_cycle_duration_seconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// FetchFailures counts candidate-endpoint exhaustion per program.
	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_fetch_failures_total",
			Help: "Total number of fetches that exhausted every candidate endpoint",
		},
		[]string{"program"},
	)

	// SnapshotsRejected counts candidate snapshots the store refused.
	SnapshotsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_snapshots_rejected_total",
			Help: "Total number of candidate snapshots rejected by the validation rule",
		},
		[]string{"program"},
	)

	// ProgramHealth reports the current classification per program, one
	// series per classification with value 1 for the active one.
	ProgramHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_program_health",
			Help: "Current health classification per program (1 = active classification)",
		},
		[]string{"program", "health"},
	)

	// ProgramSuccessRate reports the published success rate per program.
	ProgramSuccessRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_program_success_rate",
			Help: "Success rate percentage per program",
		},
		[]string{"program"},
	)

	// ProgramTransactions reports the published activity counts per program.
	ProgramTransactions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_program_transactions",
			Help: "Observed transaction counts per program in the recent-activity window",
		},
		[]string{"program", "result"},
	)

	// ActiveAlerts reports the current alert count by severity.
	ActiveAlerts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_active_alerts",
			Help: "Alerts raised by the most recent poll cycle",
		},
		[]string{"severity"},
	)

	// StalePrograms reports how many programs currently serve stale data.
	StalePrograms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_stale_programs",
			Help: "Number of programs whose latest fetch was rejected or failed",
		},
	)

	// EndpointRequests reports cumulative per-endpoint outcomes.
	EndpointRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_endpoint_requests",
			Help: "Cumulative endpoint attempt outcomes",
		},
		[]string{"endpoint", "result"},
	)

	// ActiveEndpoint reports which candidate endpoint is preferred, one
	// series per endpoint with value 1 for the active one.
	ActiveEndpoint = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_active_endpoint",
			Help: "Currently preferred explorer endpoint (1 = active)",
		},
		[]string{"endpoint"},
	)

	// SnapshotsArchived counts snapshots written to the history archive.
	SnapshotsArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_snapshots_archived_total",
			Help: "Total number of snapshots appended to the history archive",
		},
	)

	// SnapshotsPruned counts archived snapshots removed by retention pruning.
	SnapshotsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_snapshots_pruned_total",
			Help: "Total number of archived snapshots deleted by the retention pruner",
		},
	)

	// DBConnectionPoolUsage reports connection pool utilization as a percentage.
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)
)
