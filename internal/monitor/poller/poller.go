package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
	"github.com/lamassu-labs/sentinel/internal/infra/storage"
	"github.com/lamassu-labs/sentinel/internal/monitor/health"
	"github.com/lamassu-labs/sentinel/internal/monitor/metrics"
	"github.com/lamassu-labs/sentinel/internal/monitor/store"
)

// Fetcher retrieves raw activity samples for monitored programs.
type Fetcher interface {
	FetchProgramMetrics(ctx context.Context, program domain.Program) (domain.RawSample, error)
	ActiveEndpoint() string
	InvalidateCache()
}

// Config holds the poll loop configuration.
type Config struct {
	Interval   time.Duration
	Thresholds health.Thresholds
}

// Poller drives the periodic fetch-classify-merge cycle. Cycles never
// overlap: a tick that fires while a cycle is still in flight is
// skipped, and forced refreshes wait for their turn.
type Poller struct {
	cfg     Config
	fetcher Fetcher
	store   *store.Store
	archive storage.SnapshotArchive
	clock   clockwork.Clock
	log     *slog.Logger

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	seq      atomic.Uint64

	// sem serializes cycles. A channel instead of a mutex so RunCycle
	// can give up waiting when its context expires.
	sem chan struct{}

	hooks []func(domain.Dashboard)
}

// New creates a poller over the given store and snapshot source. The
// archive may be nil when history is not persisted.
func New(cfg Config, fetcher Fetcher, st *store.Store, archive storage.SnapshotArchive, clock clockwork.Clock) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		store:   st,
		archive: archive,
		clock:   clock,
		log:     slog.Default().With("component", "poller"),
		stop:    make(chan struct{}),
		sem:     make(chan struct{}, 1),
	}
}

// OnCycle registers a hook invoked with the fresh dashboard after every
// completed cycle. Register hooks before Start.
func (p *Poller) OnCycle(fn func(domain.Dashboard)) {
	p.hooks = append(p.hooks, fn)
}

// Start begins the poll loop. The first cycle runs immediately so the
// dashboard fills without waiting out a full interval.
func (p *Poller) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("poller already running")
	}
	defer p.running.Store(false)

	p.log.Info("Poller started",
		"interval", p.cfg.Interval,
		"programs", len(p.store.Programs()),
	)

	p.tick(ctx)

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		case <-ticker.Chan():
			p.tick(ctx)
		}
	}
}

// Stop stops the poll loop. Safe to call multiple times.
func (p *Poller) Stop() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return nil
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// RunCycle forces an immediate refresh, bypassing the sample cache. It
// waits for any in-flight cycle to finish, or gives up when ctx expires.
func (p *Poller) RunCycle(ctx context.Context) (domain.CycleInfo, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return domain.CycleInfo{}, ctx.Err()
	}
	defer func() { <-p.sem }()

	p.fetcher.InvalidateCache()
	return p.cycle(ctx)
}

// tick runs one scheduled cycle, skipping when a forced refresh still
// holds the slot.
func (p *Poller) tick(ctx context.Context) {
	select {
	case p.sem <- struct{}{}:
	default:
		p.log.Warn("Skipping poll tick, previous cycle still running")
		metrics.PollCyclesSkipped.Inc()
		return
	}
	defer func() { <-p.sem }()

	if _, err := p.cycle(ctx); err != nil {
		p.log.Error("Poll cycle failed", "error", err)
	}
}

// cycle performs one fetch-classify-merge pass over every program.
func (p *Poller) cycle(ctx context.Context) (domain.CycleInfo, error) {
	seq := p.seq.Add(1)
	start := p.clock.Now()
	now := start.UTC()

	programs := p.store.Programs()

	// Fetch all programs concurrently; one slow endpoint must not hold
	// back the rest of the cycle.
	candidates := make([]domain.Snapshot, len(programs))
	var wg sync.WaitGroup
	for i, prog := range programs {
		wg.Add(1)
		go func(i int, prog domain.Program) {
			defer wg.Done()
			sample, err := p.fetcher.FetchProgramMetrics(ctx, prog)
			if err != nil {
				p.log.Warn("Fetch failed", "program", prog.ID, "error", err)
				metrics.FetchFailures.WithLabelValues(string(prog.ID)).Inc()
				candidates[i] = health.FailureSnapshot(prog, now)
				return
			}
			candidates[i] = health.Classify(prog, sample, p.cfg.Thresholds, now)
		}(i, prog)
	}
	wg.Wait()

	// A cycle interrupted by shutdown must not mark everything stale.
	if err := ctx.Err(); err != nil {
		return domain.CycleInfo{}, err
	}

	// Merge. Rejected candidates leave the stored snapshot in place.
	accepted := make([]domain.Snapshot, 0, len(candidates))
	for _, cand := range candidates {
		if p.store.Apply(ctx, cand) {
			accepted = append(accepted, cand)
		} else {
			metrics.SnapshotsRejected.WithLabelValues(string(cand.ProgramID)).Inc()
		}
	}

	// Alerts evaluate what the dashboard actually serves, so a stale
	// snapshot keeps alerting until real data replaces it.
	alerts := health.BuildAlerts(p.store.Dashboard().Programs, p.cfg.Thresholds, now)

	info := domain.CycleInfo{
		Sequence:       seq,
		PolledAt:       now,
		DurationMS:     p.clock.Since(start).Milliseconds(),
		ActiveEndpoint: p.fetcher.ActiveEndpoint(),
	}
	p.store.Commit(info, alerts)

	if p.archive != nil && len(accepted) > 0 {
		if err := p.archive.AppendSnapshots(ctx, seq, accepted); err != nil {
			p.log.Warn("Failed to archive snapshots", "cycle", seq, "error", err)
		} else {
			metrics.SnapshotsArchived.Add(float64(len(accepted)))
		}
	}

	dash := p.store.Dashboard()
	p.publishMetrics(dash)

	for _, hook := range p.hooks {
		hook(dash)
	}

	metrics.PollCyclesTotal.Inc()
	metrics.CycleDuration.Observe(p.clock.Since(start).Seconds())

	p.log.Info("Poll cycle complete",
		"cycle", seq,
		"duration_ms", dash.Cycle.DurationMS,
		"healthy", dash.Summary.Healthy,
		"alerts", len(dash.Alerts),
		"stale", len(dash.Cycle.StalePrograms),
	)

	return dash.Cycle, nil
}

func (p *Poller) publishMetrics(dash domain.Dashboard) {
	for id, snap := range dash.Programs {
		prog := string(id)
		for _, h := range domain.AllHealths {
			val := 0.0
			if snap.Health == h {
				val = 1
			}
			metrics.ProgramHealth.WithLabelValues(prog, string(h)).Set(val)
		}
		metrics.ProgramSuccessRate.WithLabelValues(prog).Set(snap.SuccessRate)
		metrics.ProgramTransactions.WithLabelValues(prog, "total").Set(float64(snap.Total))
		metrics.ProgramTransactions.WithLabelValues(prog, "succeeded").Set(float64(snap.Succeeded))
		metrics.ProgramTransactions.WithLabelValues(prog, "failed").Set(float64(snap.Failed))
	}

	var warnings, criticals int
	for _, a := range dash.Alerts {
		switch a.Severity {
		case domain.SeverityCritical:
			criticals++
		default:
			warnings++
		}
	}
	metrics.ActiveAlerts.WithLabelValues(string(domain.SeverityWarning)).Set(float64(warnings))
	metrics.ActiveAlerts.WithLabelValues(string(domain.SeverityCritical)).Set(float64(criticals))
	metrics.StalePrograms.Set(float64(len(dash.Cycle.StalePrograms)))
}
