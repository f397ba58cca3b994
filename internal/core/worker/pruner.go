package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lamassu-labs/sentinel/internal/infra/storage"
	"github.com/lamassu-labs/sentinel/internal/monitor/metrics"
)

// Pruner deletes archived snapshots past the retention period.
type Pruner struct {
	retention time.Duration
	archive   storage.SnapshotArchive
	clock     clockwork.Clock
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, archive storage.SnapshotArchive, clock clockwork.Clock) *Pruner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pruner{
		retention: retention,
		archive:   archive,
		clock:     clock,
		log:       slog.Default().With("component", "pruner"),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check at 10% of the retention period, clamped to [1m, 1h].
	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := p.clock.Now().Add(-p.retention)

	pruned, err := p.archive.PruneBefore(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune snapshot history", "error", err)
		return
	}
	if pruned > 0 {
		metrics.SnapshotsPruned.Add(float64(pruned))
		p.log.Info("Pruned snapshot history", "removed", pruned, "cutoff", cutoff)
	}
}
