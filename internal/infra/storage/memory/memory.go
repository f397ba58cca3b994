package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
	"github.com/lamassu-labs/sentinel/internal/infra/storage"
)

var _ storage.SnapshotArchive = (*Archive)(nil)

// Archive keeps snapshot history in process memory. It is the default
// backend when no database is configured, and doubles as the archive
// used by tests.
type Archive struct {
	mu      sync.RWMutex
	history map[domain.ProgramID][]storage.ArchivedSnapshot
	clock   clockwork.Clock
}

// NewArchive creates an empty in-memory archive.
func NewArchive(clock clockwork.Clock) *Archive {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Archive{
		history: make(map[domain.ProgramID][]storage.ArchivedSnapshot),
		clock:   clock,
	}
}

// AppendSnapshots records the snapshots accepted during one cycle.
func (a *Archive) AppendSnapshots(ctx context.Context, cycleSeq uint64, snapshots []domain.Snapshot) error {
	now := a.clock.Now().UTC()

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, snap := range snapshots {
		a.history[snap.ProgramID] = append(a.history[snap.ProgramID], storage.ArchivedSnapshot{
			CycleSeq:   cycleSeq,
			Snapshot:   snap,
			ArchivedAt: now,
		})
	}
	return nil
}

// History retrieves archived snapshots for a program, oldest first.
func (a *Archive) History(ctx context.Context, programID domain.ProgramID, since time.Time) ([]storage.ArchivedSnapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []storage.ArchivedSnapshot
	for _, entry := range a.history[programID] {
		if entry.ArchivedAt.Before(since) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// PruneBefore deletes archived snapshots older than cutoff.
func (a *Archive) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var pruned int64
	for id, entries := range a.history {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.ArchivedAt.Before(cutoff) {
				pruned++
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			delete(a.history, id)
			continue
		}
		a.history[id] = kept
	}
	return pruned, nil
}

// Health always succeeds for the in-memory backend.
func (a *Archive) Health(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory backend.
func (a *Archive) Close() error { return nil }
