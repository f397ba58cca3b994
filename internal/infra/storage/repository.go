package storage

import (
	"context"
	"time"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
)

// ArchivedSnapshot is a published snapshot as recorded in the history
// archive, annotated with the cycle that produced it.
type ArchivedSnapshot struct {
	CycleSeq   uint64          `json:"cycle_seq"`
	Snapshot   domain.Snapshot `json:"snapshot"`
	ArchivedAt time.Time       `json:"archived_at"`
}

// SnapshotArchive persists the per-cycle snapshot history.
//
// The archive holds only snapshots that passed validation; rejected
// candidates never reach it, so history queries always return data the
// dashboard actually served.
type SnapshotArchive interface {
	// AppendSnapshots records the snapshots accepted during one cycle.
	AppendSnapshots(ctx context.Context, cycleSeq uint64, snapshots []domain.Snapshot) error

	// History retrieves archived snapshots for a program, oldest first,
	// starting at since.
	History(ctx context.Context, programID domain.ProgramID, since time.Time) ([]ArchivedSnapshot, error)

	// PruneBefore deletes archived snapshots older than cutoff and
	// returns how many were removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Health checks whether the archive backend is reachable.
	Health(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
