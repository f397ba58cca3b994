package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
	"github.com/lamassu-labs/sentinel/internal/infra/storage"
)

var _ storage.SnapshotArchive = (*SnapshotRepo)(nil)

// SnapshotRepo implements storage.SnapshotArchive using PostgreSQL.
type SnapshotRepo struct {
	db *DB
}

// NewSnapshotRepo creates a new PostgreSQL snapshot archive.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

type snapshotRow struct {
	CycleSeq       int64          `db:"cycle_seq"`
	ProgramID      string         `db:"program_id"`
	Name           string         `db:"name"`
	Health         string         `db:"health"`
	Total          int64          `db:"total_count"`
	Succeeded      int64          `db:"succeeded_count"`
	Failed         int64          `db:"failed_count"`
	SuccessRate    float64        `db:"success_rate"`
	LastActivityAt sql.NullTime   `db:"last_activity_at"`
	Endpoint       sql.NullString `db:"endpoint"`
	Stale          bool           `db:"stale"`
	UpdatedAt      time.Time      `db:"updated_at"`
	ArchivedAt     time.Time      `db:"archived_at"`
}

func toRow(cycleSeq uint64, snap domain.Snapshot) snapshotRow {
	row := snapshotRow{
		CycleSeq:    int64(cycleSeq),
		ProgramID:   string(snap.ProgramID),
		Name:        snap.Name,
		Health:      string(snap.Health),
		Total:       snap.Total,
		Succeeded:   snap.Succeeded,
		Failed:      snap.Failed,
		SuccessRate: snap.SuccessRate,
		Stale:       snap.Stale,
		UpdatedAt:   snap.UpdatedAt,
	}
	if snap.LastActivityAt != nil {
		row.LastActivityAt = sql.NullTime{Time: *snap.LastActivityAt, Valid: true}
	}
	if snap.Endpoint != "" {
		row.Endpoint = sql.NullString{String: snap.Endpoint, Valid: true}
	}
	return row
}

func (r *snapshotRow) toDomain() storage.ArchivedSnapshot {
	snap := domain.Snapshot{
		ProgramID:   domain.ProgramID(r.ProgramID),
		Name:        r.Name,
		Health:      domain.Health(r.Health),
		Total:       r.Total,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed,
		SuccessRate: r.SuccessRate,
		Stale:       r.Stale,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.LastActivityAt.Valid {
		t := r.LastActivityAt.Time
		snap.LastActivityAt = &t
	}
	if r.Endpoint.Valid {
		snap.Endpoint = r.Endpoint.String
	}
	return storage.ArchivedSnapshot{
		CycleSeq:   uint64(r.CycleSeq),
		Snapshot:   snap,
		ArchivedAt: r.ArchivedAt,
	}
}

// AppendSnapshots records the snapshots accepted during one cycle.
func (r *SnapshotRepo) AppendSnapshots(ctx context.Context, cycleSeq uint64, snapshots []domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	rows := make([]snapshotRow, 0, len(snapshots))
	for _, snap := range snapshots {
		rows = append(rows, toRow(cycleSeq, snap))
	}

	query := `
		INSERT INTO snapshot_history (
			cycle_seq, program_id, name, health, total_count, succeeded_count, failed_count,
			success_rate, last_activity_at, endpoint, stale, updated_at, archived_at
		) VALUES (
			:cycle_seq, :program_id, :name, :health, :total_count, :succeeded_count, :failed_count,
			:success_rate, :last_activity_at, :endpoint, :stale, :updated_at, NOW()
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("failed to archive snapshots: %w", err)
	}
	return nil
}

// History retrieves archived snapshots for a program, oldest first.
func (r *SnapshotRepo) History(ctx context.Context, programID domain.ProgramID, since time.Time) ([]storage.ArchivedSnapshot, error) {
	query := `
		SELECT cycle_seq, program_id, name, health, total_count, succeeded_count, failed_count,
			success_rate, last_activity_at, endpoint, stale, updated_at, archived_at
		FROM snapshot_history
		WHERE program_id = $1 AND archived_at >= $2
		ORDER BY archived_at ASC
	`

	var rows []snapshotRow
	if err := r.db.SelectContext(ctx, &rows, query, string(programID), since); err != nil {
		return nil, fmt.Errorf("failed to load snapshot history: %w", err)
	}

	out := make([]storage.ArchivedSnapshot, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// PruneBefore deletes archived snapshots older than cutoff.
func (r *SnapshotRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshot_history WHERE archived_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshot history: %w", err)
	}
	return res.RowsAffected()
}

// Health checks if the database is healthy.
func (r *SnapshotRepo) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

// Close closes the underlying database connection.
func (r *SnapshotRepo) Close() error {
	return r.db.Close()
}
