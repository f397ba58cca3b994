package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
	"github.com/lamassu-labs/sentinel/internal/monitor/health"
)

// Persister is an optional write-through cache for last-known-good
// snapshots, so a restart resumes from the previous state. Loads pass
// the same validation as live poll results.
type Persister interface {
	SaveSnapshot(ctx context.Context, snap domain.Snapshot) error
	LoadSnapshot(ctx context.Context, id domain.ProgramID) (domain.Snapshot, bool, error)
}

// Store holds the canonical snapshot per program and decides whether an
// incoming evaluation may replace the stored one. The poll loop is the
// single writer; readers take Dashboard() copies.
type Store struct {
	mu        sync.RWMutex
	snapshots map[domain.ProgramID]domain.Snapshot
	alerts    []domain.Alert
	cycle     domain.CycleInfo

	programs  []domain.Program
	clock     clockwork.Clock
	persister Persister
	log       *slog.Logger
}

// New seeds one inactive snapshot per program, so every configured
// program renders before the first poll completes.
func New(programs []domain.Program, clock clockwork.Clock, persister Persister) *Store {
	s := &Store{
		snapshots: make(map[domain.ProgramID]domain.Snapshot, len(programs)),
		programs:  programs,
		clock:     clock,
		persister: persister,
		log:       slog.Default().With("component", "store"),
	}
	now := clock.Now()
	for _, p := range programs {
		s.snapshots[p.ID] = health.InitialSnapshot(p, now)
	}
	return s
}

// Restore loads persisted snapshots from the persister. Each one passes
// the regular acceptance rule, so a persisted zero-state never displaces
// the seeded defaults of a program that later reports data.
func (s *Store) Restore(ctx context.Context) {
	if s.persister == nil {
		return
	}
	for _, p := range s.programs {
		snap, ok, err := s.persister.LoadSnapshot(ctx, p.ID)
		if err != nil {
			s.log.Warn("Failed to load persisted snapshot", "program", p.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		snap.Name = p.Name // config may have renamed the program

		s.mu.Lock()
		if stored, known := s.snapshots[p.ID]; known && accepts(stored, snap) {
			s.snapshots[p.ID] = snap
			s.log.Info("Restored persisted snapshot", "program", p.ID, "total", snap.Total)
		}
		s.mu.Unlock()
	}
}

// Apply merges one candidate snapshot and reports whether the store
// changed. A candidate replaces the stored snapshot only if it is not an
// error and does not zero out a program that previously reported data.
// Rejection keeps the old snapshot and marks the program stale; it is
// not an error to the caller.
func (s *Store) Apply(ctx context.Context, candidate domain.Snapshot) bool {
	s.mu.Lock()
	stored, known := s.snapshots[candidate.ProgramID]
	if !known {
		s.mu.Unlock()
		s.log.Warn("Dropping snapshot for unknown program", "program", candidate.ProgramID)
		return false
	}

	if !accepts(stored, candidate) {
		stored.Stale = true
		s.snapshots[candidate.ProgramID] = stored
		s.mu.Unlock()
		s.log.Warn("Keeping last known good snapshot",
			"program", candidate.ProgramID,
			"candidate_health", candidate.Health,
			"candidate_total", candidate.Total,
			"stored_total", stored.Total)
		return false
	}

	candidate.Stale = false
	s.snapshots[candidate.ProgramID] = candidate
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.SaveSnapshot(ctx, candidate); err != nil {
			s.log.Warn("Failed to persist snapshot", "program", candidate.ProgramID, "error", err)
		}
	}
	return true
}

// accepts is the validation rule guarding the store: never let a fetch
// error or an anomalous all-zero reading overwrite a non-zero snapshot.
func accepts(stored, candidate domain.Snapshot) bool {
	if candidate.Health == domain.HealthError {
		return false
	}
	return candidate.Total > 0 || stored.Total == 0
}

// Commit publishes the cycle metadata and the regenerated alert list
// after all per-program merges of a cycle. The stale program list is
// derived here so it survives across cycles until a refresh succeeds.
func (s *Store) Commit(cycle domain.CycleInfo, alerts []domain.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cycle.StalePrograms = s.staleProgramsLocked()
	s.cycle = cycle
	s.alerts = alerts
}

func (s *Store) staleProgramsLocked() []domain.ProgramID {
	var ids []domain.ProgramID
	for id, snap := range s.snapshots {
		if snap.Stale {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Dashboard returns a consistent point-in-time copy of the full state.
// Safe to call concurrently with an ongoing poll cycle; the copy never
// shows a half-merged cycle.
func (s *Store) Dashboard() domain.Dashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	programs := make(map[domain.ProgramID]domain.Snapshot, len(s.snapshots))
	for id, snap := range s.snapshots {
		programs[id] = snap
	}
	alerts := make([]domain.Alert, len(s.alerts))
	copy(alerts, s.alerts)

	cycle := s.cycle
	cycle.StalePrograms = append([]domain.ProgramID(nil), s.cycle.StalePrograms...)

	return domain.Dashboard{
		Programs: programs,
		Alerts:   alerts,
		Cycle:    cycle,
		Summary:  domain.Summarize(programs),
	}
}

// Programs returns the configured program set in config order.
func (s *Store) Programs() []domain.Program {
	return s.programs
}
