package domain

import (
	"time"
)

// CycleInfo describes the most recently completed poll cycle.
type CycleInfo struct {
	Sequence       uint64      `json:"sequence"`
	PolledAt       time.Time   `json:"polled_at"`
	DurationMS     int64       `json:"duration_ms"`
	ActiveEndpoint string      `json:"active_endpoint,omitempty"`
	StalePrograms  []ProgramID `json:"stale_programs,omitempty"`
}

// Summary counts programs per classification.
type Summary struct {
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
	Inactive  int `json:"inactive"`
	Error     int `json:"error"`
	Total     int `json:"total"`
}

// Dashboard is the published point-in-time view served to consumers.
// Programs always carries exactly one snapshot per configured program.
type Dashboard struct {
	Programs map[ProgramID]Snapshot `json:"programs"`
	Alerts   []Alert                `json:"alerts"`
	Cycle    CycleInfo              `json:"cycle"`
	Summary  Summary                `json:"summary"`
}

// Summarize tallies snapshots per classification.
func Summarize(snapshots map[ProgramID]Snapshot) Summary {
	var s Summary
	for _, snap := range snapshots {
		switch snap.Health {
		case HealthHealthy:
			s.Healthy++
		case HealthDegraded:
			s.Degraded++
		case HealthUnhealthy:
			s.Unhealthy++
		case HealthInactive:
			s.Inactive++
		case HealthError:
			s.Error++
		}
		s.Total++
	}
	return s
}
