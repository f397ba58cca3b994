package domain

import (
	"time"
)

type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
	HealthInactive  Health = "inactive"
	HealthError     Health = "error"
)

// AllHealths lists every classification, for exhaustive reporting.
var AllHealths = []Health{
	HealthHealthy,
	HealthDegraded,
	HealthUnhealthy,
	HealthInactive,
	HealthError,
}

// Serving reports whether the classification counts as available for
// liveness purposes. Inactive programs are idle, not broken.
func (h Health) Serving() bool {
	return h == HealthHealthy || h == HealthInactive
}

// Snapshot is the evaluated health of one program at a point in time.
// The store keeps exactly one snapshot per configured program.
type Snapshot struct {
	ProgramID      ProgramID  `json:"program_id"`
	Name           string     `json:"name"`
	Health         Health     `json:"health"`
	Total          int64      `json:"total"`
	Succeeded      int64      `json:"succeeded"`
	Failed         int64      `json:"failed"`
	SuccessRate    float64    `json:"success_rate"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	Endpoint       string     `json:"endpoint,omitempty"`
	Stale          bool       `json:"stale"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
