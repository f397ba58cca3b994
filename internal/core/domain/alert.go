package domain

import (
	"time"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert flags a threshold breach for one program in one poll cycle.
// Alerts are ephemeral: the full list is regenerated every cycle and
// carries no identity across cycles.
type Alert struct {
	ID        string    `json:"id"`
	ProgramID ProgramID `json:"program_id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
