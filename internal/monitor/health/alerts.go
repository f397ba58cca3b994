package health

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
)

// BuildAlerts regenerates the alert list from the merged snapshots.
// The recency and success-rate checks are independent, so one program
// can raise zero, one or two alerts in a cycle. Each cycle's list fully
// replaces the previous one; there is no identity or suppression across
// cycles.
func BuildAlerts(
	snapshots map[domain.ProgramID]domain.Snapshot,
	th Thresholds,
	now time.Time,
) []domain.Alert {
	alerts := make([]domain.Alert, 0, len(snapshots))
	for _, snap := range snapshots {
		if a, ok := recencyAlert(snap, now); ok {
			alerts = append(alerts, a)
		}
		if a, ok := successRateAlert(snap, th, now); ok {
			alerts = append(alerts, a)
		}
	}

	// Map order is random; keep the published list stable.
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].ProgramID != alerts[j].ProgramID {
			return alerts[i].ProgramID < alerts[j].ProgramID
		}
		return alerts[i].Message < alerts[j].Message
	})
	return alerts
}

func recencyAlert(snap domain.Snapshot, now time.Time) (domain.Alert, bool) {
	var severity domain.Severity
	switch snap.Health {
	case domain.HealthDegraded:
		severity = domain.SeverityWarning
	case domain.HealthUnhealthy:
		severity = domain.SeverityCritical
	default:
		return domain.Alert{}, false
	}
	if snap.LastActivityAt == nil {
		return domain.Alert{}, false
	}

	idleHours := now.Sub(*snap.LastActivityAt).Hours()
	return domain.Alert{
		ID:        uuid.New().String(),
		ProgramID: snap.ProgramID,
		Severity:  severity,
		Message:   fmt.Sprintf("No activity for %.1f hours", idleHours),
		CreatedAt: now,
	}, true
}

func successRateAlert(snap domain.Snapshot, th Thresholds, now time.Time) (domain.Alert, bool) {
	if snap.Total == 0 || snap.SuccessRate >= th.WarnSuccessRate {
		return domain.Alert{}, false
	}

	severity := domain.SeverityWarning
	if snap.SuccessRate < th.CritSuccessRate {
		severity = domain.SeverityCritical
	}
	return domain.Alert{
		ID:        uuid.New().String(),
		ProgramID: snap.ProgramID,
		Severity:  severity,
		Message:   fmt.Sprintf("Success rate below threshold: %.1f%%", snap.SuccessRate),
		CreatedAt: now,
	}, true
}
