package health

import (
	"time"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
)

// Thresholds holds the classification and alerting cutoffs.
type Thresholds struct {
	WarnSuccessRate float64       // success rate below this raises a warning
	CritSuccessRate float64       // success rate below this raises a critical
	DegradedAfter   time.Duration // inactivity before degraded
	UnhealthyAfter  time.Duration // inactivity before unhealthy
}

// SuccessRate returns succeeded/total as a percentage. A program with no
// observed transactions is not failing: zero total yields exactly 100.
func SuccessRate(total, succeeded int64) float64 {
	if total == 0 {
		return 100
	}
	return float64(succeeded) / float64(total) * 100
}

// Classify converts one raw sample into an evaluated snapshot. Pure:
// the same sample, thresholds and now always produce the same snapshot.
//
// Precedence: zero observed activity wins over recency, and the recency
// cutoffs are inclusive (exactly 24h idle is degraded, exactly 48h is
// unhealthy). A sample with activity but no usable timestamp counts as
// healthy since recency is unknowable.
func Classify(
	program domain.Program,
	sample domain.RawSample,
	th Thresholds,
	now time.Time,
) domain.Snapshot {
	classification := domain.HealthHealthy
	switch {
	case sample.Total == 0:
		classification = domain.HealthInactive
	case sample.LastActivityAt != nil:
		idle := now.Sub(*sample.LastActivityAt)
		switch {
		case idle >= th.UnhealthyAfter:
			classification = domain.HealthUnhealthy
		case idle >= th.DegradedAfter:
			classification = domain.HealthDegraded
		}
	}

	return domain.Snapshot{
		ProgramID:      program.ID,
		Name:           program.Name,
		Health:         classification,
		Total:          sample.Total,
		Succeeded:      sample.Succeeded,
		Failed:         sample.Failed,
		SuccessRate:    SuccessRate(sample.Total, sample.Succeeded),
		LastActivityAt: sample.LastActivityAt,
		Endpoint:       sample.Endpoint,
		UpdatedAt:      now,
	}
}

// FailureSnapshot is the evaluation of a program whose fetch failed this
// cycle: zero counts, classification error. The evaluator never guesses
// a classification from incomplete data; the store's merge rule keeps
// this snapshot from displacing real data.
func FailureSnapshot(program domain.Program, now time.Time) domain.Snapshot {
	return domain.Snapshot{
		ProgramID:   program.ID,
		Name:        program.Name,
		Health:      domain.HealthError,
		SuccessRate: 100,
		UpdatedAt:   now,
	}
}

// InitialSnapshot seeds the store before the first poll: inactive with
// zero counts, so every configured program renders from the start.
func InitialSnapshot(program domain.Program, now time.Time) domain.Snapshot {
	return domain.Snapshot{
		ProgramID:   program.ID,
		Name:        program.Name,
		Health:      domain.HealthInactive,
		SuccessRate: 100,
		UpdatedAt:   now,
	}
}
