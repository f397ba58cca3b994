package health

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
)

var testProgram = domain.Program{ID: "prog-1", Name: "Demo Program"}

var testThresholds = Thresholds{
	WarnSuccessRate: 90,
	CritSuccessRate: 80,
	DegradedAfter:   24 * time.Hour,
	UnhealthyAfter:  48 * time.Hour,
}

var testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time {
	return &t
}

func sampleWithActivity(total, succeeded int64, idle time.Duration) domain.RawSample {
	return domain.RawSample{
		ProgramID:      testProgram.ID,
		Total:          total,
		Succeeded:      succeeded,
		Failed:         total - succeeded,
		LastActivityAt: timePtr(testNow.Add(-idle)),
		Endpoint:       "primary",
		FetchedAt:      testNow,
	}
}

func TestSuccessRate_ZeroTotal(t *testing.T) {
	rate := SuccessRate(0, 0)
	if rate != 100 {
		t.Errorf("expected rate 100 for zero total, got %v", rate)
	}
	if math.IsNaN(rate) {
		t.Error("expected a number, got NaN")
	}
}

func TestSuccessRate_Partial(t *testing.T) {
	if rate := SuccessRate(100, 70); rate != 70 {
		t.Errorf("expected rate 70, got %v", rate)
	}
	if rate := SuccessRate(3, 2); math.Abs(rate-66.666) > 0.01 {
		t.Errorf("expected rate ~66.67, got %v", rate)
	}
}

func TestClassify_Healthy(t *testing.T) {
	snap := Classify(testProgram, sampleWithActivity(10, 9, time.Hour), testThresholds, testNow)

	if snap.Health != domain.HealthHealthy {
		t.Errorf("expected healthy, got %s", snap.Health)
	}
	if snap.SuccessRate != 90 {
		t.Errorf("expected success rate 90, got %v", snap.SuccessRate)
	}
	if snap.Endpoint != "primary" {
		t.Errorf("expected endpoint primary, got %s", snap.Endpoint)
	}
}

func TestClassify_Inactive(t *testing.T) {
	// Zero observed activity wins over any recency, even an ancient timestamp.
	sample := sampleWithActivity(0, 0, 100*time.Hour)
	snap := Classify(testProgram, sample, testThresholds, testNow)

	if snap.Health != domain.HealthInactive {
		t.Errorf("expected inactive, got %s", snap.Health)
	}
	if snap.SuccessRate != 100 {
		t.Errorf("expected success rate 100 for zero total, got %v", snap.SuccessRate)
	}
}

func TestClassify_Degraded(t *testing.T) {
	snap := Classify(testProgram, sampleWithActivity(10, 10, 30*time.Hour), testThresholds, testNow)

	if snap.Health != domain.HealthDegraded {
		t.Errorf("expected degraded, got %s", snap.Health)
	}
}

func TestClassify_Unhealthy(t *testing.T) {
	snap := Classify(testProgram, sampleWithActivity(10, 10, 72*time.Hour), testThresholds, testNow)

	if snap.Health != domain.HealthUnhealthy {
		t.Errorf("expected unhealthy, got %s", snap.Health)
	}
}

func TestClassify_CutoffBoundaries(t *testing.T) {
	// Exactly 24h idle is already degraded, exactly 48h already unhealthy.
	snap := Classify(testProgram, sampleWithActivity(10, 10, 24*time.Hour), testThresholds, testNow)
	if snap.Health != domain.HealthDegraded {
		t.Errorf("expected degraded at exactly 24h, got %s", snap.Health)
	}

	snap = Classify(testProgram, sampleWithActivity(10, 10, 48*time.Hour), testThresholds, testNow)
	if snap.Health != domain.HealthUnhealthy {
		t.Errorf("expected unhealthy at exactly 48h, got %s", snap.Health)
	}

	snap = Classify(testProgram, sampleWithActivity(10, 10, 24*time.Hour-time.Second), testThresholds, testNow)
	if snap.Health != domain.HealthHealthy {
		t.Errorf("expected healthy just below 24h, got %s", snap.Health)
	}
}

func TestClassify_NoTimestamp(t *testing.T) {
	sample := domain.RawSample{
		ProgramID: testProgram.ID,
		Total:     5,
		Succeeded: 5,
		FetchedAt: testNow,
	}
	snap := Classify(testProgram, sample, testThresholds, testNow)

	if snap.Health != domain.HealthHealthy {
		t.Errorf("expected healthy when recency is unknowable, got %s", snap.Health)
	}
	if snap.LastActivityAt != nil {
		t.Errorf("expected nil last activity, got %v", snap.LastActivityAt)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	sample := sampleWithActivity(100, 87, 3*time.Hour)

	first := Classify(testProgram, sample, testThresholds, testNow)
	second := Classify(testProgram, sample, testThresholds, testNow)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical snapshots, got %+v vs %+v", first, second)
	}
}

func TestFailureSnapshot(t *testing.T) {
	snap := FailureSnapshot(testProgram, testNow)

	if snap.Health != domain.HealthError {
		t.Errorf("expected error classification, got %s", snap.Health)
	}
	if snap.Total != 0 || snap.Succeeded != 0 || snap.Failed != 0 {
		t.Errorf("expected zero counts, got %+v", snap)
	}
	if snap.SuccessRate != 100 {
		t.Errorf("expected success rate 100, got %v", snap.SuccessRate)
	}
}

func TestInitialSnapshot(t *testing.T) {
	snap := InitialSnapshot(testProgram, testNow)

	if snap.Health != domain.HealthInactive {
		t.Errorf("expected inactive seed, got %s", snap.Health)
	}
	if snap.SuccessRate != 100 {
		t.Errorf("expected success rate 100, got %v", snap.SuccessRate)
	}
	if snap.Name != testProgram.Name {
		t.Errorf("expected name %s, got %s", testProgram.Name, snap.Name)
	}
}
