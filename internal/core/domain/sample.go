package domain

import (
	"time"
)

// RawSample holds the raw activity counts fetched for one program in one
// poll cycle. Counts cover the observed recent-activity window only, so
// Total == Succeeded + Failed always holds. A sample is created fresh per
// cycle and never mutated.
type RawSample struct {
	ProgramID      ProgramID
	Total          int64
	Succeeded      int64
	Failed         int64
	LastActivityAt *time.Time
	Endpoint       string
	FetchedAt      time.Time
}
