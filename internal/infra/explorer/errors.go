package explorer

import (
	"fmt"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
)

// FetchError reports that every candidate endpoint was exhausted for one
// program in one cycle. It is per-program and never fatal: the caller
// falls back to the last known good snapshot.
type FetchError struct {
	ProgramID domain.ProgramID
	Attempts  int
	LastErr   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("no data available for program %s after %d endpoint attempts: %v",
		e.ProgramID, e.Attempts, e.LastErr)
}

func (e *FetchError) Unwrap() error {
	return e.LastErr
}
