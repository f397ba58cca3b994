package domain

// ProgramID uniquely identifies a monitored on-chain program.
type ProgramID string

// Program represents one monitored on-chain program
type Program struct {
	ID   ProgramID `json:"id"`
	Name string    `json:"name"`
}
