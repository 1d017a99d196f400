// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import "context"

// RunRepository defines the secondary port for run persistence.
type RunRepository interface {
	// Create persists a new run.
	Create(ctx context.Context, run *RunRecord) error

	// GetByID retrieves a run by its ID.
	GetByID(ctx context.Context, id string) (*RunRecord, error)

	// Update updates an existing run.
	Update(ctx context.Context, run *RunRecord) error

	// List retrieves runs matching the given filters, newest first.
	List(ctx context.Context, filters RunFilters) ([]*RunRecord, error)

	// GetLatest returns the most recently created run, or nil when none exist.
	GetLatest(ctx context.Context) (*RunRecord, error)

	// GetNextID returns the next available run ID.
	GetNextID(ctx context.Context) (string, error)
}

// RunRecord represents a run as stored in persistence.
type RunRecord struct {
	ID          string
	PlanPath    string
	Status      string
	CreatedAt   string
	CompletedAt string
}

// RunFilters contains filter options for querying runs.
type RunFilters struct {
	Status string
	Limit  int
}

// PhaseExecutionRepository defines the secondary port for phase execution
// attempts. Rows are append-only: each attempt inserts a new row, and only
// the open (non-terminal) row of an attempt is ever updated in place.
type PhaseExecutionRepository interface {
	// Insert persists a new attempt row and fills in its generated ID.
	Insert(ctx context.Context, exec *PhaseExecutionRecord) error

	// Update updates an existing attempt row by its generated ID.
	Update(ctx context.Context, exec *PhaseExecutionRecord) error

	// ListByRun retrieves every attempt row for a run, ordered by
	// phase then attempt.
	ListByRun(ctx context.Context, runID string) ([]*PhaseExecutionRecord, error)

	// LatestPerPhase retrieves the highest-attempt row for each phase of
	// a run. This is the view resume decisions are built on.
	LatestPerPhase(ctx context.Context, runID string) ([]*PhaseExecutionRecord, error)
}

// PhaseExecutionRecord represents one phase attempt as stored in persistence.
type PhaseExecutionRecord struct {
	ID            int64
	RunID         string
	PhaseID       string
	Attempt       int
	Status        string
	StartedAt     string
	EndedAt       string
	FailureReason string
	SessionID     string
	TotalCostUSD  float64
	InputTokens   int64
	OutputTokens  int64
}

// SignalRepository defines the secondary port for completion signal
// persistence. Every received signal is recorded, accepted or not.
type SignalRepository interface {
	// Insert persists a received signal.
	Insert(ctx context.Context, sig *SignalRecord) error

	// ListByRun retrieves all signals recorded for a run, oldest first.
	ListByRun(ctx context.Context, runID string) ([]*SignalRecord, error)
}

// SignalRecord represents a completion signal as stored in persistence.
type SignalRecord struct {
	ID         int64
	RunID      string
	PhaseID    string
	Status     string
	Reason     string
	SignaledAt string
	Accepted   bool
}
