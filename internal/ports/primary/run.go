package primary

import "context"

// RunService defines the primary port for run orchestration.
type RunService interface {
	// Start validates the plan and drives a new run to a terminal state.
	// It blocks until the run finishes or ctx is cancelled.
	Start(ctx context.Context, req StartRunRequest) (*RunResult, error)

	// Resume picks up an interrupted run from its recorded state and
	// drives it to a terminal state.
	Resume(ctx context.Context, req ResumeRunRequest) (*RunResult, error)

	// Cancel marks a running run as cancelled.
	Cancel(ctx context.Context, runID string) error

	// Status reports the current state of a run, phase by phase.
	Status(ctx context.Context, runID string) (*RunStatus, error)

	// History lists past runs, newest first.
	History(ctx context.Context, limit int) ([]*RunSummary, error)
}

// StartRunRequest contains parameters for starting a run.
type StartRunRequest struct {
	MasterPath string
	// OnlyPhases restricts execution to the named phases and their
	// recorded-complete dependencies. Empty means the whole plan.
	OnlyPhases []string
}

// ResumeRunRequest contains parameters for resuming a run.
type ResumeRunRequest struct {
	// RunID selects the run. Empty means the most recent resumable run.
	RunID string
}

// RunResult is the terminal outcome of a driven run.
type RunResult struct {
	RunID       string
	Status      string
	Completed   []string
	Blocked     []string
	Failed      []string
	TotalCost   float64
	PhaseCount  int
	AttemptsRun int
}

// RunStatus is the point-in-time state of a run.
type RunStatus struct {
	RunID     string
	PlanPath  string
	Status    string
	CreatedAt string
	Phases    []PhaseStatusLine
}

// PhaseStatusLine is one phase's latest recorded attempt.
type PhaseStatusLine struct {
	PhaseID       string
	Attempt       int
	Status        string
	StartedAt     string
	EndedAt       string
	FailureReason string
	SessionID     string
	TotalCostUSD  float64
}

// RunSummary is one row of run history.
type RunSummary struct {
	RunID       string
	PlanPath    string
	Status      string
	CreatedAt   string
	CompletedAt string
}
