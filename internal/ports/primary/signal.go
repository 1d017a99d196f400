package primary

import "context"

// SignalService defines the primary port for the worker-facing signal
// commands. These write to the spool; the engine consumes from it.
type SignalService interface {
	// Done reports a phase outcome from inside a worker session.
	Done(ctx context.Context, req DoneRequest) error

	// Progress reports an intermediate step from inside a worker session.
	Progress(ctx context.Context, req ProgressRequest) error
}

// DoneRequest contains parameters for a completion signal.
type DoneRequest struct {
	RunID   string
	PhaseID string
	Status  string
	Reason  string
}

// ProgressRequest contains parameters for a progress signal.
type ProgressRequest struct {
	RunID   string
	PhaseID string
	Step    string
}
