package secondary

import "context"

// OperationLogWriter defines the interface for the run's audit trail.
// Every engine decision that changes state gets an entry: scheduling,
// worker lifecycle, signal disposition, compliance outcomes.
type OperationLogWriter interface {
	// Log records an event for a run. phaseID may be empty for
	// run-level events.
	Log(ctx context.Context, runID, phaseID, event, detail string) error

	// ListByRun retrieves the recorded events for a run, oldest first.
	ListByRun(ctx context.Context, runID string) ([]*OperationLogRecord, error)
}

// OperationLogRecord represents one audit trail entry as stored in persistence.
type OperationLogRecord struct {
	ID       int64
	RunID    string
	PhaseID  string
	Event    string
	Detail   string
	LoggedAt string
}
