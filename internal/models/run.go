package models

// Run status constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// Phase execution status constants. Rows in the store are append-only:
// each attempt gets its own record and terminal records are never
// overwritten, so the full history survives for audit and resume.
const (
	PhaseStatusPending            = "pending"
	PhaseStatusReady              = "ready"
	PhaseStatusRunning            = "running"
	PhaseStatusAwaitingCompliance = "awaiting_compliance"
	PhaseStatusCompleted          = "completed"
	PhaseStatusBlocked            = "blocked"
	PhaseStatusFailed             = "failed"
)

// TerminalPhaseStatus reports whether status requires no further engine work.
func TerminalPhaseStatus(status string) bool {
	switch status {
	case PhaseStatusCompleted, PhaseStatusBlocked, PhaseStatusFailed:
		return true
	}
	return false
}
