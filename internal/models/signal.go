package models

import "time"

// Completion signal statuses reported by the worker.
const (
	SignalCompleted = "completed"
	SignalBlocked   = "blocked"
	SignalFailed    = "failed"
)

// ValidSignalStatus reports whether s is a recognized completion status.
func ValidSignalStatus(s string) bool {
	switch s {
	case SignalCompleted, SignalBlocked, SignalFailed:
		return true
	}
	return false
}

// CompletionSignal is the worker's explicit end-of-phase callback. It is
// the only input that moves a phase out of Running; the event stream is
// never trusted for that.
type CompletionSignal struct {
	RunID      string    `json:"run_id"`
	PhaseID    string    `json:"phase_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	SignaledAt time.Time `json:"signaled_at"`
}

// ProgressSignal is an advisory heartbeat from the worker, recorded in
// the operation log. It never affects state transitions; emitting one
// also produces stream activity, which is what feeds the stall timer.
type ProgressSignal struct {
	RunID      string    `json:"run_id"`
	PhaseID    string    `json:"phase_id"`
	Step       string    `json:"step"`
	SignaledAt time.Time `json:"signaled_at"`
}

// ComplianceIssue describes one failed compliance check. The message names
// the exact gate, collaborator, or notes file so the next attempt can be
// steered at the failure.
type ComplianceIssue struct {
	Kind    string // "gate", "collaborator", "notes"
	Subject string // gate name, collaborator name, or notes path
	Detail  string
}

// ComplianceResult is the outcome of independently re-verifying a phase.
type ComplianceResult struct {
	Passed      bool
	Issues      []ComplianceIssue
	GatesRun    int
	GatesPassed int
}

// FailureReason flattens the issues into a single remediation string.
func (r *ComplianceResult) FailureReason() string {
	if r.Passed || len(r.Issues) == 0 {
		return ""
	}
	reason := ""
	for i, issue := range r.Issues {
		if i > 0 {
			reason += "; "
		}
		reason += issue.Kind + " " + issue.Subject + ": " + issue.Detail
	}
	return reason
}
