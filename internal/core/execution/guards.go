// Package execution contains the pure business logic for run execution.
// Guards are pure functions that evaluate preconditions without side effects.
package execution

import (
	"fmt"

	"github.com/example/baton/internal/models"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// StartRunContext provides context for run start guards.
type StartRunContext struct {
	PlanPath     string
	AuditPassed  bool
	ActiveRunID  string // Non-empty when another run is still in progress
	HasActiveRun bool
}

// CanStartRun evaluates whether a new run can begin.
// Rules:
// - The plan must have passed its audit
// - Only one run may be in progress at a time
func CanStartRun(ctx StartRunContext) GuardResult {
	if !ctx.AuditPassed {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("plan %s failed validation; fix the reported issues and retry", ctx.PlanPath),
		}
	}

	if ctx.HasActiveRun {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("run %s is still in progress. Resume it or cancel it first", ctx.ActiveRunID),
		}
	}

	return GuardResult{Allowed: true}
}

// ResumeRunContext provides context for run resume guards.
type ResumeRunContext struct {
	RunID  string
	Status string
}

// CanResumeRun evaluates whether a run can be resumed.
// Rules:
// - Only a running (interrupted) run can be resumed; terminal runs cannot
func CanResumeRun(ctx ResumeRunContext) GuardResult {
	if ctx.Status != models.RunStatusRunning {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("run %s is %s and cannot be resumed", ctx.RunID, ctx.Status),
		}
	}

	return GuardResult{Allowed: true}
}

// CancelRunContext provides context for run cancel guards.
type CancelRunContext struct {
	RunID  string
	Status string
}

// CanCancelRun evaluates whether a run can be cancelled.
func CanCancelRun(ctx CancelRunContext) GuardResult {
	if ctx.Status != models.RunStatusRunning {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("run %s is already %s", ctx.RunID, ctx.Status),
		}
	}

	return GuardResult{Allowed: true}
}

// SignalContext provides context for signal acceptance guards.
type SignalContext struct {
	PhaseID      string
	PhaseStatus  string // Latest execution status for the phase
	SignalStatus string
}

// CanAcceptSignal evaluates whether a completion signal applies.
// Rules:
// - The signal status must be one of the declared vocabulary
// - The phase must currently be running; anything else means the signal
//   is late or duplicate and gets recorded but not acted on
func CanAcceptSignal(ctx SignalContext) GuardResult {
	if !models.ValidSignalStatus(ctx.SignalStatus) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("signal for %s has invalid status %q", ctx.PhaseID, ctx.SignalStatus),
		}
	}

	if ctx.PhaseStatus != models.PhaseStatusRunning {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("phase %s is %s, not running; signal discarded", ctx.PhaseID, ctx.PhaseStatus),
		}
	}

	return GuardResult{Allowed: true}
}

// RetryContext provides context for retry guards.
type RetryContext struct {
	PhaseID        string
	PhaseStatus    string
	Attempt        int
	MaxAttempts    int
	WorkerDeclared bool // Worker itself declared failed/blocked
}

// CanRetryPhase evaluates whether a phase gets another attempt.
// Rules:
// - Only failed attempts retry; blocked is a human problem
// - A failure the worker itself declared is trusted as terminal
// - The attempt budget must not be exhausted
func CanRetryPhase(ctx RetryContext) GuardResult {
	if ctx.PhaseStatus != models.PhaseStatusFailed {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("phase %s is %s, not failed", ctx.PhaseID, ctx.PhaseStatus),
		}
	}

	if ctx.WorkerDeclared {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("phase %s was declared failed by its worker; not retrying", ctx.PhaseID),
		}
	}

	if ctx.Attempt >= ctx.MaxAttempts {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("phase %s exhausted its %d attempts", ctx.PhaseID, ctx.MaxAttempts),
		}
	}

	return GuardResult{Allowed: true}
}

// ResumeDisposition says what the engine does with a phase when a run is
// resumed, based on the latest attempt row recorded for it.
type ResumeDisposition int

const (
	// ResumeSkip means the phase finished and stays finished.
	ResumeSkip ResumeDisposition = iota
	// ResumeKeepTerminal means the phase ended blocked or failed and the
	// run cannot proceed past it without intervention.
	ResumeKeepTerminal
	// ResumeReschedule means the phase must run again from scratch.
	ResumeReschedule
)

// DispositionFor maps a recorded attempt status to a resume action.
// A row left in running or awaiting_compliance means the engine died
// mid-attempt; the attempt is rescheduled since its worker is gone.
func DispositionFor(status string) ResumeDisposition {
	switch status {
	case models.PhaseStatusCompleted:
		return ResumeSkip
	case models.PhaseStatusBlocked, models.PhaseStatusFailed:
		return ResumeKeepTerminal
	default:
		return ResumeReschedule
	}
}
