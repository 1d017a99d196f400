package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/baton/internal/core/execution"
	"github.com/example/baton/internal/enginelog"
	"github.com/example/baton/internal/graph"
	"github.com/example/baton/internal/models"
	"github.com/example/baton/internal/policy"
	"github.com/example/baton/internal/ports/primary"
	"github.com/example/baton/internal/ports/secondary"
	"github.com/example/baton/internal/runner"
	"github.com/example/baton/internal/signalspool"
)

// defaultSignalGrace is how long the engine waits after a worker exits
// for its completion signal to arrive through the spool. Workers write
// the signal before exiting, but the watcher delivers it asynchronously.
const defaultSignalGrace = 10 * time.Second

// SignalSource delivers spooled worker messages to the engine.
// signalspool.Watcher is the production implementation.
type SignalSource interface {
	Start(ctx context.Context) error
	Messages() <-chan *signalspool.Message
	Errors() <-chan error
}

// RunServiceImpl implements the RunService interface. It is the engine:
// the only writer of run state, the only consumer of the signal spool,
// and the supervisor of every worker session.
type RunServiceImpl struct {
	runRepo    secondary.RunRepository
	execRepo   secondary.PhaseExecutionRepository
	signalRepo secondary.SignalRepository
	oplog      secondary.OperationLogWriter
	supervisor secondary.WorkerSupervisor
	audit      primary.AuditService
	compliance primary.ComplianceService
	signals    SignalSource
	policy     *policy.Policy
	elog       *enginelog.Logger
	workDir    string

	signalGrace time.Duration
}

// NewRunService creates a new RunService with injected dependencies.
func NewRunService(
	runRepo secondary.RunRepository,
	execRepo secondary.PhaseExecutionRepository,
	signalRepo secondary.SignalRepository,
	oplog secondary.OperationLogWriter,
	supervisor secondary.WorkerSupervisor,
	audit primary.AuditService,
	compliance primary.ComplianceService,
	signals SignalSource,
	pol *policy.Policy,
	elog *enginelog.Logger,
	workDir string,
) *RunServiceImpl {
	if elog == nil {
		elog = enginelog.Discard()
	}
	return &RunServiceImpl{
		runRepo:    runRepo,
		execRepo:   execRepo,
		signalRepo: signalRepo,
		oplog:      oplog,
		supervisor: supervisor,
		audit:      audit,
		compliance: compliance,
		signals:    signals,
		policy:     pol,
		elog:       elog,
		workDir:    workDir,

		signalGrace: defaultSignalGrace,
	}
}

// Start validates the plan and drives a new run to a terminal state.
func (s *RunServiceImpl) Start(ctx context.Context, req primary.StartRunRequest) (*primary.RunResult, error) {
	auditResult, err := s.audit.Audit(ctx, primary.AuditRequest{MasterPath: req.MasterPath})
	if err != nil {
		return nil, fmt.Errorf("failed to audit plan: %w", err)
	}

	activeID, hasActive, err := s.activeRun(ctx)
	if err != nil {
		return nil, err
	}
	if guard := execution.CanStartRun(execution.StartRunContext{
		PlanPath:     req.MasterPath,
		AuditPassed:  auditResult.Passed,
		ActiveRunID:  activeID,
		HasActiveRun: hasActive,
	}); !guard.Allowed {
		return nil, guard.Error()
	}

	master, phases, err := s.audit.Load(ctx, primary.AuditRequest{MasterPath: req.MasterPath})
	if err != nil {
		return nil, err
	}

	runID, err := s.runRepo.GetNextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate run ID: %w", err)
	}
	if err := s.runRepo.Create(ctx, &secondary.RunRecord{
		ID:       runID,
		PlanPath: req.MasterPath,
		Status:   models.RunStatusRunning,
	}); err != nil {
		return nil, err
	}
	s.log(ctx, runID, "", "run_started", req.MasterPath)

	return s.drive(ctx, runID, master, phases, nil, req.OnlyPhases)
}

// Resume picks up an interrupted run from its recorded state.
func (s *RunServiceImpl) Resume(ctx context.Context, req primary.ResumeRunRequest) (*primary.RunResult, error) {
	run, err := s.resolveRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}

	if guard := execution.CanResumeRun(execution.ResumeRunContext{
		RunID:  run.ID,
		Status: run.Status,
	}); !guard.Allowed {
		return nil, guard.Error()
	}

	// The plan must still be valid; it may have changed on disk since
	// the run began.
	master, phases, err := s.audit.Load(ctx, primary.AuditRequest{MasterPath: run.PlanPath})
	if err != nil {
		return nil, fmt.Errorf("plan no longer valid: %w", err)
	}

	latest, err := s.execRepo.LatestPerPhase(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	s.log(ctx, run.ID, "", "run_resumed", fmt.Sprintf("%d phases with prior attempts", len(latest)))
	return s.drive(ctx, run.ID, master, phases, latest, nil)
}

// Cancel marks a running run as cancelled.
func (s *RunServiceImpl) Cancel(ctx context.Context, runID string) error {
	run, err := s.resolveRun(ctx, runID)
	if err != nil {
		return err
	}

	if guard := execution.CanCancelRun(execution.CancelRunContext{
		RunID:  run.ID,
		Status: run.Status,
	}); !guard.Allowed {
		return guard.Error()
	}

	run.Status = models.RunStatusCancelled
	run.CompletedAt = now()
	if err := s.runRepo.Update(ctx, run); err != nil {
		return err
	}
	s.log(ctx, run.ID, "", "run_cancelled", "")
	return nil
}

// Status reports the current state of a run, phase by phase.
func (s *RunServiceImpl) Status(ctx context.Context, runID string) (*primary.RunStatus, error) {
	run, err := s.resolveRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	latest, err := s.execRepo.LatestPerPhase(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	status := &primary.RunStatus{
		RunID:     run.ID,
		PlanPath:  run.PlanPath,
		Status:    run.Status,
		CreatedAt: run.CreatedAt,
	}
	for _, exec := range latest {
		status.Phases = append(status.Phases, primary.PhaseStatusLine{
			PhaseID:       exec.PhaseID,
			Attempt:       exec.Attempt,
			Status:        exec.Status,
			StartedAt:     exec.StartedAt,
			EndedAt:       exec.EndedAt,
			FailureReason: exec.FailureReason,
			SessionID:     exec.SessionID,
			TotalCostUSD:  exec.TotalCostUSD,
		})
	}

	return status, nil
}

// History lists past runs, newest first.
func (s *RunServiceImpl) History(ctx context.Context, limit int) ([]*primary.RunSummary, error) {
	runs, err := s.runRepo.List(ctx, secondary.RunFilters{Limit: limit})
	if err != nil {
		return nil, err
	}

	summaries := make([]*primary.RunSummary, len(runs))
	for i, run := range runs {
		summaries[i] = &primary.RunSummary{
			RunID:       run.ID,
			PlanPath:    run.PlanPath,
			Status:      run.Status,
			CreatedAt:   run.CreatedAt,
			CompletedAt: run.CompletedAt,
		}
	}
	return summaries, nil
}

// drive executes phases in dependency order until the run reaches a
// terminal state. prior carries the latest attempt per phase when
// resuming; only restricts execution to a subset of phases.
func (s *RunServiceImpl) drive(ctx context.Context, runID string, master *models.PlanDocument, phases []models.Phase, prior []*secondary.PhaseExecutionRecord, only []string) (*primary.RunResult, error) {
	g, err := graph.Build(phases)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Phase, len(phases))
	for i := range phases {
		byID[phases[i].ID] = &phases[i]
	}

	// State carried across the scheduling loop. completed gates
	// readiness; terminal holds phases no longer schedulable; skipped
	// phases satisfy dependencies without running; orphaned counts
	// attempts lost to an engine crash, which do not consume budget.
	completed := map[string]bool{}
	terminal := map[string]string{}
	attempts := map[string]int{}
	skipped := map[string]bool{}
	orphaned := map[string]int{}
	for _, exec := range prior {
		attempts[exec.PhaseID] = exec.Attempt
		switch execution.DispositionFor(exec.Status) {
		case execution.ResumeSkip:
			completed[exec.PhaseID] = true
			terminal[exec.PhaseID] = models.PhaseStatusCompleted
		case execution.ResumeKeepTerminal:
			terminal[exec.PhaseID] = exec.Status
		case execution.ResumeReschedule:
			// The engine died mid-attempt; close the orphaned row so the
			// history reflects what actually happened to it.
			if !models.TerminalPhaseStatus(exec.Status) {
				exec.Status = models.PhaseStatusFailed
				exec.EndedAt = now()
				exec.FailureReason = "engine stopped mid-attempt"
				if err := s.execRepo.Update(ctx, exec); err != nil {
					s.log(ctx, runID, exec.PhaseID, "persist_error", err.Error())
				}
			}
			orphaned[exec.PhaseID]++
			s.log(ctx, runID, exec.PhaseID, "attempt_orphaned", fmt.Sprintf("attempt %d rescheduled", exec.Attempt))
		}
	}

	// Phases the master plan already marks Completed are satisfied
	// without running.
	for _, ref := range master.Phases {
		if ref.DeclaredStatus == models.DeclaredCompleted && !completed[ref.ID] {
			completed[ref.ID] = true
			skipped[ref.ID] = true
			s.log(ctx, runID, ref.ID, "phase_skipped", "marked Completed in the plan")
		}
	}

	if len(only) > 0 {
		wanted := map[string]bool{}
		for _, id := range only {
			if _, ok := byID[id]; !ok {
				return nil, fmt.Errorf("phase %s not in plan", id)
			}
			wanted[id] = true
		}
		for id := range byID {
			if !wanted[id] && !completed[id] {
				skipped[id] = true
				completed[id] = true
			}
		}
	}

	dispatcher := newDispatcher(runID, s.signalRepo, s.oplog)
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := s.signals.Start(watchCtx); err != nil {
		return nil, fmt.Errorf("failed to start signal watcher: %w", err)
	}
	go dispatcher.pump(watchCtx, s.signals)

	results := make(chan phaseOutcome, len(phases))
	inFlight := map[string]bool{}

	var eg errgroup.Group
	maxParallel := s.policy.MaxParallel
	if maxParallel < 1 {
		maxParallel = 1
	}
	eg.SetLimit(maxParallel)

	launch := func(phaseID string) {
		inFlight[phaseID] = true
		phase := byID[phaseID]
		startAttempt := attempts[phaseID]
		maxAttempts := s.policy.MaxAttemptsFor(phaseID) + orphaned[phaseID]
		eg.Go(func() error {
			status, attemptsUsed := s.runPhase(ctx, runID, phase, startAttempt, maxAttempts, dispatcher)
			results <- phaseOutcome{phaseID: phaseID, status: status, attempts: attemptsUsed}
			return nil
		})
	}

	schedule := func() {
		exclude := make(map[string]bool, len(terminal)+len(inFlight))
		for id := range terminal {
			exclude[id] = true
		}
		for id := range inFlight {
			exclude[id] = true
		}
		for id := range skipped {
			exclude[id] = true
		}
		for _, id := range g.ReadySet(completed, exclude) {
			launch(id)
		}
	}

	schedule()

	cancelled := false
	done := ctx.Done()
	for len(inFlight) > 0 {
		select {
		case res := <-results:
			delete(inFlight, res.phaseID)
			terminal[res.phaseID] = res.status
			attempts[res.phaseID] += res.attempts
			if res.status == models.PhaseStatusCompleted {
				completed[res.phaseID] = true
			}
			// An external cancel (a second process flipping the run
			// row) only shows up in the store.
			if !cancelled && s.storedCancelled(ctx, runID) {
				cancelled = true
				s.log(ctx, runID, "", "run_cancel_observed", "stored run status is cancelled")
			}
			if !cancelled {
				schedule()
			}
		case <-done:
			cancelled = true
			done = nil
		}
	}
	eg.Wait()
	stopWatch()

	return s.finish(ctx, runID, byID, completed, terminal, skipped, attempts, cancelled)
}

// finish records the run's terminal status and builds the result.
func (s *RunServiceImpl) finish(ctx context.Context, runID string, byID map[string]*models.Phase, completed map[string]bool, terminal map[string]string, skipped map[string]bool, attempts map[string]int, cancelled bool) (*primary.RunResult, error) {
	result := &primary.RunResult{RunID: runID, PhaseCount: len(byID)}
	for id := range byID {
		if skipped[id] {
			continue
		}
		result.AttemptsRun += attempts[id]
		switch terminal[id] {
		case models.PhaseStatusCompleted:
			result.Completed = append(result.Completed, id)
		case models.PhaseStatusBlocked:
			result.Blocked = append(result.Blocked, id)
		case models.PhaseStatusFailed:
			result.Failed = append(result.Failed, id)
		}
	}
	sort.Strings(result.Completed)
	sort.Strings(result.Blocked)
	sort.Strings(result.Failed)

	switch {
	case cancelled:
		result.Status = models.RunStatusCancelled
	case len(result.Blocked) == 0 && len(result.Failed) == 0 && len(result.Completed) == len(byID)-len(skipped):
		result.Status = models.RunStatusCompleted
	default:
		result.Status = models.RunStatusFailed
	}

	// Persist with a background-tolerant context so cancellation does
	// not lose the terminal record.
	saveCtx := ctx
	if saveCtx.Err() != nil {
		saveCtx = context.Background()
	}

	// Cost accrues across every attempt ever made, including ones from
	// before a resume.
	execs, err := s.execRepo.ListByRun(saveCtx, runID)
	if err != nil {
		return nil, err
	}
	for _, exec := range execs {
		result.TotalCost += exec.TotalCostUSD
	}

	run, err := s.runRepo.GetByID(saveCtx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == models.RunStatusCancelled {
		// Cancel already settled the run row; never overwrite it.
		result.Status = models.RunStatusCancelled
		s.log(saveCtx, runID, "", "run_finished", result.Status)
		return result, nil
	}
	run.Status = result.Status
	run.CompletedAt = now()
	if err := s.runRepo.Update(saveCtx, run); err != nil {
		return nil, err
	}
	s.log(saveCtx, runID, "", "run_finished", result.Status)

	return result, nil
}

// storedCancelled reports whether another process has cancelled the run.
func (s *RunServiceImpl) storedCancelled(ctx context.Context, runID string) bool {
	run, err := s.runRepo.GetByID(ctx, runID)
	return err == nil && run.Status == models.RunStatusCancelled
}

// runPhase drives one phase through its attempt loop and returns its
// terminal status and how many attempts were used. maxAttempts already
// accounts for attempts orphaned by a previous engine crash.
func (s *RunServiceImpl) runPhase(ctx context.Context, runID string, phase *models.Phase, priorAttempts, maxAttempts int, d *dispatcher) (string, int) {
	prompt := runner.PhasePrompt(runID, phase)

	attemptsUsed := 0
	for attempt := priorAttempts + 1; ; attempt++ {
		if ctx.Err() != nil {
			return models.PhaseStatusFailed, attemptsUsed
		}

		status, issues, workerDeclared := s.runAttempt(ctx, runID, phase, attempt, prompt, d)
		attemptsUsed++

		if status != models.PhaseStatusFailed {
			return status, attemptsUsed
		}

		guard := execution.CanRetryPhase(execution.RetryContext{
			PhaseID:        phase.ID,
			PhaseStatus:    status,
			Attempt:        attempt,
			MaxAttempts:    maxAttempts,
			WorkerDeclared: workerDeclared,
		})
		if !guard.Allowed {
			s.log(ctx, runID, phase.ID, "phase_failed", guard.Reason)
			return status, attemptsUsed
		}

		s.log(ctx, runID, phase.ID, "phase_retrying", fmt.Sprintf("attempt %d of %d", attempt+1, maxAttempts))
		if len(issues) > 0 {
			prompt = runner.RemediationPrompt(runID, phase, attempt+1, issues)
		}
	}
}

// runAttempt executes a single worker session for a phase and settles
// its verdict. Returns the attempt's terminal status, any compliance
// issues for the next remediation prompt, and whether a failure was
// declared by the worker itself.
func (s *RunServiceImpl) runAttempt(ctx context.Context, runID string, phase *models.Phase, attempt int, prompt string, d *dispatcher) (string, []models.ComplianceIssue, bool) {
	exec := &secondary.PhaseExecutionRecord{
		RunID:     runID,
		PhaseID:   phase.ID,
		Attempt:   attempt,
		Status:    models.PhaseStatusRunning,
		StartedAt: now(),
	}
	if err := s.execRepo.Insert(ctx, exec); err != nil {
		s.log(ctx, runID, phase.ID, "persist_error", err.Error())
		return models.PhaseStatusFailed, nil, false
	}

	sigC := d.register(phase.ID)
	defer d.unregister(phase.ID)

	s.log(ctx, runID, phase.ID, "worker_started", fmt.Sprintf("attempt %d", attempt))
	outcome, err := s.supervisor.Run(ctx, secondary.WorkerSpec{
		RunID:        runID,
		PhaseID:      phase.ID,
		Prompt:       prompt,
		WorkDir:      s.workDir,
		Command:      s.policy.WorkerCommand,
		Timeout:      s.policy.TimeoutFor(phase.ID),
		StallTimeout: s.policy.StallTimeout.Std(),
	})
	if err != nil {
		s.settle(ctx, exec, models.PhaseStatusFailed, fmt.Sprintf("worker launch failed: %v", err))
		return models.PhaseStatusFailed, nil, false
	}

	exec.SessionID = outcome.SessionID
	exec.TotalCostUSD = outcome.TotalCostUSD
	exec.InputTokens = outcome.InputTokens
	exec.OutputTokens = outcome.OutputTokens
	s.log(ctx, runID, phase.ID, "worker_exited", fmt.Sprintf("exit %d, %d events, $%.4f", outcome.ExitCode, outcome.EventCount, outcome.TotalCostUSD))

	if ctx.Err() != nil {
		s.settle(ctx, exec, models.PhaseStatusFailed, "cancelled")
		return models.PhaseStatusFailed, nil, false
	}

	sig := s.awaitSignal(ctx, sigC, outcome)
	switch {
	case sig == nil:
		reason := "worker exited without signaling"
		if outcome.TimedOut {
			reason = "session timed out"
		} else if outcome.Stalled {
			reason = "event stream stalled"
		}
		s.settle(ctx, exec, models.PhaseStatusFailed, reason)
		return models.PhaseStatusFailed, nil, false

	case sig.Status == models.SignalBlocked:
		s.settle(ctx, exec, models.PhaseStatusBlocked, sig.Reason)
		s.log(ctx, runID, phase.ID, "phase_blocked", sig.Reason)
		return models.PhaseStatusBlocked, nil, true

	case sig.Status == models.SignalFailed:
		s.settle(ctx, exec, models.PhaseStatusFailed, sig.Reason)
		return models.PhaseStatusFailed, nil, true
	}

	// Worker claims completion; verify before believing it.
	exec.Status = models.PhaseStatusAwaitingCompliance
	if err := s.execRepo.Update(ctx, exec); err != nil {
		s.log(ctx, runID, phase.ID, "persist_error", err.Error())
	}

	verdict, err := s.compliance.Verify(ctx, primary.VerifyRequest{
		Phase:             phase,
		CollaboratorsSeen: outcome.Collaborators,
		WorkDir:           s.workDir,
	})
	if err != nil {
		s.settle(ctx, exec, models.PhaseStatusFailed, fmt.Sprintf("compliance check errored: %v", err))
		return models.PhaseStatusFailed, nil, false
	}

	if !verdict.Passed {
		reason := verdict.FailureReason()
		s.settle(ctx, exec, models.PhaseStatusFailed, reason)
		s.log(ctx, runID, phase.ID, "compliance_failed", reason)
		return models.PhaseStatusFailed, verdict.Issues, false
	}

	s.settle(ctx, exec, models.PhaseStatusCompleted, "")
	s.log(ctx, runID, phase.ID, "phase_completed", fmt.Sprintf("%d/%d gates passed", verdict.GatesPassed, verdict.GatesRun))
	return models.PhaseStatusCompleted, nil, false
}

// awaitSignal returns the completion signal for the attempt, waiting a
// short grace period after worker exit for the spool to catch up. No
// grace is extended to workers that timed out or stalled.
func (s *RunServiceImpl) awaitSignal(ctx context.Context, sigC <-chan *models.CompletionSignal, outcome *secondary.WorkerOutcome) *models.CompletionSignal {
	select {
	case sig := <-sigC:
		return sig
	default:
	}

	if outcome.TimedOut || outcome.Stalled {
		return nil
	}

	select {
	case sig := <-sigC:
		return sig
	case <-time.After(s.signalGrace):
		return nil
	case <-ctx.Done():
		return nil
	}
}

// settle writes an attempt's terminal state. It still persists when the
// run context has been cancelled; a cancelled attempt must not be left
// looking like it is running.
func (s *RunServiceImpl) settle(ctx context.Context, exec *secondary.PhaseExecutionRecord, status, reason string) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	exec.Status = status
	exec.EndedAt = now()
	exec.FailureReason = reason
	if err := s.execRepo.Update(ctx, exec); err != nil {
		s.log(ctx, exec.RunID, exec.PhaseID, "persist_error", err.Error())
	}
}

// resolveRun fetches a run by ID, or the latest run when id is empty.
func (s *RunServiceImpl) resolveRun(ctx context.Context, id string) (*secondary.RunRecord, error) {
	if id != "" {
		return s.runRepo.GetByID(ctx, id)
	}
	run, err := s.runRepo.GetLatest(ctx)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("no runs recorded yet")
	}
	return run, nil
}

// activeRun reports whether any run is still marked running.
func (s *RunServiceImpl) activeRun(ctx context.Context) (string, bool, error) {
	runs, err := s.runRepo.List(ctx, secondary.RunFilters{Status: models.RunStatusRunning, Limit: 1})
	if err != nil {
		return "", false, err
	}
	if len(runs) == 0 {
		return "", false, nil
	}
	return runs[0].ID, true, nil
}

func (s *RunServiceImpl) log(ctx context.Context, runID, phaseID, event, detail string) {
	switch event {
	case "persist_error":
		s.elog.Errorf("%s %s %s %s", runID, phaseID, event, detail)
	case "progress", "signal_accepted", "signal_discarded":
		s.elog.Debugf("%s %s %s %s", runID, phaseID, event, detail)
	default:
		s.elog.Infof("%s %s %s %s", runID, phaseID, event, detail)
	}
	if err := s.oplog.Log(ctx, runID, phaseID, event, detail); err != nil {
		// The audit trail is best effort; losing an entry must not
		// stop the run.
		s.elog.Errorf("%s %s oplog write failed: %v", runID, phaseID, err)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

type phaseOutcome struct {
	phaseID  string
	status   string
	attempts int
}

// dispatcher routes spooled signals to the phase attempt waiting for
// them and records every signal, accepted or not.
type dispatcher struct {
	runID      string
	signalRepo secondary.SignalRepository
	oplog      secondary.OperationLogWriter

	mu      sync.Mutex
	waiters map[string]chan *models.CompletionSignal
}

func newDispatcher(runID string, signalRepo secondary.SignalRepository, oplog secondary.OperationLogWriter) *dispatcher {
	return &dispatcher{
		runID:      runID,
		signalRepo: signalRepo,
		oplog:      oplog,
		waiters:    make(map[string]chan *models.CompletionSignal),
	}
}

// register creates the signal slot for a phase attempt. The channel is
// buffered so the watcher never blocks on a slow engine.
func (d *dispatcher) register(phaseID string) <-chan *models.CompletionSignal {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := make(chan *models.CompletionSignal, 1)
	d.waiters[phaseID] = c
	return c
}

func (d *dispatcher) unregister(phaseID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.waiters, phaseID)
}

// pump consumes the signal source until ctx is done.
func (d *dispatcher) pump(ctx context.Context, src SignalSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-src.Messages():
			if !ok {
				return
			}
			d.handle(ctx, msg)
		case err, ok := <-src.Errors():
			if !ok {
				return
			}
			if err != nil {
				d.oplog.Log(ctx, d.runID, "", "signal_malformed", err.Error())
			}
		}
	}
}

func (d *dispatcher) handle(ctx context.Context, msg *signalspool.Message) {
	if msg.Progress != nil {
		d.oplog.Log(ctx, d.runID, msg.Progress.PhaseID, "progress", msg.Progress.Step)
		return
	}
	if msg.Completion == nil {
		return
	}

	sig := msg.Completion
	accepted := false
	if sig.RunID == d.runID {
		d.mu.Lock()
		c, waiting := d.waiters[sig.PhaseID]
		// A registered waiter is the live running attempt; any other
		// stored status means the signal is late.
		phaseStatus := models.PhaseStatusCompleted
		if waiting {
			phaseStatus = models.PhaseStatusRunning
		}
		if guard := execution.CanAcceptSignal(execution.SignalContext{
			PhaseID:      sig.PhaseID,
			PhaseStatus:  phaseStatus,
			SignalStatus: sig.Status,
		}); guard.Allowed {
			select {
			case c <- sig:
				accepted = true
			default:
				// A second signal for the same attempt; first one wins.
			}
		}
		d.mu.Unlock()
	}

	record := &secondary.SignalRecord{
		RunID:      sig.RunID,
		PhaseID:    sig.PhaseID,
		Status:     sig.Status,
		Reason:     sig.Reason,
		SignaledAt: sig.SignaledAt.UTC().Format(time.RFC3339),
		Accepted:   accepted,
	}
	if err := d.signalRepo.Insert(ctx, record); err != nil {
		d.oplog.Log(ctx, d.runID, sig.PhaseID, "persist_error", err.Error())
	}
	if !accepted {
		d.oplog.Log(ctx, d.runID, sig.PhaseID, "signal_discarded", fmt.Sprintf("%s signal with no running attempt", sig.Status))
	} else {
		d.oplog.Log(ctx, d.runID, sig.PhaseID, "signal_accepted", sig.Status)
	}
}

// Ensure RunServiceImpl implements the interface.
var _ primary.RunService = (*RunServiceImpl)(nil)
