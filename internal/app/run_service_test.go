package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/baton/internal/enginelog"
	"github.com/example/baton/internal/models"
	"github.com/example/baton/internal/policy"
	"github.com/example/baton/internal/ports/primary"
	"github.com/example/baton/internal/ports/secondary"
	"github.com/example/baton/internal/signalspool"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockRunRepository implements secondary.RunRepository for testing.
type mockRunRepository struct {
	mu   sync.Mutex
	runs map[string]*secondary.RunRecord
	next int
}

func newMockRunRepository() *mockRunRepository {
	return &mockRunRepository{runs: make(map[string]*secondary.RunRecord)}
}

func (m *mockRunRepository) Create(ctx context.Context, run *secondary.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *run
	copied.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	m.runs[run.ID] = &copied
	return nil
}

func (m *mockRunRepository) GetByID(ctx context.Context, id string) (*secondary.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[id]; ok {
		copied := *run
		return &copied, nil
	}
	return nil, errors.New("run not found")
}

func (m *mockRunRepository) Update(ctx context.Context, run *secondary.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return errors.New("run not found")
	}
	copied := *run
	m.runs[run.ID] = &copied
	return nil
}

func (m *mockRunRepository) List(ctx context.Context, filters secondary.RunFilters) ([]*secondary.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*secondary.RunRecord
	for _, run := range m.runs {
		if filters.Status == "" || run.Status == filters.Status {
			copied := *run
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockRunRepository) GetLatest(ctx context.Context) (*secondary.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *secondary.RunRecord
	for _, run := range m.runs {
		if latest == nil || run.ID > latest.ID {
			latest = run
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (m *mockRunRepository) GetNextID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return fmt.Sprintf("RUN-%03d", m.next), nil
}

// mockExecRepository implements secondary.PhaseExecutionRepository for testing.
type mockExecRepository struct {
	mu     sync.Mutex
	rows   []*secondary.PhaseExecutionRecord
	nextID int64
}

func newMockExecRepository() *mockExecRepository {
	return &mockExecRepository{}
}

func (m *mockExecRepository) Insert(ctx context.Context, exec *secondary.PhaseExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	exec.ID = m.nextID
	copied := *exec
	m.rows = append(m.rows, &copied)
	return nil
}

func (m *mockExecRepository) Update(ctx context.Context, exec *secondary.PhaseExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range m.rows {
		if row.ID == exec.ID {
			copied := *exec
			m.rows[i] = &copied
			return nil
		}
	}
	return errors.New("execution not found")
}

func (m *mockExecRepository) ListByRun(ctx context.Context, runID string) ([]*secondary.PhaseExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*secondary.PhaseExecutionRecord
	for _, row := range m.rows {
		if row.RunID == runID {
			copied := *row
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockExecRepository) LatestPerPhase(ctx context.Context, runID string) ([]*secondary.PhaseExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := map[string]*secondary.PhaseExecutionRecord{}
	for _, row := range m.rows {
		if row.RunID != runID {
			continue
		}
		if cur, ok := latest[row.PhaseID]; !ok || row.Attempt > cur.Attempt {
			latest[row.PhaseID] = row
		}
	}
	var result []*secondary.PhaseExecutionRecord
	for _, row := range latest {
		copied := *row
		result = append(result, &copied)
	}
	return result, nil
}

// attemptsFor returns the recorded attempt statuses for a phase, in order.
func (m *mockExecRepository) attemptsFor(runID, phaseID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var statuses []string
	for _, row := range m.rows {
		if row.RunID == runID && row.PhaseID == phaseID {
			statuses = append(statuses, row.Status)
		}
	}
	return statuses
}

// mockSignalRepository implements secondary.SignalRepository for testing.
type mockSignalRepository struct {
	mu   sync.Mutex
	rows []*secondary.SignalRecord
}

func newMockSignalRepository() *mockSignalRepository {
	return &mockSignalRepository{}
}

func (m *mockSignalRepository) Insert(ctx context.Context, sig *secondary.SignalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig.ID = int64(len(m.rows) + 1)
	copied := *sig
	m.rows = append(m.rows, &copied)
	return nil
}

func (m *mockSignalRepository) ListByRun(ctx context.Context, runID string) ([]*secondary.SignalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*secondary.SignalRecord
	for _, row := range m.rows {
		if row.RunID == runID {
			copied := *row
			result = append(result, &copied)
		}
	}
	return result, nil
}

// mockOperationLog implements secondary.OperationLogWriter for testing.
type mockOperationLog struct {
	mu     sync.Mutex
	events []string
}

func newMockOperationLog() *mockOperationLog {
	return &mockOperationLog{}
}

func (m *mockOperationLog) Log(ctx context.Context, runID, phaseID, event, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockOperationLog) ListByRun(ctx context.Context, runID string) ([]*secondary.OperationLogRecord, error) {
	return nil, nil
}

func (m *mockOperationLog) has(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e == event {
			return true
		}
	}
	return false
}

// mockSignalSource implements SignalSource for testing.
type mockSignalSource struct {
	msgs chan *signalspool.Message
	errs chan error
}

func newMockSignalSource() *mockSignalSource {
	return &mockSignalSource{
		msgs: make(chan *signalspool.Message, 16),
		errs: make(chan error, 16),
	}
}

func (m *mockSignalSource) Start(ctx context.Context) error       { return nil }
func (m *mockSignalSource) Messages() <-chan *signalspool.Message { return m.msgs }
func (m *mockSignalSource) Errors() <-chan error                  { return m.errs }

func (m *mockSignalSource) emit(runID, phaseID, status, reason string) {
	m.msgs <- &signalspool.Message{
		Completion: &models.CompletionSignal{
			RunID:      runID,
			PhaseID:    phaseID,
			Status:     status,
			Reason:     reason,
			SignaledAt: time.Now().UTC(),
		},
	}
}

// mockSupervisor implements secondary.WorkerSupervisor for testing.
// handler decides each session's outcome and can emit spool signals the
// way a real worker would before exiting.
type mockSupervisor struct {
	mu      sync.Mutex
	calls   []secondary.WorkerSpec
	handler func(spec secondary.WorkerSpec) *secondary.WorkerOutcome
}

func (m *mockSupervisor) Run(ctx context.Context, spec secondary.WorkerSpec) (*secondary.WorkerOutcome, error) {
	m.mu.Lock()
	m.calls = append(m.calls, spec)
	m.mu.Unlock()
	if m.handler != nil {
		return m.handler(spec), nil
	}
	return &secondary.WorkerOutcome{Success: true, SessionID: "sess"}, nil
}

func (m *mockSupervisor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockGateRunner implements secondary.GateRunner for testing.
type mockGateRunner struct {
	mu       sync.Mutex
	outcomes map[string][]*secondary.GateOutcome
}

func newMockGateRunner() *mockGateRunner {
	return &mockGateRunner{outcomes: make(map[string][]*secondary.GateOutcome)}
}

// queue appends the next outcome for a gate name. Outcomes are consumed
// in order; the last one repeats.
func (m *mockGateRunner) queue(name string, passed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome := &secondary.GateOutcome{Passed: passed}
	if !passed {
		outcome.ExitCode = 1
	}
	m.outcomes[name] = append(m.outcomes[name], outcome)
}

func (m *mockGateRunner) Run(ctx context.Context, gate secondary.GateSpec) (*secondary.GateOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queued := m.outcomes[gate.Name]
	if len(queued) == 0 {
		return &secondary.GateOutcome{Passed: true}, nil
	}
	outcome := queued[0]
	if len(queued) > 1 {
		m.outcomes[gate.Name] = queued[1:]
	}
	return outcome, nil
}

// mockWorkspace implements secondary.WorkspaceInspector for testing.
type mockWorkspace struct {
	files map[string]bool
}

func newMockWorkspace() *mockWorkspace {
	return &mockWorkspace{files: make(map[string]bool)}
}

func (m *mockWorkspace) FileNonEmpty(ctx context.Context, path string) (bool, error) {
	return m.files[path], nil
}

// stubAuditService implements primary.AuditService with canned phases.
type stubAuditService struct {
	phases []models.Phase
	refs   []models.PhaseRef
	passed bool
}

func (s *stubAuditService) Audit(ctx context.Context, req primary.AuditRequest) (*models.AuditResult, error) {
	return &models.AuditResult{Passed: s.passed}, nil
}

func (s *stubAuditService) Load(ctx context.Context, req primary.AuditRequest) (*models.PlanDocument, []models.Phase, error) {
	if !s.passed {
		return nil, nil, errors.New("plan failed validation")
	}
	return &models.PlanDocument{Path: req.MasterPath, Phases: s.refs}, s.phases, nil
}

// ============================================================================
// Test Fixture
// ============================================================================

type engineFixture struct {
	service    *RunServiceImpl
	runs       *mockRunRepository
	execs      *mockExecRepository
	signals    *mockSignalRepository
	oplog      *mockOperationLog
	supervisor *mockSupervisor
	source     *mockSignalSource
	gates      *mockGateRunner
	workspace  *mockWorkspace
}

func newEngineFixture(phases []models.Phase, pol *policy.Policy) *engineFixture {
	f := &engineFixture{
		runs:       newMockRunRepository(),
		execs:      newMockExecRepository(),
		signals:    newMockSignalRepository(),
		oplog:      newMockOperationLog(),
		supervisor: &mockSupervisor{},
		source:     newMockSignalSource(),
		gates:      newMockGateRunner(),
		workspace:  newMockWorkspace(),
	}
	if pol == nil {
		pol = policy.Default()
	}
	compliance := NewComplianceService(f.gates, f.workspace, time.Second)
	audit := &stubAuditService{phases: phases, passed: true}
	f.service = NewRunService(f.runs, f.execs, f.signals, f.oplog, f.supervisor, audit, compliance, f.source, pol, enginelog.Discard(), "/tmp/project")
	// Tests with silent workers should not sit out the production grace.
	f.service.signalGrace = 50 * time.Millisecond
	return f
}

// completeViaSignal makes every worker session signal completion for its
// phase, like a well-behaved worker.
func (f *engineFixture) completeViaSignal() {
	f.supervisor.handler = func(spec secondary.WorkerSpec) *secondary.WorkerOutcome {
		f.source.emit(spec.RunID, spec.PhaseID, models.SignalCompleted, "")
		return &secondary.WorkerOutcome{Success: true, SessionID: "sess-" + spec.PhaseID}
	}
}

func onePhase(id string, deps ...string) models.Phase {
	return models.Phase{ID: id, Title: id, Path: "plans/" + id + ".md", DependsOn: deps}
}

// ============================================================================
// Tests
// ============================================================================

func TestRunService_StartCompletesSinglePhase(t *testing.T) {
	f := newEngineFixture([]models.Phase{onePhase("phase-1")}, nil)
	f.completeViaSignal()

	result, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if result.Status != models.RunStatusCompleted {
		t.Errorf("expected run completed, got %s", result.Status)
	}
	if len(result.Completed) != 1 || result.Completed[0] != "phase-1" {
		t.Errorf("expected phase-1 completed, got %v", result.Completed)
	}

	statuses := f.execs.attemptsFor(result.RunID, "phase-1")
	if len(statuses) != 1 || statuses[0] != models.PhaseStatusCompleted {
		t.Errorf("expected one completed attempt, got %v", statuses)
	}

	run, err := f.runs.GetByID(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if run.Status != models.RunStatusCompleted {
		t.Errorf("expected persisted run completed, got %s", run.Status)
	}
	if run.CompletedAt == "" {
		t.Error("expected completed_at to be set")
	}
}

func TestRunService_StartRefusesInvalidPlan(t *testing.T) {
	f := newEngineFixture(nil, nil)
	audit := &stubAuditService{passed: false}
	f.service.audit = audit

	_, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err == nil {
		t.Fatal("expected error for invalid plan")
	}
	if f.supervisor.callCount() != 0 {
		t.Error("no worker should have started")
	}
}

func TestRunService_StartRefusesSecondActiveRun(t *testing.T) {
	f := newEngineFixture([]models.Phase{onePhase("phase-1")}, nil)
	f.runs.Create(context.Background(), &secondary.RunRecord{
		ID: "RUN-900", PlanPath: "other.md", Status: models.RunStatusRunning,
	})

	_, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err == nil {
		t.Fatal("expected error while another run is active")
	}
}

func TestRunService_DependentsRunAfterDependencies(t *testing.T) {
	f := newEngineFixture([]models.Phase{
		onePhase("phase-1"),
		onePhase("phase-2", "phase-1"),
	}, nil)

	var order []string
	var mu sync.Mutex
	f.supervisor.handler = func(spec secondary.WorkerSpec) *secondary.WorkerOutcome {
		mu.Lock()
		order = append(order, spec.PhaseID)
		mu.Unlock()
		f.source.emit(spec.RunID, spec.PhaseID, models.SignalCompleted, "")
		return &secondary.WorkerOutcome{Success: true}
	}

	result, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if result.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if len(order) != 2 || order[0] != "phase-1" || order[1] != "phase-2" {
		t.Errorf("expected phase-1 before phase-2, got %v", order)
	}
}

func TestRunService_BlockedPhaseStopsDependents(t *testing.T) {
	f := newEngineFixture([]models.Phase{
		onePhase("phase-1"),
		onePhase("phase-2", "phase-1"),
	}, nil)

	f.supervisor.handler = func(spec secondary.WorkerSpec) *secondary.WorkerOutcome {
		f.source.emit(spec.RunID, spec.PhaseID, models.SignalBlocked, "need credentials")
		return &secondary.WorkerOutcome{Success: false}
	}

	result, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if result.Status != models.RunStatusFailed {
		t.Errorf("expected run failed, got %s", result.Status)
	}
	if len(result.Blocked) != 1 || result.Blocked[0] != "phase-1" {
		t.Errorf("expected phase-1 blocked, got %v", result.Blocked)
	}
	if f.supervisor.callCount() != 1 {
		t.Errorf("phase-2 must not run, got %d worker sessions", f.supervisor.callCount())
	}

	// Blocked is trusted terminal: exactly one attempt, no retry.
	statuses := f.execs.attemptsFor(result.RunID, "phase-1")
	if len(statuses) != 1 || statuses[0] != models.PhaseStatusBlocked {
		t.Errorf("expected single blocked attempt, got %v", statuses)
	}
}

func TestRunService_WorkerDeclaredFailureIsNotRetried(t *testing.T) {
	f := newEngineFixture([]models.Phase{onePhase("phase-1")}, nil)

	f.supervisor.handler = func(spec secondary.WorkerSpec) *secondary.WorkerOutcome {
		f.source.emit(spec.RunID, spec.PhaseID, models.SignalFailed, "approach will not work")
		return &secondary.WorkerOutcome{Success: false}
	}

	result, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if result.Status != models.RunStatusFailed {
		t.Errorf("expected run failed, got %s", result.Status)
	}
	if f.supervisor.callCount() != 1 {
		t.Errorf("worker-declared failure must not retry, got %d sessions", f.supervisor.callCount())
	}
}

func TestRunService_SilentExitRetriesUpToBudget(t *testing.T) {
	pol := policy.Default()
	pol.MaxRetries = 2
	f := newEngineFixture([]models.Phase{onePhase("phase-1")}, pol)

	// Worker exits without ever signaling.
	f.supervisor.handler = func(spec secondary.WorkerSpec) *secondary.WorkerOutcome {
		return &secondary.WorkerOutcome{Success: false, ExitCode: 1}
	}

	result, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if result.Status != models.RunStatusFailed {
		t.Errorf("expected run failed, got %s", result.Status)
	}
	if f.supervisor.callCount() != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", f.supervisor.callCount())
	}

	statuses := f.execs.attemptsFor(result.RunID, "phase-1")
	if len(statuses) != 3 {
		t.Fatalf("expected 3 attempt rows, got %d", len(statuses))
	}
	for _, status := range statuses {
		if status != models.PhaseStatusFailed {
			t.Errorf("expected all attempts failed, got %v", statuses)
		}
	}
}

func TestRunService_ComplianceFailureTriggersRemediation(t *testing.T) {
	phase := onePhase("phase-1")
	phase.Gates = []models.Gate{{Name: "tests", Command: "run-tests", Kind: models.GateExitZero}}
	f := newEngineFixture([]models.Phase{phase}, nil)
	f.completeViaSignal()

	// First verification fails, second passes.
	f.gates.queue("tests", false)
	f.gates.queue("tests", true)

	result, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if result.Status != models.RunStatusCompleted {
		t.Errorf("expected run completed after remediation, got %s", result.Status)
	}
	if f.supervisor.callCount() != 2 {
		t.Fatalf("expected 2 worker sessions, got %d", f.supervisor.callCount())
	}

	// The retry prompt carries the findings from the failed check.
	f.supervisor.mu.Lock()
	retryPrompt := f.supervisor.calls[1].Prompt
	f.supervisor.mu.Unlock()
	if !strings.Contains(retryPrompt, "tests") || !strings.Contains(retryPrompt, "attempt 2") {
		t.Errorf("remediation prompt missing findings: %q", retryPrompt)
	}

	statuses := f.execs.attemptsFor(result.RunID, "phase-1")
	if len(statuses) != 2 || statuses[0] != models.PhaseStatusFailed || statuses[1] != models.PhaseStatusCompleted {
		t.Errorf("expected failed then completed, got %v", statuses)
	}
}

func TestRunService_MissingCollaboratorFailsCompliance(t *testing.T) {
	phase := onePhase("phase-1")
	phase.RequiredCollaborators = []string{"code-reviewer"}
	pol := policy.Default()
	pol.Phases = map[string]policy.PhaseOverride{"phase-1": {MaxRetries: intPtr(0)}}
	f := newEngineFixture([]models.Phase{phase}, pol)
	f.completeViaSignal()

	result, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if result.Status != models.RunStatusFailed {
		t.Errorf("expected run failed, got %s", result.Status)
	}
	if !f.oplog.has("compliance_failed") {
		t.Error("expected a compliance_failed audit entry")
	}
}

func TestDispatcher_RecordsEverySignal(t *testing.T) {
	signals := newMockSignalRepository()
	oplog := newMockOperationLog()
	d := newDispatcher("RUN-001", signals, oplog)
	ctx := context.Background()

	sigC := d.register("phase-1")
	completion := func(runID, phaseID string) *signalspool.Message {
		return &signalspool.Message{Completion: &models.CompletionSignal{
			RunID: runID, PhaseID: phaseID, Status: models.SignalCompleted, SignaledAt: time.Now().UTC(),
		}}
	}

	// First signal routes to the waiting attempt.
	d.handle(ctx, completion("RUN-001", "phase-1"))
	select {
	case sig := <-sigC:
		if sig.Status != models.SignalCompleted {
			t.Errorf("unexpected signal: %+v", sig)
		}
	default:
		t.Fatal("expected routed signal")
	}

	// A signal for a phase with no running attempt is recorded but discarded.
	d.handle(ctx, completion("RUN-001", "phase-ghost"))
	// A signal for another run is never routed.
	d.handle(ctx, completion("RUN-999", "phase-1"))
	// A signal outside the status vocabulary is recorded but never routed.
	d.register("phase-2")
	d.handle(ctx, &signalspool.Message{Completion: &models.CompletionSignal{
		RunID: "RUN-001", PhaseID: "phase-2", Status: "done", SignaledAt: time.Now().UTC(),
	}})

	rows, _ := signals.ListByRun(ctx, "RUN-001")
	if len(rows) != 3 {
		t.Fatalf("expected 3 recorded signals for RUN-001, got %d", len(rows))
	}
	accepted := 0
	for _, row := range rows {
		if row.Accepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("expected exactly one accepted signal, got %d", accepted)
	}
	if !oplog.has("signal_discarded") {
		t.Error("expected a signal_discarded audit entry")
	}
}

func TestRunService_ResumeSkipsCompletedKeepsBlocked(t *testing.T) {
	f := newEngineFixture([]models.Phase{
		onePhase("phase-1"),
		onePhase("phase-2"),
		onePhase("phase-3", "phase-1"),
	}, nil)
	f.completeViaSignal()

	ctx := context.Background()
	f.runs.Create(ctx, &secondary.RunRecord{ID: "RUN-001", PlanPath: "plan.md", Status: models.RunStatusRunning})
	f.execs.Insert(ctx, &secondary.PhaseExecutionRecord{
		RunID: "RUN-001", PhaseID: "phase-1", Attempt: 1, Status: models.PhaseStatusCompleted,
	})
	f.execs.Insert(ctx, &secondary.PhaseExecutionRecord{
		RunID: "RUN-001", PhaseID: "phase-2", Attempt: 2, Status: models.PhaseStatusBlocked, FailureReason: "stuck",
	})

	result, err := f.service.Resume(ctx, primary.ResumeRunRequest{RunID: "RUN-001"})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	// Only phase-3 should have run a worker.
	if f.supervisor.callCount() != 1 {
		t.Errorf("expected 1 worker session, got %d", f.supervisor.callCount())
	}
	if len(result.Completed) != 2 {
		t.Errorf("expected phase-1 and phase-3 completed, got %v", result.Completed)
	}
	if len(result.Blocked) != 1 || result.Blocked[0] != "phase-2" {
		t.Errorf("expected phase-2 still blocked, got %v", result.Blocked)
	}
	if result.Status != models.RunStatusFailed {
		t.Errorf("expected run failed while phase-2 is blocked, got %s", result.Status)
	}
}

func TestRunService_ResumeReschedulesOrphanedAttempt(t *testing.T) {
	f := newEngineFixture([]models.Phase{onePhase("phase-1")}, nil)
	f.completeViaSignal()

	ctx := context.Background()
	f.runs.Create(ctx, &secondary.RunRecord{ID: "RUN-001", PlanPath: "plan.md", Status: models.RunStatusRunning})
	f.execs.Insert(ctx, &secondary.PhaseExecutionRecord{
		RunID: "RUN-001", PhaseID: "phase-1", Attempt: 1, Status: models.PhaseStatusRunning,
	})

	result, err := f.service.Resume(ctx, primary.ResumeRunRequest{RunID: "RUN-001"})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if result.Status != models.RunStatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}

	// The orphaned attempt is closed as failed and a new attempt follows it.
	statuses := f.execs.attemptsFor("RUN-001", "phase-1")
	if len(statuses) != 2 || statuses[0] != models.PhaseStatusFailed || statuses[1] != models.PhaseStatusCompleted {
		t.Errorf("expected failed orphan then completed attempt, got %v", statuses)
	}
}

func TestRunService_OrphanedAttemptKeepsRetryBudget(t *testing.T) {
	pol := policy.Default()
	pol.MaxRetries = 1
	f := newEngineFixture([]models.Phase{onePhase("phase-1")}, pol)

	// Workers stay silent, so every fresh attempt fails.
	f.supervisor.handler = func(spec secondary.WorkerSpec) *secondary.WorkerOutcome {
		return &secondary.WorkerOutcome{Success: false, ExitCode: 1}
	}

	ctx := context.Background()
	f.runs.Create(ctx, &secondary.RunRecord{ID: "RUN-001", PlanPath: "plan.md", Status: models.RunStatusRunning})
	f.execs.Insert(ctx, &secondary.PhaseExecutionRecord{
		RunID: "RUN-001", PhaseID: "phase-1", Attempt: 1, Status: models.PhaseStatusRunning,
	})

	if _, err := f.service.Resume(ctx, primary.ResumeRunRequest{RunID: "RUN-001"}); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	// The orphaned attempt never settled, so the phase still gets its
	// full budget of two fresh attempts.
	if f.supervisor.callCount() != 2 {
		t.Errorf("expected 2 worker sessions after the orphan, got %d", f.supervisor.callCount())
	}
	statuses := f.execs.attemptsFor("RUN-001", "phase-1")
	if len(statuses) != 3 {
		t.Errorf("expected orphan row plus 2 attempts, got %v", statuses)
	}
}

func TestRunService_DeclaredCompletedPhasesAreSkipped(t *testing.T) {
	phases := []models.Phase{onePhase("phase-1"), onePhase("phase-2", "phase-1")}
	f := newEngineFixture(phases, nil)
	f.completeViaSignal()
	f.service.audit = &stubAuditService{
		phases: phases,
		refs: []models.PhaseRef{
			{ID: "phase-1", DeclaredStatus: models.DeclaredCompleted},
			{ID: "phase-2", DeclaredStatus: models.DeclaredPending},
		},
		passed: true,
	}

	result, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if f.supervisor.callCount() != 1 {
		t.Errorf("expected only phase-2 to run, got %d sessions", f.supervisor.callCount())
	}
	if len(result.Completed) != 1 || result.Completed[0] != "phase-2" {
		t.Errorf("expected phase-2 completed, got %v", result.Completed)
	}
	if rows := f.execs.attemptsFor(result.RunID, "phase-1"); len(rows) != 0 {
		t.Errorf("expected no attempts for the declared-complete phase, got %v", rows)
	}
}

func TestRunService_CancelledWorkerRecordedAsCancelled(t *testing.T) {
	f := newEngineFixture([]models.Phase{onePhase("phase-1")}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.supervisor.handler = func(spec secondary.WorkerSpec) *secondary.WorkerOutcome {
		cancel()
		return &secondary.WorkerOutcome{Success: false, ExitCode: -1}
	}

	result, err := f.service.Start(ctx, primary.StartRunRequest{MasterPath: "plan.md"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if f.supervisor.callCount() != 1 {
		t.Errorf("cancelled phase must not retry, got %d sessions", f.supervisor.callCount())
	}
	latest, _ := f.execs.LatestPerPhase(context.Background(), result.RunID)
	if len(latest) != 1 || latest[0].Status != models.PhaseStatusFailed || latest[0].FailureReason != "cancelled" {
		t.Errorf("expected failed attempt with reason cancelled, got %+v", latest)
	}
}

func TestRunService_ResumeRefusesTerminalRun(t *testing.T) {
	f := newEngineFixture([]models.Phase{onePhase("phase-1")}, nil)
	f.runs.Create(context.Background(), &secondary.RunRecord{
		ID: "RUN-001", PlanPath: "plan.md", Status: models.RunStatusCompleted,
	})

	_, err := f.service.Resume(context.Background(), primary.ResumeRunRequest{RunID: "RUN-001"})
	if err == nil {
		t.Fatal("expected error resuming a completed run")
	}
}

func TestRunService_Cancel(t *testing.T) {
	f := newEngineFixture(nil, nil)
	ctx := context.Background()
	f.runs.Create(ctx, &secondary.RunRecord{ID: "RUN-001", PlanPath: "plan.md", Status: models.RunStatusRunning})

	if err := f.service.Cancel(ctx, "RUN-001"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	run, _ := f.runs.GetByID(ctx, "RUN-001")
	if run.Status != models.RunStatusCancelled {
		t.Errorf("expected cancelled, got %s", run.Status)
	}

	// A second cancel is refused.
	if err := f.service.Cancel(ctx, "RUN-001"); err == nil {
		t.Error("expected error cancelling a cancelled run")
	}
}

func TestRunService_OnlySubset(t *testing.T) {
	f := newEngineFixture([]models.Phase{
		onePhase("phase-1"),
		onePhase("phase-2", "phase-1"),
		onePhase("phase-3", "phase-2"),
	}, nil)
	f.completeViaSignal()

	result, err := f.service.Start(context.Background(), primary.StartRunRequest{
		MasterPath: "plan.md",
		OnlyPhases: []string{"phase-2"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if f.supervisor.callCount() != 1 {
		t.Errorf("expected only phase-2 to run, got %d sessions", f.supervisor.callCount())
	}
	if len(result.Completed) != 1 || result.Completed[0] != "phase-2" {
		t.Errorf("expected phase-2 completed, got %v", result.Completed)
	}
}

func TestRunService_TotalCostSumsAllAttempts(t *testing.T) {
	phase := onePhase("phase-1")
	phase.Gates = []models.Gate{{Name: "tests", Command: "run-tests", Kind: models.GateExitZero}}
	f := newEngineFixture([]models.Phase{phase}, nil)

	f.supervisor.handler = func(spec secondary.WorkerSpec) *secondary.WorkerOutcome {
		f.source.emit(spec.RunID, spec.PhaseID, models.SignalCompleted, "")
		return &secondary.WorkerOutcome{Success: true, TotalCostUSD: 1.25}
	}

	// First verification fails, forcing a second paid attempt.
	f.gates.queue("tests", false)
	f.gates.queue("tests", true)

	result, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if result.TotalCost != 2.5 {
		t.Errorf("expected total cost 2.50 across both attempts, got %v", result.TotalCost)
	}
}

func TestRunService_ExternalCancelStopsScheduling(t *testing.T) {
	f := newEngineFixture([]models.Phase{
		onePhase("phase-1"),
		onePhase("phase-2", "phase-1"),
	}, nil)

	// The first worker simulates `baton cancel` arriving from another
	// process mid-run, then completes normally.
	f.supervisor.handler = func(spec secondary.WorkerSpec) *secondary.WorkerOutcome {
		run, err := f.runs.GetByID(context.Background(), spec.RunID)
		if err != nil {
			t.Errorf("GetByID failed: %v", err)
		}
		run.Status = models.RunStatusCancelled
		if err := f.runs.Update(context.Background(), run); err != nil {
			t.Errorf("Update failed: %v", err)
		}
		f.source.emit(spec.RunID, spec.PhaseID, models.SignalCompleted, "")
		return &secondary.WorkerOutcome{Success: true}
	}

	result, err := f.service.Start(context.Background(), primary.StartRunRequest{MasterPath: "plan.md"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if result.Status != models.RunStatusCancelled {
		t.Errorf("expected cancelled run, got %s", result.Status)
	}
	if f.supervisor.callCount() != 1 {
		t.Errorf("no further phase may start after a cancel, got %d sessions", f.supervisor.callCount())
	}

	// The stored cancelled status is never overwritten at finish.
	run, _ := f.runs.GetByID(context.Background(), result.RunID)
	if run.Status != models.RunStatusCancelled {
		t.Errorf("run row = %s, want cancelled", run.Status)
	}
}

func TestRunService_StatusReportsLatestAttempts(t *testing.T) {
	f := newEngineFixture(nil, nil)
	ctx := context.Background()
	f.runs.Create(ctx, &secondary.RunRecord{ID: "RUN-001", PlanPath: "plan.md", Status: models.RunStatusRunning})
	f.execs.Insert(ctx, &secondary.PhaseExecutionRecord{
		RunID: "RUN-001", PhaseID: "phase-1", Attempt: 2, Status: models.PhaseStatusFailed, FailureReason: "gate tests: exit code 1",
	})

	status, err := f.service.Status(ctx, "RUN-001")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.RunID != "RUN-001" || len(status.Phases) != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Phases[0].Attempt != 2 || status.Phases[0].FailureReason == "" {
		t.Errorf("expected latest attempt with reason, got %+v", status.Phases[0])
	}
}

func intPtr(v int) *int { return &v }
