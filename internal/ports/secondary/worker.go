package secondary

import (
	"context"
	"time"
)

// WorkerSupervisor defines the secondary port for launching a worker
// session and consuming its event stream until it exits.
type WorkerSupervisor interface {
	// Run starts a worker, blocks until it exits or ctx is done, and
	// returns what was observed on its stream. A non-zero exit or a
	// forced kill is reported in the outcome, not as an error; the
	// error return is for failures to launch or read at all.
	Run(ctx context.Context, spec WorkerSpec) (*WorkerOutcome, error)
}

// WorkerSpec describes one worker invocation.
type WorkerSpec struct {
	RunID   string
	PhaseID string
	Prompt  string
	WorkDir string

	// Command is the worker argv. The prompt is appended by the adapter.
	Command []string

	// Timeout bounds the whole session; StallTimeout bounds the gap
	// between stream events. Zero disables the respective bound.
	Timeout      time.Duration
	StallTimeout time.Duration
}

// WorkerOutcome is what the supervisor observed from one worker session.
type WorkerOutcome struct {
	SessionID     string
	Model         string
	Collaborators []string
	ResultText    string
	Success       bool
	ExitCode      int
	TimedOut      bool
	Stalled       bool
	EventCount    int
	TotalCostUSD  float64
	InputTokens   int64
	OutputTokens  int64
}

// GateRunner defines the secondary port for executing verification gate
// commands.
type GateRunner interface {
	// Run executes a gate command and reports whether its criterion held.
	Run(ctx context.Context, gate GateSpec) (*GateOutcome, error)
}

// GateSpec describes one gate command and its pass criterion.
type GateSpec struct {
	Name      string
	Command   string
	Kind      string // exit-code-zero or output-match
	Criterion string // substring for output-match gates
	WorkDir   string
	Timeout   time.Duration
}

// GateOutcome is the result of one gate execution.
type GateOutcome struct {
	Passed   bool
	ExitCode int
	Output   string
	TimedOut bool
}
