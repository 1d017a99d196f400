package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/example/baton/internal/models"
	"github.com/example/baton/internal/ports/secondary"
)

// maxGateOutput caps how much gate output is kept for reporting.
const maxGateOutput = 64 * 1024

// gateKillGrace is how long a gate gets between SIGTERM and SIGKILL.
const gateKillGrace = 5 * time.Second

// GateExecutor implements secondary.GateRunner by running gate commands
// through the shell, the same way a developer would run them.
type GateExecutor struct{}

// NewGateExecutor creates a gate executor.
func NewGateExecutor() *GateExecutor {
	return &GateExecutor{}
}

// Run executes one gate command and evaluates its criterion.
func (g *GateExecutor) Run(ctx context.Context, gate secondary.GateSpec) (*secondary.GateOutcome, error) {
	if gate.Command == "" {
		return nil, fmt.Errorf("gate %s has no command", gate.Name)
	}

	runCtx := ctx
	if gate.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, gate.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", gate.Command)
	cmd.Dir = gate.WorkDir

	// Gates spawn children through the shell; signal the whole group so
	// a lingering child cannot hold the output pipe open past the
	// deadline.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = gateKillGrace

	output, err := cmd.CombinedOutput()
	outcome := &secondary.GateOutcome{
		Output: truncate(string(output), maxGateOutput),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		outcome.TimedOut = true
		outcome.ExitCode = -1
		return outcome, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run gate %s: %w", gate.Name, err)
		}
		outcome.ExitCode = exitErr.ExitCode()
	}

	switch gate.Kind {
	case models.GateOutputMatch:
		outcome.Passed = strings.Contains(outcome.Output, gate.Criterion)
	default:
		outcome.Passed = outcome.ExitCode == 0
	}

	return outcome, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Ensure GateExecutor implements the interface
var _ secondary.GateRunner = (*GateExecutor)(nil)
