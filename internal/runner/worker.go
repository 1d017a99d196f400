// Package runner launches worker sessions and gate commands as OS
// processes and reports what they did.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/example/baton/internal/ports/secondary"
	"github.com/example/baton/internal/stream"
)

// killGrace is how long a worker gets between SIGTERM and SIGKILL.
const killGrace = 10 * time.Second

// Supervisor implements secondary.WorkerSupervisor by running the worker
// command as a child process and consuming its event stream from stdout.
type Supervisor struct{}

// NewSupervisor creates a worker supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Run starts the worker and blocks until it exits, the session times
// out, the stream stalls, or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, spec secondary.WorkerSpec) (*secondary.WorkerOutcome, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("worker command is empty")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	argv := append(append([]string(nil), spec.Command...), spec.Prompt)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = spec.WorkDir

	// The worker may spawn its own children; signal the whole group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	activity := &stream.Activity{}
	stalled := consumeStream(runCtx, stream.NewConsumer(stdout), activity, spec.StallTimeout, cancelCmd(cmd))

	waitErr := cmd.Wait()

	outcome := &secondary.WorkerOutcome{
		SessionID:     activity.SessionID,
		Model:         activity.Model,
		Collaborators: activity.Collaborators(),
		EventCount:    activity.EventCount,
		Stalled:       stalled,
	}
	if activity.Result != nil {
		outcome.Success = activity.Result.Success
		outcome.ResultText = activity.Result.ResultText
		outcome.TotalCostUSD = activity.Result.TotalCostUSD
		outcome.InputTokens = activity.Result.InputTokens
		outcome.OutputTokens = activity.Result.OutputTokens
	}

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		outcome.TimedOut = true
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
		} else if !outcome.TimedOut && !stalled && ctx.Err() == nil {
			return nil, fmt.Errorf("worker did not run: %w", waitErr)
		}
		if outcome.ExitCode == 0 {
			outcome.ExitCode = -1
		}
		outcome.Success = false
	}

	return outcome, nil
}

// cancelCmd returns a func that tears the worker down the same way a
// context cancellation would.
func cancelCmd(cmd *exec.Cmd) func() {
	return func() {
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		}
	}
}

// consumeStream reads events until EOF, feeding the activity summary.
// Returns true if the stream stalled past stallTimeout and the worker
// was torn down for it.
func consumeStream(ctx context.Context, consumer *stream.Consumer, activity *stream.Activity, stallTimeout time.Duration, kill func()) bool {
	events := make(chan *stream.Event)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			ev, err := consumer.Next()
			if err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	var stallC <-chan time.Time
	var stallTimer *time.Timer
	if stallTimeout > 0 {
		stallTimer = time.NewTimer(stallTimeout)
		defer stallTimer.Stop()
		stallC = stallTimer.C
	}

	for {
		select {
		case ev := <-events:
			activity.Observe(ev)
			if stallTimer != nil {
				if !stallTimer.Stop() {
					<-stallTimer.C
				}
				stallTimer.Reset(stallTimeout)
			}
		case <-stallC:
			kill()
			drain(events, done)
			return true
		case <-done:
			return false
		case <-ctx.Done():
			drain(events, done)
			return false
		}
	}
}

// drain keeps the reader goroutine unblocked until it finishes.
func drain(events <-chan *stream.Event, done <-chan struct{}) {
	for {
		select {
		case <-events:
		case <-done:
			return
		}
	}
}

// Ensure Supervisor implements the interface
var _ secondary.WorkerSupervisor = (*Supervisor)(nil)
