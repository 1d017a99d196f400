package app

import (
	"context"
	"fmt"
	"time"

	"github.com/example/baton/internal/models"
	"github.com/example/baton/internal/ports/primary"
	"github.com/example/baton/internal/signalspool"
)

// SignalServiceImpl implements the SignalService interface by writing
// spool files. It runs inside worker sessions, so it never touches the
// database; only the engine writes persistent state.
type SignalServiceImpl struct {
	spoolDir string
}

// NewSignalService creates a new SignalService spooling into spoolDir.
func NewSignalService(spoolDir string) *SignalServiceImpl {
	return &SignalServiceImpl{spoolDir: spoolDir}
}

// Done reports a phase outcome from inside a worker session.
func (s *SignalServiceImpl) Done(ctx context.Context, req primary.DoneRequest) error {
	if req.RunID == "" || req.PhaseID == "" {
		return fmt.Errorf("run and phase are required")
	}
	if !models.ValidSignalStatus(req.Status) {
		return fmt.Errorf("status must be completed, blocked, or failed (got %q)", req.Status)
	}
	if req.Status != models.SignalCompleted && req.Reason == "" {
		return fmt.Errorf("a %s signal requires --reason", req.Status)
	}

	return signalspool.WriteCompletion(s.spoolDir, &models.CompletionSignal{
		RunID:      req.RunID,
		PhaseID:    req.PhaseID,
		Status:     req.Status,
		Reason:     req.Reason,
		SignaledAt: time.Now().UTC(),
	})
}

// Progress reports an intermediate step from inside a worker session.
func (s *SignalServiceImpl) Progress(ctx context.Context, req primary.ProgressRequest) error {
	if req.RunID == "" || req.PhaseID == "" {
		return fmt.Errorf("run and phase are required")
	}
	if req.Step == "" {
		return fmt.Errorf("--step is required")
	}

	return signalspool.WriteProgress(s.spoolDir, &models.ProgressSignal{
		RunID:      req.RunID,
		PhaseID:    req.PhaseID,
		Step:       req.Step,
		SignaledAt: time.Now().UTC(),
	})
}

// Ensure SignalServiceImpl implements the interface.
var _ primary.SignalService = (*SignalServiceImpl)(nil)
