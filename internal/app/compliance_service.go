package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/baton/internal/models"
	"github.com/example/baton/internal/ports/primary"
	"github.com/example/baton/internal/ports/secondary"
)

// ComplianceServiceImpl implements the ComplianceService interface.
// It re-derives every claim from primary evidence: gates are re-run,
// collaborator use is read from the observed event stream, notes are
// stat'ed on disk.
type ComplianceServiceImpl struct {
	gates       secondary.GateRunner
	workspace   secondary.WorkspaceInspector
	gateTimeout time.Duration
}

// NewComplianceService creates a new ComplianceService with injected dependencies.
func NewComplianceService(gates secondary.GateRunner, workspace secondary.WorkspaceInspector, gateTimeout time.Duration) *ComplianceServiceImpl {
	return &ComplianceServiceImpl{
		gates:       gates,
		workspace:   workspace,
		gateTimeout: gateTimeout,
	}
}

// Verify checks a completed-claim against the phase's declared requirements.
// All checks run even after the first failure, so a retry prompt carries
// the complete picture.
func (s *ComplianceServiceImpl) Verify(ctx context.Context, req primary.VerifyRequest) (*models.ComplianceResult, error) {
	result := &models.ComplianceResult{}

	if err := s.verifyGates(ctx, req, result); err != nil {
		return nil, err
	}
	s.verifyCollaborators(req, result)
	if err := s.verifyNotes(ctx, req, result); err != nil {
		return nil, err
	}

	result.Passed = len(result.Issues) == 0
	return result, nil
}

func (s *ComplianceServiceImpl) verifyGates(ctx context.Context, req primary.VerifyRequest, result *models.ComplianceResult) error {
	for _, gate := range req.Phase.Gates {
		outcome, err := s.gates.Run(ctx, secondary.GateSpec{
			Name:      gate.Name,
			Command:   gate.Command,
			Kind:      gate.Kind,
			Criterion: gate.Criterion,
			WorkDir:   req.WorkDir,
			Timeout:   s.gateTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to run gate %s: %w", gate.Name, err)
		}

		result.GatesRun++
		if outcome.Passed {
			result.GatesPassed++
			continue
		}

		detail := fmt.Sprintf("exit code %d", outcome.ExitCode)
		if outcome.TimedOut {
			detail = "timed out"
		} else if gate.Kind == models.GateOutputMatch {
			detail = fmt.Sprintf("output did not contain %q", gate.Criterion)
		}
		result.Issues = append(result.Issues, models.ComplianceIssue{
			Kind:    "gate",
			Subject: gate.Name,
			Detail:  detail,
		})
	}

	return nil
}

func (s *ComplianceServiceImpl) verifyCollaborators(req primary.VerifyRequest, result *models.ComplianceResult) {
	seen := make(map[string]bool, len(req.CollaboratorsSeen))
	for _, c := range req.CollaboratorsSeen {
		seen[strings.ToLower(c)] = true
	}

	for _, required := range req.Phase.RequiredCollaborators {
		if !seen[strings.ToLower(required)] {
			result.Issues = append(result.Issues, models.ComplianceIssue{
				Kind:    "collaborator",
				Subject: required,
				Detail:  "never invoked during the session",
			})
		}
	}
}

func (s *ComplianceServiceImpl) verifyNotes(ctx context.Context, req primary.VerifyRequest, result *models.ComplianceResult) error {
	if req.Phase.NotesOutput == "" {
		return nil
	}

	ok, err := s.workspace.FileNonEmpty(ctx, req.Phase.NotesOutput)
	if err != nil {
		return fmt.Errorf("failed to check notes artifact: %w", err)
	}
	if !ok {
		result.Issues = append(result.Issues, models.ComplianceIssue{
			Kind:    "notes",
			Subject: req.Phase.NotesOutput,
			Detail:  "missing or empty",
		})
	}

	return nil
}

// Ensure ComplianceServiceImpl implements the interface.
var _ primary.ComplianceService = (*ComplianceServiceImpl)(nil)
