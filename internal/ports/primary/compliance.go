package primary

import (
	"context"

	"github.com/example/baton/internal/models"
)

// ComplianceService defines the primary port for independent phase
// verification. The worker's word is never taken for granted; every
// completion claim is checked against the phase's declared requirements.
type ComplianceService interface {
	// Verify checks a completed-claim against gates, collaborator
	// requirements, and notes artifacts.
	Verify(ctx context.Context, req VerifyRequest) (*models.ComplianceResult, error)
}

// VerifyRequest contains parameters for verifying a phase attempt.
type VerifyRequest struct {
	Phase *models.Phase
	// CollaboratorsSeen is what the worker's event stream actually showed.
	CollaboratorsSeen []string
	// WorkDir is the base for gate commands and artifact paths.
	WorkDir string
}
