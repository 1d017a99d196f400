package primary

import (
	"context"

	"github.com/example/baton/internal/models"
)

// AuditService defines the primary port for plan validation.
type AuditService interface {
	// Audit validates a master plan and everything it references without
	// executing anything. The result carries every issue found.
	Audit(ctx context.Context, req AuditRequest) (*models.AuditResult, error)

	// Load audits and, if the plan is valid, parses it fully.
	Load(ctx context.Context, req AuditRequest) (*models.PlanDocument, []models.Phase, error)
}

// AuditRequest contains parameters for auditing a plan.
type AuditRequest struct {
	MasterPath string
}
