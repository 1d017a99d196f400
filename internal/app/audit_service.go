package app

import (
	"context"

	"github.com/example/baton/internal/models"
	"github.com/example/baton/internal/planfile"
	"github.com/example/baton/internal/ports/primary"
)

// AuditServiceImpl implements the AuditService interface.
type AuditServiceImpl struct {
	auditor *planfile.Auditor
}

// NewAuditService creates a new AuditService.
func NewAuditService() *AuditServiceImpl {
	return &AuditServiceImpl{
		auditor: planfile.NewAuditor(),
	}
}

// Audit validates a master plan and everything it references.
func (s *AuditServiceImpl) Audit(ctx context.Context, req primary.AuditRequest) (*models.AuditResult, error) {
	return s.auditor.Audit(req.MasterPath), nil
}

// Load audits and, if the plan is valid, parses it fully.
func (s *AuditServiceImpl) Load(ctx context.Context, req primary.AuditRequest) (*models.PlanDocument, []models.Phase, error) {
	return planfile.Load(req.MasterPath)
}

// Ensure AuditServiceImpl implements the interface.
var _ primary.AuditService = (*AuditServiceImpl)(nil)
