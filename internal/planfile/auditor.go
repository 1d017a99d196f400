package planfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/baton/internal/graph"
	"github.com/example/baton/internal/models"
)

// Auditor validates plan structure deterministically. Audits are total:
// every issue is collected in one pass rather than stopping at the first.
type Auditor struct{}

// NewAuditor creates an Auditor.
func NewAuditor() *Auditor {
	return &Auditor{}
}

// Audit runs all checks on the master plan at masterPath.
func (a *Auditor) Audit(masterPath string) *models.AuditResult {
	issues := []models.AuditIssue{}

	master, err := ParseMaster(masterPath)
	if err != nil {
		issue := models.AuditIssue{
			Severity:   models.SeverityError,
			Code:       models.CodeMasterParseError,
			Message:    fmt.Sprintf("Failed to parse master plan: %v", err),
			Location:   masterPath,
			Suggestion: "Check the master plan format. It needs a '## Phases' table with columns: Phase, Title, Focus, Risk, Status",
		}
		if errors.Is(err, os.ErrNotExist) {
			issue.Code = models.CodeMasterNotFound
			issue.Message = fmt.Sprintf("Master plan not found: %s", masterPath)
			issue.Suggestion = "Create a master plan file with a '## Phases' table listing all phase files"
		}
		issues = append(issues, issue)
		return a.result(masterPath, 0, 0, 0, issues)
	}

	if len(master.Phases) == 0 {
		issues = append(issues, models.AuditIssue{
			Severity:   models.SeverityError,
			Code:       models.CodeNoPhases,
			Message:    "Master plan has no phases defined",
			Location:   masterPath,
			Suggestion: "Add rows to the '## Phases' table, one per phase file: | 1 | [Title](phase-1.md) | focus | risk | Pending |",
		})
	}

	issues = append(issues, checkDuplicateIDs(master)...)

	baseDir := filepath.Dir(masterPath)
	phasesValid := 0
	gatesTotal := 0
	var parsed []models.Phase

	for _, ref := range master.Phases {
		phasePath := filepath.Join(baseDir, ref.File)
		phaseIssues := []models.AuditIssue{}

		if _, err := os.Stat(phasePath); err != nil {
			issues = append(issues, models.AuditIssue{
				Severity:   models.SeverityError,
				Code:       models.CodePhaseNotFound,
				Message:    fmt.Sprintf("Phase file not found: %s", ref.File),
				Location:   phasePath,
				Suggestion: fmt.Sprintf("Create '%s' or update the master plan row for phase %s", ref.File, ref.ID),
			})
			continue
		}

		phase, err := ParsePhase(phasePath, ref.ID)
		if err != nil {
			issues = append(issues, models.AuditIssue{
				Severity:   models.SeverityError,
				Code:       models.CodePhaseParseError,
				Message:    fmt.Sprintf("Failed to parse phase: %v", err),
				Location:   phasePath,
				Suggestion: "Check the phase file format. It needs '## Gates' and '## Process Wrapper' sections",
			})
			continue
		}
		parsed = append(parsed, *phase)

		phaseIssues = append(phaseIssues, checkGates(phase)...)
		phaseIssues = append(phaseIssues, checkNotesOutput(phase)...)
		issues = append(issues, phaseIssues...)

		gatesTotal += len(phase.Gates)
		if !hasError(phaseIssues) {
			phasesValid++
		}
	}

	issues = append(issues, checkDependencies(parsed)...)

	return a.result(master.Name, len(master.Phases), phasesValid, gatesTotal, issues)
}

func (a *Auditor) result(name string, found, valid, gates int, issues []models.AuditIssue) *models.AuditResult {
	errorCount := 0
	warnings := 0
	for _, i := range issues {
		switch i.Severity {
		case models.SeverityError:
			errorCount++
		case models.SeverityWarning:
			warnings++
		}
	}
	return &models.AuditResult{
		Passed: errorCount == 0,
		Issues: issues,
		Summary: models.AuditSummary{
			MasterPlan:  name,
			PhasesFound: found,
			PhasesValid: valid,
			GatesTotal:  gates,
			Errors:      errorCount,
			Warnings:    warnings,
		},
	}
}

func checkDuplicateIDs(master *models.PlanDocument) []models.AuditIssue {
	var issues []models.AuditIssue
	seen := make(map[string]bool)
	for _, ref := range master.Phases {
		if seen[ref.ID] {
			issues = append(issues, models.AuditIssue{
				Severity:   models.SeverityError,
				Code:       models.CodeDuplicatePhase,
				Message:    fmt.Sprintf("Phase id %s appears more than once in the master plan", ref.ID),
				Location:   master.Path,
				Suggestion: "Give every row in the Phases table a unique id",
			})
		}
		seen[ref.ID] = true
	}
	return issues
}

func checkGates(phase *models.Phase) []models.AuditIssue {
	if len(phase.Gates) > 0 {
		return nil
	}
	return []models.AuditIssue{{
		Severity:   models.SeverityError,
		Code:       models.CodeMissingGates,
		Message:    fmt.Sprintf("Phase %s has no gates defined (required for independent verification)", phase.ID),
		Location:   phase.Path,
		Suggestion: "Add a '## Gates' section with validation commands, e.g.:\n- vet: `go vet ./...` — exit 0\n- tests: `go test ./...` — exit 0",
	}}
}

func checkNotesOutput(phase *models.Phase) []models.AuditIssue {
	if phase.NotesOutput != "" {
		return nil
	}
	return []models.AuditIssue{{
		Severity:   models.SeverityWarning,
		Code:       models.CodeNoNotesOutput,
		Message:    fmt.Sprintf("Phase %s has no notes output path specified", phase.ID),
		Location:   phase.Path,
		Suggestion: "Add '- [ ] Write notes to: `notes/NOTES_phase_" + phase.ID + ".md`' to the Process Wrapper section",
	}}
}

// checkDependencies reports dangling references and cycles. A phase that
// depends on an id missing from the master table makes the plan invalid.
func checkDependencies(phases []models.Phase) []models.AuditIssue {
	var issues []models.AuditIssue

	known := make(map[string]bool, len(phases))
	for _, p := range phases {
		known[p.ID] = true
	}

	ids := make([]string, 0, len(phases))
	deps := make(map[string][]string, len(phases))
	for _, p := range phases {
		ids = append(ids, p.ID)
		deps[p.ID] = p.DependsOn
		for _, dep := range p.DependsOn {
			if !known[dep] {
				issues = append(issues, models.AuditIssue{
					Severity:   models.SeverityError,
					Code:       models.CodeMissingDependency,
					Message:    fmt.Sprintf("Phase %s depends on non-existent phase %s", p.ID, dep),
					Location:   p.Path,
					Suggestion: fmt.Sprintf("Add phase %s to the master plan, or remove the dependency from phase %s", dep, p.ID),
				})
			}
		}
	}

	if cycle := graph.FindCycle(ids, deps); cycle != nil {
		cycleStr := strings.Join(cycle, " -> ")
		issues = append(issues, models.AuditIssue{
			Severity:   models.SeverityError,
			Code:       models.CodeCircularDependency,
			Message:    fmt.Sprintf("Circular dependency detected: %s", cycleStr),
			Suggestion: fmt.Sprintf("Break the cycle by removing one of the dependencies in: %s", cycleStr),
		})
	}

	return issues
}

func hasError(issues []models.AuditIssue) bool {
	for _, i := range issues {
		if i.Severity == models.SeverityError {
			return true
		}
	}
	return false
}

// Load parses and validates a full plan for execution. It fails with the
// audit's error issues when the plan is not runnable.
func Load(masterPath string) (*models.PlanDocument, []models.Phase, error) {
	result := NewAuditor().Audit(masterPath)
	if !result.Passed {
		var lines []string
		for _, issue := range result.Issues {
			if issue.Severity == models.SeverityError {
				lines = append(lines, fmt.Sprintf("%s: %s", issue.Code, issue.Message))
			}
		}
		return nil, nil, fmt.Errorf("plan is not runnable:\n  %s", strings.Join(lines, "\n  "))
	}

	master, err := ParseMaster(masterPath)
	if err != nil {
		return nil, nil, err
	}

	baseDir := filepath.Dir(masterPath)
	phases := make([]models.Phase, 0, len(master.Phases))
	for _, ref := range master.Phases {
		phase, err := ParsePhase(filepath.Join(baseDir, ref.File), ref.ID)
		if err != nil {
			return nil, nil, err
		}
		phase.Title = ref.Title
		phases = append(phases, *phase)
	}
	return master, phases, nil
}
