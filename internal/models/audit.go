package models

// Audit severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Audit issue codes.
const (
	CodeMasterNotFound     = "MASTER_NOT_FOUND"
	CodeMasterParseError   = "MASTER_PARSE_ERROR"
	CodeNoPhases           = "NO_PHASES"
	CodeDuplicatePhase     = "DUPLICATE_PHASE"
	CodePhaseNotFound      = "PHASE_NOT_FOUND"
	CodePhaseParseError    = "PHASE_PARSE_ERROR"
	CodeMissingGates       = "MISSING_GATES"
	CodeNoNotesOutput      = "NO_NOTES_OUTPUT"
	CodeMissingDependency  = "MISSING_DEPENDENCY"
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"
)

// AuditIssue is a single structural problem found in a plan. Issues are
// regenerated on every audit and never persisted.
type AuditIssue struct {
	Severity   string `json:"severity"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Location   string `json:"location,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// AuditSummary aggregates counts for one audit pass.
type AuditSummary struct {
	MasterPlan  string `json:"master_plan"`
	PhasesFound int    `json:"phases_found"`
	PhasesValid int    `json:"phases_valid"`
	GatesTotal  int    `json:"gates_total"`
	Errors      int    `json:"errors"`
	Warnings    int    `json:"warnings"`
}

// AuditResult is the outcome of a full plan audit.
type AuditResult struct {
	Passed  bool         `json:"passed"`
	Summary AuditSummary `json:"summary"`
	Issues  []AuditIssue `json:"issues"`
}

// ErrorCount returns the number of error-severity issues.
func (r *AuditResult) ErrorCount() int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			n++
		}
	}
	return n
}
