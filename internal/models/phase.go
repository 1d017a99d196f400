package models

// PlanDocument is the parsed master plan: an ordered list of phase
// references taken from the master file's Phases table.
type PlanDocument struct {
	Name   string
	Path   string
	Phases []PhaseRef
}

// PhaseRef is one row of the master plan's Phases table.
type PhaseRef struct {
	ID             string
	Title          string
	File           string // phase file path, relative to the master plan
	DeclaredStatus string
}

// Declared status constants for master plan rows.
const (
	DeclaredPending   = "Pending"
	DeclaredCompleted = "Completed"
	DeclaredBlocked   = "Blocked"
	DeclaredFailed    = "Failed"
)

// ValidDeclaredStatus reports whether s is a recognized master-plan status.
func ValidDeclaredStatus(s string) bool {
	switch s {
	case DeclaredPending, DeclaredCompleted, DeclaredBlocked, DeclaredFailed:
		return true
	}
	return false
}

// Phase is a fully parsed phase file.
type Phase struct {
	ID                    string
	Title                 string
	Path                  string
	DependsOn             []string
	Gates                 []Gate
	RequiredCollaborators []string
	NotesOutput           string
	ProcessSteps          []string
}

// Gate kinds.
const (
	GateExitZero    = "exit-code-zero"
	GateOutputMatch = "output-match"
)

// Gate is a blocking validation command. All gates of a phase must pass
// before the phase can be marked completed.
type Gate struct {
	Name      string
	Command   string
	Kind      string // GateExitZero or GateOutputMatch
	Criterion string // match text for GateOutputMatch, informational otherwise
}
