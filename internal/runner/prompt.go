package runner

import (
	"fmt"
	"strings"

	"github.com/example/baton/internal/models"
)

// PhasePrompt builds the instruction handed to a fresh worker session.
// The worker gets the phase file as its source of truth and the signal
// commands as its only way to report back.
func PhasePrompt(runID string, phase *models.Phase) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are executing phase %s (%s) of a larger plan.\n\n", phase.ID, phase.Title)
	fmt.Fprintf(&b, "Read the phase document at %s and carry out its process steps in order.\n", phase.Path)

	if len(phase.RequiredCollaborators) > 0 {
		fmt.Fprintf(&b, "\nThe phase document requires you to delegate to these subagents: %s. Use the Task tool with the named subagent type for each.\n",
			strings.Join(phase.RequiredCollaborators, ", "))
	}

	if phase.NotesOutput != "" {
		fmt.Fprintf(&b, "\nWrite your implementation notes to %s before finishing. The file must not be empty.\n", phase.NotesOutput)
	}

	if len(phase.Gates) > 0 {
		b.WriteString("\nBefore you declare the phase complete, make sure these verification gates pass:\n")
		for _, gate := range phase.Gates {
			fmt.Fprintf(&b, "- %s: `%s`\n", gate.Name, gate.Command)
		}
		b.WriteString("They will be re-run independently after you finish.\n")
	}

	fmt.Fprintf(&b, "\nWhen you are done, report the outcome with exactly one of:\n")
	fmt.Fprintf(&b, "- baton done --run %s --phase %s --status completed\n", runID, phase.ID)
	fmt.Fprintf(&b, "- baton done --run %s --phase %s --status blocked --reason \"<why>\"\n", runID, phase.ID)
	fmt.Fprintf(&b, "- baton done --run %s --phase %s --status failed --reason \"<why>\"\n", runID, phase.ID)
	fmt.Fprintf(&b, "\nYou can report intermediate progress at any time with:\n")
	fmt.Fprintf(&b, "- baton progress --run %s --phase %s --step \"<what just happened>\"\n", runID, phase.ID)
	b.WriteString("\nDeclare blocked only for obstacles you cannot resolve yourself, and include what a human would need to unblock you.\n")

	return b.String()
}

// RemediationPrompt builds the instruction for a retry attempt after
// compliance found problems with the previous one. The new session has
// no memory of the old one, so the prompt carries the findings.
func RemediationPrompt(runID string, phase *models.Phase, attempt int, issues []models.ComplianceIssue) string {
	var b strings.Builder

	fmt.Fprintf(&b, "A previous session attempted phase %s (%s) and declared it complete, but independent verification found problems.\n\n",
		phase.ID, phase.Title)
	b.WriteString("Findings:\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", issue.Kind, issue.Subject, issue.Detail)
	}

	fmt.Fprintf(&b, "\nThis is attempt %d. Read the phase document at %s, fix the problems above, and complete anything the previous session left unfinished.\n",
		attempt, phase.Path)

	if phase.NotesOutput != "" {
		fmt.Fprintf(&b, "Update the notes at %s with what you changed.\n", phase.NotesOutput)
	}

	fmt.Fprintf(&b, "\nWhen you are done, report the outcome with:\n")
	fmt.Fprintf(&b, "- baton done --run %s --phase %s --status completed\n", runID, phase.ID)
	fmt.Fprintf(&b, "or declare blocked/failed with a reason if the findings cannot be fixed.\n")

	return b.String()
}
