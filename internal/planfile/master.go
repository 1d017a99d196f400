// Package planfile parses and audits master plan and phase markdown files.
// Parsing is pure: nothing here writes state, so the auditor can be re-run
// on demand and always reflects the documents as they are on disk.
package planfile

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/example/baton/internal/models"
)

// titleLinkPattern matches a markdown link cell: [Title](phase-1.md)
var titleLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// ParseMaster reads a master plan file and extracts the Phases table.
// The returned PhaseRef file paths are as written in the document,
// relative to the master plan's directory.
func ParseMaster(path string) (*models.PlanDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read master plan: %w", err)
	}

	doc := &models.PlanDocument{
		Name: planName(string(data), path),
		Path: path,
	}

	lines := strings.Split(string(data), "\n")
	inPhases := false
	headerSeen := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "## ") {
			inPhases = strings.EqualFold(strings.TrimSpace(trimmed[3:]), "phases")
			headerSeen = false
			continue
		}
		if !inPhases || !strings.HasPrefix(trimmed, "|") {
			continue
		}

		cells := splitTableRow(trimmed)
		if len(cells) == 0 {
			continue
		}
		if !headerSeen {
			// First table row is the column header.
			headerSeen = true
			continue
		}
		if isSeparatorRow(cells) {
			continue
		}

		ref, err := parsePhaseRow(cells)
		if err != nil {
			return nil, fmt.Errorf("phases table line %d: %w", i+1, err)
		}
		doc.Phases = append(doc.Phases, ref)
	}

	return doc, nil
}

// parsePhaseRow turns one data row of the Phases table into a PhaseRef.
// Expected columns: id, title+link, focus, risk, status. Focus and risk
// are informational and ignored here.
func parsePhaseRow(cells []string) (models.PhaseRef, error) {
	if len(cells) < 3 {
		return models.PhaseRef{}, fmt.Errorf("expected at least 3 columns, got %d", len(cells))
	}

	id := strings.TrimSpace(cells[0])
	if id == "" {
		return models.PhaseRef{}, fmt.Errorf("empty phase id")
	}

	m := titleLinkPattern.FindStringSubmatch(cells[1])
	if m == nil {
		return models.PhaseRef{}, fmt.Errorf("phase %s: title cell must link to a phase file, e.g. [Title](phase-%s.md)", id, id)
	}

	status := strings.TrimSpace(cells[len(cells)-1])
	if status == "" {
		return models.PhaseRef{}, fmt.Errorf("phase %s: empty status", id)
	}
	// Normalize casing: "pending" and "Pending" are both accepted.
	status = strings.ToUpper(status[:1]) + strings.ToLower(status[1:])
	if !models.ValidDeclaredStatus(status) {
		return models.PhaseRef{}, fmt.Errorf("phase %s: unknown status %q", id, cells[len(cells)-1])
	}

	return models.PhaseRef{
		ID:             id,
		Title:          strings.TrimSpace(m[1]),
		File:           strings.TrimSpace(m[2]),
		DeclaredStatus: status,
	}, nil
}

// splitTableRow splits a markdown table row into trimmed cells,
// dropping the empty leading/trailing fields around the outer pipes.
func splitTableRow(line string) []string {
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return nil
	}
	cells := make([]string, 0, len(parts)-2)
	for _, p := range parts[1 : len(parts)-1] {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

// planName extracts the plan name from the first top-level heading,
// falling back to the file path.
func planName(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			name := strings.TrimSpace(trimmed[2:])
			name = strings.TrimPrefix(name, "Plan:")
			return strings.TrimSpace(name)
		}
	}
	return path
}
