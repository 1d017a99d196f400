package planfile

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/example/baton/internal/models"
)

var (
	dependsPattern   = regexp.MustCompile(`(?i)\*\*depends\s+on:?\*\*:?\s*(.+)`)
	gateBulletPrefix = regexp.MustCompile(`^[-*]\s+(.+)$`)
	commandPattern   = regexp.MustCompile("`([^`]+)`")
	checklistPattern = regexp.MustCompile(`^- \[[ xX]\]\s+(.+)$`)
	notesPattern     = regexp.MustCompile("(?i)write\\s+notes\\s+to:?\\s*`([^`]+)`")
	outputMatchExpr  = regexp.MustCompile(`(?i)output\s+contains\s+"([^"]+)"`)

	// Collaborator markers, in either the bold-marker or Task-tool form.
	agentMarkerPattern  = regexp.MustCompile(`\*\*AGENT:([a-zA-Z0-9_-]+)\*\*`)
	subagentYAMLPattern = regexp.MustCompile(`(?i)subagent_type:\s*([a-zA-Z0-9_-]+)`)
	subagentJSONPattern = regexp.MustCompile(`(?i)subagent_type\s*[=:]\s*["']([a-zA-Z0-9_-]+)["']`)
)

// ParsePhase reads one phase file. The Gates section, the Process Wrapper
// checklist, the notes output path, and any required collaborator markers
// are extracted; everything else in the document is worker-facing prose.
func ParsePhase(path, id string) (*models.Phase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phase file: %w", err)
	}
	content := string(data)

	phase := &models.Phase{
		ID:    id,
		Path:  path,
		Title: phaseTitle(content, id),
	}

	if m := dependsPattern.FindStringSubmatch(content); m != nil {
		phase.DependsOn = parseDependsList(m[1])
	}

	section := ""
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			section = strings.ToLower(strings.TrimSpace(trimmed[3:]))
			continue
		}

		switch section {
		case "gates":
			if m := gateBulletPrefix.FindStringSubmatch(trimmed); m != nil {
				gate, err := parseGateBullet(m[1])
				if err != nil {
					return nil, fmt.Errorf("phase %s: %w", id, err)
				}
				phase.Gates = append(phase.Gates, gate)
			}
		case "process wrapper":
			if m := checklistPattern.FindStringSubmatch(trimmed); m != nil {
				phase.ProcessSteps = append(phase.ProcessSteps, m[1])
			}
		}
	}

	if m := notesPattern.FindStringSubmatch(content); m != nil {
		phase.NotesOutput = strings.TrimSpace(m[1])
	}

	phase.RequiredCollaborators = collaboratorRefs(content)

	return phase, nil
}

// parseGateBullet parses a single gate line of the form
//
//	name: `command` — criterion
//
// The criterion is optional; when it asserts on output ("output contains
// \"ok\"") the gate becomes an output-match gate, otherwise the command's
// exit code decides.
func parseGateBullet(text string) (models.Gate, error) {
	colon := strings.Index(text, ":")
	if colon <= 0 {
		return models.Gate{}, fmt.Errorf("gate %q: expected name: `command` — criterion", text)
	}
	name := strings.TrimSpace(text[:colon])
	rest := text[colon+1:]

	m := commandPattern.FindStringSubmatchIndex(rest)
	if m == nil {
		return models.Gate{}, fmt.Errorf("gate %q: command must be in backticks", name)
	}
	command := rest[m[2]:m[3]]

	criterion := strings.TrimSpace(rest[m[1]:])
	criterion = strings.TrimLeft(criterion, "—-– ")
	criterion = strings.TrimSpace(criterion)

	gate := models.Gate{
		Name:      name,
		Command:   strings.TrimSpace(command),
		Kind:      models.GateExitZero,
		Criterion: criterion,
	}
	if om := outputMatchExpr.FindStringSubmatch(criterion); om != nil {
		gate.Kind = models.GateOutputMatch
		gate.Criterion = om[1]
	}
	return gate, nil
}

// parseDependsList splits a Depends On value ("1, 2" or "none") into ids.
func parseDependsList(value string) []string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "`", ""))
	if value == "" || strings.EqualFold(value, "none") {
		return nil
	}
	var deps []string
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
		part = strings.TrimSpace(part)
		if part == "" || strings.EqualFold(part, "none") {
			continue
		}
		deps = append(deps, part)
	}
	return deps
}

// collaboratorRefs collects every collaborator referenced anywhere in the
// phase file, deduplicated and sorted.
func collaboratorRefs(content string) []string {
	seen := make(map[string]bool)
	for _, pattern := range []*regexp.Regexp{agentMarkerPattern, subagentYAMLPattern, subagentJSONPattern} {
		for _, m := range pattern.FindAllStringSubmatch(content, -1) {
			seen[m[1]] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

func phaseTitle(content, id string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			title := strings.TrimSpace(trimmed[2:])
			// Strip a "Phase N:" prefix when present.
			if idx := strings.Index(title, ":"); idx > 0 {
				prefix := strings.ToLower(title[:idx])
				if strings.HasPrefix(prefix, "phase") {
					return strings.TrimSpace(title[idx+1:])
				}
			}
			return title
		}
	}
	return "Phase " + id
}
