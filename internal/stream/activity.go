package stream

import "strings"

// Activity accumulates what a worker session actually did, for reporting
// and for the required-collaborator compliance check.
type Activity struct {
	SessionID   string
	Model       string
	ToolUses    []ToolUse
	Result      *ResultEvent
	EventCount  int
	UnknownSeen int
}

// Observe folds one event into the activity record.
func (a *Activity) Observe(ev *Event) {
	if ev == nil {
		return
	}
	a.EventCount++
	switch ev.Type {
	case EventSystemInit:
		a.SessionID = ev.SystemInit.SessionID
		a.Model = ev.SystemInit.Model
	case EventAssistant:
		a.ToolUses = append(a.ToolUses, ev.Assistant.ToolUses...)
	case EventResult:
		a.Result = ev.Result
		if a.SessionID == "" {
			a.SessionID = ev.Result.SessionID
		}
	case EventUnknown:
		a.UnknownSeen++
	}
}

// Invoked reports whether the named collaborator was observed during the
// session. Matching is case-insensitive.
func (a *Activity) Invoked(collaborator string) bool {
	for _, use := range a.ToolUses {
		if strings.EqualFold(use.Collaborator, collaborator) {
			return true
		}
	}
	return false
}

// Collaborators returns the distinct collaborator names observed, in
// first-seen order.
func (a *Activity) Collaborators() []string {
	seen := make(map[string]bool)
	var names []string
	for _, use := range a.ToolUses {
		key := strings.ToLower(use.Collaborator)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, use.Collaborator)
	}
	return names
}
