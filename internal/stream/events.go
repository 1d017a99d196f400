// Package stream consumes the worker's newline-delimited JSON event
// protocol. The format is externally owned and evolves, so parsing is
// best-effort per line: anything unrecognized becomes an Unknown event and
// the stream keeps going. Nothing in here decides phase outcome — only the
// completion-signal side channel does that.
package stream

// EventType tags the variant carried by an Event.
type EventType string

const (
	EventSystemInit   EventType = "system-init"
	EventAssistant    EventType = "assistant-message"
	EventContentDelta EventType = "content-delta"
	EventToolResult   EventType = "tool-result"
	EventResult       EventType = "result"
	EventUnknown      EventType = "unknown"
)

// Event is one record from the worker's event stream. Exactly one of the
// typed fields matching Type is set; Unknown events carry only Raw.
type Event struct {
	Type EventType
	Line int    // 1-based line number in the stream
	Raw  string // original line, always retained

	SystemInit *SystemInitEvent
	Assistant  *AssistantEvent
	Delta      *ContentDeltaEvent
	ToolResult *ToolResultEvent
	Result     *ResultEvent
}

// SystemInitEvent announces the worker session.
type SystemInitEvent struct {
	SessionID string
	Model     string
	Tools     []string
}

// ToolUse is a tool invocation embedded in an assistant message. For the
// Task tool the collaborator is the subagent type; for every other tool it
// is the tool's own name.
type ToolUse struct {
	ID           string
	Name         string
	Collaborator string
}

// AssistantEvent is a (possibly partial) assistant turn.
type AssistantEvent struct {
	Text     string
	ToolUses []ToolUse
}

// ContentDeltaEvent is an incremental text chunk.
type ContentDeltaEvent struct {
	Text string
}

// ToolResultEvent reports the outcome of a prior tool invocation.
type ToolResultEvent struct {
	ToolUseID string
	IsError   bool
}

// ResultEvent is the terminal record with cumulative session usage.
type ResultEvent struct {
	Success      bool
	Subtype      string
	SessionID    string
	NumTurns     int
	DurationMS   int64
	TotalCostUSD float64
	InputTokens  int64
	OutputTokens int64
	ResultText   string
}
