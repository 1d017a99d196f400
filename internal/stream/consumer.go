package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// maxLineBytes bounds a single event record. Assistant turns can carry
// whole file contents, so the default bufio limit is far too small.
const maxLineBytes = 1024 * 1024

// Consumer turns a worker's stdout into a sequence of Events. It is
// restartable per line: a malformed record never poisons the records
// after it.
type Consumer struct {
	scanner *bufio.Scanner
	line    int
}

// NewConsumer wraps r, which must produce newline-delimited JSON records.
func NewConsumer(r io.Reader) *Consumer {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Consumer{scanner: scanner}
}

// Next returns the next event. Blank lines are skipped. It returns io.EOF
// when the stream ends and the scanner's error for underlying read
// failures; parse failures are never errors.
func (c *Consumer) Next() (*Event, error) {
	for c.scanner.Scan() {
		c.line++
		text := strings.TrimSpace(c.scanner.Text())
		if text == "" {
			continue
		}
		return parseLine(text, c.line), nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Wire shapes. Only the fields the engine consumes are declared; the
// upstream protocol carries much more.

type envelope struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

type systemRecord struct {
	SessionID string   `json:"session_id"`
	Model     string   `json:"model"`
	Tools     []string `json:"tools"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	IsError   bool            `json:"is_error"`
}

type messageRecord struct {
	Message struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

type deltaRecord struct {
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type usageRecord struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type resultRecord struct {
	IsError      bool        `json:"is_error"`
	SessionID    string      `json:"session_id"`
	NumTurns     int         `json:"num_turns"`
	DurationMS   int64       `json:"duration_ms"`
	TotalCostUSD float64     `json:"total_cost_usd"`
	Usage        usageRecord `json:"usage"`
	Result       string      `json:"result"`
}

func parseLine(text string, line int) *Event {
	ev := &Event{Type: EventUnknown, Line: line, Raw: text}

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return ev
	}

	switch env.Type {
	case "system":
		if env.Subtype != "init" {
			return ev
		}
		var rec systemRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return ev
		}
		ev.Type = EventSystemInit
		ev.SystemInit = &SystemInitEvent{
			SessionID: rec.SessionID,
			Model:     rec.Model,
			Tools:     rec.Tools,
		}

	case "assistant":
		var rec messageRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return ev
		}
		ev.Type = EventAssistant
		ev.Assistant = parseAssistant(rec.Message.Content)

	case "content_block_delta":
		var rec deltaRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return ev
		}
		ev.Type = EventContentDelta
		ev.Delta = &ContentDeltaEvent{Text: rec.Delta.Text}

	case "user":
		var rec messageRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return ev
		}
		for _, block := range rec.Message.Content {
			if block.Type == "tool_result" {
				ev.Type = EventToolResult
				ev.ToolResult = &ToolResultEvent{
					ToolUseID: block.ToolUseID,
					IsError:   block.IsError,
				}
				break
			}
		}

	case "result":
		var rec resultRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return ev
		}
		ev.Type = EventResult
		ev.Result = &ResultEvent{
			Success:      !rec.IsError,
			Subtype:      env.Subtype,
			SessionID:    rec.SessionID,
			NumTurns:     rec.NumTurns,
			DurationMS:   rec.DurationMS,
			TotalCostUSD: rec.TotalCostUSD,
			InputTokens:  rec.Usage.InputTokens,
			OutputTokens: rec.Usage.OutputTokens,
			ResultText:   rec.Result,
		}
	}

	return ev
}

func parseAssistant(blocks []contentBlock) *AssistantEvent {
	out := &AssistantEvent{}
	var text strings.Builder
	for _, block := range blocks {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			out.ToolUses = append(out.ToolUses, ToolUse{
				ID:           block.ID,
				Name:         block.Name,
				Collaborator: collaboratorFor(block.Name, block.Input),
			})
		}
	}
	out.Text = text.String()
	return out
}

// collaboratorFor resolves the collaborator name for a tool invocation.
// Task-tool invocations delegate to a named subagent; every other tool
// counts under its own name.
func collaboratorFor(toolName string, input json.RawMessage) string {
	if strings.EqualFold(toolName, "Task") && len(input) > 0 {
		var in struct {
			SubagentType string `json:"subagent_type"`
		}
		if err := json.Unmarshal(input, &in); err == nil && in.SubagentType != "" {
			return in.SubagentType
		}
	}
	return toolName
}
