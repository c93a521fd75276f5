package protocol

import (
	"encoding/json"
	"fmt"

	"meeting-minutes-service/internal/models"
)

// EventKind discriminates streaming event envelopes.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventMessageStart
	EventContentBlockStart
	EventContentBlockDelta
	EventContentBlockStop
	EventMessageStop
	EventMetadata
	EventException
	EventRedactContent
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventMessageStart:
		return "messageStart"
	case EventContentBlockStart:
		return "contentBlockStart"
	case EventContentBlockDelta:
		return "contentBlockDelta"
	case EventContentBlockStop:
		return "contentBlockStop"
	case EventMessageStop:
		return "messageStop"
	case EventMetadata:
		return "metadata"
	case EventException:
		return "exception"
	case EventRedactContent:
		return "redactContent"
	default:
		return "unknown"
	}
}

// ExceptionKinds are the named error conditions carried inside the stream.
var ExceptionKinds = []string{
	"internalServerException",
	"modelStreamErrorException",
	"serviceUnavailableException",
	"throttlingException",
	"validationException",
}

// ToolUseStart opens a tool-use block.
type ToolUseStart struct {
	ToolUseID string `json:"toolUseId,omitempty"`
	Name      string `json:"name"`
}

// BlockStart is the payload of contentBlockStart.
type BlockStart struct {
	Text    *string       `json:"text,omitempty"`
	ToolUse *ToolUseStart `json:"toolUse,omitempty"`
}

// ToolUseDelta carries a fragment of tool input JSON.
type ToolUseDelta struct {
	Input string `json:"input"`
}

// ReasoningDelta carries a fragment of model reasoning.
type ReasoningDelta struct {
	Text string `json:"text,omitempty"`
}

// BlockDelta is the payload of contentBlockDelta.
type BlockDelta struct {
	Text             *string         `json:"text,omitempty"`
	ToolUse          *ToolUseDelta   `json:"toolUse,omitempty"`
	ReasoningContent *ReasoningDelta `json:"reasoningContent,omitempty"`
}

// StreamMetrics is latency information reported with metadata.
type StreamMetrics struct {
	LatencyMs int64 `json:"latencyMs"`
}

// Metadata is token usage reported at the end of a response.
type Metadata struct {
	Usage   *models.Usage  `json:"usage,omitempty"`
	Metrics *StreamMetrics `json:"metrics,omitempty"`
}

// Exception is a named error condition.
type Exception struct {
	Name    string `json:"-"`
	Message string `json:"message,omitempty"`
}

// RedactContent replaces previously streamed content.
type RedactContent struct {
	RedactUserContentMessage      string `json:"redactUserContentMessage,omitempty"`
	RedactAssistantContentMessage string `json:"redactAssistantContentMessage,omitempty"`
}

// StreamEvent is one parsed envelope. Only the field matching Kind is set.
type StreamEvent struct {
	Kind      EventKind
	Start     *BlockStart
	Delta     *BlockDelta
	Metadata  *Metadata
	Exception *Exception
	Redact    *RedactContent
}

type envelope struct {
	Event map[string]json.RawMessage `json:"event"`
}

// ParseEvent parses one line of the stream: `{"event": {<kind>: {...}}}`.
// An envelope without a recognized kind yields EventUnknown and no error.
func ParseEvent(line []byte) (StreamEvent, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return StreamEvent{}, fmt.Errorf("parse event envelope: %w", err)
	}
	ev := env.Event
	if ev == nil {
		return StreamEvent{Kind: EventUnknown}, nil
	}

	if _, ok := present(ev, "messageStart"); ok {
		return StreamEvent{Kind: EventMessageStart}, nil
	}
	if raw, ok := present(ev, "contentBlockStart"); ok {
		var p struct {
			Start BlockStart `json:"start"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return StreamEvent{}, fmt.Errorf("parse contentBlockStart: %w", err)
		}
		return StreamEvent{Kind: EventContentBlockStart, Start: &p.Start}, nil
	}
	if raw, ok := present(ev, "contentBlockDelta"); ok {
		var p struct {
			Delta BlockDelta `json:"delta"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return StreamEvent{}, fmt.Errorf("parse contentBlockDelta: %w", err)
		}
		return StreamEvent{Kind: EventContentBlockDelta, Delta: &p.Delta}, nil
	}
	if _, ok := present(ev, "contentBlockStop"); ok {
		return StreamEvent{Kind: EventContentBlockStop}, nil
	}
	if _, ok := present(ev, "messageStop"); ok {
		return StreamEvent{Kind: EventMessageStop}, nil
	}
	if raw, ok := present(ev, "metadata"); ok {
		var m Metadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return StreamEvent{}, fmt.Errorf("parse metadata: %w", err)
		}
		return StreamEvent{Kind: EventMetadata, Metadata: &m}, nil
	}
	for _, name := range ExceptionKinds {
		raw, ok := present(ev, name)
		if !ok {
			continue
		}
		exc := Exception{Name: name}
		if err := json.Unmarshal(raw, &exc); err != nil {
			return StreamEvent{}, fmt.Errorf("parse %s: %w", name, err)
		}
		exc.Name = name
		return StreamEvent{Kind: EventException, Exception: &exc}, nil
	}
	if raw, ok := present(ev, "redactContent"); ok {
		var r RedactContent
		if err := json.Unmarshal(raw, &r); err != nil {
			return StreamEvent{}, fmt.Errorf("parse redactContent: %w", err)
		}
		return StreamEvent{Kind: EventRedactContent, Redact: &r}, nil
	}
	return StreamEvent{Kind: EventUnknown}, nil
}

func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}
