package streampipeline

import (
	"encoding/json"
	"strings"

	"github.com/aiproto/runtime/protocol"
)

// toolCallBuffer accumulates one tool call's fragments across
// PartialToolCallDelta events, keyed by index. Owned exclusively by a single
// pipeline run, never shared, per spec.md §9's accumulator design note.
type toolCallBuffer struct {
	id        string
	name      string
	argsBuf   strings.Builder
}

// ToolCallAccumulator assembles PartialToolCallDelta fragments into
// completed ToolCallCompleted events, emitted when a terminating signal
// arrives.
type ToolCallAccumulator struct {
	buffers map[int]*toolCallBuffer
	order   []int
}

// NewToolCallAccumulator returns an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{buffers: make(map[int]*toolCallBuffer)}
}

// Absorb updates the buffer for event.ToolCallIndex. id/name are write-once
// (first non-empty value wins); arguments_fragment always appends.
func (a *ToolCallAccumulator) Absorb(event protocol.StreamingEvent) {
	buf, ok := a.buffers[event.ToolCallIndex]
	if !ok {
		buf = &toolCallBuffer{}
		a.buffers[event.ToolCallIndex] = buf
		a.order = append(a.order, event.ToolCallIndex)
	}
	if buf.id == "" && event.ToolCallID != "" {
		buf.id = event.ToolCallID
	}
	if buf.name == "" && event.ToolCallName != "" {
		buf.name = event.ToolCallName
	}
	if event.ArgumentsFragment != "" {
		buf.argsBuf.WriteString(event.ArgumentsFragment)
	}
}

// IsTerminatingFinishReason reports whether finishReason should trigger
// tool-call finalization, per spec.md §4.4.
func IsTerminatingFinishReason(finishReason string) bool {
	return finishReason == "tool_calls" || finishReason == "stop"
}

// Finalize emits one ToolCallCompleted event per buffered index whose
// argument buffer parses as valid JSON, in index-arrival order, and one
// Error event (code invalid_request) for each buffer whose arguments never
// became valid JSON. Buffers are cleared afterward, so a second Finalize
// call (the pipeline may see two terminating signals, e.g. a finish_reason
// followed by the [DONE] sentinel) yields nothing.
func (a *ToolCallAccumulator) Finalize() []protocol.StreamingEvent {
	events := make([]protocol.StreamingEvent, 0, len(a.order))
	order := a.order
	a.order = nil
	for _, index := range order {
		buf := a.buffers[index]
		raw := buf.argsBuf.String()
		if raw == "" {
			raw = "{}"
		}
		if !json.Valid([]byte(raw)) {
			events = append(events, protocol.StreamingEvent{
				Kind:         protocol.EventError,
				ErrorCode:    "invalid_request",
				ErrorMessage: "tool call arguments did not parse as valid JSON",
			})
			delete(a.buffers, index)
			continue
		}
		events = append(events, protocol.StreamingEvent{
			Kind:          protocol.EventToolCallCompleted,
			ToolCallIndex: index,
			ToolCallID:    buf.id,
			ToolCallName:  buf.name,
			Arguments:     json.RawMessage(raw),
		})
		delete(a.buffers, index)
	}
	return events
}
