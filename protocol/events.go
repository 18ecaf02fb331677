package protocol

import "encoding/json"

// StreamEventKind discriminates the StreamingEvent variants named in
// spec.md §3. These string values are stable public API: they are exactly
// what appears in the `"type"` field of the serialized wire shape in
// spec.md §6 ("Unified event wire shape").
type StreamEventKind string

const (
	EventStreamStart          StreamEventKind = "StreamStart"
	EventPartialContentDelta  StreamEventKind = "PartialContentDelta"
	EventPartialToolCallDelta StreamEventKind = "PartialToolCallDelta"
	EventToolCallCompleted    StreamEventKind = "ToolCallCompleted"
	EventMetadata             StreamEventKind = "Metadata"
	EventStreamEnd            StreamEventKind = "StreamEnd"
	EventError                StreamEventKind = "Error"
)

// StreamingEvent is one delta in the uniform event stream produced by the
// streaming pipeline. Exactly one payload group is populated, selected by
// Kind. The type marshals with Kind under the "type" key so the wire shape
// matches spec.md §6 exactly (e.g. {"type":"PartialContentDelta","content":"..."}).
type StreamingEvent struct {
	Kind StreamEventKind

	// StreamStart
	Model string

	// PartialContentDelta
	Content string

	// PartialToolCallDelta / ToolCallCompleted
	ToolCallIndex     int
	ToolCallID        string
	ToolCallName      string
	ArgumentsFragment string          // PartialToolCallDelta only
	Arguments         json.RawMessage // ToolCallCompleted only

	// Metadata
	Usage map[string]interface{}

	// StreamEnd
	FinishReason string

	// Error
	ErrorCode    string
	ErrorMessage string
}

// wireEvent is the flat JSON shape StreamingEvent marshals to/from, matching
// spec.md §6's stable public wire format.
type wireEvent struct {
	Type              string          `json:"type"`
	Model             string          `json:"model,omitempty"`
	Content           string          `json:"content,omitempty"`
	Index             int             `json:"index,omitempty"`
	ID                string          `json:"id,omitempty"`
	Name              string          `json:"name,omitempty"`
	ArgumentsFragment string          `json:"arguments_fragment,omitempty"`
	Arguments         json.RawMessage `json:"arguments,omitempty"`
	Usage             map[string]interface{} `json:"usage,omitempty"`
	FinishReason      string          `json:"finish_reason,omitempty"`
	Code              string          `json:"code,omitempty"`
	Message           string          `json:"message,omitempty"`
}

// MarshalJSON renders the stable wire shape described in spec.md §6.
func (e StreamingEvent) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Type:              string(e.Kind),
		Model:             e.Model,
		Content:           e.Content,
		Index:             e.ToolCallIndex,
		ID:                e.ToolCallID,
		Name:              e.ToolCallName,
		ArgumentsFragment: e.ArgumentsFragment,
		Arguments:         e.Arguments,
		Usage:             e.Usage,
		FinishReason:      e.FinishReason,
		Code:              e.ErrorCode,
		Message:           e.ErrorMessage,
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the stable wire shape back into a StreamingEvent, for
// cross-process consumers that round-trip events.
func (e *StreamingEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = StreamingEvent{
		Kind:              StreamEventKind(w.Type),
		Model:             w.Model,
		Content:           w.Content,
		ToolCallIndex:     w.Index,
		ToolCallID:        w.ID,
		ToolCallName:      w.Name,
		ArgumentsFragment: w.ArgumentsFragment,
		Arguments:         w.Arguments,
		Usage:             w.Usage,
		FinishReason:      w.FinishReason,
		ErrorCode:         w.Code,
		ErrorMessage:      w.Message,
	}
	return nil
}
