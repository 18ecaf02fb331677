package streampipeline

import "github.com/aiproto/runtime/protocol"

// Collect folds a sequence of StreamingEvents into a single UnifiedResponse,
// for callers that requested streaming transport but want a synchronous
// result. Pure function of the event sequence, independent of any I/O, so it
// is directly testable against a synthetic event slice (spec.md §4.4). Error
// events are informational within the fold, matching the teacher's
// ChatStream.Collect: a mid-stream failure is reported through the
// iterator's own error channel, not by aborting accumulation here.
func Collect(events []protocol.StreamingEvent) *protocol.UnifiedResponse {
	response := &protocol.UnifiedResponse{}

	for _, event := range events {
		switch event.Kind {
		case protocol.EventPartialContentDelta:
			response.Content += event.Content
		case protocol.EventToolCallCompleted:
			response.ToolCalls = append(response.ToolCalls, protocol.ToolCall{
				ID:        event.ToolCallID,
				Name:      event.ToolCallName,
				Arguments: event.Arguments,
			})
		case protocol.EventMetadata:
			if event.Usage != nil {
				response.Usage = event.Usage
			}
		case protocol.EventStreamEnd:
			if event.FinishReason != "" {
				response.FinishReason = event.FinishReason
			}
		}
	}

	return response
}
