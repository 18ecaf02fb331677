package orchestrator

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aiproto/runtime/protocol"
)

// decodeResponse parses a non-streaming provider response body into a
// UnifiedResponse, dispatching on the manifest's declared message schema the
// same way compiler.serializeMessages dispatches on the way out. Grounded on
// the teacher's models_chat_competions.go response parsing (choices[0]
// .message.{content,tool_calls}, finish_reason), generalized into
// manifest-declared schema selection instead of a provider-specific struct.
func decodeResponse(manifest *protocol.Manifest, body []byte) *protocol.UnifiedResponse {
	switch manifest.MessageSchema {
	case protocol.MessageSchemaAnthropicMsgs:
		return decodeAnthropicResponse(body)
	case protocol.MessageSchemaGeminiContents:
		return decodeGeminiResponse(body)
	default:
		return decodeOpenAIChatResponse(body)
	}
}

func decodeOpenAIChatResponse(body []byte) *protocol.UnifiedResponse {
	parsed := gjson.ParseBytes(body)
	choice := parsed.Get("choices.0")

	response := &protocol.UnifiedResponse{
		Content:      choice.Get("message.content").String(),
		FinishReason: choice.Get("finish_reason").String(),
		Raw:          json.RawMessage(body),
	}
	if usage := parsed.Get("usage"); usage.Exists() {
		var usageMap map[string]interface{}
		if json.Unmarshal([]byte(usage.Raw), &usageMap) == nil {
			response.Usage = usageMap
		}
	}
	for _, tc := range choice.Get("message.tool_calls").Array() {
		response.ToolCalls = append(response.ToolCalls, protocol.ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: json.RawMessage(tc.Get("function.arguments").String()),
		})
	}
	return response
}

func decodeAnthropicResponse(body []byte) *protocol.UnifiedResponse {
	parsed := gjson.ParseBytes(body)

	response := &protocol.UnifiedResponse{
		FinishReason: parsed.Get("stop_reason").String(),
		Raw:          json.RawMessage(body),
	}
	if usage := parsed.Get("usage"); usage.Exists() {
		var usageMap map[string]interface{}
		if json.Unmarshal([]byte(usage.Raw), &usageMap) == nil {
			response.Usage = usageMap
		}
	}
	for _, block := range parsed.Get("content").Array() {
		switch block.Get("type").String() {
		case "text":
			response.Content += block.Get("text").String()
		case "tool_use":
			response.ToolCalls = append(response.ToolCalls, protocol.ToolCall{
				ID:        block.Get("id").String(),
				Name:      block.Get("name").String(),
				Arguments: json.RawMessage(block.Get("input").Raw),
			})
		}
	}
	return response
}

func decodeGeminiResponse(body []byte) *protocol.UnifiedResponse {
	parsed := gjson.ParseBytes(body)
	candidate := parsed.Get("candidates.0")

	response := &protocol.UnifiedResponse{
		FinishReason: candidate.Get("finishReason").String(),
		Raw:          json.RawMessage(body),
	}
	if usage := parsed.Get("usageMetadata"); usage.Exists() {
		var usageMap map[string]interface{}
		if json.Unmarshal([]byte(usage.Raw), &usageMap) == nil {
			response.Usage = usageMap
		}
	}
	for _, part := range candidate.Get("content.parts").Array() {
		if text := part.Get("text"); text.Exists() {
			response.Content += text.String()
		}
		if call := part.Get("functionCall"); call.Exists() {
			response.ToolCalls = append(response.ToolCalls, protocol.ToolCall{
				Name:      call.Get("name").String(),
				Arguments: json.RawMessage(call.Get("args").Raw),
			})
		}
	}
	return response
}

// extractErrorBody pulls a provider-specific error code/type and message out
// of a non-2xx response body, trying the common "error.code"/"error.type"
// and "error.message" shapes shared by OpenAI, Anthropic, and Gemini-style
// APIs before falling back to the raw body text.
func extractErrorBody(body []byte) (code, message string) {
	parsed := gjson.ParseBytes(body)
	if c := parsed.Get("error.code"); c.Exists() {
		code = c.String()
	} else if t := parsed.Get("error.type"); t.Exists() {
		code = t.String()
	} else if s := parsed.Get("error.status"); s.Exists() {
		code = s.String()
	}
	if m := parsed.Get("error.message"); m.Exists() {
		message = m.String()
	} else {
		message = string(body)
	}
	return code, message
}

// parseRetryAfter interprets a Retry-After header value (seconds, per RFC
// 9110; HTTP-date forms are not produced by any manifest in the fixture
// corpus and are left as a zero duration).
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}
