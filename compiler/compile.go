// Package compiler translates a protocol.UnifiedRequest into a provider's
// native wire request: URL, method, headers, and JSON body. Grounded on the
// per-provider request-building code in the teacher's
// providers/ai/{openai,anthropic}, generalized here into manifest-driven
// data instead of a Go type per provider.
package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aiproto/runtime/errorclass"
	"github.com/aiproto/runtime/protocol"
)

// CompiledRequest is the wire-ready shape of a UnifiedRequest against one
// manifest: method, fully-resolved URL, headers (including injected auth),
// and a JSON-encoded body.
type CompiledRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    json.RawMessage
}

// Compile builds a CompiledRequest for req against manifest, selecting the
// endpoint entry named by req.Operation. mapping is the precompiled emitter
// tree for manifest.ParameterMaps, built once per provider by the caller
// (the orchestrator does so on a provider's first use) and passed in to
// avoid recompiling it per request.
func Compile(manifest *protocol.Manifest, req *protocol.UnifiedRequest, mapping *MappingTree) (*CompiledRequest, error) {
	entry, ok := manifest.Endpoint.Paths[req.Operation]
	if !ok {
		return nil, &errorclass.ClassifiedError{
			Code:     errorclass.NotFound,
			Provider: manifest.ID,
			Message:  fmt.Sprintf("operation %q is not declared in endpoint.paths", req.Operation),
		}
	}

	method := entry.Method
	if method == "" {
		method = "POST"
	}

	url := manifest.Endpoint.BaseURL + strings.Replace(entry.Path, "{model}", req.Model, 1)

	headers := map[string]string{"Content-Type": "application/json"}
	if req.Stream {
		headers["Accept"] = "text/event-stream"
	}

	if err := injectAuth(manifest, headers, &url); err != nil {
		return nil, err
	}

	body, err := compileBody(manifest, req, mapping)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("compiler: marshaling body: %w", err)
	}

	return &CompiledRequest{Method: method, URL: url, Headers: headers, Body: encoded}, nil
}

// CompileService builds a CompiledRequest for a manifest-declared non-chat
// named endpoint ("list_models", "get_balance", "get_usage", ...), reusing
// path resolution and auth injection but skipping parameter/message mapping
// entirely, per spec.md §4.8. The compiled request carries no body.
func CompileService(manifest *protocol.Manifest, serviceName string) (*CompiledRequest, error) {
	entry, ok := manifest.Endpoint.Paths[serviceName]
	if !ok {
		return nil, &errorclass.ClassifiedError{
			Code:     errorclass.NotFound,
			Provider: manifest.ID,
			Message:  fmt.Sprintf("service %q is not declared in endpoint.paths", serviceName),
		}
	}

	method := entry.Method
	if method == "" {
		method = "GET"
	}

	url := manifest.Endpoint.BaseURL + entry.Path
	headers := map[string]string{"Accept": "application/json"}

	if err := injectAuth(manifest, headers, &url); err != nil {
		return nil, err
	}

	return &CompiledRequest{Method: method, URL: url, Headers: headers}, nil
}

func injectAuth(manifest *protocol.Manifest, headers map[string]string, url *string) error {
	auth := manifest.Auth
	token := os.Getenv(auth.TokenEnv)
	if token == "" {
		return &errorclass.ClassifiedError{
			Code:     errorclass.Authentication,
			Provider: manifest.ID,
			Message:  fmt.Sprintf("environment variable %q is not set", auth.TokenEnv),
		}
	}

	switch auth.Type {
	case protocol.AuthBearer:
		headers["Authorization"] = "Bearer " + token
	case protocol.AuthHeader:
		name := auth.HeaderName
		if name == "" {
			name = "Authorization"
		}
		headers[name] = token
	case protocol.AuthQuery:
		param := auth.QueryParam
		if param == "" {
			param = "api_key"
		}
		sep := "?"
		if strings.Contains(*url, "?") {
			sep = "&"
		}
		*url = *url + sep + param + "=" + token
	default:
		return &errorclass.ClassifiedError{
			Code:     errorclass.InvalidRequest,
			Provider: manifest.ID,
			Message:  fmt.Sprintf("unknown auth.type %q", auth.Type),
		}
	}
	return nil
}

// compileBody builds the provider-native JSON body by emitting each canonical
// field the request actually carries at the wire path manifest.ParameterMaps
// gives it. Unmapped canonical parameters are
// dropped silently; unknown canonical parameters are never invented.
func compileBody(manifest *protocol.Manifest, req *protocol.UnifiedRequest, mapping *MappingTree) (map[string]interface{}, error) {
	body := make(map[string]interface{})

	mapping.Set(body, "model", req.Model)
	if req.Temperature != nil {
		mapping.Set(body, "temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		mapping.Set(body, "max_tokens", *req.MaxTokens)
	}
	if req.Stream {
		mapping.Set(body, "stream", req.Stream)
	}

	set := manifest.CapabilitySet()
	if len(req.Tools) > 0 && set.Has(protocol.CapTools) {
		mapping.Set(body, "tools", encodeTools(req.Tools))
		if req.ToolChoice != nil {
			mapping.Set(body, "tool_choice", encodeToolChoice(*req.ToolChoice))
		}
	}
	if req.ResponseFormat != nil {
		mapping.Set(body, "response_format", encodeResponseFormat(*req.ResponseFormat))
	}

	messages, err := serializeMessages(manifest.MessageSchema, req.Messages)
	if err != nil {
		return nil, err
	}
	mapping.Set(body, "messages", messages)

	return body, nil
}

func encodeTools(tools []protocol.ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, tool := range tools {
		out = append(out, map[string]interface{}{
			"type":        orDefault(tool.Type, "function"),
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  tool.Parameters,
		})
	}
	return out
}

func encodeToolChoice(choice protocol.ToolChoice) interface{} {
	if choice.Mode == "named" {
		return map[string]interface{}{"type": "function", "name": choice.Name}
	}
	if choice.Mode == "" {
		return "auto"
	}
	return choice.Mode
}

func encodeResponseFormat(format protocol.ResponseFormat) map[string]interface{} {
	out := map[string]interface{}{"type": orDefault(format.Type, "text")}
	if format.Schema != nil {
		out["schema"] = format.Schema
	}
	return out
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// serializeMessages converts the conversation into the wire shape named by
// schema. Generalizes the teacher's per-provider message-conversion modules
// into manifest-declared strategy data; defaults to OpenAI chat style when
// schema is empty.
func serializeMessages(schema protocol.MessageSchema, messages []protocol.Message) ([]map[string]interface{}, error) {
	switch schema {
	case protocol.MessageSchemaAnthropicMsgs:
		return serializeAnthropicMessages(messages)
	case protocol.MessageSchemaGeminiContents:
		return serializeGeminiContents(messages)
	case protocol.MessageSchemaOpenAIChat, "":
		return serializeOpenAIChatMessages(messages)
	default:
		return nil, fmt.Errorf("compiler: unknown message_schema %q", schema)
	}
}

func serializeOpenAIChatMessages(messages []protocol.Message) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		if len(msg.Blocks) == 0 {
			out = append(out, map[string]interface{}{"role": string(msg.Role), "content": msg.Content})
			continue
		}
		out = append(out, map[string]interface{}{"role": string(msg.Role), "content": openAIContentBlocks(msg.Blocks)})
	}
	return out, nil
}

func openAIContentBlocks(blocks []protocol.ContentBlock) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case protocol.ContentText:
			out = append(out, map[string]interface{}{"type": "text", "text": b.Text})
		case protocol.ContentImageURL:
			out = append(out, map[string]interface{}{"type": "image_url", "image_url": map[string]string{"url": b.URL}})
		case protocol.ContentImageBase64:
			out = append(out, map[string]interface{}{
				"type": "image_url",
				"image_url": map[string]string{
					"url": "data:" + b.MediaType + ";base64," + b.Data,
				},
			})
		case protocol.ContentAudioBase64:
			out = append(out, map[string]interface{}{
				"type":        "input_audio",
				"input_audio": map[string]string{"data": b.Data, "format": b.MediaType},
			})
		case protocol.ContentToolResult:
			out = append(out, map[string]interface{}{"type": "tool_result", "tool_call_id": b.ToolResultForID, "content": b.ToolResultText})
		}
	}
	return out
}

func serializeAnthropicMessages(messages []protocol.Message) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == protocol.RoleSystem {
			// Anthropic carries the system prompt outside the messages array.
			// System messages are skipped here, and compileBody does not emit
			// them under any other key either.
			continue
		}
		if len(msg.Blocks) == 0 {
			out = append(out, map[string]interface{}{"role": string(msg.Role), "content": msg.Content})
			continue
		}
		out = append(out, map[string]interface{}{"role": string(msg.Role), "content": anthropicContentBlocks(msg.Blocks)})
	}
	return out, nil
}

func anthropicContentBlocks(blocks []protocol.ContentBlock) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case protocol.ContentText:
			out = append(out, map[string]interface{}{"type": "text", "text": b.Text})
		case protocol.ContentImageBase64:
			out = append(out, map[string]interface{}{
				"type": "image",
				"source": map[string]string{
					"type":       "base64",
					"media_type": b.MediaType,
					"data":       b.Data,
				},
			})
		case protocol.ContentToolUse:
			out = append(out, map[string]interface{}{"type": "tool_use", "id": b.ToolUseID, "name": b.ToolName, "input": b.ToolInput})
		case protocol.ContentToolResult:
			out = append(out, map[string]interface{}{"type": "tool_result", "tool_use_id": b.ToolResultForID, "content": b.ToolResultText})
		}
	}
	return out
}

func serializeGeminiContents(messages []protocol.Message) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == protocol.RoleAssistant {
			role = "model"
		}
		parts := geminiParts(msg)
		out = append(out, map[string]interface{}{"role": role, "parts": parts})
	}
	return out, nil
}

func geminiParts(msg protocol.Message) []map[string]interface{} {
	if len(msg.Blocks) == 0 {
		return []map[string]interface{}{{"text": msg.Content}}
	}
	out := make([]map[string]interface{}, 0, len(msg.Blocks))
	for _, b := range msg.Blocks {
		switch b.Type {
		case protocol.ContentText:
			out = append(out, map[string]interface{}{"text": b.Text})
		case protocol.ContentImageBase64:
			out = append(out, map[string]interface{}{
				"inline_data": map[string]string{"mime_type": b.MediaType, "data": b.Data},
			})
		}
	}
	return out
}
