package protocol

// Role identifies the author of one message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlockType discriminates the variants of ContentBlock.
type ContentBlockType string

const (
	ContentText       ContentBlockType = "text"
	ContentImageBase64 ContentBlockType = "image_base64"
	ContentImageURL    ContentBlockType = "image_url"
	ContentAudioBase64 ContentBlockType = "audio_base64"
	ContentToolUse     ContentBlockType = "tool_use"
	ContentToolResult  ContentBlockType = "tool_result"
)

// ContentBlock is one tagged variant of a multimodal message's content, per
// spec.md §3: Text | ImageBase64(data, media_type) | ImageUrl |
// AudioBase64(data, media_type) | ToolUse(id, name, input) |
// ToolResult(tool_use_id, content). Exactly one payload is populated,
// selected by Type.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// Text payload (Type == ContentText).
	Text string `json:"text,omitempty"`

	// Image/audio inline payload (Type == ContentImageBase64 | ContentAudioBase64).
	Data      string `json:"data,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	// Image URL payload (Type == ContentImageURL).
	URL string `json:"url,omitempty"`

	// Tool use payload (Type == ContentToolUse).
	ToolUseID    string      `json:"tool_use_id,omitempty"`
	ToolName     string      `json:"tool_name,omitempty"`
	ToolInput    interface{} `json:"tool_input,omitempty"`

	// Tool result payload (Type == ContentToolResult).
	ToolResultForID string `json:"tool_result_for_id,omitempty"`
	ToolResultText  string `json:"tool_result_text,omitempty"`
}

// RequiredCapability returns the Capability a non-text content block demands
// of the manifest, and whether one is required at all (plain text requires
// none beyond the always-present CapText).
func (b ContentBlock) RequiredCapability() (Capability, bool) {
	switch b.Type {
	case ContentImageBase64, ContentImageURL:
		return CapVision, true
	case ContentAudioBase64:
		return CapAudio, true
	default:
		return "", false
	}
}

// Message is one turn in a conversation. Content is used when the message is
// plain text; Blocks takes precedence when non-empty, enabling multimodal
// and tool-call/tool-result turns.
type Message struct {
	Role    Role           `json:"role"`
	Content string         `json:"content,omitempty"`
	Blocks  []ContentBlock `json:"blocks,omitempty"`
}

// HasMultimodalContent reports whether any block in this message is other
// than text, tool_use or tool_result.
func (m Message) HasMultimodalContent() bool {
	for _, b := range m.Blocks {
		if b.Type != ContentText && b.Type != ContentToolUse && b.Type != ContentToolResult {
			return true
		}
	}
	return false
}

// UserText returns a plain-text message, the common case used throughout
// tests and examples.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: text}
}
