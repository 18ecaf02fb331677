package protocol

import (
	"fmt"
	"net/url"

	"gopkg.in/yaml.v3"
)

// Manifest is the root descriptor for a single provider: its endpoints, auth
// scheme, parameter mappings, declared capabilities, and streaming decoder
// rules. A Manifest is a value — the engine interprets it at runtime, there
// is no per-provider Go type or polymorphism.
type Manifest struct {
	ID              string           `yaml:"id" json:"id"`
	ProtocolVersion string           `yaml:"protocol_version" json:"protocol_version"`
	Endpoint        Endpoint         `yaml:"endpoint" json:"endpoint"`
	Auth            Auth             `yaml:"auth" json:"auth"`
	Capabilities    RawCapabilities  `yaml:"capabilities" json:"capabilities"`
	ParameterMaps   ParameterMapping `yaml:"parameter_mappings" json:"parameter_mappings"`
	Streaming       StreamingConfig  `yaml:"streaming" json:"streaming"`
	ErrorMap        map[string]string `yaml:"error_map" json:"error_map"`

	// MessageSchema names the message-serialization strategy this provider
	// expects. Added in the expansion from spec.md's default-to-OpenAI-style
	// behavior to a manifest-declared strategy so no provider-specific Go
	// branch is needed in the compiler. Defaults to MessageSchemaOpenAIChat
	// when empty.
	MessageSchema MessageSchema `yaml:"message_schema" json:"message_schema"`

	// resolved holds the promoted V2 capability set, computed once at load
	// time by manifeststore and cached here so every consumer sees the same
	// pure-function result without recomputing it per request.
	resolved *CapabilitySet
}

// MessageSchema selects how a Manifest's conversation is serialized to wire
// form. This generalizes the per-provider conversion modules observed in the
// reference implementations (OpenAI chat-style, Anthropic messages-style,
// Gemini contents-style) into manifest-declared data instead of Go code.
type MessageSchema string

const (
	MessageSchemaOpenAIChat      MessageSchema = "openai_chat"
	MessageSchemaAnthropicMsgs   MessageSchema = "anthropic_messages"
	MessageSchemaGeminiContents  MessageSchema = "gemini_contents"
)

// Endpoint describes the provider's base URL and its named operations.
type Endpoint struct {
	BaseURL string                 `yaml:"base_url" json:"base_url"`
	Paths   map[string]PathEntry   `yaml:"paths" json:"paths"`
}

// PathEntry names the path template and HTTP method for one operation
// ("chat", "list_models", "get_balance", ...). Path templates may reference
// "{model}". When Method is empty the compiler sends POST for chat and GET
// for a service call.
type PathEntry struct {
	Path   string `yaml:"path" json:"path"`
	Method string `yaml:"method" json:"method"`
}

// AuthType enumerates the supported credential-injection strategies.
type AuthType string

const (
	AuthBearer AuthType = "bearer"
	AuthHeader AuthType = "header"
	AuthQuery  AuthType = "query"
)

// Auth describes where the provider expects its credential and which
// environment variable holds it.
type Auth struct {
	Type       AuthType `yaml:"type" json:"type"`
	TokenEnv   string   `yaml:"token_env" json:"token_env"`
	HeaderName string   `yaml:"header_name" json:"header_name"` // used when Type == AuthHeader
	QueryParam string   `yaml:"query_param" json:"query_param"` // used when Type == AuthQuery
}

// ParameterMapping is an ordered mapping from canonical request field name to
// the provider's wire field name or dotted JSON path (e.g. "generation.max_tokens").
// It is represented as a slice of pairs, not a map, so iteration order is
// stable and load-time compilation into a MappingTree is deterministic.
type ParameterMapping []ParameterMappingEntry

// ParameterMappingEntry is one (canonical name, wire path) pair.
type ParameterMappingEntry struct {
	Canonical string
	WirePath  string
}

// UnmarshalYAML decodes the YAML mapping form `model: model` into the
// ordered ParameterMapping slice, preserving declaration order.
func (m *ParameterMapping) UnmarshalYAML(value *yaml.Node) error {
	var raw yamlOrderedStringMap
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*m = make(ParameterMapping, 0, len(raw))
	for _, kv := range raw {
		*m = append(*m, ParameterMappingEntry{Canonical: kv.Key, WirePath: kv.Value})
	}
	return nil
}

// UnmarshalJSON decodes the compiled dist/<id>.json object form, preserving
// declaration order (JSON is parsed through the YAML decoder above).
func (m *ParameterMapping) UnmarshalJSON(data []byte) error {
	return yaml.Unmarshal(data, m)
}

// MarshalJSON renders the mapping back into a plain `{canonical: wirePath}`
// object, matching the test-oracle shape used by the compliance fixtures.
func (m ParameterMapping) MarshalJSON() ([]byte, error) {
	asMap := make(map[string]string, len(m))
	for _, entry := range m {
		asMap[entry.Canonical] = entry.WirePath
	}
	return jsonMarshal(asMap)
}

// Lookup returns the wire path mapped from canonical, and whether it was found.
func (m ParameterMapping) Lookup(canonical string) (string, bool) {
	for _, entry := range m {
		if entry.Canonical == canonical {
			return entry.WirePath, true
		}
	}
	return "", false
}

// StreamingDecoderFormat enumerates the supported frame-extraction strategies.
type StreamingDecoderFormat string

const (
	DecoderSSE    StreamingDecoderFormat = "sse"
	DecoderNDJSON StreamingDecoderFormat = "ndjson"
	DecoderJSONL  StreamingDecoderFormat = "jsonl"
)

// StreamingConfig carries the decoder selection and the ordered event-mapping
// rules used to translate parsed frames into StreamingEvent values.
type StreamingConfig struct {
	Decoder  StreamingDecoder `yaml:"decoder" json:"decoder"`
	EventMap []EventMapRule   `yaml:"event_map" json:"event_map"`

	// Candidate holds the optional multi-candidate fan-out settings. They are
	// decoded but not read by the streaming pipeline, so they have no effect.
	Candidate CandidateConfig `yaml:"candidate" json:"candidate"`
}

// StreamingDecoder names the frame format and an optional named strategy
// ("openai_sse", "anthropic_sse", ...) that downstream tooling may use for
// diagnostics; the engine itself only consults Format.
type StreamingDecoder struct {
	Format   StreamingDecoderFormat `yaml:"format" json:"format"`
	Strategy string                 `yaml:"strategy" json:"strategy"`
}

// CandidateConfig is the open-question multi-candidate fan-out knob. Off by
// default; no manifest in the fixture corpus pins its full behavior. The
// pipeline does not read it, so it behaves the same whether or not the field
// is present.
type CandidateConfig struct {
	FanOut FanOutConfig `yaml:"fan_out" json:"fan_out"`
}

// FanOutConfig describes racing N candidate completions and keeping the
// first; no racing is performed by this runtime.
type FanOutConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	N       int  `yaml:"n" json:"n"`
}

// EventMapRule is one {match, emit, fields} entry in the manifest's ordered
// event map. Match is a restricted-JSONPath-with-existence predicate string
// (see streampipeline.CompilePredicate); Fields maps output field name to the
// JSONPath expression that extracts it from the parsed frame.
type EventMapRule struct {
	Match  string            `yaml:"match" json:"match"`
	Emit   string            `yaml:"emit" json:"emit"`
	Fields map[string]string `yaml:"fields" json:"fields"`
}

// Validate checks the structural invariants from spec.md §3: non-empty id,
// absolute base_url, present protocol_version, and (when streaming is
// declared) a known decoder format. It reads the capability set through
// CapabilitySet, which promotes and caches it if no set is cached yet.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("manifest: id is required")
	}
	if m.ProtocolVersion == "" {
		return fmt.Errorf("manifest %q: protocol_version is required", m.ID)
	}
	if m.Endpoint.BaseURL == "" {
		return fmt.Errorf("manifest %q: endpoint.base_url is required", m.ID)
	}
	parsed, err := url.Parse(m.Endpoint.BaseURL)
	if err != nil || !parsed.IsAbs() {
		return fmt.Errorf("manifest %q: endpoint.base_url must be an absolute URL, got %q", m.ID, m.Endpoint.BaseURL)
	}

	set := m.CapabilitySet()
	if set.Has(CapStreaming) {
		switch m.Streaming.Decoder.Format {
		case DecoderSSE, DecoderNDJSON, DecoderJSONL:
			// known format
		default:
			return fmt.Errorf("manifest %q: streaming.decoder.format %q is unknown", m.ID, m.Streaming.Decoder.Format)
		}
	}

	seen := make(map[string]bool, len(m.ParameterMaps))
	for _, entry := range m.ParameterMaps {
		if seen[entry.Canonical] {
			return fmt.Errorf("manifest %q: parameter_mappings key %q appears more than once", m.ID, entry.Canonical)
		}
		seen[entry.Canonical] = true
	}

	return nil
}

// CapabilitySet returns the cached, promoted V2 capability set for this
// manifest, promoting lazily on first access. Promotion is pure and
// idempotent (see PromoteCapabilities), so repeated calls are safe and cheap
// after the first.
func (m *Manifest) CapabilitySet() *CapabilitySet {
	if m.resolved == nil {
		promoted := PromoteCapabilities(m.Capabilities)
		m.resolved = &promoted
	}
	return m.resolved
}

// SetCapabilitySet overrides the cached promoted capability set. Used by
// manifeststore after it performs promotion once at load time so later
// CapabilitySet() calls are pure cache reads.
func (m *Manifest) SetCapabilitySet(set CapabilitySet) {
	m.resolved = &set
}
