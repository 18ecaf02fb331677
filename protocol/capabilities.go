package protocol

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Capability is one of the 16 standard capability identifiers a manifest can
// declare. Grounded on original_source/src/protocol/v2/capabilities.rs.
type Capability string

const (
	CapText             Capability = "text"
	CapStreaming        Capability = "streaming"
	CapVision           Capability = "vision"
	CapAudio            Capability = "audio"
	CapVideo            Capability = "video"
	CapTools            Capability = "tools"
	CapParallelTools    Capability = "parallel_tools"
	CapAgentic          Capability = "agentic"
	CapReasoning        Capability = "reasoning"
	CapEmbeddings       Capability = "embeddings"
	CapStructuredOutput Capability = "structured_output"
	CapBatch            Capability = "batch"
	CapImageGeneration  Capability = "image_generation"
	CapComputerUse      Capability = "computer_use"
	CapMCPClient        Capability = "mcp_client"
	CapMCPServer        Capability = "mcp_server"
)

// FeatureGated reports whether a capability requires a build-time feature
// flag to be compiled in. None of the capabilities in this Go runtime are
// actually feature-gated at compile time (there is no Cargo-style feature
// matrix), but the distinction is preserved so capcheck deterministically
// prefixes its error for a missing capability in this list with
// unsupported_feature, mirroring the Rust original's feature-flag design.
// FeatureFlags.Extra is not consulted.
func (c Capability) FeatureGated() bool {
	switch c {
	case CapVision, CapAudio, CapVideo, CapAgentic, CapReasoning, CapEmbeddings,
		CapStructuredOutput, CapBatch, CapImageGeneration, CapComputerUse,
		CapMCPClient, CapMCPServer:
		return true
	default:
		return false
	}
}

// FeatureFlags carries fine-grained toggles within a declared capability set.
type FeatureFlags struct {
	StructuredOutput   bool            `yaml:"structured_output" json:"structured_output"`
	ParallelToolCalls  bool            `yaml:"parallel_tool_calls" json:"parallel_tool_calls"`
	ExtendedThinking   bool            `yaml:"extended_thinking" json:"extended_thinking"`
	StreamingUsage     bool            `yaml:"streaming_usage" json:"streaming_usage"`
	SystemMessages     bool            `yaml:"system_messages" json:"system_messages"`
	ImageGeneration    bool            `yaml:"image_generation" json:"image_generation"`
	Extra              map[string]bool `yaml:"-" json:"-"`
}

// CapabilitySet is the promoted V2 structured capability declaration:
// required capabilities, optional capabilities, and feature flags. This is
// the form every consumer (capcheck, compiler) works with; RawCapabilities
// is only the on-disk shape before promotion.
type CapabilitySet struct {
	Required     []Capability
	Optional     []Capability
	FeatureFlags FeatureFlags
}

// All returns the union of required and optional capabilities.
func (s CapabilitySet) All() []Capability {
	all := make([]Capability, 0, len(s.Required)+len(s.Optional))
	all = append(all, s.Required...)
	all = append(all, s.Optional...)
	return all
}

// Has reports whether cap is declared, required or optional.
func (s CapabilitySet) Has(cap Capability) bool {
	for _, c := range s.Required {
		if c == cap {
			return true
		}
	}
	for _, c := range s.Optional {
		if c == cap {
			return true
		}
	}
	return false
}

// RawCapabilities is the on-disk capability block, accepted in either the
// legacy flat boolean form or the V2 structured required/optional form. Which
// form was present is recorded so PromoteCapabilities can tell them apart;
// serde's "untagged enum" trick from the Rust original is realized here via a
// manual UnmarshalYAML that tries the structured shape first.
type RawCapabilities struct {
	// Structured (V2) fields. Required is nil when the manifest used the
	// legacy flat form.
	Required     []Capability
	Optional     []Capability
	FeatureFlags FeatureFlags

	// Legacy (V1) fields, read when Required == nil.
	LegacyStreaming     bool
	LegacyTools         bool
	LegacyVision        bool
	LegacyAgentic       bool
	LegacyReasoning     bool
	LegacyParallelTools bool

	isLegacy bool
}

// rawCapabilitiesWire mirrors the two accepted on-disk shapes so we can
// decode into plain Go types (yaml.v3 decodes structs field-by-field, it
// does not support serde-style untagged enums directly).
type rawCapabilitiesWire struct {
	Required     []Capability `yaml:"required" json:"required"`
	Optional     []Capability `yaml:"optional" json:"optional"`
	FeatureFlags FeatureFlags `yaml:"feature_flags" json:"feature_flags"`

	Streaming     bool `yaml:"streaming" json:"streaming"`
	Tools         bool `yaml:"tools" json:"tools"`
	Vision        bool `yaml:"vision" json:"vision"`
	Agentic       bool `yaml:"agentic" json:"agentic"`
	Reasoning     bool `yaml:"reasoning" json:"reasoning"`
	ParallelTools bool `yaml:"parallel_tools" json:"parallel_tools"`
}

// UnmarshalYAML decodes either shape: if `required` is present the block is
// treated as V2 structured; otherwise it is the legacy flat booleans.
func (r *RawCapabilities) UnmarshalYAML(value *yaml.Node) error {
	var wire rawCapabilitiesWire
	if err := value.Decode(&wire); err != nil {
		return err
	}
	r.fromWire(wire)
	return nil
}

// UnmarshalJSON mirrors UnmarshalYAML for the compiled dist/<id>.json path.
func (r *RawCapabilities) UnmarshalJSON(data []byte) error {
	var wire rawCapabilitiesWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.fromWire(wire)
	return nil
}

// MarshalJSON re-emits whichever shape was decoded, so round-tripping a
// manifest through JSON preserves legacy-vs-structured intent.
func (r RawCapabilities) MarshalJSON() ([]byte, error) {
	if !r.isLegacy {
		return json.Marshal(rawCapabilitiesWire{
			Required:     r.Required,
			Optional:     r.Optional,
			FeatureFlags: r.FeatureFlags,
		})
	}
	return json.Marshal(rawCapabilitiesWire{
		Streaming:     r.LegacyStreaming,
		Tools:         r.LegacyTools,
		Vision:        r.LegacyVision,
		Agentic:       r.LegacyAgentic,
		Reasoning:     r.LegacyReasoning,
		ParallelTools: r.LegacyParallelTools,
	})
}

func (r *RawCapabilities) fromWire(wire rawCapabilitiesWire) {
	if wire.Required != nil {
		r.isLegacy = false
		r.Required = wire.Required
		r.Optional = wire.Optional
		r.FeatureFlags = wire.FeatureFlags
		return
	}

	r.isLegacy = true
	r.LegacyStreaming = wire.Streaming
	r.LegacyTools = wire.Tools
	r.LegacyVision = wire.Vision
	r.LegacyAgentic = wire.Agentic
	r.LegacyReasoning = wire.Reasoning
	r.LegacyParallelTools = wire.ParallelTools
}

// PromoteCapabilities lifts a RawCapabilities block into the structured
// CapabilitySet form. The function is pure and idempotent: promoting an
// already-structured block returns it unchanged (modulo the implicit `text`
// requirement), and promoting the same legacy block twice yields identical
// results both times. Grounded on
// original_source/src/protocol/v2/capabilities.rs's `promote_to_v2`.
func PromoteCapabilities(raw RawCapabilities) CapabilitySet {
	if !raw.isLegacy {
		return ensureText(CapabilitySet{
			Required:     raw.Required,
			Optional:     raw.Optional,
			FeatureFlags: raw.FeatureFlags,
		})
	}

	required := []Capability{CapText}
	var optional []Capability

	if raw.LegacyStreaming {
		required = append(required, CapStreaming)
	}
	if raw.LegacyTools {
		optional = append(optional, CapTools)
	}
	if raw.LegacyVision {
		optional = append(optional, CapVision)
	}
	if raw.LegacyAgentic {
		optional = append(optional, CapAgentic)
	}
	if raw.LegacyReasoning {
		optional = append(optional, CapReasoning)
	}
	if raw.LegacyParallelTools {
		optional = append(optional, CapParallelTools)
	}

	return CapabilitySet{Required: required, Optional: optional}
}

// ensureText guarantees CapText is present exactly once in Required, so
// promotion of an already-structured set is idempotent even if the author
// forgot to list "text" explicitly.
func ensureText(set CapabilitySet) CapabilitySet {
	for _, c := range set.Required {
		if c == CapText {
			return set
		}
	}
	set.Required = append([]Capability{CapText}, set.Required...)
	return set
}
