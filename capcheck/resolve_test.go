package capcheck

import (
	"testing"

	"github.com/aiproto/runtime/protocol"
)

func manifestWith(set protocol.CapabilitySet) *protocol.Manifest {
	m := &protocol.Manifest{ID: "test-provider"}
	m.SetCapabilitySet(set)
	return m
}

func TestResolveStreamingRejectedWithoutCapability(t *testing.T) {
	m := manifestWith(protocol.CapabilitySet{Required: []protocol.Capability{protocol.CapText}})
	req := &protocol.UnifiedRequest{Stream: true}

	if err := Resolve(m, req, DefaultPolicy()); err == nil {
		t.Fatalf("expected error when streaming is requested but not declared")
	}
}

func TestResolveVisionRejectedWithoutCapability(t *testing.T) {
	m := manifestWith(protocol.CapabilitySet{Required: []protocol.Capability{protocol.CapText}})
	req := &protocol.UnifiedRequest{
		Messages: []protocol.Message{{
			Role:   protocol.RoleUser,
			Blocks: []protocol.ContentBlock{{Type: protocol.ContentImageURL, URL: "https://example.com/cat.png"}},
		}},
	}

	if err := Resolve(m, req, DefaultPolicy()); err == nil {
		t.Fatalf("expected error when an image block is present but vision is not declared")
	}
}

func TestResolveToolsRejectedWithoutCapability(t *testing.T) {
	m := manifestWith(protocol.CapabilitySet{Required: []protocol.Capability{protocol.CapText}})
	req := &protocol.UnifiedRequest{Tools: []protocol.ToolDefinition{{Type: "function", Name: "lookup"}}}

	if err := Resolve(m, req, DefaultPolicy()); err == nil {
		t.Fatalf("expected error when tools are present but not declared")
	}
}

func TestResolveParallelToolsOnlyEnforcedWhenStrict(t *testing.T) {
	m := manifestWith(protocol.CapabilitySet{
		Required: []protocol.Capability{protocol.CapText},
		Optional: []protocol.Capability{protocol.CapTools},
	})
	req := &protocol.UnifiedRequest{
		Tools: []protocol.ToolDefinition{
			{Type: "function", Name: "a"},
			{Type: "function", Name: "b"},
		},
	}

	if err := Resolve(m, req, DefaultPolicy()); err != nil {
		t.Fatalf("expected permissive policy to allow parallel tools without the capability: %v", err)
	}

	strict := Policy{StrictParallelTools: true}
	if err := Resolve(m, req, strict); err == nil {
		t.Fatalf("expected strict policy to reject parallel tools without the capability")
	}
}

func TestResolveNamedToolChoiceExemptFromParallelCheck(t *testing.T) {
	m := manifestWith(protocol.CapabilitySet{
		Required: []protocol.Capability{protocol.CapText},
		Optional: []protocol.Capability{protocol.CapTools},
	})
	req := &protocol.UnifiedRequest{
		Tools: []protocol.ToolDefinition{
			{Type: "function", Name: "a"},
			{Type: "function", Name: "b"},
		},
		ToolChoice: &protocol.ToolChoice{Mode: "named", Name: "a"},
	}

	strict := Policy{StrictParallelTools: true}
	if err := Resolve(m, req, strict); err != nil {
		t.Fatalf("named tool choice should not require parallel_tools: %v", err)
	}
}

func TestResolveSatisfiedRequestPasses(t *testing.T) {
	m := manifestWith(protocol.CapabilitySet{
		Required: []protocol.Capability{protocol.CapText, protocol.CapStreaming},
		Optional: []protocol.Capability{protocol.CapTools, protocol.CapVision},
	})
	req := &protocol.UnifiedRequest{
		Stream: true,
		Tools:  []protocol.ToolDefinition{{Type: "function", Name: "a"}},
		Messages: []protocol.Message{{
			Role:   protocol.RoleUser,
			Blocks: []protocol.ContentBlock{{Type: protocol.ContentImageURL, URL: "https://example.com/cat.png"}},
		}},
	}

	if err := Resolve(m, req, DefaultPolicy()); err != nil {
		t.Fatalf("expected fully-satisfied request to pass: %v", err)
	}
}
