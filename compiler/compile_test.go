package compiler

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/aiproto/runtime/protocol"
)

func testManifest() *protocol.Manifest {
	m := &protocol.Manifest{
		ID:              "acme",
		ProtocolVersion: "2.0",
		Endpoint: protocol.Endpoint{
			BaseURL: "https://api.acme.test/v1",
			Paths: map[string]protocol.PathEntry{
				"chat": {Path: "/chat/completions", Method: "POST"},
			},
		},
		Auth: protocol.Auth{Type: protocol.AuthBearer, TokenEnv: "ACME_TEST_TOKEN"},
		ParameterMaps: protocol.ParameterMapping{
			{Canonical: "model", WirePath: "model"},
			{Canonical: "temperature", WirePath: "generation.temperature"},
			{Canonical: "max_tokens", WirePath: "generation.max_tokens"},
			{Canonical: "stream", WirePath: "stream"},
			{Canonical: "tools", WirePath: "tools"},
			{Canonical: "tool_choice", WirePath: "tool_choice"},
			{Canonical: "messages", WirePath: "messages"},
		},
	}
	m.SetCapabilitySet(protocol.CapabilitySet{
		Required: []protocol.Capability{protocol.CapText, protocol.CapStreaming},
		Optional: []protocol.Capability{protocol.CapTools},
	})
	return m
}

func TestCompileURLAndMethod(t *testing.T) {
	os.Setenv("ACME_TEST_TOKEN", "secret-token")
	defer os.Unsetenv("ACME_TEST_TOKEN")

	m := testManifest()
	mapping := CompileMapping(m.ParameterMaps)
	req := &protocol.UnifiedRequest{Operation: "chat", Model: "acme-large", Messages: []protocol.Message{protocol.UserText("hi")}}

	compiled, err := Compile(m, req, mapping)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if compiled.Method != "POST" {
		t.Errorf("Method = %q, want POST", compiled.Method)
	}
	if compiled.URL != "https://api.acme.test/v1/chat/completions" {
		t.Errorf("URL = %q", compiled.URL)
	}
	if compiled.Headers["Authorization"] != "Bearer secret-token" {
		t.Errorf("Authorization header = %q", compiled.Headers["Authorization"])
	}
}

func TestCompileNestedParameterMapping(t *testing.T) {
	os.Setenv("ACME_TEST_TOKEN", "secret-token")
	defer os.Unsetenv("ACME_TEST_TOKEN")

	m := testManifest()
	mapping := CompileMapping(m.ParameterMaps)
	temp := 0.7
	maxTokens := 256
	req := &protocol.UnifiedRequest{
		Operation:   "chat",
		Model:       "acme-large",
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Messages:    []protocol.Message{protocol.UserText("hi")},
	}

	compiled, err := Compile(m, req, mapping)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(compiled.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	generation, ok := body["generation"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected nested \"generation\" object, got %#v", body["generation"])
	}
	if generation["temperature"] != 0.7 {
		t.Errorf("generation.temperature = %v", generation["temperature"])
	}
	if generation["max_tokens"] != float64(256) {
		t.Errorf("generation.max_tokens = %v", generation["max_tokens"])
	}
}

func TestCompileMissingCredentialFailsAuthentication(t *testing.T) {
	os.Unsetenv("ACME_TEST_TOKEN")

	m := testManifest()
	mapping := CompileMapping(m.ParameterMaps)
	req := &protocol.UnifiedRequest{Operation: "chat", Model: "acme-large", Messages: []protocol.Message{protocol.UserText("hi")}}

	_, err := Compile(m, req, mapping)
	if err == nil {
		t.Fatalf("expected authentication error for missing credential")
	}
}

func TestCompileUnknownOperationIsNotFound(t *testing.T) {
	os.Setenv("ACME_TEST_TOKEN", "secret-token")
	defer os.Unsetenv("ACME_TEST_TOKEN")

	m := testManifest()
	mapping := CompileMapping(m.ParameterMaps)
	req := &protocol.UnifiedRequest{Operation: "list_models", Model: "acme-large"}

	_, err := Compile(m, req, mapping)
	if err == nil {
		t.Fatalf("expected not_found error for undeclared operation")
	}
}

func TestCompileToolsOmittedWhenCapabilityAbsent(t *testing.T) {
	os.Setenv("ACME_TEST_TOKEN", "secret-token")
	defer os.Unsetenv("ACME_TEST_TOKEN")

	m := testManifest()
	m.SetCapabilitySet(protocol.CapabilitySet{Required: []protocol.Capability{protocol.CapText}})
	mapping := CompileMapping(m.ParameterMaps)
	req := &protocol.UnifiedRequest{
		Operation: "chat",
		Model:     "acme-large",
		Messages:  []protocol.Message{protocol.UserText("hi")},
		Tools:     []protocol.ToolDefinition{{Type: "function", Name: "lookup"}},
	}

	compiled, err := Compile(m, req, mapping)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(compiled.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if _, present := body["tools"]; present {
		t.Errorf("expected tools to be omitted when tools capability is not declared")
	}
}

func TestCompileMultimodalMessageExpandsBlocks(t *testing.T) {
	os.Setenv("ACME_TEST_TOKEN", "secret-token")
	defer os.Unsetenv("ACME_TEST_TOKEN")

	m := testManifest()
	mapping := CompileMapping(m.ParameterMaps)
	req := &protocol.UnifiedRequest{
		Operation: "chat",
		Model:     "acme-large",
		Messages: []protocol.Message{{
			Role: protocol.RoleUser,
			Blocks: []protocol.ContentBlock{
				{Type: protocol.ContentText, Text: "what is this?"},
				{Type: protocol.ContentImageURL, URL: "https://example.com/cat.png"},
			},
		}},
	}

	compiled, err := Compile(m, req, mapping)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(compiled.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	messages := body["messages"].([]interface{})
	content := messages[0].(map[string]interface{})["content"].([]interface{})
	if len(content) != 2 {
		t.Fatalf("expected 2 content blocks, got %d", len(content))
	}
}
