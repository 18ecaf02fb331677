package airuntime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/aiproto/runtime/protocol"
)

func writeFixtureManifest(t *testing.T, dir, id, baseURL, tokenEnv string) {
	t.Helper()
	providersDir := dir + "/v1/providers"
	if err := os.MkdirAll(providersDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	contents := `id: ` + id + `
protocol_version: "2.0"
endpoint:
  base_url: ` + baseURL + `
  paths:
    chat:
      path: /chat
      method: POST
    list_models:
      path: /models
      method: GET
auth:
  type: bearer
  token_env: ` + tokenEnv + `
message_schema: openai_chat
capabilities:
  required: [text]
  optional: [tools, streaming]
parameter_mappings:
  model: model
  stream: stream
  messages: messages
error_map:
  invalid_api_key: authentication
`
	if err := os.WriteFile(providersDir+"/"+id+".yaml", []byte(contents), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestNewUsesManifestDirOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"content":"hi"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeFixtureManifest(t, dir, "acme", srv.URL, "AIRUNTIME_ACME_TOKEN")
	os.Setenv("AIRUNTIME_ACME_TOKEN", "secret")
	defer os.Unsetenv("AIRUNTIME_ACME_TOKEN")

	client, err := New(WithManifestDir(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	ids, err := client.ProviderIDs()
	if err != nil {
		t.Fatalf("ProviderIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "acme" {
		t.Fatalf("ProviderIDs = %v", ids)
	}

	req := &protocol.UnifiedRequest{Operation: "chat", Model: "acme-large", Messages: []protocol.Message{protocol.UserText("hi")}}
	resp, err := client.Chat(context.Background(), "acme", req, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestNewWithStrictParallelToolChecksRejectsUnsupportedParallelTools(t *testing.T) {
	dir := t.TempDir()
	providersDir := dir + "/v1/providers"
	if err := os.MkdirAll(providersDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	contents := `id: strict
protocol_version: "2.0"
endpoint:
  base_url: https://example.invalid
  paths:
    chat:
      path: /chat
      method: POST
auth:
  type: bearer
  token_env: AIRUNTIME_STRICT_TOKEN
message_schema: openai_chat
capabilities:
  required: [text]
  optional: [tools]
parameter_mappings:
  model: model
  messages: messages
error_map:
  invalid_api_key: authentication
`
	if err := os.WriteFile(providersDir+"/strict.yaml", []byte(contents), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	client, err := New(WithManifestDir(dir), WithStrictParallelToolChecks())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	req := &protocol.UnifiedRequest{
		Operation: "chat",
		Model:     "m",
		Messages:  []protocol.Message{protocol.UserText("hi")},
		Tools: []protocol.ToolDefinition{
			{Name: "lookup"},
			{Name: "search"},
		},
	}
	_, err = client.Chat(context.Background(), "strict", req, nil)
	if err == nil {
		t.Fatalf("expected strict parallel-tool policy to reject an unsupported request")
	}
}

func TestCallServiceDelegatesToOrchestrator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":[{"id":"model-a"}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeFixtureManifest(t, dir, "svc", srv.URL, "AIRUNTIME_SVC_TOKEN")
	os.Setenv("AIRUNTIME_SVC_TOKEN", "secret")
	defer os.Unsetenv("AIRUNTIME_SVC_TOKEN")

	client, err := New(WithManifestDir(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	raw, err := client.CallService(context.Background(), "svc", "list_models")
	if err != nil {
		t.Fatalf("CallService: %v", err)
	}
	if string(raw) != `{"data":[{"id":"model-a"}]}` {
		t.Errorf("unexpected body: %s", raw)
	}
}

func TestCloseWithoutHotReloadIsNoop(t *testing.T) {
	dir := t.TempDir()
	client, err := New(WithManifestDir(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWithHotReloadStartsWatcher(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(dir+"/v1/providers", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	client, err := New(WithManifestDir(dir), WithHotReload())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if client.watcher == nil {
		t.Fatalf("expected hot reload to start a watcher")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
