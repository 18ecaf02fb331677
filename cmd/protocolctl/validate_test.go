package main

import (
	"os"
	"testing"
)

func writeManifest(t *testing.T, dir, id, body string) {
	t.Helper()
	providersDir := dir + "/v1/providers"
	if err := os.MkdirAll(providersDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(providersDir+"/"+id+".yaml", []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

const validManifest = `id: acme
protocol_version: "2.0"
endpoint:
  base_url: https://api.acme.test
  paths:
    chat:
      path: /chat
      method: POST
auth:
  type: bearer
  token_env: ACME_TOKEN
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

const invalidManifest = `id: broken
protocol_version: "2.0"
endpoint:
  base_url: not-a-url
auth:
  type: bearer
  token_env: BROKEN_TOKEN
capabilities:
  required: [text]
`

func TestValidateCmdRunESucceedsOnValidManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "acme", validManifest)

	strict = false
	if err := validateCmd.RunE(validateCmd, []string{dir}); err != nil {
		t.Fatalf("RunE: %v", err)
	}
}

func TestValidateCmdRunEReportsInvalidManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "broken", invalidManifest)

	strict = false
	if err := validateCmd.RunE(validateCmd, []string{dir}); err == nil {
		t.Fatalf("expected an error for an invalid manifest")
	}
}

func TestValidateCmdRunEStrictPassesOnStructuredCapabilities(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "acme", validManifest)

	strict = true
	defer func() { strict = false }()
	if err := validateCmd.RunE(validateCmd, []string{dir}); err != nil {
		t.Fatalf("RunE with --strict: %v", err)
	}
}

func TestValidateCmdRunEWithNoManifestsSucceeds(t *testing.T) {
	dir := t.TempDir()

	strict = false
	if err := validateCmd.RunE(validateCmd, []string{dir}); err != nil {
		t.Fatalf("RunE on an empty directory should not fail: %v", err)
	}
}
