package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultResilienceIsPositive(t *testing.T) {
	d := DefaultResilience()
	if d.RateLimitRPS <= 0 || d.RateLimitBurst <= 0 {
		t.Fatalf("expected positive rate-limit defaults, got %+v", d)
	}
	if d.RetryMaxAttempts <= 0 {
		t.Fatalf("expected a positive retry attempt default, got %+v", d)
	}
}

func TestResolveManifestDirPrefersAIProtocolDir(t *testing.T) {
	t.Setenv("AI_PROTOCOL_DIR", "/custom/manifests")
	t.Setenv("AI_PROTOCOL_PATH", "/other/manifests")

	if got := ResolveManifestDir(); got != "/custom/manifests" {
		t.Fatalf("ResolveManifestDir() = %q, want AI_PROTOCOL_DIR value", got)
	}
}

func TestResolveManifestDirFallsBackToAIProtocolPath(t *testing.T) {
	os.Unsetenv("AI_PROTOCOL_DIR")
	t.Setenv("AI_PROTOCOL_PATH", "/other/manifests")

	if got := ResolveManifestDir(); got != "/other/manifests" {
		t.Fatalf("ResolveManifestDir() = %q, want AI_PROTOCOL_PATH value", got)
	}
}

func TestResolveManifestDirProbesRelativeDirectory(t *testing.T) {
	os.Unsetenv("AI_PROTOCOL_DIR")
	os.Unsetenv("AI_PROTOCOL_PATH")

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "ai-protocol", "v1", "providers"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(cwd)

	if got := ResolveManifestDir(); got != "ai-protocol" {
		t.Fatalf("ResolveManifestDir() = %q, want the probed relative path", got)
	}
}

func TestNewLoaderLoadsDefaultsWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(cwd)

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Resilience.RateLimitRPS != DefaultResilience().RateLimitRPS {
		t.Fatalf("expected default rate limit to survive an absent config file, got %+v", cfg.Resilience)
	}
}
