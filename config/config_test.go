package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Backend != BackendBedrock {
		t.Errorf("expected default backend %q, got %q", BackendBedrock, cfg.Backend)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.Model)
	}
	if cfg.MaxToolCallIterations != DefaultMaxToolCallIterations {
		t.Errorf("expected %d iterations, got %d", DefaultMaxToolCallIterations, cfg.MaxToolCallIterations)
	}
	if !cfg.RememberConversation {
		t.Error("expected conversation memory enabled by default")
	}
	if len(cfg.AllowedDomains) == 0 || len(cfg.AllowedServices) == 0 {
		t.Error("expected non-empty default allow-lists")
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("expected 30s request timeout, got %v", cfg.RequestTimeout())
	}
}

func TestLoadProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".hestia"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := []byte(`
backend: anthropic
model: claude-sonnet-4-20250514
temperature: 0.2
language: de
allowed_domains:
  - light
`)
	if err := os.WriteFile(filepath.Join(dir, ".hestia", "config.yaml"), content, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendAnthropic {
		t.Errorf("expected backend overridden, got %q", cfg.Backend)
	}
	if cfg.Temperature != 0.2 {
		t.Errorf("expected temperature overridden, got %v", cfg.Temperature)
	}
	if cfg.Language != "de" {
		t.Errorf("expected language overridden, got %q", cfg.Language)
	}
	if len(cfg.AllowedDomains) != 1 || cfg.AllowedDomains[0] != "light" {
		t.Errorf("expected allow-list replaced, got %v", cfg.AllowedDomains)
	}
	// Untouched fields keep their defaults.
	if cfg.MaxTokens != DefaultMaxTokens {
		t.Errorf("expected default max_tokens kept, got %d", cfg.MaxTokens)
	}
}

func TestLoadMissingFilesUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendBedrock {
		t.Errorf("expected defaults, got backend %q", cfg.Backend)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".hestia"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hestia", "config.yaml"), []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	if _, err := Load(); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestRequestTimeoutFallback(t *testing.T) {
	cfg := Default()
	cfg.RequestTimeoutSeconds = 0
	if cfg.RequestTimeout() != DefaultRequestTimeoutSeconds*time.Second {
		t.Errorf("expected fallback timeout, got %v", cfg.RequestTimeout())
	}
}
