package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: anthropic
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKeyEnv != "ANTHROPIC_API_KEY" {
		t.Fatalf("APIKeyEnv = %q, want ANTHROPIC_API_KEY", cfg.LLM.APIKeyEnv)
	}
	if cfg.Bus.Mode != "memory" {
		t.Fatalf("Bus.Mode = %q, want memory", cfg.Bus.Mode)
	}
	if cfg.Runtime.MaxToolSteps != 3 {
		t.Fatalf("MaxToolSteps = %d, want 3", cfg.Runtime.MaxToolSteps)
	}
	if cfg.Scheduler.Interval.Seconds() != 30 {
		t.Fatalf("Scheduler.Interval = %v, want 30s", cfg.Scheduler.Interval)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: anthropic
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadValidatesLLMProvider(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: gemini
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "llm.provider") {
		t.Fatalf("expected llm.provider error, got %v", err)
	}
}

func TestLoadValidatesRedisAddrRequired(t *testing.T) {
	path := writeConfig(t, `
bus:
  mode: redis
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "bus.redis_addr") {
		t.Fatalf("expected bus.redis_addr error, got %v", err)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_AGENTCORE_API_KEY", "sk-test-123")
	path := writeConfig(t, `
llm:
  provider: anthropic
tools:
  web_search:
    provider: perplexity
    api_key: ${TEST_AGENTCORE_API_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tools.WebSearch.APIKey != "sk-test-123" {
		t.Fatalf("WebSearch.APIKey = %q, want sk-test-123", cfg.Tools.WebSearch.APIKey)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentcore.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
