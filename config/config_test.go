package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear anything the environment or a .env file might set.
	for _, key := range []string{
		"LLM_PROVIDER", "DATABASE_PATH", "HTTP_ADDR",
		"MAX_CONTEXT_TOKENS", "TURN_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.LLMProvider != "anthropic" {
		t.Errorf("expected default provider anthropic, got %q", cfg.LLMProvider)
	}
	if cfg.DatabasePath != "./taskbot.db" {
		t.Errorf("unexpected default db path: %q", cfg.DatabasePath)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("unexpected default addr: %q", cfg.HTTPAddr)
	}
	if cfg.MaxContextTokens != 100000 {
		t.Errorf("unexpected default context tokens: %d", cfg.MaxContextTokens)
	}
	if cfg.TurnTimeout != 60*time.Second {
		t.Errorf("unexpected default turn timeout: %v", cfg.TurnTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("MAX_CONTEXT_TOKENS", "8000")
	t.Setenv("TURN_TIMEOUT_SECONDS", "30")

	cfg := Load()
	if cfg.LLMProvider != "openai" {
		t.Errorf("expected provider openai, got %q", cfg.LLMProvider)
	}
	if cfg.MaxContextTokens != 8000 {
		t.Errorf("expected 8000 context tokens, got %d", cfg.MaxContextTokens)
	}
	if cfg.TurnTimeout != 30*time.Second {
		t.Errorf("expected 30s turn timeout, got %v", cfg.TurnTimeout)
	}
}

func TestEnvIntRejectsGarbage(t *testing.T) {
	t.Setenv("MAX_CONTEXT_TOKENS", "not-a-number")
	if got := envInt("MAX_CONTEXT_TOKENS", 42); got != 42 {
		t.Errorf("expected fallback 42, got %d", got)
	}
	t.Setenv("MAX_CONTEXT_TOKENS", "-5")
	if got := envInt("MAX_CONTEXT_TOKENS", 42); got != 42 {
		t.Errorf("expected fallback for non-positive value, got %d", got)
	}
}
