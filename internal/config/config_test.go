package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"LLM_PROVIDER", "LLM_MODEL", "LLM_MAX_TOKENS", "LLM_TIMEOUT", "LLM_TEMPERATURE"} {
		t.Setenv(k, "")
	}
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.LLM.Provider != "google" {
		t.Errorf("provider default: got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "gemini-2.0-flash" {
		t.Errorf("model default: got %q", cfg.LLM.Model)
	}
	if cfg.LLM.MaxTokens != 200 {
		t.Errorf("max tokens default: got %d", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.Timeout != 28*time.Second {
		t.Errorf("timeout default: got %v", cfg.LLM.Timeout)
	}
	if cfg.LLM.Temperature != nil {
		t.Errorf("temperature should be unset by default")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_MODEL", "gpt-4o-mini")
	t.Setenv("LLM_MAX_TOKENS", "4096")
	t.Setenv("LLM_TIMEOUT", "58000")
	t.Setenv("LLM_TEMPERATURE", "0.7")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("max tokens: got %d", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.Timeout != 58*time.Second {
		t.Errorf("timeout: got %v", cfg.LLM.Timeout)
	}
	if cfg.LLM.Temperature == nil || *cfg.LLM.Temperature != 0.7 {
		t.Errorf("temperature: got %v", cfg.LLM.Temperature)
	}
}

func TestFromEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for invalid LLM_MAX_TOKENS")
	}
}

func TestLoadFileOverlay(t *testing.T) {
	t.Setenv("TEST_RELAY_KEY", "from-env")
	path := filepath.Join(t.TempDir(), "chatrelay.yaml")
	body := "llm:\n  provider: anthropic\n  api_key: ${TEST_RELAY_KEY}\nlisten: \":9090\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider: got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("env expansion: got %q", cfg.LLM.APIKey)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen: got %q", cfg.Listen)
	}
	// Untouched fields keep environment defaults.
	if cfg.LLM.Model != "gemini-2.0-flash" {
		t.Errorf("model should keep default, got %q", cfg.LLM.Model)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
