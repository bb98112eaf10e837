package models

import (
	"fmt"
	"time"
)

// Provider identifies an LLM backend family.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderAnthropic Provider = "anthropic"
)

// Valid reports whether the provider is a supported backend.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderGoogle, ProviderAnthropic:
		return true
	}
	return false
}

// ModelSpec is the full set of parameters needed to talk to one model on one
// backend. It is assembled from stored settings with environment fallbacks
// and handed to the provider resolver.
type ModelSpec struct {
	Provider     Provider      `json:"provider"`
	ModelID      string        `json:"model"`
	APIKey       string        `json:"-"`
	BaseURL      string        `json:"base_url,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	Temperature  *float32      `json:"temperature,omitempty"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Timeout      time.Duration `json:"-"`
}

// Validate checks the spec has the fields every backend requires.
func (s *ModelSpec) Validate() error {
	if !s.Provider.Valid() {
		return fmt.Errorf("unsupported provider: %q", s.Provider)
	}
	if s.ModelID == "" {
		return fmt.Errorf("model id is required")
	}
	return nil
}
