// Package providers implements the LLM backends behind the agent runtime:
// OpenAI (and OpenAI-compatible endpoints), Google Gemini, and Anthropic.
package providers

import (
	"fmt"

	"github.com/chatrelay/chatrelay/internal/agent"
	"github.com/chatrelay/chatrelay/pkg/models"
)

// Resolve maps a model specification to a ready provider handle. The switch
// over providers is closed; an unknown provider or a spec missing required
// fields is a configuration error. Resolution performs no network I/O —
// credentials are only exercised on the first completion.
func Resolve(spec models.ModelSpec) (agent.LLMProvider, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", spec.Provider)
	}

	switch spec.Provider {
	case models.ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  spec.APIKey,
			BaseURL: spec.BaseURL,
			Model:   spec.ModelID,
		})
	case models.ProviderGoogle:
		return NewGoogleProvider(GoogleConfig{
			APIKey: spec.APIKey,
			Model:  spec.ModelID,
		})
	case models.ProviderAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  spec.APIKey,
			BaseURL: spec.BaseURL,
			Model:   spec.ModelID,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %q", spec.Provider)
	}
}
