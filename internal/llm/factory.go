package llm

import (
	"fmt"
	"strings"
)

// NewModel creates a language model backend based on configuration. An empty
// provider returns a nil model, which callers treat as no-verification mode.
func NewModel(config Config) (LanguageModel, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIModel(config)

	case "anthropic", "claude":
		return NewAnthropicModel(config)

	case "ollama":
		return NewOllamaModel(config)

	case "hf", "transformers":
		return NewHFModel(config)

	case "", "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama, hf)", config.Provider)
	}
}
