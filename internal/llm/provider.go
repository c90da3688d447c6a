package llm

import (
	"context"

	"github.com/ppiankov/factprobe/internal/model"
)

// LanguageModel is the single capability every backend provides
type LanguageModel interface {
	// Name returns the backend name
	Name() string

	// Generate runs one completion for prompt
	Generate(ctx context.Context, prompt string) (Answer, error)
}

// System instructions for the two roles a model plays in a run
const (
	VerifierSystemPrompt = "You are an annotator that verifies the factuality of a sentence according to a given source text. " +
		"You answer only True or False and provide no further explanations."

	DecomposerSystemPrompt = "You are an annotator that breaks down sentences into independent facts, short statements " +
		"that each contain one piece of information contained in the given sentence. " +
		"Do not add new entities, do not deviate from the subject of the sentence given by the user, " +
		"do not hallucinate. List the sentences using -"
)

// Config holds LLM backend configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "hf", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (Ollama, hf server, OpenAI-compatible gateways)
	BaseURL string

	// System instruction sent with every prompt
	System string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	Temperature float32

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // No-verification mode
		Timeout:   60,
		MaxTokens: 128,
	}
}

// ConfigFromModel converts model.LLMConfig plus the shared HTTP settings to
// llm.Config
func ConfigFromModel(mc model.LLMConfig, hc model.HTTPConfig, system string) Config {
	return Config{
		Provider:    mc.Provider,
		Model:       mc.Model,
		APIKey:      mc.APIKey,
		BaseURL:     mc.BaseURL,
		System:      system,
		Timeout:     mc.Timeout,
		MaxTokens:   mc.MaxTokens,
		Temperature: mc.Temperature,
		HTTPProxy:   hc.HTTPProxy,
		HTTPSProxy:  hc.HTTPSProxy,
		NoProxy:     hc.NoProxy,
	}
}

// AvailabilityChecker is implemented by backends that can probe their
// endpoint before a run
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context) bool
}
