package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/factprobe/internal/util"
)

// OpenAIModel implements LanguageModel on the OpenAI Chat Completions API
type OpenAIModel struct {
	client *openai.Client
	config Config
}

// NewOpenAIModel creates a new OpenAI backend
func NewOpenAIModel(config Config) (*OpenAIModel, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}

	return &OpenAIModel{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the backend name
func (m *OpenAIModel) Name() string {
	return "openai"
}

// Generate runs one chat completion. OpenAI does not expose first-token
// scores over the full vocabulary, so the answer is always text.
func (m *OpenAIModel) Generate(ctx context.Context, prompt string) (Answer, error) {
	model := m.config.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}

	maxTokens := m.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 128
	}

	timeout := time.Duration(m.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessage
	if m.config.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: m.config.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := m.client.CreateChatCompletion(ctxWithTimeout, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: m.config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	return TextAnswer{Text: strings.TrimSpace(resp.Choices[0].Message.Content)}, nil
}

// IsAvailable checks if the backend is properly configured
func (m *OpenAIModel) IsAvailable(ctx context.Context) bool {
	// Listing models is the lightest authenticated call
	if _, err := m.client.ListModels(ctx); err != nil {
		slog.Warn("OpenAI API check failed", "error", err)
		return false
	}
	return true
}
