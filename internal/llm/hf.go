package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/factprobe/internal/util"
)

// HFModel talks to a local transformers inference server. It is the only
// backend that returns first-token scores, so it yields ScoredAnswer when the
// server includes them.
type HFModel struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

type hfRequest struct {
	Model        string  `json:"model,omitempty"`
	Prompt       string  `json:"prompt"`
	System       string  `json:"system,omitempty"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float32 `json:"temperature"`
	ReturnScores bool    `json:"return_scores"`
}

type hfResponse struct {
	Text   string    `json:"text"`
	Scores []float32 `json:"scores,omitempty"`
}

type hfError struct {
	Detail string `json:"detail"`
}

// NewHFModel creates a backend for a transformers inference server
func NewHFModel(config Config) (*HFModel, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &HFModel{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		},
		config: config,
	}, nil
}

// Name returns the backend name
func (m *HFModel) Name() string {
	return "hf"
}

// IsAvailable probes the server health endpoint
func (m *HFModel) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		slog.Warn("transformers server check failed", "url", m.baseURL, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Generate runs one completion and requests first-token scores
func (m *HFModel) Generate(ctx context.Context, prompt string) (Answer, error) {
	maxTokens := m.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 128
	}

	body, err := json.Marshal(hfRequest{
		Model:        m.config.Model,
		Prompt:       prompt,
		System:       m.config.System,
		MaxNewTokens: maxTokens,
		Temperature:  m.config.Temperature,
		ReturnScores: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transformers server error: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr hfError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Detail != "" {
			return nil, fmt.Errorf("transformers server error (%d): %s", httpResp.StatusCode, apiErr.Detail)
		}
		return nil, fmt.Errorf("transformers server error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp hfResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if len(resp.Scores) == 0 {
		return TextAnswer{Text: text}, nil
	}
	return ScoredAnswer{Text: text, Scores: resp.Scores}, nil
}
