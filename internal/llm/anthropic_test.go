package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicModel_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("Expected anthropic-version header 2023-06-01, got %s", r.Header.Get("anthropic-version"))
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != VerifierSystemPrompt {
			t.Errorf("Expected verifier system prompt, got %q", req.System)
		}
		if req.MaxTokens != 128 {
			t.Errorf("Expected default max tokens 128, got %d", req.MaxTokens)
		}

		resp := anthropicResponse{
			ID:   "msg_123",
			Type: "message",
			Role: "assistant",
			Content: []anthropicContent{
				{Type: "text", Text: "False"},
			},
			Model: "claude-3-5-haiku-20241022",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	m, err := NewAnthropicModel(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		System:  VerifierSystemPrompt,
		Timeout: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create model: %v", err)
	}

	answer, err := m.Generate(context.Background(), "Input: The moon is cheese. True or False?\nAnswer:")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if answer.Generated() != "False" {
		t.Errorf("Unexpected answer: %q", answer.Generated())
	}
	if _, ok := answer.(TextAnswer); !ok {
		t.Errorf("Expected TextAnswer, got %T", answer)
	}
}

func TestAnthropicModel_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "api_error", "message": "Internal Server Error"}}`))
	}))
	defer server.Close()

	m, err := NewAnthropicModel(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create model: %v", err)
	}

	_, err = m.Generate(context.Background(), "prompt")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Internal Server Error") {
		t.Errorf("Expected error message to contain 'Internal Server Error', got %v", err)
	}
}

func TestAnthropicModel_Generate_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "Rate limit exceeded"}}`))
	}))
	defer server.Close()

	m, err := NewAnthropicModel(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create model: %v", err)
	}

	_, err = m.Generate(context.Background(), "prompt")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("Expected 429 error, got %v", err)
	}
}

func TestAnthropicModel_Generate_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "msg_1", "content": []}`))
	}))
	defer server.Close()

	m, err := NewAnthropicModel(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create model: %v", err)
	}

	if _, err := m.Generate(context.Background(), "prompt"); err == nil {
		t.Fatal("Expected error for empty content")
	}
}

func TestAnthropicModel_MissingKey(t *testing.T) {
	if _, err := NewAnthropicModel(Config{}); err == nil {
		t.Fatal("Expected error without API key")
	}
}

func TestAnthropicModel_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id": "msg_1", "content": [{"type": "text", "text": "Hi"}]}`))
	}))
	defer server.Close()

	good, _ := NewAnthropicModel(Config{APIKey: "good", BaseURL: server.URL})
	if !good.IsAvailable(context.Background()) {
		t.Error("Expected available with valid key")
	}

	bad, _ := NewAnthropicModel(Config{APIKey: "bad", BaseURL: server.URL})
	if bad.IsAvailable(context.Background()) {
		t.Error("Expected unavailable with invalid key")
	}
}
