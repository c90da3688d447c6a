package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/factprobe/internal/model"
	"github.com/ppiankov/factprobe/internal/util"
)

// HTTPRetriever asks an external retrieval service for passages
type HTTPRetriever struct {
	baseURL    string
	source     string
	httpClient *http.Client
}

type passagesRequest struct {
	Source string `json:"source"`
	Topic  string `json:"topic"`
	Query  string `json:"query"`
	K      int    `json:"k"`
}

type passagesResponse struct {
	Passages []model.Passage `json:"passages"`
	Error    string          `json:"error,omitempty"`
}

// NewHTTPRetriever creates a client for the service at baseURL
func NewHTTPRetriever(baseURL, source string, timeout time.Duration, httpProxy, httpsProxy, noProxy string) (*HTTPRetriever, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("retrieval base_url is required for the http backend")
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRetriever{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		source:  source,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpProxy, httpsProxy, noProxy),
			},
		},
	}, nil
}

// Passages posts the query and returns the service's ranking as-is
func (h *HTTPRetriever) Passages(ctx context.Context, topic, claim string, k int) ([]model.Passage, error) {
	body, err := json.Marshal(passagesRequest{
		Source: h.source,
		Topic:  topic,
		Query:  Query(topic, claim),
		K:      k,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/passages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out passagesResponse
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}
	if resp.StatusCode != http.StatusOK {
		if err := json.Unmarshal(respBody, &out); err == nil && out.Error != "" {
			return nil, fmt.Errorf("retrieval service error (%d): %s", resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("retrieval service error (%d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if k > 0 && len(out.Passages) > k {
		out.Passages = out.Passages[:k]
	}
	return out.Passages, nil
}
