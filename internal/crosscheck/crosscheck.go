// Package crosscheck asks a second, probabilistic model whether a claim is
// supported. Its answer can only veto a positive verification.
package crosscheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/factprobe/internal/cache"
	"github.com/ppiankov/factprobe/internal/util"
)

// DefaultThreshold is the probability at or below which a supported claim is
// flipped to unsupported
const DefaultThreshold = 0.3

// Checker estimates the probability that claim is supported for topic
type Checker interface {
	SupportProbability(ctx context.Context, topic, claim string) (float64, error)
}

// Vetoes reports whether probability p overturns a supported decision
func Vetoes(p, threshold float64) bool {
	return p <= threshold
}

// HTTPChecker queries an external cross-check service
type HTTPChecker struct {
	baseURL    string
	source     string
	httpClient *http.Client
}

type probabilityRequest struct {
	Source string `json:"source"`
	Topic  string `json:"topic"`
	Claim  string `json:"claim"`
}

type probabilityResponse struct {
	Probability *float64 `json:"probability"`
	Error       string   `json:"error,omitempty"`
}

// NewHTTPChecker creates a checker for knowledge source against the service
// at baseURL
func NewHTTPChecker(baseURL, source string, timeout time.Duration, httpProxy, httpsProxy, noProxy string) (*HTTPChecker, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("cross_check base_url is required")
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &HTTPChecker{
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

// SupportProbability posts the claim and returns the service's probability
// clamped to [0, 1]
func (h *HTTPChecker) SupportProbability(ctx context.Context, topic, claim string) (float64, error) {
	body, err := json.Marshal(probabilityRequest{Source: h.source, Topic: topic, Claim: claim})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/probability", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cross-check service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	var out probabilityResponse
	if resp.StatusCode != http.StatusOK {
		if err := json.Unmarshal(respBody, &out); err == nil && out.Error != "" {
			return 0, fmt.Errorf("cross-check service error (%d): %s", resp.StatusCode, out.Error)
		}
		return 0, fmt.Errorf("cross-check service error (%d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Probability == nil {
		return 0, fmt.Errorf("cross-check service returned no probability")
	}

	return clamp(*out.Probability), nil
}

func clamp(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(1, p))
}

// Cached memoises probabilities per (topic, claim)
type Cached struct {
	inner  Checker
	cache  cache.Cache
	logger *slog.Logger
}

// NewCached wraps inner with c
func NewCached(inner Checker, c cache.Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, cache: c, logger: logger}
}

// SupportProbability returns the cached probability or asks the wrapped checker
func (c *Cached) SupportProbability(ctx context.Context, topic, claim string) (float64, error) {
	key := cache.Fingerprint(topic+"#"+claim, 0)

	if entry, ok := c.cache.Get(key); ok {
		if p, err := strconv.ParseFloat(entry.Text, 64); err == nil {
			return p, nil
		}
		c.logger.Warn("discarding undecodable cached probability", "topic", topic)
	}

	p, err := c.inner.SupportProbability(ctx, topic, claim)
	if err != nil {
		return 0, err
	}
	c.cache.Set(key, cache.Entry{Text: strconv.FormatFloat(p, 'g', -1, 64)})
	return p, nil
}
