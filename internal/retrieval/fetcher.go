package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/factprobe/internal/util"
	"github.com/ppiankov/factprobe/internal/worker"
)

const fetchMaxRetries = 3

// fetchSleepFunc is the sleep function used between retries (injectable for tests)
var fetchSleepFunc = time.Sleep

// ErrDisallowed is returned when robots.txt forbids a fetch
var ErrDisallowed = errors.New("disallowed by robots.txt")

// FetcherConfig configures a Fetcher
type FetcherConfig struct {
	Timeout       time.Duration
	UserAgent     string
	MaxBytes      int64
	HTTPProxy     string
	HTTPSProxy    string
	NoProxy       string
	RespectRobots bool
}

// Fetcher retrieves pages politely: robots.txt, per-host rate limit, bounded
// body size and retry on transient failures
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *robotsRules
	limiter    *worker.Limiter
}

// NewFetcher creates a Fetcher. limiter may be nil.
func NewFetcher(cfg FetcherConfig, limiter *worker.Limiter) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5_000_000
	}

	f := &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		limiter:   limiter,
	}
	if cfg.RespectRobots {
		f.robots = newRobotsRules(f.httpClient, cfg.UserAgent)
	}
	return f
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.code, http.StatusText(e.code))
}

// Fetch retrieves rawURL, retrying transient failures with exponential backoff
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if f.robots != nil {
		allowed, crawlDelay, err := f.robots.check(ctx, rawURL)
		if err != nil {
			return "", err
		}
		if !allowed {
			return "", fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
		if crawlDelay > 0 && f.limiter != nil {
			if u, err := url.Parse(rawURL); err == nil {
				f.limiter.SetRate(u.Host, 1/crawlDelay.Seconds(), 1)
			}
		}
	}
	if err := f.limiter.WaitURL(ctx, rawURL); err != nil {
		return "", err
	}

	var body string
	var err error
	for attempt := 0; attempt < fetchMaxRetries; attempt++ {
		body, err = f.fetchOnce(ctx, rawURL)
		if err == nil || !isRetryable(err) {
			return body, err
		}
		if attempt < fetchMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			fetchSleepFunc(backoff)
		}
	}
	return "", err
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	return string(body), nil
}

// isRetryable returns true for 5xx, 429 and transient network failures
func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}

// IsNotFound reports whether err is a 404 from Fetch
func IsNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}
