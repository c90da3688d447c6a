package retrieval

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ppiankov/factprobe/internal/model"
	"github.com/ppiankov/factprobe/internal/worker"
)

// New builds the configured retriever for knowledge source name. The result
// is not cache-backed; wrap it with NewCached.
func New(cfg *model.Config, name string, limiter *worker.Limiter, logger *slog.Logger) (Retriever, error) {
	rc := cfg.Retrieval

	switch rc.Backend {
	case "local", "":
		path := filepath.Join(cfg.DataDir, name+".jsonl")
		return NewLocalRetriever(path, rc.PassageWords, logger), nil

	case "wikipedia":
		fetcher := NewFetcher(FetcherConfig{
			Timeout:       cfg.HTTP.Timeout,
			UserAgent:     cfg.HTTP.UserAgent,
			MaxBytes:      cfg.HTTP.MaxBodyBytes,
			HTTPProxy:     cfg.HTTP.HTTPProxy,
			HTTPSProxy:    cfg.HTTP.HTTPSProxy,
			NoProxy:       cfg.HTTP.NoProxy,
			RespectRobots: rc.RespectRobots,
		}, limiter)
		return NewWikipediaRetriever(rc.WikipediaURL, rc.PassageWords, fetcher, logger), nil

	case "http":
		return NewHTTPRetriever(rc.BaseURL, name, cfg.HTTP.Timeout, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)

	default:
		return nil, fmt.Errorf("unknown retrieval backend: %s (supported: local, wikipedia, http)", rc.Backend)
	}
}
