package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/factprobe/internal/cache"
	"github.com/ppiankov/factprobe/internal/worker"
)

var errNilAnswer = errors.New("backend returned no answer")

// Cached wraps a LanguageModel with a response cache. Identical prompts with
// the same sample index reach the backend at most once.
type Cached struct {
	model   LanguageModel
	cache   cache.Cache
	limiter *worker.Limiter
	logger  *slog.Logger
	tracer  trace.Tracer

	calls atomic.Int64
}

// NewCached creates a cache-backed model. limiter may be nil.
func NewCached(m LanguageModel, c cache.Cache, limiter *worker.Limiter, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		model:   m,
		cache:   c,
		limiter: limiter,
		logger:  logger.With("backend", m.Name(), "cache", c.Name()),
		tracer:  otel.Tracer("github.com/ppiankov/factprobe/internal/llm"),
	}
}

// Name returns the wrapped backend name
func (c *Cached) Name() string {
	return c.model.Name()
}

// Generate answers prompt with sample index 0
func (c *Cached) Generate(ctx context.Context, prompt string) (Answer, error) {
	return c.GenerateSample(ctx, prompt, 0)
}

// GenerateSample answers prompt, consulting the cache under the fingerprint
// of (prompt, sample) first
func (c *Cached) GenerateSample(ctx context.Context, prompt string, sample int) (Answer, error) {
	key := cache.Fingerprint(prompt, sample)

	ctx, span := c.tracer.Start(ctx, "llm.Generate", trace.WithAttributes(
		attribute.String("llm.backend", c.model.Name()),
		attribute.Int("llm.sample", sample),
	))
	defer span.End()

	if entry, ok := c.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("llm.cache_hit", true))
		return answerFromEntry(entry), nil
	}
	span.SetAttributes(attribute.Bool("llm.cache_hit", false))

	if err := c.limiter.Wait(ctx, c.model.Name()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter")
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	answer, err := c.model.Generate(ctx, prompt)
	if err == nil && answer == nil {
		err = errNilAnswer
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		return nil, err
	}

	c.calls.Add(1)
	c.cache.Set(key, answer.toEntry())
	c.logger.Debug("model call", "prompt_len", len(prompt), "answer", answer.Generated())

	return answer, nil
}

// IsCached reports whether (prompt, sample) already has a cached answer.
// It neither calls the model nor changes the cache.
func (c *Cached) IsCached(prompt string, sample int) bool {
	return c.cache.Has(cache.Fingerprint(prompt, sample))
}

// Calls returns the number of uncached backend invocations
func (c *Cached) Calls() int64 {
	return c.calls.Load()
}
