package retrieval

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ppiankov/factprobe/internal/cache"
	"github.com/ppiankov/factprobe/internal/model"
)

// Cached memoises a Retriever's results per (topic, claim, k)
type Cached struct {
	inner  Retriever
	cache  cache.Cache
	logger *slog.Logger
}

// NewCached wraps inner with c
func NewCached(inner Retriever, c cache.Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, cache: c, logger: logger}
}

func passageKey(topic, claim string, k int) string {
	return cache.Fingerprint(claim+"#"+topic, k)
}

// Passages returns cached passages or asks the wrapped retriever
func (c *Cached) Passages(ctx context.Context, topic, claim string, k int) ([]model.Passage, error) {
	key := passageKey(topic, claim, k)

	if entry, ok := c.cache.Get(key); ok {
		if passages, ok := c.decode(entry, topic); ok {
			return passages, nil
		}
	}

	passages, err := c.inner.Passages(ctx, topic, claim, k)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(passages)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, cache.Entry{Text: string(data)})

	return passages, nil
}

// Preview returns the passages Passages would return but leaves the cache
// untouched. Hits are not counted and a miss is answered by the wrapped
// retriever without being stored.
func (c *Cached) Preview(ctx context.Context, topic, claim string, k int) ([]model.Passage, error) {
	if entry, ok := c.cache.Peek(passageKey(topic, claim, k)); ok {
		if passages, ok := c.decode(entry, topic); ok {
			return passages, nil
		}
	}
	return c.inner.Passages(ctx, topic, claim, k)
}

func (c *Cached) decode(entry cache.Entry, topic string) ([]model.Passage, bool) {
	var passages []model.Passage
	if err := json.Unmarshal([]byte(entry.Text), &passages); err != nil {
		c.logger.Warn("discarding undecodable cached passages", "topic", topic)
		return nil, false
	}
	return passages, true
}
