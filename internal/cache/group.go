package cache

import (
	"errors"
	"log/slog"
)

// Group holds every cache opened for a run so they can be flushed together
type Group struct {
	caches []Cache
	logger *slog.Logger
}

// NewGroup creates an empty group
func NewGroup(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{logger: logger}
}

// Add registers a cache with the group
func (g *Group) Add(c Cache) {
	g.caches = append(g.caches, c)
}

// FlushAll flushes every cache. Failures are logged and left for the next
// call; they never abort the run.
func (g *Group) FlushAll() {
	for _, c := range g.caches {
		if err := c.Flush(); err != nil {
			g.logger.Warn("periodic cache flush failed", "cache", c.Name(), "error", err)
		}
	}
}

// CloseAll flushes and closes every cache
func (g *Group) CloseAll() error {
	var errs []error
	for _, c := range g.caches {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats sums hits and misses across the group
func (g *Group) Stats() (hits, misses int64) {
	for _, c := range g.caches {
		h, m := c.Stats()
		hits += h
		misses += m
	}
	return hits, misses
}
