package cache

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// LayeredCache implements a two-layer cache: memory for lookups, a durable
// backend for persistence across runs
type LayeredCache struct {
	name   string
	memory *MemoryCache
	disk   Backend
	logger *slog.Logger

	mu    sync.Mutex // guards dirty; held for the whole of Flush
	dirty map[string]Entry

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLayeredCache creates a new layered cache over the given backend
func NewLayeredCache(name string, disk Backend, logger *slog.Logger) *LayeredCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &LayeredCache{
		name:   name,
		memory: NewMemoryCache(),
		disk:   disk,
		logger: logger.With("cache", name),
		dirty:  make(map[string]Entry),
	}
}

// Open creates a layered cache named name under dir with the given backend
// kind ("json" or "badger") and loads its contents
func Open(dir, name, backend string, syncWrites bool, logger *slog.Logger) (*LayeredCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var disk Backend
	switch backend {
	case "json", "":
		disk = NewDiskCache(filepath.Join(dir, name+".json"))
	case "badger":
		db, err := OpenBadgerCache(BadgerConfig{
			Path:       filepath.Join(dir, name+".badger"),
			SyncWrites: syncWrites,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open cache %s: %w", name, err)
		}
		disk = db
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: json, badger)", backend)
	}

	c := NewLayeredCache(name, disk, logger)
	c.Load()
	return c, nil
}

// Name returns the cache namespace
func (c *LayeredCache) Name() string {
	return c.name
}

// Get retrieves a value from the memory layer
func (c *LayeredCache) Get(key string) (Entry, bool) {
	val, found := c.memory.Get(key)
	if found {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	recordLookup(c.name, found)
	return val, found
}

// Has reports whether key is cached without counting a lookup
func (c *LayeredCache) Has(key string) bool {
	_, found := c.Peek(key)
	return found
}

// Peek returns the entry for key without counting a lookup
func (c *LayeredCache) Peek(key string) (Entry, bool) {
	return c.memory.Get(key)
}

// Set stores a value in memory and marks it for the next flush
func (c *LayeredCache) Set(key string, value Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.memory.Set(key, value)
	c.dirty[key] = value
}

// Flush persists the cache. On failure the pending changes are kept so the
// next flush retries them.
func (c *LayeredCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.dirty) == 0 {
		return nil
	}

	if err := c.disk.Save(c.memory.Items(), c.dirty); err != nil {
		recordFlush(c.name, false)
		c.logger.Warn("cache flush failed, will retry", "pending", len(c.dirty), "error", err)
		return fmt.Errorf("flush cache %s: %w", c.name, err)
	}

	recordFlush(c.name, true)
	c.logger.Debug("cache flushed", "entries", c.memory.Len(), "written", len(c.dirty))
	c.dirty = make(map[string]Entry)
	return nil
}

// Load populates memory from the backend and returns the number of entries
// loaded. Load failures are logged and the cache starts empty.
func (c *LayeredCache) Load() int {
	entries, err := c.disk.Load()
	if err != nil {
		c.logger.Warn("cache load failed, starting empty", "error", err)
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range entries {
		c.memory.Set(k, v)
	}
	c.logger.Debug("cache loaded", "entries", len(entries))
	return len(entries)
}

// Close flushes pending entries and closes the backend
func (c *LayeredCache) Close() error {
	flushErr := c.Flush()
	if err := c.disk.Close(); err != nil {
		return fmt.Errorf("close cache %s: %w", c.name, err)
	}
	return flushErr
}

// Len returns the number of cached entries
func (c *LayeredCache) Len() int {
	return c.memory.Len()
}

// Stats returns lookup hit and miss counts since creation
func (c *LayeredCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
