package cache

import (
	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the in-process layer; entries never expire
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (Entry, bool) {
	if val, found := c.cache.Get(key); found {
		return val.(Entry), true
	}
	return Entry{}, false
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value Entry) {
	c.cache.Set(key, value, gocache.NoExpiration)
}

// Items returns a copy of every entry
func (c *MemoryCache) Items() map[string]Entry {
	items := c.cache.Items()
	out := make(map[string]Entry, len(items))
	for k, item := range items {
		out[k] = item.Object.(Entry)
	}
	return out
}

// Len returns the number of cached entries
func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}
