package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Entry is a cached model response: generated text plus optional
// first-token scores
type Entry struct {
	Text   string    `json:"text"`
	Scores []float32 `json:"scores,omitempty"`
}

// Cache defines the interface for a persistent response cache
type Cache interface {
	Name() string
	Get(key string) (Entry, bool)
	// Has and Peek read without touching hit/miss counters
	Has(key string) bool
	Peek(key string) (Entry, bool)
	Set(key string, value Entry)
	// Flush durably persists every entry; safe to call between Sets
	Flush() error
	// Load populates the cache from durable storage; a missing or
	// corrupt store leaves the cache empty
	Load() int
	Stats() (hits, misses int64)
	Close() error
}

// Backend is the durable layer behind a LayeredCache
type Backend interface {
	Load() (map[string]Entry, error)
	// Save receives the full contents and the subset changed since the last save
	Save(all map[string]Entry, changed map[string]Entry) error
	Close() error
}

// Fingerprint generates a cache key for a prompt. The sample index
// separates repeated calls to the same prompt.
func Fingerprint(prompt string, sample int) string {
	raw := strings.TrimSpace(prompt) + "_" + strconv.Itoa(sample)
	hash := sha256.Sum256([]byte(raw))
	return "factprobe:v1:" + hex.EncodeToString(hash[:])
}
