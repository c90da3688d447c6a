// Package retrieval supplies grounding passages for a (topic, claim) pair
// from a named knowledge source.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ppiankov/factprobe/internal/model"
)

var (
	// ErrSourceRegistered is returned when a knowledge source name is
	// registered twice
	ErrSourceRegistered = errors.New("knowledge source already registered")

	// ErrSourceNotFound is returned for lookups of an unknown source
	ErrSourceNotFound = errors.New("knowledge source not registered")

	// ErrTopicNotFound is returned when a knowledge source has no passages
	// for a topic
	ErrTopicNotFound = errors.New("topic not found in knowledge source")
)

// Retriever returns up to k passages for a claim about topic, most relevant
// first
type Retriever interface {
	Passages(ctx context.Context, topic, claim string, k int) ([]model.Passage, error)
}

// Previewer is implemented by retrievers that can answer without writing
// to a cache, for dry runs
type Previewer interface {
	Preview(ctx context.Context, topic, claim string, k int) ([]model.Passage, error)
}

// Registry maps knowledge source names to retrievers. It is owned by one
// pipeline and passed to whatever needs lookup.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Retriever
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Retriever)}
}

// Register adds a retriever under name
func (r *Registry) Register(name string, retriever Retriever) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("%w: %s", ErrSourceRegistered, name)
	}
	r.sources[name] = retriever
	return nil
}

// Get returns the retriever registered under name
func (r *Registry) Get(name string) (Retriever, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	retriever, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return retriever, nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[name]
	return ok
}

// Names returns registered source names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Query is the retrieval query for a claim about topic
func Query(topic, claim string) string {
	return topic + " " + claim
}
