// Package allocation holds the published target allocation and the sources
// it is refreshed from. An allocation map is replaced wholesale under a
// single-writer discipline: readers always see either the old or the new
// complete map, never a partial write, and published maps are never mutated
// in place.
package allocation

import (
	"time"

	"sync"
)

// Document is one allocation hand-off from the upstream strategy layer.
// The schema mirrors the allocations-override feed the strategy lab emits.
type Document struct {
	Allocations map[string]float64 `json:"allocations"`
	Source      string             `json:"source"`
	Timestamp   string             `json:"timestamp"`
}

// Store publishes the current allocation map to concurrent readers
type Store struct {
	mu        sync.RWMutex
	current   map[string]float64
	source    string
	published time.Time
}

// NewStore creates an empty allocation store
func NewStore() *Store {
	return &Store{current: map[string]float64{}}
}

// Publish replaces the current allocation wholesale. The map is copied on
// the way in so later caller mutations cannot leak into readers.
func (s *Store) Publish(allocations map[string]float64, source string) {
	copied := make(map[string]float64, len(allocations))
	for symbol, w := range allocations {
		copied[symbol] = w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = copied
	s.source = source
	s.published = time.Now()
}

// Current returns the published allocation map. Callers must treat it as
// read-only; the next Publish supersedes it without mutating it.
func (s *Store) Current() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Info returns the provenance of the published allocation
func (s *Store) Info() (source string, published time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source, s.published
}

// Weight returns the published weight for symbol, 0 when absent
func (s *Store) Weight(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current[symbol]
}
