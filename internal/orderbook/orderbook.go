// Package orderbook supplies best-bid/ask and level depth per symbol to the
// liquidity estimator. Sources are adapters over external feeds; absence of
// a live book never fails the pipeline (the estimator falls back to a
// synthetic snapshot).
package orderbook

import (
	"context"
	"sync"
	"time"
)

// Level is one price level of an order book side
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Snapshot is a point-in-time depth view for one symbol. Bids are ordered
// best-first (descending price), asks best-first (ascending price).
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

// BestBid returns the top bid price, or 0 when the side is empty
func (s *Snapshot) BestBid() float64 {
	if s == nil || len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 when the side is empty
func (s *Snapshot) BestAsk() float64 {
	if s == nil || len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// Usable reports whether the snapshot carries a crossed-free top of book
func (s *Snapshot) Usable() bool {
	if s == nil {
		return false
	}
	bid, ask := s.BestBid(), s.BestAsk()
	return bid > 0 && ask > 0 && bid < ask
}

// SnapshotSource provides the latest depth snapshot for a symbol. A nil
// snapshot with a nil error means "no live book right now" and is a valid
// answer; consumers must degrade, not fail.
type SnapshotSource interface {
	Latest(ctx context.Context, symbol string) (*Snapshot, error)
}

// StaticSource serves fixed snapshots from memory. Used in tests and for
// offline routing runs.
type StaticSource struct {
	mu    sync.RWMutex
	books map[string]*Snapshot
}

// NewStaticSource creates an empty static snapshot source
func NewStaticSource() *StaticSource {
	return &StaticSource{books: make(map[string]*Snapshot)}
}

// Set stores the snapshot served for its symbol, replacing any prior one
func (s *StaticSource) Set(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[snap.Symbol] = snap
}

// Latest returns the stored snapshot for symbol, or nil when none is set
func (s *StaticSource) Latest(_ context.Context, symbol string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[symbol], nil
}
