// Package liquidity derives routing-grade depth and spread metrics from
// order book snapshots. The numbers are heuristics for strategy selection,
// not pricing guarantees.
package liquidity

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/orderrouter/internal/orderbook"
)

// Band and impact constants. Depth is summed over the ±1% band around mid;
// impact is a linear function of spread.
const (
	depthBandPct     = 0.01
	impactSpreadFrac = 0.5
)

// Snapshot is the liquidity signal for one symbol at one instant. It is
// recomputed per routing decision and never cached.
type Snapshot struct {
	Symbol             string    `json:"symbol"`
	MidPrice           float64   `json:"mid_price"`
	SpreadBps          float64   `json:"spread_bps"`
	DepthWithinBand    float64   `json:"depth_within_band"`
	EstimatedImpactBps float64   `json:"estimated_impact_bps"`
	Synthetic          bool      `json:"synthetic,omitempty"` // true when no live book backed the estimate
	Timestamp          time.Time `json:"timestamp"`
}

// Estimate computes liquidity metrics for a symbol from an order book
// snapshot. A nil or unusable book falls back to a synthetic snapshot so
// routing always has some signal to act on; it never fails.
func Estimate(symbol string, book *orderbook.Snapshot) Snapshot {
	synthetic := false
	if !book.Usable() {
		log.Debug().Str("symbol", symbol).Msg("No usable order book, using synthetic snapshot")
		book = SyntheticBook(symbol)
		synthetic = true
	}

	bid := book.BestBid()
	ask := book.BestAsk()
	mid := (bid + ask) / 2
	spreadBps := (ask - bid) / mid * 10000

	depth := 0.0
	lower := mid * (1 - depthBandPct)
	upper := mid * (1 + depthBandPct)
	for _, level := range book.Bids {
		if level.Price >= lower {
			depth += level.Price * level.Size
		}
	}
	for _, level := range book.Asks {
		if level.Price <= upper {
			depth += level.Price * level.Size
		}
	}

	ts := book.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return Snapshot{
		Symbol:             symbol,
		MidPrice:           mid,
		SpreadBps:          spreadBps,
		DepthWithinBand:    depth,
		EstimatedImpactBps: spreadBps * impactSpreadFrac,
		Synthetic:          synthetic,
		Timestamp:          ts,
	}
}

// SyntheticBook returns the documented fallback book used when no live
// depth is available: a moderately deep three-level market around 107k.
func SyntheticBook(symbol string) *orderbook.Snapshot {
	return &orderbook.Snapshot{
		Symbol: symbol,
		Bids: []orderbook.Level{
			{Price: 107000, Size: 0.5},
			{Price: 106900, Size: 1.0},
			{Price: 106800, Size: 2.0},
		},
		Asks: []orderbook.Level{
			{Price: 107100, Size: 0.5},
			{Price: 107200, Size: 1.0},
			{Price: 107300, Size: 2.0},
		},
		Timestamp: time.Now(),
	}
}
