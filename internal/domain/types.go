package domain

import (
	"fmt"
	"time"
)

// Side identifies the direction of a trade request
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid returns true for a recognized trade side
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// StrategyKind identifies the time-sliced execution strategy
type StrategyKind string

const (
	StrategyVWAP StrategyKind = "VWAP" // deep book, tight spread
	StrategyTWAP StrategyKind = "TWAP" // thin book or wide spread
)

// Status is the terminal outcome of one routing call
type Status string

const (
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
)

// Hints carries optional execution preferences supplied by the caller
type Hints struct {
	MaxSlices      int `json:"max_slices"`
	TimeHorizonSec int `json:"time_horizon_sec"`
}

// DefaultHints returns the execution hints used when the caller supplies none
func DefaultHints() Hints {
	return Hints{
		MaxSlices:      5,
		TimeHorizonSec: 300,
	}
}

// TradeRequest is one candidate trade entering the routing pipeline.
// It is consumed exactly once by the router.
type TradeRequest struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Quantity   float64 `json:"quantity"`
	LimitPrice float64 `json:"limit_price,omitempty"` // 0 means no limit
	Hints      *Hints  `json:"hints,omitempty"`
}

// Validate rejects structurally unusable requests before any routing work begins
func (r TradeRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("trade request missing symbol")
	}
	if !r.Side.Valid() {
		return fmt.Errorf("invalid side %q for %s", r.Side, r.Symbol)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("invalid quantity %.8f for %s", r.Quantity, r.Symbol)
	}
	if r.LimitPrice < 0 {
		return fmt.Errorf("invalid limit price %.8f for %s", r.LimitPrice, r.Symbol)
	}
	return nil
}

// EffectiveHints returns the request's hints with defaults applied for
// missing or non-positive fields.
func (r TradeRequest) EffectiveHints() Hints {
	hints := DefaultHints()
	if r.Hints != nil {
		if r.Hints.MaxSlices > 0 {
			hints.MaxSlices = r.Hints.MaxSlices
		}
		if r.Hints.TimeHorizonSec > 0 {
			hints.TimeHorizonSec = r.Hints.TimeHorizonSec
		}
	}
	return hints
}

// RiskDecision is the risk gateway's verdict for one trade request.
// Absence of approval is the only failure signal the router needs.
type RiskDecision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// ExecutionPlan is the strategy decision for one trade request,
// owned by the router for the duration of a single routing call.
type ExecutionPlan struct {
	Strategy      StrategyKind `json:"strategy"`
	SliceCount    int          `json:"slice_count"`
	SliceQuantity float64      `json:"slice_quantity"`
}

// Fill records the outcome of one child order slice. Failed placements are
// kept with OK=false so partial execution stays structurally visible.
type Fill struct {
	Slice     int       `json:"slice"` // 1-based slice index
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	OK        bool      `json:"ok"`
	Reason    string    `json:"reason,omitempty"` // set when OK=false
}

// RoutingResult is the terminal value returned for every routing call.
// No error escapes the router; Status and Reason are the sole error channel.
type RoutingResult struct {
	RequestID    string       `json:"request_id,omitempty"`
	Status       Status       `json:"status"`
	Reason       string       `json:"reason,omitempty"`
	Strategy     StrategyKind `json:"strategy,omitempty"`
	Slices       int          `json:"slices,omitempty"`
	Fills        []Fill       `json:"fills,omitempty"`
	TotalFilled  float64      `json:"total_filled"`
	AvgFillPrice float64      `json:"avg_fill_price,omitempty"`
}

// Rejected builds a terminal rejection result
func Rejected(reason string) RoutingResult {
	return RoutingResult{Status: StatusRejected, Reason: reason}
}
