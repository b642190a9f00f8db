package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/orderrouter/internal/broker"
	"github.com/sawpanic/orderrouter/internal/domain"
	"github.com/sawpanic/orderrouter/internal/exec"
	"github.com/sawpanic/orderrouter/internal/guardian"
	"github.com/sawpanic/orderrouter/internal/metrics"
	"github.com/sawpanic/orderrouter/internal/orderbook"
)

// approvingValidator approves everything and records whether it was called
type approvingValidator struct {
	called bool
}

func (v *approvingValidator) Validate(context.Context, domain.TradeRequest, float64) domain.RiskDecision {
	v.called = true
	return domain.RiskDecision{Approved: true, Reason: "Within exposure limits"}
}

// rejectingValidator rejects with a fixed reason
type rejectingValidator struct {
	reason string
}

func (v *rejectingValidator) Validate(context.Context, domain.TradeRequest, float64) domain.RiskDecision {
	return domain.RiskDecision{Approved: false, Reason: v.reason}
}

// tightDeepBook is a 5bps spread around 50000 with ~100k banded depth
func tightDeepBook() *orderbook.Snapshot {
	return &orderbook.Snapshot{
		Symbol:    "BTC-USD",
		Bids:      []orderbook.Level{{Price: 49987.5, Size: 1.0}},
		Asks:      []orderbook.Level{{Price: 50012.5, Size: 1.0}},
		Timestamp: time.Now(),
	}
}

func newTestRouter(t *testing.T, pauser guardian.Pauser, validator Validator, book *orderbook.Snapshot) *Router {
	t.Helper()
	books := orderbook.NewStaticSource()
	if book != nil {
		books.Set(book)
	}
	slicer := exec.NewSlicer(broker.NewPaper(), time.Millisecond, nil)
	return New(DefaultConfig(), pauser, validator, books, slicer, metrics.NewRegistry())
}

func btcRequest() domain.TradeRequest {
	return domain.TradeRequest{
		Symbol:     "BTC-USD",
		Side:       domain.SideBuy,
		Quantity:   0.01,
		LimitPrice: 50000,
		Hints:      &domain.Hints{MaxSlices: 5, TimeHorizonSec: 120},
	}
}

func TestRoute_EndToEndVWAP(t *testing.T) {
	validator := &approvingValidator{}
	r := newTestRouter(t, guardian.StaticPauser(false), validator, tightDeepBook())

	result := r.Route(context.Background(), btcRequest())

	require.Equal(t, domain.StatusExecuted, result.Status)
	assert.True(t, validator.called)
	assert.Equal(t, domain.StrategyVWAP, result.Strategy)
	assert.Equal(t, 2, result.Slices, "120s horizon plans two one-minute slices")

	require.Len(t, result.Fills, 2)
	for _, fill := range result.Fills {
		assert.True(t, fill.OK)
		assert.InDelta(t, 0.005, fill.Quantity, 1e-9)
		assert.Equal(t, 50000.0, fill.Price)
	}
	assert.InDelta(t, 0.01, result.TotalFilled, 1e-9)
	assert.InDelta(t, 50000.0, result.AvgFillPrice, 1e-9)
	assert.NotEmpty(t, result.RequestID)
}

func TestRoute_PauseRejectsBeforeRisk(t *testing.T) {
	validator := &approvingValidator{}
	r := newTestRouter(t, guardian.StaticPauser(true), validator, tightDeepBook())

	result := r.Route(context.Background(), btcRequest())

	assert.Equal(t, domain.StatusRejected, result.Status)
	assert.Equal(t, "guardian pause active", result.Reason)
	assert.False(t, validator.called, "pause must skip all downstream steps")
	assert.Empty(t, result.Fills)
}

func TestRoute_FailOpenPauseProceedsToRisk(t *testing.T) {
	// An unreachable dashboard reads as not-paused, so routing reaches the
	// risk check.
	validator := &rejectingValidator{reason: "drawdown exceeded"}
	pauser := guardian.NewHTTPPauser("http://127.0.0.1:1", 50*time.Millisecond)
	r := newTestRouter(t, pauser, validator, tightDeepBook())

	result := r.Route(context.Background(), btcRequest())

	assert.Equal(t, domain.StatusRejected, result.Status)
	assert.Equal(t, "drawdown exceeded", result.Reason, "rejection must come from risk, not pause")
}

func TestRoute_RiskRejectIsTerminal(t *testing.T) {
	r := newTestRouter(t, guardian.StaticPauser(false),
		&rejectingValidator{reason: "Post-trade exposure 82.00% exceeds maximum 75.00%"}, tightDeepBook())

	result := r.Route(context.Background(), btcRequest())

	assert.Equal(t, domain.StatusRejected, result.Status)
	assert.Contains(t, result.Reason, "exposure")
	assert.Empty(t, result.Fills)
}

func TestRoute_TWAPOnThinBook(t *testing.T) {
	thin := &orderbook.Snapshot{
		Symbol: "BTC-USD",
		Bids:   []orderbook.Level{{Price: 49900, Size: 0.001}},
		Asks:   []orderbook.Level{{Price: 50100, Size: 0.001}}, // 40bps spread, tiny depth
	}
	r := newTestRouter(t, guardian.StaticPauser(false), &approvingValidator{}, thin)

	result := r.Route(context.Background(), btcRequest())

	require.Equal(t, domain.StatusExecuted, result.Status)
	assert.Equal(t, domain.StrategyTWAP, result.Strategy)
	assert.Equal(t, 5, result.Slices, "TWAP uses the full slice budget")
}

func TestRoute_MissingBookDegradesToSynthetic(t *testing.T) {
	r := newTestRouter(t, guardian.StaticPauser(false), &approvingValidator{}, nil)

	result := r.Route(context.Background(), btcRequest())

	require.Equal(t, domain.StatusExecuted, result.Status, "no live book must not fail routing")
	assert.Greater(t, result.TotalFilled, 0.0)
}

func TestRoute_PartialFillStillExecuted(t *testing.T) {
	books := orderbook.NewStaticSource()
	books.Set(tightDeepBook())

	failing := &flakyAdapter{failOn: 2}
	slicer := exec.NewSlicer(failing, time.Millisecond, nil)
	r := New(DefaultConfig(), guardian.StaticPauser(false), &approvingValidator{}, books, slicer, nil)

	result := r.Route(context.Background(), btcRequest())

	require.Equal(t, domain.StatusExecuted, result.Status, "slice failures never reject a risk-approved route")
	require.Len(t, result.Fills, 2)
	assert.InDelta(t, 0.005, result.TotalFilled, 1e-9, "only successful slices count toward the total")
}

func TestRoute_MalformedRequestRejected(t *testing.T) {
	r := newTestRouter(t, guardian.StaticPauser(false), &approvingValidator{}, nil)

	result := r.Route(context.Background(), domain.TradeRequest{Symbol: "BTC-USD", Side: "hold", Quantity: 1})

	assert.Equal(t, domain.StatusRejected, result.Status)
	assert.Contains(t, result.Reason, "invalid side")
}

// flakyAdapter fails one slice by index
type flakyAdapter struct {
	failOn int
}

func (f *flakyAdapter) Place(_ context.Context, order broker.Order) (broker.Execution, error) {
	if order.Slice == f.failOn {
		return broker.Execution{}, assert.AnError
	}
	return broker.Execution{Price: order.Price, Timestamp: time.Now()}, nil
}
