// Package router composes the admission gates, liquidity snapshot, strategy
// selection and sliced execution into one request → result pipeline. Every
// call walks the same state machine:
//
//	RECEIVED → PAUSE_CHECK → RISK_CHECK → LIQUIDITY_SNAPSHOT →
//	STRATEGY_SELECT → SLICED_EXECUTION → RETURNED
//
// and always terminates in a RoutingResult; no error escapes Route for an
// admission, validation or slice failure.
package router

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/orderrouter/internal/domain"
	"github.com/sawpanic/orderrouter/internal/guardian"
	"github.com/sawpanic/orderrouter/internal/liquidity"
	"github.com/sawpanic/orderrouter/internal/metrics"
	"github.com/sawpanic/orderrouter/internal/orderbook"
)

// Validator is the risk gateway seam
type Validator interface {
	Validate(ctx context.Context, req domain.TradeRequest, portfolioValue float64) domain.RiskDecision
}

// Executor is the order slicer seam
type Executor interface {
	Execute(ctx context.Context, req domain.TradeRequest, plan domain.ExecutionPlan, refPrice float64) []domain.Fill
}

// Config holds router-level settings
type Config struct {
	// PortfolioValue is handed to the risk service with every validate
	// call. Valuation bookkeeping lives upstream; this is a static figure
	// refreshed by the operator.
	PortfolioValue float64 `yaml:"portfolio_value"`
}

// DefaultConfig returns router defaults
func DefaultConfig() Config {
	return Config{PortfolioValue: 100000}
}

// Router routes one trade request at a time; concurrent calls for
// different symbols share nothing mutable beyond the pause signal read.
type Router struct {
	config    Config
	pauser    guardian.Pauser
	validator Validator
	books     orderbook.SnapshotSource
	executor  Executor
	metrics   *metrics.Registry
}

// New creates a router from its collaborators. metrics may be nil.
func New(config Config, pauser guardian.Pauser, validator Validator, books orderbook.SnapshotSource, executor Executor, registry *metrics.Registry) *Router {
	if config.PortfolioValue <= 0 {
		config.PortfolioValue = DefaultConfig().PortfolioValue
	}
	return &Router{
		config:    config,
		pauser:    pauser,
		validator: validator,
		books:     books,
		executor:  executor,
		metrics:   registry,
	}
}

// Route runs one trade request through the pipeline and returns its
// terminal result. The only error-shaped outcomes are a rejected status
// with a reason; callers never need to branch on an error value.
func (r *Router) Route(ctx context.Context, req domain.TradeRequest) domain.RoutingResult {
	requestID := uuid.New().String()
	logger := log.With().Str("request_id", requestID).Str("symbol", req.Symbol).
		Str("side", string(req.Side)).Float64("quantity", req.Quantity).Logger()

	if r.metrics != nil {
		r.metrics.TotalRoutes.Inc()
		r.metrics.ActiveRoutes.Inc()
		defer r.metrics.ActiveRoutes.Dec()
	}

	if err := req.Validate(); err != nil {
		logger.Warn().Err(err).Msg("Malformed trade request")
		return r.rejected(requestID, "request", err.Error())
	}

	// PAUSE_CHECK: advisory kill-switch; skips all downstream steps.
	timer := r.step("pause_check")
	if r.pauser != nil && r.pauser.Paused(ctx) {
		timer.stop("paused")
		logger.Info().Msg("Routing rejected: guardian pause active")
		return r.rejected(requestID, "pause", "guardian pause active")
	}
	timer.stop("ok")

	// RISK_CHECK: the gateway owns retries; a reject here is terminal.
	timer = r.step("risk_check")
	decision := r.validator.Validate(ctx, req, r.config.PortfolioValue)
	if !decision.Approved {
		timer.stop("rejected")
		logger.Info().Str("reason", decision.Reason).Msg("Routing rejected by risk gateway")
		return r.rejected(requestID, "risk", decision.Reason)
	}
	timer.stop("ok")

	// LIQUIDITY_SNAPSHOT: best-effort; a missing book degrades to the
	// synthetic snapshot inside the estimator.
	timer = r.step("liquidity_snapshot")
	var book *orderbook.Snapshot
	if r.books != nil {
		var err error
		book, err = r.books.Latest(ctx, req.Symbol)
		if err != nil {
			logger.Debug().Err(err).Msg("Order book source failed, degrading to synthetic book")
			book = nil
		}
	}
	liq := liquidity.Estimate(req.Symbol, book)
	timer.stop("ok")

	// STRATEGY_SELECT
	timer = r.step("strategy_select")
	plan := domain.SelectStrategy(liq, req.Quantity, req.EffectiveHints())
	timer.stop(string(plan.Strategy))

	logger.Info().
		Str("strategy", string(plan.Strategy)).
		Int("slices", plan.SliceCount).
		Float64("spread_bps", liq.SpreadBps).
		Float64("depth_band_usd", liq.DepthWithinBand).
		Msg("Execution plan selected")

	// SLICED_EXECUTION: once risk-approved the result is executed even if
	// individual slices failed; TotalFilled reflects successes only.
	timer = r.step("sliced_execution")
	fills := r.executor.Execute(ctx, req, plan, liq.MidPrice)
	timer.stop("ok")

	result := aggregate(requestID, plan, fills)
	logger.Info().
		Float64("total_filled", result.TotalFilled).
		Float64("avg_fill_price", result.AvgFillPrice).
		Int("fills", len(result.Fills)).
		Msg("Routing complete")
	return result
}

// aggregate folds the fill sequence into the terminal result. Failed
// slices stay visible in Fills but contribute nothing to the totals.
func aggregate(requestID string, plan domain.ExecutionPlan, fills []domain.Fill) domain.RoutingResult {
	totalFilled := 0.0
	notional := 0.0
	for _, fill := range fills {
		if !fill.OK {
			continue
		}
		totalFilled += fill.Quantity
		notional += fill.Quantity * fill.Price
	}

	avgPrice := 0.0
	if totalFilled > 0 {
		avgPrice = notional / totalFilled
	}

	return domain.RoutingResult{
		RequestID:    requestID,
		Status:       domain.StatusExecuted,
		Strategy:     plan.Strategy,
		Slices:       plan.SliceCount,
		Fills:        fills,
		TotalFilled:  totalFilled,
		AvgFillPrice: avgPrice,
	}
}

func (r *Router) rejected(requestID, gate, reason string) domain.RoutingResult {
	if r.metrics != nil {
		r.metrics.RecordRejection(gate)
	}
	result := domain.Rejected(reason)
	result.RequestID = requestID
	return result
}

// step returns a timer that is a no-op without a metrics registry
func (r *Router) step(name string) *stepTimer {
	if r.metrics == nil {
		return &stepTimer{}
	}
	return &stepTimer{timer: r.metrics.StartStep(name)}
}

type stepTimer struct {
	timer *metrics.StepTimer
}

func (t *stepTimer) stop(result string) {
	if t.timer != nil {
		t.timer.Stop(result)
	}
}
