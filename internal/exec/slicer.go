// Package exec runs the time-sliced execution loop: child orders are placed
// in slice order at a fixed pacing interval, and a failed slice is recorded
// and skipped rather than aborting the plan.
package exec

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/orderrouter/internal/broker"
	"github.com/sawpanic/orderrouter/internal/domain"
)

// DefaultPace is the intra-slice delay. The plan's time horizon is a
// planning input, not a hard per-slice wait.
const DefaultPace = 100 * time.Millisecond

// SliceRecorder receives per-slice outcomes for metrics
type SliceRecorder interface {
	RecordSlice(result string)
}

// Slicer schedules child order slices against a placement adapter
type Slicer struct {
	adapter  broker.Adapter
	pace     time.Duration
	recorder SliceRecorder
}

// NewSlicer creates a slicer with the given pacing interval; pace <= 0
// selects the default.
func NewSlicer(adapter broker.Adapter, pace time.Duration, recorder SliceRecorder) *Slicer {
	if pace <= 0 {
		pace = DefaultPace
	}
	return &Slicer{adapter: adapter, pace: pace, recorder: recorder}
}

// Execute emits exactly plan.SliceCount child orders of plan.SliceQuantity
// each, in increasing slice order with the pacing delay between them.
// refPrice prices slices when the request carries no limit. Cancellation
// returns whatever fills were recorded so far; placement failures are
// recorded with a failure marker and the loop continues.
func (s *Slicer) Execute(ctx context.Context, req domain.TradeRequest, plan domain.ExecutionPlan, refPrice float64) []domain.Fill {
	price := req.LimitPrice
	if price <= 0 {
		price = refPrice
	}

	fills := make([]domain.Fill, 0, plan.SliceCount)
	for i := 1; i <= plan.SliceCount; i++ {
		if i > 1 {
			select {
			case <-ctx.Done():
				log.Info().Str("symbol", req.Symbol).Int("completed", len(fills)).
					Int("planned", plan.SliceCount).Msg("Execution cancelled, returning partial fills")
				return fills
			case <-time.After(s.pace):
			}
		}
		if ctx.Err() != nil {
			return fills
		}

		order := broker.Order{
			Symbol:   req.Symbol,
			Side:     req.Side,
			Quantity: plan.SliceQuantity,
			Price:    price,
			Slice:    i,
		}

		execution, err := s.adapter.Place(ctx, order)
		if err != nil {
			// Slice failures do not abort the plan.
			log.Warn().Err(err).Str("symbol", req.Symbol).Int("slice", i).Msg("Slice placement failed")
			s.sliceNoted("failed")
			fills = append(fills, domain.Fill{
				Slice:     i,
				Quantity:  plan.SliceQuantity,
				Timestamp: time.Now(),
				OK:        false,
				Reason:    err.Error(),
			})
			continue
		}

		s.sliceNoted("filled")
		fills = append(fills, domain.Fill{
			Slice:     i,
			Quantity:  plan.SliceQuantity,
			Price:     execution.Price,
			Timestamp: execution.Timestamp,
			OK:        true,
		})
	}

	return fills
}

func (s *Slicer) sliceNoted(result string) {
	if s.recorder != nil {
		s.recorder.RecordSlice(result)
	}
}
