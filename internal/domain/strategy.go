package domain

import "github.com/sawpanic/orderrouter/internal/liquidity"

// Strategy selection thresholds. A tight spread over a deep book earns the
// volume-weighted schedule; anything else is paced uniformly over time.
const (
	VWAPMaxSpreadBps = 10.0    // strict: spread must be below this
	VWAPMinDepthUSD  = 20000.0 // strict: banded depth must exceed this

	sliceIntervalSec = 60 // VWAP plans one slice per minute of horizon
)

// SelectStrategy derives an execution plan from a liquidity snapshot and the
// caller's hints. Deterministic: the same snapshot and hints always produce
// the same plan.
func SelectStrategy(liq liquidity.Snapshot, quantity float64, hints Hints) ExecutionPlan {
	maxSlices := hints.MaxSlices
	if maxSlices < 1 {
		maxSlices = 1
	}

	var kind StrategyKind
	var slices int
	if liq.SpreadBps < VWAPMaxSpreadBps && liq.DepthWithinBand > VWAPMinDepthUSD {
		kind = StrategyVWAP
		slices = hints.TimeHorizonSec / sliceIntervalSec
		if slices > maxSlices {
			slices = maxSlices
		}
		if slices < 1 {
			slices = 1
		}
	} else {
		kind = StrategyTWAP
		slices = maxSlices
	}

	return ExecutionPlan{
		Strategy:      kind,
		SliceCount:    slices,
		SliceQuantity: quantity / float64(slices),
	}
}
