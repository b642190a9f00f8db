package domain

import "math"

// Soft per-instrument allocation bounds. With n instruments the bounds are
// relaxed toward the uniform weight 1/n whenever n makes them infeasible
// (n*MinWeightCap > 1 or n*MaxWeightCap < 1), so a valid allocation always
// exists. The relaxation is monotone: a relaxed bound moves toward 1/n and
// never crosses it.
const (
	MinWeightCap = 0.02
	MaxWeightCap = 0.35

	sumTolerance = 1e-9
)

// NormalizeWeights converts a raw weight map into a capped allocation that
// sums to 1. Negative inputs are treated as zero; if nothing positive
// remains, the result is an empty map and callers must treat it as "no
// usable allocation", not an error.
//
// The procedure is two-pass: proportional normalization first, then a
// clamp-and-redistribute pass that pins out-of-bound weights to the
// (possibly relaxed) caps and spreads the residual mass across the entries
// that still have headroom. A single proportional pass cannot satisfy both
// the caps and the sum-1 invariant when many instruments compete for the
// floor value.
func NormalizeWeights(raw map[string]float64) map[string]float64 {
	if len(raw) == 0 {
		return map[string]float64{}
	}

	weights := make(map[string]float64, len(raw))
	sum := 0.0
	for symbol, w := range raw {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			w = 0
		}
		weights[symbol] = w
		sum += w
	}
	if sum <= 0 {
		return map[string]float64{}
	}

	for symbol := range weights {
		weights[symbol] /= sum
	}

	n := float64(len(weights))
	floor := math.Min(MinWeightCap, 1/n)
	ceiling := math.Max(MaxWeightCap, 1/n)

	redistribute(weights, floor, ceiling)
	return weights
}

// redistribute clamps every weight into [floor, ceiling] and moves the residual
// mass onto entries with remaining headroom, proportional to that headroom.
// With feasible bounds (n*floor <= 1 <= n*ceiling) a single redistribution step
// lands exactly on sum 1; the loop only mops up floating point drift.
func redistribute(weights map[string]float64, floor, ceiling float64) {
	for iter := 0; iter < 8; iter++ {
		sum := 0.0
		for symbol, w := range weights {
			w = math.Max(floor, math.Min(ceiling, w))
			weights[symbol] = w
			sum += w
		}

		excess := 1.0 - sum
		if math.Abs(excess) < sumTolerance {
			return
		}

		if excess > 0 {
			// Under-allocated: add mass proportional to headroom below ceiling.
			headroom := 0.0
			for _, w := range weights {
				headroom += ceiling - w
			}
			if headroom <= 0 {
				return
			}
			for symbol, w := range weights {
				weights[symbol] = w + excess*(ceiling-w)/headroom
			}
		} else {
			// Over-allocated: remove mass proportional to room above floor.
			room := 0.0
			for _, w := range weights {
				room += w - floor
			}
			if room <= 0 {
				return
			}
			for symbol, w := range weights {
				weights[symbol] = w + excess*(w-floor)/room
			}
		}
	}
}
