// Package stats – Statistical Engine (§4.1): depth-weighted basis,
// Welford rolling statistics, and a read-mostly snapshot publisher.
//
// Grounded on the teacher's indicators.go (SMA/RSI/ZScore rolling
// indicators over a single Close-price series), generalized from one
// series to a per-pair, two-sided, depth-weighted basis series.
package stats

import "github.com/chidi150c/sentinel/internal/model"

// DepthWeightedPrice walks levels (assumed best-first) accumulating
// price*size until the cumulative size*price reaches targetNotional or
// depthLevels levels have been consumed, whichever comes first (§4.1).
// It returns the weighted price, the impact cost (the fractional move
// from the best level to the weighted price), and false if levels is
// empty.
func DepthWeightedPrice(levels []model.Level, depthLevels int, targetNotional float64) (weighted float64, impact float64, ok bool) {
	if len(levels) == 0 {
		return 0, 0, false
	}
	best := levels[0].Price
	var sumPV, sumV float64
	n := depthLevels
	if n <= 0 || n > len(levels) {
		n = len(levels)
	}
	for i := 0; i < n; i++ {
		lvl := levels[i]
		sumPV += lvl.Price * lvl.Size
		sumV += lvl.Size
		if sumPV >= targetNotional {
			break
		}
	}
	if sumV <= 0 {
		return 0, 0, false
	}
	weighted = sumPV / sumV
	if best != 0 {
		impact = absFloat(weighted-best) / best
	}
	return weighted, impact, true
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
