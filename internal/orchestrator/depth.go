package orchestrator

import (
	"sync"

	"github.com/chidi150c/sentinel/internal/model"
)

// DepthCache implements internal/signal.BookDepthRatio from the paired
// book snapshots the market-data task already ingests on every update
// (§5 item 1), so the Signal Generator's tie-break ranking (§4.2
// "min(book_depth_ratio, 1)") sees live depth rather than a constant.
// Grounded on the same level-walking stats.DepthWeightedPrice uses to
// price an order against depth_levels, applied here to size instead of
// price: the cached ratio is min(available_notional, target)/target
// across both legs, since a hedge can only be sized as deep as its
// shallower side.
type DepthCache struct {
	mu     sync.RWMutex
	ratio  map[string]float64
	levels int
}

func NewDepthCache(depthLevels int) *DepthCache {
	return &DepthCache{ratio: make(map[string]float64), levels: depthLevels}
}

// Update recomputes the cached ratio for pair against targetNotional;
// onPairedBooks calls this every time both legs have a fresh snapshot.
func (d *DepthCache) Update(pair model.Pair, spot, perp *model.BookSnapshot, targetNotional float64) {
	if spot == nil || perp == nil || targetNotional <= 0 {
		return
	}
	spotDepth := availableNotional(spot.Bids, d.levels)
	perpDepth := availableNotional(perp.Bids, d.levels)
	depth := spotDepth
	if perpDepth < depth {
		depth = perpDepth
	}
	r := depth / targetNotional
	if r > 1 {
		r = 1
	}
	d.mu.Lock()
	d.ratio[pair.Key()] = r
	d.mu.Unlock()
}

func availableNotional(levels []model.Level, n int) float64 {
	if n <= 0 || n > len(levels) {
		n = len(levels)
	}
	total := 0.0
	for i := 0; i < n; i++ {
		total += levels[i].Price * levels[i].Size
	}
	return total
}

// DepthRatio implements internal/signal.BookDepthRatio. Pairs never
// observed yet report 0, which the tie-break ranking treats like any
// other min(ratio, 1) term.
func (d *DepthCache) DepthRatio(pair model.Pair) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ratio[pair.Key()]
}
