package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/rs/zerolog"
)

// StatsView is the §4.1 `stats(pair)` contract's return shape.
// Valid is false until warmup (§3 RollingStats invariant); callers must
// treat Mean/Stddev/Z/P95/P05 as undefined when Valid is false.
type StatsView struct {
	Mean   float64
	Stddev float64
	Z      float64
	P95    float64
	P05    float64
	Count  int
	Valid  bool
}

type pairState struct {
	mu           sync.RWMutex
	rolling      *RollingStats
	lastSpot     *model.BookSnapshot
	lastPerp     *model.BookSnapshot
	lastBasis    *model.BasisSample
	unsafeSince  time.Time
	unsafe       bool
	droppedCount uint64
}

// Engine is the Statistical Engine (§4.1). One Engine instance owns all
// per-pair RollingStats and BasisSamples; per-pair isolation is absolute
// — pairState instances never share mutable fields (§4.1 "Per-pair
// isolation is absolute: no cross-pair pooling of statistics").
type Engine struct {
	mu          sync.RWMutex
	pairs       map[string]*pairState
	window      time.Duration
	warmupMin   int
	capacity    int
	depthLevels int
	staleness   time.Duration
	halt        time.Duration
	pub         *Publisher
	log         zerolog.Logger
}

// NewEngine constructs an Engine. capacity bounds RollingStats' ring
// buffer per pair (§3 "count <= window_capacity"); pass 0 for
// window-duration-only eviction.
func NewEngine(window time.Duration, warmupMin, capacity, depthLevels int, staleness, halt time.Duration, pub *Publisher, log zerolog.Logger) *Engine {
	return &Engine{
		pairs:       make(map[string]*pairState),
		window:      window,
		warmupMin:   warmupMin,
		capacity:    capacity,
		depthLevels: depthLevels,
		staleness:   staleness,
		halt:        halt,
		pub:         pub,
		log:         log.With().Str("component", "stats").Logger(),
	}
}

func (e *Engine) state(pair model.Pair) *pairState {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := pair.Key()
	ps, ok := e.pairs[k]
	if !ok {
		ps = &pairState{rolling: NewRollingStats(e.window, e.warmupMin, e.capacity)}
		e.pairs[k] = ps
	}
	return ps
}

// Ingest computes depth-weighted prices from spotBook and perpBook,
// produces a BasisSample, and updates the pair's RollingStats (§4.1).
// Stale snapshots are rejected with model.ErrStaleBook; crossed books
// are rejected with model.ErrCrossedBook. Both failure modes increment a
// counter and never halt the engine (§4.1 "Failure semantics").
func (e *Engine) Ingest(pair model.Pair, spotBook, perpBook model.BookSnapshot, targetNotional float64, now time.Time) (model.BasisSample, error) {
	ps := e.state(pair)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if spotBook.Stale(now, e.staleness) || perpBook.Stale(now, e.staleness) {
		ps.droppedCount++
		e.markUnsafeLocked(pair, ps, now)
		return model.BasisSample{}, fmt.Errorf("%s: %w", pair.Key(), model.ErrStaleBook)
	}
	if spotBook.Crossed() || perpBook.Crossed() {
		ps.droppedCount++
		return model.BasisSample{}, fmt.Errorf("%s: %w", pair.Key(), model.ErrCrossedBook)
	}

	spotDW, spotImpact, spotOK := sideDepthWeighted(spotBook, e.depthLevels, targetNotional)
	perpDW, perpImpact, perpOK := sideDepthWeighted(perpBook, e.depthLevels, targetNotional)
	if !spotOK || !perpOK {
		ps.droppedCount++
		return model.BasisSample{}, fmt.Errorf("%s: %w", pair.Key(), model.ErrStaleBook)
	}

	impact := spotImpact
	if perpImpact > impact {
		impact = perpImpact
	}
	bs, ok := model.NewBasisSample(pair, now, spotDW, perpDW, impact*10000)
	if !ok {
		ps.droppedCount++
		return model.BasisSample{}, fmt.Errorf("%s: %w", pair.Key(), model.ErrStaleBook)
	}

	ps.rolling.Add(now, bs.Basis)
	ps.lastSpot = &spotBook
	ps.lastPerp = &perpBook
	ps.lastBasis = &bs
	ps.unsafe = false
	ps.unsafeSince = time.Time{}

	if e.pub != nil {
		e.pub.Publish(pair, e.viewLocked(ps))
	}
	return bs, nil
}

// sideDepthWeighted averages the bid-side and ask-side depth-weighted
// prices to produce one representative depth-weighted price for a book
// side, since a hedge's two legs each cross one side of their own book
// (buy spot crosses asks, sell perp crosses bids, and vice versa) and
// the basis is defined symmetrically over both directions.
func sideDepthWeighted(book model.BookSnapshot, depthLevels int, targetNotional float64) (float64, float64, bool) {
	bidW, bidImpact, bidOK := DepthWeightedPrice(book.Bids, depthLevels, targetNotional)
	askW, askImpact, askOK := DepthWeightedPrice(book.Asks, depthLevels, targetNotional)
	switch {
	case bidOK && askOK:
		return (bidW + askW) / 2, maxFloat(bidImpact, askImpact), true
	case bidOK:
		return bidW, bidImpact, true
	case askOK:
		return askW, askImpact, true
	default:
		return 0, 0, false
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// markUnsafeLocked marks the pair UNSAFE once it has been stale for
// longer than halt_staleness (§4.1 "A pair whose book has been stale for
// > halt_staleness (default 10 s) is marked UNSAFE").
func (e *Engine) markUnsafeLocked(pair model.Pair, ps *pairState, now time.Time) {
	if ps.unsafeSince.IsZero() {
		ps.unsafeSince = now
		return
	}
	if now.Sub(ps.unsafeSince) > e.halt {
		if !ps.unsafe {
			e.log.Warn().Str("pair", pair.Key()).Msg("pair marked UNSAFE: book stale beyond halt_staleness")
		}
		ps.unsafe = true
	}
}

// Unsafe reports whether signals for this pair are currently suppressed
// (§4.1).
func (e *Engine) Unsafe(pair model.Pair) bool {
	ps := e.state(pair)
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.unsafe
}

// Stats returns the §4.1 `stats(pair)` view. Valid is false (reporting
// null per §4.1) until the pair has >= warmup_min samples.
func (e *Engine) Stats(pair model.Pair) StatsView {
	ps := e.state(pair)
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return e.viewLocked(ps)
}

func (e *Engine) viewLocked(ps *pairState) StatsView {
	if !ps.rolling.Warm() {
		return StatsView{Count: ps.rolling.Count(), Valid: false}
	}
	var z float64
	if ps.lastBasis != nil {
		z = ps.rolling.Z(ps.lastBasis.Basis)
	}
	return StatsView{
		Mean:   ps.rolling.Mean(),
		Stddev: ps.rolling.Stddev(),
		Z:      z,
		P95:    ps.rolling.P95(),
		P05:    ps.rolling.P05(),
		Count:  ps.rolling.Count(),
		Valid:  true,
	}
}

// BasisNow returns the most recent basis for pair, or (0, false) if none
// has been observed yet (§4.1 `basis_now(pair) -> basis | null`).
func (e *Engine) BasisNow(pair model.Pair) (float64, bool) {
	ps := e.state(pair)
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.lastBasis == nil {
		return 0, false
	}
	return ps.lastBasis.Basis, true
}

// DroppedCount returns the number of stale/crossed snapshots dropped for
// this pair, for metrics/alerting.
func (e *Engine) DroppedCount(pair model.Pair) uint64 {
	ps := e.state(pair)
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.droppedCount
}
