// Package signal – Signal Generator (§4.2): maps basis statistics to
// EXPAND / CONTRACT / VACUUM / HOLD intents.
//
// Grounded on the teacher's strategy.go (threshold-driven buy/sell
// decision from SMA/RSI/ZScore indicators), generalized from a single
// price series' threshold crossing to a per-pair z-score-triggered
// hedge intent with tie-break ranking across pairs.
package signal

import (
	"math"
	"sort"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/stats"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StatsSource is the subset of internal/stats.Engine the generator needs.
type StatsSource interface {
	Stats(pair model.Pair) stats.StatsView
	Unsafe(pair model.Pair) bool
}

// BookDepthRatio reports, for a pair, how deep the book is relative to
// the capital policy's target size (used by the tie-break ranking,
// §4.2 "min(book_depth_ratio, 1)").
type BookDepthRatio interface {
	DepthRatio(pair model.Pair) float64
}

// PortfolioView is the subset of Portfolio state the generator consults
// (§4.2 edge cases: NAV floor, delta block; §4.2 CORE sizing: existing
// SATELLITE position).
type PortfolioView interface {
	NAV() decimal.Decimal
	Delta() float64
	HasSatellite(pair model.Pair) bool
	SatelliteCapacityAvailable(pair model.Pair) bool
}

// InFlightChecker reports whether pair already has a non-terminal Intent
// (§4.2 "Only one Intent can be outstanding per pair"; §8 property 5).
type InFlightChecker interface {
	InFlight(pair model.Pair) bool
}

// Params are the configurable thresholds from §6.
type Params struct {
	ZOpen             float64
	ZClose            float64
	CoreAllocationPct float64
	DeltaBlockBps     float64
	MinNAVFloor       float64
	DefaultTTL        time.Duration
	MaxSlippageBps    float64
}

// Generator is the Signal Generator (§4.2).
type Generator struct {
	stats     StatsSource
	depth     BookDepthRatio
	portfolio PortfolioView
	inflight  InFlightChecker
	params    Params
	log       zerolog.Logger
}

func New(stats StatsSource, depth BookDepthRatio, portfolio PortfolioView, inflight InFlightChecker, params Params, log zerolog.Logger) *Generator {
	return &Generator{
		stats: stats, depth: depth, portfolio: portfolio, inflight: inflight,
		params: params, log: log.With().Str("component", "signal").Logger(),
	}
}

// candidate is an internal ranking entry (§4.2 tie-break formula).
type candidate struct {
	pair   model.Pair
	intent model.Intent
	score  float64
}

// Evaluate produces at most one Intent across all pairs for this tick
// (§4.2 "produces at most one Intent per evaluation tick per pair" — the
// tie-break rule then picks the single highest-ranked candidate across
// pairs that triggered simultaneously). Returns (Intent{}, false) if
// nothing triggers.
func (g *Generator) Evaluate(pairs []model.Pair, now time.Time, notionalFor func(model.Pair) decimal.Decimal) (model.Intent, bool) {
	var candidates []candidate
	for _, pair := range pairs {
		if g.stats.Unsafe(pair) {
			continue
		}
		if g.inflight.InFlight(pair) {
			continue // §8 property 5: at most one in-flight Intent per pair
		}
		view := g.stats.Stats(pair)
		if !view.Valid {
			continue
		}
		if in, ok := g.evaluatePair(pair, view, now, notionalFor(pair)); ok {
			score := rankScore(view.Z, view.Count, g.depthRatio(pair))
			candidates = append(candidates, candidate{pair: pair, intent: in, score: score})
		}
	}
	if len(candidates) == 0 {
		return model.Intent{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	return candidates[0].intent, true
}

func (g *Generator) depthRatio(pair model.Pair) float64 {
	if g.depth == nil {
		return 1
	}
	return g.depth.DepthRatio(pair)
}

// rankScore implements §4.2's tie-break: z * sqrt(count) * min(book_depth_ratio, 1).
func rankScore(z float64, count int, depthRatio float64) float64 {
	r := depthRatio
	if r > 1 {
		r = 1
	}
	return math.Abs(z) * math.Sqrt(float64(count)) * r
}

func (g *Generator) evaluatePair(pair model.Pair, view stats.StatsView, now time.Time, notional decimal.Decimal) (model.Intent, bool) {
	// CLOSE_HEDGE is allowed regardless of NAV floor / delta block (§4.2
	// "CLOSE intents remain allowed").
	if view.Z <= g.params.ZClose && g.portfolio.HasSatellite(pair) {
		return g.newIntent(model.CloseHedge, pair, model.Sell, notional, now, model.CauseZScore), true
	}

	// Edge cases block OPEN intents only (§4.2).
	if g.portfolio.NAV().LessThanOrEqual(decimal.NewFromFloat(g.params.MinNAVFloor)) {
		return model.Intent{}, false
	}
	if math.Abs(g.portfolio.Delta())*10000 >= g.params.DeltaBlockBps {
		return model.Intent{}, false
	}

	if view.Z >= g.params.ZOpen && g.portfolio.SatelliteCapacityAvailable(pair) {
		return g.newIntent(model.OpenHedge, pair, model.Buy, notional, now, model.CauseZScore), true
	}
	return model.Intent{}, false
}

func (g *Generator) newIntent(kind model.IntentKind, pair model.Pair, dir model.OrderSide, notional decimal.Decimal, now time.Time, cause model.IntentCause) model.Intent {
	ttl := g.params.DefaultTTL
	return model.Intent{
		ID:             uuid.New().String(),
		Kind:           kind,
		Pair:           pair,
		Direction:      dir,
		TargetNotional: notional,
		MaxSlippageBps: g.params.MaxSlippageBps,
		TTL:            ttl,
		Cause:          cause,
		CreatedAt:      now,
		Deadline:       now.Add(ttl),
	}
}
