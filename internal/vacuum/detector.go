// Package vacuum – Vacuum Detector (§4.3): correlates liquidation events
// with basis dislocations to emit VACUUM_OPEN/VACUUM_CLOSE intents.
//
// No direct teacher analogue exists (the teacher bot trades a single
// spot/perp-less instrument); grounded on the sliding-window correlation
// pattern used by billygk-alpha-trading's internal/watcher (time-windowed
// trigger checks over recent events) and the dislocation-detection shape
// of sawpanic-cryptorun's internal/microstructure.
package vacuum

import (
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Params are the configurable thresholds from §6.
type Params struct {
	Window           time.Duration // vacuum_window_ms
	MinLiqNotional   float64       // vacuum_min_liq
	Threshold        float64       // vacuum_threshold
	MaxHold          time.Duration
	ConvergenceBasis float64 // default 0, per §4.3 step 2
	MinConfidence    float64 // below this, no Intent is emitted (§4.3)
	DefaultTTL       time.Duration
	MaxSlippageBps   float64
}

type pairWindow struct {
	liqs []model.LiquidationEvent
	open *openVacuum
}

type openVacuum struct {
	intentID   string
	openedAt   time.Time
	convergeAt float64
}

// Detector is the Vacuum Detector (§4.3).
type Detector struct {
	params Params
	byPair map[string]*pairWindow
	log    zerolog.Logger
}

func New(params Params, log zerolog.Logger) *Detector {
	return &Detector{params: params, byPair: make(map[string]*pairWindow), log: log.With().Str("component", "vacuum").Logger()}
}

func (d *Detector) window(pair model.Pair) *pairWindow {
	k := pair.Key()
	w, ok := d.byPair[k]
	if !ok {
		w = &pairWindow{}
		d.byPair[k] = w
	}
	return w
}

// OnLiquidation records a liquidation event in the pair's sliding window
// (§4.3 step 1), dropping notionals below vacuum_min_liq and events older
// than the window.
func (d *Detector) OnLiquidation(pair model.Pair, ev model.LiquidationEvent, now time.Time) {
	if ev.Notional < d.params.MinLiqNotional {
		return
	}
	w := d.window(pair)
	w.liqs = append(w.liqs, ev)
	d.evict(w, now)
}

func (d *Detector) evict(w *pairWindow, now time.Time) {
	cutoff := now.Add(-d.params.Window)
	i := 0
	for i < len(w.liqs) && w.liqs[i].T.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.liqs = append([]model.LiquidationEvent{}, w.liqs[i:]...)
	}
}

// expectedSide maps a basis dislocation direction to the correlated
// liquidation side (§4.3 step 2): "long-liqs -> negative basis -> LONG
// perp / SHORT spot; short-liqs -> positive basis -> SHORT perp / LONG
// spot". Liquidation Side is the side of the position being force-closed;
// a long-liquidation forced-sells, producing downward price pressure.
func expectedSide(basis float64) model.OrderSide {
	if basis < 0 {
		return model.Buy // long-liquidation side
	}
	return model.Sell // short-liquidation side
}

// confidence scales with the number and size of correlated liquidations
// in the window (§4.3 "Confidence is a function of the number and size
// of correlated liquidations"). It is bounded in [0,1].
func confidence(matching []model.LiquidationEvent, minLiq float64) float64 {
	if len(matching) == 0 {
		return 0
	}
	var total float64
	for _, l := range matching {
		total += l.Notional
	}
	countFactor := float64(len(matching)) / float64(len(matching)+1) // asymptotic to 1
	sizeFactor := total / (total + minLiq)                           // asymptotic to 1
	c := countFactor * sizeFactor
	if c > 1 {
		c = 1
	}
	return c
}

// OnBasisUpdate checks whether the current basis plus the liquidation
// window justifies a VACUUM_OPEN (§4.3 step 2) or closes an existing
// vacuum position that has converged or exceeded max holding (§4.3 step
// 3). Returns (Intent{}, false) if nothing fires.
func (d *Detector) OnBasisUpdate(pair model.Pair, basis float64, notional decimal.Decimal, now time.Time) (model.Intent, bool) {
	w := d.window(pair)
	d.evict(w, now)

	if w.open != nil {
		converged := (w.open.convergeAt >= 0 && basis <= w.open.convergeAt) ||
			(w.open.convergeAt < 0 && basis >= w.open.convergeAt)
		expired := now.Sub(w.open.openedAt) >= d.params.MaxHold
		if converged || expired {
			in := d.newIntent(model.VacuumClose, pair, oppositeDirectionFor(basis), notional, now)
			w.open = nil
			return in, true
		}
		return model.Intent{}, false // one vacuum position open at a time per pair
	}

	if basis > -d.params.Threshold && basis < d.params.Threshold {
		return model.Intent{}, false
	}

	side := expectedSide(basis)
	var matching []model.LiquidationEvent
	for _, l := range w.liqs {
		if l.Side == side {
			matching = append(matching, l)
		}
	}
	if len(matching) == 0 {
		return model.Intent{}, false
	}
	conf := confidence(matching, d.params.MinLiqNotional)
	if conf < d.params.MinConfidence {
		return model.Intent{}, false
	}

	in := d.newIntent(model.VacuumOpen, pair, directionFor(basis), notional, now)
	w.open = &openVacuum{intentID: in.ID, openedAt: now, convergeAt: d.params.ConvergenceBasis}
	return in, true
}

// directionFor returns the spot-leg direction for a VACUUM_OPEN: a
// negative basis (perp cheap relative to spot) correlates with
// long-liquidations, and the capture trade is "LONG perp / SHORT spot"
// (§4.3), so the spot leg sells; a positive basis buys spot and shorts
// perp. Direction here records the *spot* leg direction per
// model.Intent's convention.
func directionFor(basis float64) model.OrderSide {
	if basis < 0 {
		return model.Sell // short spot, long perp
	}
	return model.Buy // long spot, short perp
}

func oppositeDirectionFor(basis float64) model.OrderSide {
	return directionFor(basis).Opposite()
}

func (d *Detector) newIntent(kind model.IntentKind, pair model.Pair, dir model.OrderSide, notional decimal.Decimal, now time.Time) model.Intent {
	conv := d.params.ConvergenceBasis
	ttl := d.params.DefaultTTL
	return model.Intent{
		ID:                uuid.New().String(),
		Kind:               kind,
		Pair:               pair,
		Direction:          dir,
		TargetNotional:     notional,
		MaxSlippageBps:     d.params.MaxSlippageBps,
		TTL:                ttl,
		Cause:              model.CauseVacuum,
		CreatedAt:          now,
		Deadline:           now.Add(ttl),
		ConvergenceBasis:   &conv,
	}
}
