// Package risk – Risk Guardian (§4.7): the synchronous pre-trade gate on
// every Intent submission plus the async runtime monitors that escalate
// through daily-drawdown tiers into SAFE_MODE and, at the limit, an
// emergency flatten.
//
// Grounded on the teacher's MaxDailyLossPct circuit breaker and
// per-trade risk checks in trader.go, generalized from one account's
// equity curve to cross-venue NAV/delta/leverage gates.
package risk

import (
	"context"
	"sync"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Alerter mirrors internal/executor.Alerter; risk events (delta
// warnings, drawdown tier transitions, emergency_flatten) go out the
// same structured-alert path as Executor compensations (§5).
type Alerter interface {
	Alert(ctx context.Context, event, detail string)
}

type noopAlerter struct{}

func (noopAlerter) Alert(context.Context, string, string) {}

// Params are the Risk Guardian's configured thresholds (§4.7, §6).
type Params struct {
	DeltaWarnBps            float64
	DeltaBlockBps           float64
	DDReducePct             float64
	DDSafePct               float64
	MinNAVFloor             decimal.Decimal
	LeverageCap             float64
	PositionCapPerPair      decimal.Decimal
	PositionCapAggregate    decimal.Decimal
	UnrealizedLossReviewPct float64
}

// Guardian holds the Risk Guardian's mutable escalation state: the
// size multiplier and SAFE_MODE flag are read by every Executor
// submission and written by RecomputeNAV (§4.7 "async runtime
// monitors") and by EmergencyFlatten.
type Guardian struct {
	mu sync.RWMutex

	params    Params
	portfolio *portfolio.Portfolio
	alerter   Alerter
	log       zerolog.Logger

	startOfDayNAV   decimal.Decimal
	lastDrawdownPct float64
	safeMode        bool
	sizeMultiplier  float64
	flaggedReview   map[string]bool // openingIntentID -> flagged for unrealized-loss review
}

func New(p *portfolio.Portfolio, params Params, alerter Alerter, log zerolog.Logger) *Guardian {
	if alerter == nil {
		alerter = noopAlerter{}
	}
	return &Guardian{
		params:         params,
		portfolio:      p,
		alerter:        alerter,
		log:            log.With().Str("component", "risk").Logger(),
		startOfDayNAV:  p.NAV(),
		sizeMultiplier: 1,
		flaggedReview:  make(map[string]bool),
	}
}

// RollDay resets the start-of-day NAV baseline; called by the
// orchestrator on a daily timer. It does not touch SAFE_MODE: every
// RecomputeNAV call re-derives SAFE_MODE and the size multiplier from
// the current drawdown alone, so SAFE_MODE (including one set by
// EmergencyFlatten) clears as soon as drawdown is back at or under
// dd_safe_pct, with no day roll required.
func (g *Guardian) RollDay() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.startOfDayNAV = g.portfolio.NAV()
}

// DrawdownPct returns the last-computed daily drawdown as a positive
// percentage (0 if NAV is at or above the start-of-day baseline).
func (g *Guardian) DrawdownPct() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastDrawdownPct
}

func (g *Guardian) SafeMode() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.safeMode
}

func (g *Guardian) SizeMultiplier() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sizeMultiplier
}

// RecomputeNAV is the async runtime monitor (§4.7 "NAV recomputation at
// least every second"): recomputes drawdown off the start-of-day
// baseline and escalates the size multiplier / SAFE_MODE tiers (§8
// property 10). Returns true if SAFE_MODE was newly entered this call.
func (g *Guardian) RecomputeNAV(ctx context.Context) bool {
	nav := g.portfolio.NAV()

	g.mu.Lock()
	base := g.startOfDayNAV
	if base.IsZero() {
		base = nav
		g.startOfDayNAV = nav
	}
	drawdown := 0.0
	if base.IsPositive() {
		dd, _ := base.Sub(nav).Div(base).Float64()
		if dd > 0 {
			drawdown = dd * 100
		}
	}
	g.lastDrawdownPct = drawdown

	wasSafe := g.safeMode
	switch {
	case drawdown > g.params.DDSafePct:
		g.sizeMultiplier = 0
		g.safeMode = true
	case drawdown > g.params.DDReducePct:
		g.sizeMultiplier = 0.5
		g.safeMode = false
	default:
		g.sizeMultiplier = 1
		g.safeMode = false
	}
	enteredSafeMode := g.safeMode && !wasSafe
	g.mu.Unlock()

	if enteredSafeMode {
		g.alerter.Alert(ctx, "safe_mode_entered", "daily drawdown exceeded safe threshold")
		g.log.Warn().Float64("drawdown_pct", drawdown).Msg("entering SAFE_MODE")
	}
	return enteredSafeMode
}

// Gate is the synchronous pre-trade check the Executor's submit() runs
// before placing any leg (§4.7 "Pre-trade checks (synchronous gate in
// the Executor's submit)"). It may shrink intent.TargetNotional (the
// drawdown-reduce tier) or refuse it outright.
func (g *Guardian) Gate(intent model.Intent, aggregateNotional decimal.Decimal) (model.Intent, error) {
	g.mu.RLock()
	safeMode := g.safeMode
	mult := g.sizeMultiplier
	g.mu.RUnlock()

	opening := intent.Kind == model.OpenHedge || intent.Kind == model.VacuumOpen

	if safeMode && opening {
		return intent, model.ErrSafeMode
	}

	nav := g.portfolio.NAV()
	if nav.LessThanOrEqual(g.params.MinNAVFloor) {
		return intent, model.ErrNAVFloor
	}

	if opening {
		projectedDelta := g.portfolio.Delta()
		warnBps := g.params.DeltaWarnBps / 10000
		blockBps := g.params.DeltaBlockBps / 10000
		if abs(projectedDelta) >= blockBps {
			return intent, model.ErrDeltaBlock
		}
		if abs(projectedDelta) >= warnBps {
			g.alerter.Alert(context.Background(), "delta_warn", "portfolio delta at or above warn threshold")
		}

		if intent.TargetNotional.GreaterThan(g.params.PositionCapPerPair) {
			return intent, model.ErrPositionCapped
		}
		if aggregateNotional.Add(intent.TargetNotional).GreaterThan(g.params.PositionCapAggregate) {
			return intent, model.ErrPositionCapped
		}
	}

	if mult < 1 && opening {
		intent.TargetNotional = intent.TargetNotional.Mul(decimal.NewFromFloat(mult))
	}
	return intent, nil
}

// ReviewUnrealizedLoss flags a position for manual review when its
// current directional notional has fallen below its entry notional by
// more than unrealized_loss_review_pct (§4.7 runtime monitor). autoClose
// is the configurable auto-close policy hook; nil disables auto-closing
// and only flags.
func (g *Guardian) ReviewUnrealizedLoss(ctx context.Context, pos model.Position, spotPrice, perpPrice float64, autoClose func(model.Position)) bool {
	baseline := pos.EntryNotional.Abs()
	if baseline.IsZero() {
		return false
	}
	current := pos.DirectionalNotional(spotPrice, perpPrice)
	pnl := current.Sub(pos.EntryNotional)
	lossPct, _ := pnl.Neg().Div(baseline).Mul(decimal.NewFromInt(100)).Float64()
	if lossPct <= g.params.UnrealizedLossReviewPct {
		return false
	}

	g.mu.Lock()
	already := g.flaggedReview[pos.OpeningIntentID]
	g.flaggedReview[pos.OpeningIntentID] = true
	g.mu.Unlock()

	if !already {
		g.alerter.Alert(ctx, "unrealized_loss_review", "position unrealized loss exceeds review threshold")
		g.log.Warn().Str("pair", pos.Pair.Key()).Float64("loss_pct", lossPct).Msg("position flagged for review")
	}
	if autoClose != nil {
		autoClose(pos)
	}
	return true
}

// CancelFunc cancels any in-flight Intent on a pair; SubmitFunc submits
// a new Intent for execution. EmergencyFlatten takes these as callbacks
// rather than importing internal/executor directly, keeping the
// Guardian usable against any execution layer the orchestrator wires
// it to.
type CancelFunc func(pair model.Pair)
type SubmitFunc func(ctx context.Context, intent model.Intent)

// EmergencyFlatten implements §4.7's emergency_flatten(): enters
// SAFE_MODE, calls cancel once for each pair that holds an open
// position, and issues an urgent close-Intent for every open position,
// bypassing TWAP (§8 scenario S6). A pair with an in-flight Intent but
// no open position is not passed to cancel.
func (g *Guardian) EmergencyFlatten(ctx context.Context, cancel CancelFunc, submit SubmitFunc) {
	g.mu.Lock()
	g.safeMode = true
	g.sizeMultiplier = 0
	g.mu.Unlock()

	g.alerter.Alert(ctx, "emergency_flatten", "flattening all positions")
	g.log.Error().Msg("emergency_flatten triggered")

	positions := g.portfolio.Positions()
	seenPairs := make(map[string]bool)
	for _, pos := range positions {
		key := pos.Pair.Key()
		if !seenPairs[key] {
			seenPairs[key] = true
			cancel(pos.Pair)
		}
		submit(ctx, closeIntentFor(pos, g.portfolio))
	}
}

func closeIntentFor(pos model.Position, p *portfolio.Portfolio) model.Intent {
	marks, _ := p.Marks(pos.Pair)
	direction := model.Sell
	if pos.SpotQty.IsNegative() {
		direction = model.Buy
	}
	notional := pos.SpotQty.Abs().Mul(decimal.NewFromFloat(marks.SpotPrice))
	if notional.IsZero() {
		notional = pos.PerpQty.Abs().Mul(decimal.NewFromFloat(marks.PerpPrice))
	}

	kind := model.CloseHedge
	if pos.Kind == model.KindVacuum {
		kind = model.VacuumClose
	}

	now := time.Now()
	return model.Intent{
		ID:             pos.OpeningIntentID + ":flatten",
		Kind:           kind,
		Pair:           pos.Pair,
		Direction:      direction,
		TargetNotional: notional,
		MaxSlippageBps: 100,
		TTL:            5 * time.Second,
		Cause:          model.CauseRiskFlatten,
		CreatedAt:      now,
		Deadline:       now.Add(5 * time.Second),
		VenueSpot:      pos.Pair.Venue,
		VenuePerp:      pos.Pair.Venue,
		Urgent:         true,
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
