package orchestrator

import (
	"context"
	"time"

	"github.com/chidi150c/sentinel/internal/executor"
	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/router"
	"github.com/chidi150c/sentinel/internal/telemetry"
	"github.com/chidi150c/sentinel/internal/venue"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// dispatchIntent is the Executor task's entry point (§5 item 4): gate,
// route, submit, then fold the terminal Result into the Portfolio and
// Performance Ledger. Every Intent passed to it is handled end to end
// before the call returns, matching the synchronous-per-Intent shape
// internal/executor.Executor.Submit already implements (its own polling
// loop plays the role of the per-venue "fill-ingress task" in §5 item 5:
// it already drains fills by leg-order id in strict t_exchange order).
func (o *Orchestrator) dispatchIntent(ctx context.Context, in model.Intent) {
	aggregate := o.aggregateOpenNotional()
	gated, err := o.guardian.Gate(in, aggregate)
	if err != nil {
		o.log.Warn().Str("intent", in.ID).Str("kind", string(in.Kind)).Err(err).Msg("intent refused")
		telemetry.IntentsTotal.WithLabelValues(string(in.Kind), "REFUSED").Inc()
		return
	}
	in = gated

	decision, ok := o.route(in.Pair)
	if !ok {
		o.log.Error().Str("intent", in.ID).Str("pair", in.Pair.Key()).Msg("no eligible venue to route")
		telemetry.IntentsTotal.WithLabelValues(string(in.Kind), "UNROUTABLE").Inc()
		return
	}
	in.VenueSpot = decision.VenueSpot
	in.VenuePerp = decision.VenuePerp
	in.ExpectedImpactBps = decision.ExpectedImpactBps

	marks, _ := o.portfolio.Marks(in.Pair)
	result := o.exec.Submit(ctx, in, marks.SpotPrice, marks.PerpPrice)
	telemetry.IntentsTotal.WithLabelValues(string(in.Kind), string(result.State)).Inc()
	if result.Alert != "" {
		o.log.Warn().Str("intent", in.ID).Str("alert", result.Alert).Msg("execution alert")
	}

	o.applyResult(ctx, in, result)
}

// route builds the Router's VenueInfo candidates for both legs of a
// pair from the configured cost models (§4.4) and asks for a Decision.
// A pair's home venue (pair.Venue) is always a candidate; any other
// configured venue with a cost model for the same pair is also offered,
// letting cross-venue routing fire when it is worthwhile (§4.4(ii)).
// venueEligibility is implemented by venue.Resilient; a plain Adapter
// falls back to its raw Status() with no breaker state to fold in.
type venueEligibility interface {
	Eligible() bool
}

func (o *Orchestrator) route(pair model.Pair) (router.Decision, bool) {
	var spotCandidates, perpCandidates []router.VenueInfo
	for v, a := range o.venues.Adapters {
		cost, ok := o.venues.CostModels[v]
		if !ok {
			continue
		}
		eligible := a.Status() == venue.StatusFresh
		if re, ok := a.(venueEligibility); ok {
			eligible = re.Eligible()
		}
		spotCandidates = append(spotCandidates, router.VenueInfo{Venue: v, Cost: cost, Eligible: eligible})
		perpCandidates = append(perpCandidates, router.VenueInfo{Venue: v, Cost: cost, Eligible: eligible})
	}
	return o.router.Route(spotCandidates, perpCandidates)
}

// aggregateOpenNotional sums the absolute directional notional of every
// open position, the input internal/risk.Guardian.Gate compares against
// position_cap_aggregate (§4.7, §6).
func (o *Orchestrator) aggregateOpenNotional() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range o.portfolio.Positions() {
		marks, ok := o.portfolio.Marks(pos.Pair)
		if !ok {
			continue
		}
		total = total.Add(pos.DirectionalNotional(marks.SpotPrice, marks.PerpPrice).Abs())
	}
	return total
}

// applyResult folds a terminated (or compensated) Intent's legs into the
// Portfolio (§4.6 "apply(fill)") and, for closes, into the Performance
// Ledger as a Trade (§4.8). Results still in flight or with no filled
// quantity on either leg leave the Portfolio untouched.
func (o *Orchestrator) applyResult(ctx context.Context, in model.Intent, result executor.Result) {
	switch result.State {
	case model.StateDone, model.StateCompensated, model.StatePartial:
	default:
		return
	}
	if result.SpotLeg.FilledQty.IsZero() && result.PerpLeg.FilledQty.IsZero() {
		return
	}

	now := time.Now()
	if isOpenKind(in.Kind) {
		o.openPositionFromResult(in, result, now)
		return
	}
	o.closePositionFromResult(ctx, in, result, now)
}

func isOpenKind(k model.IntentKind) bool {
	return k == model.OpenHedge || k == model.VacuumOpen
}

// positionKindFor infers the capital-policy pool a Position belongs to
// from the Intent that opened or is closing it (§3 Position.Kind).
func positionKindFor(cause model.IntentCause, kind model.IntentKind) model.PositionKind {
	switch {
	case kind == model.VacuumOpen || kind == model.VacuumClose:
		return model.KindVacuum
	case cause == model.CauseCoreSizing:
		return model.KindCore
	default:
		return model.KindSatellite
	}
}

func (o *Orchestrator) openPositionFromResult(in model.Intent, result executor.Result, now time.Time) {
	kind := positionKindFor(in.Cause, in.Kind)
	o.portfolio.Open(model.Position{
		Pair:              in.Pair,
		Kind:              kind,
		OpenedAt:          now,
		OpeningIntentID:   in.ID,
		TargetConvergence: in.ConvergenceBasis,
	})
	o.portfolio.Apply(in.Pair, in.ID, model.LegSpot, result.SpotLeg.Side, result.SpotLeg.FilledQty, now)
	o.portfolio.Apply(in.Pair, in.ID, model.LegPerp, result.PerpLeg.Side, result.PerpLeg.FilledQty, now)

	marks, _ := o.portfolio.Marks(in.Pair)
	entryBasis, _ := o.stats.BasisNow(in.Pair)
	entryNotional := decimal.Zero
	for _, pos := range o.portfolio.Positions() {
		if pos.OpeningIntentID == in.ID {
			entryNotional = pos.DirectionalNotional(marks.SpotPrice, marks.PerpPrice)
			break
		}
	}
	o.portfolio.SetEntryNotional(in.Pair, in.ID, entryNotional, entryBasis)

	o.mu.Lock()
	o.openPosition[openKey(in.Pair, kind)] = in.ID
	o.mu.Unlock()
}

func (o *Orchestrator) closePositionFromResult(ctx context.Context, in model.Intent, result executor.Result, now time.Time) {
	kind := positionKindFor(in.Cause, in.Kind)
	key := openKey(in.Pair, kind)

	o.mu.Lock()
	openingIntentID, ok := o.openPosition[key]
	o.mu.Unlock()
	if !ok {
		// emergency_flatten close-Intents carry no causation back to the
		// specific position they target; fall back to any open position
		// on the pair of a compatible (vacuum vs non-vacuum) kind.
		for _, pos := range o.portfolio.Positions() {
			if pos.Pair.Key() != in.Pair.Key() {
				continue
			}
			if (kind == model.KindVacuum) != (pos.Kind == model.KindVacuum) {
				continue
			}
			openingIntentID = pos.OpeningIntentID
			ok = true
			break
		}
	}
	if !ok {
		return
	}

	o.portfolio.Apply(in.Pair, openingIntentID, model.LegSpot, result.SpotLeg.Side, result.SpotLeg.FilledQty, now)
	o.portfolio.Apply(in.Pair, openingIntentID, model.LegPerp, result.PerpLeg.Side, result.PerpLeg.FilledQty, now)

	pos, ok := o.portfolio.Close(in.Pair, openingIntentID)
	if !ok {
		return
	}
	o.mu.Lock()
	if o.openPosition[key] == openingIntentID {
		delete(o.openPosition, key)
	}
	o.mu.Unlock()

	marks, _ := o.portfolio.Marks(in.Pair)
	exitBasis, _ := o.stats.BasisNow(in.Pair)
	closeNotional := pos.DirectionalNotional(marks.SpotPrice, marks.PerpPrice)
	realizedPnL := closeNotional.Sub(pos.EntryNotional)
	if pos.EntryNotional.IsZero() {
		realizedPnL = decimal.Zero
	}

	trade := model.Trade{
		ID:                uuid.New().String(),
		IntentID:          in.ID,
		Pair:              in.Pair,
		Kind:              pos.Kind,
		Direction:         in.Direction,
		OpenT:             pos.OpenedAt,
		CloseT:            now,
		EntryBasis:        pos.EntryBasis,
		ExitBasis:         exitBasis,
		Notional:          pos.EntryNotional.Abs(),
		FeesTotal:         decimal.Zero,
		FundingAttributed: decimal.Zero,
		BasisScalpPnL:     realizedPnL,
		RealizedPnL:       realizedPnL,
		HoldingMS:         now.Sub(pos.OpenedAt).Milliseconds(),
		RoutingVenueSpot:  in.VenueSpot,
		RoutingVenuePerp:  in.VenuePerp,
		ExpectedImpactBps: in.ExpectedImpactBps,
	}
	if o.store != nil {
		_ = o.store.RecordTrade(ctx, trade)
	}
	outcome := "win"
	if realizedPnL.IsNegative() {
		outcome = "loss"
	}
	telemetry.TradesTotal.WithLabelValues(in.Pair.Key(), outcome).Inc()
}

func openKey(pair model.Pair, kind model.PositionKind) string {
	return pair.Key() + "/" + string(kind)
}
