// Package executor – Atomic Executor (§4.5): submits an Intent's two
// legs together, reconciles partial fills, slices large notionals into
// TWAP clips, and compensates on failure. Every transition is appended
// to an append-only, monotonically sequenced transaction log.
//
// Grounded on the teacher's step.go/trader.go maker-first async-open
// loop (PendingOpen polled until filled/timeout, one fallback to market
// on timeout), generalized from a single-leg open/exit to a two-leg
// atomic hedge with delta reconciliation and compensation, per Design
// Notes §9 ("per-Intent ad hoc state machines... become an explicit
// state enum with a transition table") — the table itself lives in
// internal/model/intent.go.
package executor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/venue"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Params are the configurable thresholds from §6 governing dispatch,
// reconciliation, and TWAP slicing.
type Params struct {
	DeltaToleranceNotional decimal.Decimal
	TWAPThreshold          decimal.Decimal
	TWAPClipMax            decimal.Decimal
	TWAPIntervalMin        time.Duration
	TWAPIntervalMax        time.Duration
	TWAPAbortBps           float64
	DispatchWindow         time.Duration // target <100ms between the two place() calls
	AggressionBps          float64       // added to post-only limit price to improve fill odds
	PollInterval           time.Duration
}

// Result is what Submit returns once the Intent reaches a terminal state,
// or LIVE with a non-empty Alert for an aborted-but-not-reversed TWAP
// (scenario S3).
type Result struct {
	IntentID    string
	State       model.IntentState
	SpotLeg     model.LegOrder
	PerpLeg     model.LegOrder
	Alert       string
	Err         error
	ClipsFilled int
	ClipsTotal  int
}

// Executor is the Atomic Executor (§4.5).
type Executor struct {
	venues map[model.Venue]venue.Adapter
	params Params
	txlog  *TxLog
	alert  Alerter
	log    zerolog.Logger

	mu       sync.Mutex
	inflight map[string]model.IntentState
}

func New(venues map[model.Venue]venue.Adapter, params Params, alert Alerter, log zerolog.Logger) *Executor {
	if alert == nil {
		alert = noopAlerter{}
	}
	if params.PollInterval <= 0 {
		params.PollInterval = 20 * time.Millisecond
	}
	return &Executor{
		venues:   venues,
		params:   params,
		txlog:    NewTxLog(),
		alert:    alert,
		log:      log.With().Str("component", "executor").Logger(),
		inflight: make(map[string]model.IntentState),
	}
}

// TxLog exposes the transaction log for the Ledger/orchestrator to read.
func (e *Executor) TxLog() *TxLog { return e.txlog }

// InFlight reports whether pair has a non-terminal Intent outstanding
// (§8 property 5, backing the Signal Generator's InFlightChecker).
func (e *Executor) InFlight(pair model.Pair) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.inflight[pair.Key()]
	return ok && !st.Terminal()
}

func (e *Executor) setState(pair model.Pair, st model.IntentState) {
	e.mu.Lock()
	e.inflight[pair.Key()] = st
	e.mu.Unlock()
}

func (e *Executor) logTransition(intentID string, st model.IntentState, detail string) {
	e.txlog.Append(intentID, string(st), detail, time.Now())
}

func notionalToQty(notional decimal.Decimal, price float64) float64 {
	if price <= 0 {
		return 0
	}
	q, _ := notional.Div(decimal.NewFromFloat(price)).Float64()
	return q
}

// aggressedPrice nudges a post-only limit price toward crossing, by
// aggressionBps, to improve fill probability while remaining passive.
func aggressedPrice(ref float64, side model.OrderSide, aggressionBps float64) float64 {
	adj := ref * aggressionBps / 10000
	if side == model.Buy {
		return ref + adj
	}
	return ref - adj
}

func bpsDiff(actual, ref float64) float64 {
	if ref == 0 || actual == 0 {
		return 0
	}
	return math.Abs(actual-ref) / ref * 10000
}

// Submit places both legs of intent and blocks until both reach a
// terminal state, a compensating reversal completes, or (TWAP only) a
// clip aborts on excess slippage (§4.5 public contract).
func (e *Executor) Submit(ctx context.Context, intent model.Intent, spotPrice, perpPrice float64) Result {
	e.setState(intent.Pair, model.StateCreated)
	e.logTransition(intent.ID, model.StateCreated, "")

	if !intent.Urgent && intent.TargetNotional.GreaterThan(e.params.TWAPThreshold) {
		return e.runTWAP(ctx, intent, spotPrice, perpPrice)
	}
	return e.runSingle(ctx, intent, intent.TargetNotional, spotPrice, perpPrice)
}

// Cancel is a best-effort cancel (§4.5): it cancels the given spot and
// perp leg orders on their venues (an empty order id is skipped) and
// marks the pair's Intent CANCELED. It issues no compensating order for
// any quantity those legs had already filled.
func (e *Executor) Cancel(ctx context.Context, pair model.Pair, spotVenue, perpVenue model.Venue, spotOrderID, perpOrderID string) {
	if a, ok := e.venues[spotVenue]; ok && spotOrderID != "" {
		_ = a.CancelOrder(ctx, spotOrderID)
	}
	if a, ok := e.venues[perpVenue]; ok && perpOrderID != "" {
		_ = a.CancelOrder(ctx, perpOrderID)
	}
	e.setState(pair, model.StateCanceled)
}

// runSingle places one two-leg clip — the whole Intent for non-TWAP
// submissions, or one slice for a TWAP Intent (§4.5 step 2,4).
func (e *Executor) runSingle(ctx context.Context, intent model.Intent, notional decimal.Decimal, spotPrice, perpPrice float64) Result {
	spotAdapter, ok1 := e.venues[intent.VenueSpot]
	perpAdapter, ok2 := e.venues[intent.VenuePerp]
	if !ok1 || !ok2 {
		e.setState(intent.Pair, model.StateFailed)
		e.logTransition(intent.ID, model.StateFailed, "unknown venue")
		return Result{IntentID: intent.ID, State: model.StateFailed, Err: model.ErrBothLegsFailed}
	}

	e.setState(intent.Pair, model.StatePlacing)
	e.logTransition(intent.ID, model.StatePlacing, "")

	spotSide := intent.Direction
	perpSide := intent.Direction.Opposite()
	spotQty := notionalToQty(notional, spotPrice)
	perpQty := notionalToQty(notional, perpPrice)

	t0 := time.Now()
	spotID, errSpot := spotAdapter.PlaceOrder(ctx, model.VenueOrderRequest{
		Pair: intent.Pair, Side: spotSide, Kind: model.KindLimitPostOnly,
		Price: aggressedPrice(spotPrice, spotSide, e.params.AggressionBps), Qty: spotQty, ClientTag: intent.ID + ":spot",
	})
	perpID, errPerp := perpAdapter.PlaceOrder(ctx, model.VenueOrderRequest{
		Pair: intent.Pair, Side: perpSide, Kind: model.KindLimitPostOnly,
		Price: aggressedPrice(perpPrice, perpSide, e.params.AggressionBps), Qty: perpQty, ClientTag: intent.ID + ":perp",
	})
	if elapsed := time.Since(t0); elapsed > e.params.DispatchWindow {
		e.log.Warn().Dur("elapsed", elapsed).Str("intent", intent.ID).Msg("leg dispatch exceeded bounded window")
	}

	if errSpot != nil && errPerp != nil {
		e.setState(intent.Pair, model.StateFailed)
		e.logTransition(intent.ID, model.StateFailed, "both legs rejected at placement")
		return Result{IntentID: intent.ID, State: model.StateFailed, Err: model.ErrBothLegsFailed}
	}

	e.setState(intent.Pair, model.StateLive)
	e.logTransition(intent.ID, model.StateLive, "")

	spotLeg := model.LegOrder{State: model.LegRejected}
	if errSpot == nil {
		spotLeg = e.getOrderSafe(ctx, spotAdapter, spotID)
	}
	perpLeg := model.LegOrder{State: model.LegRejected}
	if errPerp == nil {
		perpLeg = e.getOrderSafe(ctx, perpAdapter, perpID)
	}

	spotLeg, perpLeg = e.pollBothTerminal(ctx, intent, spotAdapter, perpAdapter, spotID, perpID, spotLeg, perpLeg, spotSide, perpSide, spotQty, perpQty, spotPrice, perpPrice)
	return e.finish(ctx, intent, spotAdapter, perpAdapter, spotLeg, perpLeg, spotPrice, perpPrice)
}

func (e *Executor) getOrderSafe(ctx context.Context, a venue.Adapter, id string) model.LegOrder {
	o, err := a.GetOrder(ctx, id)
	if err != nil {
		return model.LegOrder{State: model.LegRejected}
	}
	return *o
}

// pollBothTerminal polls both legs until each reaches a terminal
// LegState, or the Intent's deadline passes, canceling any outstanding
// leg at that point (§4.5 step 5 "Timeout"). If ctx is canceled first,
// the last-polled legs are returned without being canceled. Once the
// Intent's TTL is half-consumed, any leg still passive (not yet
// terminal) is canceled and replaced with an IOC order at the same
// qty against the live reference price, per §4.5 step 2.
func (e *Executor) pollBothTerminal(ctx context.Context, intent model.Intent, spotAdapter, perpAdapter venue.Adapter, spotID, perpID string, spotLeg, perpLeg model.LegOrder, spotSide, perpSide model.OrderSide, spotQty, perpQty, spotPrice, perpPrice float64) (model.LegOrder, model.LegOrder) {
	ticker := time.NewTicker(e.params.PollInterval)
	defer ticker.Stop()

	halfConverted := false
	for {
		spotDone := spotLeg.State.Terminal()
		perpDone := perpLeg.State.Terminal()
		if spotDone && perpDone {
			return spotLeg, perpLeg
		}
		now := time.Now()
		if !halfConverted && !intent.Expired(now) && intent.HalfConsumed(now) {
			halfConverted = true
			if !spotDone && spotID != "" {
				_ = spotAdapter.CancelOrder(ctx, spotID)
				if newID, err := spotAdapter.PlaceOrder(ctx, model.VenueOrderRequest{
					Pair: intent.Pair, Side: spotSide, Kind: model.KindIOC, Price: spotPrice, Qty: spotQty, ClientTag: intent.ID + ":spot:ioc",
				}); err == nil {
					spotID = newID
					spotLeg = e.getOrderSafe(ctx, spotAdapter, spotID)
				}
				e.logTransition(intent.ID, model.StateLive, "half-ttl IOC fallback: spot leg")
			}
			if !perpDone && perpID != "" {
				_ = perpAdapter.CancelOrder(ctx, perpID)
				if newID, err := perpAdapter.PlaceOrder(ctx, model.VenueOrderRequest{
					Pair: intent.Pair, Side: perpSide, Kind: model.KindIOC, Price: perpPrice, Qty: perpQty, ClientTag: intent.ID + ":perp:ioc",
				}); err == nil {
					perpID = newID
					perpLeg = e.getOrderSafe(ctx, perpAdapter, perpID)
				}
				e.logTransition(intent.ID, model.StateLive, "half-ttl IOC fallback: perp leg")
			}
			spotDone = spotLeg.State.Terminal()
			perpDone = perpLeg.State.Terminal()
			if spotDone && perpDone {
				return spotLeg, perpLeg
			}
		}
		if intent.Expired(now) {
			if !spotDone && spotID != "" {
				_ = spotAdapter.CancelOrder(context.Background(), spotID)
				spotLeg = e.getOrderSafe(context.Background(), spotAdapter, spotID)
			}
			if !perpDone && perpID != "" {
				_ = perpAdapter.CancelOrder(context.Background(), perpID)
				perpLeg = e.getOrderSafe(context.Background(), perpAdapter, perpID)
			}
			return spotLeg, perpLeg
		}
		select {
		case <-ctx.Done():
			return spotLeg, perpLeg
		case <-ticker.C:
			if !spotDone && spotID != "" {
				spotLeg = e.getOrderSafe(ctx, spotAdapter, spotID)
			}
			if !perpDone && perpID != "" {
				perpLeg = e.getOrderSafe(ctx, perpAdapter, perpID)
			}
		}
	}
}

// finish classifies the outcome once both legs are terminal (or
// canceled on timeout): straight DONE if delta is within tolerance,
// BOTH_FAILED if neither leg ever filled, otherwise a compensating
// reversal (§4.5 steps 3 and 5).
func (e *Executor) finish(ctx context.Context, intent model.Intent, spotAdapter, perpAdapter venue.Adapter, spotLeg, perpLeg model.LegOrder, spotPrice, perpPrice float64) Result {
	e.setState(intent.Pair, model.StateReconciling)
	e.logTransition(intent.ID, model.StateReconciling, "")

	spotFilled := spotLeg.FilledQty.IsPositive()
	perpFilled := perpLeg.FilledQty.IsPositive()

	if !spotFilled && !perpFilled {
		state := model.StateFailed
		err := error(model.ErrBothLegsFailed)
		if spotLeg.State != model.LegRejected || perpLeg.State != model.LegRejected {
			state = model.StateTimedOut
			err = model.ErrIntentTimedOut
		}
		e.setState(intent.Pair, state)
		e.logTransition(intent.ID, state, "no fills")
		return Result{IntentID: intent.ID, State: state, SpotLeg: spotLeg, PerpLeg: perpLeg, Err: err}
	}

	spotNotional := spotLeg.FilledQty.Mul(decimal.NewFromFloat(spotPrice))
	perpNotional := perpLeg.FilledQty.Mul(decimal.NewFromFloat(perpPrice))
	diff := spotNotional.Sub(perpNotional)

	if diff.Abs().LessThanOrEqual(e.params.DeltaToleranceNotional) {
		e.setState(intent.Pair, model.StateDone)
		e.logTransition(intent.ID, model.StateDone, "")
		return Result{IntentID: intent.ID, State: model.StateDone, SpotLeg: spotLeg, PerpLeg: perpLeg}
	}

	return e.compensate(ctx, intent, spotAdapter, perpAdapter, spotLeg, perpLeg, diff, spotPrice, perpPrice)
}

// compensate issues an IOC/market micro-order on the under-filled leg to
// null the delta imbalance (§4.5 step 3), or — when diff reflects a
// post-fill rejection — a reversal (§4.5 step 5). Terminates COMPENSATED
// and raises an alert either way.
func (e *Executor) compensate(ctx context.Context, intent model.Intent, spotAdapter, perpAdapter venue.Adapter, spotLeg, perpLeg model.LegOrder, diff decimal.Decimal, spotPrice, perpPrice float64) Result {
	e.setState(intent.Pair, model.StateCompensating)
	e.logTransition(intent.ID, model.StateCompensating, "")

	// The leg with the larger filled notional is "leading"; since both
	// legs are already terminal, the only way to null the imbalance is
	// an additional micro-order on the leading leg's own venue, in the
	// direction opposite its original side (§4.5 step 3 "issues an
	// additional micro-order on the leading leg's opposite to null
	// delta").
	var adapter venue.Adapter
	var side model.OrderSide
	var price float64
	excess := diff.Abs()
	perpIsLeading := diff.IsNegative() // perpNotional > spotNotional
	if perpIsLeading {
		adapter, side, price = perpAdapter, intent.Direction, perpPrice // opposite of perp's own side (Direction.Opposite())
	} else {
		adapter, side, price = spotAdapter, intent.Direction.Opposite(), spotPrice // opposite of spot's own side (Direction)
	}

	qty := notionalToQty(excess, price)
	compID, err := adapter.PlaceOrder(ctx, model.VenueOrderRequest{
		Pair: intent.Pair, Side: side, Kind: model.KindIOC, Price: price, Qty: qty, ClientTag: intent.ID + ":compensate",
	})
	detail := fmt.Sprintf("compensating %s notional=%s", side, excess.StringFixed(2))
	if err != nil {
		e.setState(intent.Pair, model.StateFailed)
		e.logTransition(intent.ID, model.StateFailed, "compensation placement failed: "+err.Error())
		e.alert.Alert(ctx, "compensation_failed", detail)
		return Result{IntentID: intent.ID, State: model.StateFailed, SpotLeg: spotLeg, PerpLeg: perpLeg, Err: err}
	}

	compLeg := e.pollUntilTerminal(ctx, adapter, compID)
	if perpIsLeading {
		perpLeg = mergeLeg(perpLeg, compLeg)
	} else {
		spotLeg = mergeLeg(spotLeg, compLeg)
	}

	e.setState(intent.Pair, model.StateCompensated)
	e.logTransition(intent.ID, model.StateCompensated, detail)
	e.alert.Alert(ctx, "intent_compensated", detail)

	return Result{IntentID: intent.ID, State: model.StateCompensated, SpotLeg: spotLeg, PerpLeg: perpLeg, Alert: detail}
}

func (e *Executor) pollUntilTerminal(ctx context.Context, a venue.Adapter, id string) model.LegOrder {
	ticker := time.NewTicker(e.params.PollInterval)
	defer ticker.Stop()
	for {
		o, err := a.GetOrder(ctx, id)
		if err == nil && o.State.Terminal() {
			return *o
		}
		select {
		case <-ctx.Done():
			if err == nil {
				return *o
			}
			return model.LegOrder{State: model.LegTimedOut}
		case <-ticker.C:
		}
	}
}

// mergeLeg folds a compensating fill into the original leg for a single
// consolidated LegOrder per side. A compensating order placed on the
// opposite side from the original leg's fills (the normal case — see
// compensate) nets AGAINST the original exposure rather than adding to
// it; same-side compensation (a resize of the trailing leg) adds.
func mergeLeg(orig, comp model.LegOrder) model.LegOrder {
	if comp.FilledQty.IsZero() {
		return orig
	}
	sign := decimal.NewFromInt(1)
	if comp.Side != "" && orig.Side != "" && comp.Side != orig.Side {
		sign = decimal.NewFromInt(-1)
	}
	origNotional := orig.FilledQty.Mul(decimal.NewFromFloat(orig.AvgPrice))
	compQty := comp.FilledQty.Mul(sign)
	compNotional := comp.FilledQty.Mul(decimal.NewFromFloat(comp.AvgPrice)).Mul(sign)
	total := orig.FilledQty.Add(compQty)
	merged := orig
	merged.FilledQty = total
	if !total.IsZero() {
		avg, _ := origNotional.Add(compNotional).Div(total).Float64()
		merged.AvgPrice = avg
	}
	merged.State = model.LegFilled
	return merged
}

// runTWAP slices intent into clips of at most twap_clip_max, proportional
// on both legs, with randomized inter-clip delays (§4.5 step 4). Each
// clip runs through the same two-leg atomic path as a non-TWAP Intent.
// If a clip's slippage exceeds twap_abort_bps, remaining clips are
// canceled and already-filled clips are left in place (scenario S3).
func (e *Executor) runTWAP(ctx context.Context, intent model.Intent, spotPrice, perpPrice float64) Result {
	total := intent.TargetNotional
	clipSize := e.params.TWAPClipMax
	if clipSize.LessThanOrEqual(decimal.Zero) {
		clipSize = total
	}
	numClips := int(math.Ceil(total.Div(clipSize).InexactFloat64()))
	if numClips < 1 {
		numClips = 1
	}

	remaining := total
	var spotLeg, perpLeg model.LegOrder
	clipsFilled := 0

	for remaining.IsPositive() {
		clip := clipSize
		if remaining.LessThan(clipSize) {
			clip = remaining
		}

		res := e.runSingle(ctx, intent, clip, spotPrice, perpPrice)
		e.setState(intent.Pair, model.StateLive) // the TWAP Intent stays in flight between clips
		clipsFilled++
		spotLeg = mergeLeg(spotLeg, res.SpotLeg)
		perpLeg = mergeLeg(perpLeg, res.PerpLeg)

		slip := math.Max(bpsDiff(res.SpotLeg.AvgPrice, spotPrice), bpsDiff(res.PerpLeg.AvgPrice, perpPrice))
		if slip > e.params.TWAPAbortBps {
			detail := fmt.Sprintf("clip %d/%d slippage %.1fbps exceeds twap_abort_bps; aborting remaining clips", clipsFilled, numClips, slip)
			e.setState(intent.Pair, model.StateLive) // filled clips remain an open position, not terminal
			e.logTransition(intent.ID, model.StateLive, detail)
			e.alert.Alert(ctx, "twap_aborted", detail)
			return Result{IntentID: intent.ID, State: model.StateLive, SpotLeg: spotLeg, PerpLeg: perpLeg, Alert: detail, ClipsFilled: clipsFilled, ClipsTotal: numClips}
		}

		if intent.Expired(time.Now()) {
			break
		}

		remaining = remaining.Sub(clip)
		if remaining.IsPositive() {
			time.Sleep(twapDelay(e.params))
		}
	}

	e.setState(intent.Pair, model.StateDone)
	e.logTransition(intent.ID, model.StateDone, "twap complete")
	return Result{IntentID: intent.ID, State: model.StateDone, SpotLeg: spotLeg, PerpLeg: perpLeg, ClipsFilled: clipsFilled, ClipsTotal: numClips}
}

// twapDelay draws the inter-clip delay uniformly from
// [twap_interval_min, twap_interval_max] (§4.5 step 4, default 30-90s).
func twapDelay(p Params) time.Duration {
	if p.TWAPIntervalMax <= p.TWAPIntervalMin {
		return p.TWAPIntervalMin
	}
	span := int64(p.TWAPIntervalMax - p.TWAPIntervalMin)
	return p.TWAPIntervalMin + time.Duration(rand.Int63n(span))
}
