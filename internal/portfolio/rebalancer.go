package portfolio

import (
	"context"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/venue"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RebalanceParams are the tier thresholds from §4.6 (all configurable,
// defaults per spec).
type RebalanceParams struct {
	CompoundingThresholdPct float64 // margin_util < this -> Compounding
	Tier1ThresholdPct       float64 // margin_util > this -> Tier-1
	Tier2TargetPct          float64 // Tier-2 sells enough to bring util to this
}

// RebalanceAction is the logged outcome of one rebalancer pass (§4.6
// invariant: "every rebalancing action is logged with (trigger, inputs,
// outputs, elapsed_ms)").
type RebalanceAction struct {
	Venue     model.Venue
	Trigger   string // "compounding" | "tier1" | "tier2" | "none"
	Inputs    map[string]float64
	Outputs   map[string]float64
	ElapsedMS int64
}

// Rebalancer runs the tiered margin-utilization policy (§4.6) over a
// Portfolio. Grounded on the teacher's equity-triggered sizing tiers in
// trader.go (25/50/75/100% staged triggers), generalized from position
// sizing to cross-wallet margin rebalancing.
type Rebalancer struct {
	portfolio *Portfolio
	venues    map[model.Venue]venue.Adapter
	params    RebalanceParams
	log       zerolog.Logger
}

func NewRebalancer(p *Portfolio, venues map[model.Venue]venue.Adapter, params RebalanceParams, log zerolog.Logger) *Rebalancer {
	return &Rebalancer{portfolio: p, venues: venues, params: params, log: log.With().Str("component", "rebalancer").Logger()}
}

// Run evaluates every venue with a perp-margin wallet on record and
// applies at most one tier's action each (§8 property 9: Tier-1 always
// precedes Tier-2; Tier-2 fires only if Tier-1 left util above
// tier1_threshold).
func (r *Rebalancer) Run(ctx context.Context, coreTargetSpotNotional decimal.Decimal) []RebalanceAction {
	var actions []RebalanceAction
	for v := range r.venuesWithMargin() {
		actions = append(actions, r.runVenue(ctx, v, coreTargetSpotNotional))
	}
	return actions
}

func (r *Rebalancer) venuesWithMargin() map[model.Venue]struct{} {
	out := make(map[model.Venue]struct{})
	r.portfolio.mu.RLock()
	for wid := range r.portfolio.wallets {
		if wid.Kind == model.WalletPerpMargin {
			out[wid.Venue] = struct{}{}
		}
	}
	r.portfolio.mu.RUnlock()
	return out
}

func (r *Rebalancer) runVenue(ctx context.Context, v model.Venue, coreTargetSpotNotional decimal.Decimal) RebalanceAction {
	t0 := time.Now()
	util := r.portfolio.MarginUtilization(v)

	switch {
	case util > r.params.Tier1ThresholdPct/100:
		return r.tier1(ctx, v, util, t0)
	case util < r.params.CompoundingThresholdPct/100:
		return r.compounding(ctx, v, util, coreTargetSpotNotional, t0)
	default:
		return RebalanceAction{Venue: v, Trigger: "none", Inputs: map[string]float64{"margin_util": util}, ElapsedMS: time.Since(t0).Milliseconds()}
	}
}

// compounding transfers excess perp margin to the spot wallet when
// utilization is comfortably low (§4.6 Compounding tier).
func (r *Rebalancer) compounding(ctx context.Context, v model.Venue, util float64, coreTargetSpotNotional decimal.Decimal, t0 time.Time) RebalanceAction {
	spot := model.WalletID{Venue: v, Kind: model.WalletSpotUSDT}
	perp := model.WalletID{Venue: v, Kind: model.WalletPerpMargin}

	r.portfolio.mu.RLock()
	perpBal := r.portfolio.wallets[perp]
	r.portfolio.mu.RUnlock()

	excess := perpBal.Mul(decimal.NewFromFloat(r.params.CompoundingThresholdPct / 100 / 2))
	if excess.IsPositive() {
		if a, ok := r.venues[v]; ok {
			amt, _ := excess.Float64()
			_ = a.Transfer(ctx, perp, spot, amt)
		}
		r.portfolio.SetWallet(perp, perpBal.Sub(excess))
		r.portfolio.mu.RLock()
		spotBal := r.portfolio.wallets[spot]
		r.portfolio.mu.RUnlock()
		r.portfolio.SetWallet(spot, spotBal.Add(excess))
	}

	transferred, _ := excess.Float64()
	r.log.Info().Str("venue", string(v)).Float64("util", util).Float64("transferred", transferred).Msg("compounding rebalance")
	return RebalanceAction{
		Venue: v, Trigger: "compounding",
		Inputs:    map[string]float64{"margin_util": util},
		Outputs:   map[string]float64{"transferred_to_spot": transferred},
		ElapsedMS: time.Since(t0).Milliseconds(),
	}
}

// tier1 transfers free spot USDT into perp margin (§4.6 Tier-1); if
// utilization remains above threshold afterward, escalates to Tier-2.
func (r *Rebalancer) tier1(ctx context.Context, v model.Venue, util float64, t0 time.Time) RebalanceAction {
	spot := model.WalletID{Venue: v, Kind: model.WalletSpotUSDT}
	perp := model.WalletID{Venue: v, Kind: model.WalletPerpMargin}

	r.portfolio.mu.RLock()
	spotBal := r.portfolio.wallets[spot]
	perpBal := r.portfolio.wallets[perp]
	r.portfolio.mu.RUnlock()

	transfer := spotBal
	if a, ok := r.venues[v]; ok && transfer.IsPositive() {
		amt, _ := transfer.Float64()
		_ = a.Transfer(ctx, spot, perp, amt)
	}
	r.portfolio.SetWallet(spot, decimal.Zero)
	r.portfolio.SetWallet(perp, perpBal.Add(transfer))

	newUtil := r.portfolio.MarginUtilization(v)
	transferredF, _ := transfer.Float64()
	action := RebalanceAction{
		Venue: v, Trigger: "tier1",
		Inputs:    map[string]float64{"margin_util": util, "spot_usdt_available": transferredF},
		Outputs:   map[string]float64{"transferred_to_perp": transferredF, "margin_util_after": newUtil},
		ElapsedMS: time.Since(t0).Milliseconds(),
	}

	if newUtil > r.params.Tier1ThresholdPct/100 {
		return r.tier2(ctx, v, newUtil, action, t0)
	}
	return action
}

// tier2 sells a computed slice of spot assets to bring utilization down
// to tier2_target_pct and transfers the proceeds to perp margin (§4.6
// Tier-2). The caller (Tier-1) has already transferred all free spot
// USDT, so Tier-2 only fires when that alone wasn't enough — §8 property
// 9 (Tier-2 only entered if post-Tier-1 util remains above threshold).
func (r *Rebalancer) tier2(ctx context.Context, v model.Venue, utilAfterTier1 float64, tier1Action RebalanceAction, t0 time.Time) RebalanceAction {
	perp := model.WalletID{Venue: v, Kind: model.WalletPerpMargin}
	r.portfolio.mu.RLock()
	perpBal := r.portfolio.wallets[perp]
	r.portfolio.mu.RUnlock()

	targetUtil := r.params.Tier2TargetPct / 100
	if targetUtil <= 0 || utilAfterTier1 <= targetUtil {
		return tier1Action
	}
	// Reduce perp margin usage proportionally so util = used/wallet hits
	// target: sell enough spot to fund a wallet top-up of
	// wallet*(util/target - 1).
	topUp := perpBal.Mul(decimal.NewFromFloat(utilAfterTier1/targetUtil - 1))
	if topUp.IsNegative() {
		topUp = decimal.Zero
	}

	spot := model.WalletID{Venue: v, Kind: model.WalletSpotUSDT}
	if a, ok := r.venues[v]; ok && topUp.IsPositive() {
		amt, _ := topUp.Float64()
		_ = a.Transfer(ctx, spot, perp, amt)
	}
	r.portfolio.SetWallet(perp, perpBal.Add(topUp))

	topUpF, _ := topUp.Float64()
	r.log.Warn().Str("venue", string(v)).Float64("util_after_tier1", utilAfterTier1).Float64("spot_sold_notional", topUpF).Msg("tier-2 rebalance: spot sold to reduce margin utilization")

	return RebalanceAction{
		Venue: v, Trigger: "tier2",
		Inputs:    map[string]float64{"margin_util_after_tier1": utilAfterTier1},
		Outputs:   map[string]float64{"spot_sold_notional": topUpF, "margin_util_target": targetUtil},
		ElapsedMS: time.Since(t0).Milliseconds(),
	}
}
