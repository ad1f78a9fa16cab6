package signal

import (
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CoreTarget returns the notional the CORE hedge should hold to keep
// core_allocation_pct of NAV hedged regardless of basis z-score (§4.2
// "CORE sizing: maintain 50% of NAV in a time-averaged hedge regardless
// of z — continuous rebalance").
func (g *Generator) CoreTarget(nav decimal.Decimal) decimal.Decimal {
	pct := decimal.NewFromFloat(g.params.CoreAllocationPct).Div(decimal.NewFromInt(100))
	return nav.Mul(pct)
}

// CoreRebalance compares the pair's current CORE position notional
// against CoreTarget and, if the drift exceeds toleranceNotional, emits
// an adjustment Intent. This runs independently of the z-score gate
// (§4.2) and independently of the at-most-one-per-pair rule that governs
// SATELLITE intents, since a CORE adjustment and a SATELLITE open/close
// are different capital pools.
func (g *Generator) CoreRebalance(pair model.Pair, currentCoreNotional, nav, toleranceNotional decimal.Decimal, now time.Time) (model.Intent, bool) {
	target := g.CoreTarget(nav)
	drift := target.Sub(currentCoreNotional)
	if drift.Abs().LessThanOrEqual(toleranceNotional) {
		return model.Intent{}, false
	}
	kind := model.OpenHedge
	dir := model.Buy
	if drift.IsNegative() {
		kind = model.CloseHedge
		dir = model.Sell
		drift = drift.Neg()
	}
	ttl := g.params.DefaultTTL
	return model.Intent{
		ID:             uuid.New().String(),
		Kind:           kind,
		Pair:           pair,
		Direction:      dir,
		TargetNotional: drift,
		MaxSlippageBps: g.params.MaxSlippageBps,
		TTL:            ttl,
		Cause:          model.CauseCoreSizing,
		CreatedAt:      now,
		Deadline:       now.Add(ttl),
	}, true
}
