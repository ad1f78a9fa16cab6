package model

import "time"

// BasisSample is one observation of the basis for a pair (§3):
//
//	basis = (perp_dw - spot_dw) / spot_dw
//
// produced on every paired snapshot update. The sign convention is fixed
// by spec §9 Open Questions: basis > 0 iff perp_dw > spot_dw.
type BasisSample struct {
	Pair     Pair
	T        time.Time
	SpotDW   float64 // depth-weighted spot price
	PerpDW   float64 // depth-weighted perp price
	Basis    float64
	ImpactBP float64 // max(spot impact, perp impact) in basis points, for Router cost budgeting
}

// NewBasisSample computes the basis ratio from depth-weighted prices.
// Returns the zero value if spotDW is not strictly positive, since the
// ratio is undefined; callers must check Pair against StatusUnsafe first.
func NewBasisSample(pair Pair, t time.Time, spotDW, perpDW, impactBP float64) (BasisSample, bool) {
	if spotDW <= 0 {
		return BasisSample{}, false
	}
	return BasisSample{
		Pair:     pair,
		T:        t,
		SpotDW:   spotDW,
		PerpDW:   perpDW,
		Basis:    (perpDW - spotDW) / spotDW,
		ImpactBP: impactBP,
	}, true
}

// FundingSample is a periodic funding cash-flow observation for a pair,
// feeding the Performance Ledger's funding attribution (SPEC_FULL.md
// "Funding-rate ingestion and attribution"). The Open Question on APY
// formula is resolved by storing the raw rate here and never a derived
// APY field.
type FundingSample struct {
	Pair Pair
	Rate float64 // signed periodic rate paid by longs to shorts
	T    time.Time
}

// LiquidationEvent is a venue liquidation feed item consumed by the
// Vacuum Detector (§4.3, §6).
type LiquidationEvent struct {
	Venue    Venue
	Symbol   string
	Side     OrderSide // side of the liquidated position (the side being force-closed)
	Notional float64
	Price    float64
	T        time.Time
}
