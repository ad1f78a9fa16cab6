package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionKind distinguishes the capital policy behind a Position (§3).
type PositionKind string

const (
	KindCore      PositionKind = "CORE"
	KindSatellite PositionKind = "SATELLITE"
	KindVacuum    PositionKind = "VACUUM"
)

// Position is an open hedge or vacuum position on a Pair (§3).
// For any non-VACUUM position the delta-tolerance invariant
// (§3, property 6) must hold once its opening Intent reaches DONE.
type Position struct {
	Pair             Pair
	Kind             PositionKind
	SpotQty          decimal.Decimal
	PerpQty          decimal.Decimal
	EntryBasis       float64
	EntryNotional    decimal.Decimal // DirectionalNotional at the marks in effect when the position opened; the baseline the Risk Guardian compares current notional against
	OpenedAt         time.Time
	TargetConvergence *float64 // VACUUM only (§3)
	OpeningIntentID  string
}

// DirectionalNotional returns the signed notional this position
// contributes to Portfolio delta: positive if net long, negative if net
// short, at the given marks.
func (p Position) DirectionalNotional(spotPrice, perpPrice float64) decimal.Decimal {
	spotNotional := p.SpotQty.Mul(decimal.NewFromFloat(spotPrice))
	perpNotional := p.PerpQty.Mul(decimal.NewFromFloat(perpPrice))
	return spotNotional.Add(perpNotional)
}

// Trade is the reconciled outcome of a terminated Intent (§3, §4.8).
type Trade struct {
	ID                string
	IntentID          string
	Pair              Pair
	Kind              PositionKind
	Direction         OrderSide
	OpenT             time.Time
	CloseT            time.Time
	EntryBasis        float64
	ExitBasis         float64
	Notional          decimal.Decimal
	FeesTotal         decimal.Decimal
	FundingAttributed decimal.Decimal
	BasisScalpPnL     decimal.Decimal
	RealizedPnL       decimal.Decimal
	HoldingMS         int64
	RoutingVenueSpot  Venue
	RoutingVenuePerp  Venue
	ExpectedImpactBps float64
}
