package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LegState is the lifecycle of a single exchange-level order (§3).
type LegState string

const (
	LegPending  LegState = "PENDING"
	LegLive     LegState = "LIVE"
	LegFilled   LegState = "FILLED"
	LegPartial  LegState = "PARTIAL"
	LegCanceled LegState = "CANCELED"
	LegRejected LegState = "REJECTED"
	LegTimedOut LegState = "TIMED_OUT"
)

// LegTerminal reports whether a LegState can no longer change.
func (s LegState) Terminal() bool {
	switch s {
	case LegFilled, LegCanceled, LegRejected, LegTimedOut:
		return true
	default:
		return false
	}
}

// Leg identifies which side of a Pair's hedge a LegOrder covers.
type Leg string

const (
	LegSpot Leg = "SPOT"
	LegPerp Leg = "PERP"
)

// LegOrder is an exchange-level order on one side of an Intent (§3).
// Every LegOrder references its parent Intent.
type LegOrder struct {
	ID         string
	IntentID   string
	Leg        Leg
	Side       OrderSide
	Kind       OrderKind
	Price      float64
	Qty        decimal.Decimal
	FilledQty  decimal.Decimal
	AvgPrice   float64
	State      LegState
	VenueOrder string // venue-assigned order id, once placed
	PlacedAt   time.Time
	UpdatedAt  time.Time
}

// Remaining returns the unfilled quantity.
func (l LegOrder) Remaining() decimal.Decimal {
	r := l.Qty.Sub(l.FilledQty)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Notional returns the filled notional using AvgPrice.
func (l LegOrder) Notional() decimal.Decimal {
	return l.FilledQty.Mul(decimal.NewFromFloat(l.AvgPrice))
}

// Fill is an append-only execution record against a LegOrder (§3).
type Fill struct {
	LegOrderID string
	Price      float64
	Qty        decimal.Decimal
	Fee        decimal.Decimal
	TExchange  time.Time
	TIngress   time.Time
	IngressSeq uint64 // tie-break for same-timestamp fills (§5 ordering guarantee)
}

// Notional returns price * qty for this fill.
func (f Fill) Notional() decimal.Decimal {
	return f.Qty.Mul(decimal.NewFromFloat(f.Price))
}
