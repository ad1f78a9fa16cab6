package model

// OrderSide is the exchange-level side of an order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderKind is the exchange-level order type the Router/Executor may pick
// (§6 place_order request).
type OrderKind string

const (
	KindLimitPostOnly OrderKind = "LIMIT_POST_ONLY"
	KindLimitGTC      OrderKind = "LIMIT_GTC"
	KindIOC           OrderKind = "IOC"
	KindMarket        OrderKind = "MARKET"
)

// VenueOrderRequest is the normalized request the core issues to a venue
// adapter's place_order (§6).
type VenueOrderRequest struct {
	Pair      Pair
	Side      OrderSide
	Kind      OrderKind
	Price     float64 // required for LIMIT_* kinds, ignored for IOC/MARKET
	Qty       float64
	ClientTag string
}
