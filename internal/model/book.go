package model

import "time"

// BookSide distinguishes the spot leg from the perp leg of a Pair.
type BookSide string

const (
	SideSpot BookSide = "SPOT"
	SidePerp BookSide = "PERP"
)

// Level is one price level of an order book.
type Level struct {
	Price float64
	Size  float64
}

// BookSnapshot is a price-sorted, bounded sequence of levels for one side
// (spot or perp) of a Pair, carrying a monotonic sequence number and a
// wall-clock timestamp (§3). Bids are sorted best-first (descending);
// asks are sorted best-first (ascending).
type BookSnapshot struct {
	Pair      Pair
	Side      BookSide
	Seq       uint64
	Timestamp time.Time
	Bids      []Level
	Asks      []Level
}

// BestBid returns the best bid price, or 0 if the book has no bids.
func (b BookSnapshot) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the best ask price, or 0 if the book has no asks.
func (b BookSnapshot) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Crossed reports whether the book is crossed (best_bid >= best_ask), an
// invalid state the Statistical Engine must drop (§4.1).
func (b BookSnapshot) Crossed() bool {
	bb, ba := b.BestBid(), b.BestAsk()
	if bb == 0 || ba == 0 {
		return false
	}
	return bb >= ba
}

// Stale reports whether the snapshot is older than budget as of now
// (§3: "A snapshot is valid only while now - timestamp < staleness_budget").
func (b BookSnapshot) Stale(now time.Time, budget time.Duration) bool {
	return now.Sub(b.Timestamp) >= budget
}

// Mid returns the naive top-of-book mid price, or 0 if either side is empty.
func (b BookSnapshot) Mid() float64 {
	bb, ba := b.BestBid(), b.BestAsk()
	if bb == 0 || ba == 0 {
		return 0
	}
	return (bb + ba) / 2
}
