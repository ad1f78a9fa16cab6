// Package model – Core data types shared across the Sentinel core (§3).
//
// Types here are borrowed, never mutated in place, by consumers outside
// their owning component: a Pair is immutable after registration, a
// BookSnapshot is a point-in-time value, and Position/Portfolio are only
// ever mutated by the Portfolio Manager (see internal/portfolio).
package model

import "fmt"

// Venue identifies a trading venue by name; the core treats it as an
// opaque string key, never a type with behavior of its own.
type Venue string

// Pair identifies a spot/perp instrument pair on a single venue.
// Immutable after registration (§3).
type Pair struct {
	Venue       Venue
	Symbol      string
	SpotID      string
	PerpID      string
	TickSize    float64
	LotSize     float64
	FeeMaker    float64
	FeeTaker    float64
	MinNotional float64
}

// Key returns a stable identifier used for map lookups and logging.
func (p Pair) Key() string {
	return fmt.Sprintf("%s:%s", p.Venue, p.Symbol)
}

func (p Pair) String() string { return p.Key() }
