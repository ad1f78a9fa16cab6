// Package router – Cross-Venue Router (§4.4): chooses a venue per leg
// given a cost/fee/transfer model, falling back to single-venue routing
// when cross-venue savings don't clear the margin.
//
// Grounded on the teacher's broker-selection switch in main.go
// ("BROKER" env var choosing binance/hitbtc/bridge/paper), generalized
// from a single statically-chosen broker to a per-leg, cost-minimizing
// choice across multiple eligible venues.
package router

import (
	"sort"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/venue"
	"github.com/rs/zerolog"
)

// VenueInfo is what the Router needs to know about one eligible venue
// for one leg: its cost model and whether it is currently eligible
// (§4.4(i) "only venues with fresh books and non-UNSAFE status").
type VenueInfo struct {
	Venue     model.Venue
	Cost      venue.CostModel
	Eligible  bool
}

// Decision is the Router's output for one Intent (§4.4(iii) "the routing
// decision is deterministic given inputs and exposes the chosen
// (venue_spot, venue_perp, expected_impact_bps) in the Intent envelope").
type Decision struct {
	VenueSpot         model.Venue
	VenuePerp         model.Venue
	ExpectedImpactBps float64
	CrossVenue        bool
}

// Router is the Cross-Venue Router (§4.4).
type Router struct {
	crossVenueMarginBps float64
	log                 zerolog.Logger
}

func New(crossVenueMarginBps float64, log zerolog.Logger) *Router {
	return &Router{crossVenueMarginBps: crossVenueMarginBps, log: log.With().Str("component", "router").Logger()}
}

// Route picks, for each leg independently, the eligible venue that
// minimizes expected total cost (§4.4), then falls back to single-venue
// routing if cross-venue savings are below cross_venue_margin (§4.4(ii)).
// spotCandidates and perpCandidates may be the same venue set (a venue
// trading both legs) or disjoint.
func (r *Router) Route(spotCandidates, perpCandidates []VenueInfo) (Decision, bool) {
	bestSpot, okSpot := cheapest(spotCandidates)
	bestPerp, okPerp := cheapest(perpCandidates)
	if !okSpot || !okPerp {
		return Decision{}, false
	}

	crossCost := bestSpot.Cost.TotalCostBps() + bestPerp.Cost.TotalCostBps()
	single, hasSingle := cheapestSingleVenue(spotCandidates, perpCandidates)

	if hasSingle {
		savings := single.spot.Cost.TotalCostBps() + single.perp.Cost.TotalCostBps() - crossCost
		if savings < r.crossVenueMarginBps {
			return Decision{
				VenueSpot:         single.spot.Venue,
				VenuePerp:         single.perp.Venue,
				ExpectedImpactBps: single.spot.Cost.ExpectedImpactBps + single.perp.Cost.ExpectedImpactBps,
				CrossVenue:        false,
			}, true
		}
	}

	return Decision{
		VenueSpot:         bestSpot.Venue,
		VenuePerp:         bestPerp.Venue,
		ExpectedImpactBps: bestSpot.Cost.ExpectedImpactBps + bestPerp.Cost.ExpectedImpactBps,
		CrossVenue:        bestSpot.Venue != bestPerp.Venue,
	}, true
}

func cheapest(candidates []VenueInfo) (VenueInfo, bool) {
	var eligible []VenueInfo
	for _, c := range candidates {
		if c.Eligible {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return VenueInfo{}, false
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].Cost.TotalCostBps() < eligible[j].Cost.TotalCostBps()
	})
	return eligible[0], true
}

type singlePair struct {
	spot VenueInfo
	perp VenueInfo
}

// cheapestSingleVenue finds, among venues present in both candidate
// lists, the one minimizing the combined leg cost when both legs are
// placed there (§4.4(ii) "fall back to single-venue routing on both
// legs to eliminate transfer latency risk").
func cheapestSingleVenue(spotCandidates, perpCandidates []VenueInfo) (singlePair, bool) {
	perpByVenue := make(map[model.Venue]VenueInfo)
	for _, c := range perpCandidates {
		if c.Eligible {
			perpByVenue[c.Venue] = c
		}
	}
	var best singlePair
	var bestCost float64
	found := false
	for _, s := range spotCandidates {
		if !s.Eligible {
			continue
		}
		p, ok := perpByVenue[s.Venue]
		if !ok {
			continue
		}
		cost := s.Cost.TotalCostBps() + p.Cost.TotalCostBps()
		if !found || cost < bestCost {
			best = singlePair{spot: s, perp: p}
			bestCost = cost
			found = true
		}
	}
	return best, found
}
