// Package portfolio – Portfolio Manager (§4.6): the single owner of
// Positions and wallet balances. Every mutation is serialized on the
// Portfolio's own mutex; other components call its methods directly or
// read an immutable PortfolioSnapshot.
//
// Grounded on the teacher's BotState equity/lot bookkeeping in trader.go
// (mutex-guarded in-memory state, updated only from the single trading
// goroutine), generalized from one side's lots to multi-venue wallets and
// spot/perp Positions across pairs.
package portfolio

import (
	"sync"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Marks is the price input apply()/nav()/delta() need per pair to value
// positions; the orchestrator refreshes it from the latest BookSnapshots.
type Marks struct {
	SpotPrice float64
	PerpPrice float64
}

// Portfolio is the Portfolio Manager (§4.6).
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string][]model.Position // keyed by pair.Key(), multiple positions (CORE/SATELLITE/VACUUM) coexist
	wallets   map[model.WalletID]decimal.Decimal
	marks     map[string]Marks
	log       zerolog.Logger

	vacuumCountsTowardDelta bool
}

func New(vacuumCountsTowardDelta bool, log zerolog.Logger) *Portfolio {
	return &Portfolio{
		positions:               make(map[string][]model.Position),
		wallets:                 make(map[model.WalletID]decimal.Decimal),
		marks:                   make(map[string]Marks),
		log:                     log.With().Str("component", "portfolio").Logger(),
		vacuumCountsTowardDelta: vacuumCountsTowardDelta,
	}
}

// SetMarks refreshes the pair's last-known prices for valuation; called
// by the orchestrator on every paired book update.
func (p *Portfolio) SetMarks(pair model.Pair, m Marks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[pair.Key()] = m
}

// Marks returns the last-known prices for a pair, for components sizing
// close-Intents off the Portfolio's own valuation (e.g. emergency
// flatten, §4.7).
func (p *Portfolio) Marks(pair model.Pair) (Marks, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.marks[pair.Key()]
	return m, ok
}

// SetWallet seeds or updates a wallet balance, used at startup and after
// a confirmed Transfer.
func (p *Portfolio) SetWallet(id model.WalletID, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wallets[id] = amount
}

// Open records a newly opened Position from a terminated OPEN Intent.
func (p *Portfolio) Open(pos model.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := pos.Pair.Key()
	p.positions[k] = append(p.positions[k], pos)
}

// Close removes the position opened by the given Intent (a terminated
// CLOSE Intent closes exactly the position its counterpart opened).
func (p *Portfolio) Close(pair model.Pair, openingIntentID string) (model.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := pair.Key()
	list := p.positions[k]
	for i, pos := range list {
		if pos.OpeningIntentID == openingIntentID {
			p.positions[k] = append(list[:i], list[i+1:]...)
			return pos, true
		}
	}
	return model.Position{}, false
}

// HasSatellite reports whether pair has an open SATELLITE position,
// backing the Signal Generator's CLOSE_HEDGE gate (§4.2).
func (p *Portfolio) HasSatellite(pair model.Pair) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pos := range p.positions[pair.Key()] {
		if pos.Kind == model.KindSatellite {
			return true
		}
	}
	return false
}

// SatelliteCapacityAvailable is a placeholder capacity gate: true unless
// a SATELLITE is already open for the pair (at-most-one-per-pair, §4.2).
func (p *Portfolio) SatelliteCapacityAvailable(pair model.Pair) bool {
	return !p.HasSatellite(pair)
}

// CorePositionNotional sums the directional notional of CORE positions
// for a pair, the input internal/signal.CoreRebalance compares against
// CoreTarget.
func (p *Portfolio) CorePositionNotional(pair model.Pair) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m := p.marks[pair.Key()]
	total := decimal.Zero
	for _, pos := range p.positions[pair.Key()] {
		if pos.Kind != model.KindCore {
			continue
		}
		total = total.Add(pos.DirectionalNotional(m.SpotPrice, m.PerpPrice).Abs())
	}
	return total
}

// Positions returns a snapshot copy of every open position.
func (p *Portfolio) Positions() []model.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []model.Position
	for _, list := range p.positions {
		out = append(out, list...)
	}
	return out
}

// NAV sums wallet balances plus unrealized P&L across all positions
// (§3 "NAV = Σ wallets + Σ unrealized_pnl").
func (p *Portfolio) NAV() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.navLocked()
}

func (p *Portfolio) navLocked() decimal.Decimal {
	total := decimal.Zero
	for _, v := range p.wallets {
		total = total.Add(v)
	}
	total = total.Add(p.unrealizedPnLLocked())
	return total
}

// unrealizedPnLLocked approximates open-position P&L as the current
// directional notional; realized P&L (basis-scalp vs funding split) is
// computed by internal/ledger only once a position closes into a Trade.
func (p *Portfolio) unrealizedPnLLocked() decimal.Decimal {
	total := decimal.Zero
	for key, list := range p.positions {
		m := p.marks[key]
		for _, pos := range list {
			total = total.Add(pos.DirectionalNotional(m.SpotPrice, m.PerpPrice))
		}
	}
	return total
}

// Delta returns the signed fraction of NAV represented by directional
// exposure (§3 "delta = Σ signed_directional_notional / NAV"). VACUUM
// positions are included unless vacuum_counts_toward_delta is false
// (Open Question, §9).
func (p *Portfolio) Delta() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deltaLocked()
}

// MarginUtilization returns perp_margin_used / perp_margin_wallet for a
// venue; 0 if the venue has no perp margin wallet on record.
func (p *Portfolio) MarginUtilization(v model.Venue) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.marginUtilizationLocked(v)
}

// Apply folds a Fill into the owning position's quantities (§4.6
// "apply(fill)"). Positive fillQty increases SpotQty/PerpQty in the
// fill's side direction.
func (p *Portfolio) Apply(pair model.Pair, openingIntentID string, leg model.Leg, side model.OrderSide, qty decimal.Decimal, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.positions[pair.Key()]
	for i := range list {
		if list[i].OpeningIntentID != openingIntentID {
			continue
		}
		signed := qty
		if side == model.Sell {
			signed = signed.Neg()
		}
		if leg == model.LegSpot {
			list[i].SpotQty = list[i].SpotQty.Add(signed)
		} else {
			list[i].PerpQty = list[i].PerpQty.Add(signed)
		}
		return
	}
}

// SetEntryNotional stamps the directional notional (and basis) in
// effect when a position opened (Open Question decision #4, DESIGN.md):
// the orchestrator calls this once, right after the opening Intent's
// fills have been applied, so internal/risk.Guardian.ReviewUnrealizedLoss
// has a baseline to compare against.
func (p *Portfolio) SetEntryNotional(pair model.Pair, openingIntentID string, entryNotional decimal.Decimal, entryBasis float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.positions[pair.Key()]
	for i := range list {
		if list[i].OpeningIntentID == openingIntentID {
			list[i].EntryNotional = entryNotional
			list[i].EntryBasis = entryBasis
			return
		}
	}
}

// Snapshot produces the immutable view handed to every other component
// (§5).
func (p *Portfolio) Snapshot() model.PortfolioSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	wallets := make(map[model.WalletID]decimal.Decimal, len(p.wallets))
	for k, v := range p.wallets {
		wallets[k] = v
	}
	margin := make(map[model.Venue]float64)
	for wid := range p.wallets {
		if wid.Kind == model.WalletPerpMargin {
			margin[wid.Venue] = p.marginUtilizationLocked(wid.Venue)
		}
	}
	return model.PortfolioSnapshot{
		Positions:         p.Positions(),
		Wallets:           wallets,
		UnrealizedPnL:     p.unrealizedPnLLocked(),
		NAV:               p.navLocked(),
		Delta:             p.deltaLocked(),
		MarginUtilization: margin,
	}
}

func (p *Portfolio) marginUtilizationLocked(v model.Venue) float64 {
	wallet, ok := p.wallets[model.WalletID{Venue: v, Kind: model.WalletPerpMargin}]
	if !ok || wallet.IsZero() {
		return 0
	}
	used := decimal.Zero
	for key, list := range p.positions {
		m := p.marks[key]
		for _, pos := range list {
			if pos.Pair.Venue != v {
				continue
			}
			used = used.Add(pos.PerpQty.Abs().Mul(decimal.NewFromFloat(m.PerpPrice)))
		}
	}
	u, _ := used.Div(wallet).Float64()
	return u
}

func (p *Portfolio) deltaLocked() float64 {
	nav := p.navLocked()
	if nav.IsZero() {
		return 0
	}
	total := decimal.Zero
	for key, list := range p.positions {
		m := p.marks[key]
		for _, pos := range list {
			if pos.Kind == model.KindVacuum && !p.vacuumCountsTowardDelta {
				continue
			}
			total = total.Add(pos.DirectionalNotional(m.SpotPrice, m.PerpPrice))
		}
	}
	d, _ := total.Div(nav).Float64()
	return d
}
