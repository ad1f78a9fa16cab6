// Package ledger – Performance Ledger (§4.8): records every terminated
// Intent as a Trade and every rebalance action as a RebalanceRecord,
// and computes the derived performance metrics (§4.8, §6).
//
// Grounded on the teacher's export/migration utilities
// (tools/migrate_state.go, tools/backfill_bridge.go) for the
// append-only-table shape, generalized from a single-symbol trade log
// to the multi-pair trade_log/rebalance_log/portfolio_snapshots layout
// §6 names.
package ledger

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/portfolio"
)

// RebalanceRecord is one row of the append-only rebalance_log (§6):
// every Rebalancer action, win or no-op, is recorded.
type RebalanceRecord struct {
	At      time.Time
	Venue   model.Venue
	Trigger string
	Inputs  map[string]float64
	Outputs map[string]float64
	ElapsedMS int64
}

// SnapshotRecord is one row of portfolio_snapshots (§6): a periodic
// crash-recovery snapshot, written every 60s or after a material
// mutation.
type SnapshotRecord struct {
	At       time.Time
	Snapshot model.PortfolioSnapshot
}

// Store is the persistence contract §6 names. PostgresStore (sqlx +
// lib/pq) and MemoryStore both implement it; the orchestrator and
// internal/ledger's export tools depend only on this interface.
type Store interface {
	RecordTrade(ctx context.Context, t model.Trade) error
	RecordRebalance(ctx context.Context, r RebalanceRecord) error
	RecordSnapshot(ctx context.Context, s SnapshotRecord) error

	Trades(ctx context.Context) ([]model.Trade, error)
	Rebalances(ctx context.Context) ([]RebalanceRecord, error)
	LatestSnapshot(ctx context.Context) (SnapshotRecord, bool, error)
}

// FundingAPY returns the time-weighted annualized yield implied by the
// funding cash flows attributed to a set of Trades (§4.8 "funding APY
// (time-weighted)"). Trades with zero notional or holding time are
// excluded from the weighting.
func FundingAPY(trades []model.Trade) float64 {
	var weightedSum, weightSum float64
	for _, t := range trades {
		if t.Notional.IsZero() || t.HoldingMS <= 0 {
			continue
		}
		notional, _ := t.Notional.Float64()
		funding, _ := t.FundingAttributed.Float64()
		years := float64(t.HoldingMS) / float64(time.Hour.Milliseconds()*24*365)
		if years <= 0 {
			continue
		}
		apy := funding / notional / years
		weightedSum += apy * notional
		weightSum += notional
	}
	if weightSum == 0 {
		return 0
	}
	return weightedSum / weightSum
}

// BasisScalpPnL sums the basis-scalping component of realized P&L
// across trades (§4.8), separate from funding income.
func BasisScalpPnL(trades []model.Trade) float64 {
	total := 0.0
	for _, t := range trades {
		v, _ := t.BasisScalpPnL.Float64()
		total += v
	}
	return total
}

// Yield24h computes the trailing-24h realized P&L as a fraction of the
// given NAV (§4.8 "24h yield").
func Yield24h(trades []model.Trade, now time.Time, nav float64) float64 {
	if nav == 0 {
		return 0
	}
	cutoff := now.Add(-24 * time.Hour)
	total := 0.0
	for _, t := range trades {
		if t.CloseT.Before(cutoff) {
			continue
		}
		v, _ := t.RealizedPnL.Float64()
		total += v
	}
	return total / nav
}

// WinRate is the fraction of trades with positive realized P&L (§4.8).
func WinRate(trades []model.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.RealizedPnL.IsPositive() {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// Sharpe computes the annualized Sharpe ratio of per-trade realized
// returns (as a fraction of each trade's notional), assuming a zero risk
// free rate (§4.8). Returns 0 for fewer than two trades or zero
// variance.
func Sharpe(trades []model.Trade) float64 {
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		if t.Notional.IsZero() {
			continue
		}
		notional, _ := t.Notional.Float64()
		pnl, _ := t.RealizedPnL.Float64()
		returns = append(returns, pnl/notional)
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance <= 0 {
		return 0
	}
	stddev := math.Sqrt(variance)
	// Annualize assuming trades occur roughly daily; a rough but
	// standard-practice scaling for a trade-level (not daily-bar) series.
	return mean / stddev * math.Sqrt(365)
}

// MaxDrawdown computes the largest peak-to-trough drop in cumulative
// realized P&L across trades ordered by close time (§4.8).
func MaxDrawdown(trades []model.Trade) float64 {
	ordered := make([]model.Trade, len(trades))
	copy(ordered, trades)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].CloseT.Before(ordered[j].CloseT) })

	cumulative, peak, maxDD := 0.0, 0.0, 0.0
	for _, t := range ordered {
		pnl, _ := t.RealizedPnL.Float64()
		cumulative += pnl
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// SnapshotPortfolio is a small convenience used by the orchestrator's
// periodic snapshot timer (§6 "written every 60s or after a material
// mutation").
func SnapshotPortfolio(p *portfolio.Portfolio, at time.Time) SnapshotRecord {
	return SnapshotRecord{At: at, Snapshot: p.Snapshot()}
}
