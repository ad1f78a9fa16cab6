package signal

import (
	"testing"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/stats"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	views  map[string]stats.StatsView
	unsafe map[string]bool
}

func (f *fakeStats) Stats(pair model.Pair) stats.StatsView { return f.views[pair.Key()] }
func (f *fakeStats) Unsafe(pair model.Pair) bool            { return f.unsafe[pair.Key()] }

type fakePortfolio struct {
	nav          decimal.Decimal
	delta        float64
	hasSatellite map[string]bool
}

func (f *fakePortfolio) NAV() decimal.Decimal                                { return f.nav }
func (f *fakePortfolio) Delta() float64                                      { return f.delta }
func (f *fakePortfolio) HasSatellite(pair model.Pair) bool                   { return f.hasSatellite[pair.Key()] }
func (f *fakePortfolio) SatelliteCapacityAvailable(pair model.Pair) bool     { return true }

type fakeInflight struct{ m map[string]bool }

func (f *fakeInflight) InFlight(pair model.Pair) bool { return f.m[pair.Key()] }

func defaultParams() Params {
	return Params{ZOpen: 2.0, ZClose: 0.0, CoreAllocationPct: 50, DeltaBlockBps: 500, DefaultTTL: 5 * time.Second, MaxSlippageBps: 20}
}

// TestScenarioS1OpenThenClose mirrors spec §8 scenario S1.
func TestScenarioS1OpenThenClose(t *testing.T) {
	pair := model.Pair{Symbol: "BTC-USD"}
	fs := &fakeStats{views: map[string]stats.StatsView{pair.Key(): {Mean: 0, Stddev: 0.001, Z: 2.5, Count: 300, Valid: true}}, unsafe: map[string]bool{}}
	fp := &fakePortfolio{nav: decimal.NewFromInt(100000), hasSatellite: map[string]bool{}}
	fi := &fakeInflight{m: map[string]bool{}}

	g := New(fs, nil, fp, fi, defaultParams(), zerolog.Nop())
	notional := func(model.Pair) decimal.Decimal { return decimal.NewFromInt(2000) }

	in, ok := g.Evaluate([]model.Pair{pair}, time.Now(), notional)
	require.True(t, ok)
	require.Equal(t, model.OpenHedge, in.Kind)
	require.Equal(t, model.Buy, in.Direction)

	// Now close: z drops to -0.1 and a satellite exists.
	fs.views[pair.Key()] = stats.StatsView{Mean: 0, Stddev: 0.001, Z: -0.1, Count: 301, Valid: true}
	fp.hasSatellite[pair.Key()] = true
	in, ok = g.Evaluate([]model.Pair{pair}, time.Now(), notional)
	require.True(t, ok)
	require.Equal(t, model.CloseHedge, in.Kind)
	require.Equal(t, model.Sell, in.Direction)
}

func TestAtMostOneInFlightPerPair(t *testing.T) {
	pair := model.Pair{Symbol: "BTC-USD"}
	fs := &fakeStats{views: map[string]stats.StatsView{pair.Key(): {Z: 3.0, Count: 300, Valid: true}}, unsafe: map[string]bool{}}
	fp := &fakePortfolio{nav: decimal.NewFromInt(100000), hasSatellite: map[string]bool{}}
	fi := &fakeInflight{m: map[string]bool{pair.Key(): true}}

	g := New(fs, nil, fp, fi, defaultParams(), zerolog.Nop())
	_, ok := g.Evaluate([]model.Pair{pair}, time.Now(), func(model.Pair) decimal.Decimal { return decimal.NewFromInt(1000) })
	require.False(t, ok)
}

func TestDeltaBlockSuppressesOpenNotClose(t *testing.T) {
	pair := model.Pair{Symbol: "BTC-USD"}
	fs := &fakeStats{views: map[string]stats.StatsView{pair.Key(): {Z: 3.0, Count: 300, Valid: true}}, unsafe: map[string]bool{}}
	fp := &fakePortfolio{nav: decimal.NewFromInt(100000), delta: 0.06, hasSatellite: map[string]bool{}}
	fi := &fakeInflight{m: map[string]bool{}}

	g := New(fs, nil, fp, fi, defaultParams(), zerolog.Nop())
	_, ok := g.Evaluate([]model.Pair{pair}, time.Now(), func(model.Pair) decimal.Decimal { return decimal.NewFromInt(1000) })
	require.False(t, ok)

	fs.views[pair.Key()] = stats.StatsView{Z: -0.5, Count: 300, Valid: true}
	fp.hasSatellite[pair.Key()] = true
	in, ok := g.Evaluate([]model.Pair{pair}, time.Now(), func(model.Pair) decimal.Decimal { return decimal.NewFromInt(1000) })
	require.True(t, ok)
	require.Equal(t, model.CloseHedge, in.Kind)
}

func TestTieBreakRanking(t *testing.T) {
	p1 := model.Pair{Symbol: "A"}
	p2 := model.Pair{Symbol: "B"}
	fs := &fakeStats{
		views: map[string]stats.StatsView{
			p1.Key(): {Z: 2.1, Count: 100, Valid: true},
			p2.Key(): {Z: 3.0, Count: 400, Valid: true},
		},
		unsafe: map[string]bool{},
	}
	fp := &fakePortfolio{nav: decimal.NewFromInt(100000), hasSatellite: map[string]bool{}}
	fi := &fakeInflight{m: map[string]bool{}}
	g := New(fs, nil, fp, fi, defaultParams(), zerolog.Nop())
	in, ok := g.Evaluate([]model.Pair{p1, p2}, time.Now(), func(model.Pair) decimal.Decimal { return decimal.NewFromInt(1000) })
	require.True(t, ok)
	require.Equal(t, p2, in.Pair) // higher z*sqrt(count) wins
}

func TestCoreRebalanceDriftTriggersAdjustment(t *testing.T) {
	fs := &fakeStats{views: map[string]stats.StatsView{}, unsafe: map[string]bool{}}
	fp := &fakePortfolio{nav: decimal.NewFromInt(100000), hasSatellite: map[string]bool{}}
	fi := &fakeInflight{m: map[string]bool{}}
	g := New(fs, nil, fp, fi, defaultParams(), zerolog.Nop())

	pair := model.Pair{Symbol: "BTC-USD"}
	in, ok := g.CoreRebalance(pair, decimal.NewFromInt(10000), decimal.NewFromInt(100000), decimal.NewFromInt(100), time.Now())
	require.True(t, ok)
	require.Equal(t, model.OpenHedge, in.Kind)
	require.True(t, in.TargetNotional.Equal(decimal.NewFromInt(40000)))
}
