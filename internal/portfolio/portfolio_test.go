package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/venue"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testPair() model.Pair {
	return model.Pair{Venue: "sim", Symbol: "BTC-USD", SpotID: "BTC", PerpID: "BTC-PERP"}
}

func TestNAVAndDelta(t *testing.T) {
	p := New(true, zerolog.Nop())
	pair := testPair()
	p.SetWallet(model.WalletID{Venue: pair.Venue, Kind: model.WalletSpotUSDT}, decimal.NewFromInt(10000))
	p.SetMarks(pair, Marks{SpotPrice: 100, PerpPrice: 100})

	p.Open(model.Position{
		Pair: pair, Kind: model.KindCore,
		SpotQty: decimal.NewFromInt(10), PerpQty: decimal.NewFromInt(-10),
		OpeningIntentID: "intent-1",
	})

	nav := p.NAV()
	require.True(t, nav.Equal(decimal.NewFromInt(10000)), "net-delta-neutral position contributes ~0 unrealized pnl: got %s", nav)
	require.InDelta(t, 0, p.Delta(), 1e-9)
}

func TestDeltaWithDirectionalImbalance(t *testing.T) {
	p := New(true, zerolog.Nop())
	pair := testPair()
	p.SetWallet(model.WalletID{Venue: pair.Venue, Kind: model.WalletSpotUSDT}, decimal.NewFromInt(10000))
	p.SetMarks(pair, Marks{SpotPrice: 100, PerpPrice: 100})

	p.Open(model.Position{
		Pair: pair, Kind: model.KindCore,
		SpotQty: decimal.NewFromInt(10), PerpQty: decimal.NewFromInt(-8),
		OpeningIntentID: "intent-1",
	})

	// net long 2 BTC at 100 = 200 directional notional over NAV ~10200
	require.Greater(t, p.Delta(), 0.0)
}

func TestVacuumCountsTowardDeltaToggle(t *testing.T) {
	pair := testPair()

	for _, vacuumCounts := range []bool{true, false} {
		p := New(vacuumCounts, zerolog.Nop())
		p.SetWallet(model.WalletID{Venue: pair.Venue, Kind: model.WalletSpotUSDT}, decimal.NewFromInt(10000))
		p.SetMarks(pair, Marks{SpotPrice: 100, PerpPrice: 100})
		p.Open(model.Position{
			Pair: pair, Kind: model.KindVacuum,
			SpotQty:         decimal.NewFromInt(5),
			OpeningIntentID: "vac-1",
		})

		d := p.Delta()
		if vacuumCounts {
			require.NotEqual(t, 0.0, d)
		} else {
			require.InDelta(t, 0, d, 1e-9)
		}
	}
}

func TestApplyAccumulatesFills(t *testing.T) {
	p := New(true, zerolog.Nop())
	pair := testPair()
	p.Open(model.Position{Pair: pair, Kind: model.KindCore, OpeningIntentID: "intent-1"})

	p.Apply(pair, "intent-1", model.LegSpot, model.Buy, decimal.NewFromInt(5), time.Now())
	p.Apply(pair, "intent-1", model.LegPerp, model.Sell, decimal.NewFromInt(5), time.Now())

	positions := p.Positions()
	require.Len(t, positions, 1)
	require.True(t, positions[0].SpotQty.Equal(decimal.NewFromInt(5)))
	require.True(t, positions[0].PerpQty.Equal(decimal.NewFromInt(-5)))
}

func TestCloseRemovesPosition(t *testing.T) {
	p := New(true, zerolog.Nop())
	pair := testPair()
	p.Open(model.Position{Pair: pair, Kind: model.KindCore, OpeningIntentID: "intent-1"})

	pos, ok := p.Close(pair, "intent-1")
	require.True(t, ok)
	require.Equal(t, "intent-1", pos.OpeningIntentID)
	require.Empty(t, p.Positions())

	_, ok = p.Close(pair, "intent-1")
	require.False(t, ok)
}

func TestMarginUtilization(t *testing.T) {
	p := New(true, zerolog.Nop())
	pair := testPair()
	p.SetWallet(model.WalletID{Venue: pair.Venue, Kind: model.WalletPerpMargin}, decimal.NewFromInt(1000))
	p.SetMarks(pair, Marks{SpotPrice: 100, PerpPrice: 100})
	p.Open(model.Position{
		Pair: pair, Kind: model.KindCore,
		PerpQty: decimal.NewFromInt(-5), // 500 notional used
		OpeningIntentID: "intent-1",
	})

	require.InDelta(t, 0.5, p.MarginUtilization(pair.Venue), 1e-9)
	require.Equal(t, 0.0, p.MarginUtilization("unknown-venue"))
}

func TestSnapshotIsImmutableCopy(t *testing.T) {
	p := New(true, zerolog.Nop())
	pair := testPair()
	p.SetWallet(model.WalletID{Venue: pair.Venue, Kind: model.WalletSpotUSDT}, decimal.NewFromInt(100))
	p.Open(model.Position{Pair: pair, Kind: model.KindCore, OpeningIntentID: "intent-1"})

	snap := p.Snapshot()
	require.Len(t, snap.Positions, 1)

	p.Open(model.Position{Pair: pair, Kind: model.KindCore, OpeningIntentID: "intent-2"})
	require.Len(t, snap.Positions, 1, "prior snapshot must not observe later mutations")
	require.Len(t, p.Positions(), 2)
}

func newRebalanceTestVenue(t *testing.T) (*venue.SimVenue, model.Venue) {
	t.Helper()
	v := venue.NewSimVenue("sim")
	return v, "sim"
}

// TestRebalancerCompoundingTransfersExcessMargin covers the
// margin_util < 5% tier: excess perp margin moves to spot.
func TestRebalancerCompoundingTransfersExcessMargin(t *testing.T) {
	simV, ven := newRebalanceTestVenue(t)
	p := New(true, zerolog.Nop())
	pair := model.Pair{Venue: ven, Symbol: "BTC-USD"}
	p.SetWallet(model.WalletID{Venue: ven, Kind: model.WalletPerpMargin}, decimal.NewFromInt(10000))
	p.SetWallet(model.WalletID{Venue: ven, Kind: model.WalletSpotUSDT}, decimal.Zero)
	p.SetMarks(pair, Marks{SpotPrice: 100, PerpPrice: 100})
	p.Open(model.Position{Pair: pair, Kind: model.KindCore, PerpQty: decimal.NewFromInt(-1), OpeningIntentID: "i1"}) // util 1% -> compounding

	rb := NewRebalancer(p, map[model.Venue]venue.Adapter{ven: simV}, RebalanceParams{
		CompoundingThresholdPct: 5,
		Tier1ThresholdPct:       30,
		Tier2TargetPct:          20,
	}, zerolog.Nop())

	actions := rb.Run(context.Background(), decimal.NewFromInt(5000))
	require.Len(t, actions, 1)
	require.Equal(t, "compounding", actions[0].Trigger)
	require.Greater(t, actions[0].Outputs["transferred_to_spot"], 0.0)
}

// TestRebalancerTier1BeforeTier2 covers §8 property 9: a margin_util
// above tier1_threshold always triggers Tier-1 first, and only escalates
// to Tier-2 if Tier-1's transfer alone fails to bring util back down.
func TestRebalancerTier1BeforeTier2(t *testing.T) {
	simV, ven := newRebalanceTestVenue(t)
	p := New(true, zerolog.Nop())
	pair := model.Pair{Venue: ven, Symbol: "BTC-USD"}

	// Tier-1 alone suffices: enough free spot USDT to cover the shortfall.
	p.SetWallet(model.WalletID{Venue: ven, Kind: model.WalletPerpMargin}, decimal.NewFromInt(1000))
	p.SetWallet(model.WalletID{Venue: ven, Kind: model.WalletSpotUSDT}, decimal.NewFromInt(5000))
	p.SetMarks(pair, Marks{SpotPrice: 100, PerpPrice: 100})
	p.Open(model.Position{Pair: pair, Kind: model.KindCore, PerpQty: decimal.NewFromInt(-4), OpeningIntentID: "i1"}) // 400/1000 = 40% util

	rb := NewRebalancer(p, map[model.Venue]venue.Adapter{ven: simV}, RebalanceParams{
		CompoundingThresholdPct: 5,
		Tier1ThresholdPct:       30,
		Tier2TargetPct:          20,
	}, zerolog.Nop())

	actions := rb.Run(context.Background(), decimal.NewFromInt(5000))
	require.Len(t, actions, 1)
	require.Equal(t, "tier1", actions[0].Trigger)
	require.Less(t, actions[0].Outputs["margin_util_after"], 0.30)
}

// TestRebalancerEscalatesToTier2 forces Tier-1's available spot USDT to
// be insufficient, requiring Tier-2 to sell spot assets.
func TestRebalancerEscalatesToTier2(t *testing.T) {
	simV, ven := newRebalanceTestVenue(t)
	p := New(true, zerolog.Nop())
	pair := model.Pair{Venue: ven, Symbol: "BTC-USD"}

	// Very little free spot USDT, so Tier-1's transfer barely moves util.
	p.SetWallet(model.WalletID{Venue: ven, Kind: model.WalletPerpMargin}, decimal.NewFromInt(1000))
	p.SetWallet(model.WalletID{Venue: ven, Kind: model.WalletSpotUSDT}, decimal.NewFromInt(10))
	p.SetMarks(pair, Marks{SpotPrice: 100, PerpPrice: 100})
	p.Open(model.Position{Pair: pair, Kind: model.KindCore, PerpQty: decimal.NewFromInt(-8), OpeningIntentID: "i1"}) // 800/1000 = 80% util

	rb := NewRebalancer(p, map[model.Venue]venue.Adapter{ven: simV}, RebalanceParams{
		CompoundingThresholdPct: 5,
		Tier1ThresholdPct:       30,
		Tier2TargetPct:          20,
	}, zerolog.Nop())

	actions := rb.Run(context.Background(), decimal.NewFromInt(5000))
	require.Len(t, actions, 1)
	require.Equal(t, "tier2", actions[0].Trigger)
	require.Greater(t, actions[0].Outputs["spot_sold_notional"], 0.0)
}

// TestRebalancerNoTriggerInMidRange covers the band between compounding
// and tier1 thresholds where no action should be taken.
func TestRebalancerNoTriggerInMidRange(t *testing.T) {
	simV, ven := newRebalanceTestVenue(t)
	p := New(true, zerolog.Nop())
	pair := model.Pair{Venue: ven, Symbol: "BTC-USD"}
	p.SetWallet(model.WalletID{Venue: ven, Kind: model.WalletPerpMargin}, decimal.NewFromInt(1000))
	p.SetMarks(pair, Marks{SpotPrice: 100, PerpPrice: 100})
	p.Open(model.Position{Pair: pair, Kind: model.KindCore, PerpQty: decimal.NewFromInt(-1), OpeningIntentID: "i1"}) // 10% util

	rb := NewRebalancer(p, map[model.Venue]venue.Adapter{ven: simV}, RebalanceParams{
		CompoundingThresholdPct: 5,
		Tier1ThresholdPct:       30,
		Tier2TargetPct:          20,
	}, zerolog.Nop())

	actions := rb.Run(context.Background(), decimal.NewFromInt(5000))
	require.Len(t, actions, 1)
	require.Equal(t, "none", actions[0].Trigger)
}
