package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/chidi150c/sentinel/internal/config"
	"github.com/chidi150c/sentinel/internal/executor"
	"github.com/chidi150c/sentinel/internal/ledger"
	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/portfolio"
	"github.com/chidi150c/sentinel/internal/risk"
	"github.com/chidi150c/sentinel/internal/router"
	"github.com/chidi150c/sentinel/internal/signal"
	"github.com/chidi150c/sentinel/internal/stats"
	"github.com/chidi150c/sentinel/internal/vacuum"
	"github.com/chidi150c/sentinel/internal/venue"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testOrchPair() model.Pair {
	return model.Pair{Venue: "sim", Symbol: "BTC-USD", SpotID: "BTC", PerpID: "BTC-PERP"}
}

// fullDepth always reports the book as deep as the target size needs,
// standing in for the book-depth telemetry an adapter would otherwise
// feed the Signal Generator's tie-break ranking.
type fullDepth struct{}

func (fullDepth) DepthRatio(model.Pair) float64 { return 1 }

func newTestOrchestrator(t *testing.T, sim *venue.SimVenue, store ledger.Store) (*Orchestrator, *risk.Guardian, *portfolio.Portfolio) {
	t.Helper()
	log := zerolog.Nop()
	pair := testOrchPair()

	pf := portfolio.New(true, log)

	pub := stats.NewPublisher(nil, log)
	engine := stats.NewEngine(time.Hour, 0, 100, 5, time.Second, 10*time.Second, pub, log)

	venues := map[model.Venue]venue.Adapter{"sim": sim}
	exec := executor.New(venues, executor.Params{
		DeltaToleranceNotional: decimal.NewFromInt(50),
		TWAPThreshold:          decimal.NewFromInt(5000),
		TWAPClipMax:            decimal.NewFromInt(500),
		TWAPIntervalMin:        time.Millisecond,
		TWAPIntervalMax:        2 * time.Millisecond,
		TWAPAbortBps:           20,
		DispatchWindow:         time.Second,
		PollInterval:           time.Millisecond,
	}, nil, log)

	sigGen := signal.New(engine, fullDepth{}, pf, exec, signal.Params{
		ZOpen: 2, ZClose: 0, CoreAllocationPct: 50, DeltaBlockBps: 500, DefaultTTL: 5 * time.Second, MaxSlippageBps: 50,
	}, log)

	vacDet := vacuum.New(vacuum.Params{Window: 10 * time.Second, MinLiqNotional: 1_000_000, Threshold: 0.005, MaxHold: time.Hour}, log)

	rtr := router.New(5, log)

	rebal := portfolio.NewRebalancer(pf, venues, portfolio.RebalanceParams{
		CompoundingThresholdPct: 5, Tier1ThresholdPct: 30, Tier2TargetPct: 20,
	}, log)

	guardian := risk.New(pf, risk.Params{
		DeltaWarnBps: 200, DeltaBlockBps: 500,
		DDReducePct: 5, DDSafePct: 10,
		MinNAVFloor:             decimal.Zero,
		PositionCapPerPair:      decimal.NewFromInt(1_000_000),
		PositionCapAggregate:    decimal.NewFromInt(1_000_000),
		UnrealizedLossReviewPct: 10,
	}, nil, log)

	cfg := config.NewSnapshot(config.Config{Port: 0, CoreAllocationPct: 50, TWAPClipMax: 500})

	o := New(Deps{
		Cfg:   cfg,
		Venues: VenueSet{
			Adapters:   venues,
			CostModels: map[model.Venue]venue.CostModel{"sim": {TakerFeeBps: 5}},
		},
		Pairs: []model.Pair{pair}, Stats: engine, Signal: sigGen, Vacuum: vacDet, Router: rtr,
		Executor: exec, Portfolio: pf, Rebalancer: rebal, Guardian: guardian, Store: store, Log: log,
	})
	return o, guardian, pf
}

// TestRebalanceCascadeTier1Only drives scenario S5 (Rebalance cascade):
// margin_util starts at 32% with 10,000 free spot USDT. Tier-1 sweeps the
// free USDT into perp margin, which alone brings utilization back under
// tier1_threshold_pct, so Tier-2 never fires and exactly one rebalance
// action is logged.
func TestRebalanceCascadeTier1Only(t *testing.T) {
	sim := venue.NewSimVenue("sim")
	sim.AutoFill = true
	store := ledger.NewMemoryStore()
	o, _, pf := newTestOrchestrator(t, sim, store)

	pair := testOrchPair()
	pf.SetMarks(pair, portfolio.Marks{SpotPrice: 100, PerpPrice: 100})
	pf.SetWallet(model.WalletID{Venue: "sim", Kind: model.WalletSpotUSDT}, decimal.NewFromInt(10000))
	pf.SetWallet(model.WalletID{Venue: "sim", Kind: model.WalletPerpMargin}, decimal.NewFromInt(20000))
	pf.Open(model.Position{
		Pair: pair, Kind: model.KindCore,
		SpotQty: decimal.NewFromInt(64), PerpQty: decimal.NewFromInt(-64),
		OpeningIntentID: "core-seed",
	})

	require.InDelta(t, 0.32, pf.MarginUtilization("sim"), 1e-9, "seeded margin_util must match the scenario's 32%%")

	actions := o.runRebalanceOnce(context.Background())
	require.Len(t, actions, 1)
	require.Equal(t, "tier1", actions[0].Trigger)

	newUtil := pf.MarginUtilization("sim")
	require.Less(t, newUtil, 0.30, "tier-1 alone must bring utilization back under tier1_threshold_pct")

	spotBal := spotBalance(pf, "sim")
	require.True(t, spotBal.IsZero(), "tier-1 sweeps all free spot USDT into perp margin")

	recorded, err := store.Rebalances(context.Background())
	require.NoError(t, err)
	require.Len(t, recorded, 1, "rebalance_log shows exactly one entry")
	require.Equal(t, "tier1", recorded[0].Trigger)
}

func spotBalance(pf *portfolio.Portfolio, v model.Venue) decimal.Decimal {
	snap := pf.Snapshot()
	return snap.Wallets[model.WalletID{Venue: v, Kind: model.WalletSpotUSDT}]
}

// TestEmergencyFlattenOnDrawdown drives scenario S6 (Emergency flatten):
// once daily drawdown crosses 10.2%, every open position must produce a
// close-Intent that actually executes, and no new OPEN_HEDGE Intent is
// accepted while SAFE_MODE holds.
func TestEmergencyFlattenOnDrawdown(t *testing.T) {
	sim := venue.NewSimVenue("sim")
	sim.AutoFill = true
	store := ledger.NewMemoryStore()
	o, guardian, pf := newTestOrchestrator(t, sim, store)

	pair := testOrchPair()
	pf.SetMarks(pair, portfolio.Marks{SpotPrice: 100, PerpPrice: 100})
	pf.SetWallet(model.WalletID{Venue: "sim", Kind: model.WalletSpotUSDT}, decimal.NewFromInt(100000))
	pf.Open(model.Position{
		Pair: pair, Kind: model.KindSatellite,
		SpotQty: decimal.NewFromInt(100), PerpQty: decimal.NewFromInt(-100),
		OpeningIntentID: "satellite-seed", EntryNotional: decimal.Zero,
	})
	require.True(t, pf.NAV().Equal(decimal.NewFromInt(100000)))

	// The Guardian's start-of-day NAV was captured at construction time,
	// before this wallet was seeded; roll it forward to the seeded NAV so
	// the drawdown below is measured against 100,000, not zero.
	guardian.RollDay()

	// Drawdown to 89,800 against the 100,000 start-of-day baseline is a
	// 10.2% drawdown, crossing dd_safe_pct (10%).
	pf.SetWallet(model.WalletID{Venue: "sim", Kind: model.WalletSpotUSDT}, decimal.NewFromInt(89800))

	o.runRiskOnce(context.Background())

	require.True(t, guardian.SafeMode(), "drawdown past dd_safe_pct must enter SAFE_MODE")
	require.InDelta(t, 10.2, guardian.DrawdownPct(), 1e-6)
	require.Empty(t, pf.Positions(), "emergency_flatten must close every open position")

	trades, err := store.Trades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1, "the flattened position must be recorded as a closed trade")

	openIntent := model.Intent{
		ID: "new-open", Kind: model.OpenHedge, Pair: pair,
		Direction: model.Buy, TargetNotional: decimal.NewFromInt(1000),
		CreatedAt: time.Now(), Deadline: time.Now().Add(time.Second),
	}
	_, err = guardian.Gate(openIntent, decimal.Zero)
	require.ErrorIs(t, err, model.ErrSafeMode, "no new OPEN_HEDGE Intents while SAFE_MODE holds")
}
