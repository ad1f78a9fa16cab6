package risk

import (
	"context"
	"testing"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testPair() model.Pair {
	return model.Pair{Venue: "sim", Symbol: "BTC-USD"}
}

func testParams() Params {
	return Params{
		DeltaWarnBps:            200,
		DeltaBlockBps:           500,
		DDReducePct:             5,
		DDSafePct:               10,
		MinNAVFloor:             decimal.Zero,
		LeverageCap:             3,
		PositionCapPerPair:      decimal.NewFromInt(50000),
		PositionCapAggregate:    decimal.NewFromInt(250000),
		UnrealizedLossReviewPct: 10,
	}
}

func seedPortfolio(t *testing.T, nav decimal.Decimal) *portfolio.Portfolio {
	t.Helper()
	p := portfolio.New(true, zerolog.Nop())
	p.SetWallet(model.WalletID{Venue: "sim", Kind: model.WalletSpotUSDT}, nav)
	p.SetMarks(testPair(), portfolio.Marks{SpotPrice: 100, PerpPrice: 100})
	return p
}

type recordingAlerter struct {
	events []string
}

func (r *recordingAlerter) Alert(ctx context.Context, event, detail string) {
	r.events = append(r.events, event)
}

// TestDrawdownEscalation mirrors §8 property 10: daily drawdown > 5%
// sets size multiplier to <= 0.5, and > 10% refuses all opens.
func TestDrawdownEscalation(t *testing.T) {
	p := seedPortfolio(t, decimal.NewFromInt(10000))
	g := New(p, testParams(), nil, zerolog.Nop())

	// Drop NAV by 6%: reduce tier.
	p.SetWallet(model.WalletID{Venue: "sim", Kind: model.WalletSpotUSDT}, decimal.NewFromInt(9400))
	g.RecomputeNAV(context.Background())
	require.False(t, g.SafeMode())
	require.LessOrEqual(t, g.SizeMultiplier(), 0.5)

	// Drop NAV by 10.2%: SAFE_MODE.
	p.SetWallet(model.WalletID{Venue: "sim", Kind: model.WalletSpotUSDT}, decimal.NewFromInt(8980))
	entered := g.RecomputeNAV(context.Background())
	require.True(t, entered)
	require.True(t, g.SafeMode())

	intent := model.Intent{Kind: model.OpenHedge, TargetNotional: decimal.NewFromInt(1000)}
	_, err := g.Gate(intent, decimal.Zero)
	require.ErrorIs(t, err, model.ErrSafeMode)
}

func TestGateAllowsCloseDuringSafeMode(t *testing.T) {
	p := seedPortfolio(t, decimal.NewFromInt(10000))
	g := New(p, testParams(), nil, zerolog.Nop())
	p.SetWallet(model.WalletID{Venue: "sim", Kind: model.WalletSpotUSDT}, decimal.NewFromInt(8000))
	g.RecomputeNAV(context.Background())
	require.True(t, g.SafeMode())

	closeIntent := model.Intent{Kind: model.CloseHedge, TargetNotional: decimal.NewFromInt(1000)}
	out, err := g.Gate(closeIntent, decimal.Zero)
	require.NoError(t, err)
	require.True(t, out.TargetNotional.Equal(decimal.NewFromInt(1000)))
}

func TestGateShrinksSizeInReduceTier(t *testing.T) {
	p := seedPortfolio(t, decimal.NewFromInt(10000))
	g := New(p, testParams(), nil, zerolog.Nop())
	p.SetWallet(model.WalletID{Venue: "sim", Kind: model.WalletSpotUSDT}, decimal.NewFromInt(9400))
	g.RecomputeNAV(context.Background())

	intent := model.Intent{Kind: model.OpenHedge, TargetNotional: decimal.NewFromInt(1000)}
	out, err := g.Gate(intent, decimal.Zero)
	require.NoError(t, err)
	require.True(t, out.TargetNotional.LessThan(decimal.NewFromInt(1000)))
}

func TestGateBlocksOnPositionCap(t *testing.T) {
	p := seedPortfolio(t, decimal.NewFromInt(10000))
	params := testParams()
	params.PositionCapPerPair = decimal.NewFromInt(500)
	g := New(p, params, nil, zerolog.Nop())

	intent := model.Intent{Kind: model.OpenHedge, TargetNotional: decimal.NewFromInt(1000)}
	_, err := g.Gate(intent, decimal.Zero)
	require.ErrorIs(t, err, model.ErrPositionCapped)
}

func TestGateBlocksOnDeltaThreshold(t *testing.T) {
	pair := testPair()
	p := seedPortfolio(t, decimal.NewFromInt(10000))
	// Net long 1000 notional against ~11000 NAV => delta ~9%, above the 5% block.
	p.Open(model.Position{Pair: pair, Kind: model.KindCore, SpotQty: decimal.NewFromInt(10), OpeningIntentID: "i1"})
	g := New(p, testParams(), nil, zerolog.Nop())

	intent := model.Intent{Kind: model.OpenHedge, TargetNotional: decimal.NewFromInt(100)}
	_, err := g.Gate(intent, decimal.Zero)
	require.ErrorIs(t, err, model.ErrDeltaBlock)
}

func TestReviewUnrealizedLossFlagsOnce(t *testing.T) {
	p := seedPortfolio(t, decimal.NewFromInt(10000))
	alerter := &recordingAlerter{}
	g := New(p, testParams(), alerter, zerolog.Nop())

	pos := model.Position{
		Pair: testPair(), Kind: model.KindCore,
		SpotQty: decimal.NewFromInt(10), PerpQty: decimal.Zero,
		EntryNotional:   decimal.NewFromInt(1000), // opened at mark 100
		OpeningIntentID: "i1",
	}

	// Entry notional 1,000 (mark 100), current mark 85 -> 150 notional
	// drawdown against baseline -> 15% loss, above the 10% threshold.
	flagged := g.ReviewUnrealizedLoss(context.Background(), pos, 85, 85, nil)
	require.True(t, flagged)
	flagged = g.ReviewUnrealizedLoss(context.Background(), pos, 85, 85, nil)
	require.True(t, flagged)

	count := 0
	for _, e := range alerter.events {
		if e == "unrealized_loss_review" {
			count++
		}
	}
	require.Equal(t, 1, count, "repeat flags for the same position should not re-alert")
}

// TestEmergencyFlattenIssuesCloseForEveryPosition mirrors §8 scenario
// S6: emergency_flatten cancels every in-flight pair and issues one
// urgent close-Intent per open position.
func TestEmergencyFlattenIssuesCloseForEveryPosition(t *testing.T) {
	p := seedPortfolio(t, decimal.NewFromInt(10000))
	pairA := model.Pair{Venue: "sim", Symbol: "BTC-USD"}
	pairB := model.Pair{Venue: "sim", Symbol: "ETH-USD"}
	p.SetMarks(pairB, portfolio.Marks{SpotPrice: 50, PerpPrice: 50})
	p.Open(model.Position{Pair: pairA, Kind: model.KindCore, SpotQty: decimal.NewFromInt(5), OpeningIntentID: "a1"})
	p.Open(model.Position{Pair: pairB, Kind: model.KindCore, SpotQty: decimal.NewFromInt(-3), OpeningIntentID: "b1"})

	g := New(p, testParams(), nil, zerolog.Nop())

	var canceled []model.Pair
	var submitted []model.Intent
	g.EmergencyFlatten(context.Background(),
		func(pair model.Pair) { canceled = append(canceled, pair) },
		func(ctx context.Context, intent model.Intent) { submitted = append(submitted, intent) },
	)

	require.Len(t, canceled, 2)
	require.Len(t, submitted, 2)
	for _, in := range submitted {
		require.True(t, in.Urgent)
		require.Equal(t, model.CauseRiskFlatten, in.Cause)
	}
	require.True(t, g.SafeMode())
}
