package ledger

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func sampleTrade(id string, realizedPnL float64, closeT time.Time) model.Trade {
	return model.Trade{
		ID:                id,
		IntentID:          id + "-intent",
		Pair:              model.Pair{Venue: "sim", Symbol: "BTC-USD"},
		Kind:              model.KindCore,
		Direction:         model.Buy,
		OpenT:             closeT.Add(-time.Hour),
		CloseT:            closeT,
		EntryBasis:        0.001,
		ExitBasis:         0.0005,
		Notional:          decimal.NewFromInt(1000),
		FeesTotal:         decimal.NewFromFloat(1.5),
		FundingAttributed: decimal.NewFromFloat(2.0),
		BasisScalpPnL:     decimal.NewFromFloat(realizedPnL * 0.6),
		RealizedPnL:       decimal.NewFromFloat(realizedPnL),
		HoldingMS:         int64(time.Hour / time.Millisecond),
		RoutingVenueSpot:  "sim",
		RoutingVenuePerp:  "sim",
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	trade := sampleTrade("t1", 10, time.Now())
	require.NoError(t, s.RecordTrade(ctx, trade))

	trades, err := s.Trades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, "t1", trades[0].ID)

	require.NoError(t, s.RecordRebalance(ctx, RebalanceRecord{
		At: time.Now(), Venue: "sim", Trigger: "tier1",
		Inputs: map[string]float64{"margin_util": 0.4}, Outputs: map[string]float64{"transferred_to_perp": 100},
	}))
	rebalances, err := s.Rebalances(ctx)
	require.NoError(t, err)
	require.Len(t, rebalances, 1)
	require.Equal(t, "tier1", rebalances[0].Trigger)

	_, ok, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.RecordSnapshot(ctx, SnapshotRecord{At: time.Now(), Snapshot: model.PortfolioSnapshot{NAV: decimal.NewFromInt(10000)}}))
	snap, ok, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, snap.Snapshot.NAV.Equal(decimal.NewFromInt(10000)))
}

func TestWinRateAndDrawdown(t *testing.T) {
	now := time.Now()
	trades := []model.Trade{
		sampleTrade("t1", 100, now.Add(-3*time.Hour)),
		sampleTrade("t2", -50, now.Add(-2*time.Hour)),
		sampleTrade("t3", 30, now.Add(-time.Hour)),
	}
	require.InDelta(t, 2.0/3.0, WinRate(trades), 1e-9)

	// cumulative: 100 -> 50 -> 80; peak 100, trough 50 -> maxDD 50
	require.InDelta(t, 50, MaxDrawdown(trades), 1e-9)
}

func TestYield24hExcludesOlderTrades(t *testing.T) {
	now := time.Now()
	trades := []model.Trade{
		sampleTrade("recent", 100, now.Add(-time.Hour)),
		sampleTrade("stale", 500, now.Add(-48*time.Hour)),
	}
	y := Yield24h(trades, now, 10000)
	require.InDelta(t, 100.0/10000.0, y, 1e-9)
}

func TestFundingAPYWeightsByNotional(t *testing.T) {
	t2 := sampleTrade("t2", 10, time.Now())
	t2.Notional = decimal.NewFromInt(3000)
	trades := []model.Trade{
		sampleTrade("t1", 10, time.Now()),
		t2,
	}
	apy := FundingAPY(trades)
	require.Greater(t, apy, 0.0)
	// 2 funding over 1h: 2/1000*8760 = 17.52 and 2/3000*8760 = 5.84;
	// weighted by notional (1000, 3000) -> 8.76 (an unweighted mean is 11.68).
	require.InDelta(t, 8.76, apy, 1e-6)
}

func TestBasisScalpPnLSums(t *testing.T) {
	trades := []model.Trade{
		sampleTrade("t1", 100, time.Now()), // basis scalp = 60
		sampleTrade("t2", 50, time.Now()),  // basis scalp = 30
	}
	require.InDelta(t, 90, BasisScalpPnL(trades), 1e-9)
}

func TestSharpeZeroForFewerThanTwoTrades(t *testing.T) {
	require.Equal(t, 0.0, Sharpe(nil))
	require.Equal(t, 0.0, Sharpe([]model.Trade{sampleTrade("t1", 10, time.Now())}))
}

func TestExportCSVHasSelfDescribingHeader(t *testing.T) {
	var buf bytes.Buffer
	trades := []model.Trade{sampleTrade("t1", 10, time.Now())}
	require.NoError(t, ExportCSV(&buf, trades))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "id")
	require.Contains(t, lines[0], "realized_pnl")
	require.Contains(t, lines[1], "t1")
}

func TestExportJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	trades := []model.Trade{sampleTrade("t1", 10, time.Now())}
	require.NoError(t, ExportJSON(&buf, trades))
	require.Contains(t, buf.String(), "\"ID\": \"t1\"")
}
