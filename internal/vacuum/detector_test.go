package vacuum

import (
	"testing"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		Window: 10 * time.Second, MinLiqNotional: 1_000_000, Threshold: 0.005,
		MaxHold: time.Hour, ConvergenceBasis: 0, MinConfidence: 0.1,
		DefaultTTL: 5 * time.Second, MaxSlippageBps: 20,
	}
}

// TestScenarioS4VacuumCapture mirrors spec §8 scenario S4.
func TestScenarioS4VacuumCapture(t *testing.T) {
	pair := model.Pair{Symbol: "BTC-USD"}
	d := New(testParams(), zerolog.Nop())
	now := time.Now()

	d.OnLiquidation(pair, model.LiquidationEvent{Symbol: "BTC-USD", Side: model.Buy, Notional: 1_500_000, T: now}, now)
	d.OnLiquidation(pair, model.LiquidationEvent{Symbol: "BTC-USD", Side: model.Buy, Notional: 1_500_000, T: now.Add(2 * time.Second)}, now.Add(2*time.Second))

	in, ok := d.OnBasisUpdate(pair, -0.008, decimal.NewFromInt(5000), now.Add(4*time.Second))
	require.True(t, ok)
	require.Equal(t, model.VacuumOpen, in.Kind)
	require.Equal(t, model.Sell, in.Direction) // short spot, long perp

	in2, ok := d.OnBasisUpdate(pair, -0.0005, decimal.NewFromInt(5000), now.Add(30*time.Second))
	require.True(t, ok)
	require.Equal(t, model.VacuumClose, in2.Kind)
}

func TestNoLiquidationNoVacuum(t *testing.T) {
	pair := model.Pair{Symbol: "BTC-USD"}
	d := New(testParams(), zerolog.Nop())
	now := time.Now()
	_, ok := d.OnBasisUpdate(pair, -0.008, decimal.NewFromInt(5000), now)
	require.False(t, ok)
}

func TestBelowMinLiquidationNotionalIgnored(t *testing.T) {
	pair := model.Pair{Symbol: "BTC-USD"}
	d := New(testParams(), zerolog.Nop())
	now := time.Now()
	d.OnLiquidation(pair, model.LiquidationEvent{Symbol: "BTC-USD", Side: model.Buy, Notional: 100, T: now}, now)
	_, ok := d.OnBasisUpdate(pair, -0.008, decimal.NewFromInt(5000), now)
	require.False(t, ok)
}

func TestOnlyOneVacuumOpenPerPair(t *testing.T) {
	pair := model.Pair{Symbol: "BTC-USD"}
	d := New(testParams(), zerolog.Nop())
	now := time.Now()
	d.OnLiquidation(pair, model.LiquidationEvent{Symbol: "BTC-USD", Side: model.Buy, Notional: 2_000_000, T: now}, now)
	_, ok := d.OnBasisUpdate(pair, -0.008, decimal.NewFromInt(5000), now)
	require.True(t, ok)
	_, ok = d.OnBasisUpdate(pair, -0.009, decimal.NewFromInt(5000), now.Add(time.Second))
	require.False(t, ok) // still open and not converged/expired
}
