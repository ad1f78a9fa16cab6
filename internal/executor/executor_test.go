package executor

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

func testParams() Params {
	return Params{
		DeltaToleranceNotional: decimal.NewFromInt(50),
		TWAPThreshold:          decimal.NewFromInt(5000),
		TWAPClipMax:            decimal.NewFromInt(500),
		TWAPIntervalMin:        time.Millisecond,
		TWAPIntervalMax:        2 * time.Millisecond,
		TWAPAbortBps:           20,
		DispatchWindow:         100 * time.Millisecond,
		AggressionBps:          1,
		PollInterval:           time.Millisecond,
	}
}

func waitForTag(t *testing.T, v *venue.SimVenue, tag string) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if id, ok := v.TagID(tag); ok {
			return id
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("order with tag %s was never placed", tag)
	return ""
}

func newTestPair() model.Pair {
	return model.Pair{Venue: "sim", Symbol: "BTC-USD", SpotID: "BTC", PerpID: "BTC-PERP"}
}

func baseIntent(pair model.Pair, notional decimal.Decimal, ttl time.Duration) model.Intent {
	now := time.Now()
	return model.Intent{
		ID:             "intent-1",
		Kind:           model.OpenHedge,
		Pair:           pair,
		Direction:      model.Buy,
		TargetNotional: notional,
		MaxSlippageBps: 20,
		TTL:            ttl,
		Cause:          model.CauseZScore,
		CreatedAt:      now,
		Deadline:       now.Add(ttl),
		VenueSpot:      pair.Venue,
		VenuePerp:      pair.Venue,
	}
}

// TestFullFillDone exercises the straightforward path: both legs fill
// fully and within tolerance, terminating DONE (§8 property 6).
func TestFullFillDone(t *testing.T) {
	pair := newTestPair()
	spot := venue.NewSimVenue(pair.Venue)
	ex := New(map[model.Venue]venue.Adapter{pair.Venue: spot}, testParams(), nil, zerolog.Nop())

	intent := baseIntent(pair, decimal.NewFromInt(2000), 2*time.Second)

	var result Result
	done := make(chan struct{})
	go func() {
		result = ex.Submit(context.Background(), intent, 100, 100)
		close(done)
	}()

	spotID := waitForTag(t, spot, intent.ID+":spot")
	perpID := waitForTag(t, spot, intent.ID+":perp")
	spot.Fill(spotID, 20, 100)
	spot.Fill(perpID, 20, 100)

	<-done
	require.Equal(t, model.StateDone, result.State)
	require.True(t, result.SpotLeg.FilledQty.Equal(decimal.NewFromInt(20)))
	require.True(t, result.PerpLeg.FilledQty.Equal(decimal.NewFromInt(20)))
}

// TestScenarioS2PartialFillReconciliation mirrors spec §8 scenario S2:
// spot fills 1,000 then rejects the remainder; perp fully fills 2,000.
// Expected: a compensating perp-buy of 1,000 notional, terminal
// COMPENSATED, final |delta|*price within tolerance.
func TestScenarioS2PartialFillReconciliation(t *testing.T) {
	pair := newTestPair()
	spotV := venue.NewSimVenue(pair.Venue)
	ex := New(map[model.Venue]venue.Adapter{pair.Venue: spotV}, testParams(), nil, zerolog.Nop())

	intent := baseIntent(pair, decimal.NewFromInt(2000), 2*time.Second)

	var result Result
	done := make(chan struct{})
	go func() {
		result = ex.Submit(context.Background(), intent, 100, 100)
		close(done)
	}()

	spotID := waitForTag(t, spotV, intent.ID+":spot")
	perpID := waitForTag(t, spotV, intent.ID+":perp")

	spotV.Fill(spotID, 10, 100) // 1,000 notional at price 100
	spotV.Reject(spotID)        // remainder rejected; FilledQty stays at 10
	spotV.Fill(perpID, 20, 100) // perp fully fills 2,000 notional

	compID := waitForTag(t, spotV, intent.ID+":compensate")
	spotV.Fill(compID, 10, 100) // the compensating perp-buy fills immediately (IOC)

	<-done
	require.Equal(t, model.StateCompensated, result.State)
	require.NotEmpty(t, result.Alert)

	spotNotional := result.SpotLeg.FilledQty.Mul(decimal.NewFromFloat(100))
	perpNotional := result.PerpLeg.FilledQty.Mul(decimal.NewFromFloat(100))
	deltaNotional := spotNotional.Sub(perpNotional).Abs()
	require.True(t, deltaNotional.LessThanOrEqual(ex.params.DeltaToleranceNotional))
}

// TestBothLegsRejectedFails covers §4.5 step 5: both legs are placed,
// then rejected by the venue before any fill -> BOTH_FAILED.
func TestBothLegsRejectedFails(t *testing.T) {
	pair := newTestPair()
	spotV := venue.NewSimVenue(pair.Venue)
	ex := New(map[model.Venue]venue.Adapter{pair.Venue: spotV}, testParams(), nil, zerolog.Nop())
	intent := baseIntent(pair, decimal.NewFromInt(2000), 200*time.Millisecond)

	var result Result
	done := make(chan struct{})
	go func() {
		result = ex.Submit(context.Background(), intent, 100, 100)
		close(done)
	}()

	spotID := waitForTag(t, spotV, intent.ID+":spot")
	perpID := waitForTag(t, spotV, intent.ID+":perp")
	spotV.Reject(spotID)
	spotV.Reject(perpID)

	<-done
	require.Equal(t, model.StateFailed, result.State)
	require.ErrorIs(t, result.Err, model.ErrBothLegsFailed)
}

// TestNoFillsTimesOut covers §4.5 step 5: neither leg fills before the
// Intent's deadline -> TIMED_OUT.
func TestNoFillsTimesOut(t *testing.T) {
	pair := newTestPair()
	spotV := venue.NewSimVenue(pair.Venue)
	ex := New(map[model.Venue]venue.Adapter{pair.Venue: spotV}, testParams(), nil, zerolog.Nop())
	intent := baseIntent(pair, decimal.NewFromInt(2000), 30*time.Millisecond)

	result := ex.Submit(context.Background(), intent, 100, 100)
	require.Equal(t, model.StateTimedOut, result.State)
	require.ErrorIs(t, result.Err, model.ErrIntentTimedOut)
}

func waitForNewTag(t *testing.T, v *venue.SimVenue, tag, prevID string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if id, ok := v.TagID(tag); ok && id != prevID {
			return id
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no new order registered for tag %s", tag)
	return ""
}

// TestScenarioS3TWAPAbort mirrors spec §8 scenario S3: a TWAP Intent's
// clip experiences slippage beyond twap_abort_bps partway through,
// aborting the remaining clips while leaving already-filled clips in
// place as an open position (the Intent does not reach a terminal
// state).
func TestScenarioS3TWAPAbort(t *testing.T) {
	pair := newTestPair()
	spotV := venue.NewSimVenue(pair.Venue)
	params := testParams()
	params.TWAPClipMax = decimal.NewFromInt(500)
	ex := New(map[model.Venue]venue.Adapter{pair.Venue: spotV}, params, nil, zerolog.Nop())

	intent := baseIntent(pair, decimal.NewFromInt(20000), 60*time.Second)

	var result Result
	done := make(chan struct{})
	go func() {
		result = ex.Submit(context.Background(), intent, 100, 100)
		close(done)
	}()

	prevSpot, prevPerp := "", ""
	for clip := 1; clip <= 11; clip++ {
		spotID := waitForNewTag(t, spotV, intent.ID+":spot", prevSpot)
		perpID := waitForNewTag(t, spotV, intent.ID+":perp", prevPerp)
		prevSpot, prevPerp = spotID, perpID

		price := 100.0
		if clip == 11 {
			price = 100.25 // 25 bps away from the 100 reference
		}
		spotV.Fill(spotID, 5, price)
		spotV.Fill(perpID, 5, price)
	}

	<-done
	require.Equal(t, model.StateLive, result.State)
	require.NotEmpty(t, result.Alert)
	require.Equal(t, 11, result.ClipsFilled)
	require.Less(t, result.ClipsFilled, result.ClipsTotal)
}

// TestAtMostOneInFlightTrackedByExecutor mirrors §8 property 5 from the
// Executor's side: InFlight reports true until the Intent reaches a
// terminal state.
func TestAtMostOneInFlightTrackedByExecutor(t *testing.T) {
	pair := newTestPair()
	spotV := venue.NewSimVenue(pair.Venue)
	spotV.AutoFill = true
	ex := New(map[model.Venue]venue.Adapter{pair.Venue: spotV}, testParams(), nil, zerolog.Nop())
	intent := baseIntent(pair, decimal.NewFromInt(1000), time.Second)

	result := ex.Submit(context.Background(), intent, 100, 100)
	require.Equal(t, model.StateDone, result.State)
	require.False(t, ex.InFlight(pair))
}
