package venue

import (
	"context"
	"testing"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/stretchr/testify/require"
)

func TestSimVenuePlaceAndFill(t *testing.T) {
	v := NewSimVenue("sim")
	ctx := context.Background()
	id, err := v.PlaceOrder(ctx, model.VenueOrderRequest{Side: model.Buy, Kind: model.KindMarket, Qty: 1, Price: 100})
	require.NoError(t, err)

	o, err := v.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.LegLive, o.State)

	v.Fill(id, 1, 101)
	o, err = v.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.LegFilled, o.State)
	require.Equal(t, 101.0, o.AvgPrice)
}

func TestSimVenueBookRoundTrip(t *testing.T) {
	v := NewSimVenue("sim")
	ctx := context.Background()
	pair := model.Pair{Venue: "sim", Symbol: "BTC-USD"}
	ch, err := v.SubscribeBook(ctx, pair.Symbol, model.SideSpot)
	require.NoError(t, err)

	v.PushBook(model.BookSnapshot{Pair: pair, Side: model.SideSpot, Seq: 1, Timestamp: time.Now()})
	select {
	case snap := <-ch:
		require.Equal(t, uint64(1), snap.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestSimVenueTransferMovesBalances(t *testing.T) {
	v := NewSimVenue("sim")
	spot := model.WalletID{Venue: "sim", Kind: model.WalletSpotUSDT}
	perp := model.WalletID{Venue: "sim", Kind: model.WalletPerpMargin}
	v.SetBalances([]WalletBalance{{Wallet: spot, Amount: 1000}, {Wallet: perp, Amount: 0}})

	require.NoError(t, v.Transfer(context.Background(), spot, perp, 400))
	bals, _ := v.GetWalletBalances(context.Background())
	byWallet := map[model.WalletID]float64{}
	for _, b := range bals {
		byWallet[b.Wallet] = b.Amount
	}
	require.Equal(t, 600.0, byWallet[spot])
	require.Equal(t, 400.0, byWallet[perp])
}
