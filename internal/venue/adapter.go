// Package venue – External venue adapter contract (§6) and the resilience
// wrapper the core places around it. Adapter *implementations* (REST/WS
// clients, credential storage) are out of scope (§1); this package only
// defines the interface the core depends on and a test double.
package venue

import (
	"context"

	"github.com/chidi150c/sentinel/internal/model"
)

// Status reflects whether a venue's book feed is safe to route to (§4.1,
// §4.4(i)).
type Status string

const (
	StatusFresh  Status = "FRESH"
	StatusUnsafe Status = "UNSAFE"
)

// WalletBalance is one line of get_wallet_balances() (§6).
type WalletBalance struct {
	Wallet model.WalletID
	Amount float64
}

// Adapter is the minimal surface the core depends on for a venue (§6):
// book/liquidation streams, order placement/cancellation, balances, and
// transfers. FundingRate is an optional capability (SPEC_FULL.md
// "Funding-rate ingestion"); adapters that don't support it return
// (0, false, nil).
type Adapter interface {
	Name() model.Venue
	Status() Status

	SubscribeBook(ctx context.Context, symbol string, side model.BookSide) (<-chan model.BookSnapshot, error)
	SubscribeLiquidations(ctx context.Context, symbol string) (<-chan model.LiquidationEvent, error)

	PlaceOrder(ctx context.Context, req model.VenueOrderRequest) (legOrderID string, err error)
	CancelOrder(ctx context.Context, legOrderID string) error
	GetOrder(ctx context.Context, legOrderID string) (*model.LegOrder, error)

	GetWalletBalances(ctx context.Context) ([]WalletBalance, error)
	Transfer(ctx context.Context, from, to model.WalletID, amount float64) error

	FundingRate(ctx context.Context, symbol string) (rate float64, ok bool, err error)
}

// CostModel is the per-leg cost input the Router needs from a venue
// (§4.4): taker_fee + expected_impact + transfer_cost + withdrawal_fee -
// maker_rebate_if_passive.
type CostModel struct {
	TakerFeeBps      float64
	MakerRebateBps   float64
	TransferCostBps  float64
	WithdrawalFeeBps float64
	ExpectedImpactBps float64
}

// TotalCostBps sums the Router's cost formula (§4.4).
func (c CostModel) TotalCostBps() float64 {
	return c.TakerFeeBps + c.ExpectedImpactBps + c.TransferCostBps + c.WithdrawalFeeBps - c.MakerRebateBps
}
