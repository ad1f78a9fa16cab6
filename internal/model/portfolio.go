package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// WalletKind distinguishes the spot-USDT wallet from the perp-margin
// wallet per venue (§3 "Portfolio: set of positions plus per-wallet
// balances").
type WalletKind string

const (
	WalletSpotUSDT    WalletKind = "SPOT_USDT"
	WalletPerpMargin  WalletKind = "PERP_MARGIN"
	WalletSpotAsset   WalletKind = "SPOT_ASSET"
)

// WalletID keys a balance by venue, kind, and (for spot assets) symbol.
type WalletID struct {
	Venue  Venue
	Kind   WalletKind
	Symbol string // only meaningful for WalletSpotAsset
}

// MarshalText/UnmarshalText let WalletID serve as a JSON map key
// (encoding/json only accepts TextMarshaler types there), needed to
// export a PortfolioSnapshot's Wallets map (§6 self-describing export).
func (w WalletID) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%s|%s|%s", w.Venue, w.Kind, w.Symbol)), nil
}

func (w *WalletID) UnmarshalText(text []byte) error {
	parts := strings.SplitN(string(text), "|", 3)
	if len(parts) != 3 {
		return fmt.Errorf("model: invalid WalletID text %q", text)
	}
	w.Venue = Venue(parts[0])
	w.Kind = WalletKind(parts[1])
	w.Symbol = parts[2]
	return nil
}

// PortfolioSnapshot is an immutable, point-in-time view of positions and
// balances (§5: "other components read via immutable snapshots taken at
// message-handling time"). It is the payload the Portfolio task hands to
// every other component; nothing outside internal/portfolio mutates it.
type PortfolioSnapshot struct {
	Positions        []Position
	Wallets          map[WalletID]decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	NAV              decimal.Decimal
	Delta            float64 // signed fraction of NAV
	MarginUtilization map[Venue]float64
}
