package ledger

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/chidi150c/sentinel/internal/model"
)

// tradeFields is the self-describing header §4.8/§6 require: every
// Trade field, in a stable order, so a CSV consumer never has to guess
// column meaning.
var tradeFields = []string{
	"id", "intent_id", "pair", "kind", "direction", "open_t", "close_t",
	"entry_basis", "exit_basis", "notional", "fees_total", "funding_attributed",
	"basis_scalp_pnl", "realized_pnl", "holding_ms", "routing_venue_spot",
	"routing_venue_perp", "expected_impact_bps",
}

// ExportCSV writes trades as self-describing CSV (header row names every
// field), mirroring the teacher's tools/ export utilities generalized
// from a JSON state blob to a tabular trade record (§6).
func ExportCSV(w io.Writer, trades []model.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeFields); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.ID, t.IntentID, t.Pair.Key(), string(t.Kind), string(t.Direction),
			t.OpenT.UTC().Format("2006-01-02T15:04:05.000Z"),
			t.CloseT.UTC().Format("2006-01-02T15:04:05.000Z"),
			strconv.FormatFloat(t.EntryBasis, 'f', -1, 64),
			strconv.FormatFloat(t.ExitBasis, 'f', -1, 64),
			t.Notional.String(), t.FeesTotal.String(), t.FundingAttributed.String(),
			t.BasisScalpPnL.String(), t.RealizedPnL.String(),
			strconv.FormatInt(t.HoldingMS, 10),
			string(t.RoutingVenueSpot), string(t.RoutingVenuePerp),
			strconv.FormatFloat(t.ExpectedImpactBps, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON writes trades as a self-describing JSON array (field names
// carried on every record, unlike the positional CSV rows) (§6).
func ExportJSON(w io.Writer, trades []model.Trade) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(trades)
}
