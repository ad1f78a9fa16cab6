package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresStore persists trade_log, rebalance_log, and
// portfolio_snapshots (§6 "Persisted state layout") via sqlx + lib/pq,
// the stack the pack uses for exactly this append-only-ledger shape.
type PostgresStore struct {
	db *sqlx.DB
}

// OpenPostgresStore connects and ensures the schema exists (idempotent
// CREATE TABLE IF NOT EXISTS — no separate migration tool is assumed,
// matching the teacher's own state files being plain JSON blobs rather
// than a migrated schema).
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS trade_log (
	id TEXT PRIMARY KEY,
	intent_id TEXT NOT NULL,
	pair TEXT NOT NULL,
	kind TEXT NOT NULL,
	direction TEXT NOT NULL,
	open_t TIMESTAMPTZ NOT NULL,
	close_t TIMESTAMPTZ NOT NULL,
	entry_basis DOUBLE PRECISION NOT NULL,
	exit_basis DOUBLE PRECISION NOT NULL,
	notional NUMERIC NOT NULL,
	fees_total NUMERIC NOT NULL,
	funding_attributed NUMERIC NOT NULL,
	basis_scalp_pnl NUMERIC NOT NULL,
	realized_pnl NUMERIC NOT NULL,
	holding_ms BIGINT NOT NULL,
	routing_venue_spot TEXT NOT NULL,
	routing_venue_perp TEXT NOT NULL,
	expected_impact_bps DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS rebalance_log (
	at TIMESTAMPTZ NOT NULL,
	venue TEXT NOT NULL,
	trigger TEXT NOT NULL,
	inputs JSONB NOT NULL,
	outputs JSONB NOT NULL,
	elapsed_ms BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	at TIMESTAMPTZ PRIMARY KEY,
	snapshot JSONB NOT NULL
);
`)
	return err
}

type tradeRow struct {
	ID                string    `db:"id"`
	IntentID          string    `db:"intent_id"`
	Pair              string    `db:"pair"`
	Kind              string    `db:"kind"`
	Direction         string    `db:"direction"`
	OpenT             time.Time `db:"open_t"`
	CloseT            time.Time `db:"close_t"`
	EntryBasis        float64   `db:"entry_basis"`
	ExitBasis         float64   `db:"exit_basis"`
	Notional          string    `db:"notional"`
	FeesTotal         string    `db:"fees_total"`
	FundingAttributed string    `db:"funding_attributed"`
	BasisScalpPnL     string    `db:"basis_scalp_pnl"`
	RealizedPnL       string    `db:"realized_pnl"`
	HoldingMS         int64     `db:"holding_ms"`
	RoutingVenueSpot  string    `db:"routing_venue_spot"`
	RoutingVenuePerp  string    `db:"routing_venue_perp"`
	ExpectedImpactBps float64   `db:"expected_impact_bps"`
}

func (s *PostgresStore) RecordTrade(ctx context.Context, t model.Trade) error {
	row := tradeRow{
		ID: t.ID, IntentID: t.IntentID, Pair: t.Pair.Key(), Kind: string(t.Kind), Direction: string(t.Direction),
		OpenT: t.OpenT, CloseT: t.CloseT, EntryBasis: t.EntryBasis, ExitBasis: t.ExitBasis,
		Notional: t.Notional.String(), FeesTotal: t.FeesTotal.String(), FundingAttributed: t.FundingAttributed.String(),
		BasisScalpPnL: t.BasisScalpPnL.String(), RealizedPnL: t.RealizedPnL.String(), HoldingMS: t.HoldingMS,
		RoutingVenueSpot: string(t.RoutingVenueSpot), RoutingVenuePerp: string(t.RoutingVenuePerp),
		ExpectedImpactBps: t.ExpectedImpactBps,
	}
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO trade_log (id, intent_id, pair, kind, direction, open_t, close_t, entry_basis, exit_basis,
	notional, fees_total, funding_attributed, basis_scalp_pnl, realized_pnl, holding_ms,
	routing_venue_spot, routing_venue_perp, expected_impact_bps)
VALUES (:id, :intent_id, :pair, :kind, :direction, :open_t, :close_t, :entry_basis, :exit_basis,
	:notional, :fees_total, :funding_attributed, :basis_scalp_pnl, :realized_pnl, :holding_ms,
	:routing_venue_spot, :routing_venue_perp, :expected_impact_bps)
ON CONFLICT (id) DO NOTHING`, row)
	return err
}

func (s *PostgresStore) RecordRebalance(ctx context.Context, r RebalanceRecord) error {
	inputs, err := json.Marshal(r.Inputs)
	if err != nil {
		return err
	}
	outputs, err := json.Marshal(r.Outputs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO rebalance_log (at, venue, trigger, inputs, outputs, elapsed_ms) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.At, string(r.Venue), r.Trigger, inputs, outputs, r.ElapsedMS)
	return err
}

func (s *PostgresStore) RecordSnapshot(ctx context.Context, snap SnapshotRecord) error {
	payload, err := json.Marshal(snap.Snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO portfolio_snapshots (at, snapshot) VALUES ($1, $2)
ON CONFLICT (at) DO UPDATE SET snapshot = EXCLUDED.snapshot`, snap.At, payload)
	return err
}

func (s *PostgresStore) Trades(ctx context.Context) ([]model.Trade, error) {
	var rows []tradeRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM trade_log ORDER BY close_t`); err != nil {
		return nil, err
	}
	out := make([]model.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, tradeFromRow(r))
	}
	return out, nil
}

func tradeFromRow(r tradeRow) model.Trade {
	return model.Trade{
		ID: r.ID, IntentID: r.IntentID, Pair: model.Pair{Symbol: r.Pair},
		Kind: model.PositionKind(r.Kind), Direction: model.OrderSide(r.Direction),
		OpenT: r.OpenT, CloseT: r.CloseT, EntryBasis: r.EntryBasis, ExitBasis: r.ExitBasis,
		Notional: mustDecimal(r.Notional), FeesTotal: mustDecimal(r.FeesTotal),
		FundingAttributed: mustDecimal(r.FundingAttributed), BasisScalpPnL: mustDecimal(r.BasisScalpPnL),
		RealizedPnL: mustDecimal(r.RealizedPnL), HoldingMS: r.HoldingMS,
		RoutingVenueSpot: model.Venue(r.RoutingVenueSpot), RoutingVenuePerp: model.Venue(r.RoutingVenuePerp),
		ExpectedImpactBps: r.ExpectedImpactBps,
	}
}

func (s *PostgresStore) Rebalances(ctx context.Context) ([]RebalanceRecord, error) {
	type row struct {
		At        time.Time `db:"at"`
		Venue     string    `db:"venue"`
		Trigger   string    `db:"trigger"`
		Inputs    []byte    `db:"inputs"`
		Outputs   []byte    `db:"outputs"`
		ElapsedMS int64     `db:"elapsed_ms"`
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM rebalance_log ORDER BY at`); err != nil {
		return nil, err
	}
	out := make([]RebalanceRecord, 0, len(rows))
	for _, r := range rows {
		rec := RebalanceRecord{At: r.At, Venue: model.Venue(r.Venue), Trigger: r.Trigger, ElapsedMS: r.ElapsedMS}
		_ = json.Unmarshal(r.Inputs, &rec.Inputs)
		_ = json.Unmarshal(r.Outputs, &rec.Outputs)
		out = append(out, rec)
	}
	return out, nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (SnapshotRecord, bool, error) {
	type row struct {
		At       time.Time `db:"at"`
		Snapshot []byte    `db:"snapshot"`
	}
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT * FROM portfolio_snapshots ORDER BY at DESC LIMIT 1`)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return SnapshotRecord{}, false, nil
		}
		return SnapshotRecord{}, false, err
	}
	var snap model.PortfolioSnapshot
	if err := json.Unmarshal(r.Snapshot, &snap); err != nil {
		return SnapshotRecord{}, false, err
	}
	return SnapshotRecord{At: r.At, Snapshot: snap}, true, nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
