// Replay a paired spot/perp book CSV through the Statistical Engine and
// Signal Generator, logging the Intents that would fire. No orders are
// placed — a faithful fill simulation depends on venue-specific
// microstructure this command deliberately has no model of (§1, real
// venue clients out of scope) — so this is a decision-replay tool, not
// a P&L backtest.
//
// Grounded on the teacher's backtest.go CSV loader (generic header,
// time column accepting RFC3339 or UNIX seconds, unknown columns
// ignored), generalized from a single OHLCV series to paired spot/perp
// top-of-book rows.
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chidi150c/sentinel/internal/config"
	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/signal"
	"github.com/chidi150c/sentinel/internal/stats"
	"github.com/chidi150c/sentinel/internal/vacuum"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// bookRow is one parsed line of the replay CSV: best bid/ask for both
// legs at a point in time. Size defaults to 1 unit per level when the
// CSV carries no depth columns, which is enough to exercise the basis
// and z-score path even though it flattens book_depth_ratio to 1.
type bookRow struct {
	at               time.Time
	spotBid, spotAsk float64
	perpBid, perpAsk float64
}

func loadBookCSV(path string) ([]bookRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []bookRow
	var headers []string
	rowIdx := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		row := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := firstNonEmpty(row, "time", "timestamp")
		sb, sa := firstNonEmpty(row, "spot_bid"), firstNonEmpty(row, "spot_ask")
		pb, pa := firstNonEmpty(row, "perp_bid"), firstNonEmpty(row, "perp_ask")
		if ts == "" || sb == "" || sa == "" || pb == "" || pa == "" {
			continue
		}
		at, err := parseTimeFlexible(ts)
		if err != nil {
			continue
		}
		spotBid, _ := strconv.ParseFloat(sb, 64)
		spotAsk, _ := strconv.ParseFloat(sa, 64)
		perpBid, _ := strconv.ParseFloat(pb, 64)
		perpAsk, _ := strconv.ParseFloat(pa, 64)
		out = append(out, bookRow{at: at, spotBid: spotBid, spotAsk: spotAsk, perpBid: perpBid, perpAsk: perpAsk})
		rowIdx++
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out, nil
}

func parseTimeFlexible(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}

func (r bookRow) snapshots(pair model.Pair, seq uint64) (model.BookSnapshot, model.BookSnapshot) {
	spot := model.BookSnapshot{
		Pair: pair, Side: model.SideSpot, Seq: seq, Timestamp: r.at,
		Bids: []model.Level{{Price: r.spotBid, Size: 1}}, Asks: []model.Level{{Price: r.spotAsk, Size: 1}},
	}
	perp := model.BookSnapshot{
		Pair: pair, Side: model.SidePerp, Seq: seq, Timestamp: r.at,
		Bids: []model.Level{{Price: r.perpBid, Size: 1}}, Asks: []model.Level{{Price: r.perpAsk, Size: 1}},
	}
	return spot, perp
}

// staticDepth always reports full book depth; a replay CSV carries no
// real depth column, so the tie-break ranking's book_depth_ratio term
// is neutralized rather than fabricated.
type staticDepth struct{}

func (staticDepth) DepthRatio(model.Pair) float64 { return 1 }

// staticPortfolio is a fixed-NAV, no-position view for replay: the
// backtest never opens real positions, so CORE/SATELLITE gating always
// sees a clean slate.
type staticPortfolio struct{ nav decimal.Decimal }

func (s staticPortfolio) NAV() decimal.Decimal                    { return s.nav }
func (staticPortfolio) Delta() float64                            { return 0 }
func (staticPortfolio) HasSatellite(model.Pair) bool               { return false }
func (staticPortfolio) SatelliteCapacityAvailable(model.Pair) bool { return true }

type neverInFlight struct{}

func (neverInFlight) InFlight(model.Pair) bool { return false }

var (
	backtestCSV      string
	backtestVenue    string
	backtestSymbol   string
	backtestNAV      float64
	backtestNotional float64
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a paired spot/perp book CSV through stats+signal, logging would-be Intents",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger("info")
		if backtestCSV == "" {
			return fmt.Errorf("backtest: --csv is required")
		}
		rows, err := loadBookCSV(backtestCSV)
		if err != nil {
			return fmt.Errorf("backtest load: %w", err)
		}
		if len(rows) < 100 {
			return fmt.Errorf("backtest: need >=100 rows, have %d", len(rows))
		}

		pair := model.Pair{Venue: model.Venue(backtestVenue), Symbol: backtestSymbol, SpotID: backtestSymbol, PerpID: backtestSymbol + "-PERP"}

		cfg := config.Load()
		pub := stats.NewPublisher(nil, zerolog.Nop())
		engine := stats.NewEngine(time.Duration(cfg.WindowSeconds)*time.Second, cfg.WarmupMin, 10_000, cfg.DepthLevels, cfg.StalenessBudget, cfg.HaltStaleness, pub, log)
		vacDet := vacuum.New(vacuum.Params{
			Window: time.Duration(cfg.VacuumWindowMS) * time.Millisecond, MinLiqNotional: cfg.VacuumMinLiq,
			Threshold: cfg.VacuumThreshold, MaxHold: cfg.VacuumMaxHold, DefaultTTL: cfg.DefaultTTL, MaxSlippageBps: cfg.TWAPAbortBps,
		}, log)
		sigGen := signal.New(engine, staticDepth{}, staticPortfolio{nav: decimal.NewFromFloat(backtestNAV)}, neverInFlight{}, signal.Params{
			ZOpen: cfg.ZOpen, ZClose: cfg.ZClose, CoreAllocationPct: cfg.CoreAllocationPct,
			DeltaBlockBps: cfg.DeltaBlockBps, MinNAVFloor: cfg.MinNAVFloor, DefaultTTL: cfg.DefaultTTL, MaxSlippageBps: cfg.TWAPAbortBps,
		}, log)

		opens, closes, vacuums := 0, 0, 0
		for i, row := range rows {
			spot, perp := row.snapshots(pair, uint64(i))
			sample, err := engine.Ingest(pair, spot, perp, backtestNotional, row.at)
			if err != nil {
				continue
			}
			if in, ok := vacDet.OnBasisUpdate(pair, sample.Basis, decimal.NewFromFloat(backtestNotional), row.at); ok {
				vacuums++
				log.Info().Time("at", row.at).Str("kind", string(in.Kind)).Msg("would-be vacuum intent")
			}
			if in, ok := sigGen.Evaluate([]model.Pair{pair}, row.at, func(model.Pair) decimal.Decimal {
				return decimal.NewFromFloat(backtestNotional)
			}); ok {
				switch in.Kind {
				case model.OpenHedge:
					opens++
				case model.CloseHedge:
					closes++
				}
				log.Info().Time("at", row.at).Str("kind", string(in.Kind)).Float64("basis", sample.Basis).Msg("would-be signal intent")
			}
		}

		log.Info().Int("rows", len(rows)).Int("opens", opens).Int("closes", closes).Int("vacuums", vacuums).Msg("backtest complete")
		return nil
	},
}

func init() {
	backtestCmd.Flags().StringVar(&backtestCSV, "csv", "", "path to paired book CSV (time,spot_bid,spot_ask,perp_bid,perp_ask)")
	backtestCmd.Flags().StringVar(&backtestVenue, "venue", "paper", "venue label to stamp on the replayed pair")
	backtestCmd.Flags().StringVar(&backtestSymbol, "symbol", "BTC-USD", "symbol label to stamp on the replayed pair")
	backtestCmd.Flags().Float64Var(&backtestNAV, "nav", 100_000, "static NAV the Signal Generator sizes against")
	backtestCmd.Flags().Float64Var(&backtestNotional, "notional", 5_000, "target notional per Intent")
}
