// Command sentinelctl is the operator-facing export/reporting utility
// for the Performance Ledger (§4.8, §6).
//
// Grounded on the teacher's tools/ directory (migrate_state.go,
// backfill_bridge.go: standalone flag-driven utilities reading/writing
// the bot's persisted state), generalized from state-file migration to
// trade_log export and summary reporting against internal/ledger.Store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/chidi150c/sentinel/internal/config"
	"github.com/chidi150c/sentinel/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sentinelctl",
	Short: "Export and report against the Sentinel Performance Ledger",
}

var dsnFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "Postgres DSN (defaults to POSTGRES_DSN env, falls back to an empty in-memory store)")
	rootCmd.AddCommand(exportCmd, reportCmd)
}

func openStore(ctx context.Context) (ledger.Store, func(), error) {
	dsn := dsnFlag
	if dsn == "" {
		dsn = config.Load().PostgresDSN
	}
	if dsn == "" {
		return ledger.NewMemoryStore(), func() {}, nil
	}
	store, err := ledger.OpenPostgresStore(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sentinelctl: connect: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export trade_log as CSV or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		trades, err := store.Trades(ctx)
		if err != nil {
			return fmt.Errorf("sentinelctl: fetch trades: %w", err)
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		switch exportFormat {
		case "json":
			return ledger.ExportJSON(out, trades)
		default:
			return ledger.ExportCSV(out, trades)
		}
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv or json")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file path (defaults to stdout)")
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print summary performance metrics from trade_log (§4.8)",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		ctx := context.Background()
		store, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		trades, err := store.Trades(ctx)
		if err != nil {
			return fmt.Errorf("sentinelctl: fetch trades: %w", err)
		}
		if len(trades) == 0 {
			log.Warn().Msg("no trades recorded")
			return nil
		}

		snap, hasSnap, err := store.LatestSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("sentinelctl: fetch snapshot: %w", err)
		}
		nav := 0.0
		if hasSnap {
			nav, _ = snap.Snapshot.NAV.Float64()
		}

		fmt.Printf("trades:        %d\n", len(trades))
		fmt.Printf("win_rate:      %.2f%%\n", ledger.WinRate(trades)*100)
		fmt.Printf("sharpe:        %.3f\n", ledger.Sharpe(trades))
		fmt.Printf("max_drawdown:  %.2f\n", ledger.MaxDrawdown(trades))
		fmt.Printf("basis_scalp:   %.2f\n", ledger.BasisScalpPnL(trades))
		fmt.Printf("funding_apy:   %.2f%%\n", ledger.FundingAPY(trades)*100)
		if hasSnap {
			fmt.Printf("yield_24h:     %.2f%%\n", ledger.Yield24h(trades, snap.At, nav)*100)
		}
		return nil
	},
}
