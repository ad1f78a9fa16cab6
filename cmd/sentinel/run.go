package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	runPairsSpec       string
	runInitialSpotUSDT float64
	runInitialMargin   float64
	runLogLevel        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the full task graph (market data, signal, executor, rebalancer, risk, health)",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(runLogLevel)

		dep, err := buildDeployment(runPairsSpec, runInitialSpotUSDT, runInitialMargin, log)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		log.Info().Str("pairs", runPairsSpec).Msg("sentinel starting")
		dep.orch.Run(ctx)
		log.Info().Msg("sentinel stopped")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runPairsSpec, "pairs", "", `comma-separated "venue:symbol:spotID:perpID" (default: one paper BTC-USD pair)`)
	runCmd.Flags().Float64Var(&runInitialSpotUSDT, "spot-usdt", 100_000, "initial spot USDT wallet balance per venue")
	runCmd.Flags().Float64Var(&runInitialMargin, "perp-margin", 100_000, "initial perp margin wallet balance per venue")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "info", "zerolog level: debug, info, warn, error")
}
