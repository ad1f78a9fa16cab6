package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var (
	flattenPairsSpec string
	flattenLogLevel  string
)

var flattenCmd = &cobra.Command{
	Use:   "flatten",
	Short: "Force an immediate emergency_flatten against freshly-wired state",
	Long: `flatten builds the same component graph as "run" and immediately runs
emergency_flatten on it, bypassing the drawdown trigger. The graph starts
from fresh in-process state: it does not connect to a running process and
loads no positions from POSTGRES_DSN, so it closes only positions held by
this new graph.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(flattenLogLevel)

		dep, err := buildDeployment(flattenPairsSpec, 0, 0, log)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Warn().Msg("forcing emergency_flatten")
		dep.orch.Flatten(ctx)
		log.Info().Msg("flatten complete")
		return nil
	},
}

func init() {
	flattenCmd.Flags().StringVar(&flattenPairsSpec, "pairs", "", `comma-separated "venue:symbol:spotID:perpID", must match the running deployment`)
	flattenCmd.Flags().StringVar(&flattenLogLevel, "log-level", "info", "zerolog level: debug, info, warn, error")
}
