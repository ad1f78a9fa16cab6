// Command sentinel is the Sentinel core's entrypoint.
//
// Boot sequence (grounded on the teacher's main.go):
//
//	config.Load()           – hydrate .env, build a typed Config
//	cfg.Validate()           – fail fast on bad values (§7)
//	wire adapters/components – build the full §4 component graph
//	orchestrator.Run(ctx)    – blocks until SIGINT/SIGTERM
//
// Subcommands:
//
//	sentinel run        start the full task graph (§5)
//	sentinel backtest    replay a paired-book CSV through stats+signal, no orders
//	sentinel flatten     force emergency_flatten on a freshly wired component graph
package main

import (
	"fmt"
	"os"

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
	Use:   "sentinel",
	Short: "Market-neutral basis trading core",
}

// newLogger builds the process-wide zerolog.Logger, console-formatted
// for a terminal the way the retrieved pack's cobra-based tools do
// (teacher used bare log.Printf; upgraded per the ambient-stack
// decision in DESIGN.md).
func newLogger(levelStr string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(flattenCmd)
}
