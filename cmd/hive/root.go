package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "Multi-agent task orchestration core",
	Long: `Hive coordinates a pool of workers over an in-process message bus.

Tasks are classified, queued by priority, and dispatched to the best-ranked
worker for each required capability. Multi-capability work gets a
collaboration plan with explicit step dependencies; every task moves through
an auditable state machine with bounded retries.

Core capabilities:
- Capability catalog with live success-rate and load tracking
- Strict-priority scheduling with a concurrency cap
- Collaboration planning with fallback and validator roles
- Structured reasoning chains with quality scoring
- Task ledger with metrics, history, and optional SQLite archive`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
