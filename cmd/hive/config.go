package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the effective configuration after merging defaults, the user
config (~/.config/hive/config.yaml), the project config (.hive.yaml), and
HIVE_* environment variables.`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("scheduler:")
	fmt.Printf("  max_concurrent:  %d\n", cfg.Scheduler.MaxConcurrent)
	fmt.Printf("  tick_interval:   %s\n", cfg.Scheduler.TickInterval)
	fmt.Printf("  max_retries:     %d\n", cfg.Scheduler.MaxRetries)
	fmt.Printf("  watchdog_factor: %.1f\n", cfg.Scheduler.WatchdogFactor)
	fmt.Println("latency:")
	fmt.Printf("  high:   %s\n", cfg.Latency.High)
	fmt.Printf("  medium: %s\n", cfg.Latency.Medium)
	fmt.Printf("  low:    %s\n", cfg.Latency.Low)
	fmt.Println("ledger:")
	fmt.Printf("  archive_grace: %s\n", cfg.Ledger.ArchiveGrace)
	fmt.Printf("  history_limit: %d\n", cfg.Ledger.HistoryLimit)
	fmt.Println("archive:")
	fmt.Printf("  enabled: %v\n", cfg.Archive.Enabled)
	fmt.Printf("  path:    %s\n", cfg.Archive.Path)
	return nil
}
