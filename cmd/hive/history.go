package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/ledger"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived task history",
	Long: `List recently archived task records from the SQLite history database.

The archive must be enabled in the configuration (archive.enabled: true) for
records to accumulate.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum records to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := os.Stat(cfg.Archive.Path); os.IsNotExist(err) {
		fmt.Println("No task history yet. Enable the archive and run some tasks first.")
		return nil
	}

	store, err := ledger.OpenHistory(cfg.Archive.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No task history yet.")
		return nil
	}

	fmt.Printf("%-10s %-12s %-12s %-8s %s\n", "ID", "OWNER", "STATE", "RETRIES", "ARCHIVED")
	for _, r := range records {
		state := string(r.State)
		switch r.State {
		case "completed":
			state = color.GreenString(state)
		case "failed":
			state = color.RedString(state)
		}
		fmt.Printf("%-10s %-12s %-12s %-8d %s\n",
			r.ID, r.Owner, state, r.RetryCount, r.ArchivedAt.Format("2006-01-02 15:04:05"))
		if r.Error != "" {
			fmt.Printf("  %s\n", r.Error)
		}
	}
	return nil
}
