package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a hive project",
	Long: `Initialize a directory for use with hive.

Creates the .hive directory with an example capability seed file and a
.hive.yaml configuration template. The directory argument is optional and
defaults to the current directory.

Examples:
  hive init              # Initialize current directory
  hive init ./myproject  # Initialize specific directory
  hive init --force      # Overwrite existing files`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

const seedTemplate = `# Capability seed: workers and the capabilities they advertise.
# Re-saving this file while 'hive run --watch' is active updates the catalog
# live; registration is an idempotent upsert.
workers:
  - agent_id: reader
    style: analytical
    capabilities:
      - name: balance_check
        description: Read account balances
        security_level: low
        estimated_latency_ms: 800
        success_rate: 0.95
        cost: 1
  - agent_id: mover
    style: strategic
    capabilities:
      - name: token_transfer
        description: Move tokens between accounts
        security_level: high
        estimated_latency_ms: 2500
        success_rate: 0.9
        cost: 3
        dependencies: [balance_check]
  - agent_id: auditor
    style: validation
    capabilities:
      - name: result_validation
        description: Validate transfer results
        security_level: medium
        estimated_latency_ms: 1200
        success_rate: 0.85
        cost: 2
        dependencies: [balance_check]
`

const configTemplate = `# Project-level hive configuration. Values here override the user config
# (~/.config/hive/config.yaml); HIVE_* environment variables override both.
scheduler:
  max_concurrent: 5
  tick_interval: 500ms
  max_retries: 3
  watchdog_factor: 2.0
latency:
  high: 5s
  medium: 15s
  low: 30s
ledger:
  archive_grace: 60s
  history_limit: 256
archive:
  enabled: false
`

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}

	hiveDir := filepath.Join(absPath, ".hive")
	if err := os.MkdirAll(hiveDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", hiveDir, err)
	}
	printStatus("✓", "Created .hive directory", color.FgGreen)

	files := []struct {
		path    string
		content string
		label   string
	}{
		{filepath.Join(hiveDir, "capabilities.yaml"), seedTemplate, "capability seed (.hive/capabilities.yaml)"},
		{filepath.Join(absPath, ".hive.yaml"), configTemplate, "config template (.hive.yaml)"},
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil && !initForce {
			printStatus("⚠", f.label+" already exists, skipping (use --force)", color.FgYellow)
			continue
		}
		if err := os.WriteFile(f.path, []byte(f.content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
		printStatus("✓", "Created "+f.label, color.FgGreen)
	}

	fmt.Printf("\n%s Hive initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  hive run                  # Run the demo workload")
	fmt.Println("  hive run \"your task\" -c balance_check")
	return nil
}

// printStatus prints a colored status symbol followed by a message.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	c.Printf("%s ", symbol)
	fmt.Println(message)
}
