package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/bus"
	"github.com/ShayCichocki/hive/internal/catalog"
	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/ledger"
	"github.com/ShayCichocki/hive/internal/orchestrator"
	"github.com/ShayCichocki/hive/internal/planner"
	"github.com/ShayCichocki/hive/internal/worker"
	"github.com/ShayCichocki/hive/pkg/models"
)

var (
	runSeedPath    string
	runWatch       bool
	runOwner       string
	runPriority    string
	runCategory    string
	runCaps        []string
	runSignOff     bool
	runAutoApprove bool
	runWait        time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [description]",
	Short: "Run tasks against simulated workers",
	Long: `Run the orchestration core with simulated workers.

Workers and their capabilities come from a YAML seed file (see 'hive init'
for an example). With a description argument, one task is submitted; without
arguments a small demo workload is generated from the seeded capabilities.

Examples:
  hive run                                   # Demo workload
  hive run "check the balance" -c balance_check
  hive run "audit the transfer" --capability balance_check --capability token_transfer
  hive run "move funds" -c token_transfer --sign-off --approve`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runSeedPath, "seed", ".hive/capabilities.yaml", "Capability seed file")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Hot-reload the seed file on change")
	runCmd.Flags().StringVar(&runOwner, "owner", "cli", "Task owner")
	runCmd.Flags().StringVarP(&runPriority, "priority", "p", "", "Task priority (high, medium, low)")
	runCmd.Flags().StringVarP(&runCategory, "category", "c", "", "Task category; names the capability when none are listed")
	runCmd.Flags().StringArrayVar(&runCaps, "capability", nil, "Required capability (repeatable)")
	runCmd.Flags().BoolVar(&runSignOff, "sign-off", false, "Require external approval before completion")
	runCmd.Flags().BoolVar(&runAutoApprove, "approve", false, "Auto-approve tasks awaiting sign-off")
	runCmd.Flags().DurationVar(&runWait, "wait", 30*time.Second, "How long to wait for tasks to settle")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	b := bus.New()
	cat := catalog.New()

	ledCfg := ledger.Config{
		ArchiveGrace: cfg.Ledger.ArchiveGrace,
		HistoryLimit: cfg.Ledger.HistoryLimit,
	}
	if cfg.Archive.Enabled {
		store, err := ledger.OpenHistory(cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("open history archive: %w", err)
		}
		defer store.Close()
		ledCfg.Archiver = store
	}
	led := ledger.New(ledCfg)
	defer led.Close()

	seed, err := catalog.LoadSeed(runSeedPath)
	if err != nil {
		return err
	}
	for _, entry := range seed.Entries() {
		if err := cat.Register(entry); err != nil {
			return err
		}
	}
	for _, sw := range seed.Workers {
		detach := worker.Attach(b, worker.NewSim(sw.AgentID, sw.Style, nil))
		defer detach()
	}
	fmt.Printf("Seeded %d capability entries from %s (%d workers)\n\n",
		cat.Len(), runSeedPath, len(seed.Workers))

	if runWatch {
		watcher, err := catalog.WatchSeed(cat, runSeedPath)
		if err != nil {
			return fmt.Errorf("watch seed: %w", err)
		}
		defer watcher.Close()
	}

	orc := orchestrator.New(cfg, b, led, cat, planner.New(cat))
	defer orc.Close()
	b.Subscribe(bus.TopicLifecycle, printEvent)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go orc.Run(ctx)

	var ids []string
	if len(args) > 0 {
		id, err := orc.Submit(orchestrator.SubmitRequest{
			Owner:           runOwner,
			Description:     strings.Join(args, " "),
			Category:        runCategory,
			Priority:        models.Priority(runPriority),
			Capabilities:    runCaps,
			RequiresSignOff: runSignOff,
		})
		if err != nil {
			return err
		}
		ids = append(ids, id)
	} else {
		ids, err = submitDemo(orc, cat.Names())
		if err != nil {
			return err
		}
	}

	if err := waitForTasks(ctx, orc, led, ids); err != nil {
		return err
	}
	printSummary(led, ids)
	return nil
}

// submitDemo generates a small workload from the seeded capabilities: one
// simple high-priority task plus, when enough capabilities exist, one
// multi-step sequential task.
func submitDemo(orc *orchestrator.Orchestrator, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("catalog is empty; seed capabilities first")
	}

	var ids []string
	id, err := orc.Submit(orchestrator.SubmitRequest{
		Owner:       runOwner,
		Description: "demo: " + names[0],
		Category:    names[0],
		Priority:    models.PriorityHigh,
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	if len(names) >= 2 {
		caps := names
		if len(caps) > 3 {
			caps = caps[:3]
		}
		id, err := orc.Submit(orchestrator.SubmitRequest{
			Owner:        runOwner,
			Description:  "demo: " + strings.Join(caps, ", then "),
			Capabilities: caps,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// waitForTasks blocks until every submitted task settles: terminal, or
// awaiting sign-off without auto-approval.
func waitForTasks(ctx context.Context, orc *orchestrator.Orchestrator, led *ledger.Ledger, ids []string) error {
	deadline := time.Now().Add(runWait)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		settled := true
		for _, id := range ids {
			task, ok := led.Get(id)
			if !ok {
				// Already archived out of the live map.
				continue
			}
			if task.State.Terminal() {
				continue
			}
			if task.State == models.TaskStateAwaitingSign {
				if runAutoApprove {
					if err := orc.Approve(id); err != nil {
						return err
					}
					settled = false
				}
				continue
			}
			settled = false
		}
		if settled {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for tasks to settle", runWait)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// printEvent renders one lifecycle event.
func printEvent(m models.Message) {
	switch p := m.Payload.(type) {
	case models.TaskRegisteredPayload:
		color.New(color.FgCyan).Printf("▸ %s registered", p.Task.ID)
		fmt.Printf("  %q [%s]\n", p.Task.Description, p.Task.Priority)
	case models.TaskStateChangedPayload:
		fmt.Printf("  %s: %s -> %s\n", p.TaskID, p.OldState, p.NewState)
	case models.TaskCompletePayload:
		fmt.Printf("%s %s completed\n", color.GreenString("✓"), p.TaskID)
	case models.TaskFailedPayload:
		fmt.Printf("%s %s failed: %s\n", color.RedString("✗"), p.TaskID, p.Reason)
	}
}

// printSummary reports per-task outcomes and the ledger's global metrics.
func printSummary(led *ledger.Ledger, ids []string) {
	fmt.Println()
	for _, id := range ids {
		status, err := led.GetStatus(id)
		if err != nil {
			continue
		}
		t := status.Task
		line := fmt.Sprintf("%s  %-12s retries=%d", t.ID, t.State, t.RetryCount)
		switch t.State {
		case models.TaskStateCompleted:
			fmt.Println(color.GreenString(line))
		case models.TaskStateFailed:
			fmt.Printf("%s  %s\n", color.RedString(line), t.Error)
		default:
			fmt.Println(color.YellowString(line))
		}
	}

	m := led.GetMetrics("")
	fmt.Printf("\nTotal: %d  Completed: %d  Failed: %d  Success rate: %.0f%%\n",
		m.Total, m.Completed, m.Failed, m.SuccessRate*100)
	if m.AvgCompletion > 0 {
		fmt.Printf("Average completion time: %s\n", m.AvgCompletion.Round(time.Millisecond))
	}
}
