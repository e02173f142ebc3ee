package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/kartikbazzad/dlsc"
	"github.com/kartikbazzad/dlsc/internal/task"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Interactively inspect a coordinator's task table",
	Long: `inspect opens a REPL over a fresh coordinator instance bound to
the configured coordination store, for poking at in-flight state without
submitting a new batch. Orphan discovery is skipped, so the table starts
empty and only reflects whatever this instance's own event handler and
timeout monitor subsequently observe from the store.

Commands:
  tasks            list every task currently in the table
  dead <worker>    report a dead worker so this instance's timeout monitor
                   force-resubmits anything it owns on its next tick
  quit / exit      leave the REPL`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd.Context())
	},
}

func runInspect(ctx context.Context) error {
	cfg, backend, err := loadConfigAndStore()
	if err != nil {
		return err
	}
	defer backend.Close()

	coord := dlsc.New(backend, cfg)
	if err := coord.Start(ctx, true); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer coord.Stop()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Printf("dlscd inspect: coordinator %s, store=%s. Type 'help' for commands.\n", coord.SelfID(), cfg.StoreBackend)

	for {
		input, err := line.Prompt("dlscd> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		switch fields[0] {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Println("commands: tasks, dead <worker>, quit, exit")
		case "tasks":
			printTasks(coord)
		case "dead":
			if len(fields) < 2 {
				fmt.Println("usage: dead <worker-name>")
				continue
			}
			coord.HandleDeadWorker(fields[1])
			fmt.Printf("reported %s dead\n", fields[1])
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func printTasks(coord *dlsc.Coordinator) {
	count := 0
	coord.Table().Each(func(key string, t *task.Task) {
		count++
		snap := t.Snapshot()
		fmt.Printf("%-40s status=%-10s worker=%-12s incarnation=%-3d unforced_resubmits=%d\n",
			snap.Key, snap.Status, snap.CurWorker, snap.Incarnation, snap.UnforcedResubmits)
	})
	if count == 0 {
		fmt.Println("(no tasks)")
	}
}
