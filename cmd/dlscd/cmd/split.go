package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/dlsc"
)

var skipOrphans bool

var splitCmd = &cobra.Command{
	Use:   "split [directories...]",
	Short: "Recover the write-ahead logs under the given directories",
	Long: `split installs one task per log file found under the given
directories, blocks until every task reaches a terminal state, and
best-effort removes each source directory once its files are split.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSplit(cmd.Context(), args)
	},
}

func init() {
	splitCmd.Flags().BoolVar(&skipOrphans, "skip-orphan-discovery", false,
		"skip adopting pre-existing tasks from the coordination store (master-recovery mode)")
}

func runSplit(ctx context.Context, dirs []string) error {
	cfg, backend, err := loadConfigAndStore()
	if err != nil {
		return err
	}
	defer backend.Close()

	coord := dlsc.New(backend, cfg)
	if err := coord.Start(ctx, skipOrphans); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer coord.Stop()

	total, err := coord.SplitBatch(ctx, dirs)
	if err != nil {
		return fmt.Errorf("split: %w", err)
	}

	fmt.Printf("dlscd: split %d bytes across %d directories\n", total, len(dirs))
	return nil
}
