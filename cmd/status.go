package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yarlson/refbatch/internal/state"
	"github.com/yarlson/refbatch/internal/task"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the prompt queue and completion state",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := loadConfig(workDir)
	if err != nil {
		return err
	}

	_, promptsDir, reportDir := resolvePaths(cfg, workDir)

	tasks, err := task.Discover(promptsDir, cfg.Prompts.Manifest)
	if err != nil {
		return fmt.Errorf("failed to discover prompts: %w", err)
	}
	if len(tasks) == 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No prompt files found in %s\n", promptsDir)
		return nil
	}

	completed, err := state.LoadCompleted(reportDir)
	if err != nil {
		return fmt.Errorf("failed to load completed ledger: %w", err)
	}

	done := 0
	for _, t := range tasks {
		mark := "pending"
		if completed[t.BaseName] {
			mark = "done"
			done++
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%3d  [%-7s]  %s\n", t.Index, mark, t.BaseName)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%d/%d prompts completed\n", done, len(tasks))
	return nil
}
