package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/overture/internal/history"
)

// NewHistoryCommand creates the history command group
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past runs",
		Long: `History reads the run database written by overture run.

Examples:
  overture history list
  overture history list --limit 5
  overture history show 7f3c2a10-...
  overture history prune --keep-days 30 --max-runs 100`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func openHistoryStore(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return nil, configError(fmt.Errorf("failed to open history database: %w", err))
	}
	return store, nil
}

func newHistoryListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			task, _ := cmd.Flags().GetString("task")
			runs, err := store.ListRuns(cmd.Context(), task, limit)
			if err != nil {
				return configError(err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}

			for _, run := range runs {
				status := "ok"
				if !run.Success {
					status = "FAILED"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %-7s %2d task(s)  %s\n",
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.RootTask, status, run.TaskCount, run.RunID)
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 = all)")
	cmd.Flags().String("task", "", "Only list runs of this root task")
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run's per-task results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			sum, tasks, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return configError(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s\n", sum.RunID)
			fmt.Fprintf(out, "root task: %s\n", sum.RootTask)
			fmt.Fprintf(out, "started:   %s\n", sum.StartedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "duration:  %s\n", sum.EndedAt.Sub(sum.StartedAt).Round(time.Millisecond))
			fmt.Fprintf(out, "success:   %v\n\n", sum.Success)

			for _, row := range tasks {
				fmt.Fprintf(out, "  %-20s %s", row.TaskName, row.State)
				if row.Outcome != "" {
					fmt.Fprintf(out, " (%s, exit %d)", row.Outcome, row.ExitCode)
				}
				fmt.Fprintln(out)
				for _, d := range row.Diagnostics {
					fmt.Fprintf(out, "    %s:%d:%d: %s: %s\n", d.File, d.Line, d.Column, d.Severity, d.Message)
				}
			}
			return nil
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			keepDays, _ := cmd.Flags().GetInt("keep-days")
			maxRuns, _ := cmd.Flags().GetInt("max-runs")

			removed, err := store.Prune(cmd.Context(), keepDays, maxRuns)
			if err != nil {
				return configError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d run(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().Int("keep-days", 90, "Delete runs older than this many days (0 = no age limit)")
	cmd.Flags().Int("max-runs", 0, "Keep at most this many runs (0 = no count limit)")
	return cmd
}
