package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/overture/internal/executor"
)

// NewGraphCommand creates the graph command
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [task]",
		Short: "Print a task's resolved dependency graph",
		Long: `Graph resolves the named task's dependency graph and prints it in
execution order, one task per line with its direct prerequisites.

Examples:
  overture graph build
  overture graph -f ci-tasks.yaml deploy`,
		Args: cobra.MaximumNArgs(1),
		RunE: graphCommand,
	}

	cmd.Flags().StringP("file", "f", "", "Tasks file to load (default from config, then tasks.yaml)")

	return cmd
}

func graphCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fileFlag, _ := cmd.Flags().GetString("file")

	ws, err := loadWorkspace(cfg, fileFlag)
	if err != nil {
		return err
	}
	root, err := rootTaskName(args, ws)
	if err != nil {
		return err
	}

	plan, err := executor.Resolve(ws.registry, root)
	if err != nil {
		return configError(err)
	}

	fmt.Fprint(cmd.OutOrStdout(), executor.DescribePlan(plan))
	return nil
}
