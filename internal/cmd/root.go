// Package cmd wires the overture CLI: command definitions, flag
// handling, and the glue between parsing, resolution, and execution.
package cmd

import (
	"errors"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// Exit codes: task failures and configuration problems are distinct so
// scripts can tell "the build broke" from "the tasks file is wrong".
const (
	ExitTaskFailure = 1
	ExitConfigError = 2
)

// exitError carries the process exit code alongside the underlying error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func taskFailure(err error) error {
	return &exitError{code: ExitTaskFailure, err: err}
}

func configError(err error) error {
	return &exitError{code: ExitConfigError, err: err}
}

// ExitCode maps an error returned by Execute to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitConfigError
}

// NewRootCommand creates and returns the root cobra command for overture
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overture",
		Short: "Declarative task graph runner",
		Long: `Overture executes named tasks and their dependency graphs as declared
in a tasks file (YAML, or YAML blocks in Markdown).

It resolves the dependency graph of the requested task, runs independent
tasks concurrently, streams their output through coordinated panels, and
extracts compiler-style diagnostics from task output.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				color.NoColor = true
			}
		},
	}

	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("config", "", "Path to config file (default: .overture/config.yaml)")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewGraphCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
