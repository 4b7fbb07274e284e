package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/overture/internal/config"
	"github.com/harrison/overture/internal/matcher"
	"github.com/harrison/overture/internal/parser"
	"github.com/harrison/overture/internal/registry"
)

// workspace bundles everything loaded from disk before a command does its
// work: configuration, the parsed tasks file, the validated registry, and
// the compiled matcher set.
type workspace struct {
	cfg      *config.Config
	taskFile *parser.TaskFile
	registry *registry.Registry
	matchers *matcher.Set
}

// loadConfig loads configuration honoring the persistent --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, configError(fmt.Errorf("failed to load config from %s: %w", configPath, err))
		}
		return cfg, nil
	}
	cfg, err := config.LoadConfigFromDir(".")
	if err != nil {
		return nil, configError(fmt.Errorf("failed to load config: %w", err))
	}
	return cfg, nil
}

// loadWorkspace parses the tasks file and builds the registry and matcher
// set. Every failure here is a configuration error.
func loadWorkspace(cfg *config.Config, tasksFile string) (*workspace, error) {
	if tasksFile == "" {
		tasksFile = cfg.TasksFile
	}

	tf, err := parser.ParseFile(tasksFile)
	if err != nil {
		return nil, configError(err)
	}

	reg, err := registry.Load(tf.Tasks)
	if err != nil {
		return nil, configError(err)
	}

	set, err := matcher.NewSet(tf.Patterns)
	if err != nil {
		return nil, configError(err)
	}
	if err := reg.ValidateMatchers(set.Known); err != nil {
		return nil, configError(err)
	}

	return &workspace{
		cfg:      cfg,
		taskFile: tf,
		registry: reg,
		matchers: set,
	}, nil
}

// rootTaskName picks the task to run: the positional argument when given,
// otherwise the first task declared in the file.
func rootTaskName(args []string, ws *workspace) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if len(ws.taskFile.Tasks) == 0 {
		return "", configError(fmt.Errorf("no tasks declared in %s", ws.taskFile.FilePath))
	}
	return ws.taskFile.Tasks[0].Name, nil
}
