package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harrison/overture/internal/config"
	"github.com/harrison/overture/internal/executor"
	"github.com/harrison/overture/internal/filelock"
	"github.com/harrison/overture/internal/history"
	"github.com/harrison/overture/internal/logger"
	"github.com/harrison/overture/internal/models"
	"github.com/harrison/overture/internal/panel"
	"github.com/harrison/overture/internal/watch"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run a task and its dependency graph",
		Long: `Run the named task after running everything it depends on, with
independent dependencies executing concurrently.

Without a task argument the first task declared in the tasks file runs.
Configuration is loaded from .overture/config.yaml if present; CLI flags
override configuration file settings.

Examples:
  # Run the build task from the default tasks file
  overture run build

  # Use a specific tasks file and limit concurrency
  overture run test -f ci-tasks.yaml --max-concurrency 2

  # Keep running dependents even when a dependency fails
  overture run check --continue-on-error

  # Rerun the task whenever the tasks file changes
  overture run build --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().StringP("file", "f", "", "Tasks file to load (default from config, then tasks.yaml)")
	cmd.Flags().Int("max-concurrency", 0, "Maximum number of concurrent tasks (0 = use config)")
	cmd.Flags().Bool("continue-on-error", false, "Run dependents even when a dependency fails")
	cmd.Flags().Bool("watch", false, "Rerun when the tasks file changes")
	cmd.Flags().String("log-level", "", "Logging verbosity: trace, debug, info, warn, error")

	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var tasksFile *string
	var maxConcurrency *int
	var continueOnError *bool
	var logLevel *string
	if cmd.Flags().Changed("file") {
		v, _ := cmd.Flags().GetString("file")
		tasksFile = &v
	}
	if cmd.Flags().Changed("max-concurrency") {
		v, _ := cmd.Flags().GetInt("max-concurrency")
		maxConcurrency = &v
	}
	if cmd.Flags().Changed("continue-on-error") {
		v, _ := cmd.Flags().GetBool("continue-on-error")
		continueOnError = &v
	}
	if cmd.Flags().Changed("log-level") {
		v, _ := cmd.Flags().GetString("log-level")
		logLevel = &v
	}
	cfg.MergeWithFlags(tasksFile, maxConcurrency, continueOnError, logLevel)
	watchMode, _ := cmd.Flags().GetBool("watch")

	ws, err := loadWorkspace(cfg, "")
	if err != nil {
		return err
	}
	root, err := rootTaskName(args, ws)
	if err != nil {
		return err
	}

	// One run per tasks file at a time.
	lock := filelock.RunLock(ws.taskFile.FilePath)
	acquired, err := lock.TryLock()
	if err != nil {
		return configError(err)
	}
	if !acquired {
		return configError(fmt.Errorf("another run is in progress for %s", ws.taskFile.FilePath))
	}
	defer lock.Unlock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.NewConsoleLogger(os.Stderr, cfg.LogLevel)
	panels := panel.NewCoordinator(os.Stdout)
	run := &runSession{
		cfg:    cfg,
		log:    log,
		panels: panels,
		runner: &executor.CommandRunner{},
	}

	if !watchMode {
		return run.executeOnce(ctx, ws, root)
	}
	return run.watchLoop(ctx, ws, root)
}

// runSession holds the pieces shared between runs (a single run, or every
// iteration of watch mode).
type runSession struct {
	cfg    *config.Config
	log    *logger.ConsoleLogger
	panels *panel.Coordinator
	runner *executor.CommandRunner
}

// executeOnce resolves and executes one run of the root task, then writes
// the summary, history, and last-run snapshot.
func (r *runSession) executeOnce(ctx context.Context, ws *workspace, root string) error {
	plan, err := executor.Resolve(ws.registry, root)
	if err != nil {
		return configError(err)
	}

	sched := executor.NewScheduler(plan, r.runner, executor.Options{
		MaxConcurrency:  r.cfg.MaxConcurrency,
		ContinueOnError: r.cfg.ContinueOnError,
		Panels:          r.panels,
		Matchers:        ws.matchers,
		Logger:          r.log,
	})

	report, err := sched.Execute(ctx)
	if err != nil {
		return configError(fmt.Errorf("execution failed: %w", err))
	}

	r.log.LogSummary(report)
	r.persist(ctx, ws, report)

	if !report.Success() {
		counts := report.Counts()
		failed := counts[models.StateFailed] + counts[models.StateCancelled]
		return taskFailure(fmt.Errorf("run %s: %d task(s) did not succeed", report.RunID, failed))
	}
	return nil
}

// persist records the report in the history database and the last-run
// snapshot. Neither failure aborts the run; they are logged and the run's
// own outcome stands.
func (r *runSession) persist(ctx context.Context, ws *workspace, report *models.RunReport) {
	if r.cfg.History.Enabled {
		store, err := history.NewStore(r.cfg.History.DBPath)
		if err != nil {
			r.log.LogWarn(fmt.Sprintf("history unavailable: %v", err))
		} else {
			defer store.Close()
			if err := store.SaveReport(ctx, report); err != nil {
				r.log.LogWarn(fmt.Sprintf("failed to record run history: %v", err))
			}
			if _, err := store.Prune(ctx, r.cfg.History.KeepRunsDays, r.cfg.History.MaxRuns); err != nil {
				r.log.LogWarn(fmt.Sprintf("failed to prune run history: %v", err))
			}
		}
	}

	if err := writeLastRun(ws.taskFile.FilePath, report); err != nil {
		r.log.LogWarn(fmt.Sprintf("failed to write last-run snapshot: %v", err))
	}
}

// watchLoop runs once, then reruns on every debounced tasks file change
// until the context is cancelled. Failures inside an iteration are
// reported but do not end the loop; only an unwritable watcher does.
func (r *runSession) watchLoop(ctx context.Context, ws *workspace, root string) error {
	watcher, err := watch.NewWatcher(ws.taskFile.FilePath, r.cfg.WatchDebounce)
	if err != nil {
		return configError(err)
	}
	defer watcher.Close()

	runOnce := func(ws *workspace) {
		if err := r.executeOnce(ctx, ws, root); err != nil {
			r.log.LogError(err.Error())
		}
	}

	runOnce(ws)
	r.log.LogInfo(fmt.Sprintf("watching %s for changes", ws.taskFile.FilePath))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watcher.Errors():
			r.log.LogWarn(fmt.Sprintf("watch error: %v", err))
		case <-watcher.Changes():
			r.log.LogInfo("tasks file changed, rerunning")
			fresh, err := loadWorkspace(r.cfg, ws.taskFile.FilePath)
			if err != nil {
				// Keep watching; the next save may fix the file.
				r.log.LogError(err.Error())
				continue
			}
			r.panels.Reset()
			runOnce(fresh)
		}
	}
}

// lastRunSnapshot is the shape of .overture/last-run.yaml.
type lastRunSnapshot struct {
	RunID     string                      `yaml:"run_id"`
	RootTask  string                      `yaml:"root_task"`
	TasksFile string                      `yaml:"tasks_file"`
	StartedAt time.Time                   `yaml:"started_at"`
	EndedAt   time.Time                   `yaml:"ended_at"`
	Success   bool                        `yaml:"success"`
	States    map[string]models.NodeState `yaml:"states"`
}

func writeLastRun(tasksFile string, report *models.RunReport) error {
	snapshot := lastRunSnapshot{
		RunID:     report.RunID,
		RootTask:  report.RootTask,
		TasksFile: tasksFile,
		StartedAt: report.StartedAt,
		EndedAt:   report.EndedAt,
		Success:   report.Success(),
		States:    report.States,
	}
	data, err := yaml.Marshal(&snapshot)
	if err != nil {
		return err
	}
	// The snapshot lives next to the tasks file, not the working
	// directory, and is locked against concurrent runs of other roots.
	path := filepath.Join(filepath.Dir(tasksFile), ".overture", "last-run.yaml")
	return filelock.LockAndWrite(path, data)
}
