package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/harrison/overture/internal/models"
)

// CommandRunner launches task commands as child processes with the task's
// environment overrides layered onto the inherited environment. Output is
// captured incrementally and mirrored to the provided sink so panels can
// stream it live.
type CommandRunner struct {
	// BaseEnv is the environment inherited by every task before overrides.
	// Defaults to os.Environ when nil.
	BaseEnv []string

	// Dir is the working directory for task commands. Empty means the
	// current directory.
	Dir string
}

// lockedWriter serializes writes from the stdout and stderr pipes into a
// shared sink.
type lockedWriter struct {
	mu   sync.Mutex
	sink io.Writer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sink.Write(p)
}

// Run executes the task's command and returns its run record. A nonzero
// exit code is a normal terminal state, not an error: the record's Outcome
// distinguishes success, failure, and killed-by-cancellation. Only
// infrastructure problems such as command-not-found or permission denied produce
// OutcomeError, with the underlying error preserved in the record.
func (r *CommandRunner) Run(ctx context.Context, task models.Task, sink io.Writer) *models.RunRecord {
	rec := &models.RunRecord{
		TaskName:  task.Name,
		StartedAt: time.Now().UTC(),
	}

	base := r.BaseEnv
	if base == nil {
		base = os.Environ()
	}

	cmd := exec.CommandContext(ctx, task.Command, task.Args...)
	cmd.Env = task.MergedEnv(base)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	if sink == nil {
		sink = io.Discard
	}
	shared := &lockedWriter{sink: sink}
	cmd.Stdout = io.MultiWriter(&stdout, shared)
	cmd.Stderr = io.MultiWriter(&stderr, shared)

	err := cmd.Run()
	rec.EndedAt = time.Now().UTC()
	rec.Stdout = stdout.Bytes()
	rec.Stderr = stderr.Bytes()

	switch {
	case err == nil:
		rec.Outcome = models.OutcomeSuccess
		rec.ExitCode = 0
	case isExitError(err):
		var exitErr *exec.ExitError
		errors.As(err, &exitErr)
		rec.ExitCode = exitErr.ExitCode()
		if ctx.Err() != nil {
			// Terminated by the cancellation signal rather than exiting.
			rec.Outcome = models.OutcomeKilled
		} else {
			// Signal death without cancellation (a crash, an external
			// kill) is a task failure like any nonzero exit.
			rec.Outcome = models.OutcomeFailure
		}
	default:
		// The process never started: not found, permission denied, bad dir.
		rec.Outcome = models.OutcomeError
		rec.Err = err
		rec.ExitCode = -1
	}

	return rec
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
