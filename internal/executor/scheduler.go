package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/overture/internal/matcher"
	"github.com/harrison/overture/internal/models"
	"github.com/harrison/overture/internal/panel"
)

const (
	// DefaultMaxConcurrency bounds how many task processes run at once
	// when no explicit limit is configured.
	DefaultMaxConcurrency = 10
)

// TaskRunner executes a single task invocation. CommandRunner is the
// production implementation; tests substitute fakes.
type TaskRunner interface {
	Run(ctx context.Context, task models.Task, sink io.Writer) *models.RunRecord
}

// Logger receives scheduler progress events. Nil disables logging.
type Logger interface {
	TaskStarted(task models.Task)
	TaskFinished(rec *models.RunRecord, state models.NodeState)
	TaskSkipped(name, reason string)
}

// Options configures a Scheduler.
type Options struct {
	// MaxConcurrency bounds concurrently running task nodes. Values <= 0
	// fall back to DefaultMaxConcurrency.
	MaxConcurrency int

	// ContinueOnError runs dependents even when a dependency failed,
	// instead of the default fail-fast skip propagation.
	ContinueOnError bool

	// Panels streams live task output. Nil discards output (it is still
	// captured in run records).
	Panels *panel.Coordinator

	// Matchers extracts diagnostics from captured output per the tasks'
	// problem-matcher lists. Nil disables extraction.
	Matchers *matcher.Set

	Logger Logger
}

// Scheduler walks a resolved execution plan, dispatching ready nodes to a
// bounded set of workers and propagating terminal states through the
// graph.
type Scheduler struct {
	plan   *ExecutionPlan
	runner TaskRunner
	opts   Options
}

// NewScheduler creates a scheduler for the plan.
func NewScheduler(plan *ExecutionPlan, runner TaskRunner, opts Options) *Scheduler {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Scheduler{plan: plan, runner: runner, opts: opts}
}

type completion struct {
	node int
	rec  *models.RunRecord
}

// Execute runs the plan to completion and returns the aggregated report.
// Node failures and infrastructure errors are contained per node and
// recorded in the report; the returned error is reserved for scheduler
// invariant violations.
//
// Cancelling ctx signals termination to in-flight processes, marks their
// nodes cancelled, and skips every node that has not started. Nodes that
// already succeeded are untouched.
func (s *Scheduler) Execute(ctx context.Context) (*models.RunReport, error) {
	n := s.plan.Len()
	report := &models.RunReport{
		RunID:     uuid.New().String(),
		RootTask:  s.plan.Nodes[s.plan.Root].Task.Name,
		StartedAt: time.Now().UTC(),
		States:    make(map[string]models.NodeState, n),
		Records:   make(map[string]*models.RunRecord, n),
	}

	states := make([]models.NodeState, n)
	unmet := make([]int, n)
	for i := range s.plan.Nodes {
		states[i] = models.StatePending
		unmet[i] = len(s.plan.Nodes[i].Prereqs)
	}

	results := make(chan completion, s.opts.MaxConcurrency)
	inFlight := 0
	terminal := 0
	cancelled := false

	transition := func(i int, to models.NodeState) error {
		if err := models.ValidateNodeTransition(states[i], to); err != nil {
			return fmt.Errorf("task %s: %w", s.plan.Nodes[i].Task.Name, err)
		}
		states[i] = to
		return nil
	}

	// settle marks node i terminal and releases its dependents.
	settle := func(i int) {
		terminal++
		for _, dep := range s.plan.Dependents(i) {
			unmet[dep]--
		}
	}

	for terminal < n {
		if ctx.Err() != nil && !cancelled {
			cancelled = true
			// Not-yet-started nodes are skipped; in-flight ones finish as
			// cancelled when their kill signal lands.
			for i := range states {
				if states[i] == models.StatePending {
					if err := transition(i, models.StateSkipped); err != nil {
						return nil, err
					}
					settle(i)
					s.logSkip(s.plan.Nodes[i].Task.Name, "run cancelled")
				}
			}
		}

		// Dispatch phase: walk the topological order and start or skip
		// every node whose prerequisites are all terminal.
		progressed := false
		if !cancelled {
			for _, i := range s.plan.order {
				if states[i] != models.StatePending || unmet[i] > 0 {
					continue
				}
				ok, reason := s.prereqsSatisfied(i, states)
				if !ok {
					if err := transition(i, models.StateSkipped); err != nil {
						return nil, err
					}
					settle(i)
					s.logSkip(s.plan.Nodes[i].Task.Name, reason)
					progressed = true
					continue
				}
				if inFlight >= s.opts.MaxConcurrency {
					break
				}
				if err := transition(i, models.StateReady); err != nil {
					return nil, err
				}
				if err := transition(i, models.StateRunning); err != nil {
					return nil, err
				}
				s.dispatch(ctx, i, report, results)
				inFlight++
				progressed = true
			}
		}
		if progressed {
			continue
		}
		if terminal == n {
			break
		}
		if inFlight == 0 {
			if terminal < n && !cancelled {
				return nil, fmt.Errorf("scheduler stalled: %d of %d nodes terminal with none in flight", terminal, n)
			}
			break
		}

		// Wait phase: block until a running task completes. Cancellation
		// is observed on the next loop iteration; CommandContext already
		// signals the child processes.
		done := <-results
		inFlight--
		state, err := s.finalize(done, report)
		if err != nil {
			return nil, err
		}
		if err := transition(done.node, state); err != nil {
			return nil, err
		}
		settle(done.node)
	}

	// Drain any stragglers after cancellation so their records land in
	// the report.
	for inFlight > 0 {
		done := <-results
		inFlight--
		state, err := s.finalize(done, report)
		if err != nil {
			return nil, err
		}
		if err := transition(done.node, state); err != nil {
			return nil, err
		}
		settle(done.node)
	}

	report.EndedAt = time.Now().UTC()
	for i, st := range states {
		report.States[s.plan.Nodes[i].Task.Name] = st
	}
	return report, nil
}

// prereqsSatisfied decides whether node i may run given its prerequisites'
// terminal states. Failures block dependents unless the run continues on
// error; skipped and cancelled prerequisites always block.
func (s *Scheduler) prereqsSatisfied(i int, states []models.NodeState) (bool, string) {
	for _, pre := range s.plan.Nodes[i].Prereqs {
		name := s.plan.Nodes[pre].Task.Name
		if states[pre].Satisfies() {
			continue
		}
		switch states[pre] {
		case models.StateFailed:
			if !s.opts.ContinueOnError {
				return false, fmt.Sprintf("dependency %s failed", name)
			}
		case models.StateSkipped:
			return false, fmt.Sprintf("dependency %s was skipped", name)
		case models.StateCancelled:
			return false, fmt.Sprintf("dependency %s was cancelled", name)
		default:
			// Non-terminal prerequisite with unmet == 0 is a bookkeeping bug.
			return false, fmt.Sprintf("dependency %s in unexpected state", name)
		}
	}
	return true, ""
}

func (s *Scheduler) dispatch(ctx context.Context, i int, report *models.RunReport, results chan<- completion) {
	task := s.plan.Nodes[i].Task
	report.Order = append(report.Order, task.Name)

	var sink io.Writer = io.Discard
	var handle *panel.Handle
	if s.opts.Panels != nil {
		handle = s.opts.Panels.Acquire(task.PanelKey(), task.Name, task.CommandLine(), panel.PolicyFrom(task.Presentation))
		sink = handle
	}
	if s.opts.Logger != nil {
		s.opts.Logger.TaskStarted(task)
	}

	go func() {
		rec := s.runner.Run(ctx, task, sink)
		if handle != nil {
			failed := rec.Outcome == models.OutcomeFailure || rec.Outcome == models.OutcomeError
			handle.Close(failed)
		}
		results <- completion{node: i, rec: rec}
	}()
}

// finalize stores the record, extracts diagnostics, and maps the process
// outcome to the node's terminal state.
func (s *Scheduler) finalize(done completion, report *models.RunReport) (models.NodeState, error) {
	task := s.plan.Nodes[done.node].Task
	rec := done.rec
	report.Records[task.Name] = rec

	if s.opts.Matchers != nil && len(task.ProblemMatchers) > 0 {
		output := string(rec.Stdout) + string(rec.Stderr)
		diags, err := s.opts.Matchers.MatchAll(task.ProblemMatchers, output)
		if err != nil {
			return "", fmt.Errorf("task %s: matching diagnostics: %w", task.Name, err)
		}
		rec.Diagnostics = diags
	}

	var state models.NodeState
	switch rec.Outcome {
	case models.OutcomeSuccess:
		state = models.StateSucceeded
	case models.OutcomeFailure:
		if task.IgnoreFailure {
			// The record keeps the real exit code; only propagation and
			// overall success treat the task as satisfied.
			state = models.StateSucceeded
		} else {
			state = models.StateFailed
		}
	case models.OutcomeKilled:
		state = models.StateCancelled
	case models.OutcomeError:
		state = models.StateFailed
	default:
		return "", fmt.Errorf("task %s: unknown outcome %q", task.Name, rec.Outcome)
	}

	if s.opts.Logger != nil {
		s.opts.Logger.TaskFinished(rec, state)
	}
	return state, nil
}

func (s *Scheduler) logSkip(name, reason string) {
	if s.opts.Logger != nil {
		s.opts.Logger.TaskSkipped(name, reason)
	}
}
