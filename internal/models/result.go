package models

import "time"

// Outcome classifies how a task invocation ended.
type Outcome string

const (
	// OutcomeSuccess means the process exited with code 0.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure means the process exited with a nonzero code.
	OutcomeFailure Outcome = "failure"
	// OutcomeKilled means the process was terminated by a cancellation signal.
	OutcomeKilled Outcome = "killed"
	// OutcomeError means the command could not be launched at all
	// (not found, permission denied). Distinct from task failure.
	OutcomeError Outcome = "error"
)

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is a structured problem record extracted from task output.
// Never mutated after creation.
type Diagnostic struct {
	File     string   // Optional source file
	Line     int      // Optional (0 when absent)
	Column   int      // Optional (0 when absent)
	Severity Severity
	Message  string
	Pattern  string // Name of the pattern that produced this record
}

// RunRecord is the per-task-invocation state. It is created when the
// scheduler dispatches a task, mutated only by the executor invocation
// owning it, and finalized on process exit or cancellation.
type RunRecord struct {
	TaskName    string
	Outcome     Outcome
	ExitCode    int
	StartedAt   time.Time
	EndedAt     time.Time
	Stdout      []byte
	Stderr      []byte
	Diagnostics []Diagnostic
	Err         error // Infrastructure error when Outcome is OutcomeError
}

// Duration returns the wall-clock time of the invocation.
func (r *RunRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// RunReport aggregates the result of one scheduler execution across all
// nodes in a plan.
type RunReport struct {
	RunID     string // Unique per invocation
	RootTask  string
	StartedAt time.Time
	EndedAt   time.Time
	States    map[string]NodeState  // Final state per task name
	Records   map[string]*RunRecord // Present for every task that ran
	Order     []string              // Task names in dispatch order
}

// Duration returns the total execution time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Success reports whether every non-skipped node succeeded. Cancelled
// nodes count against success; nodes marked ignore-failure count as
// successful as long as they ran to completion.
func (r *RunReport) Success() bool {
	for _, state := range r.States {
		switch state {
		case StateSucceeded, StateSkipped:
		default:
			// Ignore-failure tasks reach StateSucceeded even on nonzero
			// exit, so any StateFailed here is a real failure.
			return false
		}
	}
	return true
}

// Counts tallies final states for the run summary.
func (r *RunReport) Counts() map[NodeState]int {
	counts := make(map[NodeState]int)
	for _, state := range r.States {
		counts[state]++
	}
	return counts
}

// AllDiagnostics returns every diagnostic extracted during the run, in
// dispatch order.
func (r *RunReport) AllDiagnostics() []Diagnostic {
	var out []Diagnostic
	for _, name := range r.Order {
		if rec, ok := r.Records[name]; ok {
			out = append(out, rec.Diagnostics...)
		}
	}
	return out
}
