package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DependsOrder controls how a task's dependencies are executed relative
// to one another.
type DependsOrder string

const (
	// DependsOrderParallel runs all dependencies concurrently and waits for
	// every one of them to reach a terminal state before the task starts.
	DependsOrderParallel DependsOrder = "parallel"

	// DependsOrderSequence runs the dependencies strictly in list order,
	// each waiting for the previous one to complete.
	DependsOrderSequence DependsOrder = "sequence"
)

// RevealMode controls when a task's panel output is shown to the user.
type RevealMode string

const (
	RevealAlways    RevealMode = "always"
	RevealNever     RevealMode = "never"
	RevealOnFailure RevealMode = "onFailure"
)

// PanelMode controls whether a task shares an output panel with other tasks
// or owns a dedicated one.
type PanelMode string

const (
	PanelShared    PanelMode = "shared"
	PanelDedicated PanelMode = "dedicated"
)

// Presentation describes how a task's output is surfaced.
// The zero value is normalized by ApplyDefaults.
type Presentation struct {
	Echo             bool       // Show the invoked command line before output
	Reveal           RevealMode // When to surface panel output
	Focus            bool       // Steal input focus when revealed
	Panel            PanelMode  // Shared vs dedicated panel
	PanelName        string     // Explicit panel name (overrides Panel mode)
	Clear            bool       // Clear the panel before new output
	ShowReuseMessage bool       // Announce panel reuse between runs
}

// ApplyDefaults fills unset presentation fields with their defaults:
// reveal always on a shared panel.
func (p *Presentation) ApplyDefaults() {
	if p.Reveal == "" {
		p.Reveal = RevealAlways
	}
	if p.Panel == "" {
		p.Panel = PanelShared
	}
}

// Task represents a single named unit of work wrapping one external
// command invocation plus its dependency and presentation policy.
type Task struct {
	Name            string            // Unique identifier within a registry
	Command         string            // Program to execute
	Args            []string          // Program arguments, in order
	Env             map[string]string // Environment overrides layered onto the inherited environment
	Group           string            // Optional group tag (e.g., "build", "test")
	DependsOn       []string          // Names of tasks that must complete first
	DependsOrder    DependsOrder      // How DependsOn entries are ordered (default parallel)
	ProblemMatchers []string          // Names of diagnostic patterns applied to output
	Presentation    Presentation      // Output surfacing policy
	IgnoreFailure   bool              // Treat nonzero exit as satisfying dependents
}

// Validate checks that the task has all required fields and a coherent
// dependency declaration. Cross-task checks (unknown references, cycles)
// belong to the registry and resolver.
func (t *Task) Validate() error {
	if t.Name == "" {
		return errors.New("task name is required")
	}
	if t.Command == "" {
		return fmt.Errorf("task %s: command is required", t.Name)
	}
	switch t.DependsOrder {
	case "", DependsOrderParallel, DependsOrderSequence:
	default:
		return fmt.Errorf("task %s: unknown dependsOrder %q", t.Name, t.DependsOrder)
	}
	switch t.Presentation.Reveal {
	case "", RevealAlways, RevealNever, RevealOnFailure:
	default:
		return fmt.Errorf("task %s: unknown reveal mode %q", t.Name, t.Presentation.Reveal)
	}
	seen := make(map[string]bool, len(t.DependsOn))
	for _, dep := range t.DependsOn {
		if dep == t.Name {
			return fmt.Errorf("task %s: depends on itself", t.Name)
		}
		if seen[dep] {
			return fmt.Errorf("task %s: duplicate dependency %q", t.Name, dep)
		}
		seen[dep] = true
	}
	return nil
}

// OrderMode returns the effective dependency ordering mode, defaulting to
// parallel when unset.
func (t *Task) OrderMode() DependsOrder {
	if t.DependsOrder == "" {
		return DependsOrderParallel
	}
	return t.DependsOrder
}

// PanelKey returns the panel name this task writes to. Tasks in shared mode
// without an explicit name converge on a single panel per group (or the
// default panel when ungrouped); dedicated tasks get their own.
func (t *Task) PanelKey() string {
	if t.Presentation.PanelName != "" {
		return t.Presentation.PanelName
	}
	if t.Presentation.Panel == PanelDedicated {
		return "task:" + t.Name
	}
	if t.Group != "" {
		return "group:" + t.Group
	}
	return "shared"
}

// CommandLine returns the human-readable command invocation for echoing.
func (t *Task) CommandLine() string {
	if len(t.Args) == 0 {
		return t.Command
	}
	return t.Command + " " + strings.Join(t.Args, " ")
}

// MergedEnv layers the task's environment overrides onto the supplied base
// environment (typically os.Environ). Override keys are emitted in sorted
// order so the result is deterministic.
func (t *Task) MergedEnv(base []string) []string {
	if len(t.Env) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(t.Env))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, overridden := t.Env[key]; !overridden {
			merged = append(merged, kv)
		}
	}
	keys := make([]string, 0, len(t.Env))
	for k := range t.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+t.Env[k])
	}
	return merged
}
