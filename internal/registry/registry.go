// Package registry holds the parsed set of task definitions and validates
// their structural integrity before any resolution or execution happens.
package registry

import (
	"fmt"
	"strings"

	"github.com/harrison/overture/internal/models"
)

// ValidationError aggregates every structural problem found in a task set.
// Registry loading is all-or-nothing: a registry is never constructed from
// definitions that fail validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	switch len(e.Problems) {
	case 0:
		return "invalid task definitions"
	case 1:
		return fmt.Sprintf("invalid task definitions: %s", e.Problems[0])
	default:
		return fmt.Sprintf("invalid task definitions (%d problems):\n  %s",
			len(e.Problems), strings.Join(e.Problems, "\n  "))
	}
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Registry is an immutable, validated set of task definitions.
type Registry struct {
	tasks map[string]models.Task
	names []string // declaration order
}

// Load validates the definitions and constructs a Registry. It rejects
// duplicate identifiers, malformed command specifications, and dependency
// references that do not resolve to a known task. Construction is pure:
// no side effects, no partial registries.
func Load(tasks []models.Task) (*Registry, error) {
	verr := &ValidationError{}

	byName := make(map[string]models.Task, len(tasks))
	names := make([]string, 0, len(tasks))

	for _, task := range tasks {
		if err := task.Validate(); err != nil {
			verr.add("%v", err)
			continue
		}
		if _, dup := byName[task.Name]; dup {
			verr.add("task %s: duplicate task name", task.Name)
			continue
		}
		task.Presentation.ApplyDefaults()
		byName[task.Name] = task
		names = append(names, task.Name)
	}

	// Dependency references are checked against the full set, so a task
	// may depend on one declared later in the file.
	for _, name := range names {
		for _, dep := range byName[name].DependsOn {
			if _, ok := byName[dep]; !ok {
				verr.add("task %s: depends on unknown task %q", name, dep)
			}
		}
	}

	if len(verr.Problems) > 0 {
		return nil, verr
	}
	return &Registry{tasks: byName, names: names}, nil
}

// Get returns the task with the given name.
func (r *Registry) Get(name string) (models.Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

// Names returns task names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	return len(r.tasks)
}

// ValidateMatchers checks that every problem-matcher reference resolves to
// a known pattern name. Kept separate from Load because pattern sets are
// assembled from builtins plus user configuration after parsing.
func (r *Registry) ValidateMatchers(known func(string) bool) error {
	verr := &ValidationError{}
	for _, name := range r.names {
		for _, m := range r.tasks[name].ProblemMatchers {
			if !known(m) {
				verr.add("task %s: unknown problem matcher %q", name, m)
			}
		}
	}
	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}
