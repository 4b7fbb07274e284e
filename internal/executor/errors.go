package executor

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle, carrying the full cycle path for
// diagnosability. Resolution-time and fatal: no tasks run.
type CycleError struct {
	Path []string // e.g. ["a", "b", "a"]
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

// UnknownTaskError reports a reference to a task that does not exist in
// the registry. Resolution-time and fatal.
type UnknownTaskError struct {
	Name         string
	ReferencedBy string // empty when Name was the requested root
}

func (e *UnknownTaskError) Error() string {
	if e.ReferencedBy == "" {
		return fmt.Sprintf("unknown task %q", e.Name)
	}
	return fmt.Sprintf("task %s: depends on unknown task %q", e.ReferencedBy, e.Name)
}
