package models

import "fmt"

// NodeState is the scheduler-visible state of a plan node.
type NodeState string

const (
	StatePending   NodeState = "pending"
	StateReady     NodeState = "ready"
	StateRunning   NodeState = "running"
	StateSucceeded NodeState = "succeeded"
	StateFailed    NodeState = "failed"
	StateSkipped   NodeState = "skipped"
	StateCancelled NodeState = "cancelled"
)

var terminalStates = map[NodeState]bool{
	StateSucceeded: true,
	StateFailed:    true,
	StateSkipped:   true,
	StateCancelled: true,
}

// Node lifecycle: pending → ready → running → terminal.
// Skipped and cancelled are reachable before running: a node whose
// dependency failed is skipped without ever becoming ready, and a
// cancelled plan cancels nodes that have not started.
var validNodeTransitions = map[NodeState]map[NodeState]bool{
	StatePending: {
		StateReady:     true,
		StateSkipped:   true,
		StateCancelled: true,
	},
	StateReady: {
		StateRunning:   true,
		StateSkipped:   true,
		StateCancelled: true,
	},
	StateRunning: {
		StateSucceeded: true,
		StateFailed:    true,
		StateCancelled: true,
	},
}

// IsTerminal reports whether the state is terminal.
func (s NodeState) IsTerminal() bool {
	return terminalStates[s]
}

// Satisfies reports whether a dependency in this state allows its
// dependents to start under the default fail-fast policy.
func (s NodeState) Satisfies() bool {
	return s == StateSucceeded
}

// ValidateNodeTransition checks that from → to is an allowed lifecycle
// transition, making scheduler races observable instead of silent.
func ValidateNodeTransition(from, to NodeState) error {
	if from.IsTerminal() {
		return fmt.Errorf("cannot transition from terminal state %q", from)
	}
	allowed, ok := validNodeTransitions[from]
	if !ok {
		return fmt.Errorf("unknown node state %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid node transition: %q -> %q", from, to)
	}
	return nil
}
