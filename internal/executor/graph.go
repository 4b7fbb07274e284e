// Package executor resolves task registries into execution plans and runs
// them: graph resolution, process execution, and graph-walking scheduling.
package executor

import (
	"fmt"

	"github.com/harrison/overture/internal/models"
	"github.com/harrison/overture/internal/registry"
)

// Node is one task in an execution plan together with its resolved
// prerequisite edges. Prerequisites are plan node indices, not task
// references, so the plan has no cyclic ownership.
type Node struct {
	Index   int
	Task    models.Task
	Prereqs []int // nodes that must reach a terminal state before this one starts
}

// ExecutionPlan is the resolved, cycle-free dependency graph for one run
// request. Immutable after construction; a topological order always
// exists.
type ExecutionPlan struct {
	Root       int
	Nodes      []Node
	byName     map[string]int
	dependents [][]int // inverse of Prereqs
	order      []int   // topological order over plan edges
}

// NodeIndex returns the plan index for a task name.
func (p *ExecutionPlan) NodeIndex(name string) (int, bool) {
	i, ok := p.byName[name]
	return i, ok
}

// Dependents returns the plan indices of nodes that list i as a
// prerequisite.
func (p *ExecutionPlan) Dependents(i int) []int {
	return p.dependents[i]
}

// TopologicalOrder returns task names in a dependency-respecting order.
func (p *ExecutionPlan) TopologicalOrder() []string {
	names := make([]string, 0, len(p.order))
	for _, i := range p.order {
		names = append(names, p.Nodes[i].Task.Name)
	}
	return names
}

// Len returns the number of nodes in the plan.
func (p *ExecutionPlan) Len() int {
	return len(p.Nodes)
}

// Resolve builds an execution plan for the root task by collecting its
// dependencies transitively. A task's immediate dependencies keep their
// declared ordering mode: sequence mode adds chain edges so dependsOn
// [A, B] executes A, then B, then the task; parallel mode leaves the
// dependencies independent, all awaited before the dependent starts.
//
// Cycles among task declarations are detected during the depth-first
// collection (a gray node seen again is a cycle) and reported with the
// full cycle path. Chain edges can also close a cycle (two tasks
// sequencing the same dependencies in opposite orders), so the assembled
// plan is topologically sorted and rejected the same way if that fails.
func Resolve(reg *registry.Registry, root string) (*ExecutionPlan, error) {
	if _, ok := reg.Get(root); !ok {
		return nil, &UnknownTaskError{Name: root}
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // finished
	)

	color := make(map[string]int)
	var stack []string     // current DFS path, for cycle reporting
	var collected []string // reachable tasks, dependencies first

	var visit func(name string) error
	visit = func(name string) error {
		task, ok := reg.Get(name)
		if !ok {
			ref := ""
			if len(stack) > 0 {
				ref = stack[len(stack)-1]
			}
			return &UnknownTaskError{Name: name, ReferencedBy: ref}
		}

		color[name] = gray
		stack = append(stack, name)

		for _, dep := range task.DependsOn {
			switch color[dep] {
			case gray:
				return &CycleError{Path: cycleFrom(stack, dep)}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
		collected = append(collected, name)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}

	plan := &ExecutionPlan{
		Nodes:  make([]Node, 0, len(collected)),
		byName: make(map[string]int, len(collected)),
	}
	for i, name := range collected {
		task, _ := reg.Get(name)
		plan.Nodes = append(plan.Nodes, Node{Index: i, Task: task})
		plan.byName[name] = i
	}
	plan.Root = plan.byName[root]

	// Plan edges: every dependency precedes its dependent; sequence mode
	// additionally chains the dependency list in declaration order.
	edgeSet := make(map[[2]int]bool)
	addEdge := func(from, to int) {
		key := [2]int{from, to}
		if edgeSet[key] {
			return
		}
		edgeSet[key] = true
		plan.Nodes[to].Prereqs = append(plan.Nodes[to].Prereqs, from)
	}
	for i := range plan.Nodes {
		task := plan.Nodes[i].Task
		deps := task.DependsOn
		for _, dep := range deps {
			addEdge(plan.byName[dep], i)
		}
		if task.OrderMode() == models.DependsOrderSequence {
			for j := 0; j+1 < len(deps); j++ {
				addEdge(plan.byName[deps[j]], plan.byName[deps[j+1]])
			}
		}
	}

	plan.dependents = make([][]int, len(plan.Nodes))
	for i := range plan.Nodes {
		for _, pre := range plan.Nodes[i].Prereqs {
			plan.dependents[pre] = append(plan.dependents[pre], i)
		}
	}

	order, err := plan.topoSort()
	if err != nil {
		return nil, err
	}
	plan.order = order

	return plan, nil
}

// topoSort runs Kahn's algorithm over the plan edges. On failure it walks
// the leftover nodes to name the cycle.
func (p *ExecutionPlan) topoSort() ([]int, error) {
	indeg := make([]int, len(p.Nodes))
	for i := range p.Nodes {
		indeg[i] = len(p.Nodes[i].Prereqs)
	}

	var queue []int
	for i, d := range indeg {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, len(p.Nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, dep := range p.dependents[n] {
			indeg[dep]--
			if indeg[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) == len(p.Nodes) {
		return order, nil
	}
	return nil, &CycleError{Path: p.findCyclePath(indeg)}
}

// findCyclePath locates a cycle among nodes with leftover in-degree using
// DFS coloring, returning it as task names.
func (p *ExecutionPlan) findCyclePath(indeg []int) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(p.Nodes))
	parent := make([]int, len(p.Nodes))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []string
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range p.dependents[u] {
			if color[v] == gray {
				path := []int{v}
				for cur := u; cur != v; cur = parent[cur] {
					path = append(path, cur)
				}
				path = append(path, v)
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				cycle = make([]string, 0, len(path))
				for _, idx := range path {
					cycle = append(cycle, p.Nodes[idx].Task.Name)
				}
				return true
			}
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
			}
		}
		color[u] = black
		return false
	}

	for i := range p.Nodes {
		if indeg[i] > 0 && color[i] == white {
			if dfs(i) {
				return cycle
			}
		}
	}
	return []string{"(cycle detected)"}
}

// cycleFrom extracts the cycle path from a DFS stack: the segment from the
// first occurrence of name to the end, closed by name itself.
func cycleFrom(stack []string, name string) []string {
	start := 0
	for i, n := range stack {
		if n == name {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	path = append(path, stack[start:]...)
	path = append(path, name)
	return path
}

// DescribePlan renders the plan as an indented dependency listing, used by
// the graph command.
func DescribePlan(p *ExecutionPlan) string {
	out := ""
	for _, name := range p.TopologicalOrder() {
		i := p.byName[name]
		node := p.Nodes[i]
		out += name
		if len(node.Prereqs) > 0 {
			out += " <-"
			for _, pre := range node.Prereqs {
				out += " " + p.Nodes[pre].Task.Name
			}
		}
		if mode := node.Task.OrderMode(); len(node.Task.DependsOn) > 1 && mode == models.DependsOrderSequence {
			out += fmt.Sprintf(" (%s)", mode)
		}
		out += "\n"
	}
	return out
}
