package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/overture/internal/models"
	"github.com/harrison/overture/internal/registry"
)

func mustRegistry(t *testing.T, tasks ...models.Task) *registry.Registry {
	t.Helper()
	reg, err := registry.Load(tasks)
	require.NoError(t, err)
	return reg
}

func indexOf(names []string, want string) int {
	for i, n := range names {
		if n == want {
			return i
		}
	}
	return -1
}

func TestResolveLinearChain(t *testing.T) {
	reg := mustRegistry(t,
		models.Task{Name: "compile", Command: "cc"},
		models.Task{Name: "link", Command: "ld", DependsOn: []string{"compile"}},
		models.Task{Name: "package", Command: "tar", DependsOn: []string{"link"}},
	)

	plan, err := Resolve(reg, "package")
	require.NoError(t, err)

	order := plan.TopologicalOrder()
	assert.Equal(t, []string{"compile", "link", "package"}, order)
	assert.Equal(t, "package", plan.Nodes[plan.Root].Task.Name)
}

func TestResolveDiamond(t *testing.T) {
	reg := mustRegistry(t,
		models.Task{Name: "gen", Command: "gen"},
		models.Task{Name: "left", Command: "cc", DependsOn: []string{"gen"}},
		models.Task{Name: "right", Command: "cc", DependsOn: []string{"gen"}},
		models.Task{Name: "link", Command: "ld", DependsOn: []string{"left", "right"}},
	)

	plan, err := Resolve(reg, "link")
	require.NoError(t, err)
	require.Equal(t, 4, plan.Len())

	order := plan.TopologicalOrder()
	assert.Less(t, indexOf(order, "gen"), indexOf(order, "left"))
	assert.Less(t, indexOf(order, "gen"), indexOf(order, "right"))
	assert.Less(t, indexOf(order, "left"), indexOf(order, "link"))
	assert.Less(t, indexOf(order, "right"), indexOf(order, "link"))

	// gen appears once even though both branches reach it.
	i, ok := plan.NodeIndex("gen")
	require.True(t, ok)
	assert.Len(t, plan.Dependents(i), 2)
}

func TestResolveScopesToReachableTasks(t *testing.T) {
	reg := mustRegistry(t,
		models.Task{Name: "a", Command: "true"},
		models.Task{Name: "b", Command: "true", DependsOn: []string{"a"}},
		models.Task{Name: "unrelated", Command: "true"},
	)

	plan, err := Resolve(reg, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Len())
	_, ok := plan.NodeIndex("unrelated")
	assert.False(t, ok)
}

func TestResolveSequenceChainsDependencies(t *testing.T) {
	reg := mustRegistry(t,
		models.Task{Name: "clean", Command: "rm"},
		models.Task{Name: "build", Command: "cc"},
		models.Task{
			Name:         "rebuild",
			Command:      "true",
			DependsOn:    []string{"clean", "build"},
			DependsOrder: models.DependsOrderSequence,
		},
	)

	plan, err := Resolve(reg, "rebuild")
	require.NoError(t, err)

	// The chain edge forces clean before build despite no declared
	// dependency between them.
	bi, _ := plan.NodeIndex("build")
	ci, _ := plan.NodeIndex("clean")
	assert.Contains(t, plan.Nodes[bi].Prereqs, ci)

	order := plan.TopologicalOrder()
	assert.Equal(t, []string{"clean", "build", "rebuild"}, order)
}

func TestResolveIsRepeatable(t *testing.T) {
	reg := mustRegistry(t,
		models.Task{Name: "gen", Command: "protoc"},
		models.Task{Name: "build", Command: "make", DependsOn: []string{"gen"}},
		models.Task{Name: "test", Command: "make", Args: []string{"test"}, DependsOn: []string{"build"}},
	)

	first, err := Resolve(reg, "test")
	require.NoError(t, err)
	second, err := Resolve(reg, "test")
	require.NoError(t, err)

	assert.Equal(t, first.TopologicalOrder(), second.TopologicalOrder())
	assert.Equal(t, DescribePlan(first), DescribePlan(second))
}

func TestResolveCycleReportsPath(t *testing.T) {
	reg := mustRegistry(t,
		models.Task{Name: "a", Command: "true", DependsOn: []string{"b"}},
		models.Task{Name: "b", Command: "true", DependsOn: []string{"a"}},
	)

	_, err := Resolve(reg, "a")
	require.Error(t, err)

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"a", "b", "a"}, cycleErr.Path)
	assert.Contains(t, err.Error(), "circular dependency detected: a -> b -> a")
}

func TestResolveSelfReference(t *testing.T) {
	reg := mustRegistry(t,
		models.Task{Name: "loop", Command: "true", DependsOn: []string{"loop"}},
	)

	_, err := Resolve(reg, "loop")
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"loop", "loop"}, cycleErr.Path)
}

func TestResolveConflictingSequenceOrders(t *testing.T) {
	// Two tasks sequence the same dependencies in opposite orders. The
	// declarations are acyclic, but the chain edges close a cycle in the
	// assembled plan.
	reg := mustRegistry(t,
		models.Task{Name: "a", Command: "true"},
		models.Task{Name: "b", Command: "true"},
		models.Task{
			Name: "forward", Command: "true",
			DependsOn: []string{"a", "b"}, DependsOrder: models.DependsOrderSequence,
		},
		models.Task{
			Name: "backward", Command: "true",
			DependsOn: []string{"b", "a"}, DependsOrder: models.DependsOrderSequence,
		},
		models.Task{Name: "all", Command: "true", DependsOn: []string{"forward", "backward"}},
	)

	_, err := Resolve(reg, "all")
	require.Error(t, err)

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.GreaterOrEqual(t, len(cycleErr.Path), 3)
}

func TestResolveUnknownRoot(t *testing.T) {
	reg := mustRegistry(t, models.Task{Name: "a", Command: "true"})

	_, err := Resolve(reg, "missing")
	var unknownErr *UnknownTaskError
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, "missing", unknownErr.Name)
	assert.Empty(t, unknownErr.ReferencedBy)
}

func TestDescribePlan(t *testing.T) {
	reg := mustRegistry(t,
		models.Task{Name: "a", Command: "true"},
		models.Task{Name: "b", Command: "true", DependsOn: []string{"a"}},
	)
	plan, err := Resolve(reg, "b")
	require.NoError(t, err)

	out := DescribePlan(plan)
	assert.Contains(t, out, "a\n")
	assert.Contains(t, out, "b <- a\n")
}
