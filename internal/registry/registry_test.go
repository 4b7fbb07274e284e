package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/overture/internal/models"
)

func TestLoadValidRegistry(t *testing.T) {
	reg, err := Load([]models.Task{
		{Name: "fmt", Command: "cargo", Args: []string{"fmt"}},
		{Name: "build", Command: "cargo", Args: []string{"build"}, DependsOn: []string{"fmt"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"fmt", "build"}, reg.Names())

	build, ok := reg.Get("build")
	require.True(t, ok)
	assert.Equal(t, []string{"fmt"}, build.DependsOn)
	// Presentation defaults are normalized during load.
	assert.Equal(t, models.RevealAlways, build.Presentation.Reveal)
}

func TestLoadForwardReference(t *testing.T) {
	// A task may depend on one declared later in the file.
	_, err := Load([]models.Task{
		{Name: "build", Command: "cargo", DependsOn: []string{"fmt"}},
		{Name: "fmt", Command: "cargo"},
	})
	assert.NoError(t, err)
}

func TestLoadDuplicateName(t *testing.T) {
	_, err := Load([]models.Task{
		{Name: "build", Command: "cargo"},
		{Name: "build", Command: "make"},
	})
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok, "expected *ValidationError, got %T", err)
	assert.Contains(t, verr.Error(), "duplicate task name")
}

func TestLoadUnknownDependency(t *testing.T) {
	_, err := Load([]models.Task{
		{Name: "build", Command: "cargo", DependsOn: []string{"nonexistent"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown task "nonexistent"`)
}

func TestLoadDuplicateDependency(t *testing.T) {
	// Rejected at load time with a direct message, rather than surfacing
	// later as a one-task cycle during resolution.
	_, err := Load([]models.Task{
		{Name: "a", Command: "x"},
		{Name: "b", Command: "y", DependsOn: []string{"a", "a"}, DependsOrder: models.DependsOrderSequence},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate dependency "a"`)
}

func TestLoadMissingCommand(t *testing.T) {
	_, err := Load([]models.Task{
		{Name: "build"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command is required")
}

func TestLoadCollectsAllProblems(t *testing.T) {
	_, err := Load([]models.Task{
		{Name: "a"},
		{Name: "b", Command: "x", DependsOn: []string{"missing"}},
		{Name: "b", Command: "y"},
	})
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Len(t, verr.Problems, 3)
}

func TestValidateMatchers(t *testing.T) {
	reg, err := Load([]models.Task{
		{Name: "build", Command: "cargo", ProblemMatchers: []string{"rustc"}},
		{Name: "lint", Command: "cargo", ProblemMatchers: []string{"bogus"}},
	})
	require.NoError(t, err)

	known := func(name string) bool { return name == "rustc" }
	err = reg.ValidateMatchers(known)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown problem matcher "bogus"`)

	all := func(string) bool { return true }
	assert.NoError(t, reg.ValidateMatchers(all))
}
