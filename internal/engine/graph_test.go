package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provisor-io/provisor/internal/ir"
)

func step(name string, deps ...string) *ir.Step {
	return &ir.Step{Name: name, DependsOn: deps}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(step("a")))
	require.NoError(t, reg.Register(step("b", "a")))

	assert.Equal(t, "a", reg.Get("a").Name)
	assert.Nil(t, reg.Get("missing"))
	assert.Equal(t, []string{"a"}, reg.Dependencies("b"))
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(step("a")))

	err := reg.Register(step("a"))
	var dup *DuplicateStepError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.Name)
}

func TestRegistry_RegisterUnknownDependency(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(step("b", "a"))
	var unknown *UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "b", unknown.Step)
	assert.Equal(t, "a", unknown.Dependency)
}

func TestRegistry_LoadAcceptsAnyDeclarationOrder(t *testing.T) {
	reg := NewRegistry()
	// b declared before its dependency; Load validates over the whole set.
	require.NoError(t, reg.Load([]*ir.Step{
		step("b", "a"),
		step("a"),
	}))

	order, err := reg.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestRegistry_LoadUnknownDependency(t *testing.T) {
	reg := NewRegistry()
	err := reg.Load([]*ir.Step{step("b", "ghost")})
	var unknown *UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Dependency)
}

func TestTopologicalOrder_Diamond(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Load([]*ir.Step{
		step("base"),
		step("left", "base"),
		step("right", "base"),
		step("top", "left", "right"),
	}))

	order, err := reg.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "left", "right", "top"}, order)
}

func TestTopologicalOrder_Deterministic(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Load([]*ir.Step{
		step("c"),
		step("a"),
		step("b"),
	}))

	// Independent steps run in declaration order, every time.
	for i := 0; i < 10; i++ {
		order, err := reg.TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, order)
	}
}

func TestTopologicalOrder_Cycle(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Load([]*ir.Step{
		step("a", "c"),
		step("b", "a"),
		step("c", "b"),
		step("standalone"),
	}))

	_, err := reg.TopologicalOrder()
	var cycle *CycleDetectedError
	require.ErrorAs(t, err, &cycle)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycle.Steps)
}

func TestTopologicalOrder_SelfCycle(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Load([]*ir.Step{step("a", "a")}))

	_, err := reg.TopologicalOrder()
	var cycle *CycleDetectedError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a"}, cycle.Steps)
}
