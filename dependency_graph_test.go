package oors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraph(nodes ...string) *DependencyGraph {
	g := NewDependencyGraph()
	for _, n := range nodes {
		g.AddNode(n)
	}
	return g
}

func TestDependencyGraph_AddEdgeMaintainsClosure(t *testing.T) {
	g := newGraph("a", "b", "c", "d")

	require.NoError(t, g.AddEdge("c", "d"))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))

	assert.Equal(t, []string{"b"}, g.Direct("a"))
	assert.Equal(t, []string{"b", "c", "d"}, g.Closure("a"))
	assert.Equal(t, []string{"c", "d"}, g.Closure("b"))
	assert.Equal(t, []string{"d"}, g.Closure("c"))
	assert.Empty(t, g.Closure("d"))
	assert.True(t, g.DependsOn("a", "d"))
	assert.False(t, g.DependsOn("d", "a"))
}

func TestDependencyGraph_SelfDependency(t *testing.T) {
	g := newGraph("a")
	err := g.AddEdge("a", "a")
	assert.ErrorIs(t, err, ErrSelfDependency)
}

func TestDependencyGraph_UnknownModule(t *testing.T) {
	g := newGraph("a")
	err := g.AddEdge("a", "missing")
	assert.ErrorIs(t, err, ErrUnknownModule)
	assert.Contains(t, err.Error(), `"missing" required by "a"`)
}

func TestDependencyGraph_CycleDetection(t *testing.T) {
	tests := []struct {
		name     string
		edges    [][2]string
		closing  [2]string
		wantPath []string
	}{
		{
			name:     "two nodes",
			edges:    [][2]string{{"a", "b"}},
			closing:  [2]string{"b", "a"},
			wantPath: []string{"b", "a", "b"},
		},
		{
			name:     "three nodes",
			edges:    [][2]string{{"a", "b"}, {"b", "c"}},
			closing:  [2]string{"c", "a"},
			wantPath: []string{"c", "a", "b", "c"},
		},
		{
			name:     "closing edge added in the middle",
			edges:    [][2]string{{"a", "b"}, {"c", "a"}},
			closing:  [2]string{"b", "c"},
			wantPath: []string{"b", "c", "a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGraph("a", "b", "c")
			for _, e := range tt.edges {
				require.NoError(t, g.AddEdge(e[0], e[1]))
			}

			err := g.AddEdge(tt.closing[0], tt.closing[1])
			require.ErrorIs(t, err, ErrCyclicDependency)

			var cycle *CycleError
			require.True(t, errors.As(err, &cycle))
			assert.Equal(t, tt.wantPath, cycle.Path)
		})
	}
}

func TestDependencyGraph_RollbackOnCycle(t *testing.T) {
	g := newGraph("a", "b", "c")
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))

	require.Error(t, g.AddEdge("c", "a"))

	assert.Empty(t, g.Direct("c"))
	assert.Empty(t, g.Closure("c"))
	assert.Equal(t, []string{"b", "c"}, g.Closure("a"))
	for _, n := range g.Nodes() {
		assert.NotContains(t, g.Closure(n), n)
	}
}

func TestDependencyGraph_DuplicateEdgeIsHarmless(t *testing.T) {
	g := newGraph("a", "b")
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "b"))
	assert.Equal(t, []string{"b"}, g.Direct("a"))
}

func TestDependencyGraph_DiamondIsNotACycle(t *testing.T) {
	g := newGraph("top", "left", "right", "base")
	require.NoError(t, g.AddEdge("top", "left"))
	require.NoError(t, g.AddEdge("top", "right"))
	require.NoError(t, g.AddEdge("left", "base"))
	require.NoError(t, g.AddEdge("right", "base"))

	assert.Equal(t, []string{"base", "left", "right"}, g.Closure("top"))
}

func TestDependencyGraph_Nodes(t *testing.T) {
	g := newGraph("b", "a")
	g.AddNode("a")
	assert.Equal(t, []string{"a", "b"}, g.Nodes())
	assert.True(t, g.HasNode("a"))
	assert.False(t, g.HasNode("z"))
}
