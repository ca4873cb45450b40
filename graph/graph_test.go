package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallHospital(t *testing.T) *Graph {
	t.Helper()
	g, err := Build(
		[]string{"A", "B", "C", "D", "E"},
		[]Corridor{
			{"A", "B", 5},
			{"B", "C", 10},
			{"A", "D", 2},
			{"D", "C", 20},
			{"C", "E", 1},
		},
	)
	require.NoError(t, err)
	return g
}

func TestBuildValidation(t *testing.T) {
	_, err := Build([]string{"A"}, []Corridor{{"A", "B", 1}})
	assert.ErrorIs(t, err, ErrUnknownNode)

	_, err = Build([]string{"A", "B"}, []Corridor{{"A", "B", 0}})
	assert.ErrorIs(t, err, ErrBadWeight)

	// Disconnected layout is rejected.
	_, err = Build([]string{"A", "B", "C"}, []Corridor{{"A", "B", 1}})
	assert.Error(t, err)
}

func TestEdgeSymmetry(t *testing.T) {
	g := smallHospital(t)

	w, ok := g.EdgeWeight("A", "B")
	require.True(t, ok)
	assert.Equal(t, 5.0, w)

	w, ok = g.EdgeWeight("B", "A")
	require.True(t, ok)
	assert.Equal(t, 5.0, w)

	_, ok = g.EdgeWeight("A", "E")
	assert.False(t, ok)
}

func TestNeighborsSorted(t *testing.T) {
	g := smallHospital(t)
	ns := g.Neighbors("A")
	require.Len(t, ns, 2)
	assert.Equal(t, "B", ns[0].To)
	assert.Equal(t, "D", ns[1].To)
}

func TestShortestPathBasic(t *testing.T) {
	g := smallHospital(t)

	path, total, ok := g.ShortestPath("A", "C")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C"}, path)
	assert.Equal(t, 15.0, total)

	// The returned total must equal the sum of edge weights along the path.
	var sum float64
	for i := 0; i < len(path)-1; i++ {
		w, ok := g.EdgeWeight(path[i], path[i+1])
		require.True(t, ok)
		sum += w
	}
	assert.Equal(t, total, sum)
}

func TestShortestPathSelf(t *testing.T) {
	g := smallHospital(t)
	path, total, ok := g.ShortestPath("B", "B")
	require.True(t, ok)
	assert.Equal(t, []string{"B"}, path)
	assert.Zero(t, total)
}

func TestShortestPathNoPath(t *testing.T) {
	g := New()
	g.AddNode("A")
	g.AddNode("B")

	_, _, ok := g.ShortestPath("A", "B")
	assert.False(t, ok)

	_, _, ok = g.ShortestPath("A", "Nowhere")
	assert.False(t, ok)
}

func TestShortestPathLexTieBreak(t *testing.T) {
	// Two equal-cost routes A->X->Z and A->Y->Z; the X route must win.
	g := New()
	for _, n := range []string{"A", "X", "Y", "Z"} {
		g.AddNode(n)
	}
	require.NoError(t, g.AddEdge("A", "X", 3))
	require.NoError(t, g.AddEdge("A", "Y", 3))
	require.NoError(t, g.AddEdge("X", "Z", 3))
	require.NoError(t, g.AddEdge("Y", "Z", 3))

	path, total, ok := g.ShortestPath("A", "Z")
	require.True(t, ok)
	assert.Equal(t, 6.0, total)
	assert.Equal(t, []string{"A", "X", "Z"}, path)
}

// Brute-force optimality check on a fixed mesh: no enumerated simple path
// may beat the Dijkstra total.
func TestShortestPathOptimality(t *testing.T) {
	g := smallHospital(t)
	nodes := g.Nodes()

	var walk func(at, dst string, visited map[string]bool, cost float64, best *float64)
	walk = func(at, dst string, visited map[string]bool, cost float64, best *float64) {
		if at == dst {
			if cost < *best {
				*best = cost
			}
			return
		}
		for _, e := range g.Neighbors(at) {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			walk(e.To, dst, visited, cost+e.Weight, best)
			visited[e.To] = false
		}
	}

	for _, src := range nodes {
		for _, dst := range nodes {
			_, total, ok := g.ShortestPath(src, dst)
			require.True(t, ok)
			best := 1e18
			walk(src, dst, map[string]bool{src: true}, 0, &best)
			if src == dst {
				best = 0
			}
			assert.Equal(t, best, total, "pair %s->%s", src, dst)
		}
	}
}
