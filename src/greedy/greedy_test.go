package greedy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/will-rowe/lintrack/src/roi"
	"github.com/will-rowe/lintrack/src/trackgraph"
)

var testROI = roi.New(roi.Coordinate{0, 0, 0, 0}, roi.Coordinate{3, 100, 100, 100})

func TestThreeNodeScenario(t *testing.T) {
	// a0 = 1, b1 = 2, c1 = 3
	g := trackgraph.NewCandidateGraph(testROI)
	g.AddNode(1, trackgraph.Attrs{"t": 0, "score": 0.9})
	g.AddNode(2, trackgraph.Attrs{"t": 1, "score": 0.8})
	g.AddNode(3, trackgraph.Attrs{"t": 1, "score": 0.2})
	g.AddEdge(2, 1, trackgraph.Attrs{"distance": 1.0})
	g.AddEdge(3, 1, trackgraph.Attrs{"distance": 5.0})

	sel := Track(trackgraph.New(g, "t", testROI), Options{Metric: MetricDistance, NodeThreshold: 0.5})
	assert.Equal(t, Key, sel.Key)
	assert.True(t, sel.Edges[trackgraph.EdgeKey{U: 2, V: 1}])
	assert.False(t, sel.Edges[trackgraph.EdgeKey{U: 3, V: 1}])
	assert.True(t, sel.Nodes[1])
	assert.True(t, sel.Nodes[2])
	assert.False(t, sel.Nodes[3])
}

func TestNoDivisions(t *testing.T) {
	// without a threshold c1 still loses: a0 already has its successor
	g := trackgraph.NewCandidateGraph(testROI)
	g.AddNode(1, trackgraph.Attrs{"t": 0, "score": 0.9})
	g.AddNode(2, trackgraph.Attrs{"t": 1, "score": 0.8})
	g.AddNode(3, trackgraph.Attrs{"t": 1, "score": 0.2})
	g.AddEdge(2, 1, trackgraph.Attrs{"prediction_distance": 2.0})
	g.AddEdge(3, 1, trackgraph.Attrs{"prediction_distance": 1.0})

	sel := Track(trackgraph.New(g, "t", testROI), Options{})
	assert.True(t, sel.Edges[trackgraph.EdgeKey{U: 3, V: 1}])
	assert.False(t, sel.Edges[trackgraph.EdgeKey{U: 2, V: 1}])
	assert.False(t, sel.Nodes[2])
}

func TestTieBreak(t *testing.T) {
	g := trackgraph.NewCandidateGraph(testROI)
	g.AddNode(1, trackgraph.Attrs{"t": 0})
	g.AddNode(2, trackgraph.Attrs{"t": 1})
	g.AddNode(3, trackgraph.Attrs{"t": 1})
	g.AddEdge(3, 1, trackgraph.Attrs{"prediction_distance": 1.0})
	g.AddEdge(2, 1, trackgraph.Attrs{"prediction_distance": 1.0})

	sel := Track(trackgraph.New(g, "t", testROI), Options{Key: "selected_x"})
	assert.Equal(t, "selected_x", sel.Key)
	assert.True(t, sel.Edges[trackgraph.EdgeKey{U: 2, V: 1}])
	assert.False(t, sel.Edges[trackgraph.EdgeKey{U: 3, V: 1}])
}

func TestStoredSelectionsKept(t *testing.T) {
	// 2 -> 1 was selected by an earlier block, the shorter 3 -> 1 must not give 1 a second successor
	g := trackgraph.NewCandidateGraph(testROI)
	g.AddNode(1, trackgraph.Attrs{"t": 0})
	g.AddNode(2, trackgraph.Attrs{"t": 1})
	g.AddNode(3, trackgraph.Attrs{"t": 1})
	g.AddNode(4, trackgraph.Attrs{"t": 0})
	g.AddEdge(2, 1, trackgraph.Attrs{"prediction_distance": 5.0, Key: true})
	g.AddEdge(3, 1, trackgraph.Attrs{"prediction_distance": 1.0})
	g.AddEdge(3, 4, trackgraph.Attrs{"prediction_distance": 2.0})
	// a stored rejection stays rejected
	g.AddEdge(2, 4, trackgraph.Attrs{"prediction_distance": 0.5, Key: false})

	sel := Track(trackgraph.New(g, "t", testROI), Options{})
	assert.True(t, sel.Edges[trackgraph.EdgeKey{U: 2, V: 1}])
	assert.False(t, sel.Edges[trackgraph.EdgeKey{U: 3, V: 1}])
	assert.True(t, sel.Edges[trackgraph.EdgeKey{U: 3, V: 4}])
	assert.False(t, sel.Edges[trackgraph.EdgeKey{U: 2, V: 4}])
	for _, n := range []uint64{1, 2, 3, 4} {
		assert.True(t, sel.Nodes[n], "node %d", n)
	}
}

func TestHasChild(t *testing.T) {
	// 1 already has a selected successor outside the graph
	g := trackgraph.NewCandidateGraph(testROI)
	g.AddNode(1, trackgraph.Attrs{"t": 0})
	g.AddNode(2, trackgraph.Attrs{"t": 1})
	g.AddEdge(2, 1, trackgraph.Attrs{"prediction_distance": 1.0})

	sel := Track(trackgraph.New(g, "t", testROI), Options{HasChild: map[uint64]bool{1: true}})
	assert.False(t, sel.Edges[trackgraph.EdgeKey{U: 2, V: 1}])
	assert.False(t, sel.Nodes[2])
}

func TestDegreeBound(t *testing.T) {
	// a dense bipartite graph between every pair of adjacent frames
	g := trackgraph.NewCandidateGraph(roi.New(roi.Coordinate{0, 0, 0, 0}, roi.Coordinate{4, 100, 100, 100}))
	id := uint64(1)
	frames := make([][]uint64, 4)
	for f := 0; f < 4; f++ {
		for i := 0; i < 4; i++ {
			g.AddNode(id, trackgraph.Attrs{"t": f, "score": 1.0})
			frames[f] = append(frames[f], id)
			id++
		}
	}
	for f := 1; f < 4; f++ {
		for i, u := range frames[f] {
			for j, v := range frames[f-1] {
				g.AddEdge(u, v, trackgraph.Attrs{"prediction_distance": float64((i*7+j*3)%5) + 0.5})
			}
		}
	}

	sel := Track(trackgraph.New(g, "t", g.ROI), Options{})
	out := make(map[uint64]int)
	in := make(map[uint64]int)
	for e, v := range sel.Edges {
		if v {
			out[e.U]++
			in[e.V]++
			assert.True(t, sel.Nodes[e.U])
			assert.True(t, sel.Nodes[e.V])
		}
	}
	for n, c := range out {
		assert.LessOrEqual(t, c, 1, "node %d has %d selected predecessors", n, c)
	}
	for n, c := range in {
		assert.LessOrEqual(t, c, 1, "node %d has %d selected successors", n, c)
	}
	assert.Equal(t, 12, sel.NumSelectedEdges())
}

func TestEmptyGraph(t *testing.T) {
	sel := Track(trackgraph.New(trackgraph.NewCandidateGraph(testROI), "t", testROI), Options{})
	assert.Empty(t, sel.Edges)
	assert.Empty(t, sel.Nodes)
}
