package trackgraph

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/will-rowe/lintrack/src/roi"
)

// Attrs holds the attributes of a node or edge
type Attrs map[string]interface{}

// Lookup returns an attribute as a float64, coercing the numeric types a store can hand back
func (a Attrs) Lookup(key string) (float64, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Float returns an attribute as a float64, a missing attribute reads as 0
func (a Attrs) Float(key string) float64 {
	f, _ := a.Lookup(key)
	return f
}

// Int returns an attribute as an int64
func (a Attrs) Int(key string) (int64, bool) {
	f, ok := a.Lookup(key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Bool returns a selection flag
func (a Attrs) Bool(key string) (bool, bool) {
	switch b := a[key].(type) {
	case bool:
		return b, true
	case string:
		v, err := strconv.ParseBool(b)
		return v, err == nil
	case nil:
		return false, false
	}
	f, ok := a.Lookup(key)
	return f != 0, ok
}

// Position returns the z,y,x attributes as a vector (X=x, Y=y, Z=z)
func (a Attrs) Position() r3.Vector {
	return r3.Vector{X: a.Float("x"), Y: a.Float("y"), Z: a.Float("z")}
}

// Copy returns a shallow copy
func (a Attrs) Copy() Attrs {
	c := make(Attrs, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// EdgeKey identifies an edge, U is the node in frame t+1 and V its candidate predecessor in frame t
type EdgeKey struct {
	U uint64
	V uint64
}

// EdgeKeys is a slice of EdgeKey
type EdgeKeys []EdgeKey

// methods for EdgeKeys to satisfy the sort interface
func (e EdgeKeys) Len() int      { return len(e) }
func (e EdgeKeys) Swap(i, j int) { e[i], e[j] = e[j], e[i] }
func (e EdgeKeys) Less(i, j int) bool {
	if e[i].U != e[j].U {
		return e[i].U < e[j].U
	}
	return e[i].V < e[j].V
}

// NodeIDs is a slice of node ids
type NodeIDs []uint64

// methods for NodeIDs to satisfy the sort interface
func (n NodeIDs) Len() int           { return len(n) }
func (n NodeIDs) Swap(i, j int)      { n[i], n[j] = n[j], n[i] }
func (n NodeIDs) Less(i, j int) bool { return n[i] < n[j] }

/*
CandidateGraph is the owned value returned by a store query
*/
type CandidateGraph struct {
	ROI   roi.ROI
	Nodes map[uint64]Attrs
	Edges map[EdgeKey]Attrs
}

// NewCandidateGraph is the constructor
func NewCandidateGraph(r roi.ROI) *CandidateGraph {
	return &CandidateGraph{
		ROI:   r,
		Nodes: make(map[uint64]Attrs),
		Edges: make(map[EdgeKey]Attrs),
	}
}

// AddNode adds or replaces a node
func (g *CandidateGraph) AddNode(id uint64, attrs Attrs) {
	if attrs == nil {
		attrs = make(Attrs)
	}
	g.Nodes[id] = attrs
}

// AddEdge adds or replaces an edge, endpoints not in the graph are added without attributes
func (g *CandidateGraph) AddEdge(u, v uint64, attrs Attrs) {
	if attrs == nil {
		attrs = make(Attrs)
	}
	for _, n := range []uint64{u, v} {
		if _, ok := g.Nodes[n]; !ok {
			g.Nodes[n] = make(Attrs)
		}
	}
	g.Edges[EdgeKey{U: u, V: v}] = attrs
}

// RemoveNode removes a node and its edges
func (g *CandidateGraph) RemoveNode(id uint64) {
	delete(g.Nodes, id)
	for key := range g.Edges {
		if key.U == id || key.V == id {
			delete(g.Edges, key)
		}
	}
}

// RemoveDangling removes every node without a frame attribute (and its edges), returning their ids
func (g *CandidateGraph) RemoveDangling(frameKey string) []uint64 {
	dangling := NodeIDs{}
	for id, attrs := range g.Nodes {
		if _, ok := attrs.Int(frameKey); !ok {
			dangling = append(dangling, id)
		}
	}
	if len(dangling) == 0 {
		return nil
	}
	drop := make(map[uint64]struct{}, len(dangling))
	for _, id := range dangling {
		drop[id] = struct{}{}
		delete(g.Nodes, id)
	}
	for key := range g.Edges {
		_, uGone := drop[key.U]
		_, vGone := drop[key.V]
		if uGone || vGone {
			delete(g.Edges, key)
		}
	}
	sort.Sort(dangling)
	return dangling
}

// NumNodes returns the number of nodes
func (g *CandidateGraph) NumNodes() int { return len(g.Nodes) }

// NumEdges returns the number of edges
func (g *CandidateGraph) NumEdges() int { return len(g.Edges) }

// SortedNodeIDs returns the node ids in ascending order
func (g *CandidateGraph) SortedNodeIDs() []uint64 {
	ids := make(NodeIDs, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Sort(ids)
	return ids
}

// SortedEdgeKeys returns the edge keys in ascending (u, v) order
func (g *CandidateGraph) SortedEdgeKeys() []EdgeKey {
	keys := make(EdgeKeys, 0, len(g.Edges))
	for key := range g.Edges {
		keys = append(keys, key)
	}
	sort.Sort(keys)
	return keys
}
