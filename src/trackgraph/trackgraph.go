// Package trackgraph wraps a slice of the candidate graph with frame-indexed structure for the trackers
package trackgraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/will-rowe/lintrack/src/roi"
	"go.uber.org/zap"
)

// AttrWriter is the part of the candidate database used by WriteBack
type AttrWriter interface {
	UpdateNodeAttrs(ctx context.Context, nodes map[uint64]Attrs, names []string) error
	UpdateEdgeAttrs(ctx context.Context, edges map[EdgeKey]Attrs, names []string) error
}

// Selection is the result of a tracker for one selection key
type Selection struct {
	Key   string
	Nodes map[uint64]bool
	Edges map[EdgeKey]bool
}

// NewSelection is the constructor
func NewSelection(key string) *Selection {
	return &Selection{Key: key, Nodes: make(map[uint64]bool), Edges: make(map[EdgeKey]bool)}
}

// NumSelectedEdges returns the number of edges set to true
func (s *Selection) NumSelectedEdges() int {
	count := 0
	for _, v := range s.Edges {
		if v {
			count++
		}
	}
	return count
}

/*
TrackGraph is a frame-indexed directed graph over a bounded region
*/
type TrackGraph struct {
	FrameKey  string
	roi       roi.ROI
	begin     int64
	end       int64
	graph     *CandidateGraph
	frames    map[int64][]uint64 // node ids per frame, ascending
	nodeFrame map[uint64]int64
	edges     []EdgeKey            // ascending (u, v)
	prev      map[uint64][]EdgeKey // edges from a node to its candidate predecessors
	next      map[uint64][]EdgeKey // edges from the candidate successors of a node
}

// New wraps a candidate graph slice, dropping nodes without a frame and edges that skip frames
func New(slice *CandidateGraph, frameKey string, r roi.ROI) *TrackGraph {
	logger := zap.L().Named("trackgraph")
	tg := &TrackGraph{
		FrameKey:  frameKey,
		roi:       r,
		graph:     slice,
		frames:    make(map[int64][]uint64),
		nodeFrame: make(map[uint64]int64),
		prev:      make(map[uint64][]EdgeKey),
		next:      make(map[uint64][]EdgeKey),
	}
	for _, id := range slice.SortedNodeIDs() {
		t, ok := slice.Nodes[id].Int(frameKey)
		if !ok {
			logger.Warn("node has no frame, skipping", zap.Uint64("node", id), zap.String("frameKey", frameKey))
			continue
		}
		tg.nodeFrame[id] = t
		tg.frames[t] = append(tg.frames[t], id)
	}
	for _, key := range slice.SortedEdgeKeys() {
		tu, uok := tg.nodeFrame[key.U]
		tv, vok := tg.nodeFrame[key.V]
		if !uok || !vok {
			continue
		}
		if tu != tv+1 {
			logger.Warn("edge does not connect adjacent frames, skipping",
				zap.Uint64("u", key.U), zap.Uint64("v", key.V), zap.Int64("tu", tu), zap.Int64("tv", tv))
			continue
		}
		tg.edges = append(tg.edges, key)
		tg.prev[key.U] = append(tg.prev[key.U], key)
		tg.next[key.V] = append(tg.next[key.V], key)
	}

	// frame bounds come from the ROI when it has any, otherwise from the nodes
	if !r.Empty() {
		tg.begin, tg.end = r.Begin(), r.FrameEnd()
	} else if len(tg.nodeFrame) > 0 {
		first := true
		for t := range tg.frames {
			if first || t < tg.begin {
				tg.begin = t
			}
			if first || t+1 > tg.end {
				tg.end = t + 1
			}
			first = false
		}
	}
	return tg
}

// ROI returns the region the graph was extracted from
func (tg *TrackGraph) ROI() roi.ROI { return tg.roi }

// Begin returns the first frame
func (tg *TrackGraph) Begin() int64 { return tg.begin }

// End returns the frame after the last frame
func (tg *TrackGraph) End() int64 { return tg.end }

// Graph returns the wrapped candidate graph
func (tg *TrackGraph) Graph() *CandidateGraph { return tg.graph }

// NumNodes returns the number of nodes with a frame
func (tg *TrackGraph) NumNodes() int { return len(tg.nodeFrame) }

// NumEdges returns the number of edges between adjacent frames
func (tg *TrackGraph) NumEdges() int { return len(tg.edges) }

// Frames returns the frames holding nodes, ascending
func (tg *TrackGraph) Frames() []int64 {
	frames := make([]int64, 0, len(tg.frames))
	for t := range tg.frames {
		frames = append(frames, t)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	return frames
}

// Nodes returns every node id, ordered by frame then id
func (tg *TrackGraph) Nodes() []uint64 {
	nodes := make([]uint64, 0, len(tg.nodeFrame))
	for _, t := range tg.Frames() {
		nodes = append(nodes, tg.frames[t]...)
	}
	return nodes
}

// NodesInFrame returns the node ids in frame t
func (tg *TrackGraph) NodesInFrame(t int64) []uint64 {
	return tg.frames[t]
}

// Node returns the attributes of a node
func (tg *TrackGraph) Node(id uint64) (Attrs, bool) {
	if _, ok := tg.nodeFrame[id]; !ok {
		return nil, false
	}
	return tg.graph.Nodes[id], true
}

// Frame returns the frame of a node
func (tg *TrackGraph) Frame(id uint64) int64 {
	return tg.nodeFrame[id]
}

// Position returns the spatial position of a node
func (tg *TrackGraph) Position(id uint64) r3.Vector {
	return tg.graph.Nodes[id].Position()
}

// Edges returns every edge, ascending (u, v)
func (tg *TrackGraph) Edges() []EdgeKey {
	return tg.edges
}

// Edge returns the attributes of an edge
func (tg *TrackGraph) Edge(u, v uint64) (Attrs, bool) {
	key := EdgeKey{U: u, V: v}
	for _, e := range tg.prev[u] {
		if e == key {
			return tg.graph.Edges[key], true
		}
	}
	return nil, false
}

// PrevEdges returns the edges linking n to the previous frame
func (tg *TrackGraph) PrevEdges(n uint64) []EdgeKey {
	return tg.prev[n]
}

// NextEdges returns the edges linking the next frame to n
func (tg *TrackGraph) NextEdges(n uint64) []EdgeKey {
	return tg.next[n]
}

// Apply copies a selection into the attributes of the wrapped graph, every edge gets the key
func (tg *TrackGraph) Apply(sel *Selection) {
	for _, key := range tg.edges {
		tg.graph.Edges[key][sel.Key] = sel.Edges[key]
	}
	for id := range tg.nodeFrame {
		tg.graph.Nodes[id][sel.Key] = sel.Nodes[id]
	}
}

// InROI reports whether the primary location of a node lies in r
func (tg *TrackGraph) InROI(id uint64, r roi.ROI) bool {
	t, ok := tg.nodeFrame[id]
	if !ok {
		return false
	}
	return r.ContainsNode(t, tg.Position(id))
}

// WriteBack copies the named attributes of entities located in writeROI to the store,
// an edge is located at its u node. It returns the number of nodes and edges sent.
func (tg *TrackGraph) WriteBack(ctx context.Context, store AttrWriter, writeROI roi.ROI, names []string) (int, int, error) {
	nodes := make(map[uint64]Attrs)
	for id := range tg.nodeFrame {
		if !tg.InROI(id, writeROI) {
			continue
		}
		if attrs := pick(tg.graph.Nodes[id], names); len(attrs) > 0 {
			nodes[id] = attrs
		}
	}
	edges := make(map[EdgeKey]Attrs)
	for _, key := range tg.edges {
		if !tg.InROI(key.U, writeROI) {
			continue
		}
		if attrs := pick(tg.graph.Edges[key], names); len(attrs) > 0 {
			edges[key] = attrs
		}
	}
	if len(nodes) > 0 {
		if err := store.UpdateNodeAttrs(ctx, nodes, names); err != nil {
			return 0, 0, fmt.Errorf("could not write node attributes: %w", err)
		}
	}
	if len(edges) > 0 {
		if err := store.UpdateEdgeAttrs(ctx, edges, names); err != nil {
			return len(nodes), 0, fmt.Errorf("could not write edge attributes: %w", err)
		}
	}
	return len(nodes), len(edges), nil
}

// pick returns the subset of attrs named in names
func pick(attrs Attrs, names []string) Attrs {
	picked := make(Attrs, len(names))
	for _, name := range names {
		if v, ok := attrs[name]; ok {
			picked[name] = v
		}
	}
	return picked
}
