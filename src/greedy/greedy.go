// Package greedy is the shortest-edge-first alternative to the ILP solver, it never selects divisions
package greedy

import (
	"math"
	"sort"

	"github.com/will-rowe/lintrack/src/trackgraph"
	"go.uber.org/zap"
)

// Key is the selection key the greedy tracker writes under
const Key = "selected_greedy"

// the metrics edges can be ranked by
const (
	MetricPredictionDistance = "prediction_distance"
	MetricDistance           = "distance"
)

// Options holds the greedy tracker settings
type Options struct {
	Key           string  // Key if empty
	Metric        string  // MetricPredictionDistance if empty
	NodeThreshold float64 // nodes scoring below this are ignored, 0 keeps every node
	Logger        *zap.Logger

	// HasChild marks nodes with a selected successor stored outside the graph,
	// they take no further successor
	HasChild map[uint64]bool
}

// rankedEdge is an edge with its metric value
type rankedEdge struct {
	key    trackgraph.EdgeKey
	metric float64
}

// Track selects edges in ascending metric order (ties broken by (u, v)); a selected edge
// removes the other candidate predecessors of u and the other candidate successors of v.
// Nodes are selected when an edge uses them. Edges already carrying a value for the key
// keep it and count against the degree bound before any other edge is ranked.
func Track(tg *trackgraph.TrackGraph, opts Options) *trackgraph.Selection {
	if opts.Key == "" {
		opts.Key = Key
	}
	if opts.Metric == "" {
		opts.Metric = MetricPredictionDistance
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("greedy")

	sel := trackgraph.NewSelection(opts.Key)
	for _, n := range tg.Nodes() {
		sel.Nodes[n] = false
	}
	for _, e := range tg.Edges() {
		sel.Edges[e] = false
	}
	if tg.NumNodes() == 0 {
		return sel
	}

	dropped := make(map[uint64]struct{})
	if opts.NodeThreshold > 0 {
		for _, n := range tg.Nodes() {
			attrs, _ := tg.Node(n)
			if attrs.Float("score") < opts.NodeThreshold {
				dropped[n] = struct{}{}
			}
		}
		logger.Debug("removed nodes below threshold", zap.Int("dropped", len(dropped)), zap.Float64("threshold", opts.NodeThreshold))
	}

	hasParent := make(map[uint64]bool)
	hasChild := make(map[uint64]bool)
	for v, taken := range opts.HasChild {
		hasChild[v] = taken
	}
	pinned := make(map[trackgraph.EdgeKey]struct{})
	for _, e := range tg.Edges() {
		attrs, _ := tg.Edge(e.U, e.V)
		selected, ok := attrs.Bool(opts.Key)
		if !ok {
			continue
		}
		pinned[e] = struct{}{}
		if !selected {
			continue
		}
		sel.Edges[e] = true
		sel.Nodes[e.U] = true
		sel.Nodes[e.V] = true
		hasParent[e.U] = true
		hasChild[e.V] = true
	}
	if len(pinned) > 0 {
		logger.Debug("kept stored selections", zap.String("key", opts.Key), zap.Int("edges", len(pinned)))
	}

	candidates := make([]rankedEdge, 0, tg.NumEdges())
	for _, e := range tg.Edges() {
		if _, ok := pinned[e]; ok {
			continue
		}
		_, uDropped := dropped[e.U]
		_, vDropped := dropped[e.V]
		if uDropped || vDropped {
			continue
		}
		attrs, _ := tg.Edge(e.U, e.V)
		metric, ok := attrs.Lookup(opts.Metric)
		if !ok {
			metric = math.Inf(1)
		}
		candidates = append(candidates, rankedEdge{key: e, metric: metric})
	}

	// tg.Edges is (u, v) ordered so a stable sort keeps that order for ties
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].metric < candidates[j].metric
	})

	for _, c := range candidates {
		if hasParent[c.key.U] || hasChild[c.key.V] {
			continue
		}
		sel.Edges[c.key] = true
		sel.Nodes[c.key.U] = true
		sel.Nodes[c.key.V] = true
		hasParent[c.key.U] = true
		hasChild[c.key.V] = true
	}
	logger.Debug("selected shortest edges", zap.Int("candidates", len(candidates)), zap.Int("selected", sel.NumSelectedEdges()))
	return sel
}
