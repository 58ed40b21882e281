package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/will-rowe/lintrack/src/config"
	"github.com/will-rowe/lintrack/src/trackgraph"
	"go.uber.org/zap"
)

// Track solves a candidate graph for a sequence of parameter sets, building the ILP once and
// swapping the objective per set. Each selection is applied to the graph under its key before
// the next set is solved. The returned TrackGraph is nil when the graph holds no nodes.
func Track(ctx context.Context, graph *trackgraph.CandidateGraph, frameKey string, params []config.SolveParameters, keys []string, opts Options) (*trackgraph.TrackGraph, []*trackgraph.Selection, error) {
	if len(params) != len(keys) {
		return nil, nil, fmt.Errorf("%d parameter sets and %d selected keys", len(params), len(keys))
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// nodes without the division scores cannot be priced, drop them
	for _, p := range params {
		if p.CellCycleKey == "" {
			continue
		}
		mother, _, _ := p.CellCycleKeys()
		for _, id := range graph.SortedNodeIDs() {
			if _, ok := graph.Nodes[id][mother]; !ok {
				logger.Warn("node does not have cell cycle key, removing", zap.Uint64("node", id), zap.String("key", mother))
				graph.RemoveNode(id)
			}
		}
	}
	if graph.NumNodes() == 0 {
		logger.Info("no nodes in graph, skipping solving step")
		return nil, nil, nil
	}

	tg := trackgraph.New(graph, frameKey, graph.ROI)
	var s *Solver
	selections := make([]*trackgraph.Selection, 0, len(params))
	totalSolveTime := time.Duration(0)
	for i, p := range params {
		var err error
		if s == nil {
			s, err = New(tg, p, keys[i], opts)
		} else {
			err = s.UpdateObjective(p, keys[i])
		}
		if err != nil {
			return nil, nil, err
		}
		start := time.Now()
		sel, err := s.Solve(ctx)
		if err != nil {
			return nil, nil, err
		}
		took := time.Since(start)
		totalSolveTime += took
		logger.Info("solved ILP", zap.String("key", keys[i]), zap.Duration("took", took))
		tg.Apply(sel)
		selections = append(selections, sel)
	}
	logger.Info("solved ILP for all parameters", zap.Int("parameterSets", len(params)), zap.Duration("took", totalSolveTime))
	return tg, selections, nil
}
