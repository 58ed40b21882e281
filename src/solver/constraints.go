package solver

import (
	"fmt"
	"sort"

	"github.com/will-rowe/lintrack/src/costs"
	"github.com/will-rowe/lintrack/src/milp"
	"go.uber.org/zap"
)

// addConstraints adds the structural constraints, they do not depend on the parameter set
func (s *Solver) addConstraints() error {
	adders := []func() error{
		s.addEdgeConstraints,
		s.addInterFrameConstraints,
		s.addCellStateConstraints,
	}
	if s.opts.Config.AddNodeDensityConstraints {
		adders = append(adders, s.addDensityConstraints)
	}
	for _, add := range adders {
		if err := add(); err != nil {
			return err
		}
	}
	return nil
}

// addEdgeConstraints: an edge can only be selected if both its nodes are (2e - u - v <= 0)
func (s *Solver) addEdgeConstraints() error {
	selected := s.nodeVars[costs.NodeSelected]
	for _, e := range s.graph.Edges() {
		c := milp.NewConstraint(milp.LessEqual, 0).
			Add(s.edgeVars[e], 2).
			Add(selected[e.U], -1).
			Add(selected[e.V], -1)
		if err := s.problem.AddConstraint(c); err != nil {
			return err
		}
	}
	return nil
}

// addInterFrameConstraints links each node to its edges into the previous and next frame
func (s *Solver) addInterFrameConstraints() error {
	selected := s.nodeVars[costs.NodeSelected]
	appear := s.nodeVars[costs.NodeAppear]
	split, hasSplit := s.nodeVars[costs.NodeSplit]
	for _, n := range s.graph.Nodes() {
		prev := s.graph.PrevEdges(n)
		next := s.graph.NextEdges(n)

		// at most one parent
		if len(prev) > 0 {
			c := milp.NewConstraint(milp.LessEqual, 1)
			for _, e := range prev {
				c.Add(s.edgeVars[e], 1)
			}
			if err := s.problem.AddConstraint(c); err != nil {
				return err
			}
		}

		// appear + sum(prev) - selected = 0
		c := milp.NewConstraint(milp.Equal, 0).Add(appear[n], 1).Add(selected[n], -1)
		for _, e := range prev {
			c.Add(s.edgeVars[e], 1)
		}
		if err := s.problem.AddConstraint(c); err != nil {
			return err
		}

		if !hasSplit {
			// no division indicator, at most one child
			if len(next) > 0 {
				c := milp.NewConstraint(milp.LessEqual, 1)
				for _, e := range next {
					c.Add(s.edgeVars[e], 1)
				}
				if err := s.problem.AddConstraint(c); err != nil {
					return err
				}
			}
			continue
		}

		// sum(next) - split <= 1 and sum(next) - 2 split >= 0
		upper := milp.NewConstraint(milp.LessEqual, 1).Add(split[n], -1)
		lower := milp.NewConstraint(milp.GreaterEqual, 0).Add(split[n], -2)
		for _, e := range next {
			upper.Add(s.edgeVars[e], 1)
			lower.Add(s.edgeVars[e], 1)
		}
		// split - selected <= 0
		onlySelected := milp.NewConstraint(milp.LessEqual, 0).Add(split[n], 1).Add(selected[n], -1)
		for _, c := range []*milp.Constraint{upper, lower, onlySelected} {
			if err := s.problem.AddConstraint(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// addCellStateConstraints: a selected node is in exactly one of split, child and continuation,
// and an edge links a child to a dividing parent or neither
func (s *Solver) addCellStateConstraints() error {
	child, hasChild := s.nodeVars[costs.NodeChild]
	continuation, hasContinuation := s.nodeVars[costs.NodeContinuation]
	split, hasSplit := s.nodeVars[costs.NodeSplit]
	if !hasChild || !hasContinuation || !hasSplit {
		return nil
	}
	selected := s.nodeVars[costs.NodeSelected]
	for _, n := range s.graph.Nodes() {
		c := milp.NewConstraint(milp.Equal, 0).
			Add(split[n], 1).
			Add(child[n], 1).
			Add(continuation[n], 1).
			Add(selected[n], -1)
		if err := s.problem.AddConstraint(c); err != nil {
			return err
		}
	}
	for _, e := range s.graph.Edges() {
		// e + split_v - child_u <= 1
		daughters := milp.NewConstraint(milp.LessEqual, 1).
			Add(s.edgeVars[e], 1).
			Add(split[e.V], 1).
			Add(child[e.U], -1)
		// e + child_u - split_v <= 1
		parent := milp.NewConstraint(milp.LessEqual, 1).
			Add(s.edgeVars[e], 1).
			Add(child[e.U], 1).
			Add(split[e.V], -1)
		for _, c := range []*milp.Constraint{daughters, parent} {
			if err := s.problem.AddConstraint(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// addDensityConstraints bounds the number of selected nodes around every node of a frame
func (s *Solver) addDensityConstraints() error {
	radius := s.opts.Config.DensityRadius
	limit := s.opts.Config.MaxNodesInRadius
	selected := s.nodeVars[costs.NodeSelected]
	seen := make(map[string]struct{})
	added := 0
	for _, t := range s.graph.Frames() {
		ids := s.graph.NodesInFrame(t)
		if len(ids) <= limit {
			continue
		}
		points := make([]cellPoint, len(ids))
		for i, n := range ids {
			points[i] = cellPoint{id: n, pos: s.graph.Position(n)}
		}
		hoods := neighbourhoods(points, radius)
		for _, n := range ids {
			hood := hoods[n]
			if len(hood) <= limit {
				continue
			}
			sort.Slice(hood, func(i, j int) bool { return hood[i] < hood[j] })
			sig := fmt.Sprint(hood)
			if _, dup := seen[sig]; dup {
				continue
			}
			seen[sig] = struct{}{}
			c := milp.NewConstraint(milp.LessEqual, float64(limit))
			for _, m := range hood {
				c.Add(selected[m], 1)
			}
			if err := s.problem.AddConstraint(c); err != nil {
				return err
			}
			added++
		}
	}
	if added > 0 {
		s.logger.Debug("added node density constraints", zap.Int("constraints", added), zap.Float64("radius", radius))
	}
	return nil
}
