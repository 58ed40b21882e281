// Package solver builds and solves the integer program that selects tracks from a TrackGraph
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/will-rowe/lintrack/src/config"
	"github.com/will-rowe/lintrack/src/costs"
	"github.com/will-rowe/lintrack/src/milp"
	"github.com/will-rowe/lintrack/src/trackgraph"
	"go.uber.org/zap"
)

// ErrInfeasible is returned when the constraints admit no selection
var ErrInfeasible = errors.New("tracking problem is infeasible")

// ErrState is returned when an operation is called in the wrong state
var ErrState = errors.New("solver is in the wrong state")

// State is the lifecycle state of a Solver
type State int

// the solver states
const (
	Uninitialized State = iota
	Built
	Solved
)

// String satisfies the Stringer interface
func (s State) String() string {
	return [...]string{"uninitialized", "built", "solved"}[s]
}

// Options holds the run-wide settings of a Solver
type Options struct {
	Config  config.SolveConfig
	Backend milp.Backend // a BranchAndBound with Config.NodeLimit if nil
	Logger  *zap.Logger
}

/*
Solver holds the variables and constraints for one TrackGraph, the objective is swapped per parameter set
*/
type Solver struct {
	graph   *trackgraph.TrackGraph
	params  config.SolveParameters
	key     string
	opts    Options
	backend milp.Backend
	logger  *zap.Logger
	state   State

	problem   *milp.Problem
	nodeVars  map[costs.Indicator]map[uint64]int
	edgeVars  map[trackgraph.EdgeKey]int
	nodeCosts costs.Table
	edgeCosts costs.Table
}

// New builds the variables and constraints for a graph and sets the objective for a parameter set
func New(graph *trackgraph.TrackGraph, params config.SolveParameters, key string, opts Options) (*Solver, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Solver{
		graph:   graph,
		opts:    opts,
		backend: opts.Backend,
		logger:  opts.Logger.Named("solver"),
	}
	if s.backend == nil {
		s.backend = milp.NewBranchAndBound(opts.Config.NodeLimit)
	}
	if err := s.setCosts(params, key); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := s.buildIndicators(); err != nil {
		return nil, err
	}
	if err := s.addConstraints(); err != nil {
		return nil, err
	}
	s.setObjective()
	s.pin()
	s.state = Built
	s.logger.Debug("built ILP",
		zap.Int("variables", s.problem.NumVariables()),
		zap.Int("constraints", s.problem.NumConstraints()),
		zap.Duration("took", time.Since(start)))
	return s, nil
}

// State returns the lifecycle state
func (s *Solver) State() State { return s.state }

// Key returns the selection key the objective is currently set for
func (s *Solver) Key() string { return s.key }

// Problem returns the underlying binary program
func (s *Solver) Problem() *milp.Problem { return s.problem }

// UpdateObjective recomputes the cost coefficients (and pins) for a new parameter set, the structure is kept
func (s *Solver) UpdateObjective(params config.SolveParameters, key string) error {
	if s.state == Uninitialized {
		return fmt.Errorf("%w: update objective while %s", ErrState, s.state)
	}
	if err := s.setCosts(params, key); err != nil {
		return err
	}
	s.problem.ResetObjective()
	s.setObjective()
	s.problem.ClearFixed()
	s.pin()
	s.state = Built
	return nil
}

// Solve runs the backend and returns the selection for the current key
func (s *Solver) Solve(ctx context.Context) (*trackgraph.Selection, error) {
	if s.state != Built {
		return nil, fmt.Errorf("%w: solve while %s", ErrState, s.state)
	}
	sel := trackgraph.NewSelection(s.key)
	if s.graph.NumNodes() == 0 || s.graph.NumEdges() == 0 {
		s.logger.Info("nothing to optimize, skipping", zap.Int("nodes", s.graph.NumNodes()), zap.Int("edges", s.graph.NumEdges()))
		s.state = Solved
		return sel, nil
	}
	assignment, err := s.backend.Solve(ctx, s.problem)
	if err != nil {
		if errors.Is(err, milp.ErrInfeasible) {
			return nil, fmt.Errorf("%w for key %s: %w", ErrInfeasible, s.key, err)
		}
		return nil, fmt.Errorf("optimization failed for key %s: %w", s.key, err)
	}
	for n, v := range s.nodeVars[costs.NodeSelected] {
		sel.Nodes[n] = assignment.Value(v)
	}
	for e, v := range s.edgeVars {
		sel.Edges[e] = assignment.Value(v)
	}
	s.logger.Debug("solved ILP",
		zap.String("key", s.key),
		zap.Float64("objective", assignment.Objective),
		zap.Int("bbNodes", assignment.Nodes),
		zap.Int("selectedEdges", sel.NumSelectedEdges()))
	s.state = Solved
	return sel, nil
}

// setCosts resolves the cost tables for a parameter set
func (s *Solver) setCosts(params config.SolveParameters, key string) error {
	nodeCosts, err := costs.NodeCosts(params, s.opts.Config, costs.WindowOf(s.graph), s.logger)
	if err != nil {
		return err
	}
	edgeCosts, err := costs.EdgeCosts(params, s.opts.Config)
	if err != nil {
		return err
	}
	if s.nodeCosts != nil && !sameIndicators(s.nodeCosts, nodeCosts) {
		return fmt.Errorf("%w: parameter set changes the indicator set", ErrState)
	}
	s.params, s.key = params, key
	s.nodeCosts, s.edgeCosts = nodeCosts, edgeCosts
	return nil
}

// buildIndicators creates one binary per node per active node indicator and one per edge
func (s *Solver) buildIndicators() error {
	s.problem = milp.NewProblem()
	s.nodeVars = make(map[costs.Indicator]map[uint64]int)
	s.edgeVars = make(map[trackgraph.EdgeKey]int)
	for _, ind := range s.nodeCosts.Indicators() {
		vars := make(map[uint64]int, s.graph.NumNodes())
		for _, n := range s.graph.Nodes() {
			vars[n] = s.problem.AddVariable(fmt.Sprintf("%s_%d", ind, n))
		}
		s.nodeVars[ind] = vars
	}
	if _, ok := s.nodeVars[costs.NodeSelected]; !ok {
		return fmt.Errorf("node_selected indicator is missing")
	}
	for _, e := range s.graph.Edges() {
		s.edgeVars[e] = s.problem.AddVariable(fmt.Sprintf("%s_%d_%d", costs.EdgeSelected, e.U, e.V))
	}
	return nil
}

// setObjective writes the cost coefficients of every variable
func (s *Solver) setObjective() {
	for ind, vars := range s.nodeVars {
		for n, v := range vars {
			attrs, _ := s.graph.Node(n)
			s.problem.SetObjective(v, s.nodeCosts.Total(ind, attrs))
		}
	}
	for e, v := range s.edgeVars {
		attrs, _ := s.graph.Edge(e.U, e.V)
		s.problem.SetObjective(v, s.edgeCosts.Total(costs.EdgeSelected, attrs))
	}
}

// pin fixes nodes and edges that already carry a stored value for the key
func (s *Solver) pin() {
	if !s.opts.Config.PinExistingSelections {
		return
	}
	pinned := 0
	for n, v := range s.nodeVars[costs.NodeSelected] {
		attrs, _ := s.graph.Node(n)
		if value, ok := attrs.Bool(s.key); ok {
			s.problem.Fix(v, value)
			pinned++
		}
	}
	for e, v := range s.edgeVars {
		attrs, _ := s.graph.Edge(e.U, e.V)
		if value, ok := attrs.Bool(s.key); ok {
			s.problem.Fix(v, value)
			pinned++
		}
	}
	if pinned > 0 {
		s.logger.Debug("pinned existing selections", zap.String("key", s.key), zap.Int("pinned", pinned))
	}
}

// sameIndicators reports whether two tables activate the same indicators
func sameIndicators(a, b costs.Table) bool {
	ai, bi := a.Indicators(), b.Indicators()
	if len(ai) != len(bi) {
		return false
	}
	for i := range ai {
		if ai[i] != bi[i] {
			return false
		}
	}
	return true
}
