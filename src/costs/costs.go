// Package costs turns a parameter set into the cost terms of each tracking indicator
package costs

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/will-rowe/lintrack/src/config"
	"github.com/will-rowe/lintrack/src/roi"
	"github.com/will-rowe/lintrack/src/trackgraph"
	"go.uber.org/zap"
)

// ErrUnknownFeatureFunc is returned for a feature_func tag that has no implementation
var ErrUnknownFeatureFunc = errors.New("unknown (non-linear) feature function")

// logFloor keeps log features finite for zero scores
const logFloor = 1e-9

// Indicator names an optimization indicator
type Indicator string

// the indicators known to the solvers
const (
	NodeSelected     Indicator = "node_selected"
	NodeAppear       Indicator = "node_appear"
	NodeSplit        Indicator = "node_split"
	NodeChild        Indicator = "node_child"
	NodeContinuation Indicator = "node_continuation"
	EdgeSelected     Indicator = "edge_selected"
)

// FeatureFunc is applied to a score before it is weighted
type FeatureFunc int

// the supported feature functions
const (
	Identity FeatureFunc = iota
	Log
	Square
)

// ParseFeatureFunc resolves a feature_func tag, "noop" is an alias of identity
func ParseFeatureFunc(tag string) (FeatureFunc, error) {
	switch tag {
	case "", "identity", "noop":
		return Identity, nil
	case "log":
		return Log, nil
	case "square":
		return Square, nil
	}
	return Identity, fmt.Errorf("%w: %q", ErrUnknownFeatureFunc, tag)
}

// Apply evaluates the feature function
func (f FeatureFunc) Apply(x float64) float64 {
	switch f {
	case Log:
		return math.Log(math.Max(x, logFloor))
	case Square:
		return x * x
	}
	return x
}

// Window describes the solving window a node cost is evaluated in
type Window struct {
	FrameKey string
	Begin    int64
	ROI      roi.ROI
}

// WindowOf returns the window of a track graph
func WindowOf(tg *trackgraph.TrackGraph) Window {
	return Window{FrameKey: tg.FrameKey, Begin: tg.Begin(), ROI: tg.ROI()}
}

// Cost is one of the cost variants below
type Cost interface {
	Costs(attrs trackgraph.Attrs) []float64
}

// ScoreWeightedThreshold costs Weight*f(attrs[Key]) plus a fixed Threshold
type ScoreWeightedThreshold struct {
	Key       string
	Weight    float64
	Threshold float64
	Feature   FeatureFunc
}

// Costs satisfies the Cost interface
func (c ScoreWeightedThreshold) Costs(attrs trackgraph.Attrs) []float64 {
	return []float64{c.Feature.Apply(attrs.Float(c.Key)) * c.Weight, c.Threshold}
}

// ScoreWeighted costs Weight*f(attrs[Key])
type ScoreWeighted struct {
	Key     string
	Weight  float64
	Feature FeatureFunc
}

// Costs satisfies the Cost interface
func (c ScoreWeighted) Costs(attrs trackgraph.Attrs) []float64 {
	return []float64{c.Feature.Apply(attrs.Float(c.Key)) * c.Weight}
}

// ZeroIf is the predicate under which a Constant cost drops to zero
type ZeroIf int

// the predicates of a Constant cost
const (
	ZeroNever ZeroIf = iota
	ZeroFirstFrame
	ZeroFirstFrameOrBorder
)

// Constant costs Weight unless its ZeroIf predicate holds for the object
type Constant struct {
	Weight   float64
	ZeroIf   ZeroIf
	Window   Window
	Distance float64
}

// Costs satisfies the Cost interface
func (c Constant) Costs(attrs trackgraph.Attrs) []float64 {
	if c.zero(attrs) {
		return []float64{0}
	}
	return []float64{c.Weight}
}

// zero evaluates the predicate
func (c Constant) zero(attrs trackgraph.Attrs) bool {
	if c.ZeroIf == ZeroNever {
		return false
	}
	if t, ok := attrs.Int(c.Window.FrameKey); ok && t == c.Window.Begin {
		return true
	}
	if c.ZeroIf == ZeroFirstFrameOrBorder {
		return c.Window.ROI.CloseToBorder(attrs.Position(), c.Distance)
	}
	return false
}

// Table maps the active indicators to their cost variant
type Table map[Indicator]Cost

// Has reports whether an indicator is active
func (t Table) Has(ind Indicator) bool {
	_, ok := t[ind]
	return ok
}

// Costs returns the cost terms of an indicator, nil if it is not active
func (t Table) Costs(ind Indicator, attrs trackgraph.Attrs) []float64 {
	c, ok := t[ind]
	if !ok {
		return nil
	}
	return c.Costs(attrs)
}

// Total returns the summed cost terms of an indicator
func (t Table) Total(ind Indicator, attrs trackgraph.Attrs) float64 {
	total := 0.0
	for _, c := range t.Costs(ind, attrs) {
		total += c
	}
	return total
}

// Indicators returns the active indicators in a stable order
func (t Table) Indicators() []Indicator {
	inds := make([]Indicator, 0, len(t))
	for ind := range t {
		inds = append(inds, ind)
	}
	sort.Slice(inds, func(i, j int) bool { return inds[i] < inds[j] })
	return inds
}

// NodeCosts builds the node indicator table for a parameter set
func NodeCosts(params config.SolveParameters, cfg config.SolveConfig, window Window, logger *zap.Logger) (Table, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	feature, err := ParseFeatureFunc(params.FeatureFunc)
	if err != nil {
		return nil, err
	}
	appear := Constant{Weight: params.TrackCost, ZeroIf: ZeroFirstFrame, Window: window}
	if cfg.CheckNodeCloseToROI {
		appear.ZeroIf = ZeroFirstFrameOrBorder
		appear.Distance = params.MaxCellMove
	}
	table := Table{
		NodeSelected: ScoreWeightedThreshold{
			Key:       "score",
			Weight:    params.WeightNodeScore,
			Threshold: params.SelectionConstant,
			Feature:   feature,
		},
		NodeAppear: appear,
	}
	switch cfg.SolverType {
	case config.SolverBasic:
		table[NodeSplit] = Constant{Weight: 1}
	case config.SolverCellState:
		mother, daughter, continuation := params.CellCycleKeys()
		table[NodeSplit] = ScoreWeightedThreshold{Key: mother, Weight: params.WeightDivision, Threshold: params.DivisionConstant, Feature: feature}
		table[NodeChild] = ScoreWeighted{Key: daughter, Weight: params.WeightChild, Feature: feature}
		table[NodeContinuation] = ScoreWeighted{Key: continuation, Weight: params.WeightContinuation, Feature: feature}
	default:
		logger.Info("solver_type unknown for node indicators, skipping", zap.String("solverType", cfg.SolverType))
	}
	return table, nil
}

// EdgeCosts builds the edge indicator table for a parameter set
func EdgeCosts(params config.SolveParameters, cfg config.SolveConfig) (Table, error) {
	feature, err := ParseFeatureFunc(params.FeatureFunc)
	if err != nil {
		return nil, err
	}
	return Table{
		EdgeSelected: ScoreWeighted{Key: "prediction_distance", Weight: params.WeightEdgeScore, Feature: feature},
	}, nil
}
