package costs

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/will-rowe/lintrack/src/config"
	"github.com/will-rowe/lintrack/src/roi"
	"github.com/will-rowe/lintrack/src/trackgraph"
)

var testParams = config.SolveParameters{
	WeightNodeScore:    -2,
	SelectionConstant:  1,
	TrackCost:          5,
	WeightDivision:     -1,
	DivisionConstant:   0.5,
	WeightChild:        -3,
	WeightContinuation: -4,
	WeightEdgeScore:    0.5,
	MaxCellMove:        10,
	FeatureFunc:        "identity",
}

var testWindow = Window{
	FrameKey: "t",
	Begin:    2,
	ROI:      roi.New(roi.Coordinate{2, 0, 0, 0}, roi.Coordinate{5, 100, 100, 100}),
}

func TestParseFeatureFunc(t *testing.T) {
	for tag, want := range map[string]FeatureFunc{"identity": Identity, "noop": Identity, "log": Log, "square": Square} {
		got, err := ParseFeatureFunc(tag)
		require.NoError(t, err)
		assert.Equal(t, want, got, tag)
	}
	_, err := ParseFeatureFunc("cube")
	assert.True(t, errors.Is(err, ErrUnknownFeatureFunc))

	assert.Equal(t, 9.0, Square.Apply(3))
	assert.InDelta(t, 0.0, Log.Apply(1), 1e-12)
	assert.False(t, math.IsInf(Log.Apply(0), -1))
}

func TestNodeCostsBasic(t *testing.T) {
	cfg := config.SolveConfig{SolverType: config.SolverBasic}
	table, err := NodeCosts(testParams, cfg, testWindow, nil)
	require.NoError(t, err)
	assert.Equal(t, []Indicator{NodeAppear, NodeSelected, NodeSplit}, table.Indicators())

	node := trackgraph.Attrs{"t": 3, "z": 50.0, "y": 50.0, "x": 50.0, "score": 0.5}
	assert.Equal(t, []float64{-1, 1}, table.Costs(NodeSelected, node))
	assert.Equal(t, 0.0, table.Total(NodeSelected, node))
	assert.Equal(t, []float64{5}, table.Costs(NodeAppear, node))
	assert.Equal(t, []float64{1}, table.Costs(NodeSplit, node))
	assert.Nil(t, table.Costs(NodeChild, node))
}

func TestNodeCostsCellState(t *testing.T) {
	cfg := config.SolveConfig{SolverType: config.SolverCellState}
	params := testParams
	params.FeatureFunc = "square"
	table, err := NodeCosts(params, cfg, testWindow, nil)
	require.NoError(t, err)
	node := trackgraph.Attrs{"t": 3, "score_mother": 2.0, "score_daughter": 1.0, "score_continuation": 0.5}
	assert.Equal(t, []float64{-4, 0.5}, table.Costs(NodeSplit, node))
	assert.Equal(t, []float64{-3}, table.Costs(NodeChild, node))
	assert.Equal(t, []float64{-1}, table.Costs(NodeContinuation, node))

	params.CellCycleKey = "cc_"
	table, err = NodeCosts(params, cfg, testWindow, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.0, 0.5}, table.Costs(NodeSplit, node))
	assert.Equal(t, []float64{-4, 0.5}, table.Costs(NodeSplit, trackgraph.Attrs{"cc_mother": 2}))
}

func TestNodeCostsUnknownSolverType(t *testing.T) {
	table, err := NodeCosts(testParams, config.SolveConfig{SolverType: "custom"}, testWindow, nil)
	require.NoError(t, err)
	assert.False(t, table.Has(NodeSplit))
	assert.False(t, table.Has(NodeChild))
	assert.True(t, table.Has(NodeSelected))
	assert.True(t, table.Has(NodeAppear))
}

func TestNodeCostsUnknownFeatureFunc(t *testing.T) {
	params := testParams
	params.FeatureFunc = "cube"
	_, err := NodeCosts(params, config.SolveConfig{SolverType: config.SolverBasic}, testWindow, nil)
	assert.True(t, errors.Is(err, ErrUnknownFeatureFunc))
	_, err = EdgeCosts(params, config.SolveConfig{})
	assert.True(t, errors.Is(err, ErrUnknownFeatureFunc))
}

func TestAppearCostBoundary(t *testing.T) {
	inner := trackgraph.Attrs{"t": 4, "z": 50.0, "y": 50.0, "x": 50.0}
	first := trackgraph.Attrs{"t": 2, "z": 50.0, "y": 50.0, "x": 50.0}
	border := trackgraph.Attrs{"t": 4, "z": 50.0, "y": 95.0, "x": 50.0}
	lowBorder := trackgraph.Attrs{"t": 4, "z": 50.0, "y": 50.0, "x": 9.0}

	table, err := NodeCosts(testParams, config.SolveConfig{SolverType: config.SolverBasic}, testWindow, nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, table.Total(NodeAppear, inner))
	assert.Equal(t, 0.0, table.Total(NodeAppear, first))
	assert.Equal(t, 5.0, table.Total(NodeAppear, border), "border is priced without border awareness")

	table, err = NodeCosts(testParams, config.SolveConfig{SolverType: config.SolverBasic, CheckNodeCloseToROI: true}, testWindow, nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, table.Total(NodeAppear, inner))
	assert.Equal(t, 0.0, table.Total(NodeAppear, first))
	assert.Equal(t, 0.0, table.Total(NodeAppear, border))
	assert.Equal(t, 0.0, table.Total(NodeAppear, lowBorder))
}

func TestEdgeCosts(t *testing.T) {
	table, err := EdgeCosts(testParams, config.SolveConfig{SolverType: config.SolverBasic})
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, table.Costs(EdgeSelected, trackgraph.Attrs{"prediction_distance": 4.0}))
	assert.Equal(t, []float64{0}, table.Costs(EdgeSelected, trackgraph.Attrs{}))
}
