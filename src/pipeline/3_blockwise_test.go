package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/will-rowe/lintrack/src/candidates"
	"github.com/will-rowe/lintrack/src/config"
	"github.com/will-rowe/lintrack/src/greedy"
	"github.com/will-rowe/lintrack/src/metrics"
	"github.com/will-rowe/lintrack/src/roi"
	"github.com/will-rowe/lintrack/src/solver"
	"github.com/will-rowe/lintrack/src/trackgraph"
)

/*
TEST DATA
*/

// a single track 1 (t0) <- 2 (t1) <- 3 (t2) <- 4 (t3), plus a lone detection 5 in t2
var (
	chainNodes = map[uint64]trackgraph.Attrs{
		1: {"t": 0, "z": 50.0, "y": 50.0, "x": 50.0, "score": 1.0},
		2: {"t": 1, "z": 50.0, "y": 50.0, "x": 51.0, "score": 1.0},
		3: {"t": 2, "z": 50.0, "y": 50.0, "x": 52.0, "score": 1.0},
		4: {"t": 3, "z": 50.0, "y": 50.0, "x": 53.0, "score": 1.0},
		5: {"t": 2, "z": 10.0, "y": 10.0, "x": 10.0, "score": 0.1},
	}
	chainEdges = map[trackgraph.EdgeKey]trackgraph.Attrs{
		{U: 2, V: 1}: {"prediction_distance": 0.1, "distance": 1.0},
		{U: 3, V: 2}: {"prediction_distance": 0.1, "distance": 1.0},
		{U: 4, V: 3}: {"prediction_distance": 0.1, "distance": 1.0},
	}
	everywhere = roi.New(roi.Coordinate{0, 0, 0, 0}, roi.Coordinate{4, 100, 100, 100})
)

/*
TEST PARAMETERS
*/

var testParameters = config.SolveParameters{
	WeightNodeScore:    -3,
	TrackCost:          2,
	WeightDivision:     -1,
	WeightChild:        -1,
	WeightContinuation: -1,
	WeightEdgeScore:    1,
	MaxCellMove:        5,
	FeatureFunc:        "identity",
	BlockSize:          roi.Coordinate{2, 100, 100, 100},
	Context:            roi.Coordinate{1, 0, 0, 0},
}

// recordingStore counts the node writes and can fail reads of chosen frames
type recordingStore struct {
	*candidates.DB
	mu          sync.Mutex
	nodeWrites  map[uint64]int
	failOnFrame map[int64]bool
}

func (store *recordingStore) UpdateNodeAttrs(ctx context.Context, nodes map[uint64]trackgraph.Attrs, names []string) error {
	store.mu.Lock()
	for id := range nodes {
		store.nodeWrites[id]++
	}
	store.mu.Unlock()
	return store.DB.UpdateNodeAttrs(ctx, nodes, names)
}

func (store *recordingStore) GetGraph(ctx context.Context, r roi.ROI, edgeAttrs []string) (*trackgraph.CandidateGraph, error) {
	store.mu.Lock()
	fail := store.failOnFrame[r.FrameEnd()-1]
	store.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("reading %v: %w", r, errRead)
	}
	return store.DB.GetGraph(ctx, r, edgeAttrs)
}

var errRead = errors.New("read failed")

func setupStore(t *testing.T) *recordingStore {
	t.Helper()
	db, err := candidates.Open(candidates.Options{Sample: "chain"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, db.WriteNodes(ctx, chainNodes))
	require.NoError(t, db.WriteEdges(ctx, chainEdges))
	return &recordingStore{DB: db, nodeWrites: make(map[uint64]int), failOnFrame: make(map[int64]bool)}
}

func setupDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "chain"), 0755))
	attrs := `{"offset": [0, 0, 0, 0], "shape": [4, 100, 100, 100], "resolution": [1, 1, 1, 1]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chain", "attributes.json"), []byte(attrs), 0644))
	return dir
}

func testInfo(t *testing.T, store candidates.Store, params ...config.SolveParameters) *Info {
	t.Helper()
	if len(params) == 0 {
		params = []config.SolveParameters{testParameters}
	}
	return &Info{
		NumWorkers: 2,
		FrameKey:   "t",
		Sample:     "chain",
		DataDir:    setupDataDir(t),
		Solve: config.SolveConfig{
			SolverType:            config.SolverBasic,
			PinExistingSelections: true,
			NodeLimit:             10000,
			Parameters:            params,
			Greedy:                config.GreedyConfig{Metric: greedy.MetricPredictionDistance},
		},
		Store:   store,
		Metrics: metrics.New(),
	}
}

// selections returns the value of key for every node and edge in the store
func selections(t *testing.T, store candidates.Store, key string) (map[uint64]interface{}, map[trackgraph.EdgeKey]interface{}) {
	t.Helper()
	g, err := store.GetGraph(context.Background(), everywhere, []string{key})
	require.NoError(t, err)
	nodes := make(map[uint64]interface{})
	for id, attrs := range g.Nodes {
		nodes[id] = attrs[key]
	}
	edges := make(map[trackgraph.EdgeKey]interface{})
	for e, attrs := range g.Edges {
		edges[e] = attrs[key]
	}
	return nodes, edges
}

/*
TESTS
*/

// the track crosses the block boundary at t=2, each node must be written by exactly one block
// and the result must match solving the whole volume at once
func TestSolveBlockwiseBoundary(t *testing.T) {
	store := setupStore(t)
	info := testInfo(t, store)
	ctx := context.Background()

	ok, err := SolveBlockwise(ctx, info)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, info.Summary)
	assert.Equal(t, 2, info.Summary.Blocks)
	assert.Equal(t, 2, info.Summary.Solved)
	assert.True(t, info.Summary.Complete)

	for id := range chainNodes {
		assert.Equal(t, 1, store.nodeWrites[id], "node %d", id)
	}

	key := candidates.SelectedKey(1)
	gotNodes, gotEdges := selections(t, store, key)

	// nothing is pinned here, the blockwise selections are already in the store
	whole, err := store.DB.GetGraph(ctx, everywhere, nil)
	require.NoError(t, err)
	_, sels, err := solver.Track(ctx, whole, "t", []config.SolveParameters{testParameters}, []string{key}, solver.Options{Config: config.SolveConfig{SolverType: config.SolverBasic}})
	require.NoError(t, err)
	wantNodes := make(map[uint64]interface{})
	for id, v := range sels[0].Nodes {
		wantNodes[id] = v
	}
	wantEdges := make(map[trackgraph.EdgeKey]interface{})
	for e, v := range sels[0].Edges {
		wantEdges[e] = v
	}
	if diff := cmp.Diff(wantNodes, gotNodes); diff != "" {
		t.Errorf("node selection mismatch (-whole +blockwise):\n%s", diff)
	}
	if diff := cmp.Diff(wantEdges, gotEdges); diff != "" {
		t.Errorf("edge selection mismatch (-whole +blockwise):\n%s", diff)
	}
	assert.Equal(t, true, gotEdges[trackgraph.EdgeKey{U: 3, V: 2}])
	assert.Equal(t, false, gotNodes[5])
}

func TestSolveBlockwiseIsIdempotent(t *testing.T) {
	store := setupStore(t)
	info := testInfo(t, store)
	ctx := context.Background()

	ok, err := SolveBlockwise(ctx, info)
	require.NoError(t, err)
	require.True(t, ok)
	key := candidates.SelectedKey(1)
	firstNodes, firstEdges := selections(t, store, key)

	// the step is all done so nothing is read or written
	info.Summary = nil
	ok, err = SolveBlockwise(ctx, info)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, info.Summary)
	secondNodes, secondEdges := selections(t, store, key)
	assert.Equal(t, firstNodes, secondNodes)
	assert.Equal(t, firstEdges, secondEdges)

	n, err := store.NumDone(ctx, StepName([]int64{1}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// a failed block stays unmarked and is the only block processed on the next run
func TestSolveBlockwiseResumes(t *testing.T) {
	store := setupStore(t)
	store.failOnFrame[3] = true
	info := testInfo(t, store)
	ctx := context.Background()
	step := StepName([]int64{1})

	ok, err := SolveBlockwise(ctx, info)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errRead)
	assert.Equal(t, 1, info.Summary.Failed)
	done, err := store.CheckDone(ctx, step, 0)
	require.NoError(t, err)
	assert.True(t, done)
	done, err = store.CheckDone(ctx, step, 1)
	require.NoError(t, err)
	assert.False(t, done)
	done, err = store.CheckAllDone(ctx, step)
	require.NoError(t, err)
	assert.False(t, done)

	store.failOnFrame[3] = false
	ok, err = SolveBlockwise(ctx, info)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, info.Summary.Skipped)
	assert.Equal(t, 1, info.Summary.Solved)
	_, edges := selections(t, store, candidates.SelectedKey(1))
	assert.Equal(t, true, edges[trackgraph.EdgeKey{U: 4, V: 3}])
}

func TestSolveBlockwiseSeveralParameterSets(t *testing.T) {
	store := setupStore(t)
	expensive := testParameters
	expensive.WeightNodeScore = 1
	info := testInfo(t, store, testParameters, expensive)
	ctx := context.Background()

	ok, err := SolveBlockwise(ctx, info)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StepName([]int64{2, 1}), info.Summary.Step)
	assert.Equal(t, []string{"selected_1", "selected_2"}, info.Summary.Keys)

	_, cheap := selections(t, store, "selected_1")
	_, costly := selections(t, store, "selected_2")
	for e := range chainEdges {
		assert.Equal(t, true, cheap[e], "edge %v", e)
		assert.Equal(t, false, costly[e], "edge %v", e)
	}
}

func TestSolveBlockwiseBlockMismatch(t *testing.T) {
	store := setupStore(t)
	other := testParameters
	other.Context = roi.Coordinate{2, 0, 0, 0}
	info := testInfo(t, store, testParameters, other)
	ok, err := SolveBlockwise(context.Background(), info)
	assert.False(t, ok)
	assert.ErrorIs(t, err, config.ErrBlockMismatch)
}

func TestSolveBlockwiseFromScratch(t *testing.T) {
	store := setupStore(t)
	info := testInfo(t, store)
	ctx := context.Background()
	ok, err := SolveBlockwise(ctx, info)
	require.NoError(t, err)
	require.True(t, ok)

	info.Solve.FromScratch = true
	ok, err = SolveBlockwise(ctx, info)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, info.Summary.Solved)
	assert.Equal(t, 0, info.Summary.Skipped)
}

func TestSolveBlockwiseLimitedFrames(t *testing.T) {
	store := setupStore(t)
	info := testInfo(t, store)
	info.Solve.Frames = []int64{0, 2}
	ok, err := SolveBlockwise(context.Background(), info)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, info.Summary.Blocks)

	nodes, edges := selections(t, store, candidates.SelectedKey(1))
	assert.Equal(t, true, edges[trackgraph.EdgeKey{U: 2, V: 1}])
	assert.Nil(t, edges[trackgraph.EdgeKey{U: 3, V: 2}])
	assert.Nil(t, nodes[3])
}

func TestSolveBlockwiseCancelled(t *testing.T) {
	store := setupStore(t)
	info := testInfo(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := SolveBlockwise(ctx, info)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestGreedyBlockwise(t *testing.T) {
	store := setupStore(t)
	info := testInfo(t, store)
	ctx := context.Background()

	ok, err := GreedyBlockwise(ctx, info)
	require.NoError(t, err)
	require.True(t, ok)
	step, err := GreedyStepName(info.Solve.Greedy)
	require.NoError(t, err)
	assert.Equal(t, []string{GreedySelectionKey(step)}, info.Summary.Keys)
	nodes, edges := selections(t, store, GreedySelectionKey(step))
	for e := range chainEdges {
		assert.Equal(t, true, edges[e], "edge %v", e)
	}
	assert.Equal(t, false, nodes[5])

	done, err := store.CheckAllDone(ctx, step)
	require.NoError(t, err)
	assert.True(t, done)

	// from scratch clears the step so every block is tracked again
	info.Solve.FromScratch = true
	ok, err = GreedyBlockwise(ctx, info)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, info.Summary.Solved)
}

// v in frame 0 sits just left of the x=50 seam, u1 and u2 are its candidate successors on either
// side. Whichever block runs second must see the successor the first one selected.
func TestGreedyBlockwiseSeam(t *testing.T) {
	db, err := candidates.Open(candidates.Options{Sample: "seam"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, db.WriteNodes(ctx, map[uint64]trackgraph.Attrs{
		1: {"t": 0, "z": 50.0, "y": 50.0, "x": 48.0, "score": 1.0},
		2: {"t": 1, "z": 50.0, "y": 50.0, "x": 39.0, "score": 1.0},
		3: {"t": 1, "z": 50.0, "y": 50.0, "x": 52.0, "score": 1.0},
	}))
	require.NoError(t, db.WriteEdges(ctx, map[trackgraph.EdgeKey]trackgraph.Attrs{
		{U: 2, V: 1}: {"prediction_distance": 1.0, "distance": 9.0},
		{U: 3, V: 1}: {"prediction_distance": 2.0, "distance": 4.0},
	}))

	params := testParameters
	params.BlockSize = roi.Coordinate{4, 100, 100, 50}
	params.Context = roi.Coordinate{0, 0, 0, 10}
	info := testInfo(t, db, params)
	info.NumWorkers = 1

	ok, err := GreedyBlockwise(ctx, info)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, info.Summary.Solved)

	step, err := GreedyStepName(info.Solve.Greedy)
	require.NoError(t, err)
	nodes, edges := selections(t, db, GreedySelectionKey(step))
	successors := 0
	for _, e := range []trackgraph.EdgeKey{{U: 2, V: 1}, {U: 3, V: 1}} {
		if edges[e] == true {
			successors++
		}
	}
	assert.Equal(t, 1, successors, "edges %v", edges)
	assert.Equal(t, true, nodes[1])
}

// switching the greedy settings and back must report the first settings' selection again
func TestGreedyBlockwiseSettingsSwitch(t *testing.T) {
	db, err := candidates.Open(candidates.Options{Sample: "switch"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, db.WriteNodes(ctx, map[uint64]trackgraph.Attrs{
		1: {"t": 0, "z": 50.0, "y": 50.0, "x": 50.0, "score": 1.0},
		2: {"t": 1, "z": 50.0, "y": 50.0, "x": 45.0, "score": 1.0},
		3: {"t": 1, "z": 50.0, "y": 50.0, "x": 51.0, "score": 1.0},
	}))
	// prediction distance prefers 2, distance prefers 3
	require.NoError(t, db.WriteEdges(ctx, map[trackgraph.EdgeKey]trackgraph.Attrs{
		{U: 2, V: 1}: {"prediction_distance": 1.0, "distance": 5.0},
		{U: 3, V: 1}: {"prediction_distance": 5.0, "distance": 1.0},
	}))
	a := config.GreedyConfig{Metric: greedy.MetricPredictionDistance}
	b := config.GreedyConfig{Metric: greedy.MetricDistance}

	run := func(cfg config.GreedyConfig) string {
		info := testInfo(t, db)
		info.Solve.Greedy = cfg
		ok, err := GreedyBlockwise(ctx, info)
		require.NoError(t, err)
		require.True(t, ok)
		step, err := GreedyStepName(cfg)
		require.NoError(t, err)
		return GreedySelectionKey(step)
	}
	keyA := run(a)
	keyB := run(b)
	require.NotEqual(t, keyA, keyB)
	assert.Equal(t, keyA, run(a))

	_, edges := selections(t, db, keyA)
	assert.Equal(t, true, edges[trackgraph.EdgeKey{U: 2, V: 1}])
	assert.Equal(t, false, edges[trackgraph.EdgeKey{U: 3, V: 1}])
	_, edges = selections(t, db, keyB)
	assert.Equal(t, false, edges[trackgraph.EdgeKey{U: 2, V: 1}])
	assert.Equal(t, true, edges[trackgraph.EdgeKey{U: 3, V: 1}])
}

func TestRunSummaryDumpLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	summary := &RunSummary{Step: "solve_1", Keys: []string{"selected_1"}, Blocks: 2, Solved: 2, Complete: true}
	require.NoError(t, summary.Dump(path))
	loaded := &RunSummary{}
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, summary, loaded)
}
