package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/will-rowe/lintrack/src/roi"
)

var testConfig = `
general:
  db_name: testdb
  sample: sampleA
  num_workers: 2
solve:
  solver_type: cell_state
  frames: [0, 10]
  limit_to_roi:
    offset: [0, 0, 0, 0]
    shape: [10, 100, 100, 100]
  parameters:
    - weight_node_score: -0.5
      selection_constant: 1.0
      track_cost: 2.0
      weight_edge_score: 0.1
      max_cell_move: 5
      feature_func: log
      block_size: [5, 50, 50, 50]
      context: [2, 10, 10, 10]
    - weight_node_score: -1.0
      block_size: [5, 50, 50, 50]
      context: [2, 10, 10, 10]
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, "testdb", cfg.General.DBName)
	assert.Equal(t, "t", cfg.General.FrameKey)
	assert.Equal(t, 2, cfg.General.NumWorkers)
	assert.Equal(t, SolverCellState, cfg.Solve.SolverType)
	assert.True(t, cfg.Solve.PinExistingSelections)
	assert.Equal(t, []int64{0, 10}, cfg.Solve.Frames)
	require.NotNil(t, cfg.Solve.LimitToROI)
	assert.Equal(t, roi.Coordinate{10, 100, 100, 100}, cfg.Solve.LimitToROI.Shape)
	require.Len(t, cfg.Solve.Parameters, 2)
	assert.Equal(t, "log", cfg.Solve.Parameters[0].FeatureFunc)
	assert.Equal(t, "identity", cfg.Solve.Parameters[1].FeatureFunc)
	assert.Equal(t, roi.Coordinate{5, 50, 50, 50}, cfg.Solve.Parameters[0].BlockSize)
	assert.Equal(t, "prediction_distance", cfg.Solve.Greedy.Metric)
	assert.False(t, cfg.Solve.AddNodeDensityConstraints)
	assert.NoError(t, CheckBlockConsistency(cfg.Solve.Parameters))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LINTRACK_SOLVE_SOLVER_TYPE", "basic")
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, SolverBasic, cfg.Solve.SolverType)
}

func TestLoadRejectsBadFeatureFunc(t *testing.T) {
	_, err := Load(writeConfig(t, `
solve:
  parameters:
    - feature_func: cube
      block_size: [1, 1, 1, 1]
`))
	assert.Error(t, err)
}

func TestLoadRejectsBadBlockSize(t *testing.T) {
	_, err := Load(writeConfig(t, `
solve:
  parameters:
    - block_size: [0, 1, 1, 1]
`))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "lintrack", cfg.General.DBName)
	assert.Empty(t, cfg.Solve.Parameters)
	// density constraints are opt-in
	assert.False(t, cfg.Solve.AddNodeDensityConstraints)
}

func TestCheckBlockConsistency(t *testing.T) {
	a := SolveParameters{BlockSize: roi.Coordinate{5, 10, 10, 10}, Context: roi.Coordinate{1, 2, 2, 2}}
	b := a
	require.NoError(t, CheckBlockConsistency([]SolveParameters{a, b}))

	b.Context[1] = 3
	err := CheckBlockConsistency([]SolveParameters{a, b})
	assert.True(t, errors.Is(err, ErrBlockMismatch))

	c := a
	c.BlockSize[0] = 6
	err = CheckBlockConsistency([]SolveParameters{a, c})
	assert.True(t, errors.Is(err, ErrBlockMismatch))

	assert.Error(t, CheckBlockConsistency(nil))
}

func TestCellCycleKeys(t *testing.T) {
	m, d, c := SolveParameters{}.CellCycleKeys()
	assert.Equal(t, []string{"score_mother", "score_daughter", "score_continuation"}, []string{m, d, c})
	m, d, c = SolveParameters{CellCycleKey: "cc_"}.CellCycleKeys()
	assert.Equal(t, []string{"cc_mother", "cc_daughter", "cc_continuation"}, []string{m, d, c})
}
