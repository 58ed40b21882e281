package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/will-rowe/lintrack/src/config"
	"github.com/will-rowe/lintrack/src/roi"
)

func TestPlanTwoBlocks(t *testing.T) {
	source := roi.New(roi.Coordinate{0, 0, 0, 0}, roi.Coordinate{4, 100, 100, 100})
	plan, err := NewPlan(source, roi.Coordinate{2, 100, 100, 100}, roi.Coordinate{1, 0, 0, 0})
	require.NoError(t, err)
	require.Len(t, plan.Blocks, 2)
	assert.Equal(t, roi.New(roi.Coordinate{-1, 0, 0, 0}, roi.Coordinate{6, 100, 100, 100}), plan.Total)
	assert.Equal(t, 2, plan.NumLevels())

	first, second := plan.Blocks[0], plan.Blocks[1]
	assert.Equal(t, int64(0), first.ID)
	assert.Equal(t, roi.New(roi.Coordinate{0, 0, 0, 0}, roi.Coordinate{2, 100, 100, 100}), first.WriteROI)
	assert.Equal(t, roi.New(roi.Coordinate{0, 0, 0, 0}, roi.Coordinate{3, 100, 100, 100}), first.ReadROI)
	assert.Equal(t, int64(1), second.ID)
	assert.Equal(t, roi.New(roi.Coordinate{2, 0, 0, 0}, roi.Coordinate{2, 100, 100, 100}), second.WriteROI)
	assert.Equal(t, roi.New(roi.Coordinate{1, 0, 0, 0}, roi.Coordinate{3, 100, 100, 100}), second.ReadROI)
	assert.NotEqual(t, first.Level, second.Level)

	levels := plan.Levels()
	require.Len(t, levels, 2)
	assert.Equal(t, int64(0), levels[0][0].ID)
	assert.Equal(t, int64(1), levels[1][0].ID)
}

// every point of the source lies in exactly one write ROI
func TestPlanPartition(t *testing.T) {
	source := roi.New(roi.Coordinate{3, 10, 0, 0}, roi.Coordinate{5, 7, 4, 1})
	plan, err := NewPlan(source, roi.Coordinate{2, 3, 3, 10}, roi.Coordinate{1, 2, 4, 0})
	require.NoError(t, err)
	assert.Equal(t, roi.Coordinate{3, 3, 2, 1}, plan.Grid)
	require.Len(t, plan.Blocks, 18)

	end := source.End()
	for ti := source.Offset[0]; ti < end[0]; ti++ {
		for z := source.Offset[1]; z < end[1]; z++ {
			for y := source.Offset[2]; y < end[2]; y++ {
				p := roi.Coordinate{ti, z, y, 0}
				owners := 0
				for _, block := range plan.Blocks {
					if block.WriteROI.Contains(p) {
						owners++
					}
				}
				assert.Equal(t, 1, owners, "point %v", p)
			}
		}
	}
	for _, block := range plan.Blocks {
		assert.False(t, block.WriteROI.Empty())
		assert.Equal(t, block.WriteROI, block.WriteROI.Intersect(source))
		assert.Equal(t, block.ReadROI, block.ReadROI.Intersect(source))
		assert.Equal(t, block.WriteROI, block.WriteROI.Intersect(block.ReadROI))
	}
}

// blocks of one level never read what another block of that level writes
func TestPlanLevelsDoNotConflict(t *testing.T) {
	for _, tc := range []struct {
		name    string
		context roi.Coordinate
		levels  int
	}{
		{"no context", roi.Coordinate{0, 0, 0, 0}, 1},
		{"parity", roi.Coordinate{1, 2, 0, 0}, 4},
		{"wide context", roi.Coordinate{5, 0, 0, 0}, 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			source := roi.New(roi.Coordinate{0, 0, 0, 0}, roi.Coordinate{12, 9, 10, 10})
			plan, err := NewPlan(source, roi.Coordinate{2, 3, 10, 10}, tc.context)
			require.NoError(t, err)
			assert.Equal(t, tc.levels, plan.NumLevels())
			for _, level := range plan.Levels() {
				for _, a := range level {
					for _, b := range level {
						if a.ID == b.ID {
							continue
						}
						assert.True(t, a.ReadROI.Intersect(b.WriteROI).Empty(), "%v reads %v", a, b)
					}
				}
			}
		})
	}
}

func TestPlanErrors(t *testing.T) {
	source := roi.New(roi.Coordinate{}, roi.Coordinate{4, 4, 4, 4})
	_, err := NewPlan(source, roi.Coordinate{0, 1, 1, 1}, roi.Coordinate{})
	assert.Error(t, err)
	_, err = NewPlan(source, roi.Coordinate{1, 1, 1, 1}, roi.Coordinate{-1, 0, 0, 0})
	assert.Error(t, err)

	plan, err := NewPlan(roi.ROI{}, roi.Coordinate{1, 1, 1, 1}, roi.Coordinate{})
	require.NoError(t, err)
	assert.Empty(t, plan.Blocks)
	assert.Empty(t, plan.Levels())
}

func TestStepName(t *testing.T) {
	assert.Equal(t, "solve_7", StepName([]int64{7}))
	a := StepName([]int64{3, 1, 2})
	b := StepName([]int64{2, 3, 1})
	assert.Equal(t, a, b)
	assert.Len(t, a, len("solve_")+16)
	assert.NotEqual(t, a, StepName([]int64{1, 2}))

	g1, err := GreedyStepName(config.GreedyConfig{Metric: "distance"})
	require.NoError(t, err)
	g2, err := GreedyStepName(config.GreedyConfig{Metric: "prediction_distance"})
	require.NoError(t, err)
	assert.NotEqual(t, g1, g2)
	g3, err := GreedyStepName(config.GreedyConfig{Metric: "distance"})
	require.NoError(t, err)
	assert.Equal(t, g1, g3)
}

func TestReadSourceROI(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sample"), 0755))
	attrs := `{"offset": [0, 10, 20, 30], "shape": [5, 10, 10, 10], "resolution": [1, 5, 1, 1]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample", "attributes.json"), []byte(attrs), 0644))

	r, err := ReadSourceROI(dir, "sample")
	require.NoError(t, err)
	assert.Equal(t, roi.New(roi.Coordinate{0, 10, 20, 30}, roi.Coordinate{5, 50, 10, 10}), r)

	_, err = ReadSourceROI(dir, "missing")
	assert.Error(t, err)
}
