package pipeline

import (
	"fmt"

	"github.com/will-rowe/lintrack/src/roi"
)

// Block is one unit of blockwise work
type Block struct {
	ID       int64          // linear index of the block in the grid
	Index    roi.Coordinate // position of the block in the grid
	Level    int            // blocks on the same level never touch each other's write ROI
	ReadROI  roi.ROI        // clipped to the source ROI
	WriteROI roi.ROI        // clipped to the source ROI
}

// String satisfies the Stringer interface
func (block Block) String() string {
	return fmt.Sprintf("block %d %v (level %d) write %v", block.ID, block.Index, block.Level, block.WriteROI)
}

/*
Plan tiles a source ROI into blocks.

The write ROIs tile the source ROI from its offset, the last block in each
dimension overhangs the source and is clipped. The read ROI of a block is
its write ROI grown by the context, so the read ROIs cover the total ROI
(the source grown by the context).
*/
type Plan struct {
	Source    roi.ROI
	Total     roi.ROI
	BlockSize roi.Coordinate
	Context   roi.Coordinate
	Grid      roi.Coordinate // number of blocks per dimension
	Stride    roi.Coordinate // level period per dimension
	Blocks    []Block        // ascending ID
}

// NewPlan is the constructor
func NewPlan(source roi.ROI, blockSize, context roi.Coordinate) (*Plan, error) {
	plan := &Plan{
		Source:    source,
		Total:     source.Grow(context),
		BlockSize: blockSize,
		Context:   context,
	}
	for d := 0; d < roi.NumDims; d++ {
		if blockSize[d] <= 0 {
			return nil, fmt.Errorf("block size must be positive in every dimension, got %v", blockSize)
		}
		if context[d] < 0 {
			return nil, fmt.Errorf("context must not be negative, got %v", context)
		}
		plan.Stride[d] = 1 + ceilDiv(context[d], blockSize[d])
		if !source.Empty() {
			plan.Grid[d] = ceilDiv(source.Shape[d], blockSize[d])
		}
	}
	if source.Empty() {
		return plan, nil
	}

	numBlocks := int64(1)
	for _, n := range plan.Grid {
		numBlocks *= n
	}
	plan.Blocks = make([]Block, 0, numBlocks)
	for id := int64(0); id < numBlocks; id++ {
		index := plan.unravel(id)
		write := roi.New(source.Offset.Add(index.Scale(blockSize)), blockSize)
		plan.Blocks = append(plan.Blocks, Block{
			ID:       id,
			Index:    index,
			Level:    plan.level(index),
			ReadROI:  write.Grow(context).Intersect(source),
			WriteROI: write.Intersect(source),
		})
	}
	return plan, nil
}

// NumLevels returns the number of conflict levels
func (plan *Plan) NumLevels() int {
	n := 1
	for _, s := range plan.Stride {
		n *= int(s)
	}
	return n
}

// Levels returns the blocks grouped by level, levels with no blocks are left out
func (plan *Plan) Levels() [][]Block {
	grouped := make([][]Block, plan.NumLevels())
	for _, block := range plan.Blocks {
		grouped[block.Level] = append(grouped[block.Level], block)
	}
	levels := grouped[:0]
	for _, blocks := range grouped {
		if len(blocks) > 0 {
			levels = append(levels, blocks)
		}
	}
	return levels
}

// unravel converts a linear block id to a grid index (last dimension fastest)
func (plan *Plan) unravel(id int64) roi.Coordinate {
	var index roi.Coordinate
	for d := roi.NumDims - 1; d >= 0; d-- {
		index[d] = id % plan.Grid[d]
		id /= plan.Grid[d]
	}
	return index
}

// level is the mixed radix number formed by the grid index modulo the stride
func (plan *Plan) level(index roi.Coordinate) int {
	level := int64(0)
	for d := 0; d < roi.NumDims; d++ {
		level = level*plan.Stride[d] + index[d]%plan.Stride[d]
	}
	return int(level)
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
