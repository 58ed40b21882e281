package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/will-rowe/lintrack/src/candidates"
	"github.com/will-rowe/lintrack/src/config"
	"github.com/will-rowe/lintrack/src/greedy"
	"github.com/will-rowe/lintrack/src/metrics"
	"github.com/will-rowe/lintrack/src/roi"
	"github.com/will-rowe/lintrack/src/solver"
	"github.com/will-rowe/lintrack/src/trackgraph"
	"go.uber.org/zap"
)

// edge attributes the trackers read besides the selection keys
var trackingEdgeAttrs = []string{"prediction_distance", "distance", "score"}

// blockPlanner sends the levels of a plan to the boss
type blockPlanner struct {
	plan   *Plan
	output chan []Block
}

// newBlockPlanner is the constructor
func newBlockPlanner(plan *Plan) *blockPlanner {
	return &blockPlanner{plan: plan, output: make(chan []Block)}
}

// Run is the method to run this process, which satisfies the pipeline interface
func (proc *blockPlanner) Run(ctx context.Context) error {
	defer close(proc.output)
	for _, level := range proc.plan.Levels() {
		select {
		case proc.output <- level:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// blockCollector tallies the block results and marks the step done when every block succeeded
type blockCollector struct {
	info    *Info
	step    string
	input   chan *blockResult
	summary *RunSummary
}

// newBlockCollector is the constructor
func newBlockCollector(info *Info, step string, input chan *blockResult, summary *RunSummary) *blockCollector {
	return &blockCollector{info: info, step: step, input: input, summary: summary}
}

// Run is the method to run this process, which satisfies the pipeline interface;
// it returns the joined errors of the failed blocks
func (proc *blockCollector) Run(ctx context.Context) error {
	var errs []error
	for result := range proc.input {
		switch result.outcome {
		case metrics.OutcomeSolved:
			proc.summary.Solved++
		case metrics.OutcomeEmpty:
			proc.summary.Empty++
		case metrics.OutcomeSkipped:
			proc.summary.Skipped++
		case metrics.OutcomeFailed:
			proc.summary.Failed++
			errs = append(errs, fmt.Errorf("%v: %w", result.block, result.err))
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	processed := proc.summary.Solved + proc.summary.Empty + proc.summary.Skipped
	if processed != proc.summary.Blocks {
		return fmt.Errorf("only %d of %d blocks were processed", processed, proc.summary.Blocks)
	}
	if err := proc.info.Store.WriteAllDone(ctx, proc.step); err != nil {
		return fmt.Errorf("could not mark %s done: %w", proc.step, err)
	}
	proc.summary.Complete = true
	return nil
}

// sourceROI returns the ROI of the sample restricted to the configured frames and limit
func sourceROI(info *Info) (roi.ROI, error) {
	source, err := ReadSourceROI(info.DataDir, info.Sample)
	if err != nil {
		return source, err
	}
	if len(info.Solve.Frames) == 2 {
		info.logger().Info("limiting to frames", zap.Int64s("frames", info.Solve.Frames))
		source = source.WithFrames(info.Solve.Frames[0], info.Solve.Frames[1])
	}
	if info.Solve.LimitToROI != nil {
		info.logger().Info("limiting to roi", zap.Stringer("roi", *info.Solve.LimitToROI))
		source = source.Intersect(*info.Solve.LimitToROI)
	}
	return source, nil
}

// SolveBlockwise solves the ILP for every parameter set over the sample, block by block.
// Blocks already marked done are skipped, so an interrupted run picks up where it stopped.
// It returns true once every block of the step is done.
func SolveBlockwise(ctx context.Context, info *Info) (bool, error) {
	info.setDefaults()
	logger := info.logger()
	params := info.Solve.Parameters
	if err := config.CheckBlockConsistency(params); err != nil {
		return false, err
	}
	source, err := sourceROI(info)
	if err != nil {
		return false, err
	}

	pids := make([]int64, len(params))
	keys := make([]string, len(params))
	for i, p := range params {
		pid, err := info.Store.GetParametersID(ctx, p, false)
		if err != nil {
			return false, fmt.Errorf("could not get parameters id: %w", err)
		}
		pids[i] = pid
		keys[i] = candidates.SelectedKey(pid)
	}
	if info.Solve.FromScratch {
		for _, pid := range pids {
			if err := info.Store.ResetSelection(ctx, pid); err != nil {
				return false, err
			}
		}
	}
	step := StepName(pids)
	if err := info.Store.RegisterStep(ctx, step, pids); err != nil {
		return false, err
	}

	opts := solver.Options{Config: info.Solve, Logger: info.Logger}
	edgeAttrs := append(append([]string{}, keys...), trackingEdgeAttrs...)
	work := func(ctx context.Context, block Block) (string, error) {
		graph, err := readBlock(ctx, info, block, edgeAttrs)
		if err != nil || graph.NumEdges() == 0 {
			return markEmpty(ctx, info, step, block, err)
		}
		tg, selections, err := solver.Track(ctx, graph, info.FrameKey, params, keys, opts)
		if err != nil {
			return "", err
		}
		if tg == nil {
			return markEmpty(ctx, info, step, block, nil)
		}
		return writeBlock(ctx, info, step, block, tg, selections, keys)
	}
	logger.Info("solving", zap.String("step", step), zap.Strings("keys", keys), zap.Stringer("source", source))
	return runBlockwise(ctx, info, step, keys, source, params[0].BlockSize, params[0].Context, work)
}

// GreedyBlockwise runs the greedy tracker over the sample, block by block, using the
// block size and context of the first parameter set
func GreedyBlockwise(ctx context.Context, info *Info) (bool, error) {
	info.setDefaults()
	logger := info.logger()
	params := info.Solve.Parameters
	if err := config.CheckBlockConsistency(params); err != nil {
		return false, err
	}
	source, err := sourceROI(info)
	if err != nil {
		return false, err
	}
	step, err := GreedyStepName(info.Solve.Greedy)
	if err != nil {
		return false, err
	}
	key := GreedySelectionKey(step)
	if info.Solve.FromScratch {
		if err := info.Store.ResetStep(ctx, step, key); err != nil {
			return false, err
		}
	}

	keys := []string{key}
	edgeAttrs := append(append([]string{}, keys...), trackingEdgeAttrs...)
	work := func(ctx context.Context, block Block) (string, error) {
		graph, err := readBlock(ctx, info, block, edgeAttrs)
		if err != nil || graph.NumEdges() == 0 {
			return markEmpty(ctx, info, step, block, err)
		}
		// successors selected by earlier blocks may lie outside the read ROI
		hasChild, err := info.Store.SelectedChildren(ctx, graph.SortedNodeIDs(), key)
		if err != nil {
			return "", fmt.Errorf("could not read stored selections: %w", err)
		}
		tg := trackgraph.New(graph, info.FrameKey, graph.ROI)
		sel := greedy.Track(tg, greedy.Options{
			Key:           key,
			Metric:        info.Solve.Greedy.Metric,
			NodeThreshold: info.Solve.Greedy.NodeThreshold,
			Logger:        info.Logger,
			HasChild:      hasChild,
		})
		tg.Apply(sel)
		return writeBlock(ctx, info, step, block, tg, []*trackgraph.Selection{sel}, keys)
	}
	logger.Info("greedy tracking", zap.String("step", step), zap.String("key", key), zap.String("metric", info.Solve.Greedy.Metric), zap.Stringer("source", source))
	return runBlockwise(ctx, info, step, keys, source, params[0].BlockSize, params[0].Context, work)
}

// runBlockwise plans the blocks and runs the planner, boss and collector as a pipeline
func runBlockwise(ctx context.Context, info *Info, step string, keys []string, source roi.ROI, blockSize, blockContext roi.Coordinate, work blockWorker) (bool, error) {
	logger := info.logger().With(zap.String("step", step))
	done, err := info.Store.CheckAllDone(ctx, step)
	if err != nil {
		return false, err
	}
	if done {
		logger.Info("step is already completed")
		return true, nil
	}
	plan, err := NewPlan(source, blockSize, blockContext)
	if err != nil {
		return false, err
	}
	logger.Info("planned blocks",
		zap.Stringer("total", plan.Total),
		zap.Int("blocks", len(plan.Blocks)),
		zap.Int("levels", plan.NumLevels()),
		zap.Int("workers", info.NumWorkers))

	start := time.Now()
	summary := &RunSummary{Version: info.Version, RunID: info.RunID, Step: step, Keys: keys, Blocks: len(plan.Blocks)}
	info.Summary = summary
	planner := newBlockPlanner(plan)
	boss := newBoss(info, step, work, planner.output)
	collector := newBlockCollector(info, step, boss.output, summary)
	newPipeline := NewPipeline()
	newPipeline.AddProcesses(planner, boss, collector)
	err = newPipeline.Run(ctx)
	summary.Took = time.Since(start)
	logger.Info("finished",
		zap.Int("solved", summary.Solved),
		zap.Int("empty", summary.Empty),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", summary.Took))
	if err != nil {
		return false, err
	}
	return summary.Complete, nil
}

// readBlock fetches the candidate graph of a block's read ROI without dangling nodes
func readBlock(ctx context.Context, info *Info, block Block, edgeAttrs []string) (*trackgraph.CandidateGraph, error) {
	start := time.Now()
	graph, err := info.Store.GetGraph(ctx, block.ReadROI, edgeAttrs)
	if err != nil {
		return nil, fmt.Errorf("could not read graph: %w", err)
	}
	graph.RemoveDangling(info.FrameKey)
	info.Metrics.ObserveRead(graph.NumNodes(), graph.NumEdges())
	info.logger().Debug("read graph",
		zap.Int64("block", block.ID),
		zap.Int("nodes", graph.NumNodes()),
		zap.Int("edges", graph.NumEdges()),
		zap.Duration("took", time.Since(start)))
	return graph, nil
}

// markEmpty marks a block without edges as done, err is passed through from the read
func markEmpty(ctx context.Context, info *Info, step string, block Block, err error) (string, error) {
	if err != nil {
		return "", err
	}
	info.logger().Debug("no edges in block, skipping", zap.Int64("block", block.ID), zap.Stringer("read", block.ReadROI))
	if err := info.Store.WriteDone(ctx, step, block.ID); err != nil {
		return "", err
	}
	return metrics.OutcomeEmpty, nil
}

// writeBlock writes the selections located in the write ROI and marks the block done
func writeBlock(ctx context.Context, info *Info, step string, block Block, tg *trackgraph.TrackGraph, selections []*trackgraph.Selection, keys []string) (string, error) {
	if _, _, err := tg.WriteBack(ctx, info.Store, block.WriteROI, keys); err != nil {
		return "", err
	}
	for _, sel := range selections {
		written := 0
		for key, selected := range sel.Edges {
			if selected && tg.InROI(key.U, block.WriteROI) {
				written++
			}
		}
		info.Metrics.ObserveSelected(sel.Key, written)
	}
	if err := info.Store.WriteDone(ctx, step, block.ID); err != nil {
		return "", err
	}
	return metrics.OutcomeSolved, nil
}
