package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/will-rowe/lintrack/src/metrics"
	"go.uber.org/zap"
)

// blockMinion pulls blocks from the boss and runs the block worker on each
type blockMinion struct {
	id           int
	inputChannel chan Block
	boss         *theBoss // pointer to the boss so the minion can access the worker and the output channel
	processed    int
}

// newBlockMinion is the constructor function
func newBlockMinion(id int, boss *theBoss, blocks chan Block) *blockMinion {
	return &blockMinion{
		id:           id,
		inputChannel: blocks,
		boss:         boss,
	}
}

// start is a method to start the minion running
func (minion *blockMinion) start(ctx context.Context, wg *sync.WaitGroup) {
	go func() {
		defer wg.Done()
		defer func() {
			minion.boss.Lock()
			minion.boss.workedCount += minion.processed
			minion.boss.Unlock()
		}()
		logger := minion.boss.logger.With(zap.Int("minion", minion.id))
		for block := range minion.inputChannel {

			// stop taking blocks once the run is cancelled, the remaining blocks stay unmarked
			if ctx.Err() != nil {
				return
			}
			start := time.Now()
			outcome, err := minion.boss.work(ctx, block)
			took := time.Since(start)
			if err != nil {
				outcome = metrics.OutcomeFailed
				logger.Error("block failed", zap.Int64("block", block.ID), zap.Stringer("write", block.WriteROI), zap.Error(err))
			} else {
				logger.Debug("block processed", zap.Int64("block", block.ID), zap.String("outcome", outcome), zap.Duration("took", took))
			}
			minion.boss.info.Metrics.ObserveBlock(minion.boss.step, outcome, took)
			minion.processed++
			select {
			case minion.boss.output <- &blockResult{block: block, outcome: outcome, took: took, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()
}
