package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/will-rowe/lintrack/src/metrics"
	"go.uber.org/zap"
)

// blockWorker processes one block and returns its outcome
type blockWorker func(ctx context.Context, block Block) (string, error)

// blockResult is what a minion reports for a block
type blockResult struct {
	block   Block
	outcome string
	took    time.Duration
	err     error
}

// theBoss is used to orchestrate the minions
type theBoss struct {
	info          *Info             // the runtime info for the pipeline
	step          string            // the done-marker namespace
	work          blockWorker       // what the minions do with each block
	input         chan []Block      // the boss receives one level of blocks at a time
	output        chan *blockResult // used to send block results downstream
	minions       []*blockMinion    // used to keep a record of the minions for the current level
	receivedCount int               // the number of blocks the boss is sent during its lifetime
	skippedCount  int               // the number of blocks already marked done
	workedCount   int               // the number of blocks the minions ran the worker on
	sync.Mutex                      // allows minions to update the counts
	logger        *zap.Logger
}

// newBoss will initialise and return theBoss
func newBoss(info *Info, step string, work blockWorker, input chan []Block) *theBoss {
	return &theBoss{
		info:   info,
		step:   step,
		work:   work,
		input:  input,
		output: make(chan *blockResult, BUFFERSIZE),
		logger: info.logger().With(zap.String("step", step)),
	}
}

// Run is the method to run this process, which satisfies the pipeline interface;
// levels are processed one after another and the minions of a level are all done before the next starts
func (theBoss *theBoss) Run(ctx context.Context) error {
	defer close(theBoss.output)
	for {
		var level []Block
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case level, ok = <-theBoss.input:
		}
		if !ok {
			theBoss.logger.Info("boss finished", zap.Int("blocks", theBoss.receivedCount), zap.Int("skipped", theBoss.skippedCount), zap.Int("worked", theBoss.workedCount))
			return nil
		}
		if err := theBoss.runLevel(ctx, level); err != nil {
			return err
		}
	}
}

// runLevel sends the blocks of one level that are not done yet to the minions and waits for them
func (theBoss *theBoss) runLevel(ctx context.Context, level []Block) error {
	theBoss.receivedCount += len(level)
	todo := make([]Block, 0, len(level))
	for _, block := range level {
		done, err := theBoss.info.Store.CheckDone(ctx, theBoss.step, block.ID)
		if err != nil {
			return fmt.Errorf("could not check %v: %w", block, err)
		}
		if !done {
			todo = append(todo, block)
			continue
		}
		theBoss.skippedCount++
		theBoss.info.Metrics.ObserveBlock(theBoss.step, metrics.OutcomeSkipped, 0)
		select {
		case theBoss.output <- &blockResult{block: block, outcome: metrics.OutcomeSkipped}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if len(todo) == 0 {
		return nil
	}

	// launch the minions, never more than there are blocks
	numMinions := theBoss.info.NumWorkers
	if numMinions > len(todo) {
		numMinions = len(todo)
	}
	blocks := make(chan Block, len(todo))
	for _, block := range todo {
		blocks <- block
	}
	close(blocks)
	var wg sync.WaitGroup
	theBoss.minions = make([]*blockMinion, numMinions)
	for i := 0; i < numMinions; i++ {
		minion := newBlockMinion(i, theBoss, blocks)
		wg.Add(1)
		minion.start(ctx, &wg)
		theBoss.minions[i] = minion
	}
	wg.Wait()
	theBoss.logger.Debug("level finished", zap.Int("level", todo[0].Level), zap.Int("blocks", len(todo)), zap.Int("minions", numMinions))
	return ctx.Err()
}
