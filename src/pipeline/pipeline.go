// Package pipeline contains the blockwise tracking pipeline, built on the composable pipeline pattern from the Gopher Academy article by S. Lampa - Patterns for composable concurrent pipelines in Go (https://blog.gopheracademy.com/advent-2015/composable-pipelines-improvements/)
package pipeline

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// BUFFERSIZE is the size of the buffer used by the pipeline channels
const BUFFERSIZE int = 64

// process is the interface used by pipeline
type process interface {
	Run(ctx context.Context) error
}

// Pipeline is the base type, which takes any types that satisfy the process interface
type Pipeline struct {
	processes []process
}

// NewPipeline is the pipeline constructor
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// AddProcess is a method to add a single process to the pipeline
func (pipeline *Pipeline) AddProcess(proc process) {
	pipeline.processes = append(pipeline.processes, proc)
}

// AddProcesses is a method to add multiple processes to the pipeline
func (pipeline *Pipeline) AddProcesses(procs ...process) {
	for _, proc := range procs {
		pipeline.AddProcess(proc)
	}
}

// Run is a method that starts the pipeline and returns the first error a process returns
func (pipeline *Pipeline) Run(ctx context.Context) error {
	if len(pipeline.processes) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// each pipeline process is run in a Go routine, except the last process which is run in the foreground to control the flow
	last := len(pipeline.processes) - 1
	for _, proc := range pipeline.processes[:last] {
		proc := proc
		g.Go(func() error {
			return proc.Run(gctx)
		})
	}
	if err := pipeline.processes[last].Run(gctx); err != nil {
		// unblock the upstream processes before waiting on them, an upstream error is the cause
		cancel()
		if upstream := g.Wait(); upstream != nil && !errors.Is(upstream, context.Canceled) {
			return upstream
		}
		return err
	}
	return g.Wait()
}

// GetNumProcesses is a method to return the number of processes registered in a pipeline
func (pipeline *Pipeline) GetNumProcesses() int {
	return len(pipeline.processes)
}
