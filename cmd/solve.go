// Copyright © 2017 Will Rowe <will.rowe@stfc.ac.uk>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/will-rowe/lintrack/src/metrics"
	"github.com/will-rowe/lintrack/src/misc"
	"github.com/will-rowe/lintrack/src/pipeline"
	"github.com/will-rowe/lintrack/src/roi"
	"go.uber.org/zap"
)

// regionFlags are the sample and region flags shared by the solve, greedy and report commands
type regionFlags struct {
	sample   *string
	dataDir  *string
	frames   *[]int64
	limitROI *string
}

// addRegionFlags registers the region flags on a command
func addRegionFlags(cmd *cobra.Command) *regionFlags {
	region := &regionFlags{
		sample:   cmd.Flags().StringP("sample", "s", "", "sample to track - required"),
		dataDir:  cmd.Flags().StringP("dataDir", "d", "", "directory holding <sample>/attributes.json - required"),
		frames:   cmd.Flags().Int64Slice("frames", nil, "only track frames [begin,end)"),
		limitROI: cmd.Flags().String("limitROI", "", "only track inside t,z,y,x,dt,dz,dy,dx"),
	}
	cmd.MarkFlagRequired("sample")
	cmd.MarkFlagRequired("dataDir")
	return region
}

// apply copies the region flags into the loaded config
func (region *regionFlags) apply() error {
	if err := misc.CheckDir(*region.dataDir); err != nil {
		return err
	}
	trackingConfig.General.Sample = *region.sample
	trackingConfig.General.DataDir = *region.dataDir
	if len(*region.frames) != 0 {
		if len(*region.frames) != 2 || (*region.frames)[1] <= (*region.frames)[0] {
			return fmt.Errorf("frames must be begin,end with end > begin, got %v", *region.frames)
		}
		trackingConfig.Solve.Frames = *region.frames
	}
	if *region.limitROI != "" {
		r, err := roi.Parse(*region.limitROI)
		if err != nil {
			return err
		}
		trackingConfig.Solve.LimitToROI = &r
	}
	return nil
}

// blockwiseFlags are the flags shared by the solve and greedy commands
type blockwiseFlags struct {
	region      *regionFlags
	fromScratch *bool   // clear earlier selections and done markers first
	workers     *int    // minions per conflict level
	metricsFile *string // write the run metrics here in the prometheus text format
	summaryFile *string // write the run summary here as JSON
}

// addBlockwiseFlags registers the blockwise flags on a command
func addBlockwiseFlags(cmd *cobra.Command) *blockwiseFlags {
	return &blockwiseFlags{
		region:      addRegionFlags(cmd),
		fromScratch: cmd.Flags().Bool("fromScratch", false, "clear earlier selections and done markers before tracking"),
		workers:     cmd.Flags().Int("workers", 0, "number of blocks solved at once (defaults to --processors)"),
		metricsFile: cmd.Flags().String("metricsFile", "", "write the run metrics to this file (prometheus text format)"),
		summaryFile: cmd.Flags().String("summary", "", "write the run summary to this file (JSON)"),
	}
}

// the command line arguments
var solveFlags *blockwiseFlags

// solveCmd represents the solve command
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve the tracking ILP for every parameter set, block by block",
	Long:  `Solve the tracking ILP for every parameter set, block by block`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
	Run: func(cmd *cobra.Command, args []string) {
		runBlockwise("solve", solveFlags, pipeline.SolveBlockwise)
	},
}

func init() {
	solveFlags = addBlockwiseFlags(solveCmd)
	RootCmd.AddCommand(solveCmd)
}

/*
The main function for the solve and greedy sub-commands
*/
func runBlockwise(name string, flags *blockwiseFlags, run func(context.Context, *pipeline.Info) (bool, error)) {
	misc.ErrorCheck(flags.region.apply())
	if *flags.fromScratch {
		trackingConfig.Solve.FromScratch = true
	}
	if *flags.workers > 0 {
		trackingConfig.General.NumWorkers = *flags.workers
	}
	misc.ErrorCheck(trackingConfig.Validate())

	// start profiling
	if *profiling {
		defer profile.Start(profile.ProfilePath("./")).Stop()
	}
	logger.Info("starting the "+name+" command",
		zap.String("sample", trackingConfig.General.Sample),
		zap.Int("workers", trackingConfig.General.NumWorkers),
		zap.Int("parameterSets", len(trackingConfig.Solve.Parameters)),
		zap.String("solverType", trackingConfig.Solve.SolverType))

	store, err := openStore(trackingConfig.General.Sample)
	misc.ErrorCheck(err)
	defer store.Close()

	info := pipeline.NewInfo(trackingConfig, store, logger)
	info.Metrics = metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ok, err := run(ctx, info)

	if *flags.metricsFile != "" {
		if werr := info.Metrics.WriteToTextfile(*flags.metricsFile); werr != nil {
			logger.Warn("could not write metrics", zap.Error(werr))
		}
	}
	if *flags.summaryFile != "" && info.Summary != nil {
		if werr := info.Summary.Dump(*flags.summaryFile); werr != nil {
			logger.Warn("could not write run summary", zap.Error(werr))
		}
	}
	if err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			logger.Error("block error", zap.String("error", line))
		}
	}
	if !ok {
		store.Close()
		misc.ErrorCheck(fmt.Errorf("%s did not complete, rerun to process the remaining blocks", name))
	}
	logger.Info("finished", zap.String("memory", misc.PrintMemUsage()))
}
