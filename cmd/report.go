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

	"github.com/spf13/cobra"
	"github.com/will-rowe/lintrack/src/misc"
	"github.com/will-rowe/lintrack/src/pipeline"
	"github.com/will-rowe/lintrack/src/reporting"
	"go.uber.org/zap"
)

// the command line arguments
var (
	reportRegion *regionFlags
	reportKey    *string // selection key to report on
	reportDir    *string // directory to write the report to
	reportPlot   *bool   // also render the plots
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise a selection as per-frame counts and tracks",
	Long:  `Summarise a selection as per-frame counts and tracks, written as CSV files bundled into a tarball`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
	Run: func(cmd *cobra.Command, args []string) {
		runReport()
	},
}

func init() {
	reportRegion = addRegionFlags(reportCmd)
	reportKey = reportCmd.Flags().StringP("key", "k", "", "selection key to report on, e.g. selected_1 or selected_greedy_<hash> - required")
	reportDir = reportCmd.Flags().StringP("outDir", "o", "./lintrack-report", "directory to write the report to")
	reportPlot = reportCmd.Flags().Bool("plot", false, "also plot the per-frame counts and the track lengths")
	reportCmd.MarkFlagRequired("key")
	RootCmd.AddCommand(reportCmd)
}

/*
The main function for the report sub-command
*/
func runReport() {
	misc.ErrorCheck(reportRegion.apply())
	store, err := openStore(trackingConfig.General.Sample)
	misc.ErrorCheck(err)
	defer store.Close()

	source, err := pipeline.ReadSourceROI(trackingConfig.General.DataDir, trackingConfig.General.Sample)
	misc.ErrorCheck(err)
	if frames := trackingConfig.Solve.Frames; len(frames) == 2 {
		source = source.WithFrames(frames[0], frames[1])
	}
	if limit := trackingConfig.Solve.LimitToROI; limit != nil {
		source = source.Intersect(*limit)
	}
	graph, err := store.GetGraph(context.Background(), source, []string{*reportKey})
	misc.ErrorCheck(err)
	graph.RemoveDangling(trackingConfig.General.FrameKey)

	summary, err := reporting.Summarize(graph, trackingConfig.General.FrameKey, *reportKey)
	misc.ErrorCheck(err)
	logger.Info("summarised selection",
		zap.String("key", summary.Key),
		zap.Int("nodes", summary.SelectedNodes),
		zap.Int("edges", summary.SelectedEdges),
		zap.Int("tracks", len(summary.Tracks)),
		zap.Int("divisions", summary.Divisions),
		zap.Float64("meanTrackLength", summary.MeanTrackLength))
	tarball, err := reporting.ExportTracks(*reportDir, summary)
	misc.ErrorCheck(err)
	logger.Info("written report", zap.String("file", tarball))
	if *reportPlot {
		files, err := reporting.PlotSummary(*reportDir, summary)
		misc.ErrorCheck(err)
		logger.Info("written plots", zap.Strings("files", files))
	}
}
