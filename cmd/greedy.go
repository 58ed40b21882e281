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
	"github.com/spf13/cobra"
	"github.com/will-rowe/lintrack/src/misc"
	"github.com/will-rowe/lintrack/src/pipeline"
)

// the command line arguments
var (
	greedyFlags   *blockwiseFlags
	metric        *string  // edge attribute to rank by
	nodeThreshold *float64 // ignore nodes scoring below this
)

// greedyCmd represents the greedy command
var greedyCmd = &cobra.Command{
	Use:   "greedy",
	Short: "Track with the greedy shortest-edge-first baseline, block by block",
	Long: `Track with the greedy shortest-edge-first baseline, block by block.

The selection is written under selected_greedy_<hash>, the hash changing with the
greedy settings, so each setting keeps its own selection. Divisions are never selected.
Block size and context come from the first parameter set in the config.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("metric") {
			trackingConfig.Solve.Greedy.Metric = *metric
		}
		if cmd.Flags().Changed("nodeThreshold") {
			trackingConfig.Solve.Greedy.NodeThreshold = *nodeThreshold
		}
		runBlockwise("greedy", greedyFlags, pipeline.GreedyBlockwise)
	},
}

func init() {
	greedyFlags = addBlockwiseFlags(greedyCmd)
	metric = greedyCmd.Flags().String("metric", "prediction_distance", "edge attribute to rank edges by (prediction_distance or distance)")
	nodeThreshold = greedyCmd.Flags().Float64("nodeThreshold", 0, "ignore nodes with a score below this")
	RootCmd.AddCommand(greedyCmd)
}
