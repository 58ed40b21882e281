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

	"github.com/spf13/cobra"
	"github.com/will-rowe/lintrack/src/misc"
	"go.uber.org/zap"
)

// the command line arguments
var (
	parametersID *int64  // id of the parameter set to reset
	resetSample  *string // sample holding the selection
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the selection and done markers of a parameter set",
	Long:  `Clear the selection and done markers of a parameter set, so the next solve starts from scratch`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
	Run: func(cmd *cobra.Command, args []string) {
		runReset()
	},
}

func init() {
	parametersID = resetCmd.Flags().Int64("parametersID", 0, "id of the parameter set to reset - required")
	resetSample = resetCmd.Flags().StringP("sample", "s", "", "sample holding the selection - required")
	resetCmd.MarkFlagRequired("parametersID")
	resetCmd.MarkFlagRequired("sample")
	RootCmd.AddCommand(resetCmd)
}

/*
The main function for the reset sub-command
*/
func runReset() {
	store, err := openStore(*resetSample)
	misc.ErrorCheck(err)
	defer store.Close()
	ctx := context.Background()

	// only reset ids that were issued
	params, err := store.Parameters(ctx, *parametersID)
	if err != nil {
		store.Close()
		misc.ErrorCheck(fmt.Errorf("unknown parameters id %d: %w", *parametersID, err))
	}
	if err := store.ResetSelection(ctx, *parametersID); err != nil {
		store.Close()
		misc.ErrorCheck(err)
	}
	logger.Info("reset selection", zap.Int64("parametersID", *parametersID), zap.Float64("trackCost", params.TrackCost))
}
