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
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/will-rowe/lintrack/src/misc"
	"go.uber.org/zap"
)

// the command line arguments
var (
	nodesFile    *string // JSON lines file of candidate nodes
	edgesFile    *string // JSON lines file of candidate edges
	importSample *string // sample to import into
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load candidate nodes and edges into the candidate database",
	Long: `Load candidate nodes and edges into the candidate database.

Both files hold one JSON object per line (optionally gzipped). Nodes need an "id",
the frame attribute and z, y, x; edges need "source" (the cell in the later frame)
and "target" (the cell it links back to).`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
	Run: func(cmd *cobra.Command, args []string) {
		runImport()
	},
}

func init() {
	nodesFile = importCmd.Flags().String("nodes", "", "candidate nodes (.jsonl or .jsonl.gz) - required")
	edgesFile = importCmd.Flags().String("edges", "", "candidate edges (.jsonl or .jsonl.gz)")
	importSample = importCmd.Flags().StringP("sample", "s", "", "sample to import into - required")
	importCmd.MarkFlagRequired("nodes")
	importCmd.MarkFlagRequired("sample")
	RootCmd.AddCommand(importCmd)
}

/*
A function to check user supplied parameters
*/
func importParamCheck() error {
	for _, file := range []string{*nodesFile, *edgesFile} {
		if file == "" {
			continue
		}
		if err := misc.CheckFile(file); err != nil {
			return err
		}
		if err := misc.CheckExt(file, []string{"jsonl", "json", "ndjson"}); err != nil {
			return err
		}
	}
	return nil
}

/*
The main function for the import sub-command
*/
func runImport() {
	misc.ErrorCheck(importParamCheck())
	if *profiling {
		defer profile.Start(profile.ProfilePath("./")).Stop()
	}
	start := time.Now()
	store, err := openStore(*importSample)
	misc.ErrorCheck(err)
	defer store.Close()

	ctx := context.Background()
	nodes, err := store.ImportNodes(ctx, *nodesFile)
	misc.ErrorCheck(err)
	logger.Info("imported nodes", zap.Int("nodes", nodes), zap.String("file", *nodesFile))
	if *edgesFile != "" {
		edges, err := store.ImportEdges(ctx, *edgesFile)
		misc.ErrorCheck(err)
		logger.Info("imported edges", zap.Int("edges", edges), zap.String("file", *edgesFile))
	}
	logger.Info("finished", zap.String("sample", *importSample), zap.Duration("took", time.Since(start)), zap.String("memory", misc.PrintMemUsage()))
}
