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
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/will-rowe/lintrack/src/candidates"
	"github.com/will-rowe/lintrack/src/config"
	"github.com/will-rowe/lintrack/src/misc"
	"github.com/will-rowe/lintrack/src/version"
	"go.uber.org/zap"
)

// the command line arguments
var (
	configFile *string // viper config file holding the parameter sets and solve options
	dbDir      *string // directory holding the candidate database, in memory if empty
	dbName     *string // name of the candidate database
	logFile    *string // JSON log file, rotated
	logLevel   *string // debug, info, warn or error
	proc       *int    // number of workers to use
	profiling  *bool   // create profile for go pprof
)

// set up by the root command before any sub-command runs
var (
	trackingConfig *config.TrackingConfig
	logger         *zap.Logger
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "lintrack",
	Short: "track cell lineages through time-lapse microscopy by solving candidate graphs blockwise",
	Long: `
#####################################################################################
		LINTRACK: cell LINeage TRACKing
#####################################################################################

 LINTRACK selects cell tracks from a graph of candidate detections and links.

 The candidate graph is split into overlapping spatiotemporal blocks which are solved
 in parallel, either with an integer linear program over a set of cost parameters or
 with a greedy shortest-edge-first baseline. Finished blocks are recorded, so a run
 that is interrupted picks up where it stopped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = misc.StartLogging(*logFile, *logLevel)
		if err != nil {
			return err
		}
		trackingConfig, err = config.Load(*configFile)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("dbDir") {
			trackingConfig.General.DBDir = *dbDir
		}
		if flags.Changed("dbName") {
			trackingConfig.General.DBName = *dbName
		}
		if flags.Changed("processors") {
			trackingConfig.General.NumWorkers = *proc
		}
		if trackingConfig.General.NumWorkers <= 0 || trackingConfig.General.NumWorkers > runtime.NumCPU() {
			trackingConfig.General.NumWorkers = runtime.NumCPU()
		}
		runtime.GOMAXPROCS(trackingConfig.General.NumWorkers)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

/*
A function to initalise the command line arguments
*/
func init() {
	RootCmd.Version = version.Get().String()
	configFile = RootCmd.PersistentFlags().StringP("config", "c", "", "config file (yaml, toml or json) with the parameter sets and solve options")
	dbDir = RootCmd.PersistentFlags().String("dbDir", "", "directory holding the candidate database (in memory if not set)")
	dbName = RootCmd.PersistentFlags().String("dbName", "lintrack", "name of the candidate database")
	logFile = RootCmd.PersistentFlags().String("logFile", "", "also write a JSON log to this file")
	logLevel = RootCmd.PersistentFlags().String("logLevel", "info", "log level (debug, info, warn, error)")
	proc = RootCmd.PersistentFlags().IntP("processors", "p", 1, "number of processors to use")
	profiling = RootCmd.PersistentFlags().Bool("profiling", false, "create the files needed to profile LINTRACK using the go tool pprof")
}

// openStore opens the candidate database for a sample using the loaded config
func openStore(sample string) (*candidates.DB, error) {
	return candidates.Open(candidates.Options{
		Dir:      trackingConfig.General.DBDir,
		Name:     trackingConfig.General.DBName,
		Sample:   sample,
		FrameKey: trackingConfig.General.FrameKey,
		Logger:   logger,
	})
}
