package pipeline

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/will-rowe/lintrack/src/candidates"
	"github.com/will-rowe/lintrack/src/config"
	"github.com/will-rowe/lintrack/src/metrics"
	"github.com/will-rowe/lintrack/src/version"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Info stores the runtime information
type Info struct {
	Version    string
	RunID      string
	NumWorkers int
	FrameKey   string
	Sample     string
	DataDir    string
	Solve      config.SolveConfig
	Store      candidates.Store

	// the following fields are optional
	Metrics *metrics.Collector
	Logger  *zap.Logger
	Summary *RunSummary // set by the blockwise runs
}

// NewInfo is the constructor, it copies the run settings out of a TrackingConfig
func NewInfo(cfg *config.TrackingConfig, store candidates.Store, logger *zap.Logger) *Info {
	if logger == nil {
		logger = zap.NewNop()
	}
	info := &Info{
		Version:    version.Get().String(),
		RunID:      uuid.NewString(),
		NumWorkers: cfg.General.NumWorkers,
		FrameKey:   cfg.General.FrameKey,
		Sample:     cfg.General.Sample,
		DataDir:    cfg.General.DataDir,
		Solve:      cfg.Solve,
		Store:      store,
		Logger:     logger,
	}
	info.setDefaults()
	return info
}

// setDefaults fills the zero values a caller building Info by hand may leave
func (info *Info) setDefaults() {
	if info.NumWorkers < 1 {
		info.NumWorkers = runtime.NumCPU()
	}
	if info.FrameKey == "" {
		info.FrameKey = "t"
	}
	if info.RunID == "" {
		info.RunID = uuid.NewString()
	}
	if info.Logger == nil {
		info.Logger = zap.NewNop()
	}
}

// logger returns the run logger with the run fields attached
func (info *Info) logger() *zap.Logger {
	return info.Logger.Named("pipeline").With(zap.String("run", info.RunID))
}

// RunSummary records the outcome of one blockwise run
type RunSummary struct {
	Version  string        `json:"version"`
	RunID    string        `json:"run_id"`
	Step     string        `json:"step"`
	Keys     []string      `json:"keys"`
	Blocks   int           `json:"blocks"`
	Solved   int           `json:"solved"`
	Empty    int           `json:"empty"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Complete bool          `json:"complete"`
	Took     time.Duration `json:"took_ns"`
}

// Dump is a method to write the summary to file as JSON
func (summary *RunSummary) Dump(path string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load is a method to load a summary from file
func (summary *RunSummary) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("run summary %s appears empty", path)
	}
	return json.Unmarshal(data, summary)
}
