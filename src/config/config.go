// Package config holds the tracking configuration and the parameter sets used by the solvers
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/will-rowe/lintrack/src/roi"
)

// ErrBlockMismatch is returned when parameter sets used together disagree on block size or context
var ErrBlockMismatch = errors.New("parameter sets must share block_size and context")

// solver types with a dedicated indicator set
const (
	SolverBasic     = "basic"
	SolverCellState = "cell_state"
)

// SolveParameters is one set of weights and thresholds for the ILP
type SolveParameters struct {
	WeightNodeScore    float64        `mapstructure:"weight_node_score" msgpack:"weight_node_score" json:"weight_node_score"`
	SelectionConstant  float64        `mapstructure:"selection_constant" msgpack:"selection_constant" json:"selection_constant"`
	TrackCost          float64        `mapstructure:"track_cost" msgpack:"track_cost" json:"track_cost"`
	WeightDivision     float64        `mapstructure:"weight_division" msgpack:"weight_division" json:"weight_division"`
	DivisionConstant   float64        `mapstructure:"division_constant" msgpack:"division_constant" json:"division_constant"`
	WeightChild        float64        `mapstructure:"weight_child" msgpack:"weight_child" json:"weight_child"`
	WeightContinuation float64        `mapstructure:"weight_continuation" msgpack:"weight_continuation" json:"weight_continuation"`
	WeightEdgeScore    float64        `mapstructure:"weight_edge_score" msgpack:"weight_edge_score" json:"weight_edge_score"`
	MaxCellMove        float64        `mapstructure:"max_cell_move" msgpack:"max_cell_move" json:"max_cell_move" validate:"gte=0"`
	FeatureFunc        string         `mapstructure:"feature_func" msgpack:"feature_func" json:"feature_func" validate:"oneof=identity noop log square"`
	CellCycleKey       string         `mapstructure:"cell_cycle_key" msgpack:"cell_cycle_key" json:"cell_cycle_key"`
	BlockSize          roi.Coordinate `mapstructure:"block_size" msgpack:"block_size" json:"block_size" validate:"dive,gt=0"`
	Context            roi.Coordinate `mapstructure:"context" msgpack:"context" json:"context" validate:"dive,gte=0"`
}

// GreedyConfig holds the options for the greedy tracker
type GreedyConfig struct {
	Metric        string  `mapstructure:"metric" validate:"oneof=prediction_distance distance"`
	NodeThreshold float64 `mapstructure:"node_threshold" validate:"gte=0"`
}

// SolveConfig holds the run-wide solver options
type SolveConfig struct {
	SolverType                string            `mapstructure:"solver_type" validate:"required"`
	CheckNodeCloseToROI       bool              `mapstructure:"check_node_close_to_roi"`
	AddNodeDensityConstraints bool              `mapstructure:"add_node_density_constraints"`
	DensityRadius             float64           `mapstructure:"density_radius" validate:"gte=0"`
	MaxNodesInRadius          int               `mapstructure:"max_nodes_in_radius" validate:"gte=0"`
	PinExistingSelections     bool              `mapstructure:"pin_existing_selections"`
	NodeLimit                 int               `mapstructure:"node_limit" validate:"gte=0"`
	FromScratch               bool              `mapstructure:"from_scratch"`
	Frames                    []int64           `mapstructure:"frames" validate:"omitempty,len=2"`
	LimitToROI                *roi.ROI          `mapstructure:"limit_to_roi"`
	Parameters                []SolveParameters `mapstructure:"parameters" validate:"dive"`
	Greedy                    GreedyConfig      `mapstructure:"greedy"`
}

// GeneralConfig holds the database and sample settings
type GeneralConfig struct {
	DBDir      string `mapstructure:"db_dir"`
	DBName     string `mapstructure:"db_name" validate:"required,alphanum"`
	Sample     string `mapstructure:"sample"`
	DataDir    string `mapstructure:"data_dir"`
	FrameKey   string `mapstructure:"frame_key" validate:"required"`
	NumWorkers int    `mapstructure:"num_workers" validate:"gte=1"`
}

// TrackingConfig is the top level configuration
type TrackingConfig struct {
	General GeneralConfig `mapstructure:"general"`
	Solve   SolveConfig   `mapstructure:"solve"`
}

// setDefaults registers the defaults on a viper instance
func setDefaults(v *viper.Viper) {
	v.SetDefault("general.db_name", "lintrack")
	v.SetDefault("general.frame_key", "t")
	v.SetDefault("general.num_workers", runtime.NumCPU())
	v.SetDefault("solve.solver_type", SolverBasic)
	v.SetDefault("solve.check_node_close_to_roi", true)
	v.SetDefault("solve.pin_existing_selections", true)
	v.SetDefault("solve.node_limit", 100000)
	v.SetDefault("solve.greedy.metric", "prediction_distance")
}

// Default returns a TrackingConfig holding only the defaults
func Default() *TrackingConfig {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a config file (if given) and LINTRACK_ prefixed environment variables
func Load(configFile string) (*TrackingConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LINTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
	}
	cfg := &TrackingConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	for i := range cfg.Solve.Parameters {
		if cfg.Solve.Parameters[i].FeatureFunc == "" {
			cfg.Solve.Parameters[i].FeatureFunc = "identity"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and the cross-field rules
func (cfg *TrackingConfig) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.Solve.Frames) == 2 && cfg.Solve.Frames[1] <= cfg.Solve.Frames[0] {
		return fmt.Errorf("invalid config: frames must be [begin, end) with end > begin, got %v", cfg.Solve.Frames)
	}
	if cfg.Solve.AddNodeDensityConstraints && (cfg.Solve.DensityRadius <= 0 || cfg.Solve.MaxNodesInRadius <= 0) {
		return fmt.Errorf("invalid config: density constraints need density_radius and max_nodes_in_radius")
	}
	return nil
}

// CheckBlockConsistency makes sure every parameter set uses the same block size and context
func CheckBlockConsistency(params []SolveParameters) error {
	if len(params) == 0 {
		return fmt.Errorf("no parameter sets given")
	}
	for i := 1; i < len(params); i++ {
		if params[i].BlockSize != params[0].BlockSize {
			return fmt.Errorf("%w: block_size %v != %v", ErrBlockMismatch, params[i].BlockSize, params[0].BlockSize)
		}
		if params[i].Context != params[0].Context {
			return fmt.Errorf("%w: context %v != %v", ErrBlockMismatch, params[i].Context, params[0].Context)
		}
	}
	return nil
}

// CellCycleKeys returns the attribute names holding the division scores for a parameter set
func (p SolveParameters) CellCycleKeys() (mother, daughter, continuation string) {
	if p.CellCycleKey == "" {
		return "score_mother", "score_daughter", "score_continuation"
	}
	return p.CellCycleKey + "mother", p.CellCycleKey + "daughter", p.CellCycleKey + "continuation"
}
