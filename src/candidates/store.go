// Package candidates is the candidate database: the graph of detections and links per sample,
// plus the parameter ids and done markers that make blockwise runs resumable
package candidates

import (
	"context"
	"errors"

	"github.com/will-rowe/lintrack/src/config"
	"github.com/will-rowe/lintrack/src/roi"
	"github.com/will-rowe/lintrack/src/trackgraph"
)

var (
	// ErrUnknownParameters is returned by GetParametersID when asked not to issue a new id
	ErrUnknownParameters = errors.New("parameter set has no id")

	// ErrClosed is returned once the store has been closed
	ErrClosed = errors.New("candidate database is closed")
)

/*
Store is what the trackers and the block orchestrator need from a candidate database
*/
type Store interface {
	trackgraph.AttrWriter

	// GetParametersID returns the id of a parameter set, issuing one if needed and allowed
	GetParametersID(ctx context.Context, params config.SolveParameters, failIfNotExists bool) (int64, error)

	// GetGraph returns nodes located in r and edges whose u is located in r;
	// predecessors outside r come back without attributes
	GetGraph(ctx context.Context, r roi.ROI, edgeAttrs []string) (*trackgraph.CandidateGraph, error)

	// SelectedChildren returns the nodes of ids with a successor edge selected under key
	SelectedChildren(ctx context.Context, ids []uint64, key string) (map[uint64]bool, error)

	WriteNodes(ctx context.Context, nodes map[uint64]trackgraph.Attrs) error
	WriteEdges(ctx context.Context, edges map[trackgraph.EdgeKey]trackgraph.Attrs) error

	// ResetSelection clears selected_<pid> everywhere and the done markers of every step using pid
	ResetSelection(ctx context.Context, pid int64) error

	// ResetStep clears key everywhere and the done markers of step
	ResetStep(ctx context.Context, step, key string) error

	CheckDone(ctx context.Context, step string, blockID int64) (bool, error)
	WriteDone(ctx context.Context, step string, blockID int64) error
	CheckAllDone(ctx context.Context, step string) (bool, error)
	WriteAllDone(ctx context.Context, step string) error
	RegisterStep(ctx context.Context, step string, pids []int64) error

	Close() error
}
