// Package reporting summarises a selection in the candidate graph and exports it as tables and plots
package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mholt/archiver"
	"github.com/will-rowe/lintrack/src/trackgraph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// FrameCount holds the number of selected nodes and edges in a frame, an edge counts in the frame of u
type FrameCount struct {
	Frame int64
	Nodes int
	Edges int
}

// Track is one connected component of the selected graph (a lineage)
type Track struct {
	ID        int
	Root      uint64 // earliest node, lowest id on ties
	Start     int64
	End       int64 // last frame, inclusive
	NumNodes  int
	Divisions int
}

// Length returns the number of frames the track spans
func (track Track) Length() int64 {
	return track.End - track.Start + 1
}

// Summary describes the selection stored under one key
type Summary struct {
	Key             string
	Frames          []FrameCount // ascending frame
	Tracks          []Track      // ordered by start frame then root
	SelectedNodes   int
	SelectedEdges   int
	Divisions       int
	MeanTrackLength float64
}

// Summarize collects the per frame counts and the tracks of the selection under key
func Summarize(graph *trackgraph.CandidateGraph, frameKey, key string) (*Summary, error) {
	summary := &Summary{Key: key}
	frames := make(map[int64]*FrameCount)
	frameOf := func(id uint64) (int64, bool) {
		return graph.Nodes[id].Int(frameKey)
	}
	count := func(t int64) *FrameCount {
		fc, ok := frames[t]
		if !ok {
			fc = &FrameCount{Frame: t}
			frames[t] = fc
		}
		return fc
	}

	// the selected subgraph, undirected so components are lineages
	selected := simple.NewUndirectedGraph()
	for _, id := range graph.SortedNodeIDs() {
		if v, _ := graph.Nodes[id].Bool(key); !v {
			continue
		}
		t, ok := frameOf(id)
		if !ok {
			return nil, fmt.Errorf("selected node %d has no %s attribute", id, frameKey)
		}
		count(t).Nodes++
		summary.SelectedNodes++
		selected.AddNode(simple.Node(int64(id)))
	}
	children := make(map[uint64]int)
	for _, e := range graph.SortedEdgeKeys() {
		if v, _ := graph.Edges[e].Bool(key); !v {
			continue
		}
		t, ok := frameOf(e.U)
		if !ok {
			return nil, fmt.Errorf("selected edge %d -> %d starts at a node without a frame", e.U, e.V)
		}
		count(t).Edges++
		summary.SelectedEdges++
		children[e.V]++
		selected.SetEdge(selected.NewEdge(simple.Node(int64(e.U)), simple.Node(int64(e.V))))
	}

	for _, fc := range frames {
		summary.Frames = append(summary.Frames, *fc)
	}
	sort.Slice(summary.Frames, func(i, j int) bool { return summary.Frames[i].Frame < summary.Frames[j].Frame })

	for _, component := range topo.ConnectedComponents(selected) {
		var track Track
		for _, n := range component {
			id := uint64(n.ID())
			t, ok := frameOf(id)
			if !ok {
				// an endpoint outside the graph slice
				continue
			}
			if track.NumNodes == 0 {
				track.Start, track.End, track.Root = t, t, id
			}
			track.NumNodes++
			if children[id] > 1 {
				track.Divisions++
			}
			if t < track.Start || (t == track.Start && id < track.Root) {
				track.Start, track.Root = t, id
			}
			if t > track.End {
				track.End = t
			}
		}
		if track.NumNodes == 0 {
			continue
		}
		summary.Divisions += track.Divisions
		summary.Tracks = append(summary.Tracks, track)
	}
	sort.Slice(summary.Tracks, func(i, j int) bool {
		a, b := summary.Tracks[i], summary.Tracks[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Root < b.Root
	})
	lengths := make([]float64, len(summary.Tracks))
	for i := range summary.Tracks {
		summary.Tracks[i].ID = i + 1
		lengths[i] = float64(summary.Tracks[i].Length())
	}
	if len(lengths) > 0 {
		summary.MeanTrackLength = stat.Mean(lengths, nil)
	}
	return summary, nil
}

// fileName turns a selection key into something safe for a file name
func fileName(key string) string {
	return strings.NewReplacer("/", "__", "\t", "__", " ", "_").Replace(key)
}

// ExportTracks writes the frame counts and tracks as CSV files to dir and bundles them into a
// tarball, returning the tarball path
func ExportTracks(dir string, summary *Summary) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	base := filepath.Join(dir, fileName(summary.Key))
	framesFile := base + "-frames.csv"
	frameRows := [][]string{{"frame", "nodes", "edges"}}
	for _, fc := range summary.Frames {
		frameRows = append(frameRows, []string{
			strconv.FormatInt(fc.Frame, 10),
			strconv.Itoa(fc.Nodes),
			strconv.Itoa(fc.Edges),
		})
	}
	if err := writeCSV(framesFile, frameRows); err != nil {
		return "", err
	}
	tracksFile := base + "-tracks.csv"
	trackRows := [][]string{{"track", "root", "start", "end", "length", "nodes", "divisions"}}
	for _, track := range summary.Tracks {
		trackRows = append(trackRows, []string{
			strconv.Itoa(track.ID),
			strconv.FormatUint(track.Root, 10),
			strconv.FormatInt(track.Start, 10),
			strconv.FormatInt(track.End, 10),
			strconv.FormatInt(track.Length(), 10),
			strconv.Itoa(track.NumNodes),
			strconv.Itoa(track.Divisions),
		})
	}
	if err := writeCSV(tracksFile, trackRows); err != nil {
		return "", err
	}

	tarball := base + "-report.tar.gz"
	tgz := archiver.NewTarGz()
	tgz.OverwriteExisting = true
	if err := tgz.Archive([]string{framesFile, tracksFile}, tarball); err != nil {
		return "", fmt.Errorf("could not bundle report: %w", err)
	}
	return tarball, nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// PlotSummary renders the per frame counts and a histogram of the track lengths to PNG files in dir
func PlotSummary(dir string, summary *Summary) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	base := filepath.Join(dir, fileName(summary.Key))

	// plot the counts per frame
	countPlot := plot.New()
	countPlot.Title.Text = "selection per frame: " + summary.Key
	countPlot.X.Label.Text = "frame"
	countPlot.Y.Label.Text = "count"
	nodes := make(plotter.XYs, len(summary.Frames))
	edges := make(plotter.XYs, len(summary.Frames))
	for i, fc := range summary.Frames {
		nodes[i].X, nodes[i].Y = float64(fc.Frame), float64(fc.Nodes)
		edges[i].X, edges[i].Y = float64(fc.Frame), float64(fc.Edges)
	}
	if err := plotutil.AddLinePoints(countPlot, "nodes", nodes, "edges", edges); err != nil {
		return nil, err
	}
	countFile := base + "-frames.png"
	if err := countPlot.Save(8*vg.Inch, 6*vg.Inch, countFile); err != nil {
		return nil, err
	}
	files := []string{countFile}

	// plot the track lengths, there is nothing to bin without tracks
	if len(summary.Tracks) == 0 {
		return files, nil
	}
	lengths := make(plotter.Values, len(summary.Tracks))
	for i, track := range summary.Tracks {
		lengths[i] = float64(track.Length())
	}
	hist, err := plotter.NewHist(lengths, 16)
	if err != nil {
		return nil, err
	}
	lengthPlot := plot.New()
	lengthPlot.Title.Text = "track lengths: " + summary.Key
	lengthPlot.X.Label.Text = "frames"
	lengthPlot.Y.Label.Text = "tracks"
	lengthPlot.Add(hist)
	lengthFile := base + "-lengths.png"
	if err := lengthPlot.Save(8*vg.Inch, 6*vg.Inch, lengthFile); err != nil {
		return nil, err
	}
	return append(files, lengthFile), nil
}
