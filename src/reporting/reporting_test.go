package reporting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mholt/archiver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/will-rowe/lintrack/src/roi"
	"github.com/will-rowe/lintrack/src/trackgraph"
)

// 1 divides into 2 and 3, 3 continues to 4; 5 -> 6 is a second track; 7 is not selected
func selectedGraph() *trackgraph.CandidateGraph {
	g := trackgraph.NewCandidateGraph(roi.New(roi.Coordinate{}, roi.Coordinate{4, 100, 100, 100}))
	sel := func(t int64, selected bool) trackgraph.Attrs {
		return trackgraph.Attrs{"t": t, "z": 1.0, "y": 1.0, "x": 1.0, "selected_1": selected}
	}
	g.AddNode(1, sel(0, true))
	g.AddNode(2, sel(1, true))
	g.AddNode(3, sel(1, true))
	g.AddNode(4, sel(2, true))
	g.AddNode(5, sel(2, true))
	g.AddNode(6, sel(3, true))
	g.AddNode(7, sel(3, false))
	g.AddEdge(2, 1, trackgraph.Attrs{"selected_1": true})
	g.AddEdge(3, 1, trackgraph.Attrs{"selected_1": true})
	g.AddEdge(4, 3, trackgraph.Attrs{"selected_1": true})
	g.AddEdge(6, 5, trackgraph.Attrs{"selected_1": true})
	g.AddEdge(7, 4, trackgraph.Attrs{"selected_1": false})
	return g
}

func TestSummarize(t *testing.T) {
	summary, err := Summarize(selectedGraph(), "t", "selected_1")
	require.NoError(t, err)
	assert.Equal(t, 6, summary.SelectedNodes)
	assert.Equal(t, 4, summary.SelectedEdges)
	assert.Equal(t, 1, summary.Divisions)

	wantFrames := []FrameCount{
		{Frame: 0, Nodes: 1, Edges: 0},
		{Frame: 1, Nodes: 2, Edges: 2},
		{Frame: 2, Nodes: 2, Edges: 1},
		{Frame: 3, Nodes: 1, Edges: 1},
	}
	if diff := cmp.Diff(wantFrames, summary.Frames); diff != "" {
		t.Errorf("frame counts mismatch (-want +got):\n%s", diff)
	}
	wantTracks := []Track{
		{ID: 1, Root: 1, Start: 0, End: 2, NumNodes: 4, Divisions: 1},
		{ID: 2, Root: 5, Start: 2, End: 3, NumNodes: 2, Divisions: 0},
	}
	if diff := cmp.Diff(wantTracks, summary.Tracks); diff != "" {
		t.Errorf("tracks mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2.5, summary.MeanTrackLength)
}

func TestSummarizeNothingSelected(t *testing.T) {
	summary, err := Summarize(selectedGraph(), "t", "selected_2")
	require.NoError(t, err)
	assert.Zero(t, summary.SelectedNodes)
	assert.Empty(t, summary.Tracks)
	assert.Empty(t, summary.Frames)
	assert.Zero(t, summary.MeanTrackLength)
}

func TestSummarizeNeedsFrame(t *testing.T) {
	g := selectedGraph()
	delete(g.Nodes[2], "t")
	_, err := Summarize(g, "t", "selected_1")
	assert.Error(t, err)
}

func TestExportTracks(t *testing.T) {
	summary, err := Summarize(selectedGraph(), "t", "selected_1")
	require.NoError(t, err)
	dir := t.TempDir()
	tarball, err := ExportTracks(dir, summary)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "selected_1-report.tar.gz"), tarball)

	tracks, err := os.ReadFile(filepath.Join(dir, "selected_1-tracks.csv"))
	require.NoError(t, err)
	assert.Equal(t, "track,root,start,end,length,nodes,divisions\n1,1,0,2,3,4,1\n2,5,2,3,2,2,0\n", string(tracks))

	// exporting again overwrites the tarball
	_, err = ExportTracks(dir, summary)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "unpacked")
	require.NoError(t, archiver.NewTarGz().Unarchive(tarball, out))
	frames, err := os.ReadFile(filepath.Join(out, "selected_1-frames.csv"))
	require.NoError(t, err)
	assert.Equal(t, "frame,nodes,edges\n0,1,0\n1,2,2\n2,2,1\n3,1,1\n", string(frames))
}

func TestPlotSummary(t *testing.T) {
	summary, err := Summarize(selectedGraph(), "t", "selected_1")
	require.NoError(t, err)
	files, err := PlotSummary(t.TempDir(), summary)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}
}
