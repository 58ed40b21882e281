package solver

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// cellPoint is a node position that satisfies kdtree.Comparable
type cellPoint struct {
	id  uint64
	pos r3.Vector
}

// Compare satisfies the axis comparisons method of the kdtree.Comparable interface.
// The dimensions are:
//
//	0 = z
//	1 = y
//	2 = x
func (p cellPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(cellPoint)
	switch d {
	case 0:
		return p.pos.Z - q.pos.Z
	case 1:
		return p.pos.Y - q.pos.Y
	case 2:
		return p.pos.X - q.pos.X
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions to be considered
func (p cellPoint) Dims() int { return 3 }

// Distance returns the squared euclidean distance between the receiver and c
func (p cellPoint) Distance(c kdtree.Comparable) float64 {
	return p.pos.Sub(c.(cellPoint).pos).Norm2()
}

// cellPoints is a collection of cellPoint that satisfies kdtree.Interface
type cellPoints []cellPoint

func (p cellPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p cellPoints) Len() int                              { return len(p) }
func (p cellPoints) Pivot(d kdtree.Dim) int                { return cellPlane{cellPoints: p, Dim: d}.Pivot() }
func (p cellPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// cellPlane is required to help cellPoints
type cellPlane struct {
	kdtree.Dim
	cellPoints
}

func (p cellPlane) Less(i, j int) bool {
	return p.cellPoints[i].Compare(p.cellPoints[j], p.Dim) < 0
}
func (p cellPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p cellPlane) Slice(start, end int) kdtree.SortSlicer {
	p.cellPoints = p.cellPoints[start:end]
	return p
}
func (p cellPlane) Swap(i, j int) {
	p.cellPoints[i], p.cellPoints[j] = p.cellPoints[j], p.cellPoints[i]
}

// neighbourhoods returns, for every point, the ids of the points within radius of it (itself included)
func neighbourhoods(points []cellPoint, radius float64) map[uint64][]uint64 {
	hoods := make(map[uint64][]uint64, len(points))
	if len(points) == 0 {
		return hoods
	}
	// the tree reorders its input
	tree := kdtree.New(append(cellPoints(nil), points...), false)
	for _, q := range points {
		keep := kdtree.NewDistKeeper(radius * radius)
		tree.NearestSet(keep, q)
		ids := make([]uint64, 0, keep.Len())
		for _, c := range keep.Heap {
			if c.Comparable == nil {
				continue
			}
			ids = append(ids, c.Comparable.(cellPoint).id)
		}
		hoods[q.id] = ids
	}
	return hoods
}
