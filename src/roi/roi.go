// Package roi contains the spatiotemporal region of interest used to address the candidate graph
package roi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

// NumDims is the number of dimensions of a ROI (t, z, y, x)
const NumDims = 4

// Coordinate is a point or extent in t, z, y, x order
type Coordinate [NumDims]int64

// Add returns the element-wise sum
func (c Coordinate) Add(o Coordinate) Coordinate {
	for i := range c {
		c[i] += o[i]
	}
	return c
}

// Sub returns the element-wise difference
func (c Coordinate) Sub(o Coordinate) Coordinate {
	for i := range c {
		c[i] -= o[i]
	}
	return c
}

// Scale returns the element-wise product
func (c Coordinate) Scale(o Coordinate) Coordinate {
	for i := range c {
		c[i] *= o[i]
	}
	return c
}

// IsZero reports whether every element is zero
func (c Coordinate) IsZero() bool {
	return c == Coordinate{}
}

// ParseCoordinate reads a comma separated list of four integers
func ParseCoordinate(s string) (Coordinate, error) {
	var c Coordinate
	fields := strings.Split(s, ",")
	if len(fields) != NumDims {
		return c, fmt.Errorf("coordinate needs %d values, got %d: %q", NumDims, len(fields), s)
	}
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return c, fmt.Errorf("bad coordinate value %q: %w", f, err)
		}
		c[i] = v
	}
	return c, nil
}

// ROI is an axis aligned box, Offset inclusive and Offset+Shape exclusive
type ROI struct {
	Offset Coordinate `json:"offset" mapstructure:"offset"`
	Shape  Coordinate `json:"shape" mapstructure:"shape"`
}

// New is the ROI constructor, negative extents are clamped to zero
func New(offset, shape Coordinate) ROI {
	for i := range shape {
		if shape[i] < 0 {
			shape[i] = 0
		}
	}
	return ROI{Offset: offset, Shape: shape}
}

// Parse reads "t,z,y,x,dt,dz,dy,dx"
func Parse(s string) (ROI, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 2*NumDims {
		return ROI{}, fmt.Errorf("roi needs %d values (offset then shape), got %d", 2*NumDims, len(fields))
	}
	offset, err := ParseCoordinate(strings.Join(fields[:NumDims], ","))
	if err != nil {
		return ROI{}, err
	}
	shape, err := ParseCoordinate(strings.Join(fields[NumDims:], ","))
	if err != nil {
		return ROI{}, err
	}
	return New(offset, shape), nil
}

// End returns the exclusive upper corner
func (r ROI) End() Coordinate {
	return r.Offset.Add(r.Shape)
}

// Empty reports whether the ROI has no volume
func (r ROI) Empty() bool {
	for _, s := range r.Shape {
		if s <= 0 {
			return true
		}
	}
	return false
}

// Begin returns the first frame of the ROI
func (r ROI) Begin() int64 {
	return r.Offset[0]
}

// FrameEnd returns the frame after the last frame of the ROI
func (r ROI) FrameEnd() int64 {
	return r.Offset[0] + r.Shape[0]
}

// Intersect returns the overlap of two ROIs (empty if they are disjoint)
func (r ROI) Intersect(o ROI) ROI {
	var offset, shape Coordinate
	rEnd, oEnd := r.End(), o.End()
	for i := 0; i < NumDims; i++ {
		offset[i] = max(r.Offset[i], o.Offset[i])
		shape[i] = min(rEnd[i], oEnd[i]) - offset[i]
	}
	return New(offset, shape)
}

// Grow extends the ROI by amount on both sides of every dimension
func (r ROI) Grow(amount Coordinate) ROI {
	return New(r.Offset.Sub(amount), r.Shape.Add(amount).Add(amount))
}

// WithFrames restricts the ROI to frames [begin, end)
func (r ROI) WithFrames(begin, end int64) ROI {
	frames := r
	frames.Offset[0] = begin
	frames.Shape[0] = end - begin
	return r.Intersect(frames)
}

// Contains reports whether the coordinate lies inside the ROI
func (r ROI) Contains(c Coordinate) bool {
	end := r.End()
	for i := 0; i < NumDims; i++ {
		if c[i] < r.Offset[i] || c[i] >= end[i] {
			return false
		}
	}
	return true
}

// ContainsNode reports whether a node at frame t and position pos lies inside the ROI
// (pos.X is x, pos.Y is y and pos.Z is z)
func (r ROI) ContainsNode(t int64, pos r3.Vector) bool {
	end := r.End()
	if t < r.Offset[0] || t >= end[0] {
		return false
	}
	for i, p := range [3]float64{pos.Z, pos.Y, pos.X} {
		if p < float64(r.Offset[i+1]) || p >= float64(end[i+1]) {
			return false
		}
	}
	return true
}

// CloseToBorder reports whether pos lies within distance of the spatial border
func (r ROI) CloseToBorder(pos r3.Vector, distance float64) bool {
	end := r.End()
	for i, p := range [3]float64{pos.Z, pos.Y, pos.X} {
		if p+distance >= float64(end[i+1]) || p-distance < float64(r.Offset[i+1]) {
			return true
		}
	}
	return false
}

// String satisfies the Stringer interface
func (r ROI) String() string {
	end := r.End()
	return fmt.Sprintf("[%d:%d, %d:%d, %d:%d, %d:%d] (%d, %d, %d, %d)",
		r.Offset[0], end[0], r.Offset[1], end[1], r.Offset[2], end[2], r.Offset[3], end[3],
		r.Shape[0], r.Shape[1], r.Shape[2], r.Shape[3])
}
