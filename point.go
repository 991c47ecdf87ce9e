package ponca

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
)

// Point is a single sample of a point cloud: a position with optional
// per-point attributes. Normal is the zero vector when the sample is
// unoriented; Color is the zero value when the sample is uncolored.
// Points are treated as immutable once handed to an index or a fit.
type Point struct {
	Pos    r3.Vector
	Normal r3.Vector
	Color  color.NRGBA
}

// NewPoint returns an unoriented point at the given position.
func NewPoint(x, y, z float64) Point {
	return Point{Pos: r3.Vector{X: x, Y: y, Z: z}}
}

// NewOrientedPoint returns a point carrying a normal.
func NewOrientedPoint(pos, normal r3.Vector) Point {
	return Point{Pos: pos, Normal: normal}
}

// NewColoredPoint returns a point carrying a vertex color.
func NewColoredPoint(x, y, z float64, c color.NRGBA) Point {
	return Point{Pos: r3.Vector{X: x, Y: y, Z: z}, Color: c}
}

// Cloud is an ordered, indexable sequence of points. Indices into a
// Cloud are stable and shared by KdTree, KnnGraph and fits built over it.
type Cloud []Point

// Barycenter returns the unweighted mean position of the cloud,
// or the zero vector for an empty cloud.
func (c Cloud) Barycenter() r3.Vector {
	if len(c) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, p := range c {
		sum = sum.Add(p.Pos)
	}
	return sum.Mul(1 / float64(len(c)))
}

// Bounds returns the axis-aligned bounding box of the cloud as
// (min, max) corners. For an empty cloud both corners are +Inf/-Inf.
func (c Cloud) Bounds() (min, max r3.Vector) {
	min = r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max = r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, p := range c {
		min.X = math.Min(min.X, p.Pos.X)
		min.Y = math.Min(min.Y, p.Pos.Y)
		min.Z = math.Min(min.Z, p.Pos.Z)
		max.X = math.Max(max.X, p.Pos.X)
		max.Y = math.Max(max.Y, p.Pos.Y)
		max.Z = math.Max(max.Z, p.Pos.Z)
	}
	return min, max
}
