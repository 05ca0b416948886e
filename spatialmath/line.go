package spatialmath

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// Line2 is an infinite line in the plane through Point along the unit vector Direction.
type Line2 struct {
	Point     r2.Point `json:"point"`
	Direction r2.Point `json:"direction"`
}

// NewLine2FromPoints creates the line through two points. It returns false when they coincide.
func NewLine2FromPoints(a, b r2.Point) (Line2, bool) {
	d := b.Sub(a)
	if d.Norm() < 1e-12 {
		return Line2{}, false
	}
	return Line2{Point: a, Direction: d.Normalize()}, true
}

// IsValid reports whether the line has a unit direction.
func (l Line2) IsValid() bool {
	return math.Abs(l.Direction.Norm()-1) < 1e-6
}

// Normal returns the unit normal of the line.
func (l Line2) Normal() r2.Point {
	return l.Direction.Ortho()
}

// Distance returns the signed perpendicular distance of the point to the line.
func (l Line2) Distance(pt r2.Point) float64 {
	return pt.Sub(l.Point).Dot(l.Normal())
}

// SqrDistance returns the squared perpendicular distance of the point to the line.
func (l Line2) SqrDistance(pt r2.Point) float64 {
	d := l.Distance(pt)
	return d * d
}

// FitLine2 returns the total least squares line through the points: it passes through their
// centroid along the principal axis of their scatter. It returns false for fewer than two
// distinct points.
func FitLine2(points []r2.Point) (Line2, bool) {
	if len(points) < 2 {
		return Line2{}, false
	}
	var centroid r2.Point
	for _, pt := range points {
		centroid = centroid.Add(pt)
	}
	centroid = centroid.Mul(1 / float64(len(points)))

	var sxx, sxy, syy float64
	for _, pt := range points {
		d := pt.Sub(centroid)
		sxx += d.X * d.X
		sxy += d.X * d.Y
		syy += d.Y * d.Y
	}
	if sxx+syy < 1e-24 {
		return Line2{}, false
	}
	scatter := mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy})
	var eig mat.EigenSym
	if ok := eig.Factorize(scatter, true); !ok {
		return Line2{}, false
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	// eigenvalues are ascending, the principal axis belongs to the largest
	direction := r2.Point{X: vectors.At(0, 1), Y: vectors.At(1, 1)}
	return Line2{Point: centroid, Direction: direction.Normalize()}, true
}
