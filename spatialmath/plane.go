package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Plane is the set of points p with Normal·p + Distance = 0. Normal has unit length.
type Plane struct {
	Normal   r3.Vector `json:"normal"`
	Distance float64   `json:"distance"`
}

// NewPlane creates a plane from a normal, which is normalized, and a distance.
func NewPlane(normal r3.Vector, distance float64) Plane {
	length := normal.Norm()
	if length == 0 {
		return Plane{}
	}
	return Plane{Normal: normal.Mul(1 / length), Distance: distance / length}
}

// NewPlaneFromPointAndNormal creates the plane through point with the given normal.
func NewPlaneFromPointAndNormal(point, normal r3.Vector) Plane {
	n := normal.Normalize()
	return Plane{Normal: n, Distance: -n.Dot(point)}
}

// NewPlaneFromPoints creates the plane through three points. It returns false when the points
// are collinear or coincide.
func NewPlaneFromPoints(a, b, c r3.Vector) (Plane, bool) {
	v1 := b.Sub(a)
	v2 := c.Sub(a)
	cross := v1.Cross(v2)
	scale := math.Max(v1.Norm2(), v2.Norm2())
	if scale == 0 || cross.Norm2() <= 1e-20*scale*scale {
		return Plane{}, false
	}
	return NewPlaneFromPointAndNormal(a, cross), true
}

// IsValid reports whether the plane has a unit normal.
func (pl Plane) IsValid() bool {
	return math.Abs(pl.Normal.Norm()-1) < 1e-6 && !math.IsNaN(pl.Distance) && !math.IsInf(pl.Distance, 0)
}

// SignedDistance returns the signed distance of the point to the plane, positive on the side the
// normal points to.
func (pl Plane) SignedDistance(pt r3.Vector) float64 {
	return pl.Normal.Dot(pt) + pl.Distance
}

// Project returns the closest point on the plane.
func (pl Plane) Project(pt r3.Vector) r3.Vector {
	return pt.Sub(pl.Normal.Mul(pl.SignedDistance(pt)))
}

// OrthogonalBasis returns two unit vectors which together with v form a right handed
// orthonormal basis.
func OrthogonalBasis(v r3.Vector) (r3.Vector, r3.Vector) {
	n := v.Normalize()
	u := n.Ortho()
	return u, n.Cross(u)
}
