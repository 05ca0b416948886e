package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func rotationsAlmostEqual(t *testing.T, a, b RotationMatrix, tol float64) {
	t.Helper()
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			test.That(t, a.At(row, col), test.ShouldAlmostEqual, b.At(row, col), tol)
		}
	}
}

func TestExpLogMap(t *testing.T) {
	for _, w := range []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 1e-9, Y: -2e-9, Z: 0},
		{X: 0.3, Y: -0.2, Z: 0.1},
		{X: 0, Y: math.Pi * 0.9, Z: 0},
		{X: -1, Y: 1, Z: 1},
	} {
		rm := ExpMap(w)
		test.That(t, rm.IsOrthonormal(1e-12), test.ShouldBeTrue)
		back := LogMap(rm)
		test.That(t, back.X, test.ShouldAlmostEqual, w.X, 1e-9)
		test.That(t, back.Y, test.ShouldAlmostEqual, w.Y, 1e-9)
		test.That(t, back.Z, test.ShouldAlmostEqual, w.Z, 1e-9)
	}
}

func TestExpMapMatchesQuaternion(t *testing.T) {
	w := r3.Vector{X: 0.4, Y: 0.5, Z: -0.3}
	fromQuat := R3ToR4(w).RotationMatrix()
	rotationsAlmostEqual(t, ExpMap(w), fromQuat, 1e-12)

	q := fromQuat.Quaternion()
	rotationsAlmostEqual(t, QuatToRotationMatrix(q), fromQuat, 1e-12)
	test.That(t, quat.Abs(q), test.ShouldAlmostEqual, 1, 1e-12)
}

func TestRotationMatrixProducts(t *testing.T) {
	rm := ExpMap(r3.Vector{Z: math.Pi / 2})
	test.That(t, rm.IsOrthonormal(1e-12), test.ShouldBeTrue)
	v := rm.Mul(r3.Vector{X: 1})
	test.That(t, v.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, v.Y, test.ShouldAlmostEqual, 1, 1e-12)
	rotationsAlmostEqual(t, rm.MulMatrix(rm.Transpose()), NewIdentityRotation(), 1e-12)
	test.That(t, rm.Det(), test.ShouldAlmostEqual, 1, 1e-12)
}

func TestPoseComposeInvert(t *testing.T) {
	p := NewPoseFromExponentialMap(r3.Vector{X: 0.1, Y: 0.2, Z: 0.3}, r3.Vector{X: 1, Y: -2, Z: 3})
	identity := p.Compose(p.Invert())
	rotationsAlmostEqual(t, identity.Rotation, NewIdentityRotation(), 1e-12)
	test.That(t, identity.Translation.Norm(), test.ShouldAlmostEqual, 0, 1e-12)

	pt := r3.Vector{X: 4, Y: 5, Z: 6}
	back := p.Invert().Transform(p.Transform(pt))
	test.That(t, back.Sub(pt).Norm(), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, p.IsValid(), test.ShouldBeTrue)
	test.That(t, Pose{}.IsValid(), test.ShouldBeFalse)
}

func TestInvertedFlippedRoundTrip(t *testing.T) {
	worldTCamera := NewPoseFromExponentialMap(r3.Vector{X: -0.2, Y: 0.7, Z: 0.05}, r3.Vector{X: 0.5, Y: 1, Z: 4})
	flipped := StandardToInvertedFlipped(worldTCamera)
	back := InvertedFlippedToStandard(flipped)
	test.That(t, PosesAlmostEqual(worldTCamera, back, 1e-12, 1e-12), test.ShouldBeTrue)

	// a point straight ahead of a standard camera lies on its negative z axis
	ahead := worldTCamera.Transform(r3.Vector{Z: -3})
	test.That(t, IsInFrontOfCamera(flipped, ahead), test.ShouldBeTrue)
	inCamera := flipped.Transform(ahead)
	test.That(t, inCamera.Z, test.ShouldAlmostEqual, 3, 1e-12)
	behind := worldTCamera.Transform(r3.Vector{Z: 3})
	test.That(t, IsInFrontOfCamera(flipped, behind), test.ShouldBeFalse)

	// y up in the standard frame is y down in the flipped frame
	up := flipped.Transform(worldTCamera.Transform(r3.Vector{Y: 1, Z: -1}))
	test.That(t, up.Y, test.ShouldAlmostEqual, -1, 1e-12)
}

func TestPosesAlmostEqual(t *testing.T) {
	a := NewZeroPose()
	b := NewPoseFromExponentialMap(r3.Vector{Z: 0.01}, r3.Vector{X: 0.05})
	test.That(t, PosesAlmostEqual(a, b, 0.1, 0.02), test.ShouldBeTrue)
	test.That(t, PosesAlmostEqual(a, b, 0.01, 0.02), test.ShouldBeFalse)
	test.That(t, PosesAlmostEqual(a, b, 0.1, 0.005), test.ShouldBeFalse)
	test.That(t, RotationAngleBetween(a.Rotation, b.Rotation), test.ShouldAlmostEqual, 0.01, 1e-12)
}

func TestPlane(t *testing.T) {
	_, ok := NewPlaneFromPoints(r3.Vector{}, r3.Vector{X: 1}, r3.Vector{X: 2})
	test.That(t, ok, test.ShouldBeFalse)

	pl, ok := NewPlaneFromPoints(r3.Vector{Z: 2}, r3.Vector{X: 1, Z: 2}, r3.Vector{Y: 1, Z: 2})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pl.IsValid(), test.ShouldBeTrue)
	test.That(t, math.Abs(pl.Normal.Z), test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, math.Abs(pl.SignedDistance(r3.Vector{X: 5, Y: 5, Z: 5})), test.ShouldAlmostEqual, 3, 1e-12)
	test.That(t, pl.SignedDistance(pl.Project(r3.Vector{X: 1, Y: 2, Z: 9})), test.ShouldAlmostEqual, 0, 1e-12)

	u, v := OrthogonalBasis(pl.Normal)
	test.That(t, u.Dot(pl.Normal), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, v.Dot(pl.Normal), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, u.Dot(v), test.ShouldAlmostEqual, 0, 1e-12)
}

func TestLine2(t *testing.T) {
	_, ok := NewLine2FromPoints(r2.Point{X: 1, Y: 1}, r2.Point{X: 1, Y: 1})
	test.That(t, ok, test.ShouldBeFalse)

	line, ok := NewLine2FromPoints(r2.Point{X: 0, Y: 1}, r2.Point{X: 2, Y: 1})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, line.SqrDistance(r2.Point{X: 7, Y: 4}), test.ShouldAlmostEqual, 9, 1e-12)

	points := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 2}, {X: 2, Y: 4}, {X: 3, Y: 6}}
	fit, ok := FitLine2(points)
	test.That(t, ok, test.ShouldBeTrue)
	for _, pt := range points {
		test.That(t, fit.SqrDistance(pt), test.ShouldAlmostEqual, 0, 1e-12)
	}
	test.That(t, math.Abs(fit.Direction.Y/fit.Direction.X), test.ShouldAlmostEqual, 2, 1e-9)

	_, ok = FitLine2([]r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}})
	test.That(t, ok, test.ShouldBeFalse)
}
