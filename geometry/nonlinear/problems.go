package nonlinear

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/geomfit/rimage/transform"
	"go.viam.com/geomfit/spatialmath"
)

// minDepth is the smallest depth a point may have in front of a camera.
const minDepth = 1e-12

// PoseProblem refines an inverted flipped camera pose against 2D/3D correspondences. The
// parameters are the rotation vector followed by the translation of flipped_T_world.
type PoseProblem struct {
	Camera       transform.Camera
	ObjectPoints []r3.Vector
	ImagePoints  []r2.Point
}

// Dims returns 6 parameters and one 2D residual per correspondence.
func (pp *PoseProblem) Dims() (int, int, int) {
	return 6, len(pp.ObjectPoints), 2
}

// Pose returns the flipped pose described by the parameters.
func (pp *PoseProblem) Pose(x []float64) spatialmath.Pose {
	return spatialmath.NewPoseFromExponentialMap(
		r3.Vector{X: x[0], Y: x[1], Z: x[2]},
		r3.Vector{X: x[3], Y: x[4], Z: x[5]},
	)
}

// Residuals writes image point minus projected object point for every correspondence.
func (pp *PoseProblem) Residuals(dst, x []float64) bool {
	return projectionResiduals(dst, pp.Camera, pp.Pose(x), pp.ObjectPoints, pp.ImagePoints)
}

func projectionResiduals(dst []float64, camera transform.Camera, flippedTWorld spatialmath.Pose,
	objectPoints []r3.Vector, imagePoints []r2.Point,
) bool {
	for i, pt := range objectPoints {
		inCamera := flippedTWorld.Transform(pt)
		if inCamera.Z <= minDepth {
			return false
		}
		projected := camera.Project(inCamera)
		dst[2*i] = imagePoints[i].X - projected.X
		dst[2*i+1] = imagePoints[i].Y - projected.Y
	}
	return true
}

func poseParameters(p spatialmath.Pose) []float64 {
	w, t := p.ExponentialMap()
	return []float64{w.X, w.Y, w.Z, t.X, t.Y, t.Z}
}

func checkCorrespondences(objectPoints []r3.Vector, imagePoints []r2.Point) error {
	if len(objectPoints) != len(imagePoints) {
		return errors.Errorf("got %d object points but %d image points", len(objectPoints), len(imagePoints))
	}
	return nil
}

// OptimizePose refines flippedTWorld so that the object points project onto the image points.
func OptimizePose(
	ctx context.Context,
	camera transform.Camera,
	flippedTWorld spatialmath.Pose,
	objectPoints []r3.Vector,
	imagePoints []r2.Point,
	opts Options,
) (spatialmath.Pose, Result, error) {
	if err := checkCorrespondences(objectPoints, imagePoints); err != nil {
		return flippedTWorld, Result{}, err
	}
	problem := &PoseProblem{Camera: camera, ObjectPoints: objectPoints, ImagePoints: imagePoints}
	x, result, err := Optimize(ctx, problem, poseParameters(flippedTWorld), opts)
	if err != nil {
		return flippedTWorld, result, errors.Wrap(err, "pose refinement failed")
	}
	return problem.Pose(x), result, nil
}

// OrientationProblem refines the rotation of a camera located at the origin. The parameters are
// the rotation vector of flipped_R_world.
type OrientationProblem struct {
	Camera       transform.Camera
	ObjectPoints []r3.Vector
	ImagePoints  []r2.Point
}

// Dims returns 3 parameters and one 2D residual per correspondence.
func (op *OrientationProblem) Dims() (int, int, int) {
	return 3, len(op.ObjectPoints), 2
}

// Rotation returns the rotation described by the parameters.
func (op *OrientationProblem) Rotation(x []float64) spatialmath.RotationMatrix {
	return spatialmath.ExpMap(r3.Vector{X: x[0], Y: x[1], Z: x[2]})
}

// Residuals writes image point minus projected object point for every correspondence.
func (op *OrientationProblem) Residuals(dst, x []float64) bool {
	pose := spatialmath.NewPose(op.Rotation(x), r3.Vector{})
	return projectionResiduals(dst, op.Camera, pose, op.ObjectPoints, op.ImagePoints)
}

// OptimizeOrientation refines the rotation flippedRWorld of a camera at the origin.
func OptimizeOrientation(
	ctx context.Context,
	camera transform.Camera,
	flippedRWorld spatialmath.RotationMatrix,
	objectPoints []r3.Vector,
	imagePoints []r2.Point,
	opts Options,
) (spatialmath.RotationMatrix, Result, error) {
	if err := checkCorrespondences(objectPoints, imagePoints); err != nil {
		return flippedRWorld, Result{}, err
	}
	problem := &OrientationProblem{Camera: camera, ObjectPoints: objectPoints, ImagePoints: imagePoints}
	w := spatialmath.LogMap(flippedRWorld)
	x, result, err := Optimize(ctx, problem, []float64{w.X, w.Y, w.Z}, opts)
	if err != nil {
		return flippedRWorld, result, errors.Wrap(err, "orientation refinement failed")
	}
	return problem.Rotation(x), result, nil
}

// PlaneProblem refines a plane against 3D points. The normal is n0 + a·u + b·v renormalized,
// where u and v span the tangent space of the initial normal n0, so the parameters are (a, b, d)
// and start at (0, 0, d0).
type PlaneProblem struct {
	Points  []r3.Vector
	initial r3.Vector
	u, v    r3.Vector
}

// NewPlaneProblem creates the problem around the initial plane.
func NewPlaneProblem(initial spatialmath.Plane, points []r3.Vector) *PlaneProblem {
	u, v := spatialmath.OrthogonalBasis(initial.Normal)
	return &PlaneProblem{Points: points, initial: initial.Normal, u: u, v: v}
}

// Dims returns 3 parameters and one distance per point.
func (pp *PlaneProblem) Dims() (int, int, int) {
	return 3, len(pp.Points), 1
}

// Plane returns the plane described by the parameters.
func (pp *PlaneProblem) Plane(x []float64) spatialmath.Plane {
	normal := pp.initial.Add(pp.u.Mul(x[0])).Add(pp.v.Mul(x[1]))
	return spatialmath.NewPlane(normal, x[2]*normal.Norm())
}

// Residuals writes the negated signed distance of every point.
func (pp *PlaneProblem) Residuals(dst, x []float64) bool {
	plane := pp.Plane(x)
	if !plane.IsValid() {
		return false
	}
	for i, pt := range pp.Points {
		dst[i] = -plane.SignedDistance(pt)
	}
	return true
}

// OptimizePlane refines the plane so that the points lie on it.
func OptimizePlane(ctx context.Context, plane spatialmath.Plane, points []r3.Vector, opts Options) (spatialmath.Plane, Result, error) {
	if !plane.IsValid() {
		return plane, Result{}, errors.New("initial plane is not valid")
	}
	problem := NewPlaneProblem(plane, points)
	x, result, err := Optimize(ctx, problem, []float64{0, 0, plane.Distance}, opts)
	if err != nil {
		return plane, result, errors.Wrap(err, "plane refinement failed")
	}
	return problem.Plane(x), result, nil
}

// HomographyProblem refines a homography mapping PointsA onto PointsB. The parameters are the
// first eight elements in row major order with the last element fixed to one.
type HomographyProblem struct {
	PointsA []r2.Point
	PointsB []r2.Point
}

// Dims returns 8 parameters and one 2D residual per correspondence.
func (hp *HomographyProblem) Dims() (int, int, int) {
	return 8, len(hp.PointsA), 2
}

// Homography returns the homography described by the parameters.
func (hp *HomographyProblem) Homography(x []float64) *transform.Homography {
	return &transform.Homography{
		{x[0], x[1], x[2]},
		{x[3], x[4], x[5]},
		{x[6], x[7], 1},
	}
}

// Residuals writes point b minus the mapped point a for every correspondence.
func (hp *HomographyProblem) Residuals(dst, x []float64) bool {
	h := hp.Homography(x)
	for i, a := range hp.PointsA {
		mapped, ok := h.Apply(a)
		if !ok {
			return false
		}
		dst[2*i] = hp.PointsB[i].X - mapped.X
		dst[2*i+1] = hp.PointsB[i].Y - mapped.Y
	}
	return true
}

// Jacobian writes the analytic derivatives of the residuals.
func (hp *HomographyProblem) Jacobian(dst *mat.Dense, x []float64) bool {
	dst.Zero()
	for i, a := range hp.PointsA {
		z := x[6]*a.X + x[7]*a.Y + 1
		if math.Abs(z) < minDepth {
			return false
		}
		u := (x[0]*a.X + x[1]*a.Y + x[2]) / z
		v := (x[3]*a.X + x[4]*a.Y + x[5]) / z
		ru, rv := 2*i, 2*i+1
		dst.Set(ru, 0, -a.X/z)
		dst.Set(ru, 1, -a.Y/z)
		dst.Set(ru, 2, -1/z)
		dst.Set(ru, 6, u*a.X/z)
		dst.Set(ru, 7, u*a.Y/z)
		dst.Set(rv, 3, -a.X/z)
		dst.Set(rv, 4, -a.Y/z)
		dst.Set(rv, 5, -1/z)
		dst.Set(rv, 6, v*a.X/z)
		dst.Set(rv, 7, v*a.Y/z)
	}
	return true
}

// OptimizeHomography refines h so that it maps pointsA onto pointsB.
func OptimizeHomography(
	ctx context.Context,
	h *transform.Homography,
	pointsA, pointsB []r2.Point,
	opts Options,
) (*transform.Homography, Result, error) {
	if len(pointsA) != len(pointsB) {
		return h, Result{}, errors.Errorf("got %d points in the first image but %d in the second", len(pointsA), len(pointsB))
	}
	if math.Abs(h.At(2, 2)) < minDepth {
		return h, Result{}, errors.New("homography cannot be normalized")
	}
	normalized := h.Normalized()
	x0 := make([]float64, 8)
	for i := range x0 {
		x0[i] = normalized.At(i/3, i%3)
	}
	problem := &HomographyProblem{PointsA: pointsA, PointsB: pointsB}
	x, result, err := Optimize(ctx, problem, x0, opts)
	if err != nil {
		return h, result, errors.Wrap(err, "homography refinement failed")
	}
	return problem.Homography(x), result, nil
}

// ObjectPointProblem refines a 3D point observed by several cameras with known inverted flipped
// poses. The parameters are the coordinates of the point.
type ObjectPointProblem struct {
	Camera         transform.Camera
	FlippedTWorlds []spatialmath.Pose
	ImagePoints    []r2.Point
}

// Dims returns 3 parameters and one 2D residual per observation.
func (op *ObjectPointProblem) Dims() (int, int, int) {
	return 3, len(op.ImagePoints), 2
}

// Residuals writes image point minus projected point for every observation.
func (op *ObjectPointProblem) Residuals(dst, x []float64) bool {
	pt := r3.Vector{X: x[0], Y: x[1], Z: x[2]}
	for i, flippedTWorld := range op.FlippedTWorlds {
		inCamera := flippedTWorld.Transform(pt)
		if inCamera.Z <= minDepth {
			return false
		}
		projected := op.Camera.Project(inCamera)
		dst[2*i] = op.ImagePoints[i].X - projected.X
		dst[2*i+1] = op.ImagePoints[i].Y - projected.Y
	}
	return true
}

// OptimizeObjectPoint refines the point so that it projects onto the image points.
func OptimizeObjectPoint(
	ctx context.Context,
	camera transform.Camera,
	flippedTWorlds []spatialmath.Pose,
	pt r3.Vector,
	imagePoints []r2.Point,
	opts Options,
) (r3.Vector, Result, error) {
	if len(flippedTWorlds) != len(imagePoints) {
		return pt, Result{}, errors.Errorf("got %d camera poses but %d image points", len(flippedTWorlds), len(imagePoints))
	}
	problem := &ObjectPointProblem{Camera: camera, FlippedTWorlds: flippedTWorlds, ImagePoints: imagePoints}
	x, result, err := Optimize(ctx, problem, []float64{pt.X, pt.Y, pt.Z}, opts)
	if err != nil {
		return pt, result, errors.Wrap(err, "object point refinement failed")
	}
	return r3.Vector{X: x[0], Y: x[1], Z: x[2]}, result, nil
}
