package nonlinear

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"go.viam.com/geomfit/geometry/estimator"
	"go.viam.com/geomfit/rimage/transform"
	"go.viam.com/geomfit/spatialmath"
	"go.viam.com/geomfit/utils"
)

// exponentialFit fits y = a·exp(b·t).
type exponentialFit struct {
	t, y []float64
}

func (ef *exponentialFit) Dims() (int, int, int) {
	return 2, len(ef.t), 1
}

func (ef *exponentialFit) Residuals(dst, x []float64) bool {
	for i := range ef.t {
		dst[i] = ef.y[i] - x[0]*math.Exp(x[1]*ef.t[i])
	}
	return true
}

// location estimates a single value from samples.
type location []float64

func (l location) Dims() (int, int, int) {
	return 1, len(l), 1
}

func (l location) Residuals(dst, x []float64) bool {
	for i, v := range l {
		dst[i] = v - x[0]
	}
	return true
}

// flat has residuals that do not depend on its parameters.
type flat struct{}

func (flat) Dims() (int, int, int) {
	return 2, 3, 1
}

func (flat) Residuals(dst, x []float64) bool {
	for i := range dst {
		dst[i] = 1
	}
	return true
}

func testCamera(t *testing.T) *transform.PinholeCameraModel {
	t.Helper()
	camera, err := transform.NewPinholeCameraModel(&transform.PinholeCameraIntrinsics{
		Width: 640, Height: 480, Fx: 500, Fy: 510, Ppx: 320, Ppy: 240,
	}, transform.BrownConradyDistortionType, []float64{0.05, -0.01})
	test.That(t, err, test.ShouldBeNil)
	return camera
}

func TestOptionsValidate(t *testing.T) {
	test.That(t, DefaultOptions().Validate(), test.ShouldBeNil)

	opts := Options{Iterations: -1, Estimator: "none", Lambda: 1, LambdaFactor: 1, Sigma: -1}
	err := opts.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	for _, msg := range []string{"iterations", "estimator", "lambda factor", "sigma"} {
		test.That(t, err.Error(), test.ShouldContainSubstring, msg)
	}
}

func TestOptimizeMatchesNelderMead(t *testing.T) {
	problem := &exponentialFit{}
	for i := 0; i < 12; i++ {
		ti := float64(i) * 0.25
		problem.t = append(problem.t, ti)
		problem.y = append(problem.y, 2*math.Exp(-0.7*ti)+0.01*math.Sin(float64(i)))
	}
	x, result, err := Optimize(context.Background(), problem, []float64{1, 0}, DefaultOptions())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.FinalError, test.ShouldBeLessThan, result.InitialError)
	test.That(t, result.Iterations, test.ShouldBeGreaterThan, 0)
	test.That(t, result.Iterations, test.ShouldBeLessThanOrEqualTo, DefaultOptions().Iterations)

	sumSquares := func(x []float64) float64 {
		r := make([]float64, len(problem.t))
		problem.Residuals(r, x)
		total := 0.0
		for _, v := range r {
			total += v * v
		}
		return total
	}
	reference, err := optimize.Minimize(optimize.Problem{Func: sumSquares}, []float64{1, 0}, &optimize.Settings{
		Converger: &optimize.FunctionConverge{Absolute: 1e-14, Relative: 1e-14, Iterations: 200},
	}, &optimize.NelderMead{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, x[0], test.ShouldAlmostEqual, reference.X[0], 1e-4)
	test.That(t, x[1], test.ShouldAlmostEqual, reference.X[1], 1e-4)
	test.That(t, result.FinalError*float64(len(problem.t)), test.ShouldBeLessThanOrEqualTo, reference.F+1e-9)
}

func TestOptimizeNeverIncreasesError(t *testing.T) {
	problem := &exponentialFit{t: []float64{0, 1, 2, 3}, y: []float64{1, 3, 2, 7}}
	for _, kind := range estimator.Kinds() {
		for _, lambda := range []float64{0, 0.001, 10} {
			opts := DefaultOptions()
			opts.Estimator = kind
			opts.Lambda = lambda
			_, result, err := Optimize(context.Background(), problem, []float64{0.5, 0.5}, opts)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, result.FinalError, test.ShouldBeLessThanOrEqualTo, result.InitialError)
		}
	}
}

func TestOptimizeRobustEstimator(t *testing.T) {
	samples := location{1, 1.1, 0.9, 1.05, 0.95, 1.02, 50}

	x, _, err := Optimize(context.Background(), samples, []float64{1}, DefaultOptions())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, x[0], test.ShouldAlmostEqual, 56.02/7, 1e-6)

	opts := DefaultOptions()
	opts.Estimator = estimator.Tukey
	x, _, err = Optimize(context.Background(), samples, []float64{1}, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, x[0], test.ShouldAlmostEqual, 1, 0.1)
}

func TestOptimizeFailures(t *testing.T) {
	_, _, err := Optimize(context.Background(), flat{}, []float64{0, 0}, DefaultOptions())
	test.That(t, errors.Is(err, ErrSingularSystem), test.ShouldBeTrue)

	_, _, err = Optimize(context.Background(), flat{}, []float64{0}, DefaultOptions())
	test.That(t, err, test.ShouldNotBeNil)

	camera := testCamera(t)
	behind := []r3.Vector{{X: 0, Y: 0, Z: -5}}
	_, _, err = OptimizePose(context.Background(), camera, spatialmath.NewZeroPose(), behind, []r2.Point{{X: 320, Y: 240}}, DefaultOptions())
	test.That(t, errors.Is(err, ErrInvalidInitialParameters), test.ShouldBeTrue)

	_, _, err = OptimizePose(context.Background(), camera, spatialmath.NewZeroPose(), behind, nil, DefaultOptions())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOptimizePose(t *testing.T) {
	camera := testCamera(t)
	rng := utils.NewRandomGenerator(3)
	truth := spatialmath.NewPoseFromExponentialMap(r3.Vector{X: 0.1, Y: -0.2, Z: 0.05}, r3.Vector{X: 0.2, Y: -0.1, Z: 5})

	objectPoints := make([]r3.Vector, 15)
	imagePoints := make([]r2.Point, len(objectPoints))
	for i := range objectPoints {
		objectPoints[i] = r3.Vector{X: rng.UniformFloat(-1, 1), Y: rng.UniformFloat(-1, 1), Z: rng.UniformFloat(-1, 1)}
		imagePoints[i] = camera.Project(truth.Transform(objectPoints[i]))
	}

	w, tr := truth.ExponentialMap()
	start := spatialmath.NewPoseFromExponentialMap(w.Add(r3.Vector{X: 0.03, Y: -0.02, Z: 0.02}), tr.Add(r3.Vector{X: 0.1, Y: 0.05, Z: -0.2}))

	opts := DefaultOptions()
	opts.Iterations = 50
	refined, result, err := OptimizePose(context.Background(), camera, start, objectPoints, imagePoints, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.FinalError, test.ShouldBeLessThan, result.InitialError)
	test.That(t, result.FinalError, test.ShouldBeLessThan, 1e-12)
	test.That(t, spatialmath.PosesAlmostEqual(refined, truth, 1e-6, 1e-6), test.ShouldBeTrue)

	// identity covariances do not change the solution
	covariances := make([]*mat.SymDense, len(objectPoints))
	for i := range covariances {
		covariances[i] = mat.NewSymDense(2, []float64{1, 0, 0, 1})
	}
	opts.InverseCovariances = covariances
	refined, _, err = OptimizePose(context.Background(), camera, start, objectPoints, imagePoints, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.PosesAlmostEqual(refined, truth, 1e-6, 1e-6), test.ShouldBeTrue)

	opts.InverseCovariances = covariances[1:]
	_, _, err = OptimizePose(context.Background(), camera, start, objectPoints, imagePoints, opts)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOptimizeOrientation(t *testing.T) {
	camera := testCamera(t)
	truth := spatialmath.ExpMap(r3.Vector{X: 0.05, Y: 0.1, Z: -0.3})
	rng := utils.NewRandomGenerator(5)
	var objectPoints []r3.Vector
	var imagePoints []r2.Point
	for i := 0; i < 8; i++ {
		inCamera := r3.Vector{X: rng.UniformFloat(-1, 1), Y: rng.UniformFloat(-1, 1), Z: rng.UniformFloat(2, 6)}
		objectPoints = append(objectPoints, truth.Transpose().Mul(inCamera))
		imagePoints = append(imagePoints, camera.Project(inCamera))
	}
	start := spatialmath.ExpMap(r3.Vector{X: 0.08, Y: 0.07, Z: -0.25})
	refined, result, err := OptimizeOrientation(context.Background(), camera, start, objectPoints, imagePoints, DefaultOptions())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.FinalError, test.ShouldBeLessThan, result.InitialError)
	test.That(t, spatialmath.RotationAngleBetween(refined, truth), test.ShouldBeLessThan, 1e-6)
}

func TestOptimizePlane(t *testing.T) {
	truth := spatialmath.NewPlane(r3.Vector{X: 0.2, Y: -0.3, Z: 1}, -2)
	u, v := spatialmath.OrthogonalBasis(truth.Normal)
	var points []r3.Vector
	for i := -2; i <= 2; i++ {
		for j := -2; j <= 2; j++ {
			onPlane := truth.Normal.Mul(-truth.Distance).Add(u.Mul(float64(i))).Add(v.Mul(float64(j)))
			points = append(points, onPlane)
		}
	}
	start := spatialmath.NewPlane(r3.Vector{X: 0.25, Y: -0.2, Z: 1}, -1.8)
	refined, result, err := OptimizePlane(context.Background(), start, points, DefaultOptions())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.FinalError, test.ShouldBeLessThan, 1e-14)
	test.That(t, refined.Normal.Sub(truth.Normal).Norm(), test.ShouldBeLessThan, 1e-6)
	test.That(t, refined.Distance, test.ShouldAlmostEqual, truth.Distance, 1e-6)

	_, _, err = OptimizePlane(context.Background(), spatialmath.Plane{}, points, DefaultOptions())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestHomographyJacobian(t *testing.T) {
	problem := &HomographyProblem{
		PointsA: []r2.Point{{X: 1, Y: 2}, {X: -3, Y: 0.5}, {X: 4, Y: -1}},
		PointsB: []r2.Point{{X: 0, Y: 1}, {X: 2, Y: 2}, {X: 1, Y: 0}},
	}
	x := []float64{1.1, 0.1, 3, -0.2, 0.9, -1, 0.01, -0.02}
	analytic := mat.NewDense(6, 8, nil)
	test.That(t, problem.Jacobian(analytic, x), test.ShouldBeTrue)

	numeric := mat.NewDense(6, 8, nil)
	fd.Jacobian(numeric, func(y, x []float64) { problem.Residuals(y, x) }, x, &fd.JacobianSettings{Formula: fd.Central})
	test.That(t, mat.EqualApprox(analytic, numeric, 1e-6), test.ShouldBeTrue)
}

func TestOptimizeHomography(t *testing.T) {
	truth := &transform.Homography{{1.2, 0.1, 5}, {-0.05, 0.95, -3}, {0.001, 0.0005, 1}}
	var pointsA, pointsB []r2.Point
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			a := r2.Point{X: float64(i * 40), Y: float64(j * 30)}
			b, ok := truth.Apply(a)
			test.That(t, ok, test.ShouldBeTrue)
			pointsA = append(pointsA, a)
			pointsB = append(pointsB, b)
		}
	}
	start := &transform.Homography{{1.1, 0.12, 4}, {-0.04, 1, -2}, {0.0009, 0.0006, 1}}
	refined, result, err := OptimizeHomography(context.Background(), start, pointsA, pointsB, DefaultOptions())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.FinalError, test.ShouldBeLessThan, result.InitialError)
	for i, a := range pointsA {
		mapped, ok := refined.Apply(a)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, mapped.Sub(pointsB[i]).Norm(), test.ShouldBeLessThan, 1e-6)
	}
}
