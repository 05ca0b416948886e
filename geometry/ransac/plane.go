package ransac

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/geomfit/geometry/nonlinear"
	"go.viam.com/geomfit/spatialmath"
	"go.viam.com/geomfit/utils"
)

// DefaultMaxNormalAngle is the largest angle in radians between a candidate normal and the
// initial plane's normal when PlaneOptions.MaxNormalAngle is zero.
var DefaultMaxNormalAngle = utils.DegToRad(30)

// PlaneOptions configure Plane.
type PlaneOptions struct {
	// InitialPlane, when set, orients candidates towards its normal and rejects candidates whose
	// normal deviates by more than MaxNormalAngle radians. Zero uses DefaultMaxNormalAngle.
	InitialPlane   *spatialmath.Plane `json:"initial_plane,omitempty"`
	MaxNormalAngle float64            `json:"max_normal_angle"`
	// MedianDistanceFactor, when positive, replaces the configured error threshold: the largest
	// inlier distance becomes this factor times the median distance of the points to the
	// initial plane, or without one, to their component-wise median.
	MedianDistanceFactor float64 `json:"median_distance_factor"`
}

type planeModel struct {
	points          []r3.Vector
	initial         *spatialmath.Plane
	minNormalCosine float64
}

func (pm *planeModel) SampleSize() int {
	return 3
}

func (pm *planeModel) Size() int {
	return len(pm.points)
}

func (pm *planeModel) Sample(indices []int) []spatialmath.Plane {
	plane, ok := spatialmath.NewPlaneFromPoints(pm.points[indices[0]], pm.points[indices[1]], pm.points[indices[2]])
	if !ok {
		return nil
	}
	if pm.initial != nil && plane.Normal.Dot(pm.initial.Normal) < 0 {
		plane = spatialmath.Plane{Normal: plane.Normal.Mul(-1), Distance: -plane.Distance}
	}
	return []spatialmath.Plane{plane}
}

func (pm *planeModel) Error(plane spatialmath.Plane, index int) (float64, bool) {
	return utils.Square(plane.SignedDistance(pm.points[index])), true
}

func (pm *planeModel) Accept(plane spatialmath.Plane) bool {
	return pm.initial == nil || plane.Normal.Dot(pm.initial.Normal) >= pm.minNormalCosine
}

func (pm *planeModel) Refine(ctx context.Context, plane spatialmath.Plane, inliers []int, cfg Config) (spatialmath.Plane, nonlinear.Result, error) {
	return nonlinear.OptimizePlane(ctx, plane, subset(pm.points, inliers), cfg.NonlinearOptions())
}

// medianPoint returns the component-wise median of the points.
func medianPoint(points []r3.Vector) r3.Vector {
	return r3.Vector{
		X: utils.Median(lo.Map(points, func(pt r3.Vector, _ int) float64 { return pt.X })...),
		Y: utils.Median(lo.Map(points, func(pt r3.Vector, _ int) float64 { return pt.Y })...),
		Z: utils.Median(lo.Map(points, func(pt r3.Vector, _ int) float64 { return pt.Z })...),
	}
}

// Plane estimates the plane through most of the points.
func Plane(
	ctx context.Context,
	points []r3.Vector,
	opts PlaneOptions,
	cfg Config,
	rng *utils.RandomGenerator,
	logger golog.Logger,
) (*Result[spatialmath.Plane], error) {
	if len(points) < 3 {
		return nil, tooFew(len(points), 3)
	}
	maxNormalAngle := opts.MaxNormalAngle
	if maxNormalAngle == 0 {
		maxNormalAngle = DefaultMaxNormalAngle
	}
	if !(maxNormalAngle > 0) {
		return nil, errors.Errorf("max_normal_angle must be positive, got %v", opts.MaxNormalAngle)
	}
	pm := &planeModel{points: points, minNormalCosine: math.Cos(maxNormalAngle)}
	if opts.InitialPlane != nil {
		if !opts.InitialPlane.IsValid() {
			return nil, errors.New("initial plane is not valid")
		}
		pm.initial = opts.InitialPlane
	}

	if opts.MedianDistanceFactor > 0 {
		var distances []float64
		if pm.initial != nil {
			distances = lo.Map(points, func(pt r3.Vector, _ int) float64 { return math.Abs(pm.initial.SignedDistance(pt)) })
		} else {
			center := medianPoint(points)
			distances = lo.Map(points, func(pt r3.Vector, _ int) float64 { return pt.Distance(center) })
		}
		maxDistance := utils.Median(distances...) * opts.MedianDistanceFactor
		cfg.SqrErrorThreshold = maxDistance * maxDistance
		logger.Debugw("plane inlier threshold from median distance", "max_distance", maxDistance)
	}

	result, err := Estimate[spatialmath.Plane](ctx, pm, cfg, rng, logger)
	if err != nil {
		return nil, errors.Wrap(err, "plane estimation failed")
	}
	return result, nil
}
