package ransac

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/geomfit/geometry/nonlinear"
	"go.viam.com/geomfit/geometry/p3p"
	"go.viam.com/geomfit/rimage/transform"
	"go.viam.com/geomfit/spatialmath"
	"go.viam.com/geomfit/utils"
)

// minimalPoseCorrespondences is the smallest input pose estimation accepts: three points for the
// minimal solver and one more to tell its solutions apart.
const minimalPoseCorrespondences = 4

// PoseOption configures Pose.
type PoseOption func(*poseModel)

// WithRoughPose discards candidate poses further than maxTranslation or maxAngle radians from a
// known rough camera pose world_T_roughCamera.
func WithRoughPose(worldTRoughCamera spatialmath.Pose, maxTranslation, maxAngle float64) PoseOption {
	return func(pm *poseModel) {
		pm.rough = &roughPose{worldTCamera: worldTRoughCamera, maxTranslation: maxTranslation, maxAngle: maxAngle}
	}
}

// WithInverseCovariances weights the image points in the refinement, one 2x2 matrix per
// correspondence.
func WithInverseCovariances(inverseCovariances []*mat.SymDense) PoseOption {
	return func(pm *poseModel) {
		pm.inverseCovariances = inverseCovariances
	}
}

type roughPose struct {
	worldTCamera   spatialmath.Pose
	maxTranslation float64
	maxAngle       float64
}

// poseModel estimates flipped_T_world poses from 2D/3D correspondences.
type poseModel struct {
	camera             transform.Camera
	objectPoints       []r3.Vector
	imagePoints        []r2.Point
	rays               []r3.Vector
	rough              *roughPose
	inverseCovariances []*mat.SymDense
}

func (pm *poseModel) SampleSize() int {
	return 3
}

func (pm *poseModel) Size() int {
	return len(pm.objectPoints)
}

func (pm *poseModel) Sample(indices []int) []spatialmath.Pose {
	var objectPoints, rays [3]r3.Vector
	for i, index := range indices {
		objectPoints[i] = pm.objectPoints[index]
		rays[i] = pm.rays[index]
	}
	return p3p.Poses(objectPoints, rays)
}

func (pm *poseModel) Error(flippedTWorld spatialmath.Pose, index int) (float64, bool) {
	inCamera := flippedTWorld.Transform(pm.objectPoints[index])
	if inCamera.Z <= eps {
		return 0, false
	}
	return sqrDistance(pm.camera.Project(inCamera), pm.imagePoints[index]), true
}

func (pm *poseModel) Accept(flippedTWorld spatialmath.Pose) bool {
	if pm.rough == nil {
		return true
	}
	return spatialmath.PosesAlmostEqual(
		spatialmath.InvertedFlippedToStandard(flippedTWorld),
		pm.rough.worldTCamera,
		pm.rough.maxTranslation,
		pm.rough.maxAngle,
	)
}

func (pm *poseModel) Refine(
	ctx context.Context,
	flippedTWorld spatialmath.Pose,
	inliers []int,
	cfg Config,
) (spatialmath.Pose, nonlinear.Result, error) {
	opts := cfg.NonlinearOptions()
	if pm.inverseCovariances != nil {
		opts.InverseCovariances = subset(pm.inverseCovariances, inliers)
	}
	return nonlinear.OptimizePose(ctx, pm.camera, flippedTWorld, subset(pm.objectPoints, inliers), subset(pm.imagePoints, inliers), opts)
}

func sqrDistance(a, b r2.Point) float64 {
	d := a.Sub(b)
	return d.Dot(d)
}

func subset[T any](values []T, indices []int) []T {
	return lo.Map(indices, func(index, _ int) T {
		return values[index]
	})
}

// Pose estimates the pose world_T_camera of a camera observing objectPoints at imagePoints.
// Candidates come from the perspective-three-point solver, and the best one is refined on its
// inliers with the configured robust estimator.
func Pose(
	ctx context.Context,
	camera transform.Camera,
	objectPoints []r3.Vector,
	imagePoints []r2.Point,
	cfg Config,
	rng *utils.RandomGenerator,
	logger golog.Logger,
	opts ...PoseOption,
) (*Result[spatialmath.Pose], error) {
	if len(objectPoints) != len(imagePoints) {
		return nil, errors.Errorf("got %d object points but %d image points", len(objectPoints), len(imagePoints))
	}
	if len(objectPoints) < minimalPoseCorrespondences {
		return nil, tooFew(len(objectPoints), minimalPoseCorrespondences)
	}
	if err := camera.CheckValid(); err != nil {
		return nil, err
	}
	pm := &poseModel{
		camera:       camera,
		objectPoints: objectPoints,
		imagePoints:  imagePoints,
		rays:         lo.Map(imagePoints, func(pt r2.Point, _ int) r3.Vector { return camera.Ray(pt) }),
	}
	for _, opt := range opts {
		opt(pm)
	}
	if pm.inverseCovariances != nil && len(pm.inverseCovariances) != len(objectPoints) {
		return nil, errors.Errorf("got %d inverse covariances for %d correspondences", len(pm.inverseCovariances), len(objectPoints))
	}

	result, err := Estimate[spatialmath.Pose](ctx, pm, cfg, rng, logger)
	if err != nil {
		return nil, errors.Wrap(err, "pose estimation failed")
	}
	result.Model = spatialmath.InvertedFlippedToStandard(result.Model)
	return result, nil
}
