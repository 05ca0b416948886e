package ransac

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/geomfit/geometry/nonlinear"
	"go.viam.com/geomfit/rimage/transform"
	"go.viam.com/geomfit/spatialmath"
	"go.viam.com/geomfit/utils"
)

// orientationModel estimates the rotation flipped_R_world of a camera located at the origin.
type orientationModel struct {
	camera       transform.Camera
	objectPoints []r3.Vector
	directions   []r3.Vector
	imagePoints  []r2.Point
	rays         []r3.Vector
}

func (om *orientationModel) SampleSize() int {
	return 2
}

func (om *orientationModel) Size() int {
	return len(om.objectPoints)
}

func (om *orientationModel) Sample(indices []int) []spatialmath.RotationMatrix {
	rotation, ok := spatialmath.RotationFromVectors(subset(om.directions, indices), subset(om.rays, indices))
	if !ok {
		return nil
	}
	return []spatialmath.RotationMatrix{rotation}
}

func (om *orientationModel) Error(flippedRWorld spatialmath.RotationMatrix, index int) (float64, bool) {
	inCamera := flippedRWorld.Mul(om.objectPoints[index])
	if inCamera.Z <= eps {
		return 0, false
	}
	return sqrDistance(om.camera.Project(inCamera), om.imagePoints[index]), true
}

func (om *orientationModel) Refine(
	ctx context.Context,
	flippedRWorld spatialmath.RotationMatrix,
	inliers []int,
	cfg Config,
) (spatialmath.RotationMatrix, nonlinear.Result, error) {
	return nonlinear.OptimizeOrientation(ctx, om.camera, flippedRWorld,
		subset(om.objectPoints, inliers), subset(om.imagePoints, inliers), cfg.NonlinearOptions())
}

// Orientation estimates the rotation world_R_camera of a camera at the world origin observing
// objectPoints at imagePoints.
func Orientation(
	ctx context.Context,
	camera transform.Camera,
	objectPoints []r3.Vector,
	imagePoints []r2.Point,
	cfg Config,
	rng *utils.RandomGenerator,
	logger golog.Logger,
) (*Result[spatialmath.RotationMatrix], error) {
	if len(objectPoints) != len(imagePoints) {
		return nil, errors.Errorf("got %d object points but %d image points", len(objectPoints), len(imagePoints))
	}
	if err := camera.CheckValid(); err != nil {
		return nil, err
	}
	for i, pt := range objectPoints {
		if pt.Norm() <= eps {
			return nil, errors.Errorf("object point %d coincides with the camera center", i)
		}
	}
	om := &orientationModel{
		camera:       camera,
		objectPoints: objectPoints,
		directions:   lo.Map(objectPoints, func(pt r3.Vector, _ int) r3.Vector { return pt.Normalize() }),
		imagePoints:  imagePoints,
		rays:         lo.Map(imagePoints, func(pt r2.Point, _ int) r3.Vector { return camera.Ray(pt) }),
	}
	result, err := Estimate[spatialmath.RotationMatrix](ctx, om, cfg, rng, logger)
	if err != nil {
		return nil, errors.Wrap(err, "orientation estimation failed")
	}
	result.Model = spatialmath.InvertedFlippedToStandard(spatialmath.NewPose(result.Model, r3.Vector{})).Rotation
	return result, nil
}
