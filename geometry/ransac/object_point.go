package ransac

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/geomfit/geometry/nonlinear"
	"go.viam.com/geomfit/rimage/transform"
	"go.viam.com/geomfit/spatialmath"
	"go.viam.com/geomfit/utils"
)

// viewingRay is a ray in world coordinates.
type viewingRay struct {
	origin, direction r3.Vector
}

// nearestPoint returns the midpoint of the shortest segment between two rays. It returns false
// for parallel rays.
func nearestPoint(a, b viewingRay) (r3.Vector, bool) {
	w := a.origin.Sub(b.origin)
	dirA, dirB := a.direction, b.direction
	ab := dirA.Dot(dirB)
	denominator := 1 - ab*ab
	if denominator <= 1e-12 {
		return r3.Vector{}, false
	}
	sA := (ab*dirB.Dot(w) - dirA.Dot(w)) / denominator
	sB := (dirB.Dot(w) - ab*dirA.Dot(w)) / denominator
	onA := a.origin.Add(dirA.Mul(sA))
	onB := b.origin.Add(dirB.Mul(sB))
	return onA.Add(onB).Mul(0.5), true
}

// objectPointModel triangulates one 3D point observed by several posed cameras.
type objectPointModel struct {
	camera         transform.Camera
	flippedTWorlds []spatialmath.Pose
	imagePoints    []r2.Point
	rays           []viewingRay
}

func (om *objectPointModel) SampleSize() int {
	return 2
}

func (om *objectPointModel) Size() int {
	return len(om.imagePoints)
}

func (om *objectPointModel) Sample(indices []int) []r3.Vector {
	pt, ok := nearestPoint(om.rays[indices[0]], om.rays[indices[1]])
	if !ok {
		return nil
	}
	return []r3.Vector{pt}
}

func (om *objectPointModel) Error(pt r3.Vector, index int) (float64, bool) {
	inCamera := om.flippedTWorlds[index].Transform(pt)
	if inCamera.Z <= eps {
		return 0, false
	}
	return sqrDistance(om.camera.Project(inCamera), om.imagePoints[index]), true
}

func (om *objectPointModel) Refine(ctx context.Context, pt r3.Vector, inliers []int, cfg Config) (r3.Vector, nonlinear.Result, error) {
	return nonlinear.OptimizeObjectPoint(ctx, om.camera, subset(om.flippedTWorlds, inliers), pt,
		subset(om.imagePoints, inliers), cfg.NonlinearOptions())
}

// ObjectPoint triangulates the 3D point seen at imagePoints[i] by a camera with pose
// worldTCameras[i]. Candidates are the nearest points between two viewing rays and must lie in
// front of every camera they are scored against.
func ObjectPoint(
	ctx context.Context,
	camera transform.Camera,
	worldTCameras []spatialmath.Pose,
	imagePoints []r2.Point,
	cfg Config,
	rng *utils.RandomGenerator,
	logger golog.Logger,
) (*Result[r3.Vector], error) {
	if len(worldTCameras) != len(imagePoints) {
		return nil, errors.Errorf("got %d camera poses but %d image points", len(worldTCameras), len(imagePoints))
	}
	if len(imagePoints) < 2 {
		return nil, tooFew(len(imagePoints), 2)
	}
	if err := camera.CheckValid(); err != nil {
		return nil, err
	}
	om := &objectPointModel{
		camera:         camera,
		flippedTWorlds: make([]spatialmath.Pose, len(worldTCameras)),
		imagePoints:    imagePoints,
		rays:           make([]viewingRay, len(worldTCameras)),
	}
	for i, worldTCamera := range worldTCameras {
		flippedTWorld := spatialmath.StandardToInvertedFlipped(worldTCamera)
		worldTFlipped := flippedTWorld.Invert()
		om.flippedTWorlds[i] = flippedTWorld
		om.rays[i] = viewingRay{
			origin:    worldTCamera.Translation,
			direction: worldTFlipped.Rotation.Mul(camera.Ray(imagePoints[i])),
		}
	}
	result, err := Estimate[r3.Vector](ctx, om, cfg, rng, logger)
	if err != nil {
		return nil, errors.Wrap(err, "object point triangulation failed")
	}
	return result, nil
}
