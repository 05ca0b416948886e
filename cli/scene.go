package cli

import (
	"encoding/json"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/geomfit/rimage/transform"
	"go.viam.com/geomfit/spatialmath"
	"go.viam.com/geomfit/utils"
)

// ScenePose is a pose stored as a rotation vector and a translation.
type ScenePose struct {
	Rotation    r3.Vector `json:"rotation"`
	Translation r3.Vector `json:"translation"`
}

// Pose returns the pose.
func (sp ScenePose) Pose() spatialmath.Pose {
	return spatialmath.NewPoseFromExponentialMap(sp.Rotation, sp.Translation)
}

// Scene is a camera observing known object points, with the ground truth pose when known.
type Scene struct {
	Intrinsics           *transform.PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	DistortionType       transform.DistortionType            `json:"distortion_type,omitempty"`
	DistortionParameters []float64                           `json:"distortion_parameters,omitempty"`
	WorldTCamera         *ScenePose                          `json:"world_T_camera,omitempty"`
	ObjectPoints         []r3.Vector                         `json:"object_points"`
	ImagePoints          []r2.Point                          `json:"image_points"`
	// Outliers lists the correspondences whose image point was moved away from the projection.
	Outliers []int `json:"outliers,omitempty"`
}

// Camera returns the camera model of the scene.
func (s *Scene) Camera() (*transform.PinholeCameraModel, error) {
	return transform.NewPinholeCameraModel(s.Intrinsics, s.DistortionType, s.DistortionParameters)
}

// LoadScene reads a scene from a JSON file.
func LoadScene(path string) (*Scene, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading scene")
	}
	scene := &Scene{}
	if err := json.Unmarshal(data, scene); err != nil {
		return nil, errors.Wrap(err, "error parsing scene")
	}
	if len(scene.ObjectPoints) != len(scene.ImagePoints) {
		return nil, errors.Errorf("scene has %d object points but %d image points", len(scene.ObjectPoints), len(scene.ImagePoints))
	}
	return scene, nil
}

// Save writes the scene to a JSON file.
func (s *Scene) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0o600), "error writing scene")
}

// SceneOptions describe a synthetic scene.
type SceneOptions struct {
	Points   int
	Outliers int
	// Noise is the standard deviation in pixels of the noise added to every image point.
	Noise float64
	// MinOutlierOffset is the smallest distance in pixels between an outlier and its projection.
	MinOutlierOffset float64
	// Intrinsics replaces the default 640x480 camera when set.
	Intrinsics *transform.PinholeCameraIntrinsics
}

const maxPlacementAttempts = 100

func defaultIntrinsics() *transform.PinholeCameraIntrinsics {
	return &transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 520, Fy: 515, Ppx: 320, Ppy: 240}
}

// NewSyntheticScene creates a camera with mild radial distortion at a random pose, observing
// points between 4 and 10 units in front of it. Every image point, outliers included, lies inside
// the image. The first opts.Outliers correspondences are outliers.
func NewSyntheticScene(rng *utils.RandomGenerator, opts SceneOptions) (*Scene, error) {
	if opts.Points < 1 || opts.Outliers < 0 || opts.Outliers > opts.Points {
		return nil, errors.Errorf("cannot create %d points with %d outliers", opts.Points, opts.Outliers)
	}
	if opts.MinOutlierOffset <= 0 {
		opts.MinOutlierOffset = 50
	}
	intrinsics := opts.Intrinsics
	if intrinsics == nil {
		intrinsics = defaultIntrinsics()
	}
	scene := &Scene{
		Intrinsics:           intrinsics,
		DistortionType:       transform.BrownConradyDistortionType,
		DistortionParameters: []float64{-0.05, 0.01, 0, 0.001, -0.001},
		WorldTCamera: &ScenePose{
			Rotation:    r3.Vector{X: rng.UniformFloat(-0.5, 0.5), Y: rng.UniformFloat(-0.5, 0.5), Z: rng.UniformFloat(-math.Pi, math.Pi)},
			Translation: r3.Vector{X: rng.UniformFloat(-5, 5), Y: rng.UniformFloat(-5, 5), Z: rng.UniformFloat(-5, 5)},
		},
	}
	camera, err := scene.Camera()
	if err != nil {
		return nil, err
	}
	width, height := float64(intrinsics.Width), float64(intrinsics.Height)
	worldTFlipped := spatialmath.StandardToInvertedFlipped(scene.WorldTCamera.Pose()).Invert()
	for i := 0; i < opts.Points; i++ {
		var inCamera r3.Vector
		var px r2.Point
		placed := false
		for attempt := 0; attempt < maxPlacementAttempts && !placed; attempt++ {
			x, y, z := intrinsics.PixelToPoint(rng.UniformFloat(0.1*width, 0.9*width), rng.UniformFloat(0.1*height, 0.9*height),
				rng.UniformFloat(4, 10))
			inCamera = r3.Vector{X: x, Y: y, Z: z}
			px = camera.Project(inCamera)
			if i < opts.Outliers {
				angle := rng.UniformFloat(0, 2*math.Pi)
				offset := rng.UniformFloat(opts.MinOutlierOffset, 2*opts.MinOutlierOffset)
				px = px.Add(r2.Point{X: math.Cos(angle), Y: math.Sin(angle)}.Mul(offset))
			} else if opts.Noise > 0 {
				px = px.Add(r2.Point{X: rng.NormFloat64(), Y: rng.NormFloat64()}.Mul(opts.Noise))
			}
			placed = intrinsics.InImage(px)
		}
		if !placed {
			return nil, errors.Errorf("cannot place correspondence %d inside a %dx%d image", i, intrinsics.Width, intrinsics.Height)
		}
		if i < opts.Outliers {
			scene.Outliers = append(scene.Outliers, i)
		}
		scene.ObjectPoints = append(scene.ObjectPoints, worldTFlipped.Transform(inCamera))
		scene.ImagePoints = append(scene.ImagePoints, px)
	}
	return scene, nil
}
