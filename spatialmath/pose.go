package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"

	"go.viam.com/geomfit/utils"
)

// Pose is a rigid transformation taking a point p to Rotation*p + Translation.
//
// Two conventions are used for camera poses. The standard pose world_T_camera maps camera
// coordinates into the world, with the camera looking down its negative z axis and y pointing up.
// The inverted flipped pose flipped_T_world maps world coordinates into a camera frame looking
// down the positive z axis with y pointing down, which is the frame projection happens in.
type Pose struct {
	Rotation    RotationMatrix
	Translation r3.Vector
}

// flip rotates 180 degrees about the x axis.
var flip = Pose{Rotation: RotationMatrix{[9]float64{1, 0, 0, 0, -1, 0, 0, 0, -1}}}

// NewZeroPose returns the identity transformation.
func NewZeroPose() Pose {
	return Pose{Rotation: NewIdentityRotation()}
}

// NewPose creates a pose from a rotation and a translation.
func NewPose(rotation RotationMatrix, translation r3.Vector) Pose {
	return Pose{Rotation: rotation, Translation: translation}
}

// NewPoseFromExponentialMap creates a pose from a rotation vector and a translation.
func NewPoseFromExponentialMap(rotation, translation r3.Vector) Pose {
	return Pose{Rotation: ExpMap(rotation), Translation: translation}
}

// ExponentialMap returns the rotation vector and translation of the pose.
func (p Pose) ExponentialMap() (r3.Vector, r3.Vector) {
	return LogMap(p.Rotation), p.Translation
}

// Transform applies the pose to a point.
func (p Pose) Transform(pt r3.Vector) r3.Vector {
	return p.Rotation.Mul(pt).Add(p.Translation)
}

// Compose returns p * other, the transformation applying other first.
func (p Pose) Compose(other Pose) Pose {
	return Pose{
		Rotation:    p.Rotation.MulMatrix(other.Rotation),
		Translation: p.Rotation.Mul(other.Translation).Add(p.Translation),
	}
}

// Invert returns the inverse transformation.
func (p Pose) Invert() Pose {
	rt := p.Rotation.Transpose()
	return Pose{Rotation: rt, Translation: rt.Mul(p.Translation).Mul(-1)}
}

// IsValid reports whether the pose is finite and its rotation is orthonormal.
func (p Pose) IsValid() bool {
	return utils.IsFinite(p.Translation.X, p.Translation.Y, p.Translation.Z) && p.Rotation.IsOrthonormal(1e-6)
}

func (p Pose) String() string {
	w := LogMap(p.Rotation)
	return fmt.Sprintf("{rotation: (%.6f, %.6f, %.6f) translation: (%.6f, %.6f, %.6f)}",
		w.X, w.Y, w.Z, p.Translation.X, p.Translation.Y, p.Translation.Z)
}

// StandardToInvertedFlipped converts world_T_camera into flipped_T_world.
func StandardToInvertedFlipped(worldTCamera Pose) Pose {
	return flip.Compose(worldTCamera.Invert())
}

// InvertedFlippedToStandard converts flipped_T_world into world_T_camera.
func InvertedFlippedToStandard(flippedTWorld Pose) Pose {
	return flip.Compose(flippedTWorld).Invert()
}

// PosesAlmostEqual reports whether the translations differ by at most maxTranslation and the
// rotations by at most maxAngle radians.
func PosesAlmostEqual(a, b Pose, maxTranslation, maxAngle float64) bool {
	if a.Translation.Sub(b.Translation).Norm() > maxTranslation {
		return false
	}
	return RotationAngleBetween(a.Rotation, b.Rotation) <= maxAngle
}

// IsInFrontOfCamera reports whether a world point lies in front of the camera given by
// flippedTWorld.
func IsInFrontOfCamera(flippedTWorld Pose, pt r3.Vector) bool {
	return flippedTWorld.Transform(pt).Z > 1e-12
}
