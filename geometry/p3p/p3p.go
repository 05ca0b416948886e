// Package p3p solves the perspective-three-point problem: the camera poses under which three
// known world points are seen along three given viewing rays.
package p3p

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/geomfit/spatialmath"
)

const (
	// rayTolerance bounds how far a unit ray may be from unit length.
	rayTolerance = 1e-6
	// consistencyTolerance bounds the distance between a recovered viewing direction and its ray.
	consistencyTolerance = 1e-6
)

// Poses returns every camera pose flipped_T_world that sees objectPoints[i] along rays[i], at most
// four. rays are unit vectors in the inverted flipped camera frame. Degenerate configurations,
// such as collinear object points or repeated rays, have no solutions.
//
// The distances along the rays are found with Grunert's formulation: with u = s2/s1 and
// v = s3/s1 the law of cosines for the three triangles through the camera center reduces to a
// quartic in v, whose real roots give the candidate distances. Each candidate set of camera
// frame points is then aligned with the object points.
func Poses(objectPoints, rays [3]r3.Vector) []spatialmath.Pose {
	for _, ray := range rays {
		if math.Abs(ray.Norm()-1) > rayTolerance {
			return nil
		}
	}
	if collinear(objectPoints) {
		return nil
	}

	cosAlpha := rays[1].Dot(rays[2])
	cosBeta := rays[0].Dot(rays[2])
	cosGamma := rays[0].Dot(rays[1])
	for _, c := range []float64{cosAlpha, cosBeta, cosGamma} {
		if c >= 1-1e-12 {
			return nil
		}
	}

	a2 := objectPoints[1].Sub(objectPoints[2]).Norm2()
	b2 := objectPoints[0].Sub(objectPoints[2]).Norm2()
	c2 := objectPoints[0].Sub(objectPoints[1]).Norm2()
	b := math.Sqrt(b2)

	k := (a2 - c2) / b2
	cb := c2 / b2
	// u = n(v) / d(v)
	n := polynomial{1 + k, -2 * k * cosBeta, k - 1}
	d := polynomial{2 * cosGamma, -2 * cosAlpha}
	// u² - 2u·cosGamma + q(v) = 0
	q := polynomial{1 - cb, 2 * cb * cosBeta, -cb}
	quartic := n.mul(n).add(n.mul(d).scale(-2 * cosGamma)).add(d.mul(d).mul(q))

	var poses []spatialmath.Pose
	for _, v := range quartic.realRoots() {
		if v <= 0 {
			continue
		}
		denominator := d.eval(v)
		if math.Abs(denominator) < 1e-12 {
			continue
		}
		u := n.eval(v) / denominator
		if u <= 0 {
			continue
		}
		radicand := 1 + v*v - 2*v*cosBeta
		if radicand <= 0 {
			continue
		}
		s1 := b / math.Sqrt(radicand)
		inCamera := []r3.Vector{rays[0].Mul(s1), rays[1].Mul(u * s1), rays[2].Mul(v * s1)}

		pose, ok := spatialmath.RigidTransformFromPoints(objectPoints[:], inCamera)
		if !ok || !consistent(pose, objectPoints, rays) || contains(poses, pose) {
			continue
		}
		poses = append(poses, pose)
	}
	return poses
}

func collinear(pts [3]r3.Vector) bool {
	v1 := pts[1].Sub(pts[0])
	v2 := pts[2].Sub(pts[0])
	scale := math.Max(v1.Norm2(), v2.Norm2())
	return scale == 0 || v1.Cross(v2).Norm2() <= 1e-20*scale*scale
}

// consistent reports whether the pose places every object point in front of the camera on its
// ray.
func consistent(flippedTWorld spatialmath.Pose, objectPoints, rays [3]r3.Vector) bool {
	if !flippedTWorld.IsValid() {
		return false
	}
	for i, pt := range objectPoints {
		inCamera := flippedTWorld.Transform(pt)
		if inCamera.Z <= 1e-12 {
			return false
		}
		if inCamera.Normalize().Sub(rays[i]).Norm() > consistencyTolerance {
			return false
		}
	}
	return true
}

func contains(poses []spatialmath.Pose, pose spatialmath.Pose) bool {
	for _, p := range poses {
		if spatialmath.PosesAlmostEqual(p, pose, 1e-8, 1e-8) {
			return true
		}
	}
	return false
}
