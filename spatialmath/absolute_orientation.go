package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RigidTransformFromPoints returns the pose T minimizing the sum of |dst_i - T·src_i|². It needs
// at least three corresponding points that are not collinear.
func RigidTransformFromPoints(src, dst []r3.Vector) (Pose, bool) {
	if len(src) != len(dst) || len(src) < 3 {
		return Pose{}, false
	}
	srcCenter := centroid(src)
	dstCenter := centroid(dst)
	rotation, ok := kabsch(src, dst, srcCenter, dstCenter)
	if !ok {
		return Pose{}, false
	}
	return NewPose(rotation, dstCenter.Sub(rotation.Mul(srcCenter))), true
}

// RotationFromVectors returns the rotation R minimizing the sum of |dst_i - R·src_i|². It needs
// at least two vectors that are not parallel.
func RotationFromVectors(src, dst []r3.Vector) (RotationMatrix, bool) {
	if len(src) != len(dst) || len(src) < 2 {
		return RotationMatrix{}, false
	}
	return kabsch(src, dst, r3.Vector{}, r3.Vector{})
}

func centroid(pts []r3.Vector) r3.Vector {
	var sum r3.Vector
	for _, pt := range pts {
		sum = sum.Add(pt)
	}
	return sum.Mul(1 / float64(len(pts)))
}

// kabsch computes R = V·diag(1, 1, d)·Uᵀ from the SVD U·S·Vᵀ of the cross covariance of the
// centered point sets, with d correcting reflections.
func kabsch(src, dst []r3.Vector, srcCenter, dstCenter r3.Vector) (RotationMatrix, bool) {
	h := mat.NewDense(3, 3, nil)
	for i := range src {
		a := src[i].Sub(srcCenter)
		b := dst[i].Sub(dstCenter)
		av := []float64{a.X, a.Y, a.Z}
		bv := []float64{b.X, b.Y, b.Z}
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				h.Set(row, col, h.At(row, col)+av[row]*bv[col])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return RotationMatrix{}, false
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[1] <= 1e-12*values[0] {
		return RotationMatrix{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1
	}
	correction := mat.NewDiagDense(3, []float64{1, 1, d})
	var vd, r mat.Dense
	vd.Mul(&v, correction)
	r.Mul(&vd, u.T())
	return NewRotationMatrixFromDense(&r), true
}
