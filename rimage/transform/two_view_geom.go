package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateCorrespondences is returned when point correspondences do not determine a model.
var ErrDegenerateCorrespondences = errors.New("degenerate point correspondences")

// EstimateHomographyDLT computes the homography mapping src to dst with the normalized direct
// linear transform (Multiple View Geometry, Alg 4.2). It needs at least 4 correspondences, no
// three of which are collinear when exactly 4 are given.
func EstimateHomographyDLT(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.New("sets of points src and dst must have the same number of elements")
	}
	if len(src) < 4 {
		return nil, errors.New("sets of points must have at least 4 elements")
	}
	if len(src) == 4 && (hasCollinearTriple(src) || hasCollinearTriple(dst)) {
		return nil, ErrDegenerateCorrespondences
	}
	points1, t1, ok1 := normalizePoints(src)
	points2, t2, ok2 := normalizePoints(dst)
	if !ok1 || !ok2 {
		return nil, ErrDegenerateCorrespondences
	}

	rows := 2 * len(src)
	if rows < 9 {
		// pad with a zero row so that the full decomposition has a null space column
		rows = 9
	}
	m := mat.NewDense(rows, 9, nil)
	for i := range points1 {
		x, y := points1[i].X, points1[i].Y
		u, v := points2[i].X, points2[i].Y
		m.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		m.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	mats := performSVD(m)
	if mats == nil {
		return nil, errors.New("SVD of the DLT system failed")
	}
	// the solution is the right singular vector of the smallest singular value
	lastColV := mats.V.ColView(8)
	data := make([]float64, 9)
	for i := range data {
		data[i] = lastColV.AtVec(i)
	}
	hNorm := mat.NewDense(3, 3, data)

	// denormalize: T2^-1 @ H @ T1
	var t2Inv mat.Dense
	if err := t2Inv.Inverse(t2); err != nil {
		return nil, errors.Wrap(err, "normalization transform is singular")
	}
	var partial, h mat.Dense
	partial.Mul(&t2Inv, hNorm)
	h.Mul(&partial, t1)

	out := NewHomographyFromDense(&h).Normalized()
	if !out.IsValid() {
		return nil, ErrDegenerateCorrespondences
	}
	return out, nil
}

// hasCollinearTriple reports whether any three of the points are (nearly) collinear.
func hasCollinearTriple(pts []r2.Point) bool {
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				a := pts[j].Sub(pts[i])
				b := pts[k].Sub(pts[i])
				scale := math.Max(a.Norm(), b.Norm())
				if scale == 0 || math.Abs(a.Cross(b)) <= 1e-9*scale*scale {
					return true
				}
			}
		}
	}
	return false
}

// helpers
// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2: translate the
// centroid to the origin and scale so that the mean distance to it is sqrt(2).
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, bool) {
	nPoints := len(pts)
	mu := r2.Point{X: 0, Y: 0}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))

	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	if d < 1e-12 {
		return nil, nil, false
	}
	scale := math.Sqrt(2) / d
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	T := mat.NewDense(3, 3, transformData)
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T, true
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
func performSVD(inputMatrix *mat.Dense) *matsSVD {
	var svd mat.SVD
	ok := svd.Factorize(inputMatrix, mat.SVDFull)
	if !ok {
		return nil
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}

	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	singularValues := svd.Values(nil)
	sigma.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))

	return &matsSVD{u, v, vt, sigma}
}
