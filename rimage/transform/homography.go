package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) used to transform a plane from the perspective of a 2D
// camera to the perspective of another 2D camera. Indices are [row][column].
type Homography [3][3]float64

// NewHomographyFromDense copies a 3x3 gonum matrix.
func NewHomographyFromDense(m mat.Matrix) *Homography {
	var h Homography
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			h[row][col] = m.At(row, col)
		}
	}
	return &h
}

// At returns the value of the homography at the given row and column.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Dense returns the homography as a gonum matrix.
func (h *Homography) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
}

// Apply transforms the point. It returns false when the point is mapped to infinity.
func (h *Homography) Apply(pt r2.Point) (r2.Point, bool) {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	if math.Abs(z) < 1e-12 {
		return r2.Point{}, false
	}
	return r2.Point{X: x / z, Y: y / z}, true
}

// Normalized scales the homography so that its bottom right element is one, or to unit
// Frobenius norm when that element vanishes.
func (h *Homography) Normalized() *Homography {
	out := *h
	scale := h[2][2]
	if math.Abs(scale) < 1e-12 {
		scale = mat.Norm(h.Dense(), 2)
	}
	if scale == 0 {
		return &out
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			out[row][col] /= scale
		}
	}
	return &out
}

// IsValid reports whether the homography is finite and not singular.
func (h *Homography) IsValid() bool {
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			if math.IsNaN(h[row][col]) || math.IsInf(h[row][col], 0) {
				return false
			}
		}
	}
	return math.Abs(mat.Det(h.Dense())) > 1e-12
}
