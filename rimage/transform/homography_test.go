package transform

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestHomographyApply(t *testing.T) {
	h := &Homography{
		{2.32700501e-01, -8.33535395e-03, -3.61894025e+01},
		{-1.90671303e-03, 2.35303232e-01, 8.38582614e+00},
		{-6.39101664e-05, -4.64582754e-05, 1.00000000e+00},
	}
	test.That(t, h.IsValid(), test.ShouldBeTrue)

	pt := r2.Point{X: 120, Y: 80}
	mapped, ok := h.Apply(pt)
	test.That(t, ok, test.ShouldBeTrue)
	z := h[2][0]*pt.X + h[2][1]*pt.Y + h[2][2]
	test.That(t, mapped.X, test.ShouldAlmostEqual, (h[0][0]*pt.X+h[0][1]*pt.Y+h[0][2])/z, 1e-12)
	test.That(t, mapped.Y, test.ShouldAlmostEqual, (h[1][0]*pt.X+h[1][1]*pt.Y+h[1][2])/z, 1e-12)

	scaled := *h
	for row := range scaled {
		for col := range scaled[row] {
			scaled[row][col] *= 4
		}
	}
	normalized := scaled.Normalized()
	test.That(t, normalized.At(2, 2), test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, normalized.At(0, 2), test.ShouldAlmostEqual, h.At(0, 2), 1e-9)

	singular := &Homography{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}
	test.That(t, singular.IsValid(), test.ShouldBeFalse)
}

func TestEstimateHomographyDLT(t *testing.T) {
	truth := &Homography{
		{1.1, 0.05, 12},
		{-0.02, 0.95, -7},
		{1e-4, -2e-4, 1},
	}

	src := []r2.Point{{X: 10, Y: 10}, {X: 300, Y: 20}, {X: 280, Y: 250}, {X: 30, Y: 260}, {X: 150, Y: 130}, {X: 60, Y: 200}}
	dst := make([]r2.Point, len(src))
	for i, pt := range src {
		dst[i], _ = truth.Apply(pt)
	}

	for _, n := range []int{4, len(src)} {
		h, err := EstimateHomographyDLT(src[:n], dst[:n])
		test.That(t, err, test.ShouldBeNil)
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				test.That(t, h.At(row, col), test.ShouldAlmostEqual, truth.At(row, col), 1e-6)
			}
		}
	}
}

func TestEstimateHomographyDLTDegenerate(t *testing.T) {
	_, err := EstimateHomographyDLT([]r2.Point{{X: 1}}, []r2.Point{{X: 1}, {X: 2}})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = EstimateHomographyDLT(make([]r2.Point, 3), make([]r2.Point, 3))
	test.That(t, err, test.ShouldNotBeNil)

	collinear := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 5, Y: 0}}
	other := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	_, err = EstimateHomographyDLT(collinear, other)
	test.That(t, errors.Is(err, ErrDegenerateCorrespondences), test.ShouldBeTrue)
}
