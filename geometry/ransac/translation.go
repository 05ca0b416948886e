package ransac

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/geomfit/geometry/nonlinear"
	"go.viam.com/geomfit/utils"
)

type translationModel struct {
	translations []r2.Point
}

func (tm *translationModel) SampleSize() int {
	return 1
}

func (tm *translationModel) Size() int {
	return len(tm.translations)
}

func (tm *translationModel) Sample(indices []int) []r2.Point {
	return []r2.Point{tm.translations[indices[0]]}
}

func (tm *translationModel) Error(translation r2.Point, index int) (float64, bool) {
	return sqrDistance(translation, tm.translations[index]), true
}

// Refine replaces the translation with the mean of its inliers.
func (tm *translationModel) Refine(_ context.Context, translation r2.Point, inliers []int, _ Config) (r2.Point, nonlinear.Result, error) {
	var sum r2.Point
	for _, index := range inliers {
		sum = sum.Add(tm.translations[index])
	}
	mean := sum.Mul(1 / float64(len(inliers)))
	meanError := func(candidate r2.Point) float64 {
		total := 0.0
		for _, index := range inliers {
			total += sqrDistance(candidate, tm.translations[index])
		}
		return total / float64(len(inliers))
	}
	return mean, nonlinear.Result{InitialError: meanError(translation), FinalError: meanError(mean), Iterations: 1}, nil
}

// Translation estimates the 2D translation most of the given translations agree with.
func Translation(
	ctx context.Context,
	translations []r2.Point,
	cfg Config,
	rng *utils.RandomGenerator,
	logger golog.Logger,
) (*Result[r2.Point], error) {
	if len(translations) < 2 {
		return nil, tooFew(len(translations), 2)
	}
	result, err := Estimate[r2.Point](ctx, &translationModel{translations: translations}, cfg, rng, logger)
	if err != nil {
		return nil, errors.Wrap(err, "translation estimation failed")
	}
	return result, nil
}
