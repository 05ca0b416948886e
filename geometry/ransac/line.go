package ransac

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/geomfit/geometry/nonlinear"
	"go.viam.com/geomfit/spatialmath"
	"go.viam.com/geomfit/utils"
)

type lineModel struct {
	points []r2.Point
}

func (lm *lineModel) SampleSize() int {
	return 2
}

func (lm *lineModel) Size() int {
	return len(lm.points)
}

func (lm *lineModel) Sample(indices []int) []spatialmath.Line2 {
	line, ok := spatialmath.NewLine2FromPoints(lm.points[indices[0]], lm.points[indices[1]])
	if !ok {
		return nil
	}
	return []spatialmath.Line2{line}
}

func (lm *lineModel) Error(line spatialmath.Line2, index int) (float64, bool) {
	return line.SqrDistance(lm.points[index]), true
}

// Refine replaces the line with the total least squares fit of its inliers.
func (lm *lineModel) Refine(_ context.Context, line spatialmath.Line2, inliers []int, _ Config) (spatialmath.Line2, nonlinear.Result, error) {
	points := subset(lm.points, inliers)
	fitted, ok := spatialmath.FitLine2(points)
	if !ok {
		return line, nonlinear.Result{}, errors.New("inliers do not determine a line")
	}
	meanSqrDistance := func(l spatialmath.Line2) float64 {
		total := 0.0
		for _, pt := range points {
			total += l.SqrDistance(pt)
		}
		return total / float64(len(points))
	}
	return fitted, nonlinear.Result{InitialError: meanSqrDistance(line), FinalError: meanSqrDistance(fitted), Iterations: 1}, nil
}

// Line estimates the 2D line through most of the points.
func Line(
	ctx context.Context,
	points []r2.Point,
	cfg Config,
	rng *utils.RandomGenerator,
	logger golog.Logger,
) (*Result[spatialmath.Line2], error) {
	if len(points) < 2 {
		return nil, tooFew(len(points), 2)
	}
	result, err := Estimate[spatialmath.Line2](ctx, &lineModel{points: points}, cfg, rng, logger)
	if err != nil {
		return nil, errors.Wrap(err, "line estimation failed")
	}
	return result, nil
}
