package ransac

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/geomfit/geometry/nonlinear"
	"go.viam.com/geomfit/utils"
)

// directionModel finds the dominant 2D direction. The error of a direction is 1 - cos of its
// angle to the candidate.
type directionModel struct {
	directions     []r2.Point
	acceptOpposite bool
}

func (dm *directionModel) SampleSize() int {
	return 1
}

func (dm *directionModel) Size() int {
	return len(dm.directions)
}

func (dm *directionModel) Sample(indices []int) []r2.Point {
	return []r2.Point{dm.directions[indices[0]]}
}

func (dm *directionModel) cosine(direction r2.Point, index int) float64 {
	cos := direction.Dot(dm.directions[index])
	if dm.acceptOpposite {
		return math.Abs(cos)
	}
	return cos
}

func (dm *directionModel) Error(direction r2.Point, index int) (float64, bool) {
	return 1 - dm.cosine(direction, index), true
}

// Refine averages the inliers, flipping those pointing away from direction.
func (dm *directionModel) Refine(_ context.Context, direction r2.Point, inliers []int, _ Config) (r2.Point, nonlinear.Result, error) {
	var sum r2.Point
	for _, index := range inliers {
		d := dm.directions[index]
		if d.Dot(direction) < 0 {
			sum = sum.Sub(d)
		} else {
			sum = sum.Add(d)
		}
	}
	if sum.Norm() <= eps {
		return direction, nonlinear.Result{}, errors.New("inlier directions cancel out")
	}
	refined := sum.Normalize()
	meanError := func(candidate r2.Point) float64 {
		total := 0.0
		for _, index := range inliers {
			total += 1 - dm.cosine(candidate, index)
		}
		return total / float64(len(inliers))
	}
	return refined, nonlinear.Result{InitialError: meanError(direction), FinalError: meanError(refined), Iterations: 1}, nil
}

// Direction estimates the unit direction most of the given directions agree with, up to maxAngle
// radians. With acceptOpposite set, directions pointing the opposite way count as agreeing. The
// error threshold of cfg is replaced by 1 - cos(maxAngle).
func Direction(
	ctx context.Context,
	directions []r2.Point,
	maxAngle float64,
	acceptOpposite bool,
	cfg Config,
	rng *utils.RandomGenerator,
	logger golog.Logger,
) (*Result[r2.Point], error) {
	if len(directions) < 2 {
		return nil, tooFew(len(directions), 2)
	}
	if !(maxAngle >= 0 && maxAngle < math.Pi/2) {
		return nil, errors.Errorf("max angle must be in [0, pi/2), got %v", maxAngle)
	}
	units := make([]r2.Point, len(directions))
	for i, d := range directions {
		if d.Norm() <= eps {
			return nil, errors.Errorf("direction %d has zero length", i)
		}
		units[i] = d.Normalize()
	}
	cfg.SqrErrorThreshold = 1 - math.Cos(maxAngle)
	result, err := Estimate[r2.Point](ctx, &directionModel{directions: units, acceptOpposite: acceptOpposite}, cfg, rng, logger)
	if err != nil {
		return nil, errors.Wrap(err, "direction estimation failed")
	}
	return result, nil
}
