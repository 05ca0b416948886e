package ransac

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/geomfit/geometry/nonlinear"
	"go.viam.com/geomfit/rimage/transform"
	"go.viam.com/geomfit/utils"
)

// minimalHomographyCorrespondences is the size of a minimal homography sample.
const minimalHomographyCorrespondences = 4

// HomographyOptions configure Homography.
type HomographyOptions struct {
	// TestCandidates is the number of correspondences every hypothesis is computed from, at least
	// four. Zero uses four.
	TestCandidates int `json:"test_candidates"`
}

type homographyModel struct {
	pointsA, pointsB []r2.Point
	sampleSize       int
}

func (hm *homographyModel) SampleSize() int {
	return hm.sampleSize
}

func (hm *homographyModel) Size() int {
	return len(hm.pointsA)
}

func (hm *homographyModel) Sample(indices []int) []*transform.Homography {
	h, err := transform.EstimateHomographyDLT(subset(hm.pointsA, indices), subset(hm.pointsB, indices))
	if err != nil {
		return nil
	}
	return []*transform.Homography{h}
}

func (hm *homographyModel) Error(h *transform.Homography, index int) (float64, bool) {
	mapped, ok := h.Apply(hm.pointsA[index])
	if !ok {
		return 0, false
	}
	return sqrDistance(mapped, hm.pointsB[index]), true
}

func (hm *homographyModel) Refine(
	ctx context.Context,
	h *transform.Homography,
	inliers []int,
	cfg Config,
) (*transform.Homography, nonlinear.Result, error) {
	return nonlinear.OptimizeHomography(ctx, h, subset(hm.pointsA, inliers), subset(hm.pointsB, inliers), cfg.NonlinearOptions())
}

// Homography estimates the homography mapping most of pointsA onto the corresponding pointsB.
func Homography(
	ctx context.Context,
	pointsA, pointsB []r2.Point,
	opts HomographyOptions,
	cfg Config,
	rng *utils.RandomGenerator,
	logger golog.Logger,
) (*Result[*transform.Homography], error) {
	if len(pointsA) != len(pointsB) {
		return nil, errors.Errorf("got %d points in the first image but %d in the second", len(pointsA), len(pointsB))
	}
	sampleSize := opts.TestCandidates
	if sampleSize == 0 {
		sampleSize = minimalHomographyCorrespondences
	}
	if sampleSize < minimalHomographyCorrespondences {
		return nil, errors.Errorf("test candidates must be at least %d, got %d", minimalHomographyCorrespondences, sampleSize)
	}
	if len(pointsA) < sampleSize {
		return nil, tooFew(len(pointsA), sampleSize)
	}
	hm := &homographyModel{pointsA: pointsA, pointsB: pointsB, sampleSize: sampleSize}
	result, err := Estimate[*transform.Homography](ctx, hm, cfg, rng, logger)
	if err != nil {
		return nil, errors.Wrap(err, "homography estimation failed")
	}
	return result, nil
}
