// Package ransac estimates geometric models from data with outliers by random sample consensus,
// followed by a non-linear refinement of the best model on its inliers.
package ransac

import (
	"context"

	"go.viam.com/geomfit/geometry/nonlinear"
)

// Model is the data a family of models is estimated from.
type Model[P any] interface {
	// SampleSize returns how many elements a minimal sample has.
	SampleSize() int
	// Size returns the number of elements.
	Size() int
	// Sample returns the candidate models through the elements at indices. Degenerate samples
	// have no candidates.
	Sample(indices []int) []P
	// Error returns the squared error of element index under params. It returns false when the
	// element cannot be evaluated, for example because it lies behind a camera.
	Error(params P, index int) (float64, bool)
}

// Validator is implemented by models that reject some candidates before scoring.
type Validator[P any] interface {
	Accept(params P) bool
}

// Refiner is implemented by models that can improve a candidate on its inliers.
type Refiner[P any] interface {
	Refine(ctx context.Context, params P, inliers []int, cfg Config) (P, nonlinear.Result, error)
}

// Score classifies every element as inlier or outlier of params and returns the inliers,
// appended to dst, and their summed squared error. With prune set, scoring stops as soon as fewer
// than bestCount inliers are reachable and the hypothesis is reported as incomplete.
func Score[P any](model Model[P], params P, sqrThreshold float64, prune bool, bestCount int, dst []int) ([]int, float64, bool) {
	size := model.Size()
	total := 0.0
	for c := 0; c < size; c++ {
		if prune && len(dst)+(size-c) < bestCount {
			return dst, total, false
		}
		sqrError, valid := model.Error(params, c)
		if valid && sqrError <= sqrThreshold {
			dst = append(dst, c)
			total += sqrError
		}
	}
	return dst, total, true
}

// Hypothesis is a scored candidate model.
type Hypothesis[P any] struct {
	Params P
	// Inliers holds the sorted indices of the inliers.
	Inliers []int
	// SqrError is the summed squared error of the inliers.
	SqrError float64
	// Partition, Trial and Candidate identify where the hypothesis was drawn.
	Partition int
	Trial     int
	Candidate int
}

// Better reports whether h should replace other as the best hypothesis: it has more inliers, or
// as many with a lower summed error, or ties and was drawn earlier. The order is total, so the
// best of a set of hypotheses does not depend on the order they are compared in.
func (h *Hypothesis[P]) Better(other *Hypothesis[P]) bool {
	if other == nil {
		return true
	}
	if len(h.Inliers) != len(other.Inliers) {
		return len(h.Inliers) > len(other.Inliers)
	}
	if h.SqrError != other.SqrError {
		return h.SqrError < other.SqrError
	}
	if h.Partition != other.Partition {
		return h.Partition < other.Partition
	}
	if h.Trial != other.Trial {
		return h.Trial < other.Trial
	}
	return h.Candidate < other.Candidate
}

// Result is the outcome of an estimation.
type Result[P any] struct {
	Model P
	// Inliers holds the sorted indices of the elements consistent with Model.
	Inliers []int
	// SqrError is the mean squared error of the inliers.
	SqrError float64
	// TotalSqrError is the summed squared error of the inliers.
	TotalSqrError float64
	// Refinement describes the non-linear refinement across all passes.
	Refinement nonlinear.Result
	// Refined is true when Model is the output of a successful refinement pass.
	Refined bool
	// Trials is the number of samples drawn.
	Trials int
}

func (r *Result[P]) set(params P, inliers []int, total float64) {
	r.Model = params
	r.Inliers = inliers
	r.TotalSqrError = total
	r.SqrError = 0
	if len(inliers) > 0 {
		r.SqrError = total / float64(len(inliers))
	}
}
