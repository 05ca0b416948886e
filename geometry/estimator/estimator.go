// Package estimator implements robust estimators that reweight residuals so that outliers
// contribute less to a least squares problem.
package estimator

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/geomfit/utils"
)

// Kind names a robust estimator.
type Kind string

// The supported estimators.
const (
	// Square is ordinary least squares; every residual has weight one.
	Square = Kind("square")
	// Linear weights residuals by their inverse magnitude.
	Linear = Kind("linear")
	// Huber is quadratic below sigma and linear above it.
	Huber = Kind("huber")
	// Tukey ignores residuals above sigma entirely.
	Tukey = Kind("tukey")
	// Cauchy weights residuals by 1 / (1 + e²/σ²).
	Cauchy = Kind("cauchy")
)

const (
	weakEps = 1e-6
	eps     = 1e-12
	// madScale converts a median absolute deviation into a standard deviation for normal noise.
	madScale = 1.4826
)

// MaximalWeight is the largest weight any estimator returns.
const MaximalWeight = 10 / weakEps

// ErrUnknownKind is returned for estimator names that are not supported.
var ErrUnknownKind = errors.New("unknown estimator")

// Kinds lists every supported estimator.
func Kinds() []Kind {
	return []Kind{Square, Linear, Huber, Tukey, Cauchy}
}

// ParseKind returns the estimator with the given name.
func ParseKind(name string) (Kind, error) {
	kind := Kind(name)
	if err := kind.Validate(); err != nil {
		return "", err
	}
	return kind, nil
}

// Validate returns an error when the estimator is not supported.
func (k Kind) Validate() error {
	switch k {
	case Square, Linear, Huber, Tukey, Cauchy:
		return nil
	default:
		return errors.Wrapf(ErrUnknownKind, "%q", string(k))
	}
}

// NeedsSigma reports whether the estimator depends on a scale parameter.
func (k Kind) NeedsSigma() bool {
	return k == Huber || k == Tukey || k == Cauchy
}

// TuningConstant returns the factor giving 95% asymptotic efficiency on normal noise, or zero for
// estimators without a scale parameter.
func (k Kind) TuningConstant() float64 {
	switch k {
	case Huber:
		return 1.345
	case Tukey:
		return 4.6851
	case Cauchy:
		return 2.3849
	case Square, Linear:
		return 0
	default:
		return 0
	}
}

// Weight returns the weight of a residual with squared magnitude sqrError. sqrSigma is ignored by
// estimators that do not need it. The weight is clamped to [weakEps, MaximalWeight] so that the
// normal equations stay solvable.
func (k Kind) Weight(sqrError, sqrSigma float64) float64 {
	var w float64
	switch k {
	case Linear:
		if sqrError < weakEps*weakEps {
			w = 1 / weakEps
		} else {
			w = 1 / math.Sqrt(sqrError)
		}
	case Huber:
		if sqrError <= sqrSigma {
			w = 1
		} else {
			w = math.Sqrt(sqrSigma / sqrError)
		}
	case Tukey:
		if sqrError > sqrSigma {
			w = 0
		} else {
			w = utils.Square(1 - sqrError/sqrSigma)
		}
	case Cauchy:
		w = 1 / (1 + sqrError/sqrSigma)
	case Square:
		w = 1
	default:
		w = 1
	}
	return math.Min(math.Max(w, weakEps), MaximalWeight)
}

// Sigma estimates the scale of the residuals from the median of their squared magnitudes:
// c · 1.4826 · (1 + 5/(n − p)) · sqrt(median), where the finite sample correction is only
// applied when there are more residuals than model parameters.
func (k Kind) Sigma(sqrErrors []float64, modelParameters int) float64 {
	if len(sqrErrors) == 0 {
		return eps
	}
	sqrMedian := utils.Median(sqrErrors...)
	sigma := k.TuningConstant() * madScale * math.Sqrt(sqrMedian)
	if n := len(sqrErrors); n > modelParameters {
		sigma *= 1 + 5/float64(n-modelParameters)
	}
	return math.Max(eps, sigma)
}

// SqrSigma returns the squared scale for estimators that need one and zero otherwise.
func (k Kind) SqrSigma(sqrErrors []float64, modelParameters int) float64 {
	if !k.NeedsSigma() {
		return 0
	}
	return utils.Square(k.Sigma(sqrErrors, modelParameters))
}

// RobustError returns the averaged weighted error sum(e_i · w_i) / n and writes the weights to
// weights when it is not nil. A positive sqrSigma overrides the estimate from the residuals.
func (k Kind) RobustError(sqrErrors []float64, modelParameters int, sqrSigma float64, weights []float64) float64 {
	if len(sqrErrors) == 0 {
		return 0
	}
	if sqrSigma <= 0 {
		sqrSigma = k.SqrSigma(sqrErrors, modelParameters)
	}
	total := 0.0
	for i, e := range sqrErrors {
		w := k.Weight(e, sqrSigma)
		if weights != nil {
			weights[i] = w
		}
		total += e * w
	}
	return total / float64(len(sqrErrors))
}
