// Package nonlinear implements a dense Levenberg-Marquardt optimizer with robust estimators and
// the camera, plane, and homography refinement problems built on it.
package nonlinear

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/geomfit/geometry/estimator"
)

const (
	maxLambda = 1e8
	eps       = 1e-12
)

var (
	// ErrInvalidInitialParameters is returned when the residuals cannot be evaluated at the start point.
	ErrInvalidInitialParameters = errors.New("residuals are not defined at the initial parameters")
	// ErrSingularSystem is returned when none of the linearized systems could be solved.
	ErrSingularSystem = errors.New("normal equations could not be solved")
)

// Problem is a non-linear least squares problem. Residuals are observed minus predicted values,
// grouped per observation.
type Problem interface {
	// Dims returns the number of parameters, the number of observations, and the number of
	// residual values per observation.
	Dims() (parameters, observations, residualDimension int)
	// Residuals writes observations*residualDimension residuals for the parameters x into dst. It
	// returns false when x is not admissible, for example when a point falls behind a camera.
	Residuals(dst, x []float64) bool
}

// JacobianProblem is a Problem with analytic derivatives of its residuals.
type JacobianProblem interface {
	Problem
	// Jacobian writes the derivatives of the residuals with respect to x into dst, one row per
	// residual value. It returns false when x is not admissible.
	Jacobian(dst *mat.Dense, x []float64) bool
}

// Options configure Optimize.
type Options struct {
	Iterations   int            `json:"iterations"`
	Estimator    estimator.Kind `json:"estimator"`
	Lambda       float64        `json:"lambda"`
	LambdaFactor float64        `json:"lambda_factor"`
	// Sigma fixes the scale of the robust estimator. Zero estimates it from the residuals.
	Sigma float64 `json:"sigma,omitempty"`
	// InverseCovariances optionally weights each observation, one residualDimension square matrix
	// per observation.
	InverseCovariances []*mat.SymDense `json:"-"`
}

// DefaultOptions returns 20 iterations of least squares with lambda 0.001 and factor 5.
func DefaultOptions() Options {
	return Options{
		Iterations:   20,
		Estimator:    estimator.Square,
		Lambda:       0.001,
		LambdaFactor: 5,
	}
}

// Validate returns every problem with the options.
func (o Options) Validate() error {
	var err error
	if o.Iterations < 0 {
		err = multierr.Append(err, errors.Errorf("iterations must not be negative, got %d", o.Iterations))
	}
	if verr := o.Estimator.Validate(); verr != nil {
		err = multierr.Append(err, verr)
	}
	if o.Lambda < 0 || math.IsNaN(o.Lambda) {
		err = multierr.Append(err, errors.Errorf("lambda must not be negative, got %v", o.Lambda))
	}
	if o.Lambda > 0 && !(o.LambdaFactor > 1) {
		err = multierr.Append(err, errors.Errorf("lambda factor must be greater than 1, got %v", o.LambdaFactor))
	}
	if o.Sigma < 0 {
		err = multierr.Append(err, errors.Errorf("sigma must not be negative, got %v", o.Sigma))
	}
	return err
}

// Result summarizes an optimization.
type Result struct {
	InitialError float64 `json:"initial_error"`
	FinalError   float64 `json:"final_error"`
	Iterations   int     `json:"iterations"`
}

// evaluator computes robust errors and observation weights for one problem.
type evaluator struct {
	problem      Problem
	opts         Options
	parameters   int
	observations int
	dim          int
	sqrErrors    []float64
	scratch      []float64
}

func newEvaluator(problem Problem, opts Options) *evaluator {
	p, o, d := problem.Dims()
	return &evaluator{
		problem:      problem,
		opts:         opts,
		parameters:   p,
		observations: o,
		dim:          d,
		sqrErrors:    make([]float64, o),
		scratch:      make([]float64, d),
	}
}

func (ev *evaluator) covariance(i int) *mat.SymDense {
	if ev.opts.InverseCovariances == nil {
		return nil
	}
	return ev.opts.InverseCovariances[i]
}

// sqrError returns rᵀ C r for the residual block of observation i.
func (ev *evaluator) sqrError(residuals []float64, i int) float64 {
	block := residuals[i*ev.dim : (i+1)*ev.dim]
	c := ev.covariance(i)
	if c == nil {
		return floats.Dot(block, block)
	}
	r := mat.NewVecDense(ev.dim, block)
	return mat.Inner(r, c, r)
}

// evaluate computes the residuals at x and returns the robust error, writing observation weights
// into weights. It returns false when x is not admissible.
func (ev *evaluator) evaluate(x, residuals, weights []float64) (float64, bool) {
	if !ev.problem.Residuals(residuals, x) {
		return 0, false
	}
	for i := range ev.sqrErrors {
		ev.sqrErrors[i] = ev.sqrError(residuals, i)
		if math.IsNaN(ev.sqrErrors[i]) || math.IsInf(ev.sqrErrors[i], 0) {
			return 0, false
		}
	}
	sqrSigma := ev.opts.Sigma * ev.opts.Sigma
	return ev.opts.Estimator.RobustError(ev.sqrErrors, ev.parameters, sqrSigma, weights), true
}

// jacobian fills dst with the derivatives of the residuals at x.
func (ev *evaluator) jacobian(dst *mat.Dense, x []float64) bool {
	if jp, ok := ev.problem.(JacobianProblem); ok {
		if !jp.Jacobian(dst, x) {
			return false
		}
	} else {
		valid := true
		fd.Jacobian(dst, func(y, x []float64) {
			if !ev.problem.Residuals(y, x) {
				valid = false
				for i := range y {
					y[i] = math.NaN()
				}
			}
		}, x, &fd.JacobianSettings{Formula: fd.Central})
		if !valid {
			return false
		}
	}
	r, c := dst.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := dst.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// normalEquations builds JᵀWJ and JᵀWr where W holds the robust weight times the inverse
// covariance of every observation.
func (ev *evaluator) normalEquations(jac *mat.Dense, residuals, weights []float64) (*mat.SymDense, *mat.VecDense) {
	rows, n := jac.Dims()
	weightedJ := mat.NewDense(rows, n, nil)
	weightedR := mat.NewVecDense(rows, nil)
	for i := 0; i < ev.observations; i++ {
		lo, hi := i*ev.dim, (i+1)*ev.dim
		block := jac.Slice(lo, hi, 0, n)
		rBlock := mat.NewVecDense(ev.dim, residuals[lo:hi])
		dstJ := weightedJ.Slice(lo, hi, 0, n).(*mat.Dense)
		dstR := weightedR.SliceVec(lo, hi).(*mat.VecDense)
		if c := ev.covariance(i); c != nil {
			dstJ.Mul(c, block)
			dstR.MulVec(c, rBlock)
		} else {
			dstJ.Copy(block)
			dstR.CopyVec(rBlock)
		}
		dstJ.Scale(weights[i], dstJ)
		dstR.ScaleVec(weights[i], dstR)
	}

	var normal mat.Dense
	normal.Mul(jac.T(), weightedJ)
	jtj := mat.NewSymDense(n, nil)
	for row := 0; row < n; row++ {
		for col := row; col < n; col++ {
			jtj.SetSym(row, col, 0.5*(normal.At(row, col)+normal.At(col, row)))
		}
	}
	jtr := mat.NewVecDense(n, nil)
	jtr.MulVec(jac.T(), weightedR)
	return jtj, jtr
}

// Optimize minimizes the robust error of the problem starting at x0 with Levenberg-Marquardt
// iterations. The returned parameters never have a higher robust error than x0.
//
// Every outer iteration linearizes the residuals, and the inner loop damps the diagonal of the
// normal matrix by (1 + lambda) until a step lowers the error. Lambda shrinks by LambdaFactor
// after an accepted step and grows by it after a rejected one. The optimization stops once the
// iterations are used up, the step vanishes, the improvement becomes negligible, or lambda
// saturates.
func Optimize(ctx context.Context, problem Problem, x0 []float64, opts Options) ([]float64, Result, error) {
	_, span := trace.StartSpan(ctx, "nonlinear::Optimize")
	defer span.End()

	if err := opts.Validate(); err != nil {
		return nil, Result{}, err
	}
	ev := newEvaluator(problem, opts)
	if len(x0) != ev.parameters {
		return nil, Result{}, errors.Errorf("expected %d initial parameters, got %d", ev.parameters, len(x0))
	}
	if opts.InverseCovariances != nil {
		if len(opts.InverseCovariances) != ev.observations {
			return nil, Result{}, errors.Errorf("expected %d inverse covariances, got %d",
				ev.observations, len(opts.InverseCovariances))
		}
		for i, c := range opts.InverseCovariances {
			if c == nil || c.SymmetricDim() != ev.dim {
				return nil, Result{}, errors.Errorf("inverse covariance %d must be %dx%d", i, ev.dim, ev.dim)
			}
		}
	}

	rows := ev.observations * ev.dim
	x := append([]float64(nil), x0...)
	residuals := make([]float64, rows)
	weights := make([]float64, ev.observations)
	best, ok := ev.evaluate(x, residuals, weights)
	if !ok {
		return nil, Result{}, ErrInvalidInitialParameters
	}
	result := Result{InitialError: best, FinalError: best}
	if ev.parameters == 0 || rows == 0 || opts.Iterations == 0 {
		return x, result, nil
	}

	jac := mat.NewDense(rows, ev.parameters, nil)
	candidate := make([]float64, ev.parameters)
	candidateResiduals := make([]float64, rows)
	candidateWeights := make([]float64, ev.observations)
	delta := mat.NewVecDense(ev.parameters, nil)
	damped := mat.NewSymDense(ev.parameters, nil)
	var chol mat.Cholesky

	lambda := opts.Lambda
	solvedOnce := false

outer:
	for result.Iterations < opts.Iterations {
		result.Iterations++
		if !ev.jacobian(jac, x) {
			break
		}
		jtj, jtr := ev.normalEquations(jac, residuals, weights)

		for {
			damped.CopySym(jtj)
			for i := 0; i < ev.parameters; i++ {
				damped.SetSym(i, i, jtj.At(i, i)*(1+lambda))
			}
			if !chol.Factorize(damped) || chol.SolveVecTo(delta, jtr) != nil {
				if lambda > 0 && lambda <= maxLambda {
					lambda *= opts.LambdaFactor
					continue
				}
				break outer
			}
			solvedOnce = true

			if floats.Norm(delta.RawVector().Data, 2)/float64(ev.parameters) < eps {
				break outer
			}
			for i := range candidate {
				candidate[i] = x[i] - delta.AtVec(i)
			}
			candidateError, valid := ev.evaluate(candidate, candidateResiduals, candidateWeights)
			if !valid || candidateError >= best {
				if lambda > 0 && lambda <= maxLambda {
					lambda *= opts.LambdaFactor
					continue
				}
				break outer
			}

			improvement := (best - candidateError) / best
			copy(x, candidate)
			residuals, candidateResiduals = candidateResiduals, residuals
			weights, candidateWeights = candidateWeights, weights
			best = candidateError
			if lambda > eps {
				lambda /= opts.LambdaFactor
			}
			if improvement < eps {
				break outer
			}
			break
		}
	}

	result.FinalError = best
	if !solvedOnce {
		return x, result, ErrSingularSystem
	}
	return x, result, nil
}
