package p3p

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// polynomial holds coefficients in ascending order of degree.
type polynomial []float64

func (p polynomial) mul(q polynomial) polynomial {
	out := make(polynomial, len(p)+len(q)-1)
	for i, a := range p {
		for j, b := range q {
			out[i+j] += a * b
		}
	}
	return out
}

func (p polynomial) add(q polynomial) polynomial {
	n := len(p)
	if len(q) > n {
		n = len(q)
	}
	out := make(polynomial, n)
	copy(out, p)
	for i, b := range q {
		out[i] += b
	}
	return out
}

func (p polynomial) scale(s float64) polynomial {
	out := make(polynomial, len(p))
	for i, a := range p {
		out[i] = a * s
	}
	return out
}

// eval uses Horner's scheme.
func (p polynomial) eval(x float64) float64 {
	v := 0.0
	for i := len(p) - 1; i >= 0; i-- {
		v = v*x + p[i]
	}
	return v
}

func (p polynomial) derivative() polynomial {
	if len(p) < 2 {
		return polynomial{0}
	}
	out := make(polynomial, len(p)-1)
	for i := 1; i < len(p); i++ {
		out[i-1] = float64(i) * p[i]
	}
	return out
}

// trim drops leading coefficients that are negligible relative to the largest one.
func (p polynomial) trim() polynomial {
	largest := 0.0
	for _, a := range p {
		largest = math.Max(largest, math.Abs(a))
	}
	n := len(p)
	for n > 0 && math.Abs(p[n-1]) <= 1e-14*largest {
		n--
	}
	return p[:n]
}

// realRoots returns the real roots of p from the eigenvalues of its companion matrix, polished
// with Newton iterations.
func (p polynomial) realRoots() []float64 {
	p = p.trim()
	degree := len(p) - 1
	if degree < 1 {
		return nil
	}
	if degree == 1 {
		return []float64{-p[0] / p[1]}
	}

	companion := mat.NewDense(degree, degree, nil)
	for i := 0; i < degree; i++ {
		companion.Set(i, degree-1, -p[i]/p[degree])
		if i > 0 {
			companion.Set(i, i-1, 1)
		}
	}
	var eig mat.Eigen
	if !eig.Factorize(companion, mat.EigenNone) {
		return nil
	}

	derivative := p.derivative()
	var roots []float64
	for _, value := range eig.Values(nil) {
		if math.Abs(imag(value)) > 1e-6*(1+math.Abs(real(value))) {
			continue
		}
		roots = append(roots, p.polish(derivative, real(value)))
	}
	return roots
}

// polish refines a root with Newton steps while they reduce the residual.
func (p polynomial) polish(derivative polynomial, x float64) float64 {
	residual := math.Abs(p.eval(x))
	for i := 0; i < 10 && residual > 0; i++ {
		slope := derivative.eval(x)
		if slope == 0 {
			break
		}
		next := x - p.eval(x)/slope
		nextResidual := math.Abs(p.eval(next))
		if nextResidual >= residual {
			break
		}
		x, residual = next, nextResidual
	}
	return x
}
