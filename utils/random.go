package utils

import (
	"math/rand"
)

// RandomGenerator is a seeded source of uniform random numbers. It is not safe for concurrent
// use; derive a Child for every goroutine instead of sharing one.
type RandomGenerator struct {
	r *rand.Rand
}

// NewRandomGenerator returns a generator seeded with seed.
func NewRandomGenerator(seed int64) *RandomGenerator {
	return &RandomGenerator{r: rand.New(rand.NewSource(seed))} //nolint:gosec
}

// Uniform returns a uniform random integer in [min, max].
func (rg *RandomGenerator) Uniform(min, max int) int {
	if max <= min {
		return min
	}
	return rg.r.Intn(max-min+1) + min
}

// Float64 returns a uniform random number in [0, 1).
func (rg *RandomGenerator) Float64() float64 {
	return rg.r.Float64()
}

// UniformFloat returns a uniform random number in [min, max).
func (rg *RandomGenerator) UniformFloat(min, max float64) float64 {
	return min + (max-min)*rg.r.Float64()
}

// NormFloat64 returns a normally distributed number with mean 0 and standard deviation 1.
func (rg *RandomGenerator) NormFloat64() float64 {
	return rg.r.NormFloat64()
}

// Child returns a new generator whose seed is drawn from rg. The sequence of children derived
// from a generator is reproducible.
func (rg *RandomGenerator) Child() *RandomGenerator {
	return NewRandomGenerator(rg.r.Int63())
}

// RandomIndices fills dst with count distinct uniform indices from [0, size) and returns it.
// count must not exceed size.
func RandomIndices(rg *RandomGenerator, size, count int, dst []int) []int {
	dst = dst[:0]
	if count > size {
		return dst
	}
	for len(dst) < count {
		candidate := rg.Uniform(0, size-1)
		unique := true
		for _, existing := range dst {
			if existing == candidate {
				unique = false
				break
			}
		}
		if unique {
			dst = append(dst, candidate)
		}
	}
	return dst
}
