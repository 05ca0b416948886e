package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestRandomGeneratorDeterminism(t *testing.T) {
	a := NewRandomGenerator(7)
	b := NewRandomGenerator(7)
	for i := 0; i < 100; i++ {
		test.That(t, a.Uniform(0, 50), test.ShouldEqual, b.Uniform(0, 50))
	}
	childA, childB := a.Child(), b.Child()
	for i := 0; i < 10; i++ {
		test.That(t, childA.Float64(), test.ShouldEqual, childB.Float64())
	}
	test.That(t, a.Child().Float64(), test.ShouldNotEqual, childA.Float64())
}

func TestUniformBounds(t *testing.T) {
	rg := NewRandomGenerator(1)
	for i := 0; i < 1000; i++ {
		v := rg.Uniform(3, 5)
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, 3)
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, 5)
	}
	test.That(t, rg.Uniform(4, 4), test.ShouldEqual, 4)
}

func TestRandomIndices(t *testing.T) {
	rg := NewRandomGenerator(3)
	var dst []int
	for i := 0; i < 200; i++ {
		dst = RandomIndices(rg, 5, 3, dst)
		test.That(t, dst, test.ShouldHaveLength, 3)
		test.That(t, dst[0], test.ShouldNotEqual, dst[1])
		test.That(t, dst[0], test.ShouldNotEqual, dst[2])
		test.That(t, dst[1], test.ShouldNotEqual, dst[2])
	}
	test.That(t, RandomIndices(rg, 2, 3, dst), test.ShouldBeEmpty)
}

func TestMedian(t *testing.T) {
	values := []float64{5, 1, 3}
	test.That(t, Median(values...), test.ShouldEqual, 3)
	test.That(t, values[0], test.ShouldEqual, 5)
	test.That(t, Median(4, 1, 3, 2), test.ShouldEqual, 2)
	test.That(t, math.IsNaN(Median()), test.ShouldBeTrue)
	test.That(t, IsFinite(1, 2, math.Inf(1)), test.ShouldBeFalse)
}
