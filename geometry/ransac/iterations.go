package ransac

import "math"

const eps = 1e-12

// Iterations returns the number of random samples of modelSize elements needed to draw at least
// one outlier free sample with the given probability, when outlierRate of all elements are
// outliers. The result lies in [1, maxIterations].
//
//	iterations = log(1 - successProbability) / log(1 - (1 - outlierRate)^modelSize)
func Iterations(modelSize int, successProbability, outlierRate float64, maxIterations int) int {
	if maxIterations < 1 {
		maxIterations = 1
	}
	if math.Abs(outlierRate) <= eps {
		return 1
	}

	faultySampleProbability := 1 - math.Pow(1-outlierRate, float64(modelSize))
	if math.Abs(faultySampleProbability) <= eps {
		return 1
	}
	failureProbability := 1 - successProbability
	if math.Abs(failureProbability) <= eps {
		return maxIterations
	}
	denominator := math.Log(faultySampleProbability)
	if math.Abs(denominator) <= eps {
		return maxIterations
	}

	expected := math.Log(failureProbability) / denominator
	if math.IsNaN(expected) || expected > float64(maxIterations) {
		return maxIterations
	}
	if expected < 1 {
		return 1
	}
	return int(math.Ceil(expected))
}
