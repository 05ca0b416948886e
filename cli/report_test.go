package cli

import (
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestResidualSummaryHeader(t *testing.T) {
	out, err := residualSummary([]float64{0.5, 1, 1.5, 2})
	test.That(t, err, test.ShouldBeNil)
	header := strings.Split(out, "\n")[1]
	test.That(t, header, test.ShouldContainSubstring, "Reprojection error (px)")
	test.That(t, header, test.ShouldContainSubstring, "Median")
	test.That(t, out, test.ShouldNotContainSubstring, "MEDIAN")

	_, err = residualSummary(nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBenchReport(t *testing.T) {
	out, err := benchReport([]benchRun{
		{ok: true, translationError: 0.01, rotationError: 0.001, trials: 30, inliers: 40},
		{},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Metric")
	test.That(t, out, test.ShouldContainSubstring, "50.00%")
	test.That(t, out, test.ShouldContainSubstring, "Accepted outliers")
}
