package cli

import (
	"fmt"
	"io"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.viam.com/geomfit/geometry/ransac"
	"go.viam.com/geomfit/spatialmath"
	"go.viam.com/geomfit/utils"
)

const terminalHistogramWidth = 40

// newTable returns a table writer that prints headers as given.
func newTable() table.Writer {
	t := table.NewWriter()
	t.Style().Format.Header = text.FormatDefault
	return t
}

func formatVector(x, y, z float64) string {
	return fmt.Sprintf("X:%.4f, Y:%.4f, Z:%.4f", x, y, z)
}

// poseTable prints the estimated pose and, with a known ground truth, its error.
func poseTable(result *ransac.Result[spatialmath.Pose], truth *ScenePose) string {
	t := newTable()
	t.AppendHeader(table.Row{"Quantity", "Value"})
	rotation, translation := result.Model.ExponentialMap()
	t.AppendRows([]table.Row{
		{"Rotation", formatVector(rotation.X, rotation.Y, rotation.Z)},
		{"Translation", formatVector(translation.X, translation.Y, translation.Z)},
		{"Inliers", len(result.Inliers)},
		{"Trials", result.Trials},
		{"Mean squared error", fmt.Sprintf("%.6f", result.SqrError)},
		{"Refined", result.Refined},
	})
	if result.Refined {
		t.AppendRows([]table.Row{
			{"Refinement iterations", result.Refinement.Iterations},
			{"Refinement error", fmt.Sprintf("%.6f -> %.6f", result.Refinement.InitialError, result.Refinement.FinalError)},
		})
	}
	if truth != nil {
		worldTCamera := truth.Pose()
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Translation error", fmt.Sprintf("%.6f", result.Model.Translation.Distance(worldTCamera.Translation))},
			{"Rotation error (deg)", fmt.Sprintf("%.6f", utils.RadToDeg(spatialmath.RotationAngleBetween(result.Model.Rotation, worldTCamera.Rotation)))},
		})
	}
	return t.Render()
}

type summary struct {
	mean, median, p95, max float64
}

func summarize(values []float64) (summary, error) {
	var s summary
	var err error
	if s.mean, err = stats.Mean(values); err != nil {
		return s, err
	}
	if s.median, err = stats.Median(values); err != nil {
		return s, err
	}
	if s.p95, err = stats.PercentileNearestRank(values, 95); err != nil {
		return s, err
	}
	if s.max, err = stats.Max(values); err != nil {
		return s, err
	}
	return s, nil
}

// residualSummary prints statistics of the inlier reprojection errors.
func residualSummary(residuals []float64) (string, error) {
	s, err := summarize(residuals)
	if err != nil {
		return "", errors.Wrap(err, "cannot summarize reprojection errors")
	}
	t := newTable()
	t.AppendHeader(table.Row{"Reprojection error (px)", "Mean", "Median", "P95", "Max"})
	t.AppendRow(table.Row{
		len(residuals),
		fmt.Sprintf("%.4f", s.mean), fmt.Sprintf("%.4f", s.median), fmt.Sprintf("%.4f", s.p95), fmt.Sprintf("%.4f", s.max),
	})
	return t.Render(), nil
}

// benchReport prints the success rate and the accuracy of the successful runs.
func benchReport(runs []benchRun) (string, error) {
	succeeded := lo.Filter(runs, func(run benchRun, _ int) bool { return run.ok })
	t := newTable()
	t.AppendHeader(table.Row{"Metric", "Mean", "Median", "P95", "Max"})
	t.AppendRow(table.Row{"Scenes", len(runs)})
	t.AppendRow(table.Row{"Success rate", fmt.Sprintf("%.2f%%", 100*float64(len(succeeded))/float64(len(runs)))})
	if len(succeeded) == 0 {
		return t.Render(), nil
	}
	for _, metric := range []struct {
		name  string
		value func(benchRun) float64
	}{
		{"Translation error", func(run benchRun) float64 { return run.translationError }},
		{"Rotation error (deg)", func(run benchRun) float64 { return utils.RadToDeg(run.rotationError) }},
		{"Trials", func(run benchRun) float64 { return float64(run.trials) }},
		{"Inliers", func(run benchRun) float64 { return float64(run.inliers) }},
		{"Accepted outliers", func(run benchRun) float64 { return float64(run.outliersAccepted) }},
	} {
		s, err := summarize(lo.Map(succeeded, func(run benchRun, _ int) float64 { return metric.value(run) }))
		if err != nil {
			return "", err
		}
		t.AppendRow(table.Row{
			metric.name,
			fmt.Sprintf("%.4f", s.mean), fmt.Sprintf("%.4f", s.median), fmt.Sprintf("%.4f", s.p95), fmt.Sprintf("%.4f", s.max),
		})
	}
	return t.Render(), nil
}

// writeHistogram saves a histogram of the values as an image whose format follows the file
// extension.
func writeHistogram(path, title, unit string, values []float64) error {
	if len(values) == 0 {
		return errors.New("no values to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = unit
	p.Y.Label.Text = "count"
	hist, err := plotter.NewHist(plotter.Values(values), 20)
	if err != nil {
		return errors.Wrap(err, "cannot bin values")
	}
	p.Add(hist)
	return errors.Wrap(p.Save(6*vg.Inch, 4*vg.Inch, path), "cannot save histogram")
}

// printHistogram writes a text histogram of the values, one bin per pixel of error.
func printHistogram(out io.Writer, values []float64) error {
	if len(values) == 0 {
		return errors.New("no values to plot")
	}
	maxValue, err := stats.Max(values)
	if err != nil {
		return err
	}
	hist := histogram.Hist(utils.MaxInt(1, int(maxValue)+1), values)
	return errors.Wrap(histogram.Fprint(out, hist, histogram.Linear(terminalHistogramWidth)), "cannot print histogram")
}
