package ransac

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/geomfit/geometry/nonlinear"
	"go.viam.com/geomfit/utils"
)

// failingRefiner is a translation model whose refinement fails from the given pass on.
type failingRefiner struct {
	translationModel
	failFrom int
	passes   int
}

func (fr *failingRefiner) Refine(ctx context.Context, translation r2.Point, inliers []int, cfg Config) (r2.Point, nonlinear.Result, error) {
	defer func() { fr.passes++ }()
	if fr.passes >= fr.failFrom {
		return translation, nonlinear.Result{}, errors.New("no luck")
	}
	return fr.translationModel.Refine(ctx, translation, inliers, cfg)
}

func clusteredTranslations(rng *utils.RandomGenerator, inliers, outliers int) []r2.Point {
	var translations []r2.Point
	for i := 0; i < inliers; i++ {
		translations = append(translations, r2.Point{X: 3 + rng.UniformFloat(-0.1, 0.1), Y: -2 + rng.UniformFloat(-0.1, 0.1)})
	}
	for i := 0; i < outliers; i++ {
		translations = append(translations, r2.Point{X: rng.UniformFloat(-100, 100), Y: rng.UniformFloat(-100, 100)})
	}
	return translations
}

func translationConfig() Config {
	cfg := DefaultConfig()
	cfg.SqrErrorThreshold = 0.25
	cfg.MinimalValidCorrespondences = 3
	return cfg
}

func TestEstimateRefinementFallback(t *testing.T) {
	translations := clusteredTranslations(utils.NewRandomGenerator(1), 10, 5)

	logger, logs := golog.NewObservedTestLogger(t)
	model := &failingRefiner{translationModel: translationModel{translations: translations}, failFrom: 0}
	result, err := Estimate[r2.Point](context.Background(), model, translationConfig(), utils.NewRandomGenerator(2), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Refined, test.ShouldBeFalse)
	test.That(t, result.Refinement, test.ShouldResemble, nonlinear.Result{})
	test.That(t, len(result.Inliers), test.ShouldEqual, 10)
	test.That(t, len(logs.FilterMessageSnippet("refinement failed").All()), test.ShouldEqual, 1)

	// a failure after a successful pass keeps the refined model
	logger, logs = golog.NewObservedTestLogger(t)
	model = &failingRefiner{translationModel: translationModel{translations: translations}, failFrom: 1}
	cfg := translationConfig()
	cfg.MaxRefinementPasses = 5
	result, err = Estimate[r2.Point](context.Background(), model, cfg, utils.NewRandomGenerator(2), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Refined, test.ShouldBeTrue)
	test.That(t, result.Refinement.Iterations, test.ShouldEqual, 1)
	test.That(t, result.Model.X, test.ShouldAlmostEqual, 3, 0.1)
	test.That(t, result.Model.Y, test.ShouldAlmostEqual, -2, 0.1)
	// the mean of the cluster keeps every cluster member, so the second pass is the last
	test.That(t, model.passes, test.ShouldBeLessThanOrEqualTo, 2)
	test.That(t, len(logs.FilterMessageSnippet("refinement failed").All()), test.ShouldBeLessThanOrEqualTo, 1)
}

func TestEstimateRefinementDisabled(t *testing.T) {
	logger := golog.NewTestLogger(t)
	translations := clusteredTranslations(utils.NewRandomGenerator(3), 8, 4)
	for _, mutate := range []func(*Config){
		func(cfg *Config) { cfg.MaxRefinementPasses = 0 },
		func(cfg *Config) { cfg.RefinementIterations = 0 },
	} {
		cfg := translationConfig()
		mutate(&cfg)
		model := &failingRefiner{translationModel: translationModel{translations: translations}}
		result, err := Estimate[r2.Point](context.Background(), model, cfg, utils.NewRandomGenerator(4), logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, result.Refined, test.ShouldBeFalse)
		test.That(t, model.passes, test.ShouldEqual, 0)
	}
}

func TestEstimateRefinementImproves(t *testing.T) {
	logger := golog.NewTestLogger(t)
	translations := clusteredTranslations(utils.NewRandomGenerator(5), 30, 10)
	result, err := Translation(context.Background(), translations, translationConfig(), utils.NewRandomGenerator(6), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Refined, test.ShouldBeTrue)
	test.That(t, result.Refinement.FinalError, test.ShouldBeLessThanOrEqualTo, result.Refinement.InitialError)
	test.That(t, len(result.Inliers), test.ShouldEqual, 30)
	test.That(t, result.Inliers[29], test.ShouldEqual, 29)
	test.That(t, result.SqrError, test.ShouldAlmostEqual, result.TotalSqrError/30, 1e-12)
}

func TestEstimateNoConsensus(t *testing.T) {
	logger := golog.NewTestLogger(t)
	// points on a coarse grid are never within the threshold of each other
	var translations []r2.Point
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			translations = append(translations, r2.Point{X: float64(10 * i), Y: float64(10 * j)})
		}
	}
	for _, workers := range []int{1, 4} {
		cfg := translationConfig()
		cfg.Workers = workers
		_, err := Translation(context.Background(), translations, cfg, utils.NewRandomGenerator(7), logger)
		test.That(t, errors.Is(err, ErrNoConsensus), test.ShouldBeTrue)
	}
}

func TestEstimateTooFew(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cfg := translationConfig()
	cfg.MinimalValidCorrespondences = 6
	_, err := Translation(context.Background(), []r2.Point{{X: 1}, {X: 1}, {X: 1}, {X: 1}, {X: 1}}, cfg, utils.NewRandomGenerator(1), logger)
	test.That(t, errors.Is(err, ErrTooFewCorrespondences), test.ShouldBeTrue)

	_, err = Translation(context.Background(), []r2.Point{{X: 1}}, cfg, utils.NewRandomGenerator(1), logger)
	test.That(t, errors.Is(err, ErrTooFewCorrespondences), test.ShouldBeTrue)
}

func TestEstimateParallel(t *testing.T) {
	logger := golog.NewTestLogger(t)
	translations := clusteredTranslations(utils.NewRandomGenerator(8), 20, 10)

	sequential, err := Translation(context.Background(), translations, translationConfig(), utils.NewRandomGenerator(9), logger)
	test.That(t, err, test.ShouldBeNil)

	for _, workers := range []int{0, 2, 4, 1000} {
		cfg := translationConfig()
		cfg.Workers = workers
		var first *Result[r2.Point]
		for i := 0; i < 5; i++ {
			result, err := Translation(context.Background(), translations, cfg, utils.NewRandomGenerator(9), logger)
			test.That(t, err, test.ShouldBeNil)
			// every partition that finds the cluster agrees after refinement
			test.That(t, result.Inliers, test.ShouldResemble, sequential.Inliers)
			test.That(t, result.Trials, test.ShouldBeLessThanOrEqualTo, Iterations(1, cfg.SuccessProbability, cfg.OutlierRate, cfg.MaxIterations))
			if first == nil {
				first = result
				continue
			}
			test.That(t, result.Model, test.ShouldResemble, first.Model)
			test.That(t, result.Trials, test.ShouldEqual, first.Trials)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := translationConfig()
	cfg.Workers = 3
	_, err = Translation(ctx, translations, cfg, utils.NewRandomGenerator(9), logger)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

type panickingModel struct {
	translationModel
}

func (pm *panickingModel) Sample(indices []int) []r2.Point {
	panic("corrupt sample")
}

func TestEstimatePartitionPanic(t *testing.T) {
	translations := clusteredTranslations(utils.NewRandomGenerator(5), 10, 5)
	cfg := translationConfig()
	cfg.Workers = 3
	_, err := Estimate[r2.Point](context.Background(), &panickingModel{translationModel{translations: translations}}, cfg,
		utils.NewRandomGenerator(1), golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "panicked: corrupt sample")
	test.That(t, errors.Is(err, ErrNoConsensus), test.ShouldBeFalse)
}
