package cli

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"go.viam.com/geomfit/geometry/ransac"
	"go.viam.com/geomfit/rimage/transform"
	"go.viam.com/geomfit/spatialmath"
	"go.viam.com/geomfit/utils"
)

// IterationsAction prints the iteration budget for the given model size and outlier rate.
func IterationsAction(c *cli.Context) error {
	iterations := ransac.Iterations(
		c.Int(iterationsFlagModelSize),
		c.Float64(iterationsFlagSuccess),
		c.Float64(iterationsFlagOutlierRate),
		c.Int(iterationsFlagMax),
	)
	fmt.Fprintln(c.App.Writer, iterations)
	return nil
}

// SynthAction writes a synthetic scene.
func SynthAction(c *cli.Context) error {
	opts, err := sceneOptions(c)
	if err != nil {
		return err
	}
	scene, err := NewSyntheticScene(utils.NewRandomGenerator(c.Int64(generalFlagSeed)), opts)
	if err != nil {
		return err
	}
	if err := scene.Save(c.Path(synthFlagOut)); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %d correspondences (%d outliers) to %s\n",
		len(scene.ObjectPoints), len(scene.Outliers), c.Path(synthFlagOut))
	return nil
}

func sceneOptions(c *cli.Context) (SceneOptions, error) {
	opts := SceneOptions{
		Points:   c.Int(synthFlagPoints),
		Outliers: c.Int(synthFlagOutliers),
		Noise:    c.Float64(synthFlagNoise),
	}
	if path := c.Path(synthFlagIntrinsics); path != "" {
		intrinsics, err := transform.NewPinholeCameraIntrinsicsFromJSONFile(path)
		if err != nil {
			return SceneOptions{}, err
		}
		if err := intrinsics.CheckValid(); err != nil {
			return SceneOptions{}, err
		}
		opts.Intrinsics = intrinsics
	}
	return opts, nil
}

func configFromFlags(c *cli.Context) (ransac.Config, error) {
	cfg := ransac.DefaultConfig()
	if path := c.Path(generalFlagConfig); path != "" {
		var err error
		if cfg, err = ransac.LoadConfig(path); err != nil {
			return ransac.Config{}, err
		}
	}
	return cfg, nil
}

// PoseAction estimates the camera pose of a scene and prints a report.
func PoseAction(c *cli.Context) error {
	logger := loggerFromContext(c)
	scene, err := LoadScene(c.Path(poseFlagScene))
	if err != nil {
		return err
	}
	camera, err := scene.Camera()
	if err != nil {
		return err
	}
	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}
	if c.IsSet(generalFlagWorkers) {
		cfg.Workers = c.Int(generalFlagWorkers)
	}

	result, err := ransac.Pose(c.Context, camera, scene.ObjectPoints, scene.ImagePoints, cfg,
		utils.NewRandomGenerator(c.Int64(generalFlagSeed)), logger)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, poseTable(result, scene.WorldTCamera))
	residuals := reprojectionErrors(scene, camera, result)
	summary, err := residualSummary(residuals)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, summary)

	if path := c.Path(poseFlagPlot); path != "" {
		if err := writeHistogram(path, "inlier reprojection error", "pixels", residuals); err != nil {
			return err
		}
		logger.Debugw("wrote histogram", "path", path)
	}
	if c.Bool(poseFlagHistogram) {
		if err := printHistogram(c.App.Writer, residuals); err != nil {
			return err
		}
	}
	return nil
}

// ConfigSchemaAction prints the JSON schema of the configuration accepted by --config.
func ConfigSchemaAction(c *cli.Context) error {
	schema, err := json.MarshalIndent(jsonschema.Reflect(&ransac.Config{}), "", "  ")
	if err != nil {
		return errors.Wrap(err, "cannot marshal config schema")
	}
	fmt.Fprintln(c.App.Writer, string(schema))
	return nil
}

// reprojectionErrors returns the distance in pixels between each inlier image point and the
// projection of its object point.
func reprojectionErrors(scene *Scene, camera transform.Camera, result *ransac.Result[spatialmath.Pose]) []float64 {
	flippedTWorld := spatialmath.StandardToInvertedFlipped(result.Model)
	return lo.Map(result.Inliers, func(index, _ int) float64 {
		return camera.Project(flippedTWorld.Transform(scene.ObjectPoints[index])).Sub(scene.ImagePoints[index]).Norm()
	})
}

type benchRun struct {
	ok               bool
	translationError float64
	rotationError    float64
	trials           int
	inliers          int
	outliersAccepted int
}

// BenchAction estimates the pose of many synthetic scenes concurrently and summarizes how often
// and how accurately the pose was recovered.
func BenchAction(c *cli.Context) error {
	logger := loggerFromContext(c)
	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}
	numScenes := c.Int(benchFlagScenes)
	if numScenes < 1 {
		return errors.Errorf("need at least one scene, got %d", numScenes)
	}
	opts, err := sceneOptions(c)
	if err != nil {
		return err
	}
	seed := c.Int64(generalFlagSeed)
	workers := c.Int(generalFlagWorkers)
	if workers <= 0 {
		workers = utils.ParallelFactor
	}

	runs := make([]benchRun, numScenes)
	group, ctx := errgroup.WithContext(c.Context)
	group.SetLimit(workers)
	for i := 0; i < numScenes; i++ {
		group.Go(func() error {
			scene, err := NewSyntheticScene(utils.NewRandomGenerator(seed+int64(i)), opts)
			if err != nil {
				return err
			}
			camera, err := scene.Camera()
			if err != nil {
				return err
			}
			result, err := ransac.Pose(ctx, camera, scene.ObjectPoints, scene.ImagePoints, cfg,
				utils.NewRandomGenerator(seed+int64(i)), logger)
			if err != nil {
				if errors.Is(err, ransac.ErrNoConsensus) {
					logger.Debugw("no consensus", "scene", i)
					return nil
				}
				return errors.Wrapf(err, "scene %d", i)
			}
			truth := scene.WorldTCamera.Pose()
			runs[i] = benchRun{
				ok:               true,
				translationError: result.Model.Translation.Distance(truth.Translation),
				rotationError:    spatialmath.RotationAngleBetween(result.Model.Rotation, truth.Rotation),
				trials:           result.Trials,
				inliers:          len(result.Inliers),
				outliersAccepted: len(lo.Intersect(result.Inliers, scene.Outliers)),
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	report, err := benchReport(runs)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, report)
	return nil
}
