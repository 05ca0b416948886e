// Package cli contains the geomfit command line tool.
package cli

import (
	"io"

	"github.com/edaniels/golog"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	// Flags.
	debugFlag = "debug"

	iterationsFlagModelSize   = "model-size"
	iterationsFlagSuccess     = "success"
	iterationsFlagOutlierRate = "outlier-rate"
	iterationsFlagMax         = "max"

	synthFlagPoints     = "points"
	synthFlagOutliers   = "outliers"
	synthFlagNoise      = "noise"
	synthFlagOut        = "out"
	synthFlagIntrinsics = "intrinsics"

	poseFlagScene     = "scene"
	poseFlagPlot      = "plot"
	poseFlagHistogram = "histogram"

	benchFlagScenes = "scenes"

	generalFlagSeed    = "seed"
	generalFlagConfig  = "config"
	generalFlagWorkers = "workers"

	loggerKey = "logger"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "geomfit",
		Usage:           "estimate geometric models from data with outliers",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    debugFlag,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			var logger golog.Logger
			if c.Bool(debugFlag) {
				logger = golog.NewDebugLogger("geomfit")
			} else {
				logger = zap.NewNop().Sugar()
			}
			if c.App.Metadata == nil {
				c.App.Metadata = map[string]interface{}{}
			}
			c.App.Metadata[loggerKey] = logger
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "iterations",
				Usage: "print the number of samples needed to draw an outlier free one",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  iterationsFlagModelSize,
						Usage: "number of elements in a minimal sample",
						Value: 3,
					},
					&cli.Float64Flag{
						Name:  iterationsFlagSuccess,
						Usage: "probability of drawing at least one outlier free sample",
						Value: 0.99,
					},
					&cli.Float64Flag{
						Name:  iterationsFlagOutlierRate,
						Usage: "expected share of outliers",
						Value: 0.5,
					},
					&cli.IntFlag{
						Name:  iterationsFlagMax,
						Usage: "upper bound on the number of samples",
						Value: 1000,
					},
				},
				Action: IterationsAction,
			},
			{
				Name:  "synth",
				Usage: "write a synthetic pose estimation scene",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  synthFlagPoints,
						Usage: "number of correspondences",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  synthFlagOutliers,
						Usage: "number of correspondences moved away from their projection",
						Value: 15,
					},
					&cli.Float64Flag{
						Name:  synthFlagNoise,
						Usage: "standard deviation in pixels of the noise on the image points",
						Value: 0.5,
					},
					&cli.Int64Flag{
						Name:  generalFlagSeed,
						Usage: "random seed",
					},
					&cli.PathFlag{
						Name:  synthFlagIntrinsics,
						Usage: "read the camera intrinsics from `FILE` instead of using a 640x480 camera",
					},
					&cli.PathFlag{
						Name:     synthFlagOut,
						Usage:    "write the scene to `FILE`",
						Required: true,
					},
				},
				Action: SynthAction,
			},
			{
				Name:  "pose",
				Usage: "estimate the camera pose of a scene",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     poseFlagScene,
						Usage:    "read the scene from `FILE`",
						Required: true,
					},
					&cli.PathFlag{
						Name:    generalFlagConfig,
						Aliases: []string{"c"},
						Usage:   "load the estimation configuration from `FILE`",
					},
					&cli.Int64Flag{
						Name:  generalFlagSeed,
						Usage: "random seed",
					},
					&cli.IntFlag{
						Name:  generalFlagWorkers,
						Usage: "number of partitions the trials are spread over, 0 for one per core",
						Value: 1,
					},
					&cli.PathFlag{
						Name:  poseFlagPlot,
						Usage: "write a histogram of the inlier reprojection errors to `FILE`",
					},
					&cli.BoolFlag{
						Name:  poseFlagHistogram,
						Usage: "print a histogram of the inlier reprojection errors",
					},
				},
				Action: PoseAction,
			},
			{
				Name:   "config-schema",
				Usage:  "print the JSON schema of the estimation configuration",
				Action: ConfigSchemaAction,
			},
			{
				Name:  "bench",
				Usage: "estimate the pose of many synthetic scenes and summarize the accuracy",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  benchFlagScenes,
						Usage: "number of scenes",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  synthFlagPoints,
						Usage: "number of correspondences per scene",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  synthFlagOutliers,
						Usage: "number of outliers per scene",
						Value: 15,
					},
					&cli.Float64Flag{
						Name:  synthFlagNoise,
						Usage: "standard deviation in pixels of the noise on the image points",
						Value: 0.5,
					},
					&cli.Int64Flag{
						Name:  generalFlagSeed,
						Usage: "random seed",
					},
					&cli.PathFlag{
						Name:    generalFlagConfig,
						Aliases: []string{"c"},
						Usage:   "load the estimation configuration from `FILE`",
					},
					&cli.IntFlag{
						Name:  generalFlagWorkers,
						Usage: "number of scenes estimated concurrently, 0 for one per core",
					},
					&cli.PathFlag{
						Name:  synthFlagIntrinsics,
						Usage: "read the camera intrinsics from `FILE` instead of using a 640x480 camera",
					},
				},
				Action: BenchAction,
			},
		},
	}
}

func loggerFromContext(c *cli.Context) golog.Logger {
	if logger, ok := c.App.Metadata[loggerKey].(golog.Logger); ok {
		return logger
	}
	return zap.NewNop().Sugar()
}
