package ransac

import (
	"math"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.uber.org/multierr"

	"go.viam.com/geomfit/geometry/estimator"
	"go.viam.com/geomfit/geometry/nonlinear"
)

// Config controls the hypothesize and test loop and the refinement after it.
type Config struct {
	// SuccessProbability is the desired probability of drawing at least one outlier free sample.
	SuccessProbability float64 `json:"success_probability"`
	// OutlierRate is the expected share of outliers, used for the initial iteration budget.
	OutlierRate float64 `json:"outlier_rate"`
	// MaxIterations caps the iteration budget.
	MaxIterations int `json:"max_iterations"`
	// SqrErrorThreshold is the largest squared error of an inlier.
	SqrErrorThreshold float64 `json:"sqr_error_threshold"`
	// MinimalValidCorrespondences is the smallest number of inliers a model needs to be accepted.
	// It is raised to the sample size of the model when lower.
	MinimalValidCorrespondences int `json:"minimal_valid_correspondences"`

	Estimator            estimator.Kind `json:"estimator"`
	Lambda               float64        `json:"lambda"`
	LambdaFactor         float64        `json:"lambda_factor"`
	RefinementIterations int            `json:"refinement_iterations"`
	// MaxRefinementPasses bounds how often the model is refined and its inliers reclassified.
	// Zero disables refinement.
	MaxRefinementPasses int `json:"max_refinement_passes"`

	// Prune stops scoring a hypothesis once it can no longer beat the best one.
	Prune bool `json:"prune"`
	// Workers is the number of partitions trials are spread over. Zero uses one per available
	// core.
	Workers int `json:"workers"`
}

// DefaultConfig returns the configuration used for camera pose estimation.
func DefaultConfig() Config {
	return Config{
		SuccessProbability:          0.99,
		OutlierRate:                 0.5,
		MaxIterations:               200,
		SqrErrorThreshold:           25,
		MinimalValidCorrespondences: 5,
		Estimator:                   estimator.Square,
		Lambda:                      0.001,
		LambdaFactor:                5,
		RefinementIterations:        20,
		MaxRefinementPasses:         2,
		Workers:                     1,
	}
}

// NonlinearOptions returns the options for the refinement stage.
func (cfg Config) NonlinearOptions() nonlinear.Options {
	return nonlinear.Options{
		Iterations:   cfg.RefinementIterations,
		Estimator:    cfg.Estimator,
		Lambda:       cfg.Lambda,
		LambdaFactor: cfg.LambdaFactor,
	}
}

// Validate returns every violation in the configuration.
func (cfg Config) Validate() error {
	var err error
	if !(cfg.SuccessProbability > 0 && cfg.SuccessProbability < 1) {
		err = multierr.Append(err, errors.Errorf("success_probability must be in (0, 1), got %v", cfg.SuccessProbability))
	}
	if !(cfg.OutlierRate >= 0 && cfg.OutlierRate < 1) {
		err = multierr.Append(err, errors.Errorf("outlier_rate must be in [0, 1), got %v", cfg.OutlierRate))
	}
	if cfg.MaxIterations < 1 {
		err = multierr.Append(err, errors.Errorf("max_iterations must be at least 1, got %d", cfg.MaxIterations))
	}
	if !(cfg.SqrErrorThreshold >= 0) || math.IsInf(cfg.SqrErrorThreshold, 0) {
		err = multierr.Append(err, errors.Errorf("sqr_error_threshold must be finite and not negative, got %v", cfg.SqrErrorThreshold))
	}
	if cfg.MinimalValidCorrespondences < 0 {
		err = multierr.Append(err, errors.Errorf("minimal_valid_correspondences must not be negative, got %d",
			cfg.MinimalValidCorrespondences))
	}
	if cfg.MaxRefinementPasses < 0 {
		err = multierr.Append(err, errors.Errorf("max_refinement_passes must not be negative, got %d", cfg.MaxRefinementPasses))
	}
	if cfg.Workers < 0 {
		err = multierr.Append(err, errors.Errorf("workers must not be negative, got %d", cfg.Workers))
	}
	err = multierr.Append(err, cfg.NonlinearOptions().Validate())
	if err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

// NewConfigFromAttributes decodes a configuration from an attribute map using the json field
// names. Missing attributes keep their defaults and unknown attributes are an error.
func NewConfigFromAttributes(attributes map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return Config{}, errors.Wrap(err, "error decoding ransac config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a configuration from a JSON5 file, so comments and trailing commas are
// allowed. Fields missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "error reading ransac config")
	}
	cfg := DefaultConfig()
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "error parsing ransac config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
