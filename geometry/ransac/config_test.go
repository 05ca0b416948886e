package ransac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/geomfit/geometry/estimator"
)

func TestConfigValidate(t *testing.T) {
	test.That(t, DefaultConfig().Validate(), test.ShouldBeNil)

	cfg := DefaultConfig()
	cfg.SuccessProbability = 1
	cfg.OutlierRate = -0.1
	cfg.MaxIterations = 0
	cfg.Workers = -2
	cfg.Estimator = "least_squares"
	err := cfg.Validate()
	test.That(t, errors.Is(err, ErrInvalidConfig), test.ShouldBeTrue)
	for _, field := range []string{"success_probability", "outlier_rate", "max_iterations", "workers", "least_squares"} {
		test.That(t, err.Error(), test.ShouldContainSubstring, field)
	}
}

func TestNewConfigFromAttributes(t *testing.T) {
	cfg, err := NewConfigFromAttributes(map[string]interface{}{
		"max_iterations":      500,
		"sqr_error_threshold": 4.0,
		"estimator":           "huber",
		"prune":               true,
		"workers":             "3",
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.MaxIterations, test.ShouldEqual, 500)
	test.That(t, cfg.SqrErrorThreshold, test.ShouldEqual, 4.0)
	test.That(t, cfg.Estimator, test.ShouldEqual, estimator.Huber)
	test.That(t, cfg.Prune, test.ShouldBeTrue)
	test.That(t, cfg.Workers, test.ShouldEqual, 3)
	test.That(t, cfg.SuccessProbability, test.ShouldEqual, DefaultConfig().SuccessProbability)

	_, err = NewConfigFromAttributes(map[string]interface{}{"max_iteration": 5})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_iteration")

	_, err = NewConfigFromAttributes(map[string]interface{}{"outlier_rate": 1.5})
	test.That(t, errors.Is(err, ErrInvalidConfig), test.ShouldBeTrue)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ransac.json")
	test.That(t, os.WriteFile(path, []byte(`{"max_iterations": 80, "estimator": "tukey"}`), 0o600), test.ShouldBeNil)

	cfg, err := LoadConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.MaxIterations, test.ShouldEqual, 80)
	test.That(t, cfg.Estimator, test.ShouldEqual, estimator.Tukey)
	test.That(t, cfg.Lambda, test.ShouldEqual, DefaultConfig().Lambda)

	commented := `{
		// tighter threshold for the calibration rig
		"sqr_error_threshold": 4,
		"prune": true,
	}`
	test.That(t, os.WriteFile(path, []byte(commented), 0o600), test.ShouldBeNil)
	cfg, err = LoadConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.SqrErrorThreshold, test.ShouldEqual, 4.)
	test.That(t, cfg.Prune, test.ShouldBeTrue)
	test.That(t, cfg.MaxIterations, test.ShouldEqual, DefaultConfig().MaxIterations)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, os.WriteFile(path, []byte(`{"max_iterations": 0}`), 0o600), test.ShouldBeNil)
	_, err = LoadConfig(path)
	test.That(t, errors.Is(err, ErrInvalidConfig), test.ShouldBeTrue)
}
