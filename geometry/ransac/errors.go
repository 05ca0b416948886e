package ransac

import "github.com/pkg/errors"

var (
	// ErrTooFewCorrespondences is returned before any sampling when the input cannot reach the
	// minimal number of inliers.
	ErrTooFewCorrespondences = errors.New("too few correspondences")
	// ErrNoConsensus is returned when no hypothesis reached the minimal number of inliers.
	ErrNoConsensus = errors.New("no model reached the minimal number of inliers")
	// ErrInvalidConfig is returned for configurations that fail validation.
	ErrInvalidConfig = errors.New("invalid ransac config")
)

func tooFew(got, need int) error {
	return errors.Wrapf(ErrTooFewCorrespondences, "got %d, need at least %d", got, need)
}
