package transform

import "github.com/pkg/errors"

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// InverseBrownConradyDistortionType maps distorted coordinates back through the Brown-Conrady model.
	InverseBrownConradyDistortionType = DistortionType("inverse_brown_conrady")
)

// Distorter defines a Transform that takes undistorted normalized image coordinates and distorts
// them according to the model.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// Undistorter is implemented by distortion models that know their own inverse.
type Undistorter interface {
	Undistort(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion_parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case BrownConradyDistortionType:
		return NewBrownConrady(parameters)
	case InverseBrownConradyDistortionType:
		return NewInverseBrownConrady(parameters)
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}

// undistort inverts d at the distorted point (x, y). Models without a known inverse are
// inverted by fixed point iteration.
func undistort(d Distorter, x, y float64) (float64, float64) {
	if u, ok := d.(Undistorter); ok {
		return u.Undistort(x, y)
	}
	xu, yu := x, y
	for i := 0; i < 20; i++ {
		xd, yd := d.Transform(xu, yu)
		xu -= xd - x
		yu -= yd - y
	}
	return xu, yu
}
