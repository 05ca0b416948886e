package transform

// InverseBrownConrady is the inverse of the Brown-Conrady model with the same coefficients: its
// Transform undistorts and its Undistort distorts. It describes cameras whose calibration was
// expressed from distorted to undistorted coordinates.
type InverseBrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewInverseBrownConrady takes in a slice of floats that will be passed into the struct in order.
func NewInverseBrownConrady(inp []float64) (*InverseBrownConrady, error) {
	p, err := padParameters(inp)
	if err != nil {
		return nil, err
	}
	return &InverseBrownConrady{p[0], p[1], p[2], p[3], p[4]}, nil
}

func (ibc *InverseBrownConrady) forward() *BrownConrady {
	return &BrownConrady{ibc.RadialK1, ibc.RadialK2, ibc.RadialK3, ibc.TangentialP1, ibc.TangentialP2}
}

// CheckValid checks if the fields for InverseBrownConrady have valid inputs.
func (ibc *InverseBrownConrady) CheckValid() error {
	if ibc == nil {
		return InvalidDistortionError("InverseBrownConrady shaped distortion_parameters not provided")
	}
	return ibc.forward().CheckValid()
}

// ModelType returns the type of distortion model.
func (ibc *InverseBrownConrady) ModelType() DistortionType {
	return InverseBrownConradyDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (ibc *InverseBrownConrady) Parameters() []float64 {
	if ibc == nil {
		return []float64{}
	}
	return ibc.forward().Parameters()
}

// Transform finds the point that the Brown-Conrady model would distort to (x, y).
func (ibc *InverseBrownConrady) Transform(x, y float64) (float64, float64) {
	if ibc == nil {
		return x, y
	}
	return ibc.forward().Undistort(x, y)
}

// Undistort applies the forward Brown-Conrady model.
func (ibc *InverseBrownConrady) Undistort(x, y float64) (float64, float64) {
	if ibc == nil {
		return x, y
	}
	return ibc.forward().Transform(x, y)
}
