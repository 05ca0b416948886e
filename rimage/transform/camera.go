package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Camera maps between the image and the camera's inverted flipped frame, in which the camera looks
// down the positive z axis with x to the right and y down.
type Camera interface {
	// Project returns the pixel of a point given in the inverted flipped frame. The point must lie
	// in front of the camera.
	Project(pt r3.Vector) r2.Point
	// Ray returns the unit direction, in the inverted flipped frame, of the light ray hitting the pixel.
	Ray(px r2.Point) r3.Vector
	CheckValid() error
}
