package model

import "github.com/go-gl/mathgl/mgl64"

// Location represents coordinates in the game world.
// Value type, passed by value (immutable).
type Location struct {
	X       float64
	Y       float64
	Z       float64
	Heading uint16 // 0-65535
}

// NewLocation creates a Location with the given coordinates.
func NewLocation(x, y, z float64, heading uint16) Location {
	return Location{X: x, Y: y, Z: z, Heading: heading}
}

// Vec returns the position as a mathgl vector.
func (l Location) Vec() mgl64.Vec3 {
	return mgl64.Vec3{l.X, l.Y, l.Z}
}

// WithCoordinates returns a new Location with updated coordinates (immutable pattern).
func (l Location) WithCoordinates(x, y, z float64) Location {
	l.X = x
	l.Y = y
	l.Z = z
	return l
}

// DistanceTo returns the distance to another point.
func (l Location) DistanceTo(other Location) float64 {
	return l.Vec().Sub(other.Vec()).Len()
}

// DistanceSquared returns the squared distance to another point (no sqrt, for hot paths).
func (l Location) DistanceSquared(other Location) float64 {
	d := l.Vec().Sub(other.Vec())
	return d.Dot(d)
}
