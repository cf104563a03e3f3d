// Package geometry provides the point type and the scale-space coordinate
// mappings shared by keypoint consumers.
package geometry

import (
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Scale returns the point scaled by a factor.
func (p Point2D) Scale(factor float64) Point2D {
	return Point2D{X: p.X * factor, Y: p.Y * factor}
}

// OctaveToImage maps a position in the pixel grid of octave o to the pixel
// grid of the input image. Pixel centres sit on integer coordinates in both
// grids. When the input was upscaled 2x before octave 0, the result is
// mapped back to the original resolution.
func OctaveToImage(p Point2D, octave int, upscaled bool) Point2D {
	f := math.Ldexp(1, octave)
	q := p.Scale(f)
	if upscaled {
		q = Point2D{X: (q.X+0.5)/2 - 0.5, Y: (q.Y+0.5)/2 - 0.5}
	}
	return q
}

// SigmaToImage maps a blur radius in octave units to input image units.
func SigmaToImage(sigma float64, octave int, upscaled bool) float64 {
	s := math.Ldexp(sigma, octave)
	if upscaled {
		s /= 2
	}
	return s
}
