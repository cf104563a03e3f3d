package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointArithmetic(t *testing.T) {
	a := NewPoint2D(3, 4)
	assert.InDelta(t, 5.0, a.Distance(Point2D{}), 1e-12)
	assert.Equal(t, Point2D{X: 4, Y: 6}, a.Add(NewPoint2D(1, 2)))
	assert.Equal(t, Point2D{X: 2, Y: 2}, a.Sub(NewPoint2D(1, 2)))
	assert.Equal(t, Point2D{X: 6, Y: 8}, a.Scale(2))
}

func TestOctaveToImage(t *testing.T) {
	tests := []struct {
		name     string
		p        Point2D
		octave   int
		upscaled bool
		want     Point2D
	}{
		{"octave 0", NewPoint2D(10, 20), 0, false, NewPoint2D(10, 20)},
		{"octave 2", NewPoint2D(10, 20), 2, false, NewPoint2D(40, 80)},
		{"upscaled octave 0", NewPoint2D(21, 41), 0, true, NewPoint2D(10.25, 20.25)},
		{"upscaled octave 1", NewPoint2D(10, 20), 1, true, NewPoint2D(9.75, 19.75)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OctaveToImage(tt.p, tt.octave, tt.upscaled)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
		})
	}
}

func TestSigmaToImage(t *testing.T) {
	assert.InDelta(t, 1.6, SigmaToImage(1.6, 0, false), 1e-9)
	assert.InDelta(t, 6.4, SigmaToImage(1.6, 2, false), 1e-9)
	assert.InDelta(t, 0.8, SigmaToImage(1.6, 0, true), 1e-9)
}
