package pyramid

import (
	"fmt"

	"gosift/internal/image"
	"gosift/pkg/geometry"
)

// Keypoint is a candidate mapped to the coordinates of the input image.
type Keypoint struct {
	Octave   int
	Level    int
	Position geometry.Point2D
	Sigma    float64
	Angle    float64
	Response float64
}

// Feature is a keypoint with its descriptor.
type Feature struct {
	Keypoint
	Descriptor Descriptor
}

// Keypoint maps c, found in octave o, to input image coordinates.
func (p *Pyramid) Keypoint(o int, c Candidate) Keypoint {
	upscaled := p.conf.Upscale > 0
	pos := geometry.OctaveToImage(geometry.NewPoint2D(float64(c.X), float64(c.Y)), o, upscaled)
	return Keypoint{
		Octave:   o,
		Level:    int(c.Level),
		Position: pos,
		Sigma:    geometry.SigmaToImage(float64(c.Sigma), o, upscaled),
		Angle:    float64(c.Angle),
		Response: float64(c.Response),
	}
}

// Keypoints returns the current candidates of every octave in input image
// coordinates.
func (p *Pyramid) Keypoints() []Keypoint {
	var out []Keypoint
	var cands []Candidate
	for o := range p.octaves {
		oct := &p.octaves[o]
		for l := 1; l <= p.conf.Levels-3; l++ {
			cands, _ = oct.DownloadToVector(l, cands[:0], nil)
			for _, c := range cands {
				out = append(out, p.Keypoint(o, c))
			}
		}
	}
	return out
}

// Features downloads the keypoints and descriptors of the last described
// frame.
func (p *Pyramid) Features() ([]Feature, error) {
	if err := p.require("features", StateDescribed); err != nil {
		return nil, err
	}
	var out []Feature
	for o := range p.octaves {
		oct := &p.octaves[o]
		if err := oct.DownloadDescriptors(); err != nil {
			return nil, fmt.Errorf("octave %d: %w", o, err)
		}
		for l := 1; l <= p.conf.Levels-3; l++ {
			descs := oct.HostDescriptors(l)
			for i, c := range oct.Extrema(l) {
				out = append(out, Feature{Keypoint: p.Keypoint(o, c), Descriptor: descs[i]})
			}
		}
	}
	return out, nil
}

// Extract runs a full frame on base with the configured thresholds and
// returns its features.
func (p *Pyramid) Extract(base *image.Plane) ([]Feature, error) {
	if err := p.Build(base); err != nil {
		return nil, err
	}
	if err := p.FindExtrema(p.conf.EdgeLimit, p.conf.Threshold); err != nil {
		return nil, err
	}
	if err := p.Orientation(); err != nil {
		return nil, err
	}
	if err := p.Descriptors(); err != nil {
		return nil, err
	}
	return p.Features()
}
