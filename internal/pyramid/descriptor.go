package pyramid

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"gosift/internal/image"
)

const (
	descWidth   = 4   // spatial bins per side
	descBins    = 8   // orientation bins per spatial bin
	descMagnif  = 3.0 // spatial bin width in units of the keypoint sigma
	descClip    = 0.2
	descWindowS = descWidth / 2.0 // Gaussian window sigma in bins
)

// Descriptors computes the feature vector of every oriented candidate.
// Storage is allocated on first use and reused for later frames.
func (p *Pyramid) Descriptors() error {
	if err := p.require("descriptors", StateOriented); err != nil {
		return err
	}
	defer p.rec.Time(StageDescriptors)()

	var g errgroup.Group
	for o := range p.octaves {
		oct := &p.octaves[o]
		g.Go(func() error {
			if err := oct.AllocDescriptors(); err != nil {
				return fmt.Errorf("descriptors octave %d: %w", oct.ID(), err)
			}
			for l := 1; l <= p.conf.Levels-3; l++ {
				cands := oct.Extrema(l)
				out := oct.desc[l]
				p.pool.ParallelForAtomic(len(cands), func(i int) {
					c := cands[i]
					describe(oct.Data(int(c.Level)), c, &out[i])
				})
			}
			oct.MarkDescribed()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	p.state = StateDescribed
	return nil
}

// describe fills d with the 4x4x8 histogram of gradient orientations around
// c, relative to c's angle, normalized and clipped.
func describe(plane *image.Plane, c Candidate, d *Descriptor) {
	var hist [descWidth * descWidth * descBins]float64

	cosT := math.Cos(float64(c.Angle))
	sinT := math.Sin(float64(c.Angle))
	binSize := descMagnif * float64(c.Sigma)
	radius := int(binSize*math.Sqrt2*(descWidth+1)*0.5 + 0.5)
	cx := int(math.Round(float64(c.X)))
	cy := int(math.Round(float64(c.Y)))

	for py := max(cy-radius, 1); py <= min(cy+radius, plane.Height-2); py++ {
		ry := float64(py) - float64(c.Y)
		for px := max(cx-radius, 1); px <= min(cx+radius, plane.Width-2); px++ {
			rx := float64(px) - float64(c.X)

			// Sample position in the rotated bin grid.
			xr := (cosT*rx + sinT*ry) / binSize
			yr := (-sinT*rx + cosT*ry) / binSize
			xb := xr + descWidth/2.0 - 0.5
			yb := yr + descWidth/2.0 - 0.5
			if xb <= -1 || xb >= descWidth || yb <= -1 || yb >= descWidth {
				continue
			}

			gx := float64(plane.At(px+1, py) - plane.At(px-1, py))
			gy := float64(plane.At(px, py+1) - plane.At(px, py-1))
			mag := math.Hypot(gx, gy)
			if mag == 0 {
				continue
			}
			theta := normalizeAngle(math.Atan2(gy, gx) - float64(c.Angle))
			ob := theta * descBins / (2 * math.Pi)
			w := math.Exp(-(xr*xr + yr*yr) / (2 * descWindowS * descWindowS))
			accumulate(&hist, xb, yb, ob, w*mag)
		}
	}

	v := hist[:]
	normalize(v)
	for i := range v {
		v[i] = math.Min(v[i], descClip)
	}
	normalize(v)
	for i := range v {
		d.Features[i] = float32(v[i])
	}
}

// accumulate spreads m over the eight bins surrounding (xb, yb, ob) by
// trilinear interpolation. The orientation axis wraps around.
func accumulate(hist *[descWidth * descWidth * descBins]float64, xb, yb, ob, m float64) {
	x0 := math.Floor(xb)
	y0 := math.Floor(yb)
	o0 := math.Floor(ob)
	fx, fy, fo := xb-x0, yb-y0, ob-o0

	for dy := 0; dy <= 1; dy++ {
		y := int(y0) + dy
		if y < 0 || y >= descWidth {
			continue
		}
		wy := fy
		if dy == 0 {
			wy = 1 - fy
		}
		for dx := 0; dx <= 1; dx++ {
			x := int(x0) + dx
			if x < 0 || x >= descWidth {
				continue
			}
			wx := fx
			if dx == 0 {
				wx = 1 - fx
			}
			for do := 0; do <= 1; do++ {
				o := (int(o0) + do) % descBins
				wo := fo
				if do == 0 {
					wo = 1 - fo
				}
				hist[(y*descWidth+x)*descBins+o] += m * wx * wy * wo
			}
		}
	}
}

func normalize(v []float64) {
	if n := floats.Norm(v, 2); n > 0 {
		floats.Scale(1/n, v)
	}
}
