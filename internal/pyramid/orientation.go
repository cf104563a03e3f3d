package pyramid

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"gosift/internal/config"
	"gosift/internal/image"
)

const (
	oriBins         = 36
	oriSigmaFactor  = 1.5
	oriRadiusFactor = 3.0
	oriPeakRatio    = 0.8
	oriSmoothPasses = 6
	maxOrientations = 4
)

// Orientation assigns dominant gradient orientations to the candidates of
// every octave. A candidate with several dominant orientations becomes
// several candidates, up to the level's second capacity; a candidate in a
// region without gradient is removed.
func (p *Pyramid) Orientation() error {
	if err := p.require("orientation", StateExtremaFound); err != nil {
		return err
	}
	defer p.rec.Time(StageOrientation)()

	var g errgroup.Group
	for o := range p.octaves {
		oct := &p.octaves[o]
		g.Go(func() error {
			if !oct.Allocated() {
				return fmt.Errorf("orientation octave %d: %w", oct.ID(), ErrNotAllocated)
			}
			for l := 1; l <= p.conf.Levels-3; l++ {
				p.orientLevel(oct, l)
			}
			oct.ReadExtremaCount()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	dropped := p.Dropped()
	p.rec.AddDropped(StageOrientation, dropped)
	if dropped > 0 {
		p.logger.Warn("orientation buffers full", "dropped", dropped)
	}
	p.state = StateOriented
	p.logger.Debug("orientations assigned", "count", p.ExtremaCount())
	return nil
}

// orientLevel writes the oriented candidates of level l into the scratch
// buffer and then makes it the level's candidate buffer.
func (p *Pyramid) orientLevel(oct *Octave, l int) {
	n := oct.ExtremaCount(l)
	in := oct.extrema[l][:n]
	out := oct.scratch[l]
	sm := &oct.scratchM[l]
	sm.Reset()

	emit := func(c Candidate, hist *[oriBins]float32) {
		var angles [maxOrientations]float32
		for _, a := range dominantAngles(hist, angles[:0]) {
			slot, ok := sm.Reserve(sm.Max2)
			if !ok {
				return
			}
			c.Angle = a
			out[slot] = c
		}
	}

	if p.conf.Orientation == config.OrientSplit {
		hists := oct.hist[l]
		p.pool.ParallelForAtomic(n, func(i int) {
			h := (*[oriBins]float32)(hists[i*oriBins : (i+1)*oriBins])
			orientationHistogram(oct.Data(int(in[i].Level)), in[i], h)
		})
		p.pool.ParallelForAtomic(n, func(i int) {
			emit(in[i], (*[oriBins]float32)(hists[i*oriBins:(i+1)*oriBins]))
		})
	} else {
		p.pool.ParallelForAtomic(n, func(i int) {
			var h [oriBins]float32
			orientationHistogram(oct.Data(int(in[i].Level)), in[i], &h)
			emit(in[i], &h)
		})
	}

	oct.extrema[l], oct.scratch[l] = oct.scratch[l], oct.extrema[l]
	m := oct.Mgmt(l)
	m.set(sm.Counter(), sm.Dropped())
}

// orientationHistogram accumulates the Gaussian-weighted gradient
// orientations around c into h and smooths the result.
func orientationHistogram(plane *image.Plane, c Candidate, h *[oriBins]float32) {
	*h = [oriBins]float32{}

	sigmaW := oriSigmaFactor * float64(c.Sigma)
	radius := int(math.Round(oriRadiusFactor * sigmaW))
	r2max := float64(radius*radius) + 0.5
	cx := int(math.Round(float64(c.X)))
	cy := int(math.Round(float64(c.Y)))

	for py := max(cy-radius, 1); py <= min(cy+radius, plane.Height-2); py++ {
		dy := float64(py) - float64(c.Y)
		for px := max(cx-radius, 1); px <= min(cx+radius, plane.Width-2); px++ {
			dx := float64(px) - float64(c.X)
			r2 := dx*dx + dy*dy
			if r2 > r2max {
				continue
			}
			gx := float64(plane.At(px+1, py) - plane.At(px-1, py))
			gy := float64(plane.At(px, py+1) - plane.At(px, py-1))
			mag := math.Hypot(gx, gy)
			if mag == 0 {
				continue
			}
			theta := normalizeAngle(math.Atan2(gy, gx))
			bin := int(theta*oriBins/(2*math.Pi)) % oriBins
			h[bin] += float32(mag * math.Exp(-r2/(2*sigmaW*sigmaW)))
		}
	}

	var tmp [oriBins]float32
	for range oriSmoothPasses {
		tmp = *h
		for b := range oriBins {
			prev := tmp[(b+oriBins-1)%oriBins]
			next := tmp[(b+1)%oriBins]
			h[b] = (prev + tmp[b] + next) / 3
		}
	}
}

// dominantAngles appends the interpolated angle of every histogram peak
// reaching oriPeakRatio of the maximum, at most maxOrientations of them.
// An empty histogram yields no angle.
func dominantAngles(h *[oriBins]float32, dst []float32) []float32 {
	var peak float32
	for _, v := range h {
		peak = max(peak, v)
	}
	if peak <= 0 {
		return dst
	}
	for b := 0; b < oriBins && len(dst) < maxOrientations; b++ {
		prev := h[(b+oriBins-1)%oriBins]
		next := h[(b+1)%oriBins]
		v := h[b]
		if v <= prev || v <= next || v < oriPeakRatio*peak {
			continue
		}
		delta := 0.5 * (prev - next) / (prev - 2*v + next)
		theta := 2 * math.Pi * (float64(b) + 0.5 + float64(delta)) / oriBins
		dst = append(dst, angle32(theta))
	}
	return dst
}

func normalizeAngle(theta float64) float64 {
	theta = math.Mod(theta, 2*math.Pi)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	if theta >= 2*math.Pi {
		theta = 0
	}
	return theta
}

// angle32 narrows a normalized angle, keeping it below 2π after rounding.
func angle32(theta float64) float32 {
	a := float32(normalizeAngle(theta))
	if a >= 2*math.Pi {
		return 0
	}
	return a
}
