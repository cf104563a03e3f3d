package pyramid

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"gosift/internal/config"
	"gosift/internal/image"
)

// maxRefineSteps is the number of Newton steps taken on a candidate: the
// step at the detected pixel and at most one after moving to a neighbour.
const maxRefineSteps = 2

// extremumTest reports whether DoG sample (x, y, d) is a strict extremum of
// its 26 neighbours with magnitude above threshold.
type extremumTest func(v *image.Volume, x, y, d int, threshold float32) bool

func extremumTestFor(mode config.ExtremaMode) extremumTest {
	if mode == config.ExtremaPrefilter {
		return isExtremumPrefilter
	}
	return isExtremumDirect
}

// FindExtrema locates and refines the scale-space extrema of every octave.
// Extrema with |D| <= threshold and extrema on edges, whose principal
// curvature ratio reaches edgeLimit, are rejected. FindExtrema may run
// again on the same built frame; it discards the candidates, orientations and
// descriptors of the previous run.
func (p *Pyramid) FindExtrema(edgeLimit, threshold float32) error {
	if err := p.require("find extrema", StateBuilt, StateExtremaFound, StateOriented, StateDescribed); err != nil {
		return err
	}
	if edgeLimit <= 0 || threshold < 0 {
		return fmt.Errorf("%w: edge limit %g, threshold %g", ErrInvalidConfig, edgeLimit, threshold)
	}
	defer p.rec.Time(StageExtrema)()

	p.edgeLimit = edgeLimit
	p.threshold = threshold
	for o := range p.octaves {
		p.octaves[o].ResetExtremaCount()
	}

	test := extremumTestFor(p.conf.Extrema)
	var g errgroup.Group
	for o := range p.octaves {
		oct := &p.octaves[o]
		g.Go(func() error {
			if err := p.findOctaveExtrema(oct, test); err != nil {
				return err
			}
			oct.ReadExtremaCount()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("find extrema: %w", err)
	}

	dropped := p.Dropped()
	p.rec.AddDropped(StageExtrema, dropped)
	if dropped > 0 {
		p.logger.Warn("extrema buffers full", "dropped", dropped)
	}
	p.state = StateExtremaFound
	p.logger.Debug("extrema found", "count", p.ExtremaCount())
	return nil
}

func (p *Pyramid) findOctaveExtrema(oct *Octave, test extremumTest) error {
	if !oct.Allocated() {
		return fmt.Errorf("octave %d: %w", oct.ID(), ErrNotAllocated)
	}
	dog := oct.DoG()
	threshold := p.threshold
	for d := 1; d <= p.conf.Levels-3; d++ {
		m := oct.Mgmt(d)
		buf := oct.extrema[d]
		p.pool.ParallelFor(dog.Height-2, func(r0, r1 int) {
			for y := r0 + 1; y < r1+1; y++ {
				for x := 1; x < dog.Width-1; x++ {
					if !test(dog, x, y, d, threshold) {
						continue
					}
					c, ok := p.refine(dog, x, y, d)
					if !ok {
						continue
					}
					slot, ok := m.Reserve(m.Max1)
					if !ok {
						continue
					}
					buf[slot] = c
				}
			}
		})
	}
	return nil
}

func isExtremumDirect(v *image.Volume, x, y, d int, threshold float32) bool {
	c := v.At(x, y, d)
	if float32(math.Abs(float64(c))) <= threshold {
		return false
	}
	isMax, isMin := true, true
	for dd := -1; dd <= 1; dd++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dd == 0 {
					continue
				}
				n := v.At(x+dx, y+dy, d+dd)
				if n >= c {
					isMax = false
				}
				if n <= c {
					isMin = false
				}
			}
		}
		if !isMax && !isMin {
			return false
		}
	}
	return isMax || isMin
}

// isExtremumPrefilter decides the sign from the threshold and compares the
// 8 same-level neighbours before touching the adjacent levels.
func isExtremumPrefilter(v *image.Volume, x, y, d int, threshold float32) bool {
	c := v.At(x, y, d)
	switch {
	case c > threshold:
		if !greaterThanRing(v, x, y, d, c, true) {
			return false
		}
		return greaterThanLevel(v, x, y, d-1, c, true) && greaterThanLevel(v, x, y, d+1, c, true)
	case c < -threshold:
		if !greaterThanRing(v, x, y, d, c, false) {
			return false
		}
		return greaterThanLevel(v, x, y, d-1, c, false) && greaterThanLevel(v, x, y, d+1, c, false)
	}
	return false
}

func beats(c, n float32, wantMax bool) bool {
	if wantMax {
		return c > n
	}
	return c < n
}

func greaterThanRing(v *image.Volume, x, y, d int, c float32, wantMax bool) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if (dx != 0 || dy != 0) && !beats(c, v.At(x+dx, y+dy, d), wantMax) {
				return false
			}
		}
	}
	return true
}

func greaterThanLevel(v *image.Volume, x, y, d int, c float32, wantMax bool) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if !beats(c, v.At(x+dx, y+dy, d), wantMax) {
				return false
			}
		}
	}
	return true
}

// refine fits a quadratic to the DoG around (x, y, d) and returns the
// sub-pixel extremum. Candidates whose fit is singular, leaves the interior,
// does not converge, has too little contrast or lies on an edge are
// rejected.
func (p *Pyramid) refine(v *image.Volume, x, y, d int) (Candidate, bool) {
	var (
		offset mat.VecDense
		grad   [3]float64
		hess   [9]float64
	)
	converged := false
	for step := 0; step < maxRefineSteps; step++ {
		derivatives(v, x, y, d, &grad, &hess)
		h := mat.NewDense(3, 3, hess[:])
		g := mat.NewVecDense(3, []float64{-grad[0], -grad[1], -grad[2]})
		if err := offset.SolveVec(h, g); err != nil {
			return Candidate{}, false
		}

		ox, oy, od := offset.AtVec(0), offset.AtVec(1), offset.AtVec(2)
		if math.Abs(ox) <= 0.5 && math.Abs(oy) <= 0.5 && math.Abs(od) <= 0.5 {
			converged = true
			break
		}
		x += stepOf(ox)
		y += stepOf(oy)
		d += stepOf(od)
		if x < 1 || x >= v.Width-1 || y < 1 || y >= v.Height-1 || d < 1 || d > p.conf.Levels-3 {
			return Candidate{}, false
		}
	}
	if !converged {
		return Candidate{}, false
	}

	ox, oy, od := offset.AtVec(0), offset.AtVec(1), offset.AtVec(2)
	response := float64(v.At(x, y, d)) + 0.5*(grad[0]*ox+grad[1]*oy+grad[2]*od)
	if math.Abs(response) <= float64(p.threshold) {
		return Candidate{}, false
	}

	dxx, dyy, dxy := hess[0], hess[4], hess[1]
	tr := dxx + dyy
	det := dxx*dyy - dxy*dxy
	r := float64(p.edgeLimit)
	if det <= 0 || tr*tr/det >= (r+1)*(r+1)/r {
		return Candidate{}, false
	}

	scale := float32(d) + float32(od)
	return Candidate{
		X:        float32(x) + float32(ox),
		Y:        float32(y) + float32(oy),
		Sigma:    p.info.LevelSigma(scale),
		Level:    int32(d),
		Response: float32(response),
	}, true
}

func stepOf(o float64) int {
	switch {
	case o > 0.5:
		return 1
	case o < -0.5:
		return -1
	}
	return 0
}

// derivatives computes the gradient and Hessian of the DoG at (x, y, d) by
// central differences. hess is row-major in (x, y, s) order.
func derivatives(v *image.Volume, x, y, d int, grad *[3]float64, hess *[9]float64) {
	at := func(dx, dy, dd int) float64 {
		return float64(v.At(x+dx, y+dy, d+dd))
	}
	c := at(0, 0, 0)
	grad[0] = 0.5 * (at(1, 0, 0) - at(-1, 0, 0))
	grad[1] = 0.5 * (at(0, 1, 0) - at(0, -1, 0))
	grad[2] = 0.5 * (at(0, 0, 1) - at(0, 0, -1))

	dxx := at(1, 0, 0) + at(-1, 0, 0) - 2*c
	dyy := at(0, 1, 0) + at(0, -1, 0) - 2*c
	dss := at(0, 0, 1) + at(0, 0, -1) - 2*c
	dxy := 0.25 * (at(1, 1, 0) - at(-1, 1, 0) - at(1, -1, 0) + at(-1, -1, 0))
	dxs := 0.25 * (at(1, 0, 1) - at(-1, 0, 1) - at(1, 0, -1) + at(-1, 0, -1))
	dys := 0.25 * (at(0, 1, 1) - at(0, -1, 1) - at(0, 1, -1) + at(0, -1, -1))

	*hess = [9]float64{
		dxx, dxy, dxs,
		dxy, dyy, dys,
		dxs, dys, dss,
	}
}
