package pyramid

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"gosift/internal/config"
	"gosift/internal/gauss"
	"gosift/internal/image"
)

// Build fills every octave's Gaussian levels and DoG volume from base,
// which must have the size of octave 0 and intensities in [0, 1]. Build
// starts a new frame from any state except freed.
func (p *Pyramid) Build(base *image.Plane) error {
	if p.state == StateFreed {
		return fmt.Errorf("%w: build on freed pyramid", ErrInvalidState)
	}
	if !base.SameSize(p.octaves[0].Data(0)) {
		return fmt.Errorf("%w: got %dx%d, want %dx%d",
			ErrSizeMismatch, base.Width, base.Height, p.Width(), p.Height())
	}

	info, err := p.registry.Acquire()
	if err != nil {
		return err
	}
	defer p.registry.Release()
	if err := p.checkTables(info); err != nil {
		return err
	}
	defer p.rec.Time(StageBuild)()

	p.info = info
	for o := range p.octaves {
		p.octaves[o].ResetExtremaCount()
	}

	p.buildOctave0(info, base)
	if p.conf.Scaling == config.ScaleRecompute {
		if err := p.buildRecompute(info); err != nil {
			return err
		}
	} else {
		for o := 1; o < len(p.octaves); o++ {
			oct := &p.octaves[o]
			prev := &p.octaves[o-1]
			p.decimate(oct.Data(0), prev.Data(p.conf.Levels-3))
			p.buildLevels(info, oct)
			p.buildDoG(oct)
		}
	}

	p.state = StateBuilt
	p.logger.Debug("pyramid built", "octaves", len(p.octaves), "sigma0", info.Sigma0)
	return nil
}

// checkTables rejects tables computed for a different pyramid layout or
// build strategy, whose spans were never checked for this build.
func (p *Pyramid) checkTables(info *gauss.Info) error {
	c := info.Conf
	if info.Levels != p.conf.Levels || info.Octaves < len(p.octaves) ||
		c.Build != p.conf.Build || c.Scaling != p.conf.Scaling || c.Blur != p.conf.Blur ||
		(c.Upscale > 0) != (p.conf.Upscale > 0) {
		return fmt.Errorf("%w: gauss tables were computed for a different configuration", ErrInvalidConfig)
	}
	return nil
}

func (p *Pyramid) buildOctave0(info *gauss.Info, base *image.Plane) {
	oct := &p.octaves[0]
	src := base
	if info.User != nil {
		p.blur(oct.Data(0), base, oct.Intermediate(), kernelFor(info.User, 0, p.conf.Blur))
		src = oct.Data(0)
	}

	if p.conf.Build == config.BuildAbsolute {
		// Level 0 is written last so that src may alias it.
		for l := p.conf.Levels - 1; l >= 0; l-- {
			p.blur(oct.Data(l), src, oct.Intermediate(), kernelFor(info.AbsO0, l, p.conf.Blur))
		}
	} else {
		p.blur(oct.Data(0), src, oct.Intermediate(), p.incKernel(info, 0))
		p.buildLevels(info, oct)
	}
	p.buildDoG(oct)
}

// buildRecompute derives level 0 of every octave from level 0 of the
// octave below, then finishes the octaves concurrently.
func (p *Pyramid) buildRecompute(info *gauss.Info) error {
	for o := 1; o < len(p.octaves); o++ {
		prev := &p.octaves[o-1]
		p.blurDecimate(p.octaves[o].Data(0), prev.Data(0), prev.Intermediate(),
			kernelFor(info.DD, o, p.conf.Blur))
	}

	var g errgroup.Group
	for o := 1; o < len(p.octaves); o++ {
		oct := &p.octaves[o]
		g.Go(func() error {
			if !oct.Allocated() {
				return fmt.Errorf("build octave %d: %w", oct.ID(), ErrNotAllocated)
			}
			p.buildLevels(info, oct)
			p.buildDoG(oct)
			return nil
		})
	}
	return g.Wait()
}

// buildLevels fills levels 1.. of oct from its level 0.
func (p *Pyramid) buildLevels(info *gauss.Info, oct *Octave) {
	tmp := oct.Intermediate()
	for l := 1; l < p.conf.Levels; l++ {
		if p.conf.Build == config.BuildAbsolute {
			p.blur(oct.Data(l), oct.Data(0), tmp, kernelFor(info.AbsON, l, p.conf.Blur))
		} else {
			p.blur(oct.Data(l), oct.Data(l-1), tmp, p.incKernel(info, l))
		}
	}
}

func (p *Pyramid) incKernel(info *gauss.Info, l int) kernel {
	if p.conf.Blur == config.BlurInterpolated {
		return kernelFor(info.IncRelative, l, p.conf.Blur)
	}
	return kernelFor(info.Inc, l, p.conf.Blur)
}

// buildDoG writes level d+1 minus level d into DoG layer d.
func (p *Pyramid) buildDoG(oct *Octave) {
	dog := oct.DoG()
	for d := 0; d < dog.Depth; d++ {
		lo, hi, out := oct.Data(d), oct.Data(d+1), dog.Layer(d)
		p.pool.ParallelFor(out.Height, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				a, b, dst := lo.Row(y), hi.Row(y), out.Row(y)
				for x := range dst {
					dst[x] = b[x] - a[x]
				}
			}
		})
	}
}
