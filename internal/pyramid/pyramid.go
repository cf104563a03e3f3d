// Package pyramid builds the Gaussian and difference-of-Gaussians scale
// space of an image and extracts SIFT keypoints and descriptors from it.
//
// A Pyramid is constructed once for a fixed image size and configuration
// and then processes any number of frames. Each frame runs through
//
//	Build -> FindExtrema -> Orientation -> Descriptors
//
// in order; Build may be called again at any point to start a new frame.
// No storage is reallocated between frames.
package pyramid

import (
	"fmt"
	"io"
	"log/slog"

	"gosift/internal/config"
	"gosift/internal/gauss"
	"gosift/internal/image"
	"gosift/internal/parallel"
	"gosift/internal/timing"
)

// MinOctaveSize is the smallest width or height any octave may have.
const MinOctaveSize = 8

// State is the position of a pyramid in its per-frame pipeline.
type State int

const (
	StateConstructed State = iota
	StateBuilt
	StateExtremaFound
	StateOriented
	StateDescribed
	StateFreed
)

var stateNames = [...]string{"constructed", "built", "extrema-found", "oriented", "described", "freed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stage names used for timing.
const (
	StageBuild       = "build"
	StageExtrema     = "extrema"
	StageOrientation = "orientation"
	StageDescriptors = "descriptors"
)

// Pyramid is the scale space of one image size.
type Pyramid struct {
	conf    config.Config
	octaves []Octave
	state   State

	registry *gauss.Registry
	pool     *parallel.Pool
	ownPool  bool
	rec      *timing.Recorder
	logger   *slog.Logger

	// Tables the last frame was built with.
	info *gauss.Info

	// Thresholds of the last FindExtrema.
	threshold float32
	edgeLimit float32
}

// Option configures a Pyramid.
type Option func(*Pyramid)

// WithLogger sets the logger; the default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pyramid) { p.logger = l }
}

// WithRegistry reads the Gaussian tables from r instead of gauss.Default.
func WithRegistry(r *gauss.Registry) Option {
	return func(p *Pyramid) { p.registry = r }
}

// WithPool runs the stages on pool. The pyramid does not close it.
func WithPool(pool *parallel.Pool) Option {
	return func(p *Pyramid) { p.pool = pool }
}

// WithRecorder collects stage timings into rec.
func WithRecorder(rec *timing.Recorder) Option {
	return func(p *Pyramid) { p.rec = rec }
}

// InitFilter computes the Gaussian tables for conf and publishes them to
// gauss.Default. It must run before the first Build.
func InitFilter(conf config.Config) error {
	return gauss.Default.Init(conf)
}

// InitSigma republishes the tables of gauss.Default with a new sigma0 and
// level count.
func InitSigma(sigma float32, levels int) error {
	return gauss.Default.InitSigma(sigma, levels)
}

// New allocates a pyramid for images of width x height. The octave count
// of conf must leave every octave at least MinOctaveSize pixels wide and
// high; when upscaling, width and height are those of the upscaled image.
func New(width, height int, conf config.Config, opts ...Option) (*Pyramid, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if width>>(conf.Octaves-1) < MinOctaveSize || height>>(conf.Octaves-1) < MinOctaveSize {
		return nil, fmt.Errorf("%w: %dx%d is too small for %d octaves",
			ErrInvalidConfig, width, height, conf.Octaves)
	}

	p := &Pyramid{
		conf:     conf,
		octaves:  make([]Octave, conf.Octaves),
		registry: gauss.Default,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.pool == nil {
		p.pool = parallel.New(conf.Workers)
		p.ownPool = true
	}
	if p.rec == nil {
		p.rec = timing.NewRecorder(nil)
	}

	for o := range p.octaves {
		w, h := width>>o, height>>o
		if err := p.octaves[o].Alloc(w, h, conf.Levels, o, conf.MaxExtrema); err != nil {
			p.Free()
			return nil, err
		}
	}
	p.logger.Debug("pyramid allocated",
		"width", width, "height", height,
		"octaves", conf.Octaves, "levels", conf.Levels, "max_extrema", conf.MaxExtrema)
	return p, nil
}

// Config returns the configuration the pyramid was created with.
func (p *Pyramid) Config() config.Config { return p.conf }

// State returns the current pipeline state.
func (p *Pyramid) State() State { return p.state }

// NumOctaves returns the number of octaves.
func (p *Pyramid) NumOctaves() int { return len(p.octaves) }

// NumLevels returns the number of Gaussian levels per octave.
func (p *Pyramid) NumLevels() int { return p.conf.Levels }

// Octave returns octave o.
func (p *Pyramid) Octave(o int) *Octave { return &p.octaves[o] }

// Recorder returns the timing recorder.
func (p *Pyramid) Recorder() *timing.Recorder { return p.rec }

// Width and Height return the size of octave 0.
func (p *Pyramid) Width() int  { return p.octaves[0].width }
func (p *Pyramid) Height() int { return p.octaves[0].height }

// ExtremaCount returns the number of candidates in every octave.
func (p *Pyramid) ExtremaCount() int {
	n := 0
	for o := range p.octaves {
		n += p.octaves[o].TotalExtremaCount()
	}
	return n
}

// Dropped returns the number of candidates dropped on full buffers in the
// last stage that ran.
func (p *Pyramid) Dropped() int {
	n := 0
	for o := range p.octaves {
		n += p.octaves[o].Dropped()
	}
	return n
}

func (p *Pyramid) require(op string, states ...State) error {
	for _, s := range states {
		if p.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in state %s", ErrInvalidState, op, p.state)
}

// ReportTimes writes the accumulated stage timings to w.
func (p *Pyramid) ReportTimes(w io.Writer) {
	p.rec.Report(w)
}

// Free releases every octave and the pyramid's own worker pool. Free is
// idempotent.
func (p *Pyramid) Free() {
	for o := range p.octaves {
		p.octaves[o].Free()
	}
	if p.ownPool && p.pool != nil {
		p.pool.Close()
	}
	p.state = StateFreed
}
