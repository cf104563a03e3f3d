// Package sift drives the pyramid over a stream of 8-bit grayscale frames
// of one size.
package sift

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gosift/internal/config"
	"gosift/internal/gauss"
	siftimage "gosift/internal/image"
	"gosift/internal/parallel"
	"gosift/internal/pyramid"
	"gosift/internal/timing"
)

var tracer = otel.Tracer("gosift.sift")

var (
	ErrNotInitialized = errors.New("sift: pipeline not initialized")
	ErrFrameSize      = errors.New("sift: frame size does not match pipeline")
)

// Result is the output of one frame.
type Result struct {
	Features []pyramid.Feature
	Dropped  int
	Elapsed  time.Duration
}

// Pipeline owns the Gaussian tables, the worker pool and one pyramid.
type Pipeline struct {
	conf     config.Config
	logger   *slog.Logger
	registry *gauss.Registry
	rec      *timing.Recorder

	pool   *parallel.Pool
	pyr    *pyramid.Pyramid
	base   *siftimage.Plane
	width  int
	height int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used by the pipeline and its pyramid.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRecorder collects stage timings into rec.
func WithRecorder(rec *timing.Recorder) Option {
	return func(p *Pipeline) { p.rec = rec }
}

// WithRegistry publishes the Gaussian tables to r instead of gauss.Default.
func WithRegistry(r *gauss.Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

// New validates conf and publishes its Gaussian tables.
func New(conf config.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		conf:     conf,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: gauss.Default,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rec == nil {
		p.rec = timing.NewRecorder(nil)
	}
	if err := p.registry.Init(conf); err != nil {
		return nil, fmt.Errorf("failed to init gauss tables: %w", err)
	}
	return p, nil
}

// Init allocates the pyramid for frames of width x height. Init on an
// initialized pipeline reallocates for the new size.
func (p *Pipeline) Init(width, height int) error {
	p.Uninit()

	pw, ph := width, height
	if p.conf.Upscale > 0 {
		pw, ph = 2*width, 2*height
	}
	pool := parallel.New(p.conf.Workers)
	pyr, err := pyramid.New(pw, ph, p.conf,
		pyramid.WithLogger(p.logger),
		pyramid.WithRegistry(p.registry),
		pyramid.WithPool(pool),
		pyramid.WithRecorder(p.rec),
	)
	if err != nil {
		pool.Close()
		return fmt.Errorf("failed to allocate pyramid: %w", err)
	}

	p.pool = pool
	p.pyr = pyr
	p.base = siftimage.NewPlane(pw, ph)
	p.width, p.height = width, height
	p.logger.Info("pipeline initialized",
		slog.Int("width", width), slog.Int("height", height),
		slog.Int("octaves", p.conf.Octaves), slog.Int("levels", p.conf.Levels),
		slog.Int("workers", pool.NumWorkers()))
	return nil
}

// Execute extracts the features of img, which must have the size given to
// Init.
func (p *Pipeline) Execute(ctx context.Context, img *image.Gray) (*Result, error) {
	if p.pyr == nil {
		return nil, ErrNotInitialized
	}
	b := img.Bounds()
	if b.Dx() != p.width || b.Dy() != p.height {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d",
			ErrFrameSize, b.Dx(), b.Dy(), p.width, p.height)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "sift.Execute",
		trace.WithAttributes(
			attribute.Int("sift.width", p.width),
			attribute.Int("sift.height", p.height),
			attribute.Int("sift.octaves", p.conf.Octaves),
		),
	)
	defer span.End()
	start := time.Now()

	stages := []struct {
		name string
		run  func() error
	}{
		{"sift.Upload", func() error { return p.upload(img) }},
		{"sift.Build", func() error { return p.pyr.Build(p.base) }},
		{"sift.FindExtrema", func() error { return p.pyr.FindExtrema(p.conf.EdgeLimit, p.conf.Threshold) }},
		{"sift.Orientation", p.pyr.Orientation},
		{"sift.Descriptors", p.pyr.Descriptors},
	}
	for _, st := range stages {
		if err := runStage(ctx, st.name, st.run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	features, err := p.pyr.Features()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res := &Result{
		Features: features,
		Dropped:  p.pyr.Dropped(),
		Elapsed:  time.Since(start),
	}
	span.SetAttributes(attribute.Int("sift.features", len(features)))
	span.SetStatus(codes.Ok, "")
	p.logger.Debug("frame extracted",
		slog.Int("features", len(features)),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}

func runStage(ctx context.Context, name string, run func() error) error {
	_, span := tracer.Start(ctx, name)
	defer span.End()
	if err := run(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (p *Pipeline) upload(img *image.Gray) error {
	src := siftimage.ToGray(img)
	if p.conf.Upscale > 0 {
		src = siftimage.Upscale(src)
	}
	return siftimage.Upload(p.base, src)
}

// Pyramid returns the pyramid of the initialized pipeline.
func (p *Pipeline) Pyramid() *pyramid.Pyramid { return p.pyr }

// Recorder returns the timing recorder.
func (p *Pipeline) Recorder() *timing.Recorder { return p.rec }

// DumpDescriptors writes the descriptor set of every octave of the last
// frame into dir, one file per octave.
func (p *Pipeline) DumpDescriptors(dir string) error {
	if p.pyr == nil {
		return ErrNotInitialized
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for o := 0; o < p.pyr.NumOctaves(); o++ {
		if err := p.dumpOctave(filepath.Join(dir, fmt.Sprintf("desc-o%d.txt", o)), o); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) dumpOctave(path string, o int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	return p.pyr.SaveDescriptors(f, o)
}

// Uninit releases the pyramid and the worker pool. Uninit is idempotent.
func (p *Pipeline) Uninit() {
	if p.pyr != nil {
		p.pyr.Free()
		p.pyr = nil
	}
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	p.base = nil
}
