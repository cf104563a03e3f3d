package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"gosift/internal/config"
	siftimage "gosift/internal/image"
	"gosift/internal/pyramid"
	"gosift/internal/sift"
	"gosift/internal/timing"
)

var (
	extractOutput     string
	extractOutDir     string
	extractDumpDir    string
	extractLevelsDir  string
	extractMetrics    string
	extractRepeat     int
	extractReport     bool
	extractOctaves    int
	extractLevels     int
	extractThreshold  float32
	extractEdgeLimit  float32
	extractUpscale    int
	extractMaxExtrema int
)

var extractCmd = &cobra.Command{
	Use:   "extract IMAGE...",
	Short: "Extract features from one or more images",
	Long: `Extract keypoints and descriptors from each image.

Features are written one per line as "x y sigma angle d0 ... d127", or as an
N x 132 array when the output ends in .npy. Images of the same size reuse
one pyramid.

Examples:
  gosift extract photo.png
  gosift extract photo.png -o photo.npy
  gosift extract a.png b.png --out-dir features --ext .npy
  gosift extract photo.png --levels-dir levels --dump-dir desc`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

var extractExt string

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractOutput, "output", "o", "", "Output file for a single image (default stdout)")
	f.StringVar(&extractOutDir, "out-dir", "", "Write one feature file per image into this directory")
	f.StringVar(&extractExt, "ext", ".txt", "Feature file extension with --out-dir (.txt or .npy)")
	f.StringVar(&extractDumpDir, "dump-dir", "", "Write per-octave descriptor dumps into this directory")
	f.StringVar(&extractLevelsDir, "levels-dir", "", "Write every Gaussian level and DoG layer into this directory")
	f.StringVar(&extractMetrics, "metrics", "", "Write stage metrics in Prometheus text format to this file")
	f.IntVar(&extractRepeat, "repeat", 1, "Run each image this many times")
	f.BoolVar(&extractReport, "report", false, "Print a table of stage timings")
	f.IntVar(&extractOctaves, "octaves", 0, "Number of octaves")
	f.IntVar(&extractLevels, "levels", 0, "Gaussian levels per octave")
	f.Float32Var(&extractThreshold, "threshold", 0, "DoG contrast threshold")
	f.Float32Var(&extractEdgeLimit, "edge-limit", 0, "Edge rejection limit")
	f.IntVar(&extractUpscale, "upscale", 0, "Upscale the input 2x before building (0 or 1)")
	f.IntVar(&extractMaxExtrema, "max-extrema", 0, "Candidate capacity per level")
}

func extractConfig(cmd *cobra.Command) (config.Config, error) {
	conf, err := loadConfig()
	if err != nil {
		return conf, err
	}
	f := cmd.Flags()
	if f.Changed("octaves") {
		conf.Octaves = extractOctaves
	}
	if f.Changed("levels") {
		conf.Levels = extractLevels
	}
	if f.Changed("threshold") {
		conf.Threshold = extractThreshold
	}
	if f.Changed("edge-limit") {
		conf.EdgeLimit = extractEdgeLimit
	}
	if f.Changed("upscale") {
		conf.Upscale = extractUpscale
	}
	if f.Changed("max-extrema") {
		conf.MaxExtrema = extractMaxExtrema
	}
	return conf, conf.Validate()
}

func runExtract(cmd *cobra.Command, args []string) error {
	if extractOutput != "" && len(args) > 1 {
		return fmt.Errorf("--output takes a single image, use --out-dir for %d images", len(args))
	}
	if extractRepeat < 1 {
		return fmt.Errorf("--repeat must be at least 1")
	}
	for _, path := range args {
		if !siftimage.IsSupportedFormat(path) {
			return fmt.Errorf("%w: %s", siftimage.ErrUnsupportedFormat, path)
		}
	}
	conf, err := extractConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger()
	rec := timing.NewRecorder(prometheus.NewRegistry())
	p, err := sift.New(conf, sift.WithLogger(logger), sift.WithRecorder(rec))
	if err != nil {
		return err
	}
	defer p.Uninit()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	width, height := -1, -1
	for _, path := range args {
		img, err := siftimage.Load(path)
		if err != nil {
			return err
		}
		b := img.Bounds()
		if b.Dx() != width || b.Dy() != height {
			if err := p.Init(b.Dx(), b.Dy()); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			width, height = b.Dx(), b.Dy()
		}

		var res *sift.Result
		for i := 0; i < extractRepeat; i++ {
			if res, err = p.Execute(ctx, img); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		logger.Info("extracted",
			slog.String("image", path),
			slog.Int("features", len(res.Features)),
			slog.Int("dropped", res.Dropped),
			slog.Duration("elapsed", res.Elapsed))

		if err := writeOutputs(cmd, p, path, res.Features); err != nil {
			return err
		}
	}

	if extractReport {
		rec.Report(cmd.OutOrStdout())
	}
	if extractMetrics != "" {
		if err := prometheus.WriteToTextfile(extractMetrics, rec.Registry()); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func writeOutputs(cmd *cobra.Command, p *sift.Pipeline, path string, features []pyramid.Feature) error {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch {
	case extractOutDir != "":
		if err := os.MkdirAll(extractOutDir, 0o755); err != nil {
			return err
		}
		if err := pyramid.SaveFeatures(filepath.Join(extractOutDir, stem+extractExt), features); err != nil {
			return err
		}
	case extractOutput != "":
		if err := pyramid.SaveFeatures(extractOutput, features); err != nil {
			return err
		}
	default:
		if err := pyramid.WriteFeatures(cmd.OutOrStdout(), features); err != nil {
			return err
		}
	}

	if extractDumpDir != "" {
		if err := p.DumpDescriptors(filepath.Join(extractDumpDir, stem)); err != nil {
			return err
		}
	}
	if extractLevelsDir != "" {
		if err := p.Pyramid().SaveAllLevels(filepath.Join(extractLevelsDir, stem), ".tiff"); err != nil {
			return err
		}
	}
	return nil
}
