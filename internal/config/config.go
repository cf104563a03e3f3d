// Package config holds the tunable parameters of the SIFT pyramid engine.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Limits imposed by the Gaussian tables and the pyramid layout.
const (
	MaxOctaves = 20 // rows in the cross-octave table
	MaxLevels  = 12 // rows in the per-level tables
	MinLevels  = 4  // at least one interior DoG level
)

// ErrInvalid is returned for configurations rejected by Validate.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the full set of recognized pyramid options.
type Config struct {
	Octaves   int     `yaml:"octaves" validate:"min=1,max=20"`
	Levels    int     `yaml:"levels" validate:"min=4,max=12"`
	Sigma     float32 `yaml:"sigma" validate:"gt=0"`
	Threshold float32 `yaml:"threshold" validate:"gte=0"`
	EdgeLimit float32 `yaml:"edge_limit" validate:"gt=0"`
	Upscale   int     `yaml:"upscale" validate:"oneof=0 1"`

	// InitialBlur is the blur already present in the input image.
	// It is doubled when the input is upscaled.
	InitialBlur float32 `yaml:"initial_blur" validate:"gte=0"`

	// UserSigma enables an extra pre-blur of the input when > 0.
	UserSigma float32 `yaml:"user_sigma" validate:"gte=0,lt=2"`

	// MaxExtrema is the per-level capacity before orientation splitting.
	MaxExtrema int `yaml:"max_extrema" validate:"min=1"`

	GaussMode   GaussMode       `yaml:"gauss_mode" validate:"min=0,max=2"`
	Scaling     ScalingMode     `yaml:"scaling" validate:"min=0,max=1"`
	Build       BuildMode       `yaml:"build" validate:"min=0,max=1"`
	Blur        BlurMode        `yaml:"blur" validate:"min=0,max=1"`
	Extrema     ExtremaMode     `yaml:"extrema" validate:"min=0,max=1"`
	Orientation OrientationMode `yaml:"orientation" validate:"min=0,max=1"`

	// Workers bounds the worker pool; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers" validate:"gte=0"`
}

// Default returns the parameters commonly used for SIFT on natural images
// with intensities normalized to [0, 1].
func Default() Config {
	return Config{
		Octaves:     4,
		Levels:      6, // 3 scales per octave plus 3 guard levels
		Sigma:       1.6,
		Threshold:   0.04 / 3,
		EdgeLimit:   10,
		Upscale:     1,
		InitialBlur: 0.5,
		MaxExtrema:  2000,
		GaussMode:   GaussVLFeat,
		Scaling:     ScaleDownsample,
		Build:       BuildIncremental,
		Blur:        BlurDirect,
		Extrema:     ExtremaDirect,
		Orientation: OrientCombined,
	}
}

var validate = validator.New()

// Validate checks every field against its limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Scales returns the number of scales per octave that yield extrema.
func (c Config) Scales() int {
	return c.Levels - 3
}

// WithOctaves returns a copy of c with the octave and level counts replaced.
func (c Config) WithOctaves(octaves, levels int) Config {
	c.Octaves = octaves
	c.Levels = levels
	return c
}

// WithThresholds returns a copy of c with the detection thresholds replaced.
func (c Config) WithThresholds(threshold, edgeLimit float32) Config {
	c.Threshold = threshold
	c.EdgeLimit = edgeLimit
	return c
}

// WithCapacity returns a copy of c with the per-level extrema capacity replaced.
func (c Config) WithCapacity(maxExtrema int) Config {
	c.MaxExtrema = maxExtrema
	return c
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Marshal encodes c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes c as YAML.
func (c Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
