package config

import "fmt"

// GaussMode selects how the span (half-width) of a Gaussian kernel is derived
// from its sigma.
type GaussMode int

const (
	GaussVLFeat         GaussMode = iota // max(1, ceil(4σ))
	GaussVLFeatRelative                  // ceil(4σ) rounded up to an even tap count
	GaussOpenCV                          // OpenCV's ksize rule for float images
)

func (m GaussMode) String() string {
	switch m {
	case GaussVLFeat:
		return "vlfeat"
	case GaussVLFeatRelative:
		return "vlfeat-relative"
	case GaussOpenCV:
		return "opencv"
	default:
		return "unknown"
	}
}

// UnmarshalText parses a mode name as used in config files and flags.
func (m *GaussMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "vlfeat":
		*m = GaussVLFeat
	case "vlfeat-relative":
		*m = GaussVLFeatRelative
	case "opencv":
		*m = GaussOpenCV
	default:
		return fmt.Errorf("unknown gauss mode %q", text)
	}
	return nil
}

// MarshalText returns the mode name.
func (m GaussMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ScalingMode selects how level 0 of octaves above 0 is produced.
type ScalingMode int

const (
	// ScaleDownsample decimates the 2·sigma0 level of the previous octave.
	ScaleDownsample ScalingMode = iota
	// ScaleRecompute re-blurs level 0 of the previous octave to 2·sigma0
	// and decimates the result.
	ScaleRecompute
)

func (m ScalingMode) String() string {
	switch m {
	case ScaleDownsample:
		return "downsample"
	case ScaleRecompute:
		return "recompute"
	default:
		return "unknown"
	}
}

func (m *ScalingMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "downsample":
		*m = ScaleDownsample
	case "recompute":
		*m = ScaleRecompute
	default:
		return fmt.Errorf("unknown scaling mode %q", text)
	}
	return nil
}

func (m ScalingMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// BuildMode selects which Gaussian tables produce the levels of an octave.
type BuildMode int

const (
	// BuildIncremental blurs every level from the level below it.
	BuildIncremental BuildMode = iota
	// BuildAbsolute blurs every level directly from the octave's base.
	BuildAbsolute
)

func (m BuildMode) String() string {
	switch m {
	case BuildIncremental:
		return "incremental"
	case BuildAbsolute:
		return "absolute"
	default:
		return "unknown"
	}
}

func (m *BuildMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "incremental":
		*m = BuildIncremental
	case "absolute":
		*m = BuildAbsolute
	default:
		return fmt.Errorf("unknown build mode %q", text)
	}
	return nil
}

func (m BuildMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// BlurMode selects the convolution kernel used by the blur stage.
type BlurMode int

const (
	// BlurDirect applies the one-sided taps of the table.
	BlurDirect BlurMode = iota
	// BlurInterpolated applies paired taps through linear interpolation,
	// halving the number of samples per output pixel.
	BlurInterpolated
)

func (m BlurMode) String() string {
	switch m {
	case BlurDirect:
		return "direct"
	case BlurInterpolated:
		return "interpolated"
	default:
		return "unknown"
	}
}

func (m *BlurMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "direct":
		*m = BlurDirect
	case "interpolated":
		*m = BlurInterpolated
	default:
		return fmt.Errorf("unknown blur mode %q", text)
	}
	return nil
}

func (m BlurMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ExtremaMode selects the extrema scan strategy. All strategies accept the
// same candidate set.
type ExtremaMode int

const (
	// ExtremaDirect compares all 26 neighbours of every pixel.
	ExtremaDirect ExtremaMode = iota
	// ExtremaPrefilter rejects on the same-level 3x3 neighbourhood before
	// touching the adjacent DoG levels.
	ExtremaPrefilter
)

func (m ExtremaMode) String() string {
	switch m {
	case ExtremaDirect:
		return "direct"
	case ExtremaPrefilter:
		return "prefilter"
	default:
		return "unknown"
	}
}

func (m *ExtremaMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "direct":
		*m = ExtremaDirect
	case "prefilter":
		*m = ExtremaPrefilter
	default:
		return fmt.Errorf("unknown extrema mode %q", text)
	}
	return nil
}

func (m ExtremaMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// OrientationMode selects the orientation strategy.
type OrientationMode int

const (
	// OrientCombined builds the histogram and emits angles in one pass.
	OrientCombined OrientationMode = iota
	// OrientSplit builds all histograms first, then emits angles.
	OrientSplit
)

func (m OrientationMode) String() string {
	switch m {
	case OrientCombined:
		return "combined"
	case OrientSplit:
		return "split"
	default:
		return "unknown"
	}
}

func (m *OrientationMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "combined":
		*m = OrientCombined
	case "split":
		*m = OrientSplit
	default:
		return fmt.Errorf("unknown orientation mode %q", text)
	}
	return nil
}

func (m OrientationMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
