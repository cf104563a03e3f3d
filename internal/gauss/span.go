package gauss

import (
	"math"

	"gosift/internal/config"
)

// SpanFunc maps a sigma to a one-sided kernel half-width.
type SpanFunc func(sigma float32) int

// SpanFor returns the span policy of mode.
func SpanFor(mode config.GaussMode) SpanFunc {
	switch mode {
	case config.GaussVLFeatRelative:
		return vlFeatRelativeSpan
	case config.GaussOpenCV:
		return openCVSpan
	default:
		return vlFeatSpan
	}
}

func vlFeatSpan(sigma float32) int {
	if sigma <= 0 {
		return 0
	}
	return max(1, int(math.Ceil(4*float64(sigma))))
}

// vlFeatRelativeSpan rounds the VLFeat span up to an even count, so a
// relative kernel never ends in a half-empty pair.
func vlFeatRelativeSpan(sigma float32) int {
	if sigma <= 0 {
		return 0
	}
	s := int(math.Ceil(4 * float64(sigma)))
	if s%2 == 1 {
		s++
	}
	return max(2, s)
}

// openCVSpan follows cv::getGaussianKernel's size rule for float images.
func openCVSpan(sigma float32) int {
	if sigma <= 0 {
		return 0
	}
	ksize := int(math.Round(float64(sigma)*8+1)) | 1
	return max(1, ksize>>1)
}
