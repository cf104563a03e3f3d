package gauss

import (
	"fmt"
	"math"

	"gosift/internal/config"
)

// Info aggregates the kernel tables of every blur strategy.
//
// Row 0 of Inc is special: it holds the blur that takes the input image
// (carrying InitialBlur) to sigma0. Row 0 of AbsON and DD is unused, since
// level 0 of higher octaves and octave 0 itself are produced by other means.
type Info struct {
	Conf config.Config

	Sigma0      float32
	SigmaK      float32
	InitialBlur float32
	Levels      int
	Octaves     int

	// Inc blurs level L-1 into level L.
	Inc *Table
	// IncRelative holds the Inc sigmas with even spans for the
	// interpolating blur.
	IncRelative *Table
	// AbsO0 blurs the input image directly into level L of octave 0.
	AbsO0 *Table
	// AbsON blurs level 0 of an octave above 0 into level L.
	AbsON *Table
	// DD blurs level 0 of octave o-1 to twice sigma0 before decimation
	// into level 0 of octave o.
	DD *Table
	// User is the optional pre-blur of the input; nil when disabled.
	User *Table

	spanFn SpanFunc
}

// Compute derives all tables for conf and checks that every table the
// configured build uses fits into GaussAlign.
func Compute(conf config.Config) (*Info, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	levels := conf.Levels
	info := &Info{
		Conf:        conf,
		Sigma0:      conf.Sigma,
		SigmaK:      float32(math.Pow(2, 1/float64(conf.Scales()))),
		InitialBlur: conf.InitialBlur,
		Levels:      levels,
		Octaves:     conf.Octaves,
		Inc:         newTable(levels),
		IncRelative: newTable(levels),
		AbsO0:       newTable(levels),
		AbsON:       newTable(levels),
		DD:          newTable(conf.Octaves),
		spanFn:      SpanFor(conf.GaussMode),
	}
	if conf.Upscale > 0 {
		info.InitialBlur *= 2
	}

	info.computeSigmas()
	if conf.UserSigma > 0 {
		info.User = newTable(1)
		info.User.Sigma[0] = conf.UserSigma
	}

	info.fill(info.Inc, info.spanFn)
	info.fill(info.IncRelative, vlFeatRelativeSpan)
	info.fill(info.AbsO0, info.spanFn)
	info.fill(info.AbsON, info.spanFn)
	info.fill(info.DD, info.spanFn)
	if info.User != nil {
		info.fill(info.User, vlFeatRelativeSpan)
	}

	if err := info.checkSpans(); err != nil {
		return nil, err
	}
	return info, nil
}

// LevelSigma returns the absolute blur of level (fractional levels allowed)
// in the pixel units of its own octave.
func (info *Info) LevelSigma(level float32) float32 {
	return info.Sigma0 * float32(math.Pow(float64(info.SigmaK), float64(level)))
}

func (info *Info) computeSigmas() {
	s0 := float64(info.Sigma0)
	b := float64(info.InitialBlur)
	abs := func(level int) float64 {
		return s0 * math.Pow(float64(info.SigmaK), float64(level))
	}
	diff := func(hi, lo float64) float32 {
		if hi <= lo {
			return 0
		}
		return float32(math.Sqrt(hi*hi - lo*lo))
	}

	info.Inc.Sigma[0] = diff(s0, b)
	info.AbsO0.Sigma[0] = diff(s0, b)
	for l := 1; l < info.Levels; l++ {
		info.Inc.Sigma[l] = diff(abs(l), abs(l-1))
		info.AbsO0.Sigma[l] = diff(abs(l), b)
		info.AbsON.Sigma[l] = diff(abs(l), s0)
	}
	copy(info.IncRelative.Sigma, info.Inc.Sigma)

	for o := 1; o < info.Octaves; o++ {
		info.DD.Sigma[o] = diff(2*s0, s0)
	}
}

func (info *Info) fill(t *Table, spanFn SpanFunc) {
	for row, sigma := range t.Sigma {
		t.Span[row] = spanFn(sigma)
	}
	for row := range t.Span {
		// Rows that overflow are reported by checkSpans; keep the table
		// itself addressable.
		t.Span[row] = min(t.Span[row], MaxSpan)
	}
	t.computeBlurTable()
	t.transformBlurTable()
}

// checkSpans recomputes the unclamped span of every row the configured
// build reads and fails if any exceeds MaxSpan.
func (info *Info) checkSpans() error {
	conf := info.Conf
	type use struct {
		name   string
		table  *Table
		spanFn SpanFunc
	}
	var uses []use

	switch conf.Build {
	case config.BuildAbsolute:
		uses = append(uses, use{"abs_o0", info.AbsO0, info.spanFn}, use{"abs_oN", info.AbsON, info.spanFn})
	default:
		if conf.Blur == config.BlurInterpolated {
			uses = append(uses, use{"inc_relative", info.IncRelative, vlFeatRelativeSpan})
		} else {
			uses = append(uses, use{"inc", info.Inc, info.spanFn})
		}
	}
	if conf.Scaling == config.ScaleRecompute {
		uses = append(uses, use{"dd", info.DD, info.spanFn})
	}
	if info.User != nil {
		uses = append(uses, use{"user", info.User, vlFeatRelativeSpan})
	}

	for _, u := range uses {
		for row, sigma := range u.table.Sigma {
			if span := u.spanFn(sigma); span > MaxSpan {
				return fmt.Errorf("%w: table %s row %d sigma %.3f needs span %d (max %d)",
					ErrSpanTooLarge, u.name, row, sigma, span, MaxSpan)
			}
		}
	}
	return nil
}
