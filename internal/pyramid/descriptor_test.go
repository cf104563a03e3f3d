package pyramid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"gosift/internal/config"
	"gosift/internal/image"
)

// maxAbsDiff compares a and b at least margin pixels away from the border,
// where border replication makes chained and single blurs differ.
func maxAbsDiff(a, b *image.Plane, margin int) float64 {
	var d float64
	for y := margin; y < a.Height-margin; y++ {
		ra, rb := a.Row(y), b.Row(y)
		for x := margin; x < a.Width-margin; x++ {
			d = math.Max(d, math.Abs(float64(ra[x]-rb[x])))
		}
	}
	return d
}

func TestBlurModesAgree(t *testing.T) {
	base := patternPlane(96, 96)
	ref := newTestPyramid(t, 96, 96, testConfig())
	require.NoError(t, ref.Build(base))

	conf := testConfig()
	conf.Blur = config.BlurInterpolated
	p := newTestPyramid(t, 96, 96, conf)
	require.NoError(t, p.Build(base))
	for o := 0; o < p.NumOctaves(); o++ {
		for l := 0; l < conf.Levels; l++ {
			d := maxAbsDiff(ref.Octave(o).Data(l), p.Octave(o).Data(l), 0)
			assert.Less(t, d, 5e-4, "octave %d level %d", o, l)
		}
	}
}

func TestAbsoluteBuildAgrees(t *testing.T) {
	base := patternPlane(96, 96)
	ref := newTestPyramid(t, 96, 96, testConfig())
	require.NoError(t, ref.Build(base))

	conf := testConfig()
	conf.Build = config.BuildAbsolute
	p := newTestPyramid(t, 96, 96, conf)
	require.NoError(t, p.Build(base))
	for l := 0; l < conf.Levels; l++ {
		d := maxAbsDiff(ref.Octave(0).Data(l), p.Octave(0).Data(l), 24)
		assert.Less(t, d, 1e-3, "level %d", l)
	}
}

func TestRecomputeScalingAgrees(t *testing.T) {
	base := patternPlane(96, 96)
	ref := newTestPyramid(t, 96, 96, testConfig())
	require.NoError(t, ref.Build(base))

	conf := testConfig()
	conf.Scaling = config.ScaleRecompute
	p := newTestPyramid(t, 96, 96, conf)
	require.NoError(t, p.Build(base))

	d := maxAbsDiff(ref.Octave(1).Data(0), p.Octave(1).Data(0), 12)
	assert.Less(t, d, 2e-3)
	for l := 0; l < conf.Levels; l++ {
		d := maxAbsDiff(ref.Octave(0).Data(l), p.Octave(0).Data(l), 0)
		assert.Zero(t, d, "octave 0 level %d", l)
	}
}

func TestBlurPreservesMean(t *testing.T) {
	conf := testConfig()
	p := newTestPyramid(t, 64, 64, conf)
	src := image.NewPlane(64, 64)
	src.Fill(0.25)
	dst := image.NewPlane(64, 64)
	tmp := image.NewPlane(64, 64)

	for _, mode := range []config.BlurMode{config.BlurDirect, config.BlurInterpolated} {
		info, err := p.registry.Acquire()
		require.NoError(t, err)
		k := kernelFor(info.IncRelative, 2, mode)
		p.registry.Release()

		p.blur(dst, src, tmp, k)
		for y := 0; y < dst.Height; y++ {
			for _, v := range dst.Row(y) {
				assert.InDelta(t, 0.25, v, 1e-5)
			}
		}
	}
}

func TestOrientationStrategiesAgree(t *testing.T) {
	base := patternPlane(96, 96)
	run := func(mode config.OrientationMode) []located {
		conf := testConfig()
		conf.Orientation = mode
		p := newTestPyramid(t, 96, 96, conf)
		require.NoError(t, p.Build(base))
		require.NoError(t, p.FindExtrema(conf.EdgeLimit, conf.Threshold))
		require.NoError(t, p.Orientation())
		return allCandidates(p)
	}

	combined := run(config.OrientCombined)
	require.NotEmpty(t, combined)
	assert.Equal(t, combined, run(config.OrientSplit))
	for _, c := range combined {
		assert.GreaterOrEqual(t, c.Cand.Angle, float32(0))
		assert.Less(t, c.Cand.Angle, float32(2*math.Pi))
	}
}

func TestDominantAngles(t *testing.T) {
	var h [oriBins]float32
	assert.Empty(t, dominantAngles(&h, nil))

	h[9] = 1
	h[8], h[10] = 0.5, 0.5
	angles := dominantAngles(&h, nil)
	require.Len(t, angles, 1)
	assert.InDelta(t, 2*math.Pi*9.5/oriBins, angles[0], 1e-5)

	// A second peak at 90% of the maximum yields a second orientation.
	h[27] = 0.9
	angles = dominantAngles(&h, nil)
	assert.Len(t, angles, 2)

	// Peaks below 80% are ignored.
	h[27] = 0.7
	assert.Len(t, dominantAngles(&h, nil), 1)
}

func TestOrientationHistogramZeroGradient(t *testing.T) {
	plane := image.NewPlane(32, 32)
	plane.Fill(0.3)
	var h [oriBins]float32
	orientationHistogram(plane, Candidate{X: 16, Y: 16, Sigma: 2}, &h)
	assert.Empty(t, dominantAngles(&h, nil))
}

func TestDescriptorsAreNormalized(t *testing.T) {
	conf := testConfig()
	p := newTestPyramid(t, 128, 128, conf)
	features, err := p.Extract(patternPlane(128, 128))
	require.NoError(t, err)
	require.NotEmpty(t, features)

	v := make([]float64, DescriptorSize)
	for _, f := range features {
		for i, x := range f.Descriptor.Features {
			v[i] = float64(x)
			assert.GreaterOrEqual(t, x, float32(0))
		}
		assert.InDelta(t, 1, floats.Norm(v, 2), 1e-4)
	}
}

func TestDescriptorDependsOnAngle(t *testing.T) {
	plane := image.NewPlane(64, 64)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			dx, dy := float64(x)-32, float64(y)-32
			plane.Set(x, y, float32(0.5+0.3*math.Exp(-(dx*dx+dy*dy)/50)*math.Cos(dx/3)))
		}
	}

	var a, b Descriptor
	describe(plane, Candidate{X: 32, Y: 32, Sigma: 2, Angle: 0}, &a)
	describe(plane, Candidate{X: 32, Y: 32, Sigma: 2, Angle: 0}, &b)
	assert.Equal(t, a, b)

	var c Descriptor
	describe(plane, Candidate{X: 32, Y: 32, Sigma: 2, Angle: math.Pi / 2}, &c)
	assert.NotEqual(t, a, c)
}

func TestDescriptorDownloadRoundTrip(t *testing.T) {
	conf := testConfig()
	p := newTestPyramid(t, 96, 96, conf)
	_, err := p.Extract(patternPlane(96, 96))
	require.NoError(t, err)

	oct := p.Octave(0)
	require.NoError(t, oct.DownloadDescriptors())
	first := make([][]Descriptor, conf.Levels)
	for l := 1; l <= conf.Levels-3; l++ {
		first[l] = append([]Descriptor(nil), oct.HostDescriptors(l)...)
		assert.Len(t, first[l], oct.ExtremaCount(l))
	}
	require.NoError(t, oct.DownloadDescriptors())
	for l := 1; l <= conf.Levels-3; l++ {
		assert.Equal(t, first[l], oct.HostDescriptors(l))
		dev, err := oct.Descriptors(l)
		require.NoError(t, err)
		assert.Equal(t, first[l], dev)
	}

	var cands []Candidate
	var descs []Descriptor
	for l := 1; l <= conf.Levels-3; l++ {
		cands, descs = oct.DownloadToVector(l, cands, descs)
	}
	assert.Equal(t, oct.TotalExtremaCount(), len(cands))
	assert.Len(t, descs, len(cands))
}

func TestDescriptorsRequireFinalCounts(t *testing.T) {
	var o Octave
	_, err := o.Descriptors(1)
	assert.ErrorIs(t, err, ErrNotAllocated)

	require.NoError(t, o.Alloc(64, 64, 6, 0, 10))
	defer o.Free()
	_, err = o.Descriptors(1)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, o.DownloadDescriptors(), ErrInvalidState)

	o.ReadExtremaCount()
	_, err = o.Descriptors(1)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, o.AllocDescriptors())
	_, err = o.Descriptors(1)
	assert.ErrorIs(t, err, ErrInvalidState)

	o.MarkDescribed()
	d, err := o.Descriptors(1)
	require.NoError(t, err)
	assert.Empty(t, d)

	o.ResetExtremaCount()
	_, err = o.Descriptors(1)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStaleDescriptorsAreNotReturned(t *testing.T) {
	conf := testConfig()
	p := newTestPyramid(t, 96, 96, conf)

	_, err := p.Extract(patternPlane(96, 96))
	require.NoError(t, err)

	require.NoError(t, p.Build(noisePlane(96, 96, 3)))
	require.NoError(t, p.FindExtrema(conf.EdgeLimit, conf.Threshold))

	for o := 0; o < p.NumOctaves(); o++ {
		oct := p.Octave(o)
		_, err := oct.Descriptors(1)
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.ErrorIs(t, oct.DownloadDescriptors(), ErrInvalidState)
		for l := 1; l <= conf.Levels-3; l++ {
			cands, descs := oct.DownloadToVector(l, nil, nil)
			assert.Len(t, cands, oct.ExtremaCount(l))
			assert.Empty(t, descs)
		}
	}

	require.NoError(t, p.Orientation())
	require.NoError(t, p.Descriptors())
	for o := 0; o < p.NumOctaves(); o++ {
		oct := p.Octave(o)
		for l := 1; l <= conf.Levels-3; l++ {
			cands, descs := oct.DownloadToVector(l, nil, nil)
			assert.Len(t, descs, len(cands))
		}
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	conf := testConfig()
	p := newTestPyramid(t, 96, 96, conf)
	base := patternPlane(96, 96)

	first, err := p.Extract(base)
	require.NoError(t, err)
	second, err := p.Extract(base)
	require.NoError(t, err)

	sortFeatures(first)
	sortFeatures(second)
	assert.Equal(t, first, second)
}
