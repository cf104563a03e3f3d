package gauss

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosift/internal/config"
)

func TestIncrementalSigmasRecombine(t *testing.T) {
	tests := []struct {
		name    string
		sigma   float32
		levels  int
		upscale int
		blur    float32
	}{
		{"default", 1.6, 6, 1, 0.5},
		{"no initial blur", 1.6, 6, 0, 0},
		{"five scales", 1.6, 8, 0, 0.5},
		{"small sigma", 1.2, 7, 1, 0.5},
		{"large sigma", 2.0, 5, 0, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := config.Default()
			conf.Sigma = tt.sigma
			conf.Levels = tt.levels
			conf.Upscale = tt.upscale
			conf.InitialBlur = tt.blur

			info, err := Compute(conf)
			require.NoError(t, err)

			sum := 0.0
			for l := 0; l < tt.levels; l++ {
				inc := float64(info.Inc.Sigma[l])
				sum += inc * inc
				assert.InDelta(t, float64(info.AbsO0.Sigma[l]), math.Sqrt(sum), 1e-4, "level %d", l)
			}
		})
	}
}

func TestAbsoluteSigmas(t *testing.T) {
	conf := config.Default()
	conf.InitialBlur = 0
	info, err := Compute(conf)
	require.NoError(t, err)

	assert.InDelta(t, math.Cbrt(2), float64(info.SigmaK), 1e-6)
	for l := 0; l < conf.Levels; l++ {
		assert.InDelta(t, float64(info.LevelSigma(float32(l))), float64(info.AbsO0.Sigma[l]), 1e-4)
	}
	// Level levels-3 sits at twice sigma0: the plane propagated to the
	// next octave.
	assert.InDelta(t, 2*float64(conf.Sigma), float64(info.LevelSigma(float32(conf.Scales()))), 1e-4)

	for o := 1; o < conf.Octaves; o++ {
		assert.InDelta(t, float64(conf.Sigma)*math.Sqrt(3), float64(info.DD.Sigma[o]), 1e-4)
	}
	assert.Zero(t, info.DD.Sigma[0])
	assert.Zero(t, info.AbsON.Sigma[0])
}

func TestKernelsAreNormalized(t *testing.T) {
	info, err := Compute(config.Default())
	require.NoError(t, err)

	for _, table := range []*Table{info.Inc, info.IncRelative, info.AbsO0, info.DD} {
		for row := 0; row < table.Rows(); row++ {
			k := table.Kernel(row)
			sum := float64(k[0])
			for _, v := range k[1:] {
				sum += 2 * float64(v)
			}
			assert.InDelta(t, 1.0, sum, 1e-5)

			w, _ := table.RelativeKernel(row)
			rsum := float64(w[0])
			for _, v := range w[1:] {
				rsum += 2 * float64(v)
			}
			assert.InDelta(t, 1.0, rsum, 1e-5)
		}
	}
}

func TestRelativeOffsetsStayInsidePairs(t *testing.T) {
	info, err := Compute(config.Default())
	require.NoError(t, err)

	for row := 0; row < info.IncRelative.Rows(); row++ {
		_, offsets := info.IncRelative.RelativeKernel(row)
		for j := 1; j < len(offsets); j++ {
			assert.GreaterOrEqual(t, offsets[j], float32(2*j-1))
			assert.LessOrEqual(t, offsets[j], float32(2*j))
		}
	}
}

func TestSpanPolicies(t *testing.T) {
	tests := []struct {
		mode  config.GaussMode
		sigma float32
		want  int
	}{
		{config.GaussVLFeat, 0, 0},
		{config.GaussVLFeat, 0.1, 1},
		{config.GaussVLFeat, 1.6, 7},
		{config.GaussVLFeat, 2.0, 8},
		{config.GaussVLFeatRelative, 1.6, 8},
		{config.GaussVLFeatRelative, 0.1, 2},
		{config.GaussOpenCV, 1.6, 7},
		{config.GaussOpenCV, 1.0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, SpanFor(tt.mode)(tt.sigma), "sigma %.2f", tt.sigma)
		})
	}
}

func TestSpanTooLargeFailsFast(t *testing.T) {
	// One scale per octave doubles sigma per level; the absolute tables
	// then need kernels far wider than a row.
	conf := config.Default()
	conf.Levels = 4
	conf.Build = config.BuildAbsolute

	_, err := Compute(conf)
	require.ErrorIs(t, err, ErrSpanTooLarge)
}

func TestUnusedTablesAreNotChecked(t *testing.T) {
	// Two scales with a wide sigma0: the incremental steps fit, the
	// absolute blurs of the top level do not.
	conf := config.Default()
	conf.Sigma = 2.5
	conf.Levels = 5
	conf.Build = config.BuildIncremental

	info, err := Compute(conf)
	require.NoError(t, err)
	for row := range info.Inc.Span {
		assert.LessOrEqual(t, info.Inc.Span[row], MaxSpan)
	}

	conf.Build = config.BuildAbsolute
	_, err = Compute(conf)
	require.ErrorIs(t, err, ErrSpanTooLarge)
}

func TestUserTable(t *testing.T) {
	conf := config.Default()
	info, err := Compute(conf)
	require.NoError(t, err)
	assert.Nil(t, info.User)

	conf.UserSigma = 1.2
	info, err = Compute(conf)
	require.NoError(t, err)
	require.NotNil(t, info.User)
	assert.Equal(t, float32(1.2), info.User.Sigma[0])
	assert.Equal(t, 6, info.User.Span[0])
}

func TestRegistryNotInitialized(t *testing.T) {
	r := &Registry{}
	_, err := r.Acquire()
	require.ErrorIs(t, err, ErrNotInitialized)
	assert.Nil(t, r.Snapshot())
}

func TestRegistryInitSigma(t *testing.T) {
	r := &Registry{}
	require.NoError(t, r.InitSigma(1.8, 7))

	info := r.Snapshot()
	require.NotNil(t, info)
	assert.Equal(t, float32(1.8), info.Sigma0)
	assert.Equal(t, 7, info.Levels)
	assert.InDelta(t, math.Pow(2, 0.25), float64(info.SigmaK), 1e-6)
}

func TestRegistryPublishWaitsForBuild(t *testing.T) {
	r := &Registry{}
	require.NoError(t, r.Init(config.Default()))

	held, err := r.Acquire()
	require.NoError(t, err)

	var wg sync.WaitGroup
	published := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		conf := config.Default()
		conf.Sigma = 2.0
		_ = r.Init(conf)
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("publish did not wait for the held tables")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, float32(1.6), held.Sigma0)

	r.Release()
	wg.Wait()
	assert.Equal(t, float32(2.0), r.Snapshot().Sigma0)
}
