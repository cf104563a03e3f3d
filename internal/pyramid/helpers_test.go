package pyramid

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"gosift/internal/config"
	"gosift/internal/gauss"
	"gosift/internal/image"
	"gosift/internal/parallel"
)

// testConfig is the default configuration without upscaling.
func testConfig() config.Config {
	conf := config.Default()
	conf.Upscale = 0
	conf.Octaves = 3
	conf.MaxExtrema = 500
	conf.Workers = 4
	return conf
}

func newTestPyramid(t *testing.T, width, height int, conf config.Config) *Pyramid {
	t.Helper()
	reg := &gauss.Registry{}
	require.NoError(t, reg.Init(conf))
	pool := parallel.New(conf.Workers)
	t.Cleanup(pool.Close)

	p, err := New(width, height, conf, WithRegistry(reg), WithPool(pool))
	require.NoError(t, err)
	t.Cleanup(p.Free)
	return p
}

// blobPlane draws a bright Gaussian blob of radius s centred at (cx, cy)
// on a uniform background.
func blobPlane(width, height int, cx, cy, s float64) *image.Plane {
	p := image.NewPlane(width, height)
	addBlob(p, cx, cy, s, 0.6)
	for y := 0; y < height; y++ {
		row := p.Row(y)
		for x := range row {
			row[x] += 0.2
		}
	}
	return p
}

func addBlob(p *image.Plane, cx, cy, s, amp float64) {
	for y := 0; y < p.Height; y++ {
		row := p.Row(y)
		for x := range row {
			dx, dy := float64(x)-cx, float64(y)-cy
			row[x] += float32(amp * math.Exp(-(dx*dx+dy*dy)/(2*s*s)))
		}
	}
}

// patternPlane holds several blobs of different sizes and a bright square.
func patternPlane(width, height int) *image.Plane {
	p := image.NewPlane(width, height)
	p.Fill(0.1)
	addBlob(p, 0.25*float64(width), 0.3*float64(height), 3, 0.5)
	addBlob(p, 0.7*float64(width)+0.4, 0.25*float64(height), 5, 0.4)
	addBlob(p, 0.3*float64(width), 0.75*float64(height)-0.3, 2.5, -0.08)
	addBlob(p, 0.55*float64(width), 0.6*float64(height), 4, 0.3)
	for y := height * 6 / 10; y < height*8/10; y++ {
		for x := width * 7 / 10; x < width*9/10; x++ {
			p.Set(x, y, p.At(x, y)+0.35)
		}
	}
	return p
}

func noisePlane(width, height int, seed int64) *image.Plane {
	rng := rand.New(rand.NewSource(seed))
	p := image.NewPlane(width, height)
	for y := 0; y < height; y++ {
		row := p.Row(y)
		for x := range row {
			row[x] = rng.Float32()
		}
	}
	return p
}

type located struct {
	Octave int
	Cand   Candidate
}

// allCandidates returns every candidate of p in a deterministic order.
func allCandidates(p *Pyramid) []located {
	var out []located
	for o := 0; o < p.NumOctaves(); o++ {
		oct := p.Octave(o)
		for l := 1; l <= p.NumLevels()-3; l++ {
			for _, c := range oct.Extrema(l) {
				out = append(out, located{Octave: o, Cand: c})
			}
		}
	}
	sortLocated(out)
	return out
}

func sortLocated(s []located) {
	sort.Slice(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Octave != b.Octave {
			return a.Octave < b.Octave
		}
		if a.Cand.Level != b.Cand.Level {
			return a.Cand.Level < b.Cand.Level
		}
		if a.Cand.Y != b.Cand.Y {
			return a.Cand.Y < b.Cand.Y
		}
		if a.Cand.X != b.Cand.X {
			return a.Cand.X < b.Cand.X
		}
		return a.Cand.Angle < b.Cand.Angle
	})
}

func sortFeatures(fs []Feature) {
	sort.Slice(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Octave != b.Octave {
			return a.Octave < b.Octave
		}
		if a.Position.Y != b.Position.Y {
			return a.Position.Y < b.Position.Y
		}
		if a.Position.X != b.Position.X {
			return a.Position.X < b.Position.X
		}
		return a.Angle < b.Angle
	})
}
