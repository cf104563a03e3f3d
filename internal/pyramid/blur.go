package pyramid

import (
	"math"

	"gosift/internal/config"
	"gosift/internal/gauss"
	"gosift/internal/image"
)

// kernel is one row of a gauss table in the form the blur strategy reads.
type kernel struct {
	taps    []float32 // one-sided taps, direct blur
	weights []float32 // centre weight followed by pair weights, interpolated blur
	offsets []float32
}

func kernelFor(t *gauss.Table, row int, mode config.BlurMode) kernel {
	if mode == config.BlurInterpolated {
		w, off := t.RelativeKernel(row)
		return kernel{weights: w, offsets: off}
	}
	return kernel{taps: t.Kernel(row)}
}

func (k kernel) identity() bool {
	if k.taps != nil {
		return len(k.taps) == 1
	}
	return len(k.weights) == 1
}

// blur runs the separable Gaussian k over src into dst, using tmp for the
// horizontal pass. dst may alias src. Borders replicate the edge pixels.
func (p *Pyramid) blur(dst, src, tmp *image.Plane, k kernel) {
	if k.identity() {
		if dst != src {
			dst.CopyFrom(src)
		}
		return
	}
	p.horizontal(tmp, src, k)
	p.vertical(dst, tmp, k, 1)
}

// blurDecimate blurs src with k and writes every second pixel of the result
// into dst, which has half the size of src.
func (p *Pyramid) blurDecimate(dst, src, tmp *image.Plane, k kernel) {
	p.horizontal(tmp, src, k)
	p.vertical(dst, tmp, k, 2)
}

func (p *Pyramid) horizontal(tmp, src *image.Plane, k kernel) {
	p.pool.ParallelFor(src.Height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			if k.taps != nil {
				blurRowDirect(tmp.Row(y), src.Row(y), k.taps)
			} else {
				blurRowInterp(tmp.Row(y), src.Row(y), k.weights, k.offsets)
			}
		}
	})
}

// vertical blurs the columns of tmp into dst. Row y and column x of dst read
// row y*step and column x*step of tmp.
func (p *Pyramid) vertical(dst, tmp *image.Plane, k kernel, step int) {
	p.pool.ParallelFor(dst.Height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			out := dst.Row(y)
			if k.taps != nil {
				blurColsDirect(out, tmp, y*step, step, k.taps)
			} else {
				blurColsInterp(out, tmp, y*step, step, k.weights, k.offsets)
			}
		}
	})
}

func blurColsDirect(out []float32, tmp *image.Plane, y, step int, taps []float32) {
	h := tmp.Height
	centre := tmp.Row(y)
	for x := range out {
		out[x] = taps[0] * centre[x*step]
	}
	for i := 1; i < len(taps); i++ {
		above := tmp.Row(clampIndex(y-i, h))
		below := tmp.Row(clampIndex(y+i, h))
		w := taps[i]
		for x := range out {
			sx := x * step
			out[x] += w * (above[sx] + below[sx])
		}
	}
}

func blurColsInterp(out []float32, tmp *image.Plane, y, step int, weights, offsets []float32) {
	centre := tmp.Row(y)
	for x := range out {
		out[x] = weights[0] * centre[x*step]
	}
	fy := float32(y)
	for j := 1; j < len(weights); j++ {
		addLerpRow(out, tmp, fy+offsets[j], step, weights[j])
		addLerpRow(out, tmp, fy-offsets[j], step, weights[j])
	}
}

// addLerpRow adds w times the row of tmp at fractional position pos.
func addLerpRow(out []float32, tmp *image.Plane, pos float32, step int, w float32) {
	i0 := int(math.Floor(float64(pos)))
	t := pos - float32(i0)
	a := tmp.Row(clampIndex(i0, tmp.Height))
	b := tmp.Row(clampIndex(i0+1, tmp.Height))
	for x := range out {
		sx := x * step
		out[x] += w * (a[sx] + t*(b[sx]-a[sx]))
	}
}

// decimate copies every second pixel of src into dst.
func (p *Pyramid) decimate(dst, src *image.Plane) {
	p.pool.ParallelFor(dst.Height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			in := src.Row(2 * y)
			out := dst.Row(y)
			for x := range out {
				out[x] = in[2*x]
			}
		}
	})
}

func blurRowDirect(out, in []float32, taps []float32) {
	span := len(taps) - 1
	n := len(in)
	for x := range out {
		if x >= span && x < n-span {
			v := taps[0] * in[x]
			for i := 1; i <= span; i++ {
				v += taps[i] * (in[x-i] + in[x+i])
			}
			out[x] = v
			continue
		}
		out[x] = sampleDirect(in, x, taps)
	}
}

func blurRowInterp(out, in []float32, weights, offsets []float32) {
	for x := range out {
		out[x] = sampleInterp(in, x, weights, offsets)
	}
}

func sampleDirect(line []float32, x int, taps []float32) float32 {
	n := len(line)
	v := taps[0] * line[x]
	for i := 1; i < len(taps); i++ {
		v += taps[i] * (line[clampIndex(x-i, n)] + line[clampIndex(x+i, n)])
	}
	return v
}

func sampleInterp(line []float32, x int, weights, offsets []float32) float32 {
	v := weights[0] * line[x]
	for j := 1; j < len(weights); j++ {
		fx := float32(x)
		v += weights[j] * (lerpAt(line, fx+offsets[j]) + lerpAt(line, fx-offsets[j]))
	}
	return v
}

// lerpAt samples line at a fractional position with clamped borders.
func lerpAt(line []float32, pos float32) float32 {
	i0 := int(math.Floor(float64(pos)))
	t := pos - float32(i0)
	n := len(line)
	a := line[clampIndex(i0, n)]
	if t == 0 {
		return a
	}
	b := line[clampIndex(i0+1, n)]
	return a + t*(b-a)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
