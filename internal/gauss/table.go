// Package gauss builds the 1-D Gaussian kernel tables used by the pyramid's
// blur stage.
package gauss

import (
	"errors"
	"math"
)

const (
	// GaussAlign is the number of floats reserved per kernel row.
	GaussAlign = 32
	// MaxSpan is the largest one-sided kernel half-width a row can hold.
	MaxSpan = GaussAlign - 1
)

var (
	ErrSpanTooLarge   = errors.New("gauss: kernel span exceeds maximum")
	ErrNotInitialized = errors.New("gauss: tables not initialized")
)

// Table holds one 1-D kernel per row. Filter stores the one-sided taps
// f[0..span] of each row, normalized so that f[0] + 2*sum(f[1..span]) == 1.
//
// Weight and Offset store the same kernel folded into pairs of taps, so the
// blur can fetch two taps with one linear interpolation: Weight[0] is the
// centre tap, and pair j (1-based) samples at distance Offset[j] with weight
// Weight[j] on either side.
type Table struct {
	Filter []float32
	Sigma  []float32
	Span   []int

	Weight []float32
	Offset []float32
	Pairs  []int
}

func newTable(rows int) *Table {
	return &Table{
		Filter: make([]float32, rows*GaussAlign),
		Sigma:  make([]float32, rows),
		Span:   make([]int, rows),
		Weight: make([]float32, rows*GaussAlign),
		Offset: make([]float32, rows*GaussAlign),
		Pairs:  make([]int, rows),
	}
}

// Rows returns the number of kernels in the table.
func (t *Table) Rows() int {
	return len(t.Sigma)
}

// Kernel returns the one-sided taps of row.
func (t *Table) Kernel(row int) []float32 {
	off := row * GaussAlign
	return t.Filter[off : off+t.Span[row]+1]
}

// RelativeKernel returns the centre weight followed by the paired weights
// and their sample offsets for row.
func (t *Table) RelativeKernel(row int) (weights, offsets []float32) {
	off := row * GaussAlign
	n := t.Pairs[row] + 1
	return t.Weight[off : off+n], t.Offset[off : off+n]
}

func (t *Table) clearTables() {
	for i := range t.Filter {
		t.Filter[i] = 0
		t.Weight[i] = 0
		t.Offset[i] = 0
	}
	for i := range t.Sigma {
		t.Sigma[i] = 0
		t.Span[i] = 0
		t.Pairs[i] = 0
	}
}

// computeBlurTable fills Filter from Sigma and Span. A row with zero sigma
// is the identity kernel.
func (t *Table) computeBlurTable() {
	for row, sigma := range t.Sigma {
		off := row * GaussAlign
		span := t.Span[row]
		if sigma <= 0 || span == 0 {
			t.Span[row] = 0
			t.Filter[off] = 1
			continue
		}

		s := float64(sigma)
		sum := 0.0
		for i := 0; i <= span; i++ {
			v := math.Exp(-float64(i*i) / (2 * s * s))
			t.Filter[off+i] = float32(v)
			if i == 0 {
				sum += v
			} else {
				sum += 2 * v
			}
		}
		for i := 0; i <= span; i++ {
			t.Filter[off+i] = float32(float64(t.Filter[off+i]) / sum)
		}
	}
}

// transformBlurTable folds the one-sided taps of every row into pairs.
// Pair j covers taps 2j-1 and 2j.
func (t *Table) transformBlurTable() {
	for row := range t.Sigma {
		off := row * GaussAlign
		span := t.Span[row]
		t.Weight[off] = t.Filter[off]
		t.Offset[off] = 0

		pairs := (span + 1) / 2
		for j := 1; j <= pairs; j++ {
			a := t.Filter[off+2*j-1]
			var b float32
			if 2*j <= span {
				b = t.Filter[off+2*j]
			}
			w := a + b
			t.Weight[off+j] = w
			if w > 0 {
				t.Offset[off+j] = float32(2*j-1) + b/w
			} else {
				t.Offset[off+j] = float32(2*j - 1)
			}
		}
		t.Pairs[row] = pairs
	}
}
