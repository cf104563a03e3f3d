package pyramid

import (
	"fmt"

	"gosift/internal/image"
)

// MaxOctaveBytes bounds the storage of a single octave. Larger requests
// fail allocation instead of exhausting memory.
const MaxOctaveBytes = 1 << 31

// Octave owns the working storage of one scale-space octave: the Gaussian
// levels, the intermediate plane of the separable blur, the DoG volume and
// the per-level candidate and descriptor buffers. Only the interior DoG
// levels 1..levels-3 carry candidate buffers.
type Octave struct {
	id     int
	levels int
	width  int
	height int

	data         []*image.Plane
	intermediate *image.Plane
	dog          *image.Volume

	mgmt     []ExtremaMgmt
	extrema  [][]Candidate
	scratch  [][]Candidate
	scratchM []ExtremaMgmt
	hist     [][]float32

	desc     [][]Descriptor
	hostDesc [][]Descriptor

	finalized bool
	described bool
	allocated bool
}

// Alloc reserves all storage of the octave. Either everything is allocated
// or nothing is, and a failed Alloc leaves the octave unallocated.
func (o *Octave) Alloc(width, height, levels, id int, maxExtrema int) (err error) {
	if o.allocated {
		return ErrAlreadyAllocated
	}
	if width <= 0 || height <= 0 || levels < 4 || maxExtrema <= 0 {
		return fmt.Errorf("%w: octave %d: %dx%d, %d levels, capacity %d",
			ErrAlloc, id, width, height, levels, maxExtrema)
	}
	if need := octaveBytes(width, height, levels, maxExtrema); need > MaxOctaveBytes {
		return fmt.Errorf("%w: octave %d needs %d bytes", ErrAlloc, id, need)
	}

	defer func() {
		if r := recover(); r != nil {
			o.release()
			err = fmt.Errorf("%w: octave %d: %v", ErrAlloc, id, r)
		}
	}()

	o.id = id
	o.levels = levels
	o.width = width
	o.height = height

	o.data = make([]*image.Plane, levels)
	for l := range o.data {
		o.data[l] = image.NewPlane(width, height)
	}
	o.intermediate = image.NewPlane(width, height)
	o.dog = image.NewVolume(width, height, levels-1)

	o.mgmt = make([]ExtremaMgmt, levels)
	o.scratchM = make([]ExtremaMgmt, levels)
	o.extrema = make([][]Candidate, levels)
	o.scratch = make([][]Candidate, levels)
	o.hist = make([][]float32, levels)
	o.desc = make([][]Descriptor, levels)
	o.hostDesc = make([][]Descriptor, levels)
	for l := 1; l <= levels-3; l++ {
		o.mgmt[l].init(uint32(maxExtrema))
		o.scratchM[l].init(uint32(maxExtrema))
		o.extrema[l] = make([]Candidate, o.mgmt[l].Max2)
		o.scratch[l] = make([]Candidate, o.mgmt[l].Max2)
		o.hist[l] = make([]float32, int(o.mgmt[l].Max1)*oriBins)
	}

	o.allocated = true
	return nil
}

func octaveBytes(width, height, levels, maxExtrema int) int64 {
	stride := int64((width + 7) / 8 * 8)
	planes := int64(levels) + 1 + int64(levels-1)
	interior := int64(levels - 3)
	max2 := int64(maxExtrema + maxExtrema/4)
	perLevel := 2*max2*int64(candidateBytes) + int64(maxExtrema)*oriBins*4 + 2*max2*DescriptorSize*4
	return planes*stride*int64(height)*4 + interior*perLevel
}

const candidateBytes = 24

// Free releases all storage. Free is idempotent.
func (o *Octave) Free() {
	if !o.allocated {
		return
	}
	o.release()
}

func (o *Octave) release() {
	o.data = nil
	o.intermediate = nil
	o.dog = nil
	o.mgmt = nil
	o.scratchM = nil
	o.extrema = nil
	o.scratch = nil
	o.hist = nil
	o.desc = nil
	o.hostDesc = nil
	o.finalized = false
	o.described = false
	o.allocated = false
}

// Allocated reports whether the octave holds storage.
func (o *Octave) Allocated() bool { return o.allocated }

func (o *Octave) ID() int        { return o.id }
func (o *Octave) Width() int     { return o.width }
func (o *Octave) Height() int    { return o.height }
func (o *Octave) NumLevels() int { return o.levels }

// Data returns Gaussian level l.
func (o *Octave) Data(l int) *image.Plane { return o.data[l] }

// Intermediate returns the plane holding the horizontal blur pass.
func (o *Octave) Intermediate() *image.Plane { return o.intermediate }

// DoG returns the difference-of-Gaussians volume; layer d is level d+1
// minus level d.
func (o *Octave) DoG() *image.Volume { return o.dog }

// Mgmt returns the counters of DoG level l.
func (o *Octave) Mgmt(l int) *ExtremaMgmt { return &o.mgmt[l] }

func interiorLevel(l, levels int) bool {
	return l >= 1 && l <= levels-3
}

// ResetExtremaCount zeroes the candidate counters of every level.
func (o *Octave) ResetExtremaCount() {
	for l := range o.mgmt {
		o.mgmt[l].Reset()
		o.scratchM[l].Reset()
	}
	o.finalized = false
	o.described = false
}

// ReadExtremaCount marks the counters as final for the current stage. The
// counters are only written through atomic reservations, so reading them is
// safe once the stage has returned.
func (o *Octave) ReadExtremaCount() {
	o.finalized = true
}

// MarkDescribed records that the descriptors of every level match the
// current candidates.
func (o *Octave) MarkDescribed() {
	o.described = o.finalized
}

// ExtremaCount returns the number of candidates on level l.
func (o *Octave) ExtremaCount(l int) int {
	if !o.allocated || !interiorLevel(l, o.levels) {
		return 0
	}
	return int(o.mgmt[l].Counter())
}

// TotalExtremaCount sums ExtremaCount over all levels.
func (o *Octave) TotalExtremaCount() int {
	n := 0
	for l := 1; l <= o.levels-3; l++ {
		n += o.ExtremaCount(l)
	}
	return n
}

// Dropped sums the candidates dropped on every level since the counters
// were last reset.
func (o *Octave) Dropped() int {
	n := 0
	for l := 1; l <= o.levels-3; l++ {
		n += int(o.mgmt[l].Dropped())
	}
	return n
}

// Extrema returns the candidates of level l.
func (o *Octave) Extrema(l int) []Candidate {
	if !interiorLevel(l, o.levels) {
		return nil
	}
	return o.extrema[l][:o.ExtremaCount(l)]
}

// AllocDescriptors reserves descriptor storage for every level at full
// capacity. Storage is kept across frames.
func (o *Octave) AllocDescriptors() error {
	if !o.allocated {
		return ErrNotAllocated
	}
	for l := 1; l <= o.levels-3; l++ {
		if o.desc[l] == nil {
			o.desc[l] = make([]Descriptor, o.mgmt[l].Max2)
		}
	}
	return nil
}

// Descriptors returns the descriptors of level l in pyramid-side storage.
func (o *Octave) Descriptors(l int) ([]Descriptor, error) {
	if err := o.checkDescriptors(); err != nil {
		return nil, err
	}
	if !interiorLevel(l, o.levels) {
		return nil, nil
	}
	return o.desc[l][:o.ExtremaCount(l)], nil
}

func (o *Octave) checkDescriptors() error {
	if !o.allocated {
		return ErrNotAllocated
	}
	if !o.finalized {
		return fmt.Errorf("%w: extrema counts of octave %d not final", ErrInvalidState, o.id)
	}
	if o.desc[1] == nil || !o.described {
		return fmt.Errorf("%w: descriptors of octave %d not computed", ErrInvalidState, o.id)
	}
	return nil
}

// DownloadDescriptors copies the descriptors of every level into
// caller-visible storage, truncated to the final counts.
func (o *Octave) DownloadDescriptors() error {
	if err := o.checkDescriptors(); err != nil {
		return err
	}
	for l := 1; l <= o.levels-3; l++ {
		n := o.ExtremaCount(l)
		if o.hostDesc[l] == nil {
			o.hostDesc[l] = make([]Descriptor, 0, o.mgmt[l].Max2)
		}
		o.hostDesc[l] = append(o.hostDesc[l][:0], o.desc[l][:n]...)
	}
	return nil
}

// HostDescriptors returns the descriptors last copied by
// DownloadDescriptors for level l.
func (o *Octave) HostDescriptors(l int) []Descriptor {
	if !o.allocated || !interiorLevel(l, o.levels) {
		return nil
	}
	return o.hostDesc[l]
}

// DownloadToVector appends the candidates of level l to cands and, when
// descriptors exist, their descriptors to descs.
func (o *Octave) DownloadToVector(l int, cands []Candidate, descs []Descriptor) ([]Candidate, []Descriptor) {
	if !o.allocated || !interiorLevel(l, o.levels) {
		return cands, descs
	}
	n := o.ExtremaCount(l)
	cands = append(cands, o.extrema[l][:n]...)
	if o.described {
		descs = append(descs, o.desc[l][:n]...)
	}
	return cands, descs
}
