package pyramid

import "sync/atomic"

// ExtremaMgmt tracks how many slots of one level's candidate buffer are in
// use. Max1 bounds the detection pass; Max2 = Max1 + Max1/4 bounds the
// buffer after orientation splitting, since one extremum may yield several
// oriented keypoints. The counter never exceeds the limit it is reserved
// against, and reservations beyond it are dropped and counted.
type ExtremaMgmt struct {
	Max1 uint32
	Max2 uint32

	counter atomic.Uint32
	dropped atomic.Uint32
}

func (m *ExtremaMgmt) init(max1 uint32) {
	m.Max1 = max1
	m.Max2 = max1 + max1/4
	m.counter.Store(0)
	m.dropped.Store(0)
}

// Reserve claims the next free slot below limit. It returns false when the
// buffer is full; the unit of work is then dropped.
func (m *ExtremaMgmt) Reserve(limit uint32) (uint32, bool) {
	for {
		c := m.counter.Load()
		if c >= limit {
			m.dropped.Add(1)
			return 0, false
		}
		if m.counter.CompareAndSwap(c, c+1) {
			return c, true
		}
	}
}

// Counter returns the number of slots in use.
func (m *ExtremaMgmt) Counter() uint32 {
	return m.counter.Load()
}

// Dropped returns the number of reservations refused since the last reset.
func (m *ExtremaMgmt) Dropped() uint32 {
	return m.dropped.Load()
}

// Reset zeroes the counter and the drop count.
func (m *ExtremaMgmt) Reset() {
	m.counter.Store(0)
	m.dropped.Store(0)
}

func (m *ExtremaMgmt) set(counter, dropped uint32) {
	m.counter.Store(counter)
	m.dropped.Store(dropped)
}

// Candidate is a refined scale-space extremum. X, Y and Sigma are in the
// pixel units of the octave it was found in; Angle is in radians in
// [0, 2π) once the orientation stage has run.
type Candidate struct {
	X        float32
	Y        float32
	Sigma    float32
	Angle    float32
	Level    int32   // DoG level the extremum was refined to
	Response float32 // interpolated DoG value
}

// DescriptorSize is the length of a SIFT feature vector.
const DescriptorSize = 128

// Descriptor is the feature vector of one oriented candidate.
type Descriptor struct {
	Features [DescriptorSize]float32
}
