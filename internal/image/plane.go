package image

// planeAlign is the row alignment in floats. Rows are padded so that
// consecutive rows start on 32-byte boundaries of the backing slice.
const planeAlign = 8

// Plane is a single-channel float32 image with padded rows.
type Plane struct {
	Pix    []float32
	Width  int
	Height int
	Stride int // floats per row, including padding
}

// NewPlane allocates a zeroed plane.
func NewPlane(width, height int) *Plane {
	if width <= 0 || height <= 0 {
		return &Plane{}
	}
	stride := (width + planeAlign - 1) / planeAlign * planeAlign
	return &Plane{
		Pix:    make([]float32, stride*height),
		Width:  width,
		Height: height,
		Stride: stride,
	}
}

// Row returns row y limited to the plane width.
func (p *Plane) Row(y int) []float32 {
	start := y * p.Stride
	return p.Pix[start : start+p.Width]
}

// At returns the value at (x, y). No bounds clamping is done.
func (p *Plane) At(x, y int) float32 {
	return p.Pix[y*p.Stride+x]
}

// Set stores v at (x, y).
func (p *Plane) Set(x, y int, v float32) {
	p.Pix[y*p.Stride+x] = v
}

// Fill sets every pixel, padding included, to v.
func (p *Plane) Fill(v float32) {
	for i := range p.Pix {
		p.Pix[i] = v
	}
}

// CopyFrom copies src into p. Both planes must have the same geometry.
func (p *Plane) CopyFrom(src *Plane) {
	copy(p.Pix, src.Pix)
}

// SameSize reports whether p and o have equal width and height.
func (p *Plane) SameSize(o *Plane) bool {
	return p.Width == o.Width && p.Height == o.Height
}

// Volume is a stack of equally sized planes sharing one allocation.
type Volume struct {
	Pix    []float32
	Width  int
	Height int
	Depth  int
	Stride int

	layers []*Plane
}

// NewVolume allocates a zeroed width x height x depth volume.
func NewVolume(width, height, depth int) *Volume {
	if width <= 0 || height <= 0 || depth <= 0 {
		return &Volume{}
	}
	stride := (width + planeAlign - 1) / planeAlign * planeAlign
	layerSize := stride * height
	v := &Volume{
		Pix:    make([]float32, layerSize*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
		Stride: stride,
		layers: make([]*Plane, depth),
	}
	for d := range v.layers {
		v.layers[d] = &Plane{
			Pix:    v.Pix[d*layerSize : (d+1)*layerSize],
			Width:  width,
			Height: height,
			Stride: stride,
		}
	}
	return v
}

// Layer returns layer d as a plane sharing the volume's storage.
func (v *Volume) Layer(d int) *Plane {
	return v.layers[d]
}

// At returns the value at (x, y, d).
func (v *Volume) At(x, y, d int) float32 {
	return v.Pix[(d*v.Height+y)*v.Stride+x]
}
