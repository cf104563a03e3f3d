package pyramid

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"gosift/internal/image"
)

// PlaneKind selects which plane SaveLevel writes.
type PlaneKind int

const (
	PlaneGauss PlaneKind = iota
	PlaneDoG
)

// SaveLevel writes Gaussian level or DoG layer l of octave o to path. The
// format follows the extension, see image.SavePlane.
func (p *Pyramid) SaveLevel(path string, o, l int, kind PlaneKind) error {
	if err := p.require("save level", StateBuilt, StateExtremaFound, StateOriented, StateDescribed); err != nil {
		return err
	}
	if o < 0 || o >= len(p.octaves) {
		return fmt.Errorf("octave %d out of range", o)
	}
	oct := &p.octaves[o]

	var plane *image.Plane
	switch kind {
	case PlaneDoG:
		if l < 0 || l >= oct.DoG().Depth {
			return fmt.Errorf("dog layer %d out of range", l)
		}
		plane = oct.DoG().Layer(l)
	default:
		if l < 0 || l >= oct.NumLevels() {
			return fmt.Errorf("level %d out of range", l)
		}
		plane = oct.Data(l)
	}
	return image.SavePlane(path, plane)
}

// SaveAllLevels writes every Gaussian level and DoG layer into dir, named
// by octave and level.
func (p *Pyramid) SaveAllLevels(dir, ext string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for o := range p.octaves {
		for l := 0; l < p.conf.Levels; l++ {
			name := filepath.Join(dir, fmt.Sprintf("gauss-o%d-l%d%s", o, l, ext))
			if err := p.SaveLevel(name, o, l, PlaneGauss); err != nil {
				return err
			}
			if l == p.conf.Levels-1 {
				continue
			}
			name = filepath.Join(dir, fmt.Sprintf("dog-o%d-l%d%s", o, l, ext))
			if err := p.SaveLevel(name, o, l, PlaneDoG); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteFeatures writes one line per feature: x y sigma angle followed by the
// 128 descriptor values.
func WriteFeatures(w io.Writer, features []Feature) error {
	bw := bufio.NewWriter(w)
	for _, f := range features {
		fmt.Fprintf(bw, "%.4f %.4f %.4f %.4f", f.Position.X, f.Position.Y, f.Sigma, f.Angle)
		for _, v := range f.Descriptor.Features {
			fmt.Fprintf(bw, " %.5f", v)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// SaveFeatures writes features to path, as a N x 132 float64 array for .npy
// and as text otherwise.
func SaveFeatures(path string, features []Feature) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if strings.ToLower(filepath.Ext(path)) != ".npy" {
		return WriteFeatures(f, features)
	}
	if len(features) == 0 {
		return fmt.Errorf("no features to save")
	}
	const cols = 4 + DescriptorSize
	m := mat.NewDense(len(features), cols, nil)
	for i, ft := range features {
		row := m.RawRowView(i)
		row[0], row[1] = ft.Position.X, ft.Position.Y
		row[2], row[3] = ft.Sigma, ft.Angle
		for j, v := range ft.Descriptor.Features {
			row[4+j] = float64(v)
		}
	}
	if err := npyio.Write(f, m); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteDescriptors writes the candidates and descriptors of every level of
// the octave to w, one line per candidate: level x y sigma angle followed by
// the descriptor values. Positions are in octave pixel units.
func (o *Octave) WriteDescriptors(w io.Writer) error {
	if err := o.checkDescriptors(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for l := 1; l <= o.levels-3; l++ {
		descs, _ := o.Descriptors(l)
		for i, c := range o.Extrema(l) {
			fmt.Fprintf(bw, "%d %.4f %.4f %.4f %.4f", l, c.X, c.Y, c.Sigma, c.Angle)
			for _, v := range descs[i].Features {
				fmt.Fprintf(bw, " %.5f", v)
			}
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// SaveDescriptors writes the descriptor set of octave o to w.
func (p *Pyramid) SaveDescriptors(w io.Writer, o int) error {
	if err := p.require("save descriptors", StateDescribed); err != nil {
		return err
	}
	if o < 0 || o >= len(p.octaves) {
		return fmt.Errorf("octave %d out of range", o)
	}
	return p.octaves[o].WriteDescriptors(w)
}
