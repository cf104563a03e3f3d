package image

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
)

// SavePlane writes p to path. The format follows the extension:
// .npy keeps the raw float values as a height x width array, .tif and .png
// store a 16-bit rendering stretched to the plane's value range.
func SavePlane(path string, p *Plane) error {
	if p.Width == 0 || p.Height == 0 {
		return fmt.Errorf("cannot save empty plane")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".npy":
		err = npyio.Write(f, ToDense(p))
	case ".tif", ".tiff":
		err = tiff.Encode(f, ToGray16(p), &tiff.Options{Compression: tiff.Deflate})
	case ".png":
		err = png.Encode(f, ToGray16(p))
	default:
		err = fmt.Errorf("unsupported plane format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// ToDense copies p into a height x width matrix.
func ToDense(p *Plane) *mat.Dense {
	data := make([]float64, p.Width*p.Height)
	for y := 0; y < p.Height; y++ {
		for x, v := range p.Row(y) {
			data[y*p.Width+x] = float64(v)
		}
	}
	return mat.NewDense(p.Height, p.Width, data)
}

// ToGray16 renders p with its minimum mapped to black and its maximum to
// white. A constant plane renders black.
func ToGray16(p *Plane) *image.Gray16 {
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	for y := 0; y < p.Height; y++ {
		for _, v := range p.Row(y) {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	scale := float32(0)
	if hi > lo {
		scale = 65535 / (hi - lo)
	}

	img := image.NewGray16(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x, v := range p.Row(y) {
			g := uint16((v-lo)*scale + 0.5)
			off := img.PixOffset(x, y)
			img.Pix[off] = uint8(g >> 8)
			img.Pix[off+1] = uint8(g)
		}
	}
	return img
}
