// Package image provides input loading and the float planes the pyramid
// operates on.
package image

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ErrUnsupportedFormat is returned by Load for extensions without a decoder.
var ErrUnsupportedFormat = errors.New("image: unsupported format")

// Load decodes the image at path and converts it to 8-bit grayscale.
func Load(path string) (*image.Gray, error) {
	if !IsSupportedFormat(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ToGray(img), nil
}

// ToGray returns img as an *image.Gray with its origin at (0, 0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Upscale doubles the size of src with bilinear interpolation.
func Upscale(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, 2*b.Dx(), 2*b.Dy()))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// Upload converts src into dst with intensities scaled to [0, 1].
// dst must match the size of src.
func Upload(dst *Plane, src *image.Gray) error {
	b := src.Bounds()
	if dst.Width != b.Dx() || dst.Height != b.Dy() {
		return fmt.Errorf("upload size mismatch: plane %dx%d, image %dx%d",
			dst.Width, dst.Height, b.Dx(), b.Dy())
	}
	for y := 0; y < dst.Height; y++ {
		row := dst.Row(y)
		off := src.PixOffset(b.Min.X, b.Min.Y+y)
		pix := src.Pix[off : off+dst.Width]
		for x, v := range pix {
			row[x] = float32(v) / 255
		}
	}
	return nil
}

// decoders lists the extensions with a registered decoder.
var decoders = map[string]bool{
	".tif": true, ".tiff": true,
	".png": true,
	".jpg": true, ".jpeg": true,
	".bmp": true,
}

// IsSupportedFormat reports whether Load can decode the file at path.
func IsSupportedFormat(path string) bool {
	return decoders[strings.ToLower(filepath.Ext(path))]
}
