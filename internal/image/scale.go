package image

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Resize returns a width×height RGBA8 copy of b resampled with the
// Catmull-Rom kernel.
func (b *ImageBuf) Resize(width, height int) (*ImageBuf, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	src := b.ToStdImage()
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return FromStdImage(dst), nil
}

// Scale resizes b by factor, rounding each dimension and keeping it at
// least one pixel.
func (b *ImageBuf) Scale(factor float64) (*ImageBuf, error) {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("%w: scale factor %v", ErrInvalidDimensions, factor)
	}
	w := max(1, int(math.Round(float64(b.width)*factor)))
	h := max(1, int(math.Round(float64(b.height)*factor)))
	return b.Resize(w, h)
}
