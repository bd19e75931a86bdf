package filter

import (
	"github.com/gogpu/ggfx/internal/image"
	"github.com/gogpu/ggfx/internal/parallel"
)

// ReferenceColorMatrix applies m to every pixel of src on the host, the
// way the colormatrix kernel does: rgb is transformed in normalized
// floats and clamped, alpha passes through. The result is packed RGBA8.
func ReferenceColorMatrix(src *image.ImageBuf, m ColorMatrix) (*image.ImageBuf, error) {
	dst, err := image.NewImageBuf(src.Width(), src.Height(), image.FormatRGBA8)
	if err != nil {
		return nil, err
	}
	parallel.Shared().ForEachBand(src.Height(), func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := range src.Width() {
				r, g, b, a := src.GetRGBA(x, y)
				nr, ng, nb := m.Apply(unorm(r), unorm(g), unorm(b))
				_ = dst.SetRGBA(x, y, toUnorm(nr), toUnorm(ng), toUnorm(nb), a)
			}
		}
	})
	return dst, nil
}

// ReferenceBlur runs the two-pass Gaussian blur on the host. Samples past
// the border repeat the edge pixel. The horizontal pass keeps alpha and is
// quantized to 8 bits like the scratch image; the vertical pass writes
// opaque pixels.
func ReferenceBlur(src *image.ImageBuf, radius float32) (*image.ImageBuf, error) {
	if err := ValidateRadius(radius); err != nil {
		return nil, err
	}
	in, err := src.Convert(image.FormatRGBA8)
	if err != nil {
		return nil, err
	}
	kernel := CachedGaussianKernel(radius)

	scratch, err := image.NewImageBuf(in.Width(), in.Height(), image.FormatRGBA8)
	if err != nil {
		return nil, err
	}
	blurHorizontal(in, scratch, kernel)

	dst, err := image.NewImageBuf(in.Width(), in.Height(), image.FormatRGBA8)
	if err != nil {
		return nil, err
	}
	blurVertical(scratch, dst, kernel)
	return dst, nil
}

// blurHorizontal convolves each row of packed RGBA8 src into dst.
func blurHorizontal(src, dst *image.ImageBuf, kernel []float32) {
	parallel.Shared().ForEachBand(src.Height(), func(lo, hi int) {
		blurRows(src, dst, kernel, lo, hi)
	})
}

func blurRows(src, dst *image.ImageBuf, kernel []float32, lo, hi int) {
	half := len(kernel) / 2
	width := src.Width()
	srcData, dstData := src.Data(), dst.Data()

	for y := lo; y < hi; y++ {
		row := y * src.Stride()
		for x := range width {
			var r, g, b, a float32
			for k, weight := range kernel {
				kx := clampInt(x+k-half, 0, width-1)
				i := row + kx*4
				r += unorm(srcData[i]) * weight
				g += unorm(srcData[i+1]) * weight
				b += unorm(srcData[i+2]) * weight
				a += unorm(srcData[i+3]) * weight
			}
			o := y*dst.Stride() + x*4
			dstData[o] = toUnorm(r)
			dstData[o+1] = toUnorm(g)
			dstData[o+2] = toUnorm(b)
			dstData[o+3] = toUnorm(a)
		}
	}
}

// blurVertical convolves each column of packed RGBA8 src into dst. Bands
// split the output rows; every band reads across the whole source.
func blurVertical(src, dst *image.ImageBuf, kernel []float32) {
	parallel.Shared().ForEachBand(src.Height(), func(lo, hi int) {
		blurColumns(src, dst, kernel, lo, hi)
	})
}

func blurColumns(src, dst *image.ImageBuf, kernel []float32, lo, hi int) {
	half := len(kernel) / 2
	width, height := src.Width(), src.Height()
	srcData, dstData := src.Data(), dst.Data()

	for y := lo; y < hi; y++ {
		for x := range width {
			var r, g, b float32
			for k, weight := range kernel {
				ky := clampInt(y+k-half, 0, height-1)
				i := ky*src.Stride() + x*4
				r += unorm(srcData[i]) * weight
				g += unorm(srcData[i+1]) * weight
				b += unorm(srcData[i+2]) * weight
			}
			o := y*dst.Stride() + x*4
			dstData[o] = toUnorm(r)
			dstData[o+1] = toUnorm(g)
			dstData[o+2] = toUnorm(b)
			dstData[o+3] = 255
		}
	}
}

// clampInt clamps v to [lo, hi].
func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func unorm(v uint8) float32 {
	return float32(v) / 255
}

// toUnorm converts a normalized float to 8 bits, clamping and rounding
// to nearest.
func toUnorm(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
