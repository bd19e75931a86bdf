package ggfx

import (
	"github.com/gogpu/ggfx/internal/filter"
	"github.com/gogpu/ggfx/internal/gpu"
	"github.com/gogpu/ggfx/internal/image"
)

// PixelSource supplies the input pixels for Configure. Only RGBA8 with a
// row stride that is a multiple of 4 is accepted. *ImageBuf implements it.
type PixelSource = gpu.PixelSource

// SharedMemory is the refcounted, externally shareable memory behind an
// output slot. ExportFD hands the host a file descriptor for it.
type SharedMemory = gpu.SharedMemory

// ShaderSource provides SPIR-V for the three kernels.
type ShaderSource = gpu.ShaderSource

// ShaderID names one kernel.
type ShaderID = gpu.ShaderID

// Kernel identifiers.
const (
	ShaderColorMatrix    = gpu.ShaderColorMatrix
	ShaderBlurHorizontal = gpu.ShaderBlurHorizontal
	ShaderBlurVertical   = gpu.ShaderBlurVertical
)

// DeviceInfo describes the selected device.
type DeviceInfo = gpu.DeviceInfo

// ColorMatrix is a row-major 3x3 matrix applied to normalized rgb.
type ColorMatrix = filter.ColorMatrix

// ImageBuf is a host RGBA8 or BGRA8 image with a row stride.
type ImageBuf = image.ImageBuf

// Host pixel layouts.
const (
	FormatRGBA8 = image.FormatRGBA8
	FormatBGRA8 = image.FormatBGRA8
)

// NewDirSource returns a ShaderSource reading precompiled colormatrix.spv,
// blur_h.spv and blur_v.spv from dir.
func NewDirSource(dir string) ShaderSource {
	return gpu.NewDirSource(dir)
}

// NewImageBuf allocates a zeroed RGBA8 image.
func NewImageBuf(width, height int) (*ImageBuf, error) {
	return image.NewImageBuf(width, height, image.FormatRGBA8)
}

// LoadImage decodes a PNG, JPEG, BMP, TIFF or WebP file into RGBA8.
func LoadImage(path string) (*ImageBuf, error) {
	return image.LoadImage(path)
}
