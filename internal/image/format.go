// Package image holds host-side pixel buffers for ggfx: decoding input
// files into RGBA8 rows, handing them to the GPU as a pixel source and
// encoding results read back from output slots.
package image

import "github.com/gogpu/gputypes"

// Format represents a pixel storage format.
type Format uint8

const (
	// FormatRGBA8 is 32-bit RGBA with straight alpha (4 bytes per pixel).
	// This is the only format the GPU path accepts.
	FormatRGBA8 Format = iota

	// FormatBGRA8 is 32-bit BGRA with straight alpha (4 bytes per pixel).
	// Common for surfaces handed over by window systems.
	FormatBGRA8

	// formatCount is the number of formats (for internal use).
	formatCount
)

// FormatInfo contains metadata about a pixel format.
type FormatInfo struct {
	// BytesPerPixel is the number of bytes per pixel.
	BytesPerPixel int

	// TextureFormat is the matching GPU texture format.
	TextureFormat gputypes.TextureFormat

	// RedOffset and BlueOffset locate the red and blue bytes in a pixel.
	RedOffset  int
	BlueOffset int
}

var formatInfoTable = [formatCount]FormatInfo{
	FormatRGBA8: {
		BytesPerPixel: 4,
		TextureFormat: gputypes.TextureFormatRGBA8Unorm,
		RedOffset:     0,
		BlueOffset:    2,
	},
	FormatBGRA8: {
		BytesPerPixel: 4,
		TextureFormat: gputypes.TextureFormatBGRA8Unorm,
		RedOffset:     2,
		BlueOffset:    0,
	},
}

// Info returns the FormatInfo for this format.
func (f Format) Info() FormatInfo {
	if f >= formatCount {
		return FormatInfo{}
	}
	return formatInfoTable[f]
}

// BytesPerPixel returns the number of bytes per pixel for this format.
func (f Format) BytesPerPixel() int {
	return f.Info().BytesPerPixel
}

// TextureFormat returns the GPU texture format with the same byte layout.
func (f Format) TextureFormat() gputypes.TextureFormat {
	return f.Info().TextureFormat
}

// String returns a string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatBGRA8:
		return "BGRA8"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the format is a valid known format.
func (f Format) IsValid() bool {
	return f < formatCount
}

// RowBytes calculates the number of bytes needed for a row of the given width.
func (f Format) RowBytes(width int) int {
	return width * f.BytesPerPixel()
}

// ImageBytes calculates the total number of bytes needed for an image.
func (f Format) ImageBytes(width, height int) int {
	return f.RowBytes(width) * height
}
