package filter

import (
	"encoding/binary"
	"math"
)

// Luma weights used by the saturation and hue rotation matrices.
const (
	lumR = 0.299
	lumG = 0.587
	lumB = 0.114
)

// ColorMatrix is a 3x3 RGB transform in row-major order:
// out[i] = sum over j of M[i][j] * in[j]. Alpha is not affected.
type ColorMatrix [3][3]float32

// Identity returns the identity matrix.
func Identity() ColorMatrix {
	return ColorMatrix{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// HueRotation returns the matrix rotating hue by angle radians around
// the luma axis, expressed directly in RGB. The result is the identity
// at 0 and periodic in 2π.
func HueRotation(angle float32) ColorMatrix {
	c := math.Cos(float64(angle))
	s := math.Sin(float64(angle))
	return fromFloat64([3][3]float64{
		{lumR + 0.701*c + 0.168*s, lumG - 0.587*c + 0.330*s, lumB - 0.114*c - 0.497*s},
		{lumR - 0.299*c - 0.328*s, lumG + 0.413*c + 0.035*s, lumB - 0.114*c + 0.292*s},
		{lumR - 0.299*c + 1.250*s, lumG - 0.587*c - 1.050*s, lumB + 0.886*c - 0.203*s},
	})
}

// Saturation returns the matrix that blends each pixel with its luma:
// level 0 gives grayscale, 1 the identity and values above 1
// oversaturate.
func Saturation(level float32) ColorMatrix {
	s := float64(level)
	lum := [3]float64{lumR, lumG, lumB}
	var m [3][3]float64
	for i := range 3 {
		for j := range 3 {
			m[i][j] = (1 - s) * lum[j]
			if i == j {
				m[i][j] += s
			}
		}
	}
	return fromFloat64(m)
}

func fromFloat64(m [3][3]float64) ColorMatrix {
	var out ColorMatrix
	for i := range 3 {
		for j := range 3 {
			out[i][j] = float32(m[i][j])
		}
	}
	return out
}

// Multiply returns m·o, the transform applying o first and then m.
func (m ColorMatrix) Multiply(o ColorMatrix) ColorMatrix {
	var out ColorMatrix
	for i := range 3 {
		for j := range 3 {
			var sum float32
			for k := range 3 {
				sum += m[i][k] * o[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// Apply transforms one RGB triple without clamping.
func (m ColorMatrix) Apply(r, g, b float32) (float32, float32, float32) {
	return m[0][0]*r + m[0][1]*g + m[0][2]*b,
		m[1][0]*r + m[1][1]*g + m[1][2]*b,
		m[2][0]*r + m[2][1]*g + m[2][2]*b
}

// Pack returns the push constant layout of a mat3x3<f32>: three columns,
// each padded to a vec4, little-endian.
func (m ColorMatrix) Pack() []byte {
	data := make([]byte, ColorMatrixPushSize)
	for col := range 3 {
		for row := range 3 {
			binary.LittleEndian.PutUint32(data[col*16+row*4:], math.Float32bits(m[row][col]))
		}
	}
	return data
}
