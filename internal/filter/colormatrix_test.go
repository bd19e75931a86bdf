package filter

import (
	"encoding/binary"
	"math"
	"testing"
)

const matrixTolerance = 1e-5

func matricesEqual(a, b ColorMatrix, tol float64) bool {
	for i := range 3 {
		for j := range 3 {
			if math.Abs(float64(a[i][j]-b[i][j])) > tol {
				return false
			}
		}
	}
	return true
}

func TestHueRotationIdentityAtZero(t *testing.T) {
	if m := HueRotation(0); !matricesEqual(m, Identity(), matrixTolerance) {
		t.Errorf("HueRotation(0) = %v, want identity", m)
	}
}

func TestHueRotationPeriodic(t *testing.T) {
	for _, angle := range []float32{0, 0.3, 1, math.Pi / 2, 2.5, math.Pi} {
		a := HueRotation(angle)
		b := HueRotation(angle + 2*math.Pi)
		if !matricesEqual(a, b, matrixTolerance) {
			t.Errorf("HueRotation(%v) != HueRotation(%v + 2π)", angle, angle)
		}
	}
	if !matricesEqual(HueRotation(2*math.Pi), Identity(), matrixTolerance) {
		t.Error("HueRotation(2π) is not the identity")
	}
}

func TestHueRotationPreservesGray(t *testing.T) {
	// Each row sums to one within rounding of the published coefficients.
	for _, angle := range []float32{0.7, 2, 4} {
		m := HueRotation(angle)
		r, g, b := m.Apply(0.5, 0.5, 0.5)
		for _, v := range []float32{r, g, b} {
			if math.Abs(float64(v-0.5)) > 0.01 {
				t.Errorf("angle %v: gray maps to (%v,%v,%v)", angle, r, g, b)
				break
			}
		}
	}
}

func TestHueRotationCoefficients(t *testing.T) {
	m := HueRotation(math.Pi / 2) // cos 0, sin 1
	want := ColorMatrix{
		{0.299 + 0.168, 0.587 + 0.330, 0.114 - 0.497},
		{0.299 - 0.328, 0.587 + 0.035, 0.114 + 0.292},
		{0.299 + 1.250, 0.587 - 1.050, 0.114 - 0.203},
	}
	if !matricesEqual(m, want, 1e-6) {
		t.Errorf("HueRotation(π/2) = %v, want %v", m, want)
	}
}

func TestSaturation(t *testing.T) {
	if !matricesEqual(Saturation(1), Identity(), matrixTolerance) {
		t.Error("Saturation(1) is not the identity")
	}

	gray := Saturation(0)
	r, g, b := gray.Apply(1, 0, 0)
	if math.Abs(float64(r-0.299)) > 1e-6 || r != g || g != b {
		t.Errorf("Saturation(0) of red = (%v,%v,%v), want luma 0.299", r, g, b)
	}

	// Luma is preserved at any level.
	for _, level := range []float32{0, 0.5, 2} {
		m := Saturation(level)
		r, g, b := m.Apply(0.2, 0.6, 0.9)
		luma := lumR*r + lumG*g + lumB*b
		want := lumR*0.2 + lumG*0.6 + lumB*0.9
		if math.Abs(float64(luma)-want) > 1e-5 {
			t.Errorf("Saturation(%v) changes luma: %v vs %v", level, luma, want)
		}
	}
}

func TestColorMatrixMultiply(t *testing.T) {
	a := HueRotation(1)
	b := HueRotation(-1)
	if !matricesEqual(Identity().Multiply(a), a, 0) || !matricesEqual(a.Multiply(Identity()), a, 0) {
		t.Error("identity is not neutral")
	}
	// Multiply composes transforms: applying m·o equals applying o then m.
	m := a.Multiply(b)
	r1, g1, b1 := m.Apply(0.1, 0.4, 0.7)
	r0, g0, b0 := b.Apply(0.1, 0.4, 0.7)
	r2, g2, b2 := a.Apply(r0, g0, b0)
	if math.Abs(float64(r1-r2)) > 1e-5 || math.Abs(float64(g1-g2)) > 1e-5 || math.Abs(float64(b1-b2)) > 1e-5 {
		t.Errorf("composition mismatch: (%v,%v,%v) vs (%v,%v,%v)", r1, g1, b1, r2, g2, b2)
	}
}

func TestColorMatrixPack(t *testing.T) {
	m := ColorMatrix{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	}
	data := m.Pack()
	if len(data) != ColorMatrixPushSize {
		t.Fatalf("len = %d, want %d", len(data), ColorMatrixPushSize)
	}
	word := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	// Column-major with one pad word per column.
	want := []float32{1, 4, 7, 0, 2, 5, 8, 0, 3, 6, 9, 0}
	for i, w := range want {
		if word(i) != w {
			t.Errorf("word %d = %v, want %v", i, word(i), w)
		}
	}
}
