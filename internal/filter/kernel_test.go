package filter

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestGaussianKernelZeroRadius(t *testing.T) {
	for _, r := range []float32{0, -5, float32(math.NaN())} {
		kernel := GaussianKernel(r)
		if len(kernel) != 1 || kernel[0] != 1.0 {
			t.Errorf("GaussianKernel(%v) = %v, want [1]", r, kernel)
		}
	}
}

func TestGaussianKernelLength(t *testing.T) {
	tests := []struct {
		radius float32
		want   int
	}{
		{1, 3},
		{1.2, 5},
		{2, 5},
		{2.5, 7},
		{10, 21},
		{24.1, 51},
		{25, 51},
	}
	for _, tt := range tests {
		if got := len(GaussianKernel(tt.radius)); got != tt.want {
			t.Errorf("len(GaussianKernel(%v)) = %d, want %d", tt.radius, got, tt.want)
		}
		if got := KernelLength(tt.radius); got != tt.want {
			t.Errorf("KernelLength(%v) = %d, want %d", tt.radius, got, tt.want)
		}
	}
}

func TestGaussianKernelNormalized(t *testing.T) {
	for r := float32(1); r <= 25; r += 0.75 {
		kernel := GaussianKernel(r)
		var sum float64
		for _, v := range kernel {
			sum += float64(v)
		}
		if math.Abs(sum-1.0) > 1e-5 {
			t.Errorf("GaussianKernel(%v) sum = %v, want 1 within 1e-5", r, sum)
		}
	}
}

func TestGaussianKernelSymmetric(t *testing.T) {
	for _, r := range []float32{1, 3.3, 7, 25} {
		kernel := GaussianKernel(r)
		n := len(kernel)
		for i := 0; i < n/2; i++ {
			if kernel[i] != kernel[n-1-i] {
				t.Errorf("r=%v: kernel[%d] = %v != kernel[%d] = %v", r, i, kernel[i], n-1-i, kernel[n-1-i])
			}
		}
	}
}

func TestGaussianKernelPeak(t *testing.T) {
	kernel := GaussianKernel(5)
	center := len(kernel) / 2
	for i := 1; i <= center; i++ {
		if kernel[center-i] >= kernel[center-i+1] {
			t.Errorf("weights not increasing toward center at %d", center-i)
		}
	}
}

func TestGaussianKernelSigma(t *testing.T) {
	// Ratio of adjacent weights is exp(-(2x+1)/(2σ²)).
	const r = 4
	kernel := GaussianKernel(r)
	center := len(kernel) / 2
	sigma := Sigma(r)
	want := math.Exp(-1 / (2 * sigma * sigma))
	got := float64(kernel[center+1]) / float64(kernel[center])
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("kernel[c+1]/kernel[c] = %v, want %v", got, want)
	}
	if math.Abs(Sigma(1)-1.0) > 1e-12 || math.Abs(Sigma(25)-10.6) > 1e-12 {
		t.Errorf("Sigma(1)=%v Sigma(25)=%v", Sigma(1), Sigma(25))
	}
}

func TestCachedGaussianKernel(t *testing.T) {
	a := CachedGaussianKernel(3.5)
	b := CachedGaussianKernel(3.5)
	if &a[0] != &b[0] {
		t.Error("expected the cached slice to be reused")
	}
	direct := GaussianKernel(3.5)
	for i := range direct {
		if a[i] != direct[i] {
			t.Fatalf("cached kernel differs at %d", i)
		}
	}
}

func TestKernelCacheEviction(t *testing.T) {
	c := newKernelCache(4)
	for i := range 10 {
		c.get(float32(i + 1))
	}
	if len(c.cache) > 4 {
		t.Errorf("cache holds %d entries, max 4", len(c.cache))
	}
}

func TestValidateRadius(t *testing.T) {
	valid := []float32{1.0, 1.5, 12, 25.0}
	for _, r := range valid {
		if err := ValidateRadius(r); err != nil {
			t.Errorf("ValidateRadius(%v) = %v", r, err)
		}
	}
	invalid := []float32{0, 0.5, 0.999, 25.001, 30, -1, float32(math.NaN()), float32(math.Inf(1))}
	for _, r := range invalid {
		if err := ValidateRadius(r); !errors.Is(err, ErrRadiusOutOfRange) {
			t.Errorf("ValidateRadius(%v) = %v, want ErrRadiusOutOfRange", r, err)
		}
	}
}

func TestPackKernel(t *testing.T) {
	kernel := GaussianKernel(25)
	data, err := PackKernel(kernel)
	if err != nil {
		t.Fatalf("PackKernel: %v", err)
	}
	if len(data) != KernelUniformSize || KernelUniformSize != 208 {
		t.Fatalf("len = %d, want 208", len(data))
	}
	for i := range MaxKernelTaps {
		got := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		var want float32
		if i < len(kernel) {
			want = kernel[i]
		}
		if got != want {
			t.Errorf("tap %d = %v, want %v", i, got, want)
		}
	}

	if _, err := PackKernel(make([]float32, MaxKernelTaps+1)); !errors.Is(err, ErrKernelTooLong) {
		t.Errorf("oversized kernel: err = %v, want ErrKernelTooLong", err)
	}
}

func TestPackRadius(t *testing.T) {
	tests := []struct {
		radius float32
		want   int32
	}{
		{1, 1},
		{1.01, 2},
		{12.5, 13},
		{25, 25},
	}
	for _, tt := range tests {
		data := PackRadius(tt.radius)
		if len(data) != RadiusPushSize {
			t.Fatalf("len = %d, want %d", len(data), RadiusPushSize)
		}
		if got := int32(binary.LittleEndian.Uint32(data)); got != tt.want {
			t.Errorf("PackRadius(%v) = %d, want %d", tt.radius, got, tt.want)
		}
	}
}
