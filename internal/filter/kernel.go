package filter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

// Blur radius limits, inclusive.
const (
	MinBlurRadius = 1.0
	MaxBlurRadius = 25.0
)

// MaxKernelTaps is the capacity of the weights uniform block. A radius of
// 25 needs 51 taps.
const MaxKernelTaps = 52

// Parameter block sizes in bytes.
const (
	KernelUniformSize   = MaxKernelTaps * 4
	RadiusPushSize      = 4
	ColorMatrixPushSize = 48
)

var (
	// ErrRadiusOutOfRange is returned for a blur radius outside
	// [MinBlurRadius, MaxBlurRadius] or NaN.
	ErrRadiusOutOfRange = errors.New("filter: blur radius out of range")

	// ErrKernelTooLong is returned when a kernel does not fit the uniform block.
	ErrKernelTooLong = errors.New("filter: kernel exceeds uniform capacity")
)

// ValidateRadius checks radius against the supported range.
func ValidateRadius(radius float32) error {
	if !(radius >= MinBlurRadius && radius <= MaxBlurRadius) {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrRadiusOutOfRange, radius, MinBlurRadius, MaxBlurRadius)
	}
	return nil
}

// KernelRadius returns the integer half-width ceil(radius) used by the
// blur kernels.
func KernelRadius(radius float32) int {
	return int(math.Ceil(float64(radius)))
}

// KernelLength returns 2*ceil(radius)+1.
func KernelLength(radius float32) int {
	return 2*KernelRadius(radius) + 1
}

// Sigma returns the standard deviation 0.4*radius + 0.6.
func Sigma(radius float32) float64 {
	return 0.4*float64(radius) + 0.6
}

// GaussianKernel generates a normalized 1D Gaussian kernel of length
// 2*ceil(radius)+1 with weights proportional to exp(-x²/(2σ²)).
//
// For radius <= 0, returns a single-element kernel [1.0] (identity).
func GaussianKernel(radius float32) []float32 {
	if !(radius > 0) {
		return []float32{1.0}
	}

	half := KernelRadius(radius)
	sigma := Sigma(radius)
	twoSigmaSq := 2 * sigma * sigma

	weights := make([]float64, 2*half+1)
	sum := 0.0
	for i := range weights {
		x := float64(i - half)
		weights[i] = math.Exp(-(x * x) / twoSigmaSq)
		sum += weights[i]
	}

	kernel := make([]float32, len(weights))
	for i, w := range weights {
		kernel[i] = float32(w / sum)
	}
	return kernel
}

// kernelCache memoizes kernels by the exact float32 radius.
type kernelCache struct {
	mu     sync.RWMutex
	cache  map[uint32][]float32
	maxLen int
}

var defaultKernelCache = newKernelCache(64)

func newKernelCache(maxLen int) *kernelCache {
	return &kernelCache{
		cache:  make(map[uint32][]float32),
		maxLen: maxLen,
	}
}

func (c *kernelCache) get(radius float32) []float32 {
	key := math.Float32bits(radius)

	c.mu.RLock()
	if kernel, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return kernel
	}
	c.mu.RUnlock()

	kernel := GaussianKernel(radius)

	c.mu.Lock()
	if len(c.cache) >= c.maxLen {
		// Drop half the entries; radii rarely repeat beyond a few values.
		count := 0
		for k := range c.cache {
			delete(c.cache, k)
			count++
			if count >= c.maxLen/2 {
				break
			}
		}
	}
	c.cache[key] = kernel
	c.mu.Unlock()

	return kernel
}

// CachedGaussianKernel returns a shared GaussianKernel for radius. The
// result must not be modified.
func CachedGaussianKernel(radius float32) []float32 {
	return defaultKernelCache.get(radius)
}

// PackKernel lays kernel out as the weights uniform block: MaxKernelTaps
// little-endian float32 values, zero padded.
func PackKernel(kernel []float32) ([]byte, error) {
	if len(kernel) > MaxKernelTaps {
		return nil, fmt.Errorf("%w: %d taps", ErrKernelTooLong, len(kernel))
	}
	data := make([]byte, KernelUniformSize)
	for i, w := range kernel {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(w))
	}
	return data, nil
}

// PackRadius returns the blur push constant: ceil(radius) as a
// little-endian int32.
func PackRadius(radius float32) []byte {
	data := make([]byte, RadiusPushSize)
	binary.LittleEndian.PutUint32(data, uint32(int32(KernelRadius(radius))))
	return data
}
