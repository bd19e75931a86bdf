package gpu

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Environment errors. These are returned by NewDeviceContext and are not
// recoverable by retrying.
var (
	// ErrNoVulkan is returned when the Vulkan loader cannot be initialized.
	ErrNoVulkan = errors.New("gpu: vulkan loader unavailable")

	// ErrUnsupportedAPIVersion is returned when the instance version is not 1.x.
	ErrUnsupportedAPIVersion = errors.New("gpu: unsupported vulkan api version")

	// ErrNoComputeDevice is returned when no physical device exposes a
	// queue family with compute support.
	ErrNoComputeDevice = errors.New("gpu: no device with a compute queue")

	// ErrWorkgroupTooSmall is returned when the device limits leave no room
	// for a workgroup tile of at least 4x4 invocations.
	ErrWorkgroupTooSmall = errors.New("gpu: device workgroup limits below 4")
)

// Resource errors.
var (
	// ErrNoMemoryType is returned when no memory type satisfies a request.
	ErrNoMemoryType = errors.New("gpu: no suitable memory type")

	// ErrInvalidSize is returned for zero-sized buffers or images.
	ErrInvalidSize = errors.New("gpu: invalid size")

	// ErrShortData is returned when a host copy source is smaller than the buffer.
	ErrShortData = errors.New("gpu: source data shorter than buffer")

	// ErrUnsupportedPixelFormat is returned when a pixel source is not RGBA8.
	ErrUnsupportedPixelFormat = errors.New("gpu: pixel format must be RGBA8")

	// ErrInvalidStride is returned when a pixel source row stride is not a
	// multiple of 4 or is shorter than a row.
	ErrInvalidStride = errors.New("gpu: row stride must be a multiple of 4")

	// ErrExternalMemory is returned when shared memory cannot back an image.
	ErrExternalMemory = errors.New("gpu: incompatible external memory")

	// ErrReleased is returned when a SharedMemory is used after its last release.
	ErrReleased = errors.New("gpu: shared memory already released")

	// ErrDestroyed is returned when operating on a destroyed object.
	ErrDestroyed = errors.New("gpu: object has been destroyed")
)

// Pipeline and shader errors.
var (
	// ErrUnknownShader is returned for a ShaderID no provider knows.
	ErrUnknownShader = errors.New("gpu: unknown shader")

	// ErrShaderCompile is returned when WGSL fails to compile to SPIR-V.
	ErrShaderCompile = errors.New("gpu: shader compilation failed")

	// ErrInvalidSPIRV is returned when bytecode is not a SPIR-V module.
	ErrInvalidSPIRV = errors.New("gpu: invalid SPIR-V bytecode")

	// ErrNotSampled is returned when a pipeline input has no sampler.
	ErrNotSampled = errors.New("gpu: input image is not sampled")

	// ErrMissingUniform is returned when a pipeline declared with a uniform
	// buffer binding is recorded without one.
	ErrMissingUniform = errors.New("gpu: pipeline requires a uniform buffer")

	// ErrUnexpectedUniform is returned when a uniform buffer is passed to a
	// pipeline without a uniform binding.
	ErrUnexpectedUniform = errors.New("gpu: pipeline has no uniform binding")

	// ErrImageLayout is returned when an image is recorded into a dispatch
	// from a tracked layout the kernel cannot access.
	ErrImageLayout = errors.New("gpu: image in wrong layout")

	// ErrPushConstantSize is returned when push constant data exceeds the
	// range declared by the pipeline layout.
	ErrPushConstantSize = errors.New("gpu: push constant data exceeds declared range")
)

// VkError reports a Vulkan call that returned a non-success status.
type VkError struct {
	// Call is the name of the failing entry point.
	Call string

	// Result is the status the driver returned.
	Result vk.Result
}

// Error implements the error interface.
func (e *VkError) Error() string {
	return fmt.Sprintf("gpu: %s failed: %v (%d)", e.Call, vk.Error(e.Result), int32(e.Result))
}

// Unwrap returns the vulkan-go error for the status.
func (e *VkError) Unwrap() error {
	return vk.Error(e.Result)
}

// check converts a vk.Result into an error, logging the call site and
// status on failure.
func check(call string, ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	slogger().Warn("vulkan call failed", "call", call, "result", int32(ret))
	return &VkError{Call: call, Result: ret}
}

// ErrCommandState is returned when a command buffer operation is not valid
// in the buffer's current CommandState.
var ErrCommandState = errors.New("gpu: invalid command buffer state")
