package ggfx

import "github.com/gogpu/ggfx/internal/gpu"

// Option configures a Processor during creation.
//
// Example:
//
//	// Embedded kernels, no validation
//	p, err := ggfx.New()
//
//	// Validation layer and precompiled kernels
//	p, err := ggfx.New(ggfx.WithDebug(true), ggfx.WithShaderSource(ggfx.NewDirSource("shaders")))
type Option func(*options)

// options holds optional configuration for Processor creation.
type options struct {
	debug   bool
	appName string
	shaders ShaderSource
}

// defaultOptions returns the default processor options.
func defaultOptions() options {
	return options{
		appName: "ggfx",
		shaders: nil, // embedded WGSL compiled on first use
	}
}

// WithDebug enables the Vulkan validation layer and forwards its reports
// to the logger set with SetLogger.
func WithDebug(enabled bool) Option {
	return func(o *options) {
		o.debug = enabled
	}
}

// WithShaderSource replaces the kernel bytecode provider. A nil source
// keeps the embedded kernels.
func WithShaderSource(s ShaderSource) Option {
	return func(o *options) {
		o.shaders = s
	}
}

// WithApplicationName sets the application name reported to the driver.
// An empty name keeps the default.
func WithApplicationName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.appName = name
		}
	}
}

func (o options) shaderSource() ShaderSource {
	if o.shaders == nil {
		return gpu.NewWGSLSource()
	}
	return o.shaders
}
