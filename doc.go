// Package ggfx applies image effects with Vulkan compute shaders.
//
// # Overview
//
// A Processor owns one Vulkan device with a single compute queue and three
// kernels: a 3x3 color matrix, used for hue rotation and saturation, and a
// separable Gaussian blur split into a horizontal and a vertical pass.
// Results are written into externally shareable images that a host can
// import without a copy.
//
// # Quick Start
//
//	import "github.com/gogpu/ggfx"
//
//	p, err := ggfx.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	src, _ := ggfx.LoadImage("in.png")
//	_ = p.Configure(src, 1)
//	_ = p.Blur(8, 0)
//
//	out, _ := p.ReadOutput(0)
//	_ = out.SaveImage("out.png")
//
// # Execution Model
//
// Every effect records a fresh command sequence into one command buffer,
// submits it and blocks until the queue is idle. There is no pipelining
// and no cancellation. A Processor must not be used from several
// goroutines at once.
//
// # Outputs
//
// Configure allocates the requested number of output slots. Each slot is
// backed by a SharedMemory whose reference count is shared by the
// processor and any host importer. Output returns it; ReadOutput copies a
// slot back to host memory.
//
// # Kernels
//
// By default the kernels are compiled from embedded WGSL with naga. Use
// WithShaderSource and NewDirSource to load precompiled SPIR-V instead.
package ggfx

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
