// Package gpu is the Vulkan compute execution layer behind ggfx.
//
// It owns every native object the image effects need and nothing more:
// one instance, one physical device, one logical device with a single
// compute queue, a resettable command pool and a small descriptor pool
// shared by all pipelines.
//
// # Architecture Overview
//
//	DeviceContext ──> Buffer / Image / SharedMemory ──> ComputePipeline
//	      │                                                   │
//	      └──────────── CommandBuffer (record, submit, wait) ─┘
//
// Key components:
//
//   - DeviceContext: instance, first compute-capable device, queue, pools,
//     workgroup tile size and memory-type lookup
//   - Buffer: host-visible or device-local memory bound once at creation
//   - Image: RGBA8 2D image with a tracked Layout and an optional sampler
//   - SharedMemory: refcounted exportable allocation handed to the host
//   - ComputePipeline: one kernel, its descriptor set and push constants
//   - ShaderSource: provider of SPIR-V words for a ShaderID
//
// # Layouts
//
// Every image carries its current Layout. The only way to change it is
// Image.TransitionLayout, which records a pipeline barrier built from the
// fixed (access, stage) pair of each Layout. Passing preserveData=false
// records the barrier as if the image were undefined so the driver may
// discard its contents.
//
// # Synchronization
//
// Nothing in this package is asynchronous. Commands are submitted to the
// single queue and the caller blocks on vkQueueWaitIdle. No fences or
// semaphores are used on the compute path.
//
// # Lifetime
//
// Dependent objects keep a non-owning pointer to their DeviceContext.
// They must be destroyed before the context. Destroy methods are
// idempotent and null the handles they release.
package gpu
