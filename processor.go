package ggfx

import (
	"fmt"

	"github.com/gogpu/ggfx/internal/filter"
	"github.com/gogpu/ggfx/internal/gpu"
	"github.com/gogpu/ggfx/internal/image"
)

// Blur radius limits.
const (
	MinBlurRadius = filter.MinBlurRadius
	MaxBlurRadius = filter.MaxBlurRadius
)

// Processor runs the image effects on one Vulkan compute queue.
//
// Every operation records into a single reusable command buffer, submits
// it and blocks until the queue is idle. A Processor is not safe for
// concurrent use; callers serialize access.
type Processor struct {
	ctx *gpu.DeviceContext
	cmd *gpu.CommandBuffer

	colorMatrix *gpu.ComputePipeline
	blurH       *gpu.ComputePipeline
	blurV       *gpu.ComputePipeline
	kernel      *gpu.Buffer

	// Per-configuration resources.
	input   *gpu.Image
	scratch *gpu.Image
	staging *gpu.Image
	shared  []*gpu.SharedMemory
	outputs []*gpu.Image

	closed bool
}

// New opens a device, allocates the command buffer and builds the three
// kernels and the blur kernel uniform buffer.
func New(opts ...Option) (*Processor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, err := gpu.NewDeviceContext(gpu.Options{Debug: o.debug, ApplicationName: o.appName})
	if err != nil {
		return nil, fmt.Errorf("ggfx: create device: %w", err)
	}
	p := &Processor{ctx: ctx}

	if p.cmd, err = ctx.AllocateCommandBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("ggfx: allocate command buffer: %w", err)
	}

	shaders := o.shaderSource()
	if p.colorMatrix, err = gpu.NewComputePipeline(ctx, shaders, gpu.ShaderColorMatrix,
		filter.ColorMatrixPushSize, false); err != nil {
		p.Close()
		return nil, err
	}
	if p.kernel, err = gpu.NewBuffer(ctx, filter.KernelUniformSize,
		gpu.UsageUniform, gpu.MemoryHostVisible); err != nil {
		p.Close()
		return nil, fmt.Errorf("ggfx: kernel buffer: %w", err)
	}
	if p.blurH, err = gpu.NewComputePipeline(ctx, shaders, gpu.ShaderBlurHorizontal,
		filter.RadiusPushSize, true); err != nil {
		p.Close()
		return nil, err
	}
	if p.blurV, err = gpu.NewComputePipeline(ctx, shaders, gpu.ShaderBlurVertical,
		filter.RadiusPushSize, true); err != nil {
		p.Close()
		return nil, err
	}

	info := ctx.Info()
	Logger().Info("ggfx: processor ready",
		"device", info.Name,
		"type", info.Type,
		"api", info.APIVersion,
		"workgroup", info.WorkgroupSize)
	return p, nil
}

// Info describes the device the processor runs on.
func (p *Processor) Info() DeviceInfo {
	if p.ctx == nil {
		return DeviceInfo{}
	}
	return p.ctx.Info()
}

// Configure uploads src as the input image and allocates the scratch and
// staging images plus outputCount shareable output images of the same
// size. src is validated before anything is released, so a rejected
// source keeps the previous configuration. Otherwise the previous
// configuration is released first, and SharedMemory handles obtained from
// Output before the call no longer receive results.
func (p *Processor) Configure(src PixelSource, outputCount int) error {
	if p.closed {
		return ErrClosed
	}
	if outputCount < 1 {
		return fmt.Errorf("%w: got %d", ErrOutputCount, outputCount)
	}
	if err := gpu.ValidatePixelSource(src); err != nil {
		return fmt.Errorf("ggfx: configure: %w", err)
	}
	p.release()

	if err := p.configure(src, outputCount); err != nil {
		p.release()
		return fmt.Errorf("ggfx: configure: %w", err)
	}
	Logger().Info("ggfx: processor configured",
		"width", p.input.Width(),
		"height", p.input.Height(),
		"outputs", outputCount)
	return nil
}

func (p *Processor) configure(src PixelSource, outputCount int) error {
	var err error
	if p.input, err = gpu.NewImageFromPixels(p.ctx, src); err != nil {
		return err
	}
	w, h := p.input.Width(), p.input.Height()
	if p.scratch, err = gpu.NewImage(p.ctx, w, h, gpu.UsageStorage|gpu.UsageSampled); err != nil {
		return err
	}
	if p.staging, err = gpu.NewImage(p.ctx, w, h, gpu.UsageStorage|gpu.UsageTransferSrc); err != nil {
		return err
	}

	for range outputCount {
		mem, err := gpu.NewSharedMemory(p.ctx, w, h)
		if err != nil {
			return err
		}
		p.shared = append(p.shared, mem)

		out, err := gpu.NewImageFromExternal(p.ctx, mem)
		if err != nil {
			return err
		}
		p.outputs = append(p.outputs, out)
	}
	return nil
}

// OutputCount returns the number of configured output slots.
func (p *Processor) OutputCount() int {
	return len(p.outputs)
}

// RotateHue rotates the hue of the input by angle radians and writes the
// result to output slot outputIndex.
func (p *Processor) RotateHue(angle float32, outputIndex int) error {
	return p.applyColorMatrix("rotate hue", filter.HueRotation(angle), outputIndex)
}

// Saturate scales the saturation of the input by level (0 gives gray,
// 1 keeps the input) and writes the result to output slot outputIndex.
func (p *Processor) Saturate(level float32, outputIndex int) error {
	return p.applyColorMatrix("saturate", filter.Saturation(level), outputIndex)
}

// ApplyColorMatrix transforms the rgb channels of the input by m and
// writes the result to output slot outputIndex. Alpha passes through.
func (p *Processor) ApplyColorMatrix(m ColorMatrix, outputIndex int) error {
	return p.applyColorMatrix("color matrix", m, outputIndex)
}

func (p *Processor) applyColorMatrix(op string, m ColorMatrix, outputIndex int) error {
	if err := p.validate(outputIndex); err != nil {
		return err
	}
	push := m.Pack()
	out := p.outputs[outputIndex]

	return p.run(op, func(cmd *gpu.CommandBuffer) error {
		p.staging.TransitionLayout(cmd, gpu.LayoutGeneral, false)
		if err := p.colorMatrix.RecordComputeCommands(cmd, push, p.input, p.staging, nil); err != nil {
			return err
		}
		p.staging.TransitionLayout(cmd, gpu.LayoutTransferSrc, true)
		cmd.CopyImage(p.staging, out)
		return nil
	})
}

// Blur applies a separable Gaussian blur of the given radius and writes
// the result to output slot outputIndex. radius must lie in
// [MinBlurRadius, MaxBlurRadius]. The blurred output is opaque.
func (p *Processor) Blur(radius float32, outputIndex int) error {
	if p.closed {
		return ErrClosed
	}
	if err := filter.ValidateRadius(radius); err != nil {
		return err
	}
	if err := p.validate(outputIndex); err != nil {
		return err
	}

	weights, err := filter.PackKernel(filter.CachedGaussianKernel(radius))
	if err != nil {
		return err
	}
	if err := p.kernel.CopyFrom(weights); err != nil {
		return fmt.Errorf("ggfx: blur: upload kernel: %w", err)
	}
	push := filter.PackRadius(radius)
	out := p.outputs[outputIndex]

	return p.run("blur", func(cmd *gpu.CommandBuffer) error {
		p.scratch.TransitionLayout(cmd, gpu.LayoutGeneral, false)
		if err := p.blurH.RecordComputeCommands(cmd, push, p.input, p.scratch, p.kernel); err != nil {
			return err
		}
		p.scratch.TransitionLayout(cmd, gpu.LayoutShaderReadOnly, true)
		p.staging.TransitionLayout(cmd, gpu.LayoutGeneral, false)
		if err := p.blurV.RecordComputeCommands(cmd, push, p.scratch, p.staging, p.kernel); err != nil {
			return err
		}
		p.staging.TransitionLayout(cmd, gpu.LayoutTransferSrc, true)
		cmd.CopyImage(p.staging, out)
		return nil
	})
}

// Output returns the shareable memory behind output slot i. The
// processor keeps its own reference; a host that holds the handle past
// the next Configure must Acquire it and Release it when done. Every host
// reference must be released before Close destroys the device.
func (p *Processor) Output(i int) (*SharedMemory, error) {
	if err := p.validate(i); err != nil {
		return nil, err
	}
	return p.shared[i], nil
}

// ReadOutput copies output slot i back to the host as a packed RGBA8 image.
func (p *Processor) ReadOutput(i int) (*ImageBuf, error) {
	if err := p.validate(i); err != nil {
		return nil, err
	}
	out := p.outputs[i]
	packed, err := p.readPacked(out)
	if err != nil {
		return nil, err
	}
	w := int(out.Width())
	return image.FromRaw(packed, w, int(out.Height()), image.FormatRGBA8, image.FormatRGBA8.RowBytes(w))
}

// ReadOutputInto copies output slot i into dst, which must be RGBA8 and
// have the configured size. Row padding in dst is left untouched.
func (p *Processor) ReadOutputInto(i int, dst *ImageBuf) error {
	if err := p.validate(i); err != nil {
		return err
	}
	out := p.outputs[i]
	w, h := int(out.Width()), int(out.Height())
	if dst.Width() != w || dst.Height() != h || dst.Format() != image.FormatRGBA8 {
		return fmt.Errorf("%w: want %dx%d %v, got %dx%d %v", ErrDimensionMismatch,
			w, h, image.FormatRGBA8, dst.Width(), dst.Height(), dst.Format())
	}

	packed, err := p.readPacked(out)
	if err != nil {
		return err
	}
	rowBytes := image.FormatRGBA8.RowBytes(w)
	for y := range h {
		copy(dst.RowBytes(y), packed[y*rowBytes:(y+1)*rowBytes])
	}
	return nil
}

// readPacked copies out into a tightly packed host slice and leaves it
// back in LayoutTransferDst.
func (p *Processor) readPacked(out *gpu.Image) ([]byte, error) {
	size := image.FormatRGBA8.ImageBytes(int(out.Width()), int(out.Height()))
	readback, err := gpu.NewBuffer(p.ctx, uint64(size), gpu.UsageReadback, gpu.MemoryHostVisible)
	if err != nil {
		return nil, fmt.Errorf("ggfx: read output: %w", err)
	}
	defer readback.Destroy()

	err = p.run("read output", func(cmd *gpu.CommandBuffer) error {
		out.TransitionLayout(cmd, gpu.LayoutTransferSrc, true)
		cmd.CopyImageToBuffer(out, readback)
		out.TransitionLayout(cmd, gpu.LayoutTransferDst, true)
		return nil
	})
	if err != nil {
		return nil, err
	}

	packed := make([]byte, size)
	if err := readback.CopyTo(packed); err != nil {
		return nil, fmt.Errorf("ggfx: read output: %w", err)
	}
	return packed, nil
}

// validate checks the processor state and an output slot index.
func (p *Processor) validate(outputIndex int) error {
	switch {
	case p.closed:
		return ErrClosed
	case p.input == nil:
		return ErrNotConfigured
	case outputIndex < 0 || outputIndex >= len(p.outputs):
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutputIndex, outputIndex, len(p.outputs))
	}
	return nil
}

// layoutSnapshot remembers the tracked layouts of a set of images.
type layoutSnapshot struct {
	images  []*gpu.Image
	layouts []gpu.Layout
}

func snapshotLayouts(images ...*gpu.Image) layoutSnapshot {
	s := layoutSnapshot{}
	for _, img := range images {
		if img == nil {
			continue
		}
		s.images = append(s.images, img)
		s.layouts = append(s.layouts, img.Layout())
	}
	return s
}

// restore puts every image back to its remembered layout.
func (s layoutSnapshot) restore() {
	for i, img := range s.images {
		img.RestoreLayout(s.layouts[i])
	}
}

// run records one command sequence, submits it and waits. A sequence
// whose recording or queue submission failed never executed, so the
// tracked layouts it changed are put back. A failed wait after a
// successful submission keeps the recorded layouts.
func (p *Processor) run(op string, record func(cmd *gpu.CommandBuffer) error) (err error) {
	snap := snapshotLayouts(append([]*gpu.Image{p.input, p.scratch, p.staging}, p.outputs...)...)
	defer func() {
		if err != nil && p.cmd.State() != gpu.CommandStateInitial {
			snap.restore()
		}
	}()

	if err := p.cmd.Reset(); err != nil {
		return fmt.Errorf("ggfx: %s: %w", op, err)
	}
	if err := p.cmd.Begin(true); err != nil {
		return fmt.Errorf("ggfx: %s: %w", op, err)
	}
	if err := record(p.cmd); err != nil {
		return fmt.Errorf("ggfx: %s: %w", op, err)
	}
	if err := p.cmd.End(); err != nil {
		return fmt.Errorf("ggfx: %s: %w", op, err)
	}
	if err := p.ctx.Submit(p.cmd); err != nil {
		return fmt.Errorf("ggfx: %s: %w", op, err)
	}
	Logger().Debug("ggfx: submitted", "op", op)
	return nil
}

// release destroys the per-configuration resources. Each output image
// drops its reference to the shared memory, then the processor drops the
// creator reference.
func (p *Processor) release() {
	for _, out := range p.outputs {
		out.Destroy()
	}
	p.outputs = nil
	for i, mem := range p.shared {
		if err := mem.Release(); err != nil {
			Logger().Warn("ggfx: release output memory", "output", i, "err", err)
		}
	}
	p.shared = nil

	for _, img := range []*gpu.Image{p.staging, p.scratch, p.input} {
		if img != nil {
			img.Destroy()
		}
	}
	p.staging, p.scratch, p.input = nil, nil, nil
}

// Close waits for the queue, destroys every resource and then the device.
// Safe to call more than once.
func (p *Processor) Close() {
	if p.closed || p.ctx == nil {
		p.closed = true
		return
	}
	p.closed = true

	if err := p.ctx.WaitIdle(); err != nil {
		Logger().Warn("ggfx: wait idle on close", "err", err)
	}
	p.release()
	for _, pl := range []*gpu.ComputePipeline{p.blurV, p.blurH, p.colorMatrix} {
		if pl != nil {
			pl.Destroy()
		}
	}
	if p.kernel != nil {
		p.kernel.Destroy()
	}
	if p.cmd != nil {
		p.cmd.Free()
	}
	p.ctx.Destroy()
	p.ctx = nil
}
