package gpu

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// CommandState is the recording state of a CommandBuffer.
type CommandState int

const (
	// CommandStateInitial means the buffer is empty and may begin recording.
	CommandStateInitial CommandState = iota
	// CommandStateRecording means commands are being recorded.
	CommandStateRecording
	// CommandStateExecutable means recording ended and the buffer may be submitted.
	CommandStateExecutable
	// CommandStateFreed means the buffer was returned to its pool.
	CommandStateFreed
)

// String returns the string representation of CommandState.
func (s CommandState) String() string {
	switch s {
	case CommandStateInitial:
		return "Initial"
	case CommandStateRecording:
		return "Recording"
	case CommandStateExecutable:
		return "Executable"
	case CommandStateFreed:
		return "Freed"
	default:
		return fmt.Sprintf("CommandState(%d)", int(s))
	}
}

// CommandBuffer is a primary command buffer allocated from the context's
// resettable pool.
//
// Recording methods do not return errors. The first failure is kept and
// returned by End, after which the buffer must be Reset before reuse.
// This keeps a partially recorded sequence from ever being submitted.
type CommandBuffer struct {
	ctx    *DeviceContext
	handle vk.CommandBuffer
	state  CommandState
	err    error
}

// AllocateCommandBuffer allocates a primary command buffer.
func (c *DeviceContext) AllocateCommandBuffer() (*CommandBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(c.device, &info, handles)); err != nil {
		return nil, err
	}
	return &CommandBuffer{ctx: c, handle: handles[0]}, nil
}

// Handle returns the native command buffer.
func (cb *CommandBuffer) Handle() vk.CommandBuffer { return cb.handle }

// State returns the current recording state.
func (cb *CommandBuffer) State() CommandState { return cb.state }

// Begin starts recording. An executable buffer is implicitly reset.
func (cb *CommandBuffer) Begin(oneTimeSubmit bool) error {
	if cb.state != CommandStateInitial && cb.state != CommandStateExecutable {
		return fmt.Errorf("%w: begin in state %s", ErrCommandState, cb.state)
	}
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if oneTimeSubmit {
		info.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(cb.handle, &info)); err != nil {
		return err
	}
	cb.state = CommandStateRecording
	cb.err = nil
	return nil
}

// End finishes recording. It returns the first recording error, if any.
func (cb *CommandBuffer) End() error {
	if cb.state != CommandStateRecording {
		return fmt.Errorf("%w: end in state %s", ErrCommandState, cb.state)
	}
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(cb.handle)); err != nil {
		return err
	}
	if cb.err != nil {
		return cb.err
	}
	cb.state = CommandStateExecutable
	return nil
}

// Reset discards recorded commands and returns the buffer to Initial.
func (cb *CommandBuffer) Reset() error {
	if cb.state == CommandStateFreed {
		return fmt.Errorf("%w: reset in state %s", ErrCommandState, cb.state)
	}
	if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(cb.handle, 0)); err != nil {
		return err
	}
	cb.state = CommandStateInitial
	cb.err = nil
	return nil
}

// Free returns the buffer to its pool. Safe to call more than once.
func (cb *CommandBuffer) Free() {
	if cb.state == CommandStateFreed {
		return
	}
	vk.FreeCommandBuffers(cb.ctx.device, cb.ctx.commandPool, 1, []vk.CommandBuffer{cb.handle})
	cb.handle = vk.CommandBuffer(vk.NullHandle)
	cb.state = CommandStateFreed
}

// recording reports whether commands may be appended, remembering a state
// error for End otherwise.
func (cb *CommandBuffer) recording(op string) bool {
	if cb.err != nil {
		return false
	}
	if cb.state != CommandStateRecording {
		cb.err = fmt.Errorf("%w: %s in state %s", ErrCommandState, op, cb.state)
		return false
	}
	return true
}

// fail remembers the first recording error.
func (cb *CommandBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

// PipelineBarrier records an image memory barrier. It implements
// BarrierRecorder.
func (cb *CommandBuffer) PipelineBarrier(b Barrier) {
	if !cb.recording("pipeline barrier") {
		return
	}
	slogger().Debug("gpu: barrier",
		"old", b.OldLayout, "new", b.NewLayout,
		"srcAccess", uint32(b.SrcAccess), "dstAccess", uint32(b.DstAccess))
	vk.CmdPipelineBarrier(cb.handle,
		b.SrcStage, b.DstStage,
		0, 0, nil, 0, nil, 1,
		[]vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       b.SrcAccess,
			DstAccessMask:       b.DstAccess,
			OldLayout:           b.OldLayout.VkLayout(),
			NewLayout:           b.NewLayout.VkLayout(),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               b.Image,
			SubresourceRange:    colorSubresourceRange(),
		}})
}

// CopyBufferToImage copies tightly or stride-packed RGBA8 rows from src
// into dst, which must be in LayoutTransferDst. rowLength is in texels.
func (cb *CommandBuffer) CopyBufferToImage(src *Buffer, dst *Image, rowLength uint32) {
	if !cb.recording("copy buffer to image") {
		return
	}
	if dst.layout != LayoutTransferDst {
		cb.fail(fmt.Errorf("%w: copy destination in layout %s", ErrCommandState, dst.layout))
		return
	}
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   rowLength,
		BufferImageHeight: 0,
		ImageSubresource:  colorSubresourceLayers(),
		ImageOffset:       vk.Offset3D{},
		ImageExtent:       dst.extent(),
	}
	vk.CmdCopyBufferToImage(cb.handle, src.buffer, dst.image,
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

// CopyImageToBuffer copies src, which must be in LayoutTransferSrc, into
// dst as tightly packed RGBA8 rows.
func (cb *CommandBuffer) CopyImageToBuffer(src *Image, dst *Buffer) {
	if !cb.recording("copy image to buffer") {
		return
	}
	if src.layout != LayoutTransferSrc {
		cb.fail(fmt.Errorf("%w: copy source in layout %s", ErrCommandState, src.layout))
		return
	}
	region := vk.BufferImageCopy{
		ImageSubresource: colorSubresourceLayers(),
		ImageExtent:      src.extent(),
	}
	vk.CmdCopyImageToBuffer(cb.handle, src.image,
		vk.ImageLayoutTransferSrcOptimal, dst.buffer, 1, []vk.BufferImageCopy{region})
}

// CopyImage records a full-extent copy from src (LayoutTransferSrc) to
// dst (LayoutTransferDst). Both images must have the same size.
func (cb *CommandBuffer) CopyImage(src, dst *Image) {
	if !cb.recording("copy image") {
		return
	}
	if src.width != dst.width || src.height != dst.height {
		cb.fail(fmt.Errorf("%w: copy %dx%d into %dx%d", ErrInvalidSize,
			src.width, src.height, dst.width, dst.height))
		return
	}
	if src.layout != LayoutTransferSrc || dst.layout != LayoutTransferDst {
		cb.fail(fmt.Errorf("%w: copy %s -> %s", ErrCommandState, src.layout, dst.layout))
		return
	}
	region := vk.ImageCopy{
		SrcSubresource: colorSubresourceLayers(),
		SrcOffset:      vk.Offset3D{},
		DstSubresource: colorSubresourceLayers(),
		DstOffset:      vk.Offset3D{},
		Extent:         src.extent(),
	}
	vk.CmdCopyImage(cb.handle,
		src.image, vk.ImageLayoutTransferSrcOptimal,
		dst.image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{region})
}

func colorSubresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

func colorSubresourceLayers() vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}
