package gpu

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Common buffer configurations.
const (
	// UsageUniform is a uniform buffer written from the host.
	UsageUniform = vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	// UsageStaging is a host-written transfer source.
	UsageStaging = vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	// UsageReadback is a host-read transfer destination.
	UsageReadback = vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)

	// MemoryHostVisible is host-visible, host-coherent memory.
	MemoryHostVisible = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	// MemoryDeviceLocal is device-local memory.
	MemoryDeviceLocal = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
)

// Buffer is a VkBuffer with its own memory allocation, bound at offset 0
// immediately after creation.
type Buffer struct {
	ctx        *DeviceContext
	size       uint64
	usage      vk.BufferUsageFlags
	properties vk.MemoryPropertyFlags
	buffer     vk.Buffer
	memory     vk.DeviceMemory
}

// NewBuffer creates a buffer of size bytes and binds freshly allocated
// memory with the requested properties.
func NewBuffer(ctx *DeviceContext, size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: buffer size 0", ErrInvalidSize)
	}
	b := &Buffer{ctx: ctx, size: size, usage: usage, properties: properties}

	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if err := check("vkCreateBuffer", vk.CreateBuffer(ctx.device, &info, nil, &b.buffer)); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.device, b.buffer, &reqs)
	reqs.Deref()

	typeIndex, err := ctx.FindMemoryType(reqs.MemoryTypeBits, properties)
	if err != nil {
		b.Destroy()
		return nil, err
	}
	alloc := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIndex,
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(ctx.device, &alloc, nil, &b.memory)); err != nil {
		b.Destroy()
		return nil, err
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(ctx.device, b.buffer, b.memory, 0)); err != nil {
		b.Destroy()
		return nil, err
	}

	slogger().Debug("gpu: buffer created", "size", size, "usage", uint32(usage), "memoryType", typeIndex)
	return b, nil
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Handle returns the native buffer.
func (b *Buffer) Handle() vk.Buffer { return b.buffer }

// CopyFrom overwrites the whole buffer with the first Size bytes of data.
// The buffer must be host-visible and host-coherent.
func (b *Buffer) CopyFrom(data []byte) error {
	if err := b.mappable(); err != nil {
		return err
	}
	if uint64(len(data)) < b.size {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrShortData, len(data), b.size)
	}
	var ptr unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(b.ctx.device, b.memory, 0, vk.DeviceSize(b.size), 0, &ptr)); err != nil {
		return err
	}
	vk.Memcopy(ptr, data[:b.size])
	vk.UnmapMemory(b.ctx.device, b.memory)
	return nil
}

// CopyTo reads the whole buffer into dst, which must hold at least Size bytes.
func (b *Buffer) CopyTo(dst []byte) error {
	if err := b.mappable(); err != nil {
		return err
	}
	if uint64(len(dst)) < b.size {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrShortData, len(dst), b.size)
	}
	var ptr unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(b.ctx.device, b.memory, 0, vk.DeviceSize(b.size), 0, &ptr)); err != nil {
		return err
	}
	copy(dst, unsafe.Slice((*byte)(ptr), b.size))
	vk.UnmapMemory(b.ctx.device, b.memory)
	return nil
}

func (b *Buffer) mappable() error {
	if b.buffer == vk.Buffer(vk.NullHandle) {
		return ErrDestroyed
	}
	if b.properties&MemoryHostVisible != MemoryHostVisible {
		return fmt.Errorf("%w: buffer memory is not host visible", ErrNoMemoryType)
	}
	return nil
}

// Destroy releases the buffer and its memory. Safe to call more than once.
func (b *Buffer) Destroy() {
	if b.buffer != vk.Buffer(vk.NullHandle) {
		vk.DestroyBuffer(b.ctx.device, b.buffer, nil)
		b.buffer = vk.Buffer(vk.NullHandle)
	}
	if b.memory != vk.DeviceMemory(vk.NullHandle) {
		vk.FreeMemory(b.ctx.device, b.memory, nil)
		b.memory = vk.DeviceMemory(vk.NullHandle)
	}
}
