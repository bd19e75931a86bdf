package gpu

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/sys/unix"
)

// sharedHandleType is the external handle kind used to share memory.
const sharedHandleType = vk.ExternalMemoryHandleTypeOpaqueFdBit

// sharedUsage is the usage of every image bound to shared memory. The
// exporting and importing images must be created identically.
const sharedUsage = UsageSampled | UsageTransferSrc | UsageTransferDst

// SharedMemory is an exportable, reference-counted device allocation sized
// for one RGBA8 image. It is the handle given to the host for an output
// slot.
//
// The creator holds the first reference. Every Image imported from it
// acquires one more and releases it on Destroy. The allocation is freed
// when the last reference is released.
type SharedMemory struct {
	ctx        *DeviceContext
	width      uint32
	height     uint32
	size       vk.DeviceSize
	memoryType uint32

	// owner is the image the exporting allocation is dedicated to.
	owner  vk.Image
	memory vk.DeviceMemory

	mu   sync.Mutex
	refs int
}

// NewSharedMemory allocates exportable memory for a width×height image.
func NewSharedMemory(ctx *DeviceContext, width, height uint32) (*SharedMemory, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: shared memory %dx%d", ErrInvalidSize, width, height)
	}
	m := &SharedMemory{ctx: ctx, width: width, height: height, refs: 1}

	owner := &Image{ctx: ctx, width: width, height: height, usage: sharedUsage}
	ext := externalImageInfo()
	err := owner.create(unsafe.Pointer(ext.Ref()))
	ext.Free()
	if err != nil {
		return nil, err
	}
	m.owner = owner.image

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(ctx.device, m.owner, &reqs)
	reqs.Deref()

	typeIndex, err := ctx.FindMemoryType(reqs.MemoryTypeBits, MemoryDeviceLocal)
	if err != nil {
		m.free()
		return nil, err
	}
	m.size = reqs.Size
	m.memoryType = typeIndex

	dedicated := vk.MemoryDedicatedAllocateInfo{
		SType: vk.StructureTypeMemoryDedicatedAllocateInfo,
		Image: m.owner,
	}
	dedicatedRef, _ := dedicated.PassRef()
	defer dedicated.Free()
	export := vk.ExportMemoryAllocateInfo{
		SType:       vk.StructureTypeExportMemoryAllocateInfo,
		PNext:       unsafe.Pointer(dedicatedRef),
		HandleTypes: vk.ExternalMemoryHandleTypeFlags(sharedHandleType),
	}
	exportRef, _ := export.PassRef()
	defer export.Free()

	alloc := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		PNext:           unsafe.Pointer(exportRef),
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIndex,
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(ctx.device, &alloc, nil, &m.memory)); err != nil {
		m.free()
		return nil, err
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(ctx.device, m.owner, m.memory, 0)); err != nil {
		m.free()
		return nil, err
	}

	slogger().Debug("gpu: shared memory exported", "width", width, "height", height, "size", uint64(m.size))
	return m, nil
}

func externalImageInfo() *vk.ExternalMemoryImageCreateInfo {
	info := &vk.ExternalMemoryImageCreateInfo{
		SType:       vk.StructureTypeExternalMemoryImageCreateInfo,
		HandleTypes: vk.ExternalMemoryHandleTypeFlags(sharedHandleType),
	}
	info.PassRef()
	return info
}

// Width returns the width of the image the memory was sized for.
func (m *SharedMemory) Width() uint32 { return m.width }

// Height returns the height of the image the memory was sized for.
func (m *SharedMemory) Height() uint32 { return m.height }

// Refs returns the current reference count.
func (m *SharedMemory) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

// Acquire adds a reference. It fails once the memory has been freed.
func (m *SharedMemory) Acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs <= 0 {
		return ErrReleased
	}
	m.refs++
	return nil
}

// Release drops a reference and frees the allocation when it was the last.
func (m *SharedMemory) Release() error {
	m.mu.Lock()
	if m.refs <= 0 {
		m.mu.Unlock()
		slogger().Warn("gpu: shared memory released too many times")
		return ErrReleased
	}
	m.refs--
	last := m.refs == 0
	m.mu.Unlock()

	if last {
		m.free()
	}
	return nil
}

// ExportFD returns a new file descriptor referring to the allocation. The
// caller owns the descriptor and must close it or hand it to an importer.
func (m *SharedMemory) ExportFD() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs <= 0 {
		return -1, ErrReleased
	}
	var fd int32
	ret := m.ctx.procs.getMemoryFd(m.ctx.device, m.memory, sharedHandleType, &fd)
	if err := check("vkGetMemoryFdKHR", ret); err != nil {
		return -1, err
	}
	return int(fd), nil
}

func (m *SharedMemory) free() {
	dev := m.ctx.device
	if m.owner != vk.Image(vk.NullHandle) {
		vk.DestroyImage(dev, m.owner, nil)
		m.owner = vk.Image(vk.NullHandle)
	}
	if m.memory != vk.DeviceMemory(vk.NullHandle) {
		vk.FreeMemory(dev, m.memory, nil)
		m.memory = vk.DeviceMemory(vk.NullHandle)
	}
}

// NewImageFromExternal imports mem into a new image without copying. The
// image holds a reference to mem until Destroy and starts in
// LayoutTransferDst.
func NewImageFromExternal(ctx *DeviceContext, mem *SharedMemory) (*Image, error) {
	if err := mem.Acquire(); err != nil {
		return nil, err
	}
	img := &Image{ctx: ctx, width: mem.width, height: mem.height, usage: sharedUsage, shared: mem}

	ext := externalImageInfo()
	err := img.create(unsafe.Pointer(ext.Ref()))
	ext.Free()
	if err != nil {
		img.Destroy()
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(ctx.device, img.image, &reqs)
	reqs.Deref()
	if reqs.MemoryTypeBits&(1<<mem.memoryType) == 0 || reqs.Size > mem.size {
		img.Destroy()
		return nil, fmt.Errorf("%w: type bits %#x size %d, have type %d size %d",
			ErrExternalMemory, reqs.MemoryTypeBits, uint64(reqs.Size), mem.memoryType, uint64(mem.size))
	}

	fd, err := mem.ExportFD()
	if err != nil {
		img.Destroy()
		return nil, err
	}
	if err := img.importMemory(fd, mem); err != nil {
		_ = unix.Close(fd)
		img.Destroy()
		return nil, err
	}
	if err := img.finish(); err != nil {
		img.Destroy()
		return nil, err
	}

	cmd, err := ctx.BeginSingleTimeCommands()
	if err != nil {
		img.Destroy()
		return nil, err
	}
	img.TransitionLayout(cmd, LayoutTransferDst, false)
	if err := ctx.EndAndSubmitSingleTimeCommands(cmd); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

// importMemory allocates img's memory as a dedicated import of fd. On
// success the driver owns fd.
func (img *Image) importMemory(fd int, mem *SharedMemory) error {
	dedicated := vk.MemoryDedicatedAllocateInfo{
		SType: vk.StructureTypeMemoryDedicatedAllocateInfo,
		Image: img.image,
	}
	dedicatedRef, _ := dedicated.PassRef()
	defer dedicated.Free()
	imp := vk.ImportMemoryFdInfo{
		SType:      vk.StructureTypeImportMemoryFdInfo,
		PNext:      unsafe.Pointer(dedicatedRef),
		HandleType: sharedHandleType,
		Fd:         int32(fd),
	}
	impRef, _ := imp.PassRef()
	defer imp.Free()

	alloc := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		PNext:           unsafe.Pointer(impRef),
		AllocationSize:  mem.size,
		MemoryTypeIndex: mem.memoryType,
	}
	return check("vkAllocateMemory", vk.AllocateMemory(img.ctx.device, &alloc, nil, &img.memory))
}
