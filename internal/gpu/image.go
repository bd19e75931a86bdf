package gpu

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	vk "github.com/vulkan-go/vulkan"
)

// imageFormat is the only pixel format images are created with.
const imageFormat = vk.FormatR8g8b8a8Unorm

// PixelFormat is the gputypes identity of imageFormat.
var PixelFormat = gputypes.TextureFormatRGBA8Unorm

// Image usage combinations.
const (
	UsageSampled     = vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	UsageStorage     = vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	UsageTransferSrc = vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	UsageTransferDst = vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
)

// PixelSource supplies host pixels for an input image. The pixel slice is
// only read during the call that receives the source.
type PixelSource interface {
	Width() int
	Height() int
	// Stride is the row pitch in bytes.
	Stride() int
	PixelFormat() gputypes.TextureFormat
	Pixels() []byte
}

// Image is a 2D RGBA8 image with optimal tiling and a tracked Layout.
//
// The memory is either a private device-local allocation or an import of
// a SharedMemory, in which case the Image holds one reference to it.
type Image struct {
	ctx     *DeviceContext
	width   uint32
	height  uint32
	usage   vk.ImageUsageFlags
	layout  Layout
	image   vk.Image
	memory  vk.DeviceMemory
	view    vk.ImageView
	sampler vk.Sampler
	shared  *SharedMemory
}

// NewImage creates a device-local image in LayoutUndefined. A sampler is
// attached only when usage includes UsageSampled.
func NewImage(ctx *DeviceContext, width, height uint32, usage vk.ImageUsageFlags) (*Image, error) {
	img := &Image{ctx: ctx, width: width, height: height, usage: usage}
	if err := img.create(nil); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(ctx.device, img.image, &reqs)
	reqs.Deref()

	typeIndex, err := ctx.FindMemoryType(reqs.MemoryTypeBits, MemoryDeviceLocal)
	if err != nil {
		img.Destroy()
		return nil, err
	}
	alloc := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIndex,
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(ctx.device, &alloc, nil, &img.memory)); err != nil {
		img.Destroy()
		return nil, err
	}
	if err := img.finish(); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

// ValidatePixelSource checks that src can be uploaded: positive size,
// RGBA8, a stride that is a multiple of 4 and covers a row, and enough
// pixel bytes. It makes no GPU calls.
func ValidatePixelSource(src PixelSource) error {
	w, h, stride := src.Width(), src.Height(), src.Stride()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	if f := src.PixelFormat(); f != PixelFormat {
		return fmt.Errorf("%w: got %v", ErrUnsupportedPixelFormat, f)
	}
	if stride%4 != 0 || stride < w*4 {
		return fmt.Errorf("%w: stride %d for width %d", ErrInvalidStride, stride, w)
	}
	if n := len(src.Pixels()); n < stride*h {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrShortData, n, stride*h)
	}
	return nil
}

// NewImageFromPixels uploads src through a host-visible staging buffer
// and leaves the image in LayoutShaderReadOnly.
func NewImageFromPixels(ctx *DeviceContext, src PixelSource) (*Image, error) {
	if err := ValidatePixelSource(src); err != nil {
		return nil, err
	}
	w, h, stride := src.Width(), src.Height(), src.Stride()
	pixels := src.Pixels()

	img, err := NewImage(ctx, uint32(w), uint32(h), UsageSampled|UsageTransferDst)
	if err != nil {
		return nil, err
	}
	staging, err := NewBuffer(ctx, uint64(stride*h), UsageStaging, MemoryHostVisible)
	if err != nil {
		img.Destroy()
		return nil, err
	}
	defer staging.Destroy()
	if err := staging.CopyFrom(pixels); err != nil {
		img.Destroy()
		return nil, err
	}

	cmd, err := ctx.BeginSingleTimeCommands()
	if err != nil {
		img.Destroy()
		return nil, err
	}
	img.TransitionLayout(cmd, LayoutTransferDst, false)
	cmd.CopyBufferToImage(staging, img, uint32(stride/4))
	img.TransitionLayout(cmd, LayoutShaderReadOnly, true)
	if err := ctx.EndAndSubmitSingleTimeCommands(cmd); err != nil {
		img.Destroy()
		return nil, err
	}

	slogger().Debug("gpu: image uploaded", "width", w, "height", h, "stride", stride)
	return img, nil
}

// create makes the VkImage. next is an optional pNext chain.
func (img *Image) create(next unsafe.Pointer) error {
	if img.width == 0 || img.height == 0 {
		return fmt.Errorf("%w: image %dx%d", ErrInvalidSize, img.width, img.height)
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		PNext:     next,
		ImageType: vk.ImageType2d,
		Format:    imageFormat,
		Extent: vk.Extent3D{
			Width:  img.width,
			Height: img.height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         img.usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	return check("vkCreateImage", vk.CreateImage(img.ctx.device, &info, nil, &img.image))
}

// finish binds memory and creates the view and, for sampled images, the sampler.
func (img *Image) finish() error {
	if err := check("vkBindImageMemory", vk.BindImageMemory(img.ctx.device, img.image, img.memory, 0)); err != nil {
		return err
	}
	view := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            img.image,
		ViewType:         vk.ImageViewType2d,
		Format:           imageFormat,
		SubresourceRange: colorSubresourceRange(),
	}
	if err := check("vkCreateImageView", vk.CreateImageView(img.ctx.device, &view, nil, &img.view)); err != nil {
		return err
	}
	if img.usage&UsageSampled == 0 {
		return nil
	}
	sampler := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterNearest,
		MinFilter:               vk.FilterNearest,
		MipmapMode:              vk.SamplerMipmapModeNearest,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		AnisotropyEnable:        vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpNever,
		MinLod:                  0,
		MaxLod:                  0,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.True,
	}
	return check("vkCreateSampler", vk.CreateSampler(img.ctx.device, &sampler, nil, &img.sampler))
}

// TransitionLayout records the barrier from the tracked layout to target
// and updates the tracked layout. It records nothing when target equals
// the current layout. With preserveData false the previous contents may
// be discarded.
func (img *Image) TransitionLayout(rec BarrierRecorder, target Layout, preserveData bool) {
	b, ok := TransitionBarrier(img.image, img.layout, target, preserveData)
	if !ok {
		return
	}
	rec.PipelineBarrier(b)
	img.layout = target
}

// Width returns the image width in texels.
func (img *Image) Width() uint32 { return img.width }

// Height returns the image height in texels.
func (img *Image) Height() uint32 { return img.height }

// Layout returns the tracked layout.
func (img *Image) Layout() Layout { return img.layout }

// RestoreLayout sets the tracked layout without recording a barrier. It
// undoes TransitionLayout calls whose commands were never executed.
func (img *Image) RestoreLayout(l Layout) { img.layout = l }

// Handle returns the native image.
func (img *Image) Handle() vk.Image { return img.image }

// View returns the image view.
func (img *Image) View() vk.ImageView { return img.view }

// Sampler returns the sampler, or a null handle for non-sampled images.
func (img *Image) Sampler() vk.Sampler { return img.sampler }

// Shared returns the imported SharedMemory, or nil for private images.
func (img *Image) Shared() *SharedMemory { return img.shared }

func (img *Image) sampled() bool { return img.sampler != vk.Sampler(vk.NullHandle) }

func (img *Image) extent() vk.Extent3D {
	return vk.Extent3D{Width: img.width, Height: img.height, Depth: 1}
}

// Destroy releases the sampler, view, image and memory. An imported image
// releases its SharedMemory reference exactly once. Safe to call more
// than once.
func (img *Image) Destroy() {
	dev := img.ctx.device
	if img.sampler != vk.Sampler(vk.NullHandle) {
		vk.DestroySampler(dev, img.sampler, nil)
		img.sampler = vk.Sampler(vk.NullHandle)
	}
	if img.view != vk.ImageView(vk.NullHandle) {
		vk.DestroyImageView(dev, img.view, nil)
		img.view = vk.ImageView(vk.NullHandle)
	}
	if img.image != vk.Image(vk.NullHandle) {
		vk.DestroyImage(dev, img.image, nil)
		img.image = vk.Image(vk.NullHandle)
	}
	if img.memory != vk.DeviceMemory(vk.NullHandle) {
		vk.FreeMemory(dev, img.memory, nil)
		img.memory = vk.DeviceMemory(vk.NullHandle)
	}
	if img.shared != nil {
		if err := img.shared.Release(); err != nil {
			slogger().Warn("gpu: image released its shared memory", "err", err)
		}
		img.shared = nil
	}
	img.layout = LayoutUndefined
}
