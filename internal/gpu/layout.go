package gpu

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Layout is the tracked access layout of an Image.
type Layout int

const (
	// LayoutUndefined means the contents are undefined and may be discarded.
	LayoutUndefined Layout = iota
	// LayoutGeneral is used for storage image writes from compute.
	LayoutGeneral
	// LayoutTransferSrc is used as the source of a copy.
	LayoutTransferSrc
	// LayoutTransferDst is used as the destination of a copy.
	LayoutTransferDst
	// LayoutShaderReadOnly is used for sampled reads from compute.
	LayoutShaderReadOnly

	layoutCount
)

// Layouts lists every declared layout in order.
var Layouts = [layoutCount]Layout{
	LayoutUndefined,
	LayoutGeneral,
	LayoutTransferSrc,
	LayoutTransferDst,
	LayoutShaderReadOnly,
}

// String returns the string representation of Layout.
func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutTransferSrc:
		return "TransferSrc"
	case LayoutTransferDst:
		return "TransferDst"
	case LayoutShaderReadOnly:
		return "ShaderReadOnly"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// VkLayout returns the native image layout.
func (l Layout) VkLayout() vk.ImageLayout {
	switch l {
	case LayoutGeneral:
		return vk.ImageLayoutGeneral
	case LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	default:
		return vk.ImageLayoutUndefined
	}
}

type layoutMasks struct {
	access vk.AccessFlags
	stage  vk.PipelineStageFlags
}

var layoutTable = [layoutCount]layoutMasks{
	LayoutUndefined: {
		access: 0,
		stage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
	},
	LayoutGeneral: {
		access: vk.AccessFlags(vk.AccessShaderWriteBit),
		stage:  vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
	},
	LayoutTransferSrc: {
		access: vk.AccessFlags(vk.AccessTransferReadBit),
		stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	},
	LayoutTransferDst: {
		access: vk.AccessFlags(vk.AccessTransferWriteBit),
		stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	},
	LayoutShaderReadOnly: {
		access: vk.AccessFlags(vk.AccessShaderReadBit),
		stage:  vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
	},
}

// BarrierMasks returns the access mask and pipeline stage associated with
// l. A layout outside the declared set is logged and mapped to no access
// at top-of-pipe.
func BarrierMasks(l Layout) (vk.AccessFlags, vk.PipelineStageFlags) {
	if l < 0 || l >= layoutCount {
		slogger().Warn("gpu: unmapped image layout", "layout", l)
		return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	m := layoutTable[l]
	return m.access, m.stage
}

// Barrier is an image memory barrier between two layouts.
type Barrier struct {
	Image     vk.Image
	OldLayout Layout
	NewLayout Layout
	SrcAccess vk.AccessFlags
	DstAccess vk.AccessFlags
	SrcStage  vk.PipelineStageFlags
	DstStage  vk.PipelineStageFlags
}

// BarrierRecorder receives the barriers produced by layout transitions.
// CommandBuffer is the production implementation.
type BarrierRecorder interface {
	PipelineBarrier(Barrier)
}

// TransitionBarrier builds the barrier that moves an image from current
// to target. It reports false when no barrier is needed. With
// preserveData false the source side is treated as LayoutUndefined.
func TransitionBarrier(img vk.Image, current, target Layout, preserveData bool) (Barrier, bool) {
	if current == target {
		return Barrier{}, false
	}
	src := current
	if !preserveData {
		src = LayoutUndefined
	}
	srcAccess, srcStage := BarrierMasks(src)
	dstAccess, dstStage := BarrierMasks(target)
	return Barrier{
		Image:     img,
		OldLayout: src,
		NewLayout: target,
		SrcAccess: srcAccess,
		DstAccess: dstAccess,
		SrcStage:  srcStage,
		DstStage:  dstStage,
	}, true
}
