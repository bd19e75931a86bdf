package gpu

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

type recordedBarriers struct {
	barriers []Barrier
}

func (r *recordedBarriers) PipelineBarrier(b Barrier) {
	r.barriers = append(r.barriers, b)
}

func TestBarrierMasks(t *testing.T) {
	tests := []struct {
		layout Layout
		access vk.AccessFlags
		stage  vk.PipelineStageFlags
	}{
		{LayoutUndefined, 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)},
		{LayoutGeneral, vk.AccessFlags(vk.AccessShaderWriteBit), vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)},
		{LayoutTransferSrc, vk.AccessFlags(vk.AccessTransferReadBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)},
		{LayoutTransferDst, vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)},
		{LayoutShaderReadOnly, vk.AccessFlags(vk.AccessShaderReadBit), vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)},
	}
	for _, tt := range tests {
		t.Run(tt.layout.String(), func(t *testing.T) {
			access, stage := BarrierMasks(tt.layout)
			if access != tt.access {
				t.Errorf("access = %#x, want %#x", uint32(access), uint32(tt.access))
			}
			if stage != tt.stage {
				t.Errorf("stage = %#x, want %#x", uint32(stage), uint32(tt.stage))
			}
		})
	}
}

func TestBarrierMasksUnmapped(t *testing.T) {
	for _, l := range []Layout{-1, layoutCount, 42} {
		access, stage := BarrierMasks(l)
		if access != 0 || stage != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
			t.Errorf("BarrierMasks(%v) = (%#x, %#x), want (0, top of pipe)", l, uint32(access), uint32(stage))
		}
	}
}

func TestTransitionBarrierPairs(t *testing.T) {
	for _, from := range Layouts {
		for _, to := range Layouts {
			b, ok := TransitionBarrier(vk.Image(vk.NullHandle), from, to, true)
			if from == to {
				if ok {
					t.Errorf("%v -> %v: expected no barrier", from, to)
				}
				continue
			}
			if !ok {
				t.Fatalf("%v -> %v: expected a barrier", from, to)
			}
			srcAccess, srcStage := BarrierMasks(from)
			dstAccess, dstStage := BarrierMasks(to)
			if b.OldLayout != from || b.NewLayout != to {
				t.Errorf("%v -> %v: layouts %v -> %v", from, to, b.OldLayout, b.NewLayout)
			}
			if b.SrcAccess != srcAccess || b.SrcStage != srcStage {
				t.Errorf("%v -> %v: wrong source masks", from, to)
			}
			if b.DstAccess != dstAccess || b.DstStage != dstStage {
				t.Errorf("%v -> %v: wrong destination masks", from, to)
			}
		}
	}
}

func TestTransitionBarrierDiscard(t *testing.T) {
	b, ok := TransitionBarrier(vk.Image(vk.NullHandle), LayoutShaderReadOnly, LayoutGeneral, false)
	if !ok {
		t.Fatal("expected a barrier")
	}
	if b.OldLayout != LayoutUndefined {
		t.Errorf("OldLayout = %v, want Undefined", b.OldLayout)
	}
	if b.SrcAccess != 0 || b.SrcStage != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
		t.Errorf("source masks = (%#x, %#x), want (0, top of pipe)", uint32(b.SrcAccess), uint32(b.SrcStage))
	}
}

func TestImageTransitionLayout(t *testing.T) {
	img := &Image{ctx: &DeviceContext{}, layout: LayoutUndefined}
	rec := &recordedBarriers{}

	img.TransitionLayout(rec, LayoutTransferDst, false)
	img.TransitionLayout(rec, LayoutTransferDst, true)
	img.TransitionLayout(rec, LayoutShaderReadOnly, true)
	img.TransitionLayout(rec, LayoutGeneral, false)

	if img.Layout() != LayoutGeneral {
		t.Errorf("Layout = %v, want General", img.Layout())
	}
	if len(rec.barriers) != 3 {
		t.Fatalf("recorded %d barriers, want 3 (self-transition is a no-op)", len(rec.barriers))
	}
	want := [][2]Layout{
		{LayoutUndefined, LayoutTransferDst},
		{LayoutTransferDst, LayoutShaderReadOnly},
		{LayoutUndefined, LayoutGeneral},
	}
	for i, w := range want {
		if rec.barriers[i].OldLayout != w[0] || rec.barriers[i].NewLayout != w[1] {
			t.Errorf("barrier %d = %v -> %v, want %v -> %v", i,
				rec.barriers[i].OldLayout, rec.barriers[i].NewLayout, w[0], w[1])
		}
	}
}

func TestImageRestoreLayout(t *testing.T) {
	img := &Image{ctx: &DeviceContext{}, layout: LayoutTransferDst}
	rec := &recordedBarriers{}

	img.TransitionLayout(rec, LayoutTransferSrc, true)
	img.RestoreLayout(LayoutTransferDst)
	if img.Layout() != LayoutTransferDst {
		t.Fatalf("Layout = %v, want TransferDst", img.Layout())
	}

	// The next barrier starts from the restored layout.
	img.TransitionLayout(rec, LayoutTransferSrc, true)
	last := rec.barriers[len(rec.barriers)-1]
	if last.OldLayout != LayoutTransferDst {
		t.Errorf("OldLayout = %v, want TransferDst", last.OldLayout)
	}
}

func TestLayoutString(t *testing.T) {
	names := map[Layout]string{
		LayoutUndefined:      "Undefined",
		LayoutGeneral:        "General",
		LayoutTransferSrc:    "TransferSrc",
		LayoutTransferDst:    "TransferDst",
		LayoutShaderReadOnly: "ShaderReadOnly",
		Layout(9):            "Layout(9)",
	}
	for l, want := range names {
		if got := l.String(); got != want {
			t.Errorf("Layout(%d).String() = %q, want %q", int(l), got, want)
		}
	}
}

func TestLayoutVkLayout(t *testing.T) {
	if LayoutGeneral.VkLayout() != vk.ImageLayoutGeneral {
		t.Error("General")
	}
	if LayoutShaderReadOnly.VkLayout() != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Error("ShaderReadOnly")
	}
	if Layout(-3).VkLayout() != vk.ImageLayoutUndefined {
		t.Error("unmapped layout should map to undefined")
	}
}
