package gpu

import (
	"encoding/binary"
	"errors"
	"testing"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

func TestGroupCount(t *testing.T) {
	tests := []struct {
		w, h, tile uint32
		x, y       uint32
	}{
		{130, 65, 64, 3, 2},
		{64, 64, 64, 1, 1},
		{1, 1, 64, 1, 1},
		{65, 1, 32, 3, 1},
		{1920, 1080, 16, 120, 68},
	}
	for _, tt := range tests {
		x, y, z := GroupCount(tt.w, tt.h, tt.tile)
		if x != tt.x || y != tt.y || z != 1 {
			t.Errorf("GroupCount(%d,%d,%d) = (%d,%d,%d), want (%d,%d,1)",
				tt.w, tt.h, tt.tile, x, y, z, tt.x, tt.y)
		}
	}
}

func TestDescriptorBindings(t *testing.T) {
	plain := descriptorBindings(false)
	if len(plain) != 2 {
		t.Fatalf("len = %d, want 2", len(plain))
	}
	if plain[0].Binding != BindingInput || plain[0].DescriptorType != vk.DescriptorTypeCombinedImageSampler {
		t.Errorf("binding 0 = %+v", plain[0])
	}
	if plain[1].Binding != BindingOutput || plain[1].DescriptorType != vk.DescriptorTypeStorageImage {
		t.Errorf("binding 1 = %+v", plain[1])
	}

	withUniform := descriptorBindings(true)
	if len(withUniform) != 3 {
		t.Fatalf("len = %d, want 3", len(withUniform))
	}
	if withUniform[2].Binding != BindingUniform || withUniform[2].DescriptorType != vk.DescriptorTypeUniformBuffer {
		t.Errorf("binding 2 = %+v", withUniform[2])
	}
	for _, b := range withUniform {
		if b.DescriptorCount != 1 || b.StageFlags != computeStage {
			t.Errorf("binding %d: count=%d stages=%#x", b.Binding, b.DescriptorCount, uint32(b.StageFlags))
		}
	}
}

func TestPushConstantRanges(t *testing.T) {
	if r := pushConstantRanges(0); r != nil {
		t.Errorf("pushConstantRanges(0) = %v, want nil", r)
	}
	r := pushConstantRanges(48)
	if len(r) != 1 || r[0].Offset != 0 || r[0].Size != 48 || r[0].StageFlags != computeStage {
		t.Errorf("pushConstantRanges(48) = %+v", r)
	}
}

func TestSpecialization(t *testing.T) {
	entries, data := specialization(16)
	if len(entries) != 2 || len(data) != 8 {
		t.Fatalf("entries=%d data=%d", len(entries), len(data))
	}
	for i, e := range entries {
		if e.ConstantID != uint32(i) || e.Offset != uint32(4*i) || e.Size != 4 {
			t.Errorf("entry %d = %+v", i, e)
		}
		if v := binary.LittleEndian.Uint32(data[e.Offset:]); v != 16 {
			t.Errorf("constant %d = %d, want 16", i, v)
		}
	}
}

// liveHandle returns a non-null handle of type T for validation paths that
// never reach the driver.
func liveHandle[T any]() T {
	var h T
	*(*unsafe.Pointer)(unsafe.Pointer(&h)) = unsafe.Pointer(new(uint64))
	return h
}

func TestRecordComputeCommandsValidation(t *testing.T) {
	ctx := &DeviceContext{workgroupSize: 16}
	sampler := liveHandle[vk.Sampler]()
	input := &Image{sampler: sampler, layout: LayoutShaderReadOnly}
	output := &Image{layout: LayoutGeneral}

	destroyed := &ComputePipeline{ctx: ctx, shader: ShaderColorMatrix, pushConstantSize: 48}
	err := destroyed.RecordComputeCommands(&CommandBuffer{}, nil, input, output, nil)
	if !errors.Is(err, ErrDestroyed) {
		t.Errorf("destroyed pipeline: err = %v, want ErrDestroyed", err)
	}

	colorMatrix := &ComputePipeline{ctx: ctx, shader: ShaderColorMatrix, pushConstantSize: 48,
		pipeline: liveHandle[vk.Pipeline]()}
	blur := &ComputePipeline{ctx: ctx, shader: ShaderBlurHorizontal, pushConstantSize: 4,
		useUniform: true, pipeline: liveHandle[vk.Pipeline]()}
	uniform := &Buffer{}

	tests := []struct {
		name     string
		pipeline *ComputePipeline
		push     []byte
		input    *Image
		output   *Image
		uniform  *Buffer
		want     error
	}{
		{"unsampled input", colorMatrix, nil, &Image{layout: LayoutShaderReadOnly}, output, nil, ErrNotSampled},
		{"input in general", colorMatrix, nil, &Image{sampler: sampler, layout: LayoutGeneral}, output, nil, ErrImageLayout},
		{"input undefined", colorMatrix, nil, &Image{sampler: sampler}, output, nil, ErrImageLayout},
		{"output in transfer dst", colorMatrix, nil, input, &Image{layout: LayoutTransferDst}, nil, ErrImageLayout},
		{"output undefined", colorMatrix, nil, input, &Image{}, nil, ErrImageLayout},
		{"missing uniform", blur, nil, input, output, nil, ErrMissingUniform},
		{"unexpected uniform", colorMatrix, nil, input, output, uniform, ErrUnexpectedUniform},
		{"push constants too long", colorMatrix, make([]byte, 52), input, output, nil, ErrPushConstantSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &CommandBuffer{}
			err := tt.pipeline.RecordComputeCommands(cmd, tt.push, tt.input, tt.output, tt.uniform)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
