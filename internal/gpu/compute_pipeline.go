package gpu

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Descriptor bindings shared by every kernel.
const (
	BindingInput   = 0
	BindingOutput  = 1
	BindingUniform = 2
)

const computeStage = vk.ShaderStageFlags(vk.ShaderStageComputeBit)

// ComputePipeline is one kernel with its descriptor set layout, pipeline
// layout, pipeline and a single descriptor set allocated from the
// context's pool. The descriptor set is rewritten on every record call.
type ComputePipeline struct {
	ctx              *DeviceContext
	shader           ShaderID
	pushConstantSize uint32
	useUniform       bool

	setLayout      vk.DescriptorSetLayout
	pipelineLayout vk.PipelineLayout
	pipeline       vk.Pipeline
	set            vk.DescriptorSet
}

// NewComputePipeline builds the pipeline for shader. pushConstantSize of 0
// omits the push constant range; useUniform adds the uniform buffer
// binding. Specialization constants 0 and 1 are both set to the context's
// workgroup size.
func NewComputePipeline(ctx *DeviceContext, shaders ShaderSource, shader ShaderID,
	pushConstantSize uint32, useUniform bool) (*ComputePipeline, error) {
	p := &ComputePipeline{
		ctx:              ctx,
		shader:           shader,
		pushConstantSize: pushConstantSize,
		useUniform:       useUniform,
	}
	steps := []func() error{
		p.createSetLayout,
		p.allocateSet,
		func() error { return p.createPipeline(shaders) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			p.Destroy()
			return nil, fmt.Errorf("gpu: pipeline %v: %w", shader, err)
		}
	}
	slogger().Debug("gpu: compute pipeline created",
		"shader", shader.String(),
		"pushConstants", pushConstantSize,
		"uniform", useUniform,
		"workgroup", ctx.workgroupSize)
	return p, nil
}

// descriptorBindings returns the layout bindings for a kernel.
func descriptorBindings(useUniform bool) []vk.DescriptorSetLayoutBinding {
	bindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         BindingInput,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      computeStage,
		},
		{
			Binding:         BindingOutput,
			DescriptorType:  vk.DescriptorTypeStorageImage,
			DescriptorCount: 1,
			StageFlags:      computeStage,
		},
	}
	if useUniform {
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         BindingUniform,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      computeStage,
		})
	}
	return bindings
}

// pushConstantRanges returns nil when size is 0.
func pushConstantRanges(size uint32) []vk.PushConstantRange {
	if size == 0 {
		return nil
	}
	return []vk.PushConstantRange{{StageFlags: computeStage, Offset: 0, Size: size}}
}

// specialization returns the map entries and data binding constant ids 0
// and 1 to the workgroup size. Modules without those constants, such as
// the naga-compiled kernels, ignore the entries.
func specialization(workgroupSize uint32) ([]vk.SpecializationMapEntry, []byte) {
	entries := []vk.SpecializationMapEntry{
		{ConstantID: 0, Offset: 0, Size: 4},
		{ConstantID: 1, Offset: 4, Size: 4},
	}
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:], workgroupSize)
	binary.LittleEndian.PutUint32(data[4:], workgroupSize)
	return entries, data
}

func (p *ComputePipeline) createSetLayout() error {
	bindings := descriptorBindings(p.useUniform)
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	return check("vkCreateDescriptorSetLayout",
		vk.CreateDescriptorSetLayout(p.ctx.device, &info, nil, &p.setLayout))
}

func (p *ComputePipeline) allocateSet() error {
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.ctx.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{p.setLayout},
	}
	return check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(p.ctx.device, &info, &p.set))
}

func (p *ComputePipeline) createPipeline(shaders ShaderSource) error {
	code, err := shaders.Load(p.shader, p.ctx.workgroupSize)
	if err != nil {
		return err
	}
	moduleInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(p.ctx.device, &moduleInfo, nil, &module)); err != nil {
		return err
	}
	defer vk.DestroyShaderModule(p.ctx.device, module, nil)

	ranges := pushConstantRanges(p.pushConstantSize)
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{p.setLayout},
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	if err := check("vkCreatePipelineLayout",
		vk.CreatePipelineLayout(p.ctx.device, &layoutInfo, nil, &p.pipelineLayout)); err != nil {
		return err
	}

	entries, data := specialization(p.ctx.workgroupSize)
	info := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  "main\x00",
			PSpecializationInfo: []vk.SpecializationInfo{{
				MapEntryCount: uint32(len(entries)),
				PMapEntries:   entries,
				DataSize:      uint(len(data)),
				PData:         unsafe.Pointer(&data[0]),
			}},
		},
		Layout: p.pipelineLayout,
	}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateComputePipelines(p.ctx.device, vk.PipelineCache(vk.NullHandle), 1,
		[]vk.ComputePipelineCreateInfo{info}, nil, pipelines)
	runtime.KeepAlive(data)
	if err := check("vkCreateComputePipelines", ret); err != nil {
		return err
	}
	p.pipeline = pipelines[0]
	return nil
}

// GroupCount returns the dispatch size covering a width×height image with
// square tiles of edge tile.
func GroupCount(width, height, tile uint32) (x, y, z uint32) {
	return ceilDiv(width, tile), ceilDiv(height, tile), 1
}

func ceilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}

// RecordComputeCommands rewrites the descriptor set to input (binding 0),
// output (binding 1) and, when the pipeline uses one, uniform (binding 2),
// then binds the pipeline and set, pushes pushConstants if any and
// dispatches over the output extent.
//
// input must be sampled and in LayoutShaderReadOnly; output must be in
// LayoutGeneral. Both are checked against the tracked layouts.
func (p *ComputePipeline) RecordComputeCommands(cmd *CommandBuffer, pushConstants []byte,
	input, output *Image, uniform *Buffer) error {
	if p.pipeline == vk.Pipeline(vk.NullHandle) {
		return ErrDestroyed
	}
	if !input.sampled() {
		return ErrNotSampled
	}
	if input.layout != LayoutShaderReadOnly {
		return fmt.Errorf("%w: input in %v, want %v", ErrImageLayout, input.layout, LayoutShaderReadOnly)
	}
	if output.layout != LayoutGeneral {
		return fmt.Errorf("%w: output in %v, want %v", ErrImageLayout, output.layout, LayoutGeneral)
	}
	if p.useUniform && uniform == nil {
		return ErrMissingUniform
	}
	if !p.useUniform && uniform != nil {
		return ErrUnexpectedUniform
	}
	if uint32(len(pushConstants)) > p.pushConstantSize {
		return fmt.Errorf("%w: %d > %d", ErrPushConstantSize, len(pushConstants), p.pushConstantSize)
	}
	if !cmd.recording("dispatch " + p.shader.String()) {
		return cmd.err
	}

	writes := []vk.WriteDescriptorSet{
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          p.set,
			DstBinding:      BindingInput,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     input.sampler,
				ImageView:   input.view,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}},
		},
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          p.set,
			DstBinding:      BindingOutput,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeStorageImage,
			PImageInfo: []vk.DescriptorImageInfo{{
				ImageView:   output.view,
				ImageLayout: vk.ImageLayoutGeneral,
			}},
		},
	}
	if p.useUniform {
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          p.set,
			DstBinding:      BindingUniform,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: uniform.buffer,
				Offset: 0,
				Range:  vk.DeviceSize(vk.WholeSize),
			}},
		})
	}
	vk.UpdateDescriptorSets(p.ctx.device, uint32(len(writes)), writes, 0, nil)

	vk.CmdBindPipeline(cmd.handle, vk.PipelineBindPointCompute, p.pipeline)
	vk.CmdBindDescriptorSets(cmd.handle, vk.PipelineBindPointCompute, p.pipelineLayout,
		0, 1, []vk.DescriptorSet{p.set}, 0, nil)
	if len(pushConstants) > 0 && p.pushConstantSize > 0 {
		vk.CmdPushConstants(cmd.handle, p.pipelineLayout, computeStage,
			0, uint32(len(pushConstants)), unsafe.Pointer(&pushConstants[0]))
	}
	x, y, z := GroupCount(output.width, output.height, p.ctx.workgroupSize)
	vk.CmdDispatch(cmd.handle, x, y, z)
	runtime.KeepAlive(pushConstants)
	return nil
}

// Destroy releases the pipeline objects. The descriptor set returns to
// the pool when the context is destroyed. Safe to call more than once.
func (p *ComputePipeline) Destroy() {
	dev := p.ctx.device
	if p.pipeline != vk.Pipeline(vk.NullHandle) {
		vk.DestroyPipeline(dev, p.pipeline, nil)
		p.pipeline = vk.Pipeline(vk.NullHandle)
	}
	if p.pipelineLayout != vk.PipelineLayout(vk.NullHandle) {
		vk.DestroyPipelineLayout(dev, p.pipelineLayout, nil)
		p.pipelineLayout = vk.PipelineLayout(vk.NullHandle)
	}
	if p.setLayout != vk.DescriptorSetLayout(vk.NullHandle) {
		vk.DestroyDescriptorSetLayout(dev, p.setLayout, nil)
		p.setLayout = vk.DescriptorSetLayout(vk.NullHandle)
	}
	p.set = vk.DescriptorSet(vk.NullHandle)
}
