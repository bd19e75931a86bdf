package gpu

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/gogpu/gputypes"
	vk "github.com/vulkan-go/vulkan"
)

// maxWorkgroupSize is the tile edge chosen when the device allows it.
const maxWorkgroupSize = 64

// Descriptor pool capacity. One set per pipeline, three pipelines.
const (
	descriptorPoolSets     = 3
	descriptorPoolSamplers = 3
	descriptorPoolStorage  = 3
	descriptorPoolUniforms = 3
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Instance extensions needed to query external memory support.
var instanceExtensions = []string{
	"VK_KHR_external_memory_capabilities",
	"VK_KHR_get_physical_device_properties2",
}

// Device extensions needed to export and import image memory.
var deviceExtensions = []string{
	"VK_KHR_get_memory_requirements2",
	"VK_KHR_dedicated_allocation",
	"VK_KHR_external_memory",
	"VK_KHR_external_memory_fd",
}

// Options configures NewDeviceContext.
type Options struct {
	// Debug enables the validation layer and routes debug reports to the
	// package logger.
	Debug bool

	// ApplicationName is reported to the driver. Defaults to "ggfx".
	ApplicationName string
}

// DeviceInfo describes the selected physical device.
type DeviceInfo struct {
	Name          string
	Type          gputypes.DeviceType
	APIVersion    string
	QueueFamily   uint32
	WorkgroupSize uint32
	Limits        gputypes.Limits
}

// DeviceContext owns the Vulkan instance, device, compute queue and the
// command and descriptor pools shared by every pipeline.
//
// A DeviceContext must outlive every Buffer, Image, SharedMemory and
// ComputePipeline created from it.
type DeviceContext struct {
	instance         vk.Instance
	debugCallback    vk.DebugReportCallback
	physicalDevice   vk.PhysicalDevice
	properties       vk.PhysicalDeviceProperties
	memoryProperties vk.PhysicalDeviceMemoryProperties
	device           vk.Device
	queueFamily      uint32
	queue            vk.Queue
	workgroupSize    uint32
	commandPool      vk.CommandPool
	descriptorPool   vk.DescriptorPool
	procs            deviceProcs
	info             DeviceInfo
}

var (
	loaderOnce sync.Once
	loaderErr  error
)

// loadVulkan initializes the vulkan-go loader exactly once per process.
func loadVulkan() error {
	loaderOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loaderErr = fmt.Errorf("%w: %w", ErrNoVulkan, err)
			return
		}
		if err := vk.Init(); err != nil {
			loaderErr = fmt.Errorf("%w: %w", ErrNoVulkan, err)
			return
		}
		loaderErr = openLoaderProcs()
	})
	return loaderErr
}

// NewDeviceContext creates the instance, picks the first physical device
// with a compute queue family and builds the logical device and pools.
func NewDeviceContext(opts Options) (*DeviceContext, error) {
	if err := loadVulkan(); err != nil {
		return nil, err
	}

	var version uint32
	if err := check("vkEnumerateInstanceVersion", enumerateInstanceVersion(&version)); err != nil {
		return nil, err
	}
	apiVersion, err := selectAPIVersion(version)
	if err != nil {
		return nil, err
	}

	c := &DeviceContext{}
	steps := []struct {
		name string
		fn   func() error
	}{
		{"instance", func() error { return c.createInstance(opts, apiVersion) }},
		{"debug callback", func() error { return c.createDebugCallback(opts.Debug) }},
		{"physical device", c.selectPhysicalDevice},
		{"workgroup size", c.deriveWorkgroupSize},
		{"device", c.createDevice},
		{"descriptor pool", c.createDescriptorPool},
		{"command pool", c.createCommandPool},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			c.Destroy()
			if errors.Is(err, ErrNoComputeDevice) || errors.Is(err, ErrWorkgroupTooSmall) {
				return nil, err
			}
			return nil, fmt.Errorf("gpu: create %s: %w", step.name, err)
		}
	}

	c.info.APIVersion = formatVersion(c.properties.ApiVersion)
	slogger().Info("gpu: device selected",
		"name", c.info.Name,
		"type", c.info.Type,
		"api", c.info.APIVersion,
		"queueFamily", c.queueFamily,
		"workgroupSize", c.workgroupSize)
	return c, nil
}

// selectAPIVersion validates the loader version and returns the API
// version to request: 1.1 when available, otherwise 1.0.
func selectAPIVersion(version uint32) (uint32, error) {
	major, minor := version>>22, (version>>12)&0x3ff
	if major != 1 {
		return 0, fmt.Errorf("%w: %d.%d", ErrUnsupportedAPIVersion, major, minor)
	}
	if minor >= 1 {
		return vk.MakeVersion(1, 1, 0), nil
	}
	return vk.MakeVersion(1, 0, 0), nil
}

func formatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22, (v>>12)&0x3ff, v&0xfff)
}

func (c *DeviceContext) createInstance(opts Options, apiVersion uint32) error {
	name := opts.ApplicationName
	if name == "" {
		name = "ggfx"
	}

	extensions := append([]string(nil), instanceExtensions...)
	var layers []string
	if opts.Debug {
		extensions = append(extensions, "VK_EXT_debug_report")
		layers = append(layers, validationLayer)
	}

	info := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			PApplicationName:   cString(name),
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PEngineName:        "ggfx\x00",
			EngineVersion:      vk.MakeVersion(1, 0, 0),
			ApiVersion:         apiVersion,
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: cStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     cStrings(layers),
	}

	var instance vk.Instance
	if err := check("vkCreateInstance", vk.CreateInstance(&info, nil, &instance)); err != nil {
		return err
	}
	c.instance = instance
	return vk.InitInstance(instance)
}

func (c *DeviceContext) createDebugCallback(enabled bool) error {
	if !enabled {
		return nil
	}
	info := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit |
			vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugReport,
	}
	return check("vkCreateDebugReportCallbackEXT",
		vk.CreateDebugReportCallback(c.instance, &info, nil, &c.debugCallback))
}

// debugReport forwards validation messages to the package logger.
func debugReport(flags vk.DebugReportFlags, _ vk.DebugReportObjectType, _ uint64, _ uint,
	code int32, layer string, message string, _ unsafe.Pointer) vk.Bool32 {
	l := slogger()
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		l.Error("gpu: validation", "layer", layer, "code", code, "msg", message)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		l.Warn("gpu: validation", "layer", layer, "code", code, "msg", message)
	default:
		l.Debug("gpu: validation", "layer", layer, "code", code, "msg", message)
	}
	return vk.False
}

// selectPhysicalDevice takes the first device that has a compute queue
// family. There is no scoring among several capable devices.
func (c *DeviceContext) selectPhysicalDevice() error {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(c.instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return ErrNoComputeDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(c.instance, &count, devices)); err != nil {
		return err
	}

	for _, pd := range devices[:count] {
		family, ok := findComputeQueueFamily(queueFamilies(pd))
		if !ok {
			continue
		}
		c.physicalDevice = pd
		c.queueFamily = family

		vk.GetPhysicalDeviceProperties(pd, &c.properties)
		c.properties.Deref()
		c.properties.Limits.Deref()

		vk.GetPhysicalDeviceMemoryProperties(pd, &c.memoryProperties)
		c.memoryProperties.Deref()
		for i := range c.memoryProperties.MemoryTypes {
			c.memoryProperties.MemoryTypes[i].Deref()
		}

		c.info.Name = vk.ToString(c.properties.DeviceName[:])
		c.info.Type = deviceType(c.properties.DeviceType)
		c.info.QueueFamily = family
		return nil
	}
	return ErrNoComputeDevice
}

func queueFamilies(pd vk.PhysicalDevice) []vk.QueueFamilyProperties {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)
	for i := range families {
		families[i].Deref()
	}
	return families
}

// findComputeQueueFamily returns the index of the first family that
// advertises compute support. Families must already be dereferenced.
func findComputeQueueFamily(families []vk.QueueFamilyProperties) (uint32, bool) {
	for i, f := range families {
		if f.QueueCount > 0 && f.QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

func deviceType(t vk.PhysicalDeviceType) gputypes.DeviceType {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return gputypes.DeviceTypeDiscreteGPU
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return gputypes.DeviceTypeIntegratedGPU
	case vk.PhysicalDeviceTypeVirtualGpu:
		return gputypes.DeviceTypeVirtualGPU
	case vk.PhysicalDeviceTypeCpu:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}

func (c *DeviceContext) deriveWorkgroupSize() error {
	lim := c.properties.Limits
	c.info.Limits = gputypes.Limits{
		MaxComputeWorkgroupSizeX:          lim.MaxComputeWorkGroupSize[0],
		MaxComputeWorkgroupSizeY:          lim.MaxComputeWorkGroupSize[1],
		MaxComputeWorkgroupSizeZ:          lim.MaxComputeWorkGroupSize[2],
		MaxComputeInvocationsPerWorkgroup: lim.MaxComputeWorkGroupInvocations,
	}
	size, err := chooseWorkgroupSize(c.info.Limits)
	if err != nil {
		return err
	}
	c.workgroupSize = size
	c.info.WorkgroupSize = size
	return nil
}

// chooseWorkgroupSize picks the square tile edge used by every kernel:
// at most 64, at most the X and Y limits, at most floor(sqrt(max
// invocations)), rounded down to a multiple of 4.
func chooseWorkgroupSize(limits gputypes.Limits) (uint32, error) {
	size := uint32(maxWorkgroupSize)
	size = min(size, limits.MaxComputeWorkgroupSizeX, limits.MaxComputeWorkgroupSizeY)
	size = min(size, uint32(math.Sqrt(float64(limits.MaxComputeInvocationsPerWorkgroup))))
	size &^= 3
	if size == 0 {
		return 0, fmt.Errorf("%w: x=%d y=%d invocations=%d", ErrWorkgroupTooSmall,
			limits.MaxComputeWorkgroupSizeX, limits.MaxComputeWorkgroupSizeY,
			limits.MaxComputeInvocationsPerWorkgroup)
	}
	return size, nil
}

func (c *DeviceContext) createDevice() error {
	info := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: c.queueFamily,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}},
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: cStrings(deviceExtensions),
	}

	var device vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(c.physicalDevice, &info, nil, &device)); err != nil {
		return err
	}
	c.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, c.queueFamily, 0, &queue)
	c.queue = queue

	procs, err := resolveDeviceProcs(device)
	if err != nil {
		return err
	}
	c.procs = procs
	return nil
}

func (c *DeviceContext) createDescriptorPool() error {
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: descriptorPoolSamplers},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: descriptorPoolStorage},
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: descriptorPoolUniforms},
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       descriptorPoolSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	return check("vkCreateDescriptorPool", vk.CreateDescriptorPool(c.device, &info, nil, &c.descriptorPool))
}

func (c *DeviceContext) createCommandPool() error {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: c.queueFamily,
	}
	return check("vkCreateCommandPool", vk.CreateCommandPool(c.device, &info, nil, &c.commandPool))
}

// Info describes the selected device.
func (c *DeviceContext) Info() DeviceInfo { return c.info }

// WorkgroupSize returns the tile edge bound to specialization constants 0 and 1.
func (c *DeviceContext) WorkgroupSize() uint32 { return c.workgroupSize }

// Device returns the logical device handle.
func (c *DeviceContext) Device() vk.Device { return c.device }

// Queue returns the compute queue.
func (c *DeviceContext) Queue() vk.Queue { return c.queue }

// QueueFamily returns the index of the selected compute queue family.
func (c *DeviceContext) QueueFamily() uint32 { return c.queueFamily }

// FindMemoryType returns the lowest memory type index allowed by bits
// whose property flags include required.
func (c *DeviceContext) FindMemoryType(bits uint32, required vk.MemoryPropertyFlags) (uint32, error) {
	types := c.memoryProperties.MemoryTypes[:c.memoryProperties.MemoryTypeCount]
	index, ok := findMemoryType(types, bits, required)
	if !ok {
		return 0, fmt.Errorf("%w: bits=%#x flags=%#x", ErrNoMemoryType, bits, uint32(required))
	}
	return index, nil
}

// findMemoryType is first-match, not best-match.
func findMemoryType(types []vk.MemoryType, bits uint32, required vk.MemoryPropertyFlags) (uint32, bool) {
	for i := range types {
		if i >= 32 {
			break
		}
		if bits&(1<<uint(i)) != 0 && types[i].PropertyFlags&required == required {
			return uint32(i), true
		}
	}
	return 0, false
}

// CreateSemaphore creates a binary semaphore. The compute path does not
// use semaphores; this exists for hosts that chain their own submissions.
func (c *DeviceContext) CreateSemaphore() (vk.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var sem vk.Semaphore
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(c.device, &info, nil, &sem)); err != nil {
		return vk.Semaphore(vk.NullHandle), err
	}
	return sem, nil
}

// DestroySemaphore releases a semaphore created by CreateSemaphore.
func (c *DeviceContext) DestroySemaphore(sem vk.Semaphore) {
	if sem != vk.Semaphore(vk.NullHandle) {
		vk.DestroySemaphore(c.device, sem, nil)
	}
}

// BeginSingleTimeCommands allocates a command buffer and begins recording
// it for one submission.
func (c *DeviceContext) BeginSingleTimeCommands() (*CommandBuffer, error) {
	cmd, err := c.AllocateCommandBuffer()
	if err != nil {
		return nil, err
	}
	if err := cmd.Begin(true); err != nil {
		cmd.Free()
		return nil, err
	}
	return cmd, nil
}

// EndAndSubmitSingleTimeCommands ends cmd, submits it, blocks until the
// queue is idle and frees it. cmd is freed even on failure.
func (c *DeviceContext) EndAndSubmitSingleTimeCommands(cmd *CommandBuffer) error {
	defer cmd.Free()
	if err := cmd.End(); err != nil {
		return err
	}
	return c.Submit(cmd)
}

// Submit submits an executable command buffer and blocks until the
// queue is idle.
func (c *DeviceContext) Submit(cmd *CommandBuffer) error {
	if cmd.state != CommandStateExecutable {
		return fmt.Errorf("%w: submit in state %s", ErrCommandState, cmd.state)
	}
	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd.handle},
	}
	if err := check("vkQueueSubmit", vk.QueueSubmit(c.queue, 1, []vk.SubmitInfo{info}, vk.NullFence)); err != nil {
		return err
	}
	cmd.state = CommandStateInitial
	return c.WaitIdle()
}

// WaitIdle blocks until the compute queue has drained.
func (c *DeviceContext) WaitIdle() error {
	return check("vkQueueWaitIdle", vk.QueueWaitIdle(c.queue))
}

// Destroy releases the pools, device and instance. Every dependent object
// must already be destroyed.
func (c *DeviceContext) Destroy() {
	if c.device != vk.Device(vk.NullHandle) {
		_ = vk.DeviceWaitIdle(c.device)
	}
	if c.commandPool != vk.CommandPool(vk.NullHandle) {
		vk.DestroyCommandPool(c.device, c.commandPool, nil)
		c.commandPool = vk.CommandPool(vk.NullHandle)
	}
	if c.descriptorPool != vk.DescriptorPool(vk.NullHandle) {
		vk.DestroyDescriptorPool(c.device, c.descriptorPool, nil)
		c.descriptorPool = vk.DescriptorPool(vk.NullHandle)
	}
	if c.device != vk.Device(vk.NullHandle) {
		vk.DestroyDevice(c.device, nil)
		c.device = vk.Device(vk.NullHandle)
	}
	if c.debugCallback != vk.DebugReportCallback(vk.NullHandle) {
		vk.DestroyDebugReportCallback(c.instance, c.debugCallback, nil)
		c.debugCallback = vk.DebugReportCallback(vk.NullHandle)
	}
	if c.instance != vk.Instance(vk.NullHandle) {
		vk.DestroyInstance(c.instance, nil)
		c.instance = vk.Instance(vk.NullHandle)
	}
}

// cString terminates s for the loader.
func cString(s string) string {
	if len(s) > 0 && s[len(s)-1] == 0 {
		return s
	}
	return s + "\x00"
}

func cStrings(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = cString(s)
	}
	return out
}
