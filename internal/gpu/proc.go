//go:build !windows

package gpu

// #cgo linux LDFLAGS: -ldl
// #include <dlfcn.h>
// #include <stdint.h>
// #include <stdlib.h>
//
// typedef void (*ggfx_void_fn)(void);
// typedef ggfx_void_fn (*ggfx_get_proc_fn)(void *handle, const char *name);
// typedef int32_t (*ggfx_enumerate_instance_version_fn)(uint32_t *version);
//
// typedef struct {
// 	int32_t     sType;
// 	const void *pNext;
// 	uint64_t    memory;
// 	uint32_t    handleType;
// } ggfx_memory_get_fd_info;
//
// typedef int32_t (*ggfx_get_memory_fd_fn)(void *device, const ggfx_memory_get_fd_info *info, int *fd);
//
// static ggfx_get_proc_fn ggfx_get_instance_proc_addr;
// static ggfx_get_proc_fn ggfx_get_device_proc_addr;
//
// static int ggfx_load_procs(void *lib) {
// 	ggfx_get_instance_proc_addr = (ggfx_get_proc_fn)dlsym(lib, "vkGetInstanceProcAddr");
// 	ggfx_get_device_proc_addr = (ggfx_get_proc_fn)dlsym(lib, "vkGetDeviceProcAddr");
// 	return ggfx_get_instance_proc_addr != NULL && ggfx_get_device_proc_addr != NULL;
// }
//
// static int32_t ggfx_enumerate_instance_version(uint32_t *version) {
// 	ggfx_enumerate_instance_version_fn fn = (ggfx_enumerate_instance_version_fn)
// 		ggfx_get_instance_proc_addr(NULL, "vkEnumerateInstanceVersion");
// 	if (fn == NULL) {
// 		*version = 1u << 22;
// 		return 0;
// 	}
// 	return fn(version);
// }
//
// static ggfx_get_memory_fd_fn ggfx_lookup_get_memory_fd(void *device) {
// 	return (ggfx_get_memory_fd_fn)ggfx_get_device_proc_addr(device, "vkGetMemoryFdKHR");
// }
//
// static int32_t ggfx_get_memory_fd(ggfx_get_memory_fd_fn fn, void *device,
// 		int32_t stype, uint64_t memory, uint32_t handle_type, int *fd) {
// 	ggfx_memory_get_fd_info info = {0};
// 	info.sType = stype;
// 	info.memory = memory;
// 	info.handleType = handle_type;
// 	return fn(device, &info, fd);
// }
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// The bindings cover Vulkan 1.0 core only. Entry points added later, or by
// extensions the bindings do not wrap, are fetched from the loader here.

// openLoaderProcs opens the Vulkan loader a second time (dlopen reference
// counts it) and keeps vkGetInstanceProcAddr and vkGetDeviceProcAddr.
func openLoaderProcs() error {
	var lib *C.char
	switch runtime.GOOS {
	case "android", "freebsd":
		lib = C.CString("libvulkan.so")
	case "darwin", "ios":
		lib = C.CString("libvulkan.1.dylib")
	default:
		lib = C.CString("libvulkan.so.1")
	}
	defer C.free(unsafe.Pointer(lib))

	h := C.dlopen(lib, C.RTLD_LAZY|C.RTLD_GLOBAL)
	if h == nil {
		return fmt.Errorf("%w: dlopen %s", ErrNoVulkan, C.GoString(lib))
	}
	if C.ggfx_load_procs(h) == 0 {
		C.dlclose(h)
		return fmt.Errorf("%w: loader lacks proc address entry points", ErrNoVulkan)
	}
	return nil
}

// enumerateInstanceVersion reports the loader's instance version. A 1.0
// loader has no vkEnumerateInstanceVersion and reports 1.0.0.
func enumerateInstanceVersion(version *uint32) vk.Result {
	var v C.uint32_t
	ret := C.ggfx_enumerate_instance_version(&v)
	*version = uint32(v)
	return vk.Result(ret)
}

// deviceProcs holds device-level entry points resolved after vkCreateDevice.
type deviceProcs struct {
	memoryFd C.ggfx_get_memory_fd_fn
}

// resolveDeviceProcs fetches the external memory entry points for device.
func resolveDeviceProcs(device vk.Device) (deviceProcs, error) {
	fn := C.ggfx_lookup_get_memory_fd(dispatchable(device))
	if fn == nil {
		return deviceProcs{}, fmt.Errorf("%w: vkGetMemoryFdKHR unavailable", ErrExternalMemory)
	}
	return deviceProcs{memoryFd: fn}, nil
}

// getMemoryFd exports memory as a file descriptor of handleType.
func (p deviceProcs) getMemoryFd(device vk.Device, memory vk.DeviceMemory,
	handleType vk.ExternalMemoryHandleTypeFlagBits, fd *int32) vk.Result {
	if p.memoryFd == nil {
		return vk.ErrorExtensionNotPresent
	}
	var out C.int
	ret := C.ggfx_get_memory_fd(p.memoryFd, dispatchable(device),
		C.int32_t(vk.StructureTypeMemoryGetFdInfo), nonDispatchable(memory),
		C.uint32_t(handleType), &out)
	*fd = int32(out)
	return vk.Result(ret)
}

// dispatchable returns the raw pointer behind a dispatchable handle.
func dispatchable(device vk.Device) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&device))
}

// nonDispatchable returns the 64-bit value of a non-dispatchable handle,
// which is a pointer on 64-bit targets and a uint64 on 32-bit ones.
func nonDispatchable(memory vk.DeviceMemory) C.uint64_t {
	return *(*C.uint64_t)(unsafe.Pointer(&memory))
}
