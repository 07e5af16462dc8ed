//go:build linux

package hip

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	hipOnce    sync.Once
	hipHandle  uintptr
	hipInitErr error
)

// libamdhip64 function pointers
var (
	hipMalloc            func(ptr *uintptr, size uintptr) int32
	hipFree              func(ptr uintptr) int32
	hipSetDevice         func(id int32) int32
	hipGetDeviceCount    func(count *int32) int32
	hipDeviceGetName     func(name *byte, length int32, id int32) int32
	hipDeviceGetPCIBusID func(busID *byte, length int32, id int32) int32
	// hipMemcpy is bound twice so each direction gets a typed host pointer.
	hipMemcpyDtoH func(dst unsafe.Pointer, src uintptr, size uintptr, kind int32) int32
	hipMemcpyHtoD func(dst uintptr, src unsafe.Pointer, size uintptr, kind int32) int32
)

// hipMemcpyKind values
const (
	memcpyHostToDevice = 1
	memcpyDeviceToHost = 2
)

func load() error {
	hipOnce.Do(func() {
		hipInitErr = loadLib()
	})
	return hipInitErr
}

func loadLib() error {
	var lastErr error
	for _, path := range libPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		hipHandle = handle
		loadSymbols()
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func libPaths() []string {
	const libName = "libamdhip64.so"
	var paths []string
	if env := os.Getenv("HIP_LIB_PATH"); env != "" {
		paths = append(paths, env)
	}
	if rocm := os.Getenv("ROCM_PATH"); rocm != "" {
		paths = append(paths, filepath.Join(rocm, "lib", libName))
	}
	return append(paths,
		"/opt/rocm/lib/"+libName,
		libName,
	)
}

func loadSymbols() {
	purego.RegisterLibFunc(&hipMalloc, hipHandle, "hipMalloc")
	purego.RegisterLibFunc(&hipFree, hipHandle, "hipFree")
	purego.RegisterLibFunc(&hipSetDevice, hipHandle, "hipSetDevice")
	purego.RegisterLibFunc(&hipGetDeviceCount, hipHandle, "hipGetDeviceCount")
	purego.RegisterLibFunc(&hipDeviceGetName, hipHandle, "hipDeviceGetName")
	purego.RegisterLibFunc(&hipDeviceGetPCIBusID, hipHandle, "hipDeviceGetPCIBusId")
	purego.RegisterLibFunc(&hipMemcpyDtoH, hipHandle, "hipMemcpy")
	purego.RegisterLibFunc(&hipMemcpyHtoD, hipHandle, "hipMemcpy")
}

// Available reports whether the HIP runtime could be loaded.
func Available() bool { return load() == nil }

// DeviceCount returns the number of visible HIP devices.
func DeviceCount() (int, error) {
	if err := load(); err != nil {
		return 0, err
	}
	var n int32
	if err := check("hipGetDeviceCount", hipGetDeviceCount(&n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Props returns the name and PCI location of device id.
func Props(id int) (DeviceProps, error) {
	if err := load(); err != nil {
		return DeviceProps{}, err
	}
	name := make([]byte, 256)
	if err := check("hipDeviceGetName", hipDeviceGetName(&name[0], int32(len(name)), int32(id))); err != nil {
		return DeviceProps{}, err
	}
	bus := make([]byte, 64)
	if err := check("hipDeviceGetPCIBusId", hipDeviceGetPCIBusID(&bus[0], int32(len(bus)), int32(id))); err != nil {
		return DeviceProps{}, err
	}
	domain, busNum, dev, fn, err := ParsePCIBusID(cString(bus))
	if err != nil {
		return DeviceProps{}, err
	}
	return DeviceProps{
		Name:     cString(name),
		Domain:   domain,
		Bus:      busNum,
		Device:   dev,
		Function: fn,
	}, nil
}

// Memory allocates on one HIP device. It satisfies buffer.DeviceMemory.
type Memory struct {
	id int
	mu sync.Mutex
}

// Open selects device id and returns its memory backend.
func Open(id int) (*Memory, error) {
	if err := load(); err != nil {
		return nil, err
	}
	if err := check("hipSetDevice", hipSetDevice(int32(id))); err != nil {
		return nil, err
	}
	return &Memory{id: id}, nil
}

// Name returns "hip:<id>".
func (m *Memory) Name() string { return fmt.Sprintf("hip:%d", m.id) }

// Malloc allocates size bytes of device memory.
func (m *Memory) Malloc(size int) (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := check("hipSetDevice", hipSetDevice(int32(m.id))); err != nil {
		return 0, err
	}
	var ptr uintptr
	if err := check("hipMalloc", hipMalloc(&ptr, uintptr(size))); err != nil {
		return 0, err
	}
	return ptr, nil
}

// Free releases device memory at addr.
func (m *Memory) Free(addr uintptr) error {
	return check("hipFree", hipFree(addr))
}

// CopyToHost copies len(dst) bytes from base+off.
func (m *Memory) CopyToHost(dst []byte, base uintptr, off int) error {
	if len(dst) == 0 {
		return nil
	}
	return check("hipMemcpy", hipMemcpyDtoH(unsafe.Pointer(&dst[0]), base+uintptr(off), uintptr(len(dst)), memcpyDeviceToHost))
}

// CopyFromHost copies src to base+off.
func (m *Memory) CopyFromHost(base uintptr, off int, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	return check("hipMemcpy", hipMemcpyHtoD(base+uintptr(off), unsafe.Pointer(&src[0]), uintptr(len(src)), memcpyHostToDevice))
}
