package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DeviceMemory is an accelerator memory backend. Addresses it returns are
// device virtual addresses and are never dereferenced on the host.
type DeviceMemory interface {
	// Name identifies the backend in logs.
	Name() string
	Malloc(size int) (uintptr, error)
	Free(addr uintptr) error
	// CopyToHost copies len(dst) bytes from base+off.
	CopyToHost(dst []byte, base uintptr, off int) error
	// CopyFromHost copies src to base+off.
	CopyFromHost(base uintptr, off int, src []byte) error
}

// DeviceAllocator hands out device-domain blocks from a DeviceMemory backend.
type DeviceAllocator struct {
	mem  DeviceMemory
	live atomic.Int64
}

// NewDeviceAllocator creates an allocator over mem.
func NewDeviceAllocator(mem DeviceMemory) *DeviceAllocator {
	return &DeviceAllocator{mem: mem}
}

// Domain returns DomainDevice.
func (a *DeviceAllocator) Domain() Domain { return DomainDevice }

// Backend returns the name of the device memory backend.
func (a *DeviceAllocator) Backend() string { return a.mem.Name() }

// Alloc allocates size bytes of device memory.
func (a *DeviceAllocator) Alloc(size int) (*Block, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	addr, err := a.mem.Malloc(size)
	if err != nil {
		return nil, fmt.Errorf("%s malloc: %w", a.mem.Name(), err)
	}
	a.live.Add(1)
	allocatedTotal.Add(1)
	return &Block{domain: DomainDevice, addr: addr, size: size}, nil
}

// Free releases the device allocation.
func (a *DeviceAllocator) Free(b *Block) error {
	a.live.Add(-1)
	if err := a.mem.Free(b.addr); err != nil {
		return fmt.Errorf("%s free %#x: %w", a.mem.Name(), b.addr, err)
	}
	return nil
}

// Live returns the number of device blocks not yet freed.
func (a *DeviceAllocator) Live() int { return int(a.live.Load()) }

// CopyToHost implements DeviceCopier.
func (a *DeviceAllocator) CopyToHost(dst []byte, b *Block, off int) error {
	return a.mem.CopyToHost(dst, b.addr, off)
}

// CopyFromHost implements DeviceCopier.
func (a *DeviceAllocator) CopyFromHost(b *Block, off int, src []byte) error {
	return a.mem.CopyFromHost(b.addr, off, src)
}

// emulatedBase keeps emulated device addresses far away from the Go heap so
// they are obviously not host pointers.
const (
	emulatedBase  uintptr = 0x7e00_0000_0000
	emulatedAlign uintptr = 256
)

// EmulatedDevice is a DeviceMemory backed by host memory behind synthetic
// device addresses. It stands in for an accelerator when no runtime is
// present, keeping the device-domain rules (no host dereference, explicit
// copies) intact.
type EmulatedDevice struct {
	mu     sync.Mutex
	next   uintptr
	allocs map[uintptr][]byte
}

// NewEmulatedDevice creates an empty emulated device.
func NewEmulatedDevice() *EmulatedDevice {
	return &EmulatedDevice{
		next:   emulatedBase,
		allocs: make(map[uintptr][]byte),
	}
}

// Name returns "emulated".
func (d *EmulatedDevice) Name() string { return "emulated" }

// Malloc reserves size bytes at a fresh aligned address.
func (d *EmulatedDevice) Malloc(size int) (uintptr, error) {
	if size <= 0 {
		return 0, ErrInvalidSize
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := d.next
	d.next += (uintptr(size) + emulatedAlign - 1) &^ (emulatedAlign - 1)
	d.allocs[addr] = make([]byte, size)
	return addr, nil
}

// Free drops the allocation at addr.
func (d *EmulatedDevice) Free(addr uintptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.allocs[addr]; !ok {
		return fmt.Errorf("free %#x: %w", addr, ErrUnknownAddress)
	}
	delete(d.allocs, addr)
	return nil
}

// CopyToHost copies from the allocation at base.
func (d *EmulatedDevice) CopyToHost(dst []byte, base uintptr, off int) error {
	mem, err := d.lookup(base, off, len(dst))
	if err != nil {
		return err
	}
	copy(dst, mem)
	return nil
}

// CopyFromHost copies into the allocation at base.
func (d *EmulatedDevice) CopyFromHost(base uintptr, off int, src []byte) error {
	mem, err := d.lookup(base, off, len(src))
	if err != nil {
		return err
	}
	copy(mem, src)
	return nil
}

func (d *EmulatedDevice) lookup(base uintptr, off, n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.allocs[base]
	if !ok {
		return nil, fmt.Errorf("device address %#x: %w", base, ErrUnknownAddress)
	}
	if off < 0 || off+n > len(mem) {
		return nil, ErrOutOfRange
	}
	return mem[off : off+n], nil
}

// Allocations returns the number of live emulated allocations.
func (d *EmulatedDevice) Allocations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.allocs)
}
