//go:build unix

package buffer

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MappedSupported reports whether MappedAllocator can allocate.
const MappedSupported = true

// MappedAllocator allocates anonymous mappings outside the Go heap and tries
// to lock them in RAM, giving page-locked staging memory for device copies.
// Locking is best effort: RLIMIT_MEMLOCK commonly forbids it for
// unprivileged processes, in which case the mapping stays pageable.
type MappedAllocator struct {
	mu     sync.Mutex
	live   int
	locked int
	closed bool
}

// NewMappedAllocator creates a mapped allocator.
func NewMappedAllocator() *MappedAllocator {
	return &MappedAllocator{}
}

// Domain returns DomainMapped.
func (a *MappedAllocator) Domain() Domain { return DomainMapped }

// Alloc maps size bytes, rounded up to whole pages by the kernel.
func (a *MappedAllocator) Alloc(size int) (*Block, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	locked := unix.Mlock(data) == nil

	a.mu.Lock()
	a.live++
	if locked {
		a.locked++
	}
	a.mu.Unlock()
	allocatedTotal.Add(1)

	return &Block{
		domain: DomainMapped,
		addr:   uintptr(unsafe.Pointer(&data[0])),
		size:   size,
		data:   data,
		tag:    locked,
	}, nil
}

// Free unlocks and unmaps b.
func (a *MappedAllocator) Free(b *Block) error {
	locked, _ := b.tag.(bool)
	if locked {
		_ = unix.Munlock(b.data)
	}
	err := unix.Munmap(b.data)

	a.mu.Lock()
	a.live--
	if locked {
		a.locked--
	}
	a.mu.Unlock()

	if err != nil {
		return fmt.Errorf("munmap %#x: %w", b.addr, err)
	}
	return nil
}

// Live returns the number of mappings not yet freed.
func (a *MappedAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Locked returns the number of live mappings that are page-locked.
func (a *MappedAllocator) Locked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locked
}

// Close rejects further allocations. Live mappings are unmapped by Free.
func (a *MappedAllocator) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}
