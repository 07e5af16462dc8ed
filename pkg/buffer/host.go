package buffer

import (
	"sync"
	"unsafe"
)

// DefaultMaxIdle is the number of freed blocks kept per size for reuse.
const DefaultMaxIdle = 8

// HostAllocator allocates pageable host memory from the Go heap and recycles
// freed blocks of the same size. Decoders produce surfaces of a fixed size per
// stream, so exact-size buckets cover the common case.
type HostAllocator struct {
	mu      sync.Mutex
	idle    map[int][]*Block
	maxIdle int
	live    int
	reused  int
	closed  bool
}

// NewHostAllocator creates a host allocator keeping up to maxIdle freed blocks
// per size. maxIdle <= 0 uses DefaultMaxIdle.
func NewHostAllocator(maxIdle int) *HostAllocator {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	return &HostAllocator{
		idle:    make(map[int][]*Block),
		maxIdle: maxIdle,
	}
}

// Domain returns DomainHost.
func (a *HostAllocator) Domain() Domain { return DomainHost }

// Alloc returns a zero-length-safe block of size bytes, reusing a freed one
// when available. Recycled blocks keep their previous contents.
func (a *HostAllocator) Alloc(size int) (*Block, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	a.live++
	allocatedTotal.Add(1)
	if free := a.idle[size]; len(free) > 0 {
		b := free[len(free)-1]
		a.idle[size] = free[:len(free)-1]
		a.reused++
		return b, nil
	}

	data := make([]byte, size)
	return &Block{
		domain: DomainHost,
		addr:   uintptr(unsafe.Pointer(&data[0])),
		size:   size,
		data:   data,
	}, nil
}

// Free returns b to the idle list, or drops it when the list is full.
func (a *HostAllocator) Free(b *Block) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.live--
	if a.closed || len(a.idle[b.size]) >= a.maxIdle {
		return nil
	}
	a.idle[b.size] = append(a.idle[b.size], b)
	return nil
}

// Live returns the number of blocks handed out and not yet freed.
func (a *HostAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Reused returns how many allocations were served from the idle list.
func (a *HostAllocator) Reused() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reused
}

// Close drops idle blocks and rejects further allocations.
// Blocks still held can be freed afterwards.
func (a *HostAllocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.idle = make(map[int][]*Block)
	return nil
}
