package mocks

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/user/videobridge/pkg/buffer"
)

// ErrDoubleFree is recorded when a block is freed twice.
var ErrDoubleFree = errors.New("mocks: block freed twice")

// Allocator is a counting buffer.Allocator for ownership tests.
type Allocator struct {
	AllocDomain buffer.Domain
	AllocFunc   func(size int) error // optional failure injection
	FreeErr     error                // returned by every Free when set

	mu         sync.Mutex
	live       map[*buffer.Block]bool
	freed      map[*buffer.Block]int
	allocs     int
	frees      int
	doubleFree int
}

// NewAllocator creates a counting host-domain allocator.
func NewAllocator() *Allocator {
	return &Allocator{
		AllocDomain: buffer.DomainHost,
		live:        make(map[*buffer.Block]bool),
		freed:       make(map[*buffer.Block]int),
	}
}

func (m *Allocator) Domain() buffer.Domain {
	return m.AllocDomain
}

func (m *Allocator) Alloc(size int) (*buffer.Block, error) {
	if m.AllocFunc != nil {
		if err := m.AllocFunc(size); err != nil {
			return nil, err
		}
	}
	data := make([]byte, size)
	b := buffer.NewBlock(m.AllocDomain, uintptr(unsafe.Pointer(&data[0])), size, data)

	m.mu.Lock()
	m.live[b] = true
	m.allocs++
	m.mu.Unlock()
	return b, nil
}

func (m *Allocator) Free(b *buffer.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frees++
	m.freed[b]++
	if !m.live[b] {
		m.doubleFree++
		return ErrDoubleFree
	}
	delete(m.live, b)
	return m.FreeErr
}

func (m *Allocator) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Allocs returns the number of successful allocations.
func (m *Allocator) Allocs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocs
}

// Frees returns the number of Free calls.
func (m *Allocator) Frees() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frees
}

// DoubleFrees returns the number of Free calls for blocks not live.
func (m *Allocator) DoubleFrees() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doubleFree
}

var _ buffer.Allocator = (*Allocator)(nil)
