// Package buffer implements shared ownership of media buffers that cross the
// boundary between the decoding pipeline and its host.
//
// Three pieces work together:
//   - Block: one allocation made by an Allocator in a memory Domain.
//   - Shared: the reference-counted owner of a Block. The last Release hands
//     the Block back to its Allocator, exactly once.
//   - Ref: a slot capability that is either empty or bound to a Shared plus a
//     plane Layout. Refs are what a packet record carries.
//
// Raw addresses (Block.Addr, Ref.Addr) are views. Holding one confers no claim
// on the memory; only a Shared reference does. Consumers that only have an
// address resolve it through the Pool that issued it.
package buffer

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrNotHostAddressable is returned when host bytes are requested for device memory.
	ErrNotHostAddressable = errors.New("buffer: memory is not host addressable")

	// ErrUnknownAddress is returned when an address does not belong to a live buffer.
	ErrUnknownAddress = errors.New("buffer: address is not owned by a live buffer")

	// ErrInvalidSize is returned for zero or negative allocation sizes.
	ErrInvalidSize = errors.New("buffer: invalid allocation size")

	// ErrOutOfRange is returned when a layout or copy exceeds the allocation.
	ErrOutOfRange = errors.New("buffer: range exceeds allocation")

	// ErrEmpty is returned when an empty Ref is used as if it were bound.
	ErrEmpty = errors.New("buffer: handle is empty")

	// ErrClosed is returned by allocators after Close.
	ErrClosed = errors.New("buffer: allocator closed")
)

// Domain identifies which memory space an address belongs to.
type Domain int

const (
	// DomainHost is pageable host memory owned by the Go heap.
	DomainHost Domain = iota
	// DomainMapped is pinned or mapped host memory outside the Go heap.
	DomainMapped
	// DomainDevice is accelerator memory. It cannot be dereferenced on the host.
	DomainDevice
)

// String returns the string representation of the domain.
func (d Domain) String() string {
	switch d {
	case DomainHost:
		return "host"
	case DomainMapped:
		return "mapped"
	case DomainDevice:
		return "device"
	default:
		return "unknown"
	}
}

// HostAddressable reports whether addresses in this domain can be read on the host.
func (d Domain) HostAddressable() bool {
	return d == DomainHost || d == DomainMapped
}

// Block is a single allocation. data is nil for device memory.
type Block struct {
	domain Domain
	addr   uintptr
	size   int
	data   []byte
	tag    any
}

// NewBlock describes an allocation made by an external allocator.
// data must be nil for DomainDevice and len(data) == size otherwise.
func NewBlock(domain Domain, addr uintptr, size int, data []byte) *Block {
	return &Block{domain: domain, addr: addr, size: size, data: data}
}

// Domain returns the memory domain of the block.
func (b *Block) Domain() Domain { return b.domain }

// Addr returns the start address of the block.
func (b *Block) Addr() uintptr { return b.addr }

// Size returns the size of the block in bytes.
func (b *Block) Size() int { return b.size }

// Bytes returns the host view of the block.
func (b *Block) Bytes() ([]byte, error) {
	if !b.domain.HostAddressable() || b.data == nil {
		return nil, ErrNotHostAddressable
	}
	return b.data, nil
}

// Allocator hands out Blocks of one Domain and takes them back.
type Allocator interface {
	// Domain returns the memory domain of every block this allocator returns.
	Domain() Domain

	// Alloc returns a block of at least size bytes.
	Alloc(size int) (*Block, error)

	// Free returns a block to the allocator. Called once per block.
	Free(b *Block) error

	// Live returns the number of blocks handed out and not yet freed.
	Live() int
}

// DeviceCopier is implemented by allocators whose blocks are not host
// addressable. Offsets are relative to the block start.
type DeviceCopier interface {
	CopyToHost(dst []byte, b *Block, off int) error
	CopyFromHost(b *Block, off int, src []byte) error
}

var allocatedTotal atomic.Int64

// Allocated returns the number of blocks created by the built-in allocators
// since process start, including recycled ones handed out again.
func Allocated() int64 {
	return allocatedTotal.Load()
}
