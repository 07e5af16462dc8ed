//go:build !unix

package buffer

import "errors"

// ErrMappedUnsupported is returned on platforms without mmap.
var ErrMappedUnsupported = errors.New("buffer: mapped memory not supported on this platform")

// MappedSupported reports whether MappedAllocator can allocate.
const MappedSupported = false

// MappedAllocator is unavailable on this platform; every Alloc fails.
type MappedAllocator struct{}

// NewMappedAllocator creates a mapped allocator stub.
func NewMappedAllocator() *MappedAllocator { return &MappedAllocator{} }

// Domain returns DomainMapped.
func (a *MappedAllocator) Domain() Domain { return DomainMapped }

// Alloc always fails.
func (a *MappedAllocator) Alloc(size int) (*Block, error) { return nil, ErrMappedUnsupported }

// Free is a no-op.
func (a *MappedAllocator) Free(b *Block) error { return nil }

// Live always returns 0.
func (a *MappedAllocator) Live() int { return 0 }

// Locked always returns 0.
func (a *MappedAllocator) Locked() int { return 0 }

// Close is a no-op.
func (a *MappedAllocator) Close() error { return nil }
