package buffer

import (
	"fmt"
	"sync/atomic"
)

// Shared is the reference-counted owner of one Block.
// Its lifetime is the longest of all holders: every Acquire must be matched by
// one Release, and the Release that drops the count to zero frees the Block.
// Acquire and Release are safe for concurrent use.
type Shared struct {
	refs  atomic.Int64
	block *Block
	alloc Allocator
	pool  *Pool
}

// NewShared wraps block with a count of one. The caller holds that reference.
func NewShared(alloc Allocator, block *Block) *Shared {
	s := &Shared{block: block, alloc: alloc}
	s.refs.Store(1)
	return s
}

// Acquire adds a holder and returns s for chaining.
// Acquiring a buffer whose last holder already released it is an ownership
// violation and panics.
func (s *Shared) Acquire() *Shared {
	if !s.tryAcquire() {
		panic("buffer: acquire of a released buffer")
	}
	return s
}

func (s *Shared) tryAcquire() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops one holder. The last Release frees the block.
func (s *Shared) Release() {
	n := s.refs.Add(-1)
	switch {
	case n == 0:
		s.free()
	case n < 0:
		panic("buffer: release of a buffer with no holders")
	}
}

func (s *Shared) free() {
	if s.pool != nil {
		s.pool.forget(s)
	}
	err := s.alloc.Free(s.block)
	if err != nil && s.pool != nil {
		s.pool.recordFreeError(err)
	}
}

// Refs returns the current number of holders.
func (s *Shared) Refs() int64 { return s.refs.Load() }

// Addr returns the start address of the underlying block.
func (s *Shared) Addr() uintptr { return s.block.addr }

// Size returns the size of the underlying block in bytes.
func (s *Shared) Size() int { return s.block.size }

// Domain returns the memory domain of the underlying block.
func (s *Shared) Domain() Domain { return s.block.domain }

// Bytes returns the host view of the whole buffer.
func (s *Shared) Bytes() ([]byte, error) { return s.block.Bytes() }

// ReadAt copies len(dst) bytes starting at off into dst, going through the
// owning allocator for device memory.
func (s *Shared) ReadAt(dst []byte, off int) error {
	if off < 0 || off+len(dst) > s.block.size {
		return fmt.Errorf("read %d bytes at %d of %d: %w", len(dst), off, s.block.size, ErrOutOfRange)
	}
	if data, err := s.block.Bytes(); err == nil {
		copy(dst, data[off:off+len(dst)])
		return nil
	}
	copier, ok := s.alloc.(DeviceCopier)
	if !ok {
		return ErrNotHostAddressable
	}
	return copier.CopyToHost(dst, s.block, off)
}

// WriteAt copies src into the buffer starting at off.
func (s *Shared) WriteAt(src []byte, off int) error {
	if off < 0 || off+len(src) > s.block.size {
		return fmt.Errorf("write %d bytes at %d of %d: %w", len(src), off, s.block.size, ErrOutOfRange)
	}
	if data, err := s.block.Bytes(); err == nil {
		copy(data[off:], src)
		return nil
	}
	copier, ok := s.alloc.(DeviceCopier)
	if !ok {
		return ErrNotHostAddressable
	}
	return copier.CopyFromHost(s.block, off, src)
}
