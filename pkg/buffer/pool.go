package buffer

import (
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Pool issues Shared buffers from one Allocator and keeps the table of live
// addresses, so a consumer holding only an address can resolve it back to an
// owner instead of dereferencing it.
type Pool struct {
	alloc Allocator

	mu   sync.RWMutex
	live map[uintptr]*Shared

	errMu    sync.Mutex
	freeErrs *multierror.Error
}

// NewPool creates a pool over alloc. No memory is allocated until Get.
func NewPool(alloc Allocator) *Pool {
	return &Pool{
		alloc: alloc,
		live:  make(map[uintptr]*Shared),
	}
}

// Domain returns the memory domain of buffers issued by the pool.
func (p *Pool) Domain() Domain { return p.alloc.Domain() }

// Allocator returns the underlying allocator.
func (p *Pool) Allocator() Allocator { return p.alloc }

// Get allocates a buffer of size bytes. The caller holds one reference.
func (p *Pool) Get(size int) (*Shared, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	block, err := p.alloc.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("alloc %d bytes in %s memory: %w", size, p.alloc.Domain(), err)
	}
	s := NewShared(p.alloc, block)
	s.pool = p

	p.mu.Lock()
	p.live[block.addr] = s
	p.mu.Unlock()
	return s, nil
}

// Resolve returns the live buffer starting at addr with an extra reference the
// caller must release. Addresses of released buffers fail with ErrUnknownAddress.
func (p *Pool) Resolve(addr uintptr) (*Shared, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.live[addr]
	if !ok || !s.tryAcquire() {
		return nil, fmt.Errorf("resolve %#x: %w", addr, ErrUnknownAddress)
	}
	return s, nil
}

// Live returns the number of buffers issued and not yet freed.
func (p *Pool) Live() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.live)
}

func (p *Pool) forget(s *Shared) {
	p.mu.Lock()
	if p.live[s.block.addr] == s {
		delete(p.live, s.block.addr)
	}
	p.mu.Unlock()
}

func (p *Pool) recordFreeError(err error) {
	p.errMu.Lock()
	p.freeErrs = multierror.Append(p.freeErrs, err)
	p.errMu.Unlock()
}

// Close reports errors collected while freeing buffers and closes the
// allocator when it implements io.Closer. Buffers still held stay valid until
// their holders release them.
func (p *Pool) Close() error {
	p.errMu.Lock()
	result := p.freeErrs
	p.freeErrs = nil
	p.errMu.Unlock()

	if c, ok := p.alloc.(io.Closer); ok {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
