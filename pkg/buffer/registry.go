package buffer

import (
	"errors"
	"fmt"
	"sync"
)

// Resolver maps a frame or bitstream address back to its owning buffer.
type Resolver interface {
	Resolve(addr uintptr) (*Shared, error)
}

var _ Resolver = (*Pool)(nil)
var _ Resolver = (*Registry)(nil)

// Registry resolves addresses across several pools, for consumers that
// receive addresses from more than one memory domain.
type Registry struct {
	mu    sync.RWMutex
	pools []Resolver
}

// NewRegistry creates a registry over pools.
func NewRegistry(pools ...Resolver) *Registry {
	r := &Registry{}
	for _, p := range pools {
		r.Add(p)
	}
	return r
}

// Add registers another pool. Nil resolvers are ignored.
func (r *Registry) Add(p Resolver) {
	if p == nil {
		return
	}
	r.mu.Lock()
	r.pools = append(r.pools, p)
	r.mu.Unlock()
}

// Resolve asks each pool in registration order.
func (r *Registry) Resolve(addr uintptr) (*Shared, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.pools {
		s, err := p.Resolve(addr)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrUnknownAddress) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("resolve %#x: %w", addr, ErrUnknownAddress)
}
