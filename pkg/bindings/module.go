// Package bindings exposes the decoder, CPU decoder, demuxer, stream
// provider and buffer export capabilities to an embedding host through a
// namespace of named symbols.
//
// A host builds a root Module, calls Init (or the individual initializers)
// once at startup and then looks symbols up by dotted path, for example
// "decodercpu.New" or "demuxer.SeekExactFrame".
package bindings

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrDuplicateSymbol is returned when a name is already defined in a module.
	ErrDuplicateSymbol = errors.New("bindings: duplicate symbol")
	// ErrSymbolNotFound is returned by Lookup for undefined paths.
	ErrSymbolNotFound = errors.New("bindings: symbol not found")
)

// Module is a namespace handle. Symbols and submodules share one name space.
// Safe for concurrent use.
type Module struct {
	name string

	mu      sync.RWMutex
	symbols map[string]any
	subs    map[string]*Module
	applied map[string]bool
}

// NewModule creates an empty root module.
func NewModule(name string) *Module {
	return &Module{
		name:    name,
		symbols: make(map[string]any),
		subs:    make(map[string]*Module),
		applied: make(map[string]bool),
	}
}

// Name returns the module's own name.
func (m *Module) Name() string { return m.name }

// Def defines name in m.
func (m *Module) Def(name string, value any) error {
	if name == "" || strings.Contains(name, ".") {
		return fmt.Errorf("bindings: invalid symbol name %q", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.symbols[name]; ok {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateSymbol, m.name, name)
	}
	if _, ok := m.subs[name]; ok {
		return fmt.Errorf("%w: %s.%s is a submodule", ErrDuplicateSymbol, m.name, name)
	}
	m.symbols[name] = value
	return nil
}

// Submodule returns the child module called name, creating it on first use.
// It panics when name is already a symbol.
func (m *Module) Submodule(name string) *Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[name]; ok {
		return sub
	}
	if _, ok := m.symbols[name]; ok {
		panic(fmt.Sprintf("bindings: %s.%s is a symbol, not a module", m.name, name))
	}
	sub := NewModule(m.name + "." + name)
	m.subs[name] = sub
	return sub
}

// Lookup resolves a dotted path relative to m.
func (m *Module) Lookup(path string) (any, error) {
	parts := strings.Split(path, ".")
	cur := m
	for _, part := range parts[:len(parts)-1] {
		cur.mu.RLock()
		next, ok := cur.subs[part]
		cur.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, path)
		}
		cur = next
	}

	last := parts[len(parts)-1]
	cur.mu.RLock()
	defer cur.mu.RUnlock()
	if v, ok := cur.symbols[last]; ok {
		return v, nil
	}
	if sub, ok := cur.subs[last]; ok {
		return sub, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, path)
}

// Names lists the symbols and submodules of m, sorted.
func (m *Module) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.symbols)+len(m.subs))
	for n := range m.symbols {
		names = append(names, n)
	}
	for n := range m.subs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// apply runs define once per module and key. Later calls are no-ops.
func (m *Module) apply(key string, define func(d *definer)) {
	m.mu.Lock()
	if m.applied[key] {
		m.mu.Unlock()
		return
	}
	m.applied[key] = true
	m.mu.Unlock()

	d := &definer{m: m}
	define(d)
}

// definer defines a batch of symbols. A clash is a programming error in the
// host and panics, as an initializer has no error return.
type definer struct {
	m *Module
}

func (d *definer) def(name string, value any) {
	if err := d.m.Def(name, value); err != nil {
		panic(err)
	}
}
