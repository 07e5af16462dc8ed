package buffer

import (
	"fmt"
	"sync"
)

// Layout places one plane inside a buffer.
type Layout struct {
	Offset   int // Byte offset of the first row
	Width    int // Elements per row
	Height   int // Rows
	Pitch    int // Bytes between row starts
	ElemSize int // Bytes per element (1 for 8-bit, 2 for 16-bit samples)
}

// Span returns the number of bytes the plane covers starting at Offset.
func (l Layout) Span() int {
	if l.Height == 0 {
		return 0
	}
	return l.Pitch*(l.Height-1) + l.Width*l.ElemSize
}

func (l Layout) validate(size int) error {
	if l.Offset < 0 || l.Width < 0 || l.Height < 0 || l.ElemSize <= 0 || l.Pitch < l.Width*l.ElemSize {
		return fmt.Errorf("invalid layout %+v: %w", l, ErrOutOfRange)
	}
	if l.Offset+l.Span() > size {
		return fmt.Errorf("layout %+v exceeds %d bytes: %w", l, size, ErrOutOfRange)
	}
	return nil
}

// Ref is the buffer capability carried in one packet slot. It is either
// empty or bound to a Shared owner; while bound it holds one reference.
// A Ref never owns memory directly. Safe for concurrent use.
type Ref struct {
	mu     sync.Mutex
	owner  *Shared
	layout Layout
}

// NewRef returns an empty Ref.
func NewRef() *Ref {
	return &Ref{}
}

// Bind points the Ref at owner with the given plane layout. The new owner is
// acquired before the previous one is released, so rebinding to the same
// owner never frees it.
func (r *Ref) Bind(owner *Shared, layout Layout) error {
	if owner == nil {
		r.Reset()
		return nil
	}
	if err := layout.validate(owner.Size()); err != nil {
		return err
	}
	owner.Acquire()

	r.mu.Lock()
	prev := r.owner
	r.owner = owner
	r.layout = layout
	r.mu.Unlock()

	if prev != nil {
		prev.Release()
	}
	return nil
}

// Reset releases the bound owner, if any, and empties the Ref.
func (r *Ref) Reset() {
	r.mu.Lock()
	prev := r.owner
	r.owner = nil
	r.layout = Layout{}
	r.mu.Unlock()

	if prev != nil {
		prev.Release()
	}
}

// Empty reports whether the Ref is unbound.
func (r *Ref) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner == nil
}

// Layout returns the plane layout, zero when empty.
func (r *Ref) Layout() Layout {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.layout
}

// Addr returns the plane start address, 0 when empty.
func (r *Ref) Addr() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner == nil {
		return 0
	}
	return r.owner.Addr() + uintptr(r.layout.Offset)
}

// Domain returns the memory domain of the bound owner.
func (r *Ref) Domain() (Domain, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner == nil {
		return 0, false
	}
	return r.owner.Domain(), true
}

// Acquire returns the bound owner with an extra reference, for holders that
// must outlive the slot. The caller releases it.
func (r *Ref) Acquire() (*Shared, Layout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner == nil {
		return nil, Layout{}, ErrEmpty
	}
	return r.owner.Acquire(), r.layout, nil
}

// ReadPlane copies the plane rows into a tightly packed slice.
func (r *Ref) ReadPlane() ([]byte, error) {
	owner, l, err := r.Acquire()
	if err != nil {
		return nil, err
	}
	defer owner.Release()

	row := l.Width * l.ElemSize
	out := make([]byte, row*l.Height)
	if l.Pitch == row {
		if err := owner.ReadAt(out, l.Offset); err != nil {
			return nil, err
		}
		return out, nil
	}
	for y := 0; y < l.Height; y++ {
		if err := owner.ReadAt(out[y*row:(y+1)*row], l.Offset+y*l.Pitch); err != nil {
			return nil, err
		}
	}
	return out, nil
}
