package mocks

import (
	"image"
	"sync"

	"github.com/user/videobridge/pkg/ports"
	"github.com/user/videobridge/pkg/surface"
)

// RawFrame is one AppendRaw call.
type RawFrame struct {
	Info   surface.Info
	Planes [][]byte
}

// Snapshot is one SaveSnapshot call.
type Snapshot struct {
	Image image.Image
	Label string
}

// FrameSink is a mock implementation of ports.FrameSink.
type FrameSink struct {
	mu sync.RWMutex

	Raw       map[string][]RawFrame
	Snapshots map[string]Snapshot
	Closed    bool

	AppendRawFunc func(path string, info surface.Info, planes [][]byte) error
}

// NewFrameSink creates a new mock FrameSink.
func NewFrameSink() *FrameSink {
	return &FrameSink{
		Raw:       make(map[string][]RawFrame),
		Snapshots: make(map[string]Snapshot),
	}
}

func (m *FrameSink) AppendRaw(path string, info surface.Info, planes [][]byte) error {
	if m.AppendRawFunc != nil {
		return m.AppendRawFunc(path, info, planes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Raw[path] = append(m.Raw[path], RawFrame{Info: info, Planes: planes})
	return nil
}

func (m *FrameSink) SaveSnapshot(path string, img image.Image, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snapshots[path] = Snapshot{Image: img, Label: label}
	return nil
}

func (m *FrameSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Frames returns the frames appended to path.
func (m *FrameSink) Frames(path string) []RawFrame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RawFrame(nil), m.Raw[path]...)
}

var _ ports.FrameSink = (*FrameSink)(nil)
