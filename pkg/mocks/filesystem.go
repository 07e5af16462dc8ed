package mocks

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/user/videobridge/pkg/ports"
)

// FileSystem is a mock implementation of ports.FileSystem.
type FileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool

	temps int

	ReadFileFunc   func(path string) ([]byte, error)
	WriteFileFunc  func(path string, data []byte) error
	CreateTempFunc func(pattern string) (ports.TempFile, error)
	MkdirAllFunc   func(path string) error
	ExistsFunc     func(path string) (bool, error)
	RemoveFunc     func(path string) error
}

// NewFileSystem creates a new mock FileSystem.
func NewFileSystem() *FileSystem {
	return &FileSystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

func (m *FileSystem) ReadFile(path string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(path)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if data, ok := m.files[path]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("file not found: %s", path)
}

func (m *FileSystem) WriteFile(path string, data []byte) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(path, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
	return nil
}

func (m *FileSystem) Open(path string) (io.ReadSeekCloser, error) {
	data, err := m.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &memFile{Reader: bytes.NewReader(data)}, nil
}

func (m *FileSystem) OpenAppend(path string) (io.WriteCloser, error) {
	return &appender{fs: m, path: path}, nil
}

func (m *FileSystem) CreateTemp(pattern string) (ports.TempFile, error) {
	if m.CreateTempFunc != nil {
		return m.CreateTempFunc(pattern)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.temps++
	name := fmt.Sprintf("/tmp/%s.%d", pattern, m.temps)
	return &tempFile{name: name}, nil
}

func (m *FileSystem) MkdirAll(path string) error {
	if m.MkdirAllFunc != nil {
		return m.MkdirAllFunc(path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = true
	return nil
}

func (m *FileSystem) Exists(path string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(path)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.files[path]; ok {
		return true, nil
	}
	if _, ok := m.dirs[path]; ok {
		return true, nil
	}
	return false, nil
}

func (m *FileSystem) Remove(path string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	delete(m.dirs, path)
	return nil
}

// GetFile returns the contents of a file (for test verification).
func (m *FileSystem) GetFile(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	return data, ok
}

// GetAllFiles returns all files (for test verification).
func (m *FileSystem) GetAllFiles() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]byte)
	for k, v := range m.files {
		result[k] = v
	}
	return result
}

// TempFiles returns how many scratch files were created.
func (m *FileSystem) TempFiles() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.temps
}

var _ ports.FileSystem = (*FileSystem)(nil)

type memFile struct {
	*bytes.Reader
}

func (f *memFile) Close() error { return nil }

type appender struct {
	fs   *FileSystem
	path string
}

func (a *appender) Write(p []byte) (int, error) {
	a.fs.mu.Lock()
	defer a.fs.mu.Unlock()
	a.fs.files[a.path] = append(a.fs.files[a.path], p...)
	return len(p), nil
}

func (a *appender) Close() error { return nil }

// tempFile is an in-memory scratch file, never visible through ReadFile.
type tempFile struct {
	name   string
	data   []byte
	off    int64
	closed bool
}

func (t *tempFile) Name() string { return t.name }

func (t *tempFile) Read(p []byte) (int, error) {
	if t.off >= int64(len(t.data)) {
		return 0, io.EOF
	}
	n := copy(p, t.data[t.off:])
	t.off += int64(n)
	return n, nil
}

func (t *tempFile) Write(p []byte) (int, error) {
	if t.closed {
		return 0, errors.New("mocks: write to closed temp file")
	}
	end := t.off + int64(len(p))
	if end > int64(len(t.data)) {
		t.data = append(t.data, make([]byte, end-int64(len(t.data)))...)
	}
	copy(t.data[t.off:], p)
	t.off = end
	return len(p), nil
}

func (t *tempFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = t.off + offset
	case io.SeekEnd:
		next = int64(len(t.data)) + offset
	}
	if next < 0 {
		return 0, errors.New("mocks: negative offset")
	}
	t.off = next
	return next, nil
}

func (t *tempFile) Close() error {
	t.closed = true
	return nil
}
