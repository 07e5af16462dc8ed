//go:build !linux

package hip

// Available reports false: HIP is only loaded on Linux.
func Available() bool { return false }

// DeviceCount always fails on this platform.
func DeviceCount() (int, error) { return 0, ErrUnavailable }

// Props always fails on this platform.
func Props(int) (DeviceProps, error) { return DeviceProps{}, ErrUnavailable }

// Memory is unavailable on this platform.
type Memory struct{}

// Open always fails on this platform.
func Open(int) (*Memory, error) { return nil, ErrUnavailable }

func (m *Memory) Name() string                            { return "hip" }
func (m *Memory) Malloc(int) (uintptr, error)             { return 0, ErrUnavailable }
func (m *Memory) Free(uintptr) error                      { return ErrUnavailable }
func (m *Memory) CopyToHost([]byte, uintptr, int) error   { return ErrUnavailable }
func (m *Memory) CopyFromHost(uintptr, int, []byte) error { return ErrUnavailable }
