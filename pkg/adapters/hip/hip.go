// Package hip binds the subset of the AMD HIP runtime needed to allocate and
// copy device memory and to describe devices. The library is loaded at run
// time, so binaries build and run on machines without ROCm.
package hip

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnavailable is returned when the HIP runtime library cannot be loaded.
	ErrUnavailable = errors.New("hip: runtime not available")
	// ErrBadBusID is returned for malformed PCI bus id strings.
	ErrBadBusID = errors.New("hip: malformed PCI bus id")
)

// Error is a non-zero hipError_t.
type Error struct {
	Op   string
	Code int32
}

func (e *Error) Error() string {
	return fmt.Sprintf("hip: %s failed with hipError_t %d", e.Op, e.Code)
}

func check(op string, code int32) error {
	if code == 0 {
		return nil
	}
	return &Error{Op: op, Code: code}
}

// DeviceProps is what the runtime reports about one device.
type DeviceProps struct {
	Name     string
	Arch     string
	Domain   int
	Bus      int
	Device   int
	Function int
}

// ParsePCIBusID parses "dddd:bb:dd.f" (hex fields) as returned by
// hipDeviceGetPCIBusId. The domain may be omitted.
func ParsePCIBusID(s string) (domain, bus, device, function int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		parts = append([]string{"0"}, parts...)
	case 3:
	default:
		return 0, 0, 0, 0, fmt.Errorf("%w: %q", ErrBadBusID, s)
	}
	devFn := strings.SplitN(parts[2], ".", 2)
	fields := []string{parts[0], parts[1], devFn[0]}
	if len(devFn) == 2 {
		fields = append(fields, devFn[1])
	} else {
		fields = append(fields, "0")
	}

	vals := make([]int, len(fields))
	for i, f := range fields {
		v, perr := strconv.ParseUint(f, 16, 32)
		if perr != nil {
			return 0, 0, 0, 0, fmt.Errorf("%w: %q", ErrBadBusID, s)
		}
		vals[i] = int(v)
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

// cString trims a NUL-terminated buffer filled by the runtime.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
