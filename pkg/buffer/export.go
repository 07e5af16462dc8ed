package buffer

import (
	"fmt"
	"sync/atomic"
)

// DeviceType follows the DLPack device type codes.
type DeviceType int32

const (
	DeviceCPU      DeviceType = 1
	DeviceCUDA     DeviceType = 2
	DeviceCUDAHost DeviceType = 3
	DeviceROCM     DeviceType = 10
	DeviceROCMHost DeviceType = 11
)

func (t DeviceType) String() string {
	switch t {
	case DeviceCPU:
		return "cpu"
	case DeviceCUDA:
		return "cuda"
	case DeviceCUDAHost:
		return "cuda_host"
	case DeviceROCM:
		return "rocm"
	case DeviceROCMHost:
		return "rocm_host"
	default:
		return "unknown"
	}
}

// Device is the DLPack device descriptor.
type Device struct {
	Type DeviceType
	ID   int
}

// DTypeCode follows the DLPack data type codes.
type DTypeCode uint8

const (
	DTypeInt   DTypeCode = 0
	DTypeUint  DTypeCode = 1
	DTypeFloat DTypeCode = 2
)

// DType describes one tensor element.
type DType struct {
	Code  DTypeCode
	Bits  uint8
	Lanes uint16
}

// Tensor is a zero-copy view over one plane, shaped for array libraries on
// the host side. It holds its own reference to the plane's owner; Close
// releases it. Data stays valid until Close even if the slot it came from is
// rebound or reset.
type Tensor struct {
	Data       uintptr
	Device     Device
	DType      DType
	Shape      []int64 // rows, columns
	Strides    []int64 // in elements
	ByteOffset uint64

	owner  *Shared
	closed atomic.Bool
}

// Close releases the tensor's reference. Further calls are no-ops.
func (t *Tensor) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		t.owner.Release()
	}
	return nil
}

// Export builds a Tensor over the plane bound to r.
// deviceID is reported in the descriptor for device and mapped memory.
func (r *Ref) Export(deviceID int) (*Tensor, error) {
	owner, l, err := r.Acquire()
	if err != nil {
		return nil, err
	}
	if l.Pitch%l.ElemSize != 0 {
		owner.Release()
		return nil, fmt.Errorf("pitch %d not a multiple of element size %d: %w", l.Pitch, l.ElemSize, ErrOutOfRange)
	}

	dev := Device{Type: DeviceCPU}
	switch owner.Domain() {
	case DomainDevice:
		dev = Device{Type: DeviceROCM, ID: deviceID}
	case DomainMapped:
		dev = Device{Type: DeviceROCMHost, ID: deviceID}
	}

	return &Tensor{
		Data:    owner.Addr() + uintptr(l.Offset),
		Device:  dev,
		DType:   DType{Code: DTypeUint, Bits: uint8(l.ElemSize * 8), Lanes: 1},
		Shape:   []int64{int64(l.Height), int64(l.Width)},
		Strides: []int64{int64(l.Pitch / l.ElemSize), 1},
		owner:   owner,
	}, nil
}
