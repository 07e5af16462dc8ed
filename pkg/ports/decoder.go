package ports

import (
	"errors"
	"time"

	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/device"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/surface"
)

// ErrNoFrame is returned by GetFrame when no decoded frame is queued.
var ErrNoFrame = errors.New("decoder: no frame ready")

// Rect is a crop rectangle in luma pixels. Right and Bottom are exclusive.
type Rect struct {
	Left, Top, Right, Bottom int
}

// Empty reports whether r selects no pixels.
func (r Rect) Empty() bool { return r.Right <= r.Left || r.Bottom <= r.Top }

// Width returns the rectangle width.
func (r Rect) Width() int { return r.Right - r.Left }

// Height returns the rectangle height.
func (r Rect) Height() int { return r.Bottom - r.Top }

// Dimension is a target size for resizing.
type Dimension struct {
	Width, Height int
}

// Zero reports whether either side is zero, meaning "do not resize".
func (d Dimension) Zero() bool { return d.Width <= 0 || d.Height <= 0 }

// RGBFormat is the packed layout produced by GetFrameRGB.
type RGBFormat int

const (
	RGB24 RGBFormat = iota
	BGR24
	RGBA32
)

func (f RGBFormat) String() string {
	switch f {
	case RGB24:
		return "rgb24"
	case BGR24:
		return "bgr24"
	case RGBA32:
		return "rgba"
	default:
		return "unknown"
	}
}

// BytesPerPixel returns the packed pixel size.
func (f RGBFormat) BytesPerPixel() int {
	if f == RGBA32 {
		return 4
	}
	return 3
}

// FlushMode selects what happens to queued frames when the decoder is
// reconfigured for a new stream resolution.
type FlushMode int

const (
	// FlushNone drops queued frames.
	FlushNone FlushMode = iota
	// FlushDump appends queued frames to ReconfigParams.DumpPath.
	FlushDump
	// FlushSegment keeps queued frames deliverable through GetFrame.
	FlushSegment
)

func (m FlushMode) String() string {
	switch m {
	case FlushNone:
		return "none"
	case FlushDump:
		return "dump"
	case FlushSegment:
		return "segment"
	default:
		return "unknown"
	}
}

// ReconfigParams controls decoder reconfiguration.
type ReconfigParams struct {
	FlushMode FlushMode
	DumpPath  string
}

// VideoDecoder decodes demuxed packets into surfaces exposed through the
// packet's plane slots.
//
// Frames are returned in the order the decoder finalized them. GetFrame binds
// the next surface into pkt; the surface stays alive as long as any slot or
// exported tensor holds it. ReleaseFrame drops the packet's references.
type VideoDecoder interface {
	// SetStreamInfo announces the coded stream. A change in size or depth
	// reconfigures the decoder.
	SetStreamInfo(info StreamInfo) error

	// DecodeFrame submits pkt's bitstream and returns the number of frames
	// ready for GetFrame. An end-of-stream packet drains the decoder.
	DecodeFrame(pkt *packet.PacketData) (int, error)
	GetFrame(pkt *packet.PacketData) error
	ReleaseFrame(pkt *packet.PacketData)

	// ResizeFrame scales the current frame into a separate host surface and
	// sets pkt.FrameAddrResized. It returns the resized size in bytes, or 0
	// when no resize was needed.
	ResizeFrame(pkt *packet.PacketData, dim Dimension) (int64, error)
	// GetFrameRGB converts the current frame into a packed host surface and
	// sets pkt.FrameAddrRGB.
	GetFrameRGB(pkt *packet.PacketData, format RGBFormat) error

	// Surfaces resolves every frame, RGB and resized address the decoder
	// hands out.
	Surfaces() buffer.Resolver

	OutputSurfaceInfo() (surface.Info, bool)
	// CurrentSurfaceInfo describes the frame the last GetFrame bound. It
	// differs from OutputSurfaceInfo for frames kept across a reconfiguration.
	CurrentSurfaceInfo() (surface.Info, bool)
	ResizedSurfaceInfo() (surface.Info, bool)

	GetGpuInfo() device.ConfigInfo
	IsCodecSupported(deviceID int, c codec.Codec, bitDepth int) bool

	SetReconfigParams(params ReconfigParams) error
	// NumFlushedFrames returns the frames reconfiguration dumped or dropped.
	// They were never returned by GetFrame.
	NumFlushedFrames() int
	// SessionOverhead returns time spent starting and reconfiguring
	// decode sessions, so throughput numbers can exclude it.
	SessionOverhead(sessionID int) time.Duration

	// SaveFrameToFile appends the surface at addr to path. addr must be a
	// frame address this decoder handed out.
	SaveFrameToFile(path string, addr uintptr, info surface.Info) error

	Close() error
}
