// Package surface describes decoded frame surfaces and how their planes map
// onto the fixed packet slots.
package surface

import (
	"errors"
	"fmt"

	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/packet"
)

// ErrUnsupportedFormat is returned for formats without a plane mapping.
var ErrUnsupportedFormat = errors.New("surface: unsupported format")

// Format is the pixel layout of a decoded surface.
type Format int

const (
	// FormatNV12 is 8-bit 4:2:0 with Y and interleaved UV planes.
	FormatNV12 Format = iota
	// FormatP016 is 16-bit (10/12-bit content) 4:2:0 with Y and interleaved UV planes.
	FormatP016
	// FormatYUV444 is 8-bit 4:4:4 with separate Y, U and V planes.
	FormatYUV444
	// FormatYUV444P16 is 16-bit 4:4:4 with separate Y, U and V planes.
	FormatYUV444P16
)

func (f Format) String() string {
	switch f {
	case FormatNV12:
		return "NV12"
	case FormatP016:
		return "P016"
	case FormatYUV444:
		return "YUV444"
	case FormatYUV444P16:
		return "YUV444_16Bit"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this format.
func (f Format) PlaneCount() int {
	switch f {
	case FormatNV12, FormatP016:
		return 2 // Y, UV
	case FormatYUV444, FormatYUV444P16:
		return 3 // Y, U, V
	default:
		return 0
	}
}

// BytesPerSample returns 1 for 8-bit formats and 2 for 16-bit ones.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatP016, FormatYUV444P16:
		return 2
	default:
		return 1
	}
}

// ChromaHeight returns the chroma plane height for a luma height.
func (f Format) ChromaHeight(height int) int {
	switch f {
	case FormatNV12, FormatP016:
		return (height + 1) / 2
	default:
		return height
	}
}

// FFmpegPixFmt returns the ffmpeg pixel format producing this layout.
func (f Format) FFmpegPixFmt() string {
	switch f {
	case FormatNV12:
		return "nv12"
	case FormatP016:
		return "p016le"
	case FormatYUV444:
		return "yuv444p"
	case FormatYUV444P16:
		return "yuv444p16le"
	default:
		return ""
	}
}

// Choose picks the output format for a stream's bit depth and chroma format
// (chroma 3 is 4:4:4; everything else is decoded to 4:2:0).
func Choose(bitDepth, chromaFormat int) Format {
	switch {
	case chromaFormat == 3 && bitDepth > 8:
		return FormatYUV444P16
	case chromaFormat == 3:
		return FormatYUV444
	case bitDepth > 8:
		return FormatP016
	default:
		return FormatNV12
	}
}

// MemType selects where decoded surfaces are placed.
type MemType int

const (
	// MemInternal keeps surfaces in decoder-owned device memory.
	MemInternal MemType = iota
	// MemDevCopied copies surfaces into separate device memory.
	MemDevCopied
	// MemHostCopied copies surfaces into host memory.
	MemHostCopied
	// MemNotMapped decodes without exposing surfaces.
	MemNotMapped
)

func (m MemType) String() string {
	switch m {
	case MemInternal:
		return "internal"
	case MemDevCopied:
		return "dev_copied"
	case MemHostCopied:
		return "host_copied"
	case MemNotMapped:
		return "not_mapped"
	default:
		return "unknown"
	}
}

// ParseMemType accepts the names returned by String and the numeric codes
// 0-3. Anything else falls back to MemInternal.
func ParseMemType(s string) MemType {
	switch s {
	case "internal", "0":
		return MemInternal
	case "dev_copied", "1":
		return MemDevCopied
	case "host_copied", "2":
		return MemHostCopied
	case "not_mapped", "3":
		return MemNotMapped
	default:
		return MemInternal
	}
}

// Info describes a surface.
type Info struct {
	Width    int
	Height   int
	Pitch    int // Bytes per luma row
	BitDepth int
	Format   Format
	MemType  MemType
}

// NewInfo returns a tightly packed surface description.
func NewInfo(width, height, bitDepth int, format Format, mem MemType) Info {
	return Info{
		Width:    width,
		Height:   height,
		Pitch:    width * format.BytesPerSample(),
		BitDepth: bitDepth,
		Format:   format,
		MemType:  mem,
	}
}

// BytesPerPixel returns the luma sample size.
func (i Info) BytesPerPixel() int { return i.Format.BytesPerSample() }

// NumChromaPlanes returns 1 for interleaved chroma and 2 for planar chroma.
func (i Info) NumChromaPlanes() int { return i.Format.PlaneCount() - 1 }

// ChromaHeight returns the chroma plane height.
func (i Info) ChromaHeight() int { return i.Format.ChromaHeight(i.Height) }

// Size returns the surface size in bytes.
func (i Info) Size() int {
	return i.Pitch*i.Height + i.NumChromaPlanes()*i.Pitch*i.ChromaHeight()
}

// Layouts returns the plane layouts in slot order.
func (i Info) Layouts() ([]buffer.Layout, error) {
	bps := i.Format.BytesPerSample()
	luma := buffer.Layout{Width: i.Width, Height: i.Height, Pitch: i.Pitch, ElemSize: bps}
	chromaOff := i.Pitch * i.Height

	switch i.Format {
	case FormatNV12, FormatP016:
		// Interleaved UV: one row holds Width samples, half of them U.
		uv := buffer.Layout{Offset: chromaOff, Width: i.Width, Height: i.ChromaHeight(), Pitch: i.Pitch, ElemSize: bps}
		return []buffer.Layout{luma, uv}, nil
	case FormatYUV444, FormatYUV444P16:
		u := buffer.Layout{Offset: chromaOff, Width: i.Width, Height: i.Height, Pitch: i.Pitch, ElemSize: bps}
		v := u
		v.Offset = chromaOff + i.Pitch*i.Height
		return []buffer.Layout{luma, u, v}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, int(i.Format))
	}
}

// Bind populates the frame fields and plane slots of p from owner. Slots the
// format does not use are reset, so a two-plane surface always leaves slot 2
// empty.
func Bind(p *packet.PacketData, owner *buffer.Shared, info Info) error {
	layouts, err := info.Layouts()
	if err != nil {
		return err
	}
	if owner.Size() < info.Size() {
		return fmt.Errorf("surface: %d byte buffer for %d byte %s surface: %w", owner.Size(), info.Size(), info.Format, buffer.ErrOutOfRange)
	}
	for idx := 0; idx < packet.NumPlanes; idx++ {
		if idx >= len(layouts) {
			p.ExtBuf[idx].Reset()
			continue
		}
		if err := p.SetPlane(packet.PlaneIndex(idx), owner, layouts[idx]); err != nil {
			p.ClearPlanes()
			return err
		}
	}
	p.FrameAddr = owner.Addr()
	p.FrameSize = int64(info.Size())
	return nil
}
