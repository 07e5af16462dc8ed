// Package packet defines the record that carries one demuxed or decoded unit
// across the pipeline/host boundary.
package packet

import (
	"fmt"

	"github.com/user/videobridge/pkg/buffer"
)

// PlaneIndex names the fixed positions of PacketData.ExtBuf.
type PlaneIndex int

const (
	// PlaneY is always the luma plane.
	PlaneY PlaneIndex = 0
	// PlaneUV is the interleaved chroma plane for two-plane formats, or U
	// for three-plane formats.
	PlaneUV PlaneIndex = 1
	// PlaneU is PlaneUV under its three-plane name.
	PlaneU PlaneIndex = 1
	// PlaneV is the second chroma plane, unused for two-plane formats.
	PlaneV PlaneIndex = 2

	// NumPlanes is the fixed number of buffer slots.
	NumPlanes = 3
)

func (p PlaneIndex) String() string {
	switch p {
	case PlaneY:
		return "Y"
	case PlaneUV:
		return "UV"
	case PlaneV:
		return "V"
	default:
		return fmt.Sprintf("plane(%d)", int(p))
	}
}

// Flag is a set of per-packet bit flags.
type Flag int

const (
	// FlagKeyFrame marks a packet that decodes independently.
	FlagKeyFrame Flag = 1 << iota
	// FlagCorrupt marks a packet the demuxer or decoder reported as damaged.
	FlagCorrupt
	// FlagDiscard marks a packet that must be decoded but whose output is
	// dropped, used when seeking to an exact frame.
	FlagDiscard
)

// Has reports whether all bits of f are set.
func (fl Flag) Has(f Flag) bool { return fl&f == f }

// PacketData describes one unit handed across the boundary.
//
// The address fields are views: they locate memory owned elsewhere and never
// keep it alive. Which field is populated tells the consumer which memory
// domain the address belongs to, see AddressDomain. The ExtBuf slots are the
// ownership side: each holds a reference to the buffer its plane lives in.
//
// When EndOfStream is set every size, address and slot is meaningless and
// consumers must not touch them; producers reset them before setting it.
type PacketData struct {
	EndOfStream   bool
	Flags         Flag
	PTS           int64 // Presentation timestamp in microseconds
	FrameSize     int64
	BitstreamSize int64

	FrameAddr        uintptr // Decoded YUV surface
	BitstreamAddr    uintptr // Compressed data owned by the demuxer
	FrameAddrRGB     uintptr // Colour-converted copy owned by the decoder
	FrameAddrResized uintptr // Resized copy owned by the decoder

	ExtBuf [NumPlanes]*buffer.Ref
}

// New returns a record with three empty plane slots.
func New() *PacketData {
	p := &PacketData{}
	for i := range p.ExtBuf {
		p.ExtBuf[i] = buffer.NewRef()
	}
	return p
}

// Plane returns the slot at idx.
func (p *PacketData) Plane(idx PlaneIndex) *buffer.Ref {
	return p.ExtBuf[idx]
}

// SetPlane binds slot idx to owner. The slot's previous buffer, if any, is
// released after the new one is acquired.
func (p *PacketData) SetPlane(idx PlaneIndex, owner *buffer.Shared, layout buffer.Layout) error {
	if idx < 0 || int(idx) >= NumPlanes {
		return fmt.Errorf("packet: plane index %d out of range", idx)
	}
	if err := p.ExtBuf[idx].Bind(owner, layout); err != nil {
		return fmt.Errorf("packet: bind plane %s: %w", idx, err)
	}
	return nil
}

// ClearPlanes releases every slot and clears the frame fields.
func (p *PacketData) ClearPlanes() {
	for _, ref := range p.ExtBuf {
		ref.Reset()
	}
	p.FrameAddr = 0
	p.FrameSize = 0
}

// PopulatedPlanes returns the number of bound slots.
func (p *PacketData) PopulatedPlanes() int {
	n := 0
	for _, ref := range p.ExtBuf {
		if !ref.Empty() {
			n++
		}
	}
	return n
}

// SignalEndOfStream releases every slot, zeroes sizes and addresses, then
// marks the record as the end of the stream.
func (p *PacketData) SignalEndOfStream() {
	p.ClearPlanes()
	p.Flags = 0
	p.PTS = 0
	p.BitstreamSize = 0
	p.BitstreamAddr = 0
	p.FrameAddrRGB = 0
	p.FrameAddrResized = 0
	p.EndOfStream = true
}

// Reset prepares the record for reuse on a new stream.
func (p *PacketData) Reset() {
	p.SignalEndOfStream()
	p.EndOfStream = false
}

// HasBitstream reports whether compressed data may be read.
func (p *PacketData) HasBitstream() bool {
	return !p.EndOfStream && p.BitstreamSize > 0
}

// HasFrame reports whether a decoded surface may be read.
func (p *PacketData) HasFrame() bool {
	return !p.EndOfStream && p.FrameSize > 0
}
