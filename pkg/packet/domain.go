package packet

import "github.com/user/videobridge/pkg/buffer"

// AddressField names one of the raw address fields of PacketData.
type AddressField int

const (
	FieldFrame AddressField = iota
	FieldBitstream
	FieldFrameRGB
	FieldFrameResized
)

func (f AddressField) String() string {
	switch f {
	case FieldFrame:
		return "frame_adrs"
	case FieldBitstream:
		return "bitstream_adrs"
	case FieldFrameRGB:
		return "frame_adrs_rgb"
	case FieldFrameResized:
		return "frame_adrs_resized"
	default:
		return "unknown"
	}
}

// Address returns the value of field, or 0 after end of stream.
func (p *PacketData) Address(field AddressField) uintptr {
	if p.EndOfStream {
		return 0
	}
	switch field {
	case FieldFrame:
		return p.FrameAddr
	case FieldBitstream:
		return p.BitstreamAddr
	case FieldFrameRGB:
		return p.FrameAddrRGB
	case FieldFrameResized:
		return p.FrameAddrResized
	default:
		return 0
	}
}

// AddressDomain reports the memory domain of a populated address field.
// Bitstream, RGB and resized data always live in host memory. The frame
// surface lives wherever its luma slot points; decoders bind the slot
// whenever they populate FrameAddr. ok is false for unpopulated fields and
// after end of stream.
func (p *PacketData) AddressDomain(field AddressField) (buffer.Domain, bool) {
	if p.Address(field) == 0 {
		return 0, false
	}
	switch field {
	case FieldBitstream, FieldFrameRGB, FieldFrameResized:
		return buffer.DomainHost, true
	case FieldFrame:
		return p.ExtBuf[PlaneY].Domain()
	default:
		return 0, false
	}
}
