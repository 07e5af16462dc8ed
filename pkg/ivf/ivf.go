// Package ivf reads and writes the IVF container used for VP8, VP9 and AV1
// elementary streams.
package ivf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the file header.
	HeaderSize = 32
	// FrameHeaderSize is the size of each frame header.
	FrameHeaderSize = 12
	signature       = "DKIF"
)

var (
	// ErrBadSignature is returned when a stream does not start with DKIF.
	ErrBadSignature = errors.New("ivf: bad signature")
	// ErrFrameTooLarge is returned for frames above MaxFrameSize.
	ErrFrameTooLarge = errors.New("ivf: frame too large")
)

// MaxFrameSize bounds a single frame read from untrusted input.
const MaxFrameSize = 64 << 20

// Header is the IVF file header.
type Header struct {
	FourCC        string
	Width         uint16
	Height        uint16
	TimebaseDen   uint32
	TimebaseNum   uint32
	NumFrames     uint32
	HeaderVersion uint16
}

// Frame is one IVF frame.
type Frame struct {
	PTS  uint64 // in timebase units
	Data []byte
}

// Sniff reports whether b starts with the IVF signature.
func Sniff(b []byte) bool {
	return len(b) >= 4 && string(b[:4]) == signature
}

// Micros converts pts in h's timebase to microseconds.
func (h Header) Micros(pts uint64) int64 {
	if h.TimebaseDen == 0 {
		return 0
	}
	num := uint64(h.TimebaseNum)
	if num == 0 {
		num = 1
	}
	return int64(pts * num * 1_000_000 / uint64(h.TimebaseDen))
}

// Writer writes an IVF stream.
type Writer struct {
	w     io.Writer
	hdr   [FrameHeaderSize]byte
	count uint32
}

// NewWriter writes the file header and returns a Writer. NumFrames in h may
// be zero; decoders do not rely on it.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	if len(h.FourCC) != 4 {
		return nil, fmt.Errorf("ivf: fourcc %q must be 4 bytes", h.FourCC)
	}
	var buf [HeaderSize]byte
	copy(buf[0:4], signature)
	binary.LittleEndian.PutUint16(buf[4:], h.HeaderVersion)
	binary.LittleEndian.PutUint16(buf[6:], HeaderSize)
	copy(buf[8:12], h.FourCC)
	binary.LittleEndian.PutUint16(buf[12:], h.Width)
	binary.LittleEndian.PutUint16(buf[14:], h.Height)
	binary.LittleEndian.PutUint32(buf[16:], h.TimebaseDen)
	binary.LittleEndian.PutUint32(buf[20:], h.TimebaseNum)
	binary.LittleEndian.PutUint32(buf[24:], h.NumFrames)
	if _, err := w.Write(buf[:]); err != nil {
		return nil, fmt.Errorf("ivf: write header: %w", err)
	}
	return &Writer{w: w}, nil
}

// WriteFrame writes one frame.
func (w *Writer) WriteFrame(pts uint64, data []byte) error {
	binary.LittleEndian.PutUint32(w.hdr[0:], uint32(len(data)))
	binary.LittleEndian.PutUint64(w.hdr[4:], pts)
	if _, err := w.w.Write(w.hdr[:]); err != nil {
		return fmt.Errorf("ivf: write frame header: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("ivf: write frame: %w", err)
	}
	w.count++
	return nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() uint32 { return w.count }

// Reader reads an IVF stream.
type Reader struct {
	r      io.Reader
	header Header
	hdr    [FrameHeaderSize]byte
}

// NewReader reads and validates the file header.
func NewReader(r io.Reader) (*Reader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("ivf: read header: %w", err)
	}
	if !Sniff(buf[:]) {
		return nil, ErrBadSignature
	}
	h := Header{
		HeaderVersion: binary.LittleEndian.Uint16(buf[4:]),
		FourCC:        string(buf[8:12]),
		Width:         binary.LittleEndian.Uint16(buf[12:]),
		Height:        binary.LittleEndian.Uint16(buf[14:]),
		TimebaseDen:   binary.LittleEndian.Uint32(buf[16:]),
		TimebaseNum:   binary.LittleEndian.Uint32(buf[20:]),
		NumFrames:     binary.LittleEndian.Uint32(buf[24:]),
	}
	// Skip any header extension.
	if hlen := int(binary.LittleEndian.Uint16(buf[6:])); hlen > HeaderSize {
		if _, err := io.CopyN(io.Discard, r, int64(hlen-HeaderSize)); err != nil {
			return nil, fmt.Errorf("ivf: skip header: %w", err)
		}
	}
	return &Reader{r: r, header: h}, nil
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.header }

// ReadFrame reads the next frame into buf (grown as needed) and returns it.
// io.EOF marks a clean end of stream.
func (r *Reader) ReadFrame(buf []byte) (Frame, error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("ivf: truncated frame header: %w", err)
		}
		return Frame{}, err
	}
	size := binary.LittleEndian.Uint32(r.hdr[0:])
	if size > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	if cap(buf) < int(size) {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return Frame{}, fmt.Errorf("ivf: read frame: %w", err)
	}
	return Frame{PTS: binary.LittleEndian.Uint64(r.hdr[4:]), Data: buf}, nil
}
