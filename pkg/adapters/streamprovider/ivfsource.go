package streamprovider

import (
	"errors"
	"fmt"
	"io"

	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/ivf"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/ports"
)

// IVF demuxes VP8, VP9 and AV1 streams in the IVF container.
type IVF struct {
	src     io.Reader
	reader  *ivf.Reader
	emitter *emitter
	codec   codec.Codec
	info    ports.StreamInfo
	log     ports.Logger

	buf       []byte
	frame     int64
	discardTo int64
	closed    bool
}

var _ ports.Demuxer = (*IVF)(nil)

func newIVF(src io.Reader, opts Options) (*IVF, error) {
	r, err := ivf.NewReader(src)
	if err != nil {
		return nil, err
	}
	c, err := fromFourCC(r.Header().FourCC)
	if err != nil {
		return nil, err
	}
	h := r.Header()
	v := &IVF{
		src:     src,
		reader:  r,
		emitter: newEmitter(opts.Pool),
		codec:   c,
		log:     opts.Logger,
		info: ports.StreamInfo{
			Codec:        c,
			Width:        int(h.Width),
			Height:       int(h.Height),
			BitDepth:     8,
			ChromaFormat: 1,
		},
	}
	return v, nil
}

func fromFourCC(fourCC string) (codec.Codec, error) {
	for _, c := range []codec.Codec{codec.AV1, codec.VP8, codec.VP9} {
		if c.IVFFourCC() == fourCC {
			return c, nil
		}
	}
	return codec.NumCodecs, fmt.Errorf("%w: ivf fourcc %q", codec.ErrUnknownCodec, fourCC)
}

// keyFrame reports whether frame can be decoded without references. The
// second result carries the bit depth when the frame header reveals it.
func keyFrame(c codec.Codec, frame []byte) (bool, int) {
	if len(frame) == 0 {
		return false, 0
	}
	switch c {
	case codec.VP8:
		return frame[0]&0x01 == 0, 0
	case codec.VP9:
		return vp9KeyFrame(frame)
	case codec.AV1:
		return av1HasSequenceHeader(frame), 0
	}
	return false, 0
}

// vp9KeyFrame reads the start of the uncompressed header.
func vp9KeyFrame(frame []byte) (bool, int) {
	b := frame[0]
	if b>>6 != 2 {
		return false, 0
	}
	profile := int((b>>5)&1) | int((b>>4)&1)<<1
	depth := 8
	if profile >= 2 {
		depth = 10
	}
	bit := 3
	if profile == 3 {
		bit = 2
	}
	// show_existing_frame
	if (b>>bit)&1 == 1 {
		return false, depth
	}
	// frame_type: 0 is a key frame
	return (b>>(bit-1))&1 == 0, depth
}

// av1HasSequenceHeader walks the OBUs of a temporal unit looking for a
// sequence header, which encoders emit with every key frame.
func av1HasSequenceHeader(tu []byte) bool {
	for len(tu) > 0 {
		hdr := tu[0]
		obuType := (hdr >> 3) & 0x0f
		if obuType == 1 {
			return true
		}
		n := 1
		if hdr&0x04 != 0 {
			n++
		}
		if hdr&0x02 == 0 || n > len(tu) {
			return false
		}
		size, m := leb128(tu[n:])
		if m == 0 {
			return false
		}
		n += m
		if uint64(len(tu)-n) < size {
			return false
		}
		tu = tu[n+int(size):]
	}
	return false
}

func leb128(b []byte) (uint64, int) {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1
		}
	}
	return 0, 0
}

// DemuxFrame emits the next IVF frame.
func (v *IVF) DemuxFrame(pkt *packet.PacketData) error {
	if v.closed {
		return ErrClosed
	}
	f, err := v.reader.ReadFrame(v.buf)
	if errors.Is(err, io.EOF) {
		v.emitter.end(pkt)
		return nil
	}
	if err != nil {
		return err
	}
	v.buf = f.Data

	key, depth := keyFrame(v.codec, f.Data)
	if depth > 0 {
		v.info.BitDepth = depth
	}
	var flags packet.Flag
	if key {
		flags |= packet.FlagKeyFrame
	}
	if v.frame < v.discardTo {
		flags |= packet.FlagDiscard
	}
	v.frame++
	return v.emitter.emit(pkt, f.Data, v.reader.Header().Micros(f.PTS), flags)
}

// SeekFrame rereads the stream from the first frame. It needs a seekable
// source.
func (v *IVF) SeekFrame(pkt *packet.PacketData, params ports.SeekParams) error {
	if v.closed {
		return ErrClosed
	}
	rs, ok := v.src.(io.Seeker)
	if !ok {
		return ErrNotSeekable
	}
	if params.Target < 0 {
		return fmt.Errorf("%w: %d", ErrSeekOutOfRange, params.Target)
	}

	rewind := func() error {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind: %w", err)
		}
		r, err := ivf.NewReader(v.src)
		if err != nil {
			return err
		}
		v.reader = r
		return nil
	}

	// First pass: locate the target and the key frame before it.
	if err := rewind(); err != nil {
		return err
	}
	target, key := int64(-1), int64(-1)
	for i := int64(0); ; i++ {
		f, err := v.reader.ReadFrame(v.buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		v.buf = f.Data
		pts := v.reader.Header().Micros(f.PTS)
		if params.Criteria == ports.ByFrameNumber && i > params.Target {
			break
		}
		if params.Criteria == ports.ByTimestamp && pts > params.Target {
			break
		}
		if k, _ := keyFrame(v.codec, f.Data); k || key < 0 {
			key = i
		}
		target = i
	}
	if target < 0 || (params.Criteria == ports.ByFrameNumber && target != params.Target) {
		return fmt.Errorf("%w: %d", ErrSeekOutOfRange, params.Target)
	}

	// Second pass: stop just before the key frame.
	if err := rewind(); err != nil {
		return err
	}
	for i := int64(0); i < key; i++ {
		if _, err := v.reader.ReadFrame(v.buf); err != nil {
			return err
		}
	}
	v.log.Debug("Seek to frame %d from key frame %d (%s)", target, key, params.Mode)
	v.frame = key
	v.discardTo = 0
	if params.Mode == ports.SeekExactFrame {
		v.discardTo = target
	}
	return v.DemuxFrame(pkt)
}

// Bitstreams returns the pool bitstream addresses resolve against.
func (v *IVF) Bitstreams() buffer.Resolver { return v.emitter.pool }

// CodecID returns the stream codec.
func (v *IVF) CodecID() codec.Codec { return v.codec }

// BitDepth returns the bit depth seen so far.
func (v *IVF) BitDepth() int { return v.info.BitDepth }

// Width returns the width from the file header.
func (v *IVF) Width() int { return v.info.Width }

// Height returns the height from the file header.
func (v *IVF) Height() int { return v.info.Height }

// StreamInfo returns the stream description.
func (v *IVF) StreamInfo() ports.StreamInfo { return v.info }

// Close releases the current bitstream.
func (v *IVF) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	return v.emitter.close()
}
