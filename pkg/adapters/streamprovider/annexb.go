package streamprovider

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/hevc"
	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/ports"
)

// maxNALUSize bounds a single NAL unit read from the stream.
const maxNALUSize = 64 << 20

var startCode = []byte{0, 0, 0, 1}

// splitNALUs is a bufio.SplitFunc yielding NAL units without start codes.
func splitNALUs(data []byte, atEOF bool) (advance int, token []byte, err error) {
	// Skip the leading start code.
	start := bytes.Index(data, []byte{0, 0, 1})
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	body := start + 3

	next := bytes.Index(data[body:], []byte{0, 0, 1})
	if next < 0 {
		if !atEOF {
			return 0, nil, nil
		}
		return len(data), trimTrailingZeros(data[body:]), nil
	}
	end := body + next
	return end, trimTrailingZeros(data[body:end]), nil
}

// trimTrailingZeros drops zero bytes belonging to a following 4-byte start code.
func trimTrailingZeros(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

// AnnexB demuxes a raw H.264 or HEVC elementary stream into access units.
// Streams carry no timestamps; PTS is synthesized from the frame rate.
type AnnexB struct {
	src     io.Reader
	scanner *bufio.Scanner
	emitter *emitter
	codec   codec.Codec
	fps     float64
	info    ports.StreamInfo
	log     ports.Logger

	pending   []byte // first NAL of the next access unit
	au        []byte
	frame     int64
	discardTo int64
	eof       bool
	closed    bool
}

var _ ports.Demuxer = (*AnnexB)(nil)

func newAnnexB(src io.Reader, c codec.Codec, opts Options) (*AnnexB, error) {
	if c != codec.AVC && c != codec.HEVC {
		return nil, fmt.Errorf("streamprovider: %s is not carried in Annex B", c)
	}
	a := &AnnexB{
		src:     src,
		emitter: newEmitter(opts.Pool),
		codec:   c,
		fps:     opts.FrameRate,
		log:     opts.Logger,
		info:    ports.StreamInfo{Codec: c, BitDepth: 8, ChromaFormat: 1},
	}
	a.reset()
	return a, nil
}

func (a *AnnexB) reset() {
	a.scanner = bufio.NewScanner(a.src)
	a.scanner.Buffer(make([]byte, 0, 1<<20), maxNALUSize)
	a.scanner.Split(splitNALUs)
	a.pending = nil
	a.au = a.au[:0]
	a.frame = 0
	a.eof = false
}

// nextAccessUnit returns the next access unit in Annex B form and whether it
// holds a random access point. It returns io.EOF when the stream is drained.
func (a *AnnexB) nextAccessUnit() ([]byte, bool, error) {
	a.au = a.au[:0]
	key := false
	hasVCL := false

	add := func(nalu []byte) {
		a.au = append(a.au, startCode...)
		a.au = append(a.au, nalu...)
	}
	if a.pending != nil {
		hasVCL, key = a.classify(a.pending)
		add(a.pending)
		a.pending = nil
	}

	for !a.eof {
		if !a.scanner.Scan() {
			if err := a.scanner.Err(); err != nil {
				return nil, false, fmt.Errorf("scan nal units: %w", err)
			}
			a.eof = true
			break
		}
		nalu := a.scanner.Bytes()
		if len(nalu) == 0 {
			continue
		}
		if hasVCL && a.startsAccessUnit(nalu) {
			a.pending = append([]byte(nil), nalu...)
			return a.au, key, nil
		}
		vcl, rap := a.classify(nalu)
		hasVCL = hasVCL || vcl
		key = key || rap
		add(nalu)
	}
	if len(a.au) == 0 {
		return nil, false, io.EOF
	}
	return a.au, key, nil
}

// classify reports whether nalu is a coded slice and whether it is a random
// access point. Parameter sets update the stream description.
func (a *AnnexB) classify(nalu []byte) (vcl, rap bool) {
	if a.codec == codec.AVC {
		switch avc.GetNaluType(nalu[0]) {
		case avc.NALU_IDR:
			return true, true
		case avc.NALU_NON_IDR:
			return true, false
		case avc.NALU_SPS:
			a.describeAVC(nalu)
		}
		return false, false
	}

	t := hevc.GetNaluType(nalu[0])
	switch {
	case t < 32:
		// IRAP pictures are types 16 to 23.
		return true, t >= 16 && t <= 23
	case t == hevc.NALU_SPS:
		a.describeHEVC(nalu)
	}
	return false, false
}

// startsAccessUnit reports whether nalu opens a new access unit after a
// coded picture: an AUD, parameter set, SEI, or the first slice of a picture.
func (a *AnnexB) startsAccessUnit(nalu []byte) bool {
	if a.codec == codec.AVC {
		switch avc.GetNaluType(nalu[0]) {
		case avc.NALU_AUD, avc.NALU_SPS, avc.NALU_PPS, avc.NALU_SEI:
			return true
		case avc.NALU_IDR, avc.NALU_NON_IDR:
			// first_mb_in_slice is ue(v); a leading 1 bit encodes 0.
			return len(nalu) > 1 && nalu[1]&0x80 != 0
		}
		return false
	}

	t := hevc.GetNaluType(nalu[0])
	switch {
	case t == hevc.NALU_AUD, t == hevc.NALU_VPS, t == hevc.NALU_SPS, t == hevc.NALU_PPS, t == hevc.NALU_SEI_PREFIX:
		return true
	case t < 32:
		// first_slice_segment_in_pic_flag follows the 2-byte header.
		return len(nalu) > 2 && nalu[2]&0x80 != 0
	}
	return false
}

func (a *AnnexB) describeAVC(nalu []byte) {
	sps, err := avc.ParseSPSNALUnit(nalu, false)
	if err != nil {
		a.log.Warn("Could not parse SPS: %s", err.Error())
		return
	}
	a.info.Width = int(sps.Width)
	a.info.Height = int(sps.Height)
	a.info.BitDepth = int(sps.BitDepthLumaMinus8) + 8
	a.info.ChromaFormat = int(sps.ChromaFormatIDC)
}

func (a *AnnexB) describeHEVC(nalu []byte) {
	sps, err := hevc.ParseSPSNALUnit(nalu)
	if err != nil {
		a.log.Warn("Could not parse SPS: %s", err.Error())
		return
	}
	a.info.Width = int(sps.PicWidthInLumaSamples)
	a.info.Height = int(sps.PicHeightInLumaSamples)
	a.info.BitDepth = int(sps.BitDepthLumaMinus8) + 8
	a.info.ChromaFormat = int(sps.ChromaFormatIDC)
}

func (a *AnnexB) pts(frame int64) int64 {
	return int64(float64(frame) * 1_000_000 / a.fps)
}

// Probe reads ahead to the first access unit so the stream description is
// populated, then rewinds when the source allows it. It is a no-op for
// streams already being read.
func (a *AnnexB) probe() {
	rs, ok := a.src.(io.Seeker)
	if !ok {
		return
	}
	if _, _, err := a.nextAccessUnit(); err != nil && !errors.Is(err, io.EOF) {
		a.log.Debug("Probe failed: %s", err.Error())
	}
	if _, err := rs.Seek(0, io.SeekStart); err == nil {
		a.reset()
	}
}

// DemuxFrame emits the next access unit.
func (a *AnnexB) DemuxFrame(pkt *packet.PacketData) error {
	if a.closed {
		return ErrClosed
	}
	au, key, err := a.nextAccessUnit()
	if errors.Is(err, io.EOF) {
		a.emitter.end(pkt)
		return nil
	}
	if err != nil {
		return err
	}
	var flags packet.Flag
	if key {
		flags |= packet.FlagKeyFrame
	}
	if a.frame < a.discardTo {
		flags |= packet.FlagDiscard
	}
	pts := a.pts(a.frame)
	a.frame++
	return a.emitter.emit(pkt, au, pts, flags)
}

// SeekFrame rescans the stream from the start. It needs a seekable source.
func (a *AnnexB) SeekFrame(pkt *packet.PacketData, params ports.SeekParams) error {
	if a.closed {
		return ErrClosed
	}
	rs, ok := a.src.(io.Seeker)
	if !ok {
		return ErrNotSeekable
	}

	target := params.Target
	if params.Criteria == ports.ByTimestamp {
		target = int64(float64(params.Target) * a.fps / 1_000_000)
	}
	if target < 0 {
		return fmt.Errorf("%w: %d", ErrSeekOutOfRange, params.Target)
	}

	// First pass: find the last key frame at or before the target.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}
	a.reset()
	key := int64(-1)
	for i := int64(0); i <= target; i++ {
		_, rap, err := a.nextAccessUnit()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: frame %d", ErrSeekOutOfRange, target)
		}
		if err != nil {
			return err
		}
		if rap || key < 0 {
			key = i
		}
	}

	// Second pass: stop just before the key frame.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}
	a.reset()
	for i := int64(0); i < key; i++ {
		if _, _, err := a.nextAccessUnit(); err != nil {
			return err
		}
	}
	a.log.Debug("Seek to frame %d from key frame %d (%s)", target, key, params.Mode)
	a.frame = key
	a.discardTo = 0
	if params.Mode == ports.SeekExactFrame {
		a.discardTo = target
	}
	return a.DemuxFrame(pkt)
}

// Bitstreams returns the pool bitstream addresses resolve against.
func (a *AnnexB) Bitstreams() buffer.Resolver { return a.emitter.pool }

// CodecID returns the stream codec.
func (a *AnnexB) CodecID() codec.Codec { return a.codec }

// BitDepth returns the luma bit depth from the last SPS seen.
func (a *AnnexB) BitDepth() int { return a.info.BitDepth }

// Width returns the coded width from the last SPS seen.
func (a *AnnexB) Width() int { return a.info.Width }

// Height returns the coded height from the last SPS seen.
func (a *AnnexB) Height() int { return a.info.Height }

// StreamInfo returns the stream description.
func (a *AnnexB) StreamInfo() ports.StreamInfo { return a.info }

// Close releases the current bitstream.
func (a *AnnexB) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.emitter.close()
}
