package ports

import (
	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/packet"
)

// SeekMode selects where decoding resumes after a seek.
type SeekMode int

const (
	// SeekExactFrame resumes at the requested frame. Frames between the
	// preceding key frame and the target are delivered flagged FlagDiscard.
	SeekExactFrame SeekMode = iota
	// SeekPrevKeyFrame resumes at the key frame at or before the target.
	SeekPrevKeyFrame
)

func (m SeekMode) String() string {
	switch m {
	case SeekExactFrame:
		return "exact"
	case SeekPrevKeyFrame:
		return "prev-key"
	default:
		return "unknown"
	}
}

// SeekCriteria selects how SeekParams.Target is interpreted.
type SeekCriteria int

const (
	// ByFrameNumber treats Target as a zero-based frame index.
	ByFrameNumber SeekCriteria = iota
	// ByTimestamp treats Target as a presentation time in microseconds.
	ByTimestamp
)

func (c SeekCriteria) String() string {
	switch c {
	case ByFrameNumber:
		return "frame"
	case ByTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// SeekParams describes a seek request.
type SeekParams struct {
	Target   int64
	Mode     SeekMode
	Criteria SeekCriteria
}

// StreamInfo describes the coded video stream.
type StreamInfo struct {
	Codec    codec.Codec
	Width    int
	Height   int
	BitDepth int
	// ChromaFormat follows chroma_format_idc: 0 mono, 1 4:2:0, 2 4:2:2, 3 4:4:4.
	ChromaFormat int
}

// Demuxer splits a container into coded frames.
//
// DemuxFrame and SeekFrame fill pkt's bitstream fields. The bitstream stays
// owned by the demuxer and is valid until the next DemuxFrame, SeekFrame or
// Close. At end of stream pkt is marked with SignalEndOfStream.
type Demuxer interface {
	DemuxFrame(pkt *packet.PacketData) error
	SeekFrame(pkt *packet.PacketData, params SeekParams) error

	// Bitstreams resolves the BitstreamAddr values this demuxer hands out.
	Bitstreams() buffer.Resolver

	CodecID() codec.Codec
	BitDepth() int
	Width() int
	Height() int
	StreamInfo() StreamInfo

	Close() error
}
