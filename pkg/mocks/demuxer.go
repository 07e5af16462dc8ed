package mocks

import (
	"errors"
	"fmt"

	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/ports"
)

// DemuxPacket is one scripted access unit.
type DemuxPacket struct {
	Data []byte
	Key  bool
	PTS  int64
	// Info switches the stream description from this packet on.
	Info *ports.StreamInfo
}

// Demuxer is a scripted ports.Demuxer. It seeks by frame number only.
type Demuxer struct {
	Packets  []DemuxPacket
	DemuxErr error // returned by every DemuxFrame when set

	Seeks  []ports.SeekParams
	Closed bool

	pool      *buffer.Pool
	alloc     *Allocator
	info      ports.StreamInfo
	pos       int
	discardTo int
	cur       *buffer.Shared
}

// NewDemuxer creates a Demuxer emitting packets for a stream described by info.
func NewDemuxer(info ports.StreamInfo, packets []DemuxPacket) *Demuxer {
	alloc := NewAllocator()
	return &Demuxer{
		Packets: packets,
		pool:    buffer.NewPool(alloc),
		alloc:   alloc,
		info:    info,
	}
}

// Allocator returns the counting allocator behind the bitstream pool.
func (m *Demuxer) Allocator() *Allocator { return m.alloc }

func (m *Demuxer) DemuxFrame(pkt *packet.PacketData) error {
	if m.Closed {
		return errors.New("mocks: demuxer closed")
	}
	if m.DemuxErr != nil {
		return m.DemuxErr
	}
	m.releaseCurrent()
	if m.pos >= len(m.Packets) {
		pkt.SignalEndOfStream()
		return nil
	}

	p := m.Packets[m.pos]
	if p.Info != nil {
		m.info = *p.Info
	}
	owner, err := m.pool.Get(len(p.Data))
	if err != nil {
		return err
	}
	if err := owner.WriteAt(p.Data, 0); err != nil {
		owner.Release()
		return err
	}
	m.cur = owner

	pkt.EndOfStream = false
	pkt.BitstreamAddr = owner.Addr()
	pkt.BitstreamSize = int64(len(p.Data))
	pkt.PTS = p.PTS
	pkt.Flags = 0
	if p.Key {
		pkt.Flags |= packet.FlagKeyFrame
	}
	if m.pos < m.discardTo {
		pkt.Flags |= packet.FlagDiscard
	}
	m.pos++
	return nil
}

func (m *Demuxer) SeekFrame(pkt *packet.PacketData, params ports.SeekParams) error {
	m.Seeks = append(m.Seeks, params)
	target := int(params.Target)
	if params.Criteria != ports.ByFrameNumber || target < 0 || target >= len(m.Packets) {
		return fmt.Errorf("mocks: cannot seek to %d (%s)", params.Target, params.Criteria)
	}
	key := 0
	for i := target; i >= 0; i-- {
		if m.Packets[i].Key {
			key = i
			break
		}
	}
	m.pos = key
	m.discardTo = 0
	if params.Mode == ports.SeekExactFrame {
		m.discardTo = target
	}
	return m.DemuxFrame(pkt)
}

func (m *Demuxer) Bitstreams() buffer.Resolver { return m.pool }

func (m *Demuxer) CodecID() codec.Codec         { return m.info.Codec }
func (m *Demuxer) BitDepth() int                { return m.info.BitDepth }
func (m *Demuxer) Width() int                   { return m.info.Width }
func (m *Demuxer) Height() int                  { return m.info.Height }
func (m *Demuxer) StreamInfo() ports.StreamInfo { return m.info }

func (m *Demuxer) Close() error {
	m.releaseCurrent()
	m.Closed = true
	return m.pool.Close()
}

func (m *Demuxer) releaseCurrent() {
	if m.cur != nil {
		m.cur.Release()
		m.cur = nil
	}
}

var _ ports.Demuxer = (*Demuxer)(nil)
