package mocks

import (
	"errors"
	"time"

	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/device"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/ports"
	"github.com/user/videobridge/pkg/surface"
)

// SavedFrame is one SaveFrameToFile call.
type SavedFrame struct {
	Path string
	Addr uintptr
	Info surface.Info
}

// VideoDecoder is a scripted ports.VideoDecoder. Each packet yields one
// host NV12 or YUV444 surface filled with its submission index. Delay
// surfaces are held back until end of stream, like a reordering decoder.
type VideoDecoder struct {
	Delay       int
	Gpu         device.ConfigInfo
	Unsupported bool
	Overhead    time.Duration
	DecodeErr   error

	StreamInfos []ports.StreamInfo
	Reconfig    ports.ReconfigParams
	Saved       []SavedFrame
	Resizes     int
	RGBs        int
	Closed      bool

	alloc    *Allocator
	pool     *buffer.Pool
	registry *buffer.Registry

	info      surface.Info
	haveInfo  bool
	submitted int
	pending   []int64
	ready     []queued
	flushed   int

	current    surface.Info
	derived    []*buffer.Shared
	resized    surface.Info
	hasResized bool
}

type queued struct {
	owner *buffer.Shared
	info  surface.Info
	pts   int64
}

// NewVideoDecoder creates a VideoDecoder with a counting host allocator.
func NewVideoDecoder() *VideoDecoder {
	alloc := NewAllocator()
	pool := buffer.NewPool(alloc)
	return &VideoDecoder{
		Gpu:      device.ConfigInfo{DeviceName: "Mock GPU", ArchName: "gfx000"},
		alloc:    alloc,
		pool:     pool,
		registry: buffer.NewRegistry(pool),
	}
}

// Allocator returns the counting allocator behind every surface.
func (m *VideoDecoder) Allocator() *Allocator { return m.alloc }

func (m *VideoDecoder) SetStreamInfo(info ports.StreamInfo) error {
	m.StreamInfos = append(m.StreamInfos, info)
	if m.haveInfo && len(m.pending) > 0 {
		m.reconfigure()
	}
	format := surface.Choose(info.BitDepth, info.ChromaFormat)
	m.info = surface.NewInfo(info.Width, info.Height, info.BitDepth, format, surface.MemHostCopied)
	m.haveInfo = true
	return nil
}

func (m *VideoDecoder) reconfigure() {
	for range m.pending {
		m.finalize()
	}
	keep := m.ready[:0]
	for _, q := range m.ready {
		switch m.Reconfig.FlushMode {
		case ports.FlushSegment:
			keep = append(keep, q)
			continue
		case ports.FlushDump:
			m.Saved = append(m.Saved, SavedFrame{Path: m.Reconfig.DumpPath, Addr: q.owner.Addr(), Info: q.info})
		}
		m.flushed++
		q.owner.Release()
	}
	m.ready = keep
}

func (m *VideoDecoder) finalize() {
	pts := m.pending[0]
	m.pending = m.pending[1:]
	owner, err := m.pool.Get(m.info.Size())
	if err != nil {
		return
	}
	data, _ := owner.Bytes()
	for i := range data {
		data[i] = byte(m.submitted)
	}
	m.ready = append(m.ready, queued{owner: owner, info: m.info, pts: pts})
}

func (m *VideoDecoder) DecodeFrame(pkt *packet.PacketData) (int, error) {
	if m.DecodeErr != nil {
		return 0, m.DecodeErr
	}
	if pkt.EndOfStream || pkt.BitstreamSize <= 0 {
		for len(m.pending) > 0 {
			m.finalize()
		}
		return len(m.ready), nil
	}
	if !m.haveInfo {
		return 0, errors.New("mocks: stream info not set")
	}
	if pkt.Flags.Has(packet.FlagDiscard) {
		return len(m.ready), nil
	}
	m.submitted++
	m.pending = append(m.pending, pkt.PTS)
	if len(m.pending) > m.Delay {
		m.finalize()
	}
	return len(m.ready), nil
}

func (m *VideoDecoder) GetFrame(pkt *packet.PacketData) error {
	if len(m.ready) == 0 {
		return ports.ErrNoFrame
	}
	q := m.ready[0]
	m.ready = m.ready[1:]
	m.releaseDerived(pkt)
	pkt.EndOfStream = false
	pkt.PTS = q.pts
	m.current = q.info
	err := surface.Bind(pkt, q.owner, q.info)
	q.owner.Release()
	return err
}

func (m *VideoDecoder) ReleaseFrame(pkt *packet.PacketData) {
	pkt.ClearPlanes()
	m.releaseDerived(pkt)
}

func (m *VideoDecoder) releaseDerived(pkt *packet.PacketData) {
	for _, d := range m.derived {
		d.Release()
	}
	m.derived = nil
	pkt.FrameAddrRGB = 0
	pkt.FrameAddrResized = 0
}

func (m *VideoDecoder) derive(size int) (*buffer.Shared, error) {
	owner, err := m.pool.Get(size)
	if err != nil {
		return nil, err
	}
	m.derived = append(m.derived, owner)
	return owner, nil
}

func (m *VideoDecoder) ResizeFrame(pkt *packet.PacketData, dim ports.Dimension) (int64, error) {
	if dim.Zero() || (dim.Width == m.current.Width && dim.Height == m.current.Height) {
		return 0, nil
	}
	m.resized = surface.NewInfo(dim.Width, dim.Height, m.current.BitDepth, m.current.Format, surface.MemHostCopied)
	m.hasResized = true
	owner, err := m.derive(m.resized.Size())
	if err != nil {
		return 0, err
	}
	m.Resizes++
	pkt.FrameAddrResized = owner.Addr()
	return int64(m.resized.Size()), nil
}

func (m *VideoDecoder) GetFrameRGB(pkt *packet.PacketData, format ports.RGBFormat) error {
	if !pkt.HasFrame() {
		return ports.ErrNoFrame
	}
	owner, err := m.derive(m.current.Width * m.current.Height * format.BytesPerPixel())
	if err != nil {
		return err
	}
	data, _ := owner.Bytes()
	for i := range data {
		data[i] = 0x80
	}
	m.RGBs++
	pkt.FrameAddrRGB = owner.Addr()
	return nil
}

func (m *VideoDecoder) Surfaces() buffer.Resolver { return m.registry }

func (m *VideoDecoder) OutputSurfaceInfo() (surface.Info, bool) { return m.info, m.haveInfo }

func (m *VideoDecoder) CurrentSurfaceInfo() (surface.Info, bool) { return m.current, m.current.Width > 0 }

func (m *VideoDecoder) ResizedSurfaceInfo() (surface.Info, bool) { return m.resized, m.hasResized }

func (m *VideoDecoder) GetGpuInfo() device.ConfigInfo { return m.Gpu }

func (m *VideoDecoder) IsCodecSupported(deviceID int, c codec.Codec, bitDepth int) bool {
	return !m.Unsupported && c.Valid()
}

func (m *VideoDecoder) SetReconfigParams(params ports.ReconfigParams) error {
	m.Reconfig = params
	return nil
}

func (m *VideoDecoder) NumFlushedFrames() int { return m.flushed }

func (m *VideoDecoder) SessionOverhead(sessionID int) time.Duration {
	if sessionID == 0 {
		return m.Overhead
	}
	return 0
}

func (m *VideoDecoder) SaveFrameToFile(path string, addr uintptr, info surface.Info) error {
	owner, err := m.registry.Resolve(addr)
	if err != nil {
		return err
	}
	owner.Release()
	m.Saved = append(m.Saved, SavedFrame{Path: path, Addr: addr, Info: info})
	return nil
}

func (m *VideoDecoder) Close() error {
	for _, q := range m.ready {
		q.owner.Release()
	}
	m.ready = nil
	m.Closed = true
	return m.pool.Close()
}

var _ ports.VideoDecoder = (*VideoDecoder)(nil)
