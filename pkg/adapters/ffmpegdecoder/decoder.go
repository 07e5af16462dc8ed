// Package ffmpegdecoder decodes demuxed packets with an ffmpeg process and
// exposes the surfaces through the packet's plane slots.
//
// NewHardware places surfaces in device memory of a selected accelerator and
// asks ffmpeg for hardware decoding; NewCPU decodes in software into host
// memory. Both return frames in the order ffmpeg finalized them.
package ffmpegdecoder

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/user/videobridge/pkg/adapters/hip"
	"github.com/user/videobridge/pkg/adapters/logger"
	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/device"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/ports"
	"github.com/user/videobridge/pkg/surface"
)

var (
	// ErrFFmpegNotFound is returned when ffmpeg is not found in PATH.
	ErrFFmpegNotFound = errors.New("ffmpegdecoder: ffmpeg not found in PATH")
	// ErrDecodeFailed is returned when the ffmpeg process rejects input.
	ErrDecodeFailed = errors.New("ffmpegdecoder: decode failed")
	// ErrNoStreamInfo is returned when packets arrive before SetStreamInfo.
	ErrNoStreamInfo = errors.New("ffmpegdecoder: stream info not set")
	// ErrUnsupported is returned for codecs or bit depths ffmpeg cannot decode.
	ErrUnsupported = errors.New("ffmpegdecoder: unsupported stream")
	// ErrBadSurface is returned when plane data does not match its surface.
	ErrBadSurface = errors.New("ffmpegdecoder: malformed surface")
	// ErrNotMapped is returned by conversions when surfaces are not mapped.
	ErrNotMapped = errors.New("ffmpegdecoder: surfaces are not mapped")
	// ErrNoSink is returned when a frame must be written without a sink.
	ErrNoSink = errors.New("ffmpegdecoder: no frame sink configured")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("ffmpegdecoder: decoder closed")
)

// DeviceSelector resolves a device ordinal to its descriptor.
type DeviceSelector interface {
	Select(id int) (device.ConfigInfo, error)
}

// Options configures a Decoder.
type Options struct {
	// DeviceID selects the accelerator. Ignored by the CPU decoder.
	DeviceID int
	// MemType selects where surfaces are placed. The CPU decoder places
	// internal and device-copied surfaces in host memory.
	MemType surface.MemType
	// Crop is applied to every surface when not empty.
	Crop ports.Rect
	// FFmpegPath overrides the ffmpeg lookup.
	FFmpegPath string
	// HWAccel is passed to ffmpeg -hwaccel by the hardware decoder.
	// Defaults to "auto".
	HWAccel string
	// Bitstreams resolves packet bitstream addresses. Required.
	Bitstreams buffer.Resolver
	// Sink receives SaveFrameToFile output and dumped frames.
	Sink ports.FrameSink
	// Logger receives debug output. Defaults to no logging.
	Logger ports.Logger

	// Devices overrides device enumeration for the hardware decoder.
	Devices DeviceSelector
	// DeviceMemory overrides the device memory backend. Defaults to the HIP
	// runtime when it loads, else an emulated device.
	DeviceMemory buffer.DeviceMemory
}

// Decoder implements ports.VideoDecoder. Its methods must be called from a
// single goroutine; surfaces it hands out may be used from any goroutine.
type Decoder struct {
	opts     Options
	log      ports.Logger
	ffmpeg   string
	hardware bool
	hw       hwAccel
	gpu      device.ConfigInfo
	devices  DeviceSelector

	host     *buffer.Pool
	dev      *buffer.Pool // nil for the CPU decoder
	pinned   *buffer.Pool // page-locked host surfaces of the hardware decoder
	surfaces *buffer.Pool
	registry *buffer.Registry

	info     ports.StreamInfo
	out      surface.Info
	crop     ports.Rect
	haveInfo bool

	sess        *session
	nextSession int
	overhead    map[int]time.Duration
	carry       time.Duration // reconfiguration time charged to the next session
	reconfig    ports.ReconfigParams
	scratch     []byte

	// Shared with the session reader goroutine.
	qmu       sync.Mutex
	queue     frameQueue
	pts       timestamps
	flushed   int // surfaces consumed by reconfiguration, never returned
	discarded int

	current     surface.Info
	resized     *buffer.Shared
	resizedInfo surface.Info
	haveResized bool
	rgb         *buffer.Shared

	closed bool
}

var _ ports.VideoDecoder = (*Decoder)(nil)

// NewCPU returns a software decoder producing host surfaces.
func NewCPU(opts Options) (*Decoder, error) {
	d, err := newDecoder(opts)
	if err != nil {
		return nil, err
	}
	d.gpu = device.ConfigInfo{DeviceName: "CPU", ArchName: runtime.GOARCH}
	d.surfaces = d.host
	if d.opts.MemType == surface.MemInternal || d.opts.MemType == surface.MemDevCopied {
		d.opts.MemType = surface.MemHostCopied
	}
	return d, nil
}

// NewHardware returns a decoder bound to accelerator opts.DeviceID. Internal
// and device-copied surfaces live in that device's memory.
func NewHardware(opts Options) (*Decoder, error) {
	d, err := newDecoder(opts)
	if err != nil {
		return nil, err
	}
	d.hardware = true
	d.devices = opts.Devices
	if d.devices == nil {
		d.devices = &device.Enumerator{}
	}
	if d.gpu, err = d.devices.Select(opts.DeviceID); err != nil {
		return nil, err
	}

	mem := opts.DeviceMemory
	if mem == nil {
		if m, err := hip.Open(opts.DeviceID); err == nil {
			mem = m
		} else {
			d.log.Debug("HIP unavailable, using emulated device memory: %s", err.Error())
			mem = buffer.NewEmulatedDevice()
		}
	}
	d.dev = buffer.NewPool(buffer.NewDeviceAllocator(mem))
	d.registry.Add(d.dev)

	d.hw = hwAccel{method: opts.HWAccel}
	switch d.hw.method {
	case "":
		d.hw.method = "auto"
	case "vaapi":
		d.hw.device = renderNode(opts.DeviceID)
	}

	switch opts.MemType {
	case surface.MemInternal, surface.MemDevCopied:
		d.surfaces = d.dev
	case surface.MemHostCopied:
		d.surfaces = d.host
		if buffer.MappedSupported {
			d.pinned = buffer.NewPool(buffer.NewMappedAllocator())
			d.registry.Add(d.pinned)
			d.surfaces = d.pinned
		}
	default:
		d.surfaces = d.host
	}
	d.log.Debug("Using %s", d.gpu.String())
	return d, nil
}

func newDecoder(opts Options) (*Decoder, error) {
	if opts.Bitstreams == nil {
		return nil, errors.New("ffmpegdecoder: Options.Bitstreams is required")
	}
	path, err := findFFmpeg(opts.FFmpegPath)
	if err != nil {
		return nil, err
	}
	d := &Decoder{
		opts:     opts,
		log:      opts.Logger,
		ffmpeg:   path,
		host:     buffer.NewPool(buffer.NewHostAllocator(buffer.DefaultMaxIdle)),
		overhead: make(map[int]time.Duration),
	}
	if d.log == nil {
		d.log = logger.NewNoop()
	}
	d.registry = buffer.NewRegistry(d.host)
	return d, nil
}

// Surfaces resolves addresses of every surface the decoder hands out.
func (d *Decoder) Surfaces() buffer.Resolver { return d.registry }

// SetStreamInfo announces the coded stream. A change of size, depth or codec
// while a session runs reconfigures the decoder according to the
// reconfiguration parameters.
func (d *Decoder) SetStreamInfo(info ports.StreamInfo) error {
	if d.closed {
		return ErrClosed
	}
	if !d.IsCodecSupported(d.opts.DeviceID, info.Codec, info.BitDepth) {
		return fmt.Errorf("%w: %s %d-bit", ErrUnsupported, info.Codec, info.BitDepth)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrUnsupported, info.Width, info.Height)
	}
	if d.haveInfo && info == d.info {
		return nil
	}

	if d.sess != nil {
		start := time.Now()
		if err := d.reconfigure(); err != nil {
			return err
		}
		d.carry += time.Since(start)
	}

	d.info = info
	d.out, d.crop = d.outputInfo(info)
	d.haveInfo = true
	d.log.Debug("Output surface %dx%d %s (%s)", d.out.Width, d.out.Height, d.out.Format, d.out.MemType)
	return nil
}

// outputInfo derives the output surface and the ffmpeg crop for info.
// 4:2:0 surfaces are trimmed to even dimensions.
func (d *Decoder) outputInfo(info ports.StreamInfo) (surface.Info, ports.Rect) {
	full := ports.Rect{Right: info.Width, Bottom: info.Height}
	rect := full
	if c := d.opts.Crop; !c.Empty() {
		rect = ports.Rect{
			Left:   clamp(c.Left, 0, info.Width),
			Top:    clamp(c.Top, 0, info.Height),
			Right:  clamp(c.Right, 0, info.Width),
			Bottom: clamp(c.Bottom, 0, info.Height),
		}
		if rect.Empty() {
			rect = full
		}
	}

	format := surface.Choose(info.BitDepth, info.ChromaFormat)
	if format.PlaneCount() == 2 {
		rect.Right -= rect.Width() & 1
		rect.Bottom -= rect.Height() & 1
	}
	out := surface.NewInfo(rect.Width(), rect.Height(), info.BitDepth, format, d.opts.MemType)
	if rect == full {
		return out, ports.Rect{}
	}
	return out, rect
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DecodeFrame submits pkt's bitstream. An end-of-stream packet closes the
// ffmpeg input and waits for every remaining surface.
func (d *Decoder) DecodeFrame(pkt *packet.PacketData) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if pkt.EndOfStream || pkt.BitstreamSize <= 0 {
		if d.sess != nil {
			if err := d.endSession(); err != nil {
				return d.ready(), err
			}
		}
		return d.ready(), nil
	}
	if !d.haveInfo {
		return 0, ErrNoStreamInfo
	}
	if d.sess == nil {
		if err := d.startSession(); err != nil {
			return 0, err
		}
	}

	owner, err := d.opts.Bitstreams.Resolve(pkt.BitstreamAddr)
	if err != nil {
		return 0, fmt.Errorf("bitstream: %w", err)
	}
	size := int(pkt.BitstreamSize)
	if cap(d.scratch) < size {
		d.scratch = make([]byte, size)
	}
	data := d.scratch[:size]
	err = owner.ReadAt(data, 0)
	owner.Release()
	if err != nil {
		return 0, fmt.Errorf("bitstream: %w", err)
	}

	d.qmu.Lock()
	d.pts.push(pkt.PTS, pkt.Flags.Has(packet.FlagDiscard))
	d.qmu.Unlock()

	if err := d.sess.write(pkt.PTS, data); err != nil {
		d.abortSession()
		return 0, err
	}
	return d.ready(), nil
}

func (d *Decoder) ready() int {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	return d.queue.len()
}

func (d *Decoder) startSession() error {
	start := time.Now()
	id := d.nextSession
	d.nextSession++

	out := d.out
	args := buildArgs(d.info.Codec, out, d.crop, d.hw)
	sess, err := startSession(id, d.ffmpeg, args, d.info.Codec, d.info, out.Size(), func(data []byte) error {
		return d.onFrame(out, data)
	})
	if err != nil {
		return err
	}
	d.sess = sess
	d.overhead[id] = d.carry + time.Since(start)
	d.carry = 0
	d.log.Debug("Started decode session %d: %s", id, d.info.Codec)
	return nil
}

// onFrame runs on the session reader goroutine.
func (d *Decoder) onFrame(info surface.Info, data []byte) error {
	d.qmu.Lock()
	p, ok := d.pts.pop()
	d.qmu.Unlock()
	if !ok {
		d.log.Warn("Surface without a pending timestamp")
	}
	if p.discard {
		d.qmu.Lock()
		d.discarded++
		d.qmu.Unlock()
		return nil
	}

	var owner *buffer.Shared
	if info.MemType != surface.MemNotMapped {
		var err error
		if owner, err = d.surfaces.Get(len(data)); err != nil {
			return fmt.Errorf("surface buffer: %w", err)
		}
		if err := owner.WriteAt(data, 0); err != nil {
			owner.Release()
			return fmt.Errorf("surface upload: %w", err)
		}
	}

	d.qmu.Lock()
	d.queue.push(decodedFrame{owner: owner, info: info, pts: p.pts})
	d.qmu.Unlock()
	return nil
}

// endSession closes the input of the running session and waits for every
// surface it still had to emit.
func (d *Decoder) endSession() error {
	sess := d.sess
	d.sess = nil
	err := sess.finish()

	d.qmu.Lock()
	d.pts.reset()
	ready := d.queue.len()
	d.qmu.Unlock()
	d.log.Debug("Session %d drained, %d frames ready", sess.id, ready)
	return err
}

func (d *Decoder) abortSession() {
	if d.sess == nil {
		return
	}
	d.sess.abort()
	d.sess = nil
	d.qmu.Lock()
	d.pts.reset()
	d.qmu.Unlock()
}

// reconfigure drains the running session and disposes of the surfaces still
// queued according to the flush mode. Dumped and dropped surfaces count as
// flushed; segment mode keeps them deliverable with their own surface info.
func (d *Decoder) reconfigure() error {
	if err := d.endSession(); err != nil {
		return err
	}

	d.qmu.Lock()
	defer d.qmu.Unlock()

	switch d.reconfig.FlushMode {
	case ports.FlushSegment:
		return nil
	case ports.FlushDump:
		var result *multierror.Error
		d.queue.drain(func(f decodedFrame) {
			d.flushed++
			if f.owner == nil {
				return
			}
			if err := d.save(d.reconfig.DumpPath, f.owner, f.info); err != nil {
				result = multierror.Append(result, err)
			}
			f.owner.Release()
		})
		return result.ErrorOrNil()
	default:
		d.queue.drain(func(f decodedFrame) {
			d.flushed++
			if f.owner != nil {
				f.owner.Release()
			}
		})
		return nil
	}
}

// GetFrame binds the oldest decoded surface into pkt.
func (d *Decoder) GetFrame(pkt *packet.PacketData) error {
	if d.closed {
		return ErrClosed
	}
	d.qmu.Lock()
	f, ok := d.queue.pop()
	d.qmu.Unlock()
	if !ok {
		return ports.ErrNoFrame
	}

	d.releaseDerived(pkt)
	pkt.EndOfStream = false
	pkt.PTS = f.pts
	d.current = f.info
	if f.owner == nil {
		pkt.ClearPlanes()
		pkt.FrameSize = int64(f.info.Size())
		return nil
	}
	err := surface.Bind(pkt, f.owner, f.info)
	f.owner.Release()
	return err
}

// ReleaseFrame drops pkt's surface references and the decoder's resized and
// RGB copies.
func (d *Decoder) ReleaseFrame(pkt *packet.PacketData) {
	pkt.ClearPlanes()
	d.releaseDerived(pkt)
}

func (d *Decoder) releaseDerived(pkt *packet.PacketData) {
	if d.resized != nil {
		d.resized.Release()
		d.resized = nil
	}
	if d.rgb != nil {
		d.rgb.Release()
		d.rgb = nil
	}
	pkt.FrameAddrResized = 0
	pkt.FrameAddrRGB = 0
}

// framePlanes reads pkt's planes as tightly packed host slices.
func (d *Decoder) framePlanes(pkt *packet.PacketData) ([][]byte, error) {
	if !pkt.HasFrame() {
		return nil, ports.ErrNoFrame
	}
	if d.current.MemType == surface.MemNotMapped {
		return nil, ErrNotMapped
	}
	planes := make([][]byte, d.current.Format.PlaneCount())
	for i := range planes {
		p, err := pkt.Plane(packet.PlaneIndex(i)).ReadPlane()
		if err != nil {
			return nil, fmt.Errorf("read plane %s: %w", packet.PlaneIndex(i), err)
		}
		planes[i] = p
	}
	return planes, nil
}

// ResizeFrame scales the current frame into a host surface owned by the
// decoder until the next GetFrame or ReleaseFrame.
func (d *Decoder) ResizeFrame(pkt *packet.PacketData, dim ports.Dimension) (int64, error) {
	if dim.Zero() {
		return 0, nil
	}
	out := resizedInfo(d.current, dim)
	if out.Width == d.current.Width && out.Height == d.current.Height {
		return 0, nil
	}
	planes, err := d.framePlanes(pkt)
	if err != nil {
		return 0, err
	}
	data, err := resize(planes, d.current, out)
	if err != nil {
		return 0, err
	}
	owner, err := d.hostCopy(data)
	if err != nil {
		return 0, err
	}
	if d.resized != nil {
		d.resized.Release()
	}
	d.resized = owner
	d.resizedInfo = out
	d.haveResized = true
	pkt.FrameAddrResized = owner.Addr()
	return int64(len(data)), nil
}

// GetFrameRGB converts the current frame into a packed host surface owned by
// the decoder until the next GetFrame or ReleaseFrame.
func (d *Decoder) GetFrameRGB(pkt *packet.PacketData, format ports.RGBFormat) error {
	planes, err := d.framePlanes(pkt)
	if err != nil {
		return err
	}
	data, err := toRGB(planes, d.current, format)
	if err != nil {
		return err
	}
	owner, err := d.hostCopy(data)
	if err != nil {
		return err
	}
	if d.rgb != nil {
		d.rgb.Release()
	}
	d.rgb = owner
	pkt.FrameAddrRGB = owner.Addr()
	return nil
}

func (d *Decoder) hostCopy(data []byte) (*buffer.Shared, error) {
	owner, err := d.host.Get(len(data))
	if err != nil {
		return nil, err
	}
	if err := owner.WriteAt(data, 0); err != nil {
		owner.Release()
		return nil, err
	}
	return owner, nil
}

// OutputSurfaceInfo describes the surfaces GetFrame binds.
func (d *Decoder) OutputSurfaceInfo() (surface.Info, bool) { return d.out, d.haveInfo }

// CurrentSurfaceInfo describes the frame the last GetFrame bound.
func (d *Decoder) CurrentSurfaceInfo() (surface.Info, bool) { return d.current, d.current.Width > 0 }

// ResizedSurfaceInfo describes the last ResizeFrame output.
func (d *Decoder) ResizedSurfaceInfo() (surface.Info, bool) { return d.resizedInfo, d.haveResized }

// GetGpuInfo returns the device decoding runs on.
func (d *Decoder) GetGpuInfo() device.ConfigInfo { return d.gpu }

// IsCodecSupported reports whether c at bitDepth can be decoded on deviceID.
func (d *Decoder) IsCodecSupported(deviceID int, c codec.Codec, bitDepth int) bool {
	if !c.Valid() || c.FFmpegInputFormat() == "" || !c.SupportsBitDepth(bitDepth) {
		return false
	}
	if !d.hardware {
		return true
	}
	_, err := d.devices.Select(deviceID)
	return err == nil
}

// SetReconfigParams sets how queued surfaces are handled on reconfiguration.
func (d *Decoder) SetReconfigParams(params ports.ReconfigParams) error {
	if params.FlushMode == ports.FlushDump && params.DumpPath == "" {
		return errors.New("ffmpegdecoder: dump flush mode needs a dump path")
	}
	if params.FlushMode == ports.FlushDump && d.opts.Sink == nil {
		return ErrNoSink
	}
	d.reconfig = params
	return nil
}

// NumFlushedFrames returns the surfaces consumed by reconfigurations instead
// of being returned by GetFrame.
func (d *Decoder) NumFlushedFrames() int {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	return d.flushed
}

// NumDiscardedFrames returns the surfaces dropped for FlagDiscard packets.
func (d *Decoder) NumDiscardedFrames() int {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	return d.discarded
}

// SessionOverhead returns the time spent starting session id, including
// the reconfiguration that preceded it.
func (d *Decoder) SessionOverhead(sessionID int) time.Duration {
	return d.overhead[sessionID]
}

// SaveFrameToFile appends the surface at addr to path through the sink.
func (d *Decoder) SaveFrameToFile(path string, addr uintptr, info surface.Info) error {
	owner, err := d.registry.Resolve(addr)
	if err != nil {
		return err
	}
	defer owner.Release()
	return d.save(path, owner, info)
}

func (d *Decoder) save(path string, owner *buffer.Shared, info surface.Info) error {
	if d.opts.Sink == nil {
		return ErrNoSink
	}
	layouts, err := info.Layouts()
	if err != nil {
		return err
	}
	planes := make([][]byte, len(layouts))
	for i, l := range layouts {
		row := l.Width * l.ElemSize
		plane := make([]byte, row*l.Height)
		for y := 0; y < l.Height; y++ {
			if err := owner.ReadAt(plane[y*row:(y+1)*row], l.Offset+y*l.Pitch); err != nil {
				return fmt.Errorf("read plane %d: %w", i, err)
			}
		}
		planes[i] = plane
	}
	return d.opts.Sink.AppendRaw(path, info, planes)
}

// Close stops ffmpeg and releases every surface still held by the decoder.
// Surfaces bound into packets stay valid until their slots are reset.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.abortSession()

	d.qmu.Lock()
	d.queue.drain(func(f decodedFrame) {
		if f.owner != nil {
			f.owner.Release()
		}
	})
	d.qmu.Unlock()
	if d.resized != nil {
		d.resized.Release()
		d.resized = nil
	}
	if d.rgb != nil {
		d.rgb.Release()
		d.rgb = nil
	}

	var result *multierror.Error
	if err := d.host.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, p := range []*buffer.Pool{d.dev, d.pinned} {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
