package ffmpegdecoder

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/device"
	"github.com/user/videobridge/pkg/mocks"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/ports"
	"github.com/user/videobridge/pkg/surface"
)

var avc64x48 = ports.StreamInfo{Codec: codec.AVC, Width: 64, Height: 48, BitDepth: 8, ChromaFormat: 1}

// fakeFFmpeg writes a script that swallows stdin and then prints size bytes
// of fill, standing in for an ffmpeg process that decodes on end of input.
func fakeFFmpeg(t *testing.T, size int, fill byte) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := fmt.Sprintf("#!/bin/sh\ncat >/dev/null\nhead -c %d /dev/zero | tr '\\000' '\\%03o'\n", size, fill)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

type testRig struct {
	dec        *Decoder
	bitstreams *buffer.Pool
	sink       *mocks.FrameSink
}

func newRig(t *testing.T, opts Options) *testRig {
	t.Helper()
	r := &testRig{
		bitstreams: buffer.NewPool(buffer.NewHostAllocator(0)),
		sink:       mocks.NewFrameSink(),
	}
	opts.Bitstreams = r.bitstreams
	opts.Sink = r.sink
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = os.Args[0]
	}
	dec, err := NewCPU(opts)
	require.NoError(t, err)
	r.dec = dec
	t.Cleanup(func() { r.dec.Close() })
	return r
}

// submit decodes one access unit carrying data.
func (r *testRig) submit(t *testing.T, data []byte, pts int64, flags packet.Flag) int {
	t.Helper()
	owner, err := r.bitstreams.Get(len(data))
	require.NoError(t, err)
	defer owner.Release()
	require.NoError(t, owner.WriteAt(data, 0))

	pkt := packet.New()
	pkt.BitstreamAddr = owner.Addr()
	pkt.BitstreamSize = int64(len(data))
	pkt.PTS = pts
	pkt.Flags = flags
	n, err := r.dec.DecodeFrame(pkt)
	require.NoError(t, err)
	return n
}

func (r *testRig) drain(t *testing.T) int {
	t.Helper()
	pkt := packet.New()
	pkt.SignalEndOfStream()
	n, err := r.dec.DecodeFrame(pkt)
	require.NoError(t, err)
	return n
}

// inject queues a surface as if the session reader had produced it.
func (r *testRig) inject(t *testing.T, data []byte, pts int64) {
	t.Helper()
	r.dec.pts.push(pts, false)
	require.NoError(t, r.dec.onFrame(r.dec.out, data))
}

func filled(n int, b byte) []byte { return bytes.Repeat([]byte{b}, n) }

func TestBuildArgs(t *testing.T) {
	out := surface.NewInfo(32, 16, 8, surface.FormatNV12, surface.MemHostCopied)

	args := buildArgs(codec.HEVC, out, ports.Rect{Left: 8, Top: 4, Right: 40, Bottom: 20}, hwAccel{})
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "hevc", "-i", "pipe:0", "-an", "-fps_mode", "passthrough",
		"-vf", "crop=32:16:8:4",
		"-f", "rawvideo", "-pix_fmt", "nv12", "pipe:1",
	}, args)

	args = buildArgs(codec.VP9, out, ports.Rect{}, hwAccel{method: "vaapi", device: renderNode(1)})
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-hwaccel", "vaapi", "-hwaccel_device", "/dev/dri/renderD129",
		"-f", "ivf", "-i", "pipe:0", "-an", "-fps_mode", "passthrough",
		"-f", "rawvideo", "-pix_fmt", "nv12", "pipe:1",
	}, args)
}

func TestOutputInfo(t *testing.T) {
	tests := []struct {
		name     string
		crop     ports.Rect
		info     ports.StreamInfo
		wantW    int
		wantH    int
		wantCrop ports.Rect
		format   surface.Format
	}{
		{
			name:   "full frame",
			info:   avc64x48,
			wantW:  64,
			wantH:  48,
			format: surface.FormatNV12,
		},
		{
			name:     "odd 4:2:0 trimmed",
			info:     ports.StreamInfo{Codec: codec.AVC, Width: 65, Height: 49, BitDepth: 8, ChromaFormat: 1},
			wantW:    64,
			wantH:    48,
			wantCrop: ports.Rect{Right: 64, Bottom: 48},
			format:   surface.FormatNV12,
		},
		{
			name:   "odd 4:4:4 kept",
			info:   ports.StreamInfo{Codec: codec.HEVC, Width: 65, Height: 49, BitDepth: 10, ChromaFormat: 3},
			wantW:  65,
			wantH:  49,
			format: surface.FormatYUV444P16,
		},
		{
			name:     "crop clamped",
			crop:     ports.Rect{Left: 8, Top: 4, Right: 100, Bottom: 20},
			info:     avc64x48,
			wantW:    56,
			wantH:    16,
			wantCrop: ports.Rect{Left: 8, Top: 4, Right: 64, Bottom: 20},
			format:   surface.FormatNV12,
		},
		{
			name:   "crop outside frame ignored",
			crop:   ports.Rect{Left: 100, Top: 100, Right: 200, Bottom: 200},
			info:   avc64x48,
			wantW:  64,
			wantH:  48,
			format: surface.FormatNV12,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Decoder{opts: Options{Crop: tt.crop, MemType: surface.MemHostCopied}}
			out, crop := d.outputInfo(tt.info)
			assert.Equal(t, tt.wantW, out.Width)
			assert.Equal(t, tt.wantH, out.Height)
			assert.Equal(t, tt.format, out.Format)
			assert.Equal(t, tt.wantCrop, crop)
		})
	}
}

func TestTimestampsPopInPresentationOrder(t *testing.T) {
	var ts timestamps
	ts.push(66666, false)
	ts.push(0, false)
	ts.push(33333, true)
	ts.push(33333, false)

	var got []pendingPTS
	for {
		p, ok := ts.pop()
		if !ok {
			break
		}
		got = append(got, p)
	}
	require.Len(t, got, 4)
	assert.Equal(t, int64(0), got[0].pts)
	assert.Equal(t, int64(33333), got[1].pts)
	assert.True(t, got[1].discard, "equal timestamps keep submission order")
	assert.False(t, got[2].discard)
	assert.Equal(t, int64(66666), got[3].pts)
}

func TestNewRequiresBitstreams(t *testing.T) {
	_, err := NewCPU(Options{FFmpegPath: os.Args[0]})
	assert.Error(t, err)
}

func TestMissingFFmpeg(t *testing.T) {
	_, err := NewCPU(Options{FFmpegPath: "/nonexistent/ffmpeg", Bitstreams: buffer.NewRegistry()})
	assert.ErrorIs(t, err, ErrFFmpegNotFound)
}

func TestDecodeBeforeStreamInfo(t *testing.T) {
	r := newRig(t, Options{})
	pkt := packet.New()
	pkt.BitstreamAddr = 1
	pkt.BitstreamSize = 4
	_, err := r.dec.DecodeFrame(pkt)
	assert.ErrorIs(t, err, ErrNoStreamInfo)
}

func TestSetStreamInfoRejectsUnsupported(t *testing.T) {
	r := newRig(t, Options{})
	err := r.dec.SetStreamInfo(ports.StreamInfo{Codec: codec.AVC, Width: 64, Height: 48, BitDepth: 12, ChromaFormat: 1})
	assert.ErrorIs(t, err, ErrUnsupported)
	err = r.dec.SetStreamInfo(ports.StreamInfo{Codec: codec.AVC, BitDepth: 8, ChromaFormat: 1})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, r.dec.IsCodecSupported(0, codec.NumCodecs, 8))
}

func TestDecodeDrainsOnEndOfStream(t *testing.T) {
	frameSize := surface.NewInfo(64, 48, 8, surface.FormatNV12, surface.MemHostCopied).Size()
	r := newRig(t, Options{FFmpegPath: fakeFFmpeg(t, 3*frameSize, 0x80)})
	require.NoError(t, r.dec.SetStreamInfo(avc64x48))

	// Submitted in decode order; surfaces come back in presentation order.
	assert.Equal(t, 0, r.submit(t, []byte{0, 0, 1, 0x65}, 0, packet.FlagKeyFrame))
	assert.Equal(t, 0, r.submit(t, []byte{0, 0, 1, 0x41}, 66666, 0))
	assert.Equal(t, 0, r.submit(t, []byte{0, 0, 1, 0x01}, 33333, 0))
	assert.Equal(t, 3, r.drain(t))
	assert.Zero(t, r.dec.NumFlushedFrames(), "drained frames are returned, not flushed")

	pkt := packet.New()
	for _, want := range []int64{0, 33333, 66666} {
		require.NoError(t, r.dec.GetFrame(pkt))
		assert.Equal(t, want, pkt.PTS)
		assert.Equal(t, int64(frameSize), pkt.FrameSize)
		assert.Equal(t, 2, pkt.PopulatedPlanes())
		assert.True(t, pkt.Plane(packet.PlaneV).Empty())

		y, err := pkt.Plane(packet.PlaneY).ReadPlane()
		require.NoError(t, err)
		assert.Equal(t, filled(64*48, 0x80), y)
		r.dec.ReleaseFrame(pkt)
	}
	assert.ErrorIs(t, r.dec.GetFrame(pkt), ports.ErrNoFrame)
	assert.Equal(t, 0, r.dec.host.Live())
	assert.Equal(t, 0, r.bitstreams.Live())
}

func TestDiscardedFramesAreDropped(t *testing.T) {
	frameSize := surface.NewInfo(64, 48, 8, surface.FormatNV12, surface.MemHostCopied).Size()
	r := newRig(t, Options{FFmpegPath: fakeFFmpeg(t, 2*frameSize, 0x10)})
	require.NoError(t, r.dec.SetStreamInfo(avc64x48))

	r.submit(t, []byte{0, 0, 1, 0x65}, 0, packet.FlagKeyFrame|packet.FlagDiscard)
	r.submit(t, []byte{0, 0, 1, 0x41}, 33333, 0)
	assert.Equal(t, 1, r.drain(t))
	assert.Equal(t, 1, r.dec.NumDiscardedFrames())

	pkt := packet.New()
	require.NoError(t, r.dec.GetFrame(pkt))
	assert.Equal(t, int64(33333), pkt.PTS)
}

func TestExportedPlaneOutlivesRelease(t *testing.T) {
	r := newRig(t, Options{})
	require.NoError(t, r.dec.SetStreamInfo(avc64x48))
	r.inject(t, filled(r.dec.out.Size(), 0x20), 0)

	pkt := packet.New()
	require.NoError(t, r.dec.GetFrame(pkt))
	owner, _, err := pkt.Plane(packet.PlaneY).Acquire()
	require.NoError(t, err)

	r.dec.ReleaseFrame(pkt)
	assert.Equal(t, 0, pkt.PopulatedPlanes())
	assert.Equal(t, 1, r.dec.host.Live())

	owner.Release()
	assert.Equal(t, 0, r.dec.host.Live())
}

func TestFourFourFourPopulatesThreeSlots(t *testing.T) {
	r := newRig(t, Options{})
	require.NoError(t, r.dec.SetStreamInfo(ports.StreamInfo{Codec: codec.HEVC, Width: 16, Height: 8, BitDepth: 8, ChromaFormat: 3}))
	r.inject(t, filled(r.dec.out.Size(), 0x30), 0)

	pkt := packet.New()
	require.NoError(t, r.dec.GetFrame(pkt))
	assert.Equal(t, 3, pkt.PopulatedPlanes())
	y, u, v := pkt.Plane(packet.PlaneY).Addr(), pkt.Plane(packet.PlaneU).Addr(), pkt.Plane(packet.PlaneV).Addr()
	assert.Equal(t, uintptr(16*8), u-y)
	assert.Equal(t, uintptr(16*8), v-u)
	assert.Equal(t, pkt.FrameAddr, y)
}

func TestResizeAndRGB(t *testing.T) {
	r := newRig(t, Options{})
	require.NoError(t, r.dec.SetStreamInfo(ports.StreamInfo{Codec: codec.AVC, Width: 8, Height: 8, BitDepth: 8, ChromaFormat: 1}))
	r.inject(t, filled(r.dec.out.Size(), 0x80), 0)

	pkt := packet.New()
	require.NoError(t, r.dec.GetFrame(pkt))

	n, err := r.dec.ResizeFrame(pkt, ports.Dimension{Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Zero(t, n, "same size needs no resize")
	n, err = r.dec.ResizeFrame(pkt, ports.Dimension{})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = r.dec.ResizeFrame(pkt, ports.Dimension{Width: 5, Height: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(4*4*3/2), n, "4:2:0 output is trimmed to even size")
	info, ok := r.dec.ResizedSurfaceInfo()
	require.True(t, ok)
	assert.Equal(t, 4, info.Width)
	require.NotZero(t, pkt.FrameAddrResized)

	resized, err := r.dec.Surfaces().Resolve(pkt.FrameAddrResized)
	require.NoError(t, err)
	data, err := resized.Bytes()
	require.NoError(t, err)
	assert.Equal(t, filled(int(n), 0x80), data[:n])
	resized.Release()

	require.NoError(t, r.dec.GetFrameRGB(pkt, ports.RGB24))
	rgb, err := r.dec.Surfaces().Resolve(pkt.FrameAddrRGB)
	require.NoError(t, err)
	pix, err := rgb.Bytes()
	require.NoError(t, err)
	assert.Equal(t, filled(8*8*3, 0x80), pix[:8*8*3])
	rgb.Release()

	addr := pkt.FrameAddrRGB
	r.dec.ReleaseFrame(pkt)
	assert.Zero(t, pkt.FrameAddrRGB)
	assert.Zero(t, pkt.FrameAddrResized)
	_, err = r.dec.Surfaces().Resolve(addr)
	assert.ErrorIs(t, err, buffer.ErrUnknownAddress)
}

func TestResizeSixteenBit(t *testing.T) {
	r := newRig(t, Options{})
	require.NoError(t, r.dec.SetStreamInfo(ports.StreamInfo{Codec: codec.HEVC, Width: 8, Height: 8, BitDepth: 10, ChromaFormat: 1}))
	require.Equal(t, surface.FormatP016, r.dec.out.Format)

	data := bytes.Repeat([]byte{0x40, 0x81}, r.dec.out.Size()/2)
	r.inject(t, data, 0)
	pkt := packet.New()
	require.NoError(t, r.dec.GetFrame(pkt))

	n, err := r.dec.ResizeFrame(pkt, ports.Dimension{Width: 4, Height: 4})
	require.NoError(t, err)
	resized, err := r.dec.Surfaces().Resolve(pkt.FrameAddrResized)
	require.NoError(t, err)
	defer resized.Release()
	got, err := resized.Bytes()
	require.NoError(t, err)
	require.Equal(t, int64(4*4*3), n)
	for i := 0; i < int(n); i += 2 {
		assert.Equal(t, byte(0x81), got[i+1], "high byte at %d", i)
		assert.InDelta(t, 0x40, int(got[i]), 1, "low byte at %d", i)
	}
}

func TestSaveFrameToFile(t *testing.T) {
	r := newRig(t, Options{})
	require.NoError(t, r.dec.SetStreamInfo(ports.StreamInfo{Codec: codec.AVC, Width: 8, Height: 4, BitDepth: 8, ChromaFormat: 1}))
	r.inject(t, filled(r.dec.out.Size(), 0x55), 0)

	pkt := packet.New()
	require.NoError(t, r.dec.GetFrame(pkt))
	info, _ := r.dec.OutputSurfaceInfo()
	require.NoError(t, r.dec.SaveFrameToFile("/out.yuv", pkt.FrameAddr, info))
	require.NoError(t, r.dec.SaveFrameToFile("/out.yuv", pkt.FrameAddr, info))

	frames := r.sink.Frames("/out.yuv")
	require.Len(t, frames, 2)
	require.Len(t, frames[0].Planes, 2)
	assert.Len(t, frames[0].Planes[0], 8*4)
	assert.Len(t, frames[0].Planes[1], 8*2)

	assert.ErrorIs(t, r.dec.SaveFrameToFile("/out.yuv", 12345, info), buffer.ErrUnknownAddress)
}

func TestReconfigureDumpsQueuedFrames(t *testing.T) {
	frameSize := surface.NewInfo(64, 48, 8, surface.FormatNV12, surface.MemHostCopied).Size()
	r := newRig(t, Options{FFmpegPath: fakeFFmpeg(t, 2*frameSize, 0x80)})
	require.NoError(t, r.dec.SetReconfigParams(ports.ReconfigParams{FlushMode: ports.FlushDump, DumpPath: "/dump.yuv"}))
	require.NoError(t, r.dec.SetStreamInfo(avc64x48))

	r.submit(t, []byte{0, 0, 1, 0x65}, 0, packet.FlagKeyFrame)
	r.submit(t, []byte{0, 0, 1, 0x41}, 33333, 0)

	smaller := ports.StreamInfo{Codec: codec.AVC, Width: 32, Height: 24, BitDepth: 8, ChromaFormat: 1}
	require.NoError(t, r.dec.SetStreamInfo(smaller))

	frames := r.sink.Frames("/dump.yuv")
	require.Len(t, frames, 2)
	assert.Equal(t, 64, frames[0].Info.Width)
	assert.Equal(t, 2, r.dec.NumFlushedFrames())
	assert.Equal(t, 0, r.dec.ready())
	assert.Equal(t, 0, r.dec.host.Live())

	out, ok := r.dec.OutputSurfaceInfo()
	require.True(t, ok)
	assert.Equal(t, 32, out.Width)

	r.submit(t, []byte{0, 0, 1, 0x65}, 66666, packet.FlagKeyFrame)
	assert.Positive(t, r.dec.SessionOverhead(1))
}

func TestReconfigureSegmentKeepsFrames(t *testing.T) {
	frameSize := surface.NewInfo(64, 48, 8, surface.FormatNV12, surface.MemHostCopied).Size()
	r := newRig(t, Options{FFmpegPath: fakeFFmpeg(t, 2*frameSize, 0x80)})
	require.NoError(t, r.dec.SetReconfigParams(ports.ReconfigParams{FlushMode: ports.FlushSegment}))
	require.NoError(t, r.dec.SetStreamInfo(avc64x48))

	r.submit(t, []byte{0, 0, 1, 0x65}, 0, packet.FlagKeyFrame)
	r.submit(t, []byte{0, 0, 1, 0x41}, 33333, 0)
	require.NoError(t, r.dec.SetStreamInfo(ports.StreamInfo{Codec: codec.AVC, Width: 32, Height: 24, BitDepth: 8, ChromaFormat: 1}))
	assert.Zero(t, r.dec.NumFlushedFrames())
	assert.Equal(t, 2, r.dec.ready())

	pkt := packet.New()
	require.NoError(t, r.dec.GetFrame(pkt))
	assert.Equal(t, int64(frameSize), pkt.FrameSize, "queued frames keep their own surface")

	cur, ok := r.dec.CurrentSurfaceInfo()
	require.True(t, ok)
	assert.Equal(t, 64, cur.Width)
	out, _ := r.dec.OutputSurfaceInfo()
	assert.Equal(t, 32, out.Width)

	require.NoError(t, r.dec.GetFrameRGB(pkt, ports.RGBA32))
	owner, err := r.dec.Surfaces().Resolve(pkt.FrameAddrRGB)
	require.NoError(t, err)
	defer owner.Release()
	assert.Equal(t, 64*48*4, owner.Size())
}

func TestDumpNeedsPathAndSink(t *testing.T) {
	r := newRig(t, Options{})
	assert.Error(t, r.dec.SetReconfigParams(ports.ReconfigParams{FlushMode: ports.FlushDump}))

	dec, err := NewCPU(Options{FFmpegPath: os.Args[0], Bitstreams: buffer.NewRegistry()})
	require.NoError(t, err)
	defer dec.Close()
	assert.ErrorIs(t, dec.SetReconfigParams(ports.ReconfigParams{FlushMode: ports.FlushDump, DumpPath: "/d.yuv"}), ErrNoSink)
}

func TestNotMappedFramesCarryOnlySize(t *testing.T) {
	r := newRig(t, Options{MemType: surface.MemNotMapped})
	require.NoError(t, r.dec.SetStreamInfo(avc64x48))
	r.inject(t, filled(r.dec.out.Size(), 0), 0)

	pkt := packet.New()
	require.NoError(t, r.dec.GetFrame(pkt))
	assert.Equal(t, int64(r.dec.out.Size()), pkt.FrameSize)
	assert.Equal(t, 0, pkt.PopulatedPlanes())
	assert.ErrorIs(t, r.dec.GetFrameRGB(pkt, ports.RGB24), ErrNotMapped)
}

func TestCPUDecoderInfo(t *testing.T) {
	r := newRig(t, Options{MemType: surface.MemInternal})
	assert.Equal(t, "CPU", r.dec.GetGpuInfo().DeviceName)
	assert.Equal(t, surface.MemHostCopied, r.dec.opts.MemType)
}

type fakeDevices struct {
	devs []device.ConfigInfo
}

func (f fakeDevices) Select(id int) (device.ConfigInfo, error) { return device.Pick(f.devs, id) }

func TestHardwareSurfacesLiveOnDevice(t *testing.T) {
	gpu := device.ConfigInfo{DeviceName: "Radeon Test", ArchName: "gfx1100", PCIBusID: 3}
	dec, err := NewHardware(Options{
		FFmpegPath:   os.Args[0],
		Bitstreams:   buffer.NewRegistry(),
		MemType:      surface.MemInternal,
		Devices:      fakeDevices{devs: []device.ConfigInfo{gpu}},
		DeviceMemory: buffer.NewEmulatedDevice(),
		HWAccel:      "vaapi",
	})
	require.NoError(t, err)
	defer dec.Close()

	assert.Equal(t, gpu, dec.GetGpuInfo())
	assert.Equal(t, "/dev/dri/renderD128", dec.hw.device)
	assert.True(t, dec.IsCodecSupported(0, codec.HEVC, 10))
	assert.False(t, dec.IsCodecSupported(1, codec.HEVC, 10))

	require.NoError(t, dec.SetStreamInfo(avc64x48))
	dec.pts.push(0, false)
	require.NoError(t, dec.onFrame(dec.out, filled(dec.out.Size(), 0x42)))

	pkt := packet.New()
	require.NoError(t, dec.GetFrame(pkt))
	domain, ok := pkt.AddressDomain(packet.FieldFrame)
	require.True(t, ok)
	assert.Equal(t, buffer.DomainDevice, domain)

	y, err := pkt.Plane(packet.PlaneY).ReadPlane()
	require.NoError(t, err)
	assert.Equal(t, filled(64*48, 0x42), y)

	require.NoError(t, dec.GetFrameRGB(pkt, ports.RGBA32))
	domain, ok = pkt.AddressDomain(packet.FieldFrameRGB)
	require.True(t, ok)
	assert.Equal(t, buffer.DomainHost, domain)
}

func TestHardwareHostCopiedSurfacesArePinned(t *testing.T) {
	if !buffer.MappedSupported {
		t.Skip("mapped memory not supported")
	}
	gpu := device.ConfigInfo{DeviceName: "Radeon Test", ArchName: "gfx1100", PCIBusID: 3}
	dec, err := NewHardware(Options{
		FFmpegPath:   os.Args[0],
		Bitstreams:   buffer.NewRegistry(),
		MemType:      surface.MemHostCopied,
		DeviceID:     0,
		Devices:      fakeDevices{devs: []device.ConfigInfo{gpu}},
		DeviceMemory: buffer.NewEmulatedDevice(),
	})
	require.NoError(t, err)
	defer dec.Close()

	require.NoError(t, dec.SetStreamInfo(avc64x48))
	dec.pts.push(0, false)
	require.NoError(t, dec.onFrame(dec.out, filled(dec.out.Size(), 0x17)))

	pkt := packet.New()
	require.NoError(t, dec.GetFrame(pkt))
	domain, ok := pkt.AddressDomain(packet.FieldFrame)
	require.True(t, ok)
	assert.Equal(t, buffer.DomainMapped, domain)

	owner, err := dec.Surfaces().Resolve(pkt.FrameAddr)
	require.NoError(t, err)
	owner.Release()

	tensor, err := pkt.Plane(packet.PlaneY).Export(0)
	require.NoError(t, err)
	assert.Equal(t, buffer.DeviceROCMHost, tensor.Device.Type)
	require.NoError(t, tensor.Close())

	y, err := pkt.Plane(packet.PlaneY).ReadPlane()
	require.NoError(t, err)
	assert.Equal(t, filled(64*48, 0x17), y)
	dec.ReleaseFrame(pkt)
}

func TestHardwareNeedsDevice(t *testing.T) {
	_, err := NewHardware(Options{
		FFmpegPath: os.Args[0],
		Bitstreams: buffer.NewRegistry(),
		DeviceID:   2,
		Devices:    fakeDevices{},
	})
	assert.ErrorIs(t, err, device.ErrNoDevice)
}

func TestClosedDecoder(t *testing.T) {
	r := newRig(t, Options{})
	require.NoError(t, r.dec.Close())
	require.NoError(t, r.dec.Close())
	_, err := r.dec.DecodeFrame(packet.New())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.dec.GetFrame(packet.New()), ErrClosed)
}

func TestRealFFmpegDecode(t *testing.T) {
	if testing.Short() || !Available() {
		t.Skip("ffmpeg not available")
	}
	path, err := findFFmpeg("")
	require.NoError(t, err)
	stream, err := exec.Command(path, "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=30", "-frames:v", "5",
		"-c:v", "mpeg4", "-f", "m4v", "pipe:1").Output()
	require.NoError(t, err)

	r := newRig(t, Options{FFmpegPath: path})
	require.NoError(t, r.dec.SetStreamInfo(ports.StreamInfo{Codec: codec.MPEG4, Width: 64, Height: 48, BitDepth: 8, ChromaFormat: 1}))
	r.submit(t, stream, 0, packet.FlagKeyFrame)

	// A single packet carries all five frames; only one timestamp is known.
	n := r.drain(t)
	assert.Equal(t, 5, n)
}

func TestReconfigureDropsFramesByDefault(t *testing.T) {
	frameSize := surface.NewInfo(64, 48, 8, surface.FormatNV12, surface.MemHostCopied).Size()
	r := newRig(t, Options{FFmpegPath: fakeFFmpeg(t, frameSize, 0x80)})
	require.NoError(t, r.dec.SetStreamInfo(avc64x48))

	r.submit(t, []byte{0, 0, 1, 0x65}, 0, packet.FlagKeyFrame)
	require.NoError(t, r.dec.SetStreamInfo(ports.StreamInfo{Codec: codec.AVC, Width: 32, Height: 24, BitDepth: 8, ChromaFormat: 1}))
	assert.Equal(t, 1, r.dec.NumFlushedFrames())
	assert.Equal(t, 0, r.dec.ready())
	assert.Equal(t, 0, r.dec.host.Live())
}
