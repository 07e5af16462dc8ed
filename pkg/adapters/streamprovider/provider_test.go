package streamprovider_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/videobridge/pkg/adapters/streamprovider"
	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/ivf"
	"github.com/user/videobridge/pkg/mocks"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/ports"
)

// forwardOnly hides Seek from the wrapped reader.
type forwardOnly struct{ io.Reader }

func bitstream(t *testing.T, d ports.Demuxer, pkt *packet.PacketData) []byte {
	t.Helper()
	owner, err := d.Bitstreams().Resolve(pkt.BitstreamAddr)
	require.NoError(t, err)
	defer owner.Release()
	b, err := owner.Bytes()
	require.NoError(t, err)
	return append([]byte(nil), b[:pkt.BitstreamSize]...)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want streamprovider.Format
	}{
		{"mp4", []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}, streamprovider.FormatMP4},
		{"fragment", []byte{0, 0, 0, 0x18, 's', 't', 'y', 'p'}, streamprovider.FormatMP4},
		{"ivf", []byte("DKIF\x00\x00\x20\x00VP80"), streamprovider.FormatIVF},
		{"annexb 4-byte", []byte{0, 0, 0, 1, 0x67}, streamprovider.FormatAnnexB},
		{"annexb 3-byte", []byte{0, 0, 1, 0x40, 0x01}, streamprovider.FormatAnnexB},
		{"garbage", []byte("hello world"), streamprovider.FormatUnknown},
		{"empty", nil, streamprovider.FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, streamprovider.Sniff(tt.head))
		})
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := streamprovider.New(bytes.NewReader([]byte("not a video stream")), streamprovider.Options{})
	assert.ErrorIs(t, err, streamprovider.ErrUnknownFormat)
}

// vp8Stream has key frames at 0 and 3 in a 1/30 timebase.
func vp8Stream(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := ivf.NewWriter(&buf, ivf.Header{FourCC: "VP80", Width: 176, Height: 144, TimebaseDen: 30, TimebaseNum: 1})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		frame := []byte{0x01, byte(i), 0xaa}
		if i%3 == 0 {
			frame[0] = 0x00
		}
		require.NoError(t, w.WriteFrame(uint64(i), frame))
	}
	return buf.Bytes()
}

func TestIVFSequence(t *testing.T) {
	alloc := mocks.NewAllocator()
	d, err := streamprovider.New(bytes.NewReader(vp8Stream(t)), streamprovider.Options{Pool: buffer.NewPool(alloc)})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, codec.VP8, d.CodecID())
	assert.Equal(t, 176, d.Width())
	assert.Equal(t, 144, d.Height())
	assert.Equal(t, 8, d.BitDepth())

	pkt := packet.New()
	var keys []bool
	for i := 0; i < 5; i++ {
		require.NoError(t, d.DemuxFrame(pkt))
		assert.Equal(t, []byte{byte(i), 0xaa}, bitstream(t, d, pkt)[1:])
		assert.Equal(t, int64(i)*1_000_000/30, pkt.PTS)
		keys = append(keys, pkt.Flags.Has(packet.FlagKeyFrame))
		assert.Equal(t, 1, alloc.Live())
	}
	assert.Equal(t, []bool{true, false, false, true, false}, keys)

	require.NoError(t, d.DemuxFrame(pkt))
	assert.True(t, pkt.EndOfStream)
	assert.Zero(t, pkt.BitstreamSize)
	assert.Equal(t, 0, alloc.Live())
}

func TestIVFSeekExact(t *testing.T) {
	d, err := streamprovider.New(bytes.NewReader(vp8Stream(t)), streamprovider.Options{})
	require.NoError(t, err)
	defer d.Close()

	pkt := packet.New()
	require.NoError(t, d.SeekFrame(pkt, ports.SeekParams{Target: 4, Mode: ports.SeekExactFrame}))
	assert.Equal(t, byte(3), bitstream(t, d, pkt)[1])
	assert.True(t, pkt.Flags.Has(packet.FlagKeyFrame))
	assert.True(t, pkt.Flags.Has(packet.FlagDiscard))

	require.NoError(t, d.DemuxFrame(pkt))
	assert.Equal(t, byte(4), bitstream(t, d, pkt)[1])
	assert.False(t, pkt.Flags.Has(packet.FlagDiscard))
}

func TestIVFSeekByTimestamp(t *testing.T) {
	d, err := streamprovider.New(bytes.NewReader(vp8Stream(t)), streamprovider.Options{})
	require.NoError(t, err)
	defer d.Close()

	pkt := packet.New()
	params := ports.SeekParams{Target: 80_000, Mode: ports.SeekPrevKeyFrame, Criteria: ports.ByTimestamp}
	require.NoError(t, d.SeekFrame(pkt, params))
	assert.Equal(t, byte(0), bitstream(t, d, pkt)[1])
	assert.False(t, pkt.Flags.Has(packet.FlagDiscard))
}

func TestIVFSeekOutOfRange(t *testing.T) {
	d, err := streamprovider.New(bytes.NewReader(vp8Stream(t)), streamprovider.Options{})
	require.NoError(t, err)
	defer d.Close()

	err = d.SeekFrame(packet.New(), ports.SeekParams{Target: 9})
	assert.ErrorIs(t, err, streamprovider.ErrSeekOutOfRange)
}

func TestForwardOnlySourceCannotSeek(t *testing.T) {
	d, err := streamprovider.New(forwardOnly{bytes.NewReader(vp8Stream(t))}, streamprovider.Options{})
	require.NoError(t, err)
	defer d.Close()

	pkt := packet.New()
	require.NoError(t, d.DemuxFrame(pkt))
	assert.True(t, pkt.Flags.Has(packet.FlagKeyFrame))

	err = d.SeekFrame(pkt, ports.SeekParams{Target: 0})
	assert.ErrorIs(t, err, streamprovider.ErrNotSeekable)
}

// h264Stream holds three access units: AUD+IDR, AUD+P, P.
func h264Stream() []byte {
	nal := func(b ...byte) []byte { return append([]byte{0, 0, 0, 1}, b...) }
	var s []byte
	s = append(s, nal(0x09, 0xf0)...)
	s = append(s, nal(0x65, 0x88, 0x84, 0x21)...)
	s = append(s, nal(0x09, 0x30)...)
	s = append(s, nal(0x41, 0x9a, 0x01)...)
	s = append(s, nal(0x41, 0x9a, 0x02)...)
	return s
}

func TestAnnexBAccessUnits(t *testing.T) {
	d, err := streamprovider.New(bytes.NewReader(h264Stream()), streamprovider.Options{FrameRate: 25})
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, codec.AVC, d.CodecID())

	pkt := packet.New()
	require.NoError(t, d.DemuxFrame(pkt))
	assert.Equal(t, []byte{0, 0, 0, 1, 0x09, 0xf0, 0, 0, 0, 1, 0x65, 0x88, 0x84, 0x21}, bitstream(t, d, pkt))
	assert.True(t, pkt.Flags.Has(packet.FlagKeyFrame))
	assert.Equal(t, int64(0), pkt.PTS)

	require.NoError(t, d.DemuxFrame(pkt))
	assert.Equal(t, []byte{0, 0, 0, 1, 0x09, 0x30, 0, 0, 0, 1, 0x41, 0x9a, 0x01}, bitstream(t, d, pkt))
	assert.False(t, pkt.Flags.Has(packet.FlagKeyFrame))
	assert.Equal(t, int64(40_000), pkt.PTS)

	require.NoError(t, d.DemuxFrame(pkt))
	assert.Equal(t, []byte{0, 0, 0, 1, 0x41, 0x9a, 0x02}, bitstream(t, d, pkt))

	require.NoError(t, d.DemuxFrame(pkt))
	assert.True(t, pkt.EndOfStream)
}

func TestAnnexBSeekExact(t *testing.T) {
	d, err := streamprovider.New(bytes.NewReader(h264Stream()), streamprovider.Options{})
	require.NoError(t, err)
	defer d.Close()

	pkt := packet.New()
	require.NoError(t, d.SeekFrame(pkt, ports.SeekParams{Target: 2, Mode: ports.SeekExactFrame}))
	assert.True(t, pkt.Flags.Has(packet.FlagKeyFrame))
	assert.True(t, pkt.Flags.Has(packet.FlagDiscard))

	require.NoError(t, d.DemuxFrame(pkt))
	assert.True(t, pkt.Flags.Has(packet.FlagDiscard))
	require.NoError(t, d.DemuxFrame(pkt))
	assert.False(t, pkt.Flags.Has(packet.FlagDiscard))
	assert.Equal(t, []byte{0, 0, 0, 1, 0x41, 0x9a, 0x02}, bitstream(t, d, pkt))
}

func TestAnnexBAmbiguousCodec(t *testing.T) {
	stream := []byte{0, 0, 0, 1, 0x41, 0x9a, 0x01}
	_, err := streamprovider.New(bytes.NewReader(stream), streamprovider.Options{})
	assert.ErrorIs(t, err, streamprovider.ErrUnknownFormat)

	d, err := streamprovider.New(bytes.NewReader(stream), streamprovider.Options{Codec: codec.AVC})
	require.NoError(t, err)
	assert.NoError(t, d.Close())
}

func TestMP4FromForwardOnlySourceIsSpooled(t *testing.T) {
	data, err := mocks.FragmentedAV1(64, 48, false, []mocks.MP4Sample{
		{Data: []byte{0x0a, 0x01, 0x00}, Key: true},
		{Data: []byte{0x32, 0x01, 0x00}},
	})
	require.NoError(t, err)

	fs := mocks.NewFileSystem()
	d, err := streamprovider.New(forwardOnly{bytes.NewReader(data)}, streamprovider.Options{FileSystem: fs})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 1, fs.TempFiles())
	assert.Equal(t, codec.AV1, d.CodecID())
	assert.Equal(t, 64, d.Width())

	pkt := packet.New()
	require.NoError(t, d.DemuxFrame(pkt))
	assert.Equal(t, []byte{0x0a, 0x01, 0x00}, bitstream(t, d, pkt))
}

func TestOpenClosesFile(t *testing.T) {
	fs := mocks.NewFileSystem()
	require.NoError(t, fs.WriteFile("/videos/clip.ivf", vp8Stream(t)))

	d, err := streamprovider.Open(fs, "/videos/clip.ivf", streamprovider.Options{})
	require.NoError(t, err)
	assert.Equal(t, codec.VP8, d.CodecID())
	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())

	_, err = streamprovider.Open(fs, "/videos/missing.ivf", streamprovider.Options{})
	assert.Error(t, err)
}
