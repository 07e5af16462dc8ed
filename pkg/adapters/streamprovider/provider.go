// Package streamprovider builds a demuxer for an arbitrary byte stream:
// MP4 files, IVF files and raw Annex B H.264 or HEVC streams. Sources that
// cannot seek are read forward only; MP4 input from such sources is spooled
// to a scratch file first.
package streamprovider

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/user/videobridge/pkg/adapters/logger"
	"github.com/user/videobridge/pkg/adapters/mp4demuxer"
	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/ivf"
	"github.com/user/videobridge/pkg/ports"
)

var (
	// ErrUnknownFormat is returned when the container cannot be recognised.
	ErrUnknownFormat = errors.New("streamprovider: unrecognised stream format")
	// ErrNotSeekable is returned by SeekFrame on forward-only sources.
	ErrNotSeekable = errors.New("streamprovider: source is not seekable")
	// ErrSeekOutOfRange is returned when a seek target is past the last frame.
	ErrSeekOutOfRange = errors.New("streamprovider: seek target out of range")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("streamprovider: demuxer closed")
)

// DefaultFrameRate is used to synthesize timestamps for raw streams.
const DefaultFrameRate = 30.0

// sniffSize is enough to tell MP4, IVF and Annex B apart.
const sniffSize = 16

// Format identifies a container.
type Format int

const (
	FormatUnknown Format = iota
	FormatMP4
	FormatIVF
	FormatAnnexB
)

func (f Format) String() string {
	switch f {
	case FormatMP4:
		return "mp4"
	case FormatIVF:
		return "ivf"
	case FormatAnnexB:
		return "annexb"
	default:
		return "unknown"
	}
}

// Options configures New.
type Options struct {
	// Pool supplies bitstream buffers. Defaults to a private host pool.
	Pool *buffer.Pool
	// Logger receives debug output. Defaults to no logging.
	Logger ports.Logger
	// FileSystem provides scratch files for spooling. Without one, MP4 input
	// from forward-only sources is buffered in memory.
	FileSystem ports.FileSystem
	// Codec forces the codec of raw Annex B streams when set to AVC or
	// HEVC. Otherwise it is guessed from the first NAL unit.
	Codec codec.Codec
	// FrameRate is used to synthesize timestamps for raw streams.
	FrameRate float64
}

// Sniff identifies the container from the first bytes of a stream.
func Sniff(head []byte) Format {
	switch {
	case len(head) >= 8 && isMP4Box(string(head[4:8])):
		return FormatMP4
	case ivf.Sniff(head):
		return FormatIVF
	case bytes.HasPrefix(head, []byte{0, 0, 1}) || bytes.HasPrefix(head, []byte{0, 0, 0, 1}):
		return FormatAnnexB
	}
	return FormatUnknown
}

func isMP4Box(boxType string) bool {
	switch boxType {
	case "ftyp", "styp", "moov", "moof", "mdat", "free", "skip":
		return true
	}
	return false
}

// New returns a demuxer for r. The caller keeps ownership of r but must keep
// it open until the demuxer is closed.
func New(r io.Reader, opts Options) (ports.Demuxer, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoop()
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}

	src, head, err := peek(r)
	if err != nil {
		return nil, err
	}
	format := Sniff(head)
	opts.Logger.Debug("Detected %s stream", format)

	switch format {
	case FormatMP4:
		return newMP4(src, opts)
	case FormatIVF:
		return newIVF(src, opts)
	case FormatAnnexB:
		c := opts.Codec
		if !c.AnnexB() {
			if c, err = guessAnnexBCodec(head); err != nil {
				return nil, err
			}
		}
		a, err := newAnnexB(src, c, opts)
		if err != nil {
			return nil, err
		}
		a.probe()
		return a, nil
	}
	return nil, ErrUnknownFormat
}

// Open opens path through fs and returns a demuxer that closes the file.
func Open(fs ports.FileSystem, path string, opts Options) (ports.Demuxer, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if opts.FileSystem == nil {
		opts.FileSystem = fs
	}
	d, err := New(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &closing{Demuxer: d, closer: f}, nil
}

// peek returns the leading bytes of r and a reader positioned at the start.
func peek(r io.Reader) (io.Reader, []byte, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		head := make([]byte, sniffSize)
		n, err := io.ReadFull(rs, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, fmt.Errorf("read stream head: %w", err)
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, nil, fmt.Errorf("rewind: %w", err)
		}
		return rs, head[:n], nil
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(sniffSize)
	if err != nil && len(head) == 0 {
		return nil, nil, fmt.Errorf("read stream head: %w", err)
	}
	return br, head, nil
}

// guessAnnexBCodec inspects the first NAL header.
func guessAnnexBCodec(head []byte) (codec.Codec, error) {
	i := bytes.Index(head, []byte{0, 0, 1})
	if i < 0 || i+4 >= len(head) {
		return codec.NumCodecs, fmt.Errorf("%w: no nal unit header", ErrUnknownFormat)
	}
	b0, b1 := head[i+3], head[i+4]
	// HEVC VPS, SPS, PPS and AUD have nuh_layer_id 0 and temporal id 1.
	if b1 == 0x01 {
		switch (b0 >> 1) & 0x3f {
		case 32, 33, 34, 35, 39:
			return codec.HEVC, nil
		}
	}
	switch b0 & 0x1f {
	case 5, 6, 7, 9:
		return codec.AVC, nil
	}
	return codec.NumCodecs, fmt.Errorf("%w: cannot tell h264 from hevc, set the codec explicitly", ErrUnknownFormat)
}

func newMP4(src io.Reader, opts Options) (ports.Demuxer, error) {
	mopts := mp4demuxer.Options{Pool: opts.Pool, Logger: opts.Logger}
	if rs, ok := src.(io.ReadSeeker); ok {
		return mp4demuxer.New(rs, mopts)
	}

	if opts.FileSystem == nil {
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, fmt.Errorf("buffer mp4: %w", err)
		}
		return mp4demuxer.New(bytes.NewReader(data), mopts)
	}

	tmp, err := opts.FileSystem.CreateTemp("videobridge-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("spool mp4: %w", err)
	}
	n, err := io.Copy(tmp, src)
	if err == nil {
		_, err = tmp.Seek(0, io.SeekStart)
	}
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("spool mp4: %w", err)
	}
	opts.Logger.Debug("Spooled %d bytes to %s", n, tmp.Name())

	mopts.Closer = tmp
	d, err := mp4demuxer.New(tmp, mopts)
	if err != nil {
		tmp.Close()
		return nil, err
	}
	return d, nil
}

// closing closes an extra resource after the demuxer.
type closing struct {
	ports.Demuxer
	closer io.Closer
	closed bool
}

func (c *closing) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var result *multierror.Error
	if err := c.Demuxer.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.closer.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
