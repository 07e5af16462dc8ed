// Package mp4demuxer reads coded video samples from ISO BMFF (MP4) files,
// progressive or fragmented, and hands them out one frame at a time.
package mp4demuxer

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/videobridge/pkg/adapters/logger"
	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/ports"
)

var (
	// ErrNoVideoTrack is returned when the file has no video track.
	ErrNoVideoTrack = errors.New("mp4demuxer: no video track found")
	// ErrUnsupportedSampleEntry is returned for sample entries with no decoder mapping.
	ErrUnsupportedSampleEntry = errors.New("mp4demuxer: unsupported sample entry")
	// ErrSeekOutOfRange is returned when a seek target is past the last frame.
	ErrSeekOutOfRange = errors.New("mp4demuxer: seek target out of range")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("mp4demuxer: demuxer closed")
)

// sample is one coded frame in decode order.
type sample struct {
	offset int64  // file offset, progressive files only
	size   int    // bytes
	data   []byte // fragmented files keep sample data in memory
	pts    int64  // microseconds
	key    bool
}

// Options configures a Demuxer.
type Options struct {
	// Pool supplies bitstream buffers. Defaults to a private host pool.
	Pool *buffer.Pool
	// Logger receives debug output. Defaults to no logging.
	Logger ports.Logger
	// Closer is closed with the demuxer, typically the file behind the reader.
	Closer io.Closer
}

// Demuxer implements ports.Demuxer over an MP4 file.
type Demuxer struct {
	r      io.ReadSeeker
	closer io.Closer
	pool   *buffer.Pool
	own    bool
	log    ports.Logger

	info      ports.StreamInfo
	paramSets []byte // Annex B VPS/SPS/PPS, prepended to key frames
	samples   []sample
	display   []int // sample indices in presentation order

	next    int
	exact   bool  // set by an exact seek until the next seek
	discard int64 // with exact, packets presented before this are flagged FlagDiscard
	current *buffer.Shared
	scratch []byte
	closed  bool
}

var _ ports.Demuxer = (*Demuxer)(nil)

// New parses the MP4 in r. The reader must stay valid until Close.
func New(r io.ReadSeeker, opts Options) (*Demuxer, error) {
	f, err := mp4.DecodeFile(r)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	d := &Demuxer{
		r:      r,
		closer: opts.Closer,
		pool:   opts.Pool,
		log:    opts.Logger,
	}
	if d.pool == nil {
		d.pool = buffer.NewPool(buffer.NewHostAllocator(buffer.DefaultMaxIdle))
		d.own = true
	}
	if d.log == nil {
		d.log = logger.NewNoop()
	}

	if f.IsFragmented() {
		err = d.loadFragmented(f)
	} else {
		err = d.loadProgressive(f)
	}
	if err != nil {
		return nil, err
	}
	d.indexDisplayOrder()

	d.log.Debug("Opened %s stream %dx%d, %d-bit, %d frames", d.info.Codec, d.info.Width, d.info.Height, d.info.BitDepth, len(d.samples))
	return d, nil
}

// Open opens path through fs.
func Open(fs ports.FileSystem, path string, opts Options) (*Demuxer, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	opts.Closer = f
	d, err := New(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func findVideoTrak(moov *mp4.MoovBox) *mp4.TrakBox {
	if moov == nil {
		return nil
	}
	for _, trak := range moov.Traks {
		if trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "vide" {
			return trak
		}
	}
	return nil
}

func timescaleOf(trak *mp4.TrakBox) uint32 {
	if trak.Mdia != nil && trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale != 0 {
		return trak.Mdia.Mdhd.Timescale
	}
	return 1000
}

func toMicros(t int64, timescale uint32) int64 {
	return t * 1_000_000 / int64(timescale)
}

func (d *Demuxer) loadProgressive(f *mp4.File) error {
	trak := findVideoTrak(f.Moov)
	if trak == nil {
		return ErrNoVideoTrack
	}
	if err := d.describe(trak); err != nil {
		return err
	}
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return fmt.Errorf("mp4demuxer: no sample table found")
	}
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stsc == nil {
		return fmt.Errorf("mp4demuxer: missing stsz or stsc box")
	}
	timescale := timescaleOf(trak)

	syncSamples := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, nr := range stbl.Stss.SampleNumber {
			syncSamples[nr] = true
		}
	}

	count := stbl.Stsz.SampleNumber
	d.samples = make([]sample, 0, count)
	for nr := uint32(1); nr <= count; nr++ {
		offset, err := sampleOffset(stbl, nr)
		if err != nil {
			return fmt.Errorf("sample %d: %w", nr, err)
		}
		var decodeTime uint64
		if stbl.Stts != nil {
			decodeTime, _ = stbl.Stts.GetDecodeTime(nr)
		}
		presentation := int64(decodeTime)
		if stbl.Ctts != nil {
			presentation += int64(stbl.Ctts.GetCompositionTimeOffset(nr))
		}
		d.samples = append(d.samples, sample{
			offset: int64(offset),
			size:   int(stbl.Stsz.GetSampleSize(int(nr))),
			pts:    toMicros(presentation, timescale),
			// No stss box means every sample is a sync sample.
			key: stbl.Stss == nil || syncSamples[nr],
		})
	}
	return nil
}

// sampleOffset returns the file offset of sample nr (1-based).
func sampleOffset(stbl *mp4.StblBox, nr uint32) (uint64, error) {
	chunkNr, firstSampleInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
	if err != nil {
		return 0, fmt.Errorf("get chunk nr: %w", err)
	}

	var chunkOffset uint64
	switch {
	case stbl.Stco != nil:
		chunkOffset, err = stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return 0, fmt.Errorf("get chunk offset: %w", err)
		}
	case stbl.Co64 != nil:
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return 0, fmt.Errorf("chunk nr %d out of range", chunkNr)
		}
		chunkOffset = stbl.Co64.ChunkOffset[chunkNr-1]
	default:
		return 0, fmt.Errorf("no stco or co64 box")
	}

	offset := chunkOffset
	for s := uint32(firstSampleInChunk); s < nr; s++ {
		offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
	}
	return offset, nil
}

func (d *Demuxer) loadFragmented(f *mp4.File) error {
	if f.Init == nil {
		return ErrNoVideoTrack
	}
	trak := findVideoTrak(f.Init.Moov)
	if trak == nil {
		return ErrNoVideoTrack
	}
	if err := d.describe(trak); err != nil {
		return err
	}
	trackID := trak.Tkhd.TrackID
	timescale := timescaleOf(trak)

	var trex *mp4.TrexBox
	if f.Init.Moov.Mvex != nil {
		for _, t := range f.Init.Moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			hasTrack := false
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID == trackID {
					hasTrack = true
				}
			}
			if !hasTrack {
				continue
			}
			samples, err := frag.GetFullSamples(trex)
			if err != nil {
				return fmt.Errorf("get samples: %w", err)
			}
			for _, s := range samples {
				presentation := int64(s.DecodeTime) + int64(s.CompositionTimeOffset)
				d.samples = append(d.samples, sample{
					size: len(s.Data),
					data: s.Data,
					pts:  toMicros(presentation, timescale),
					key:  s.Flags == mp4.SyncSampleFlags,
				})
			}
		}
	}
	if len(d.samples) > 0 {
		d.samples[0].key = true
	}
	return nil
}

// indexDisplayOrder sorts sample indices by presentation time.
func (d *Demuxer) indexDisplayOrder() {
	d.display = make([]int, len(d.samples))
	for i := range d.display {
		d.display[i] = i
	}
	sort.SliceStable(d.display, func(a, b int) bool {
		return d.samples[d.display[a]].pts < d.samples[d.display[b]].pts
	})
}

// DemuxFrame reads the next sample into a bitstream buffer and describes it
// in pkt. The previous bitstream buffer is released.
func (d *Demuxer) DemuxFrame(pkt *packet.PacketData) error {
	if d.closed {
		return ErrClosed
	}
	d.releaseCurrent()

	if d.next >= len(d.samples) {
		pkt.SignalEndOfStream()
		return nil
	}
	idx := d.next
	s := d.samples[idx]
	d.next++

	data, err := d.sampleData(s)
	if err != nil {
		return fmt.Errorf("read sample %d: %w", idx, err)
	}

	size := len(data)
	prefix := 0
	if s.key && len(d.paramSets) > 0 {
		prefix = len(d.paramSets)
		size += prefix
	}
	if size == 0 {
		return fmt.Errorf("sample %d: %w", idx, buffer.ErrInvalidSize)
	}

	buf, err := d.pool.Get(size)
	if err != nil {
		return fmt.Errorf("bitstream buffer: %w", err)
	}
	if prefix > 0 {
		if err := buf.WriteAt(d.paramSets, 0); err != nil {
			buf.Release()
			return err
		}
	}
	if err := buf.WriteAt(data, prefix); err != nil {
		buf.Release()
		return err
	}
	d.current = buf

	pkt.EndOfStream = false
	pkt.BitstreamAddr = buf.Addr()
	pkt.BitstreamSize = int64(size)
	pkt.PTS = s.pts
	pkt.Flags = 0
	if s.key {
		pkt.Flags |= packet.FlagKeyFrame
	}
	if d.exact && s.pts < d.discard {
		pkt.Flags |= packet.FlagDiscard
	}
	return nil
}

// sampleData returns the coded bytes of s, converted to Annex B for AVC and
// HEVC. The returned slice is only valid until the next call.
func (d *Demuxer) sampleData(s sample) ([]byte, error) {
	data := s.data
	if data == nil {
		if cap(d.scratch) < s.size {
			d.scratch = make([]byte, s.size)
		}
		data = d.scratch[:s.size]
		if _, err := d.r.Seek(s.offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek to sample: %w", err)
		}
		if _, err := io.ReadFull(d.r, data); err != nil {
			return nil, fmt.Errorf("read sample: %w", err)
		}
	}
	if d.info.Codec.AnnexB() {
		return lengthPrefixedToAnnexB(data), nil
	}
	return data, nil
}

// SeekFrame repositions the demuxer and returns the first packet to decode
// in pkt. With SeekExactFrame, packets presented before the target carry
// FlagDiscard.
func (d *Demuxer) SeekFrame(pkt *packet.PacketData, params ports.SeekParams) error {
	if d.closed {
		return ErrClosed
	}
	target, err := d.seekTarget(params)
	if err != nil {
		return err
	}
	key := target
	for key > 0 && !d.samples[key].key {
		key--
	}

	d.next = key
	d.exact = params.Mode == ports.SeekExactFrame
	d.discard = d.samples[target].pts
	d.log.Debug("Seek to frame %d from key frame %d (%s)", target, key, params.Mode)
	return d.DemuxFrame(pkt)
}

// seekTarget maps params to a sample index in decode order.
func (d *Demuxer) seekTarget(params ports.SeekParams) (int, error) {
	if len(d.samples) == 0 {
		return 0, ErrSeekOutOfRange
	}
	switch params.Criteria {
	case ports.ByFrameNumber:
		if params.Target < 0 || params.Target >= int64(len(d.display)) {
			return 0, fmt.Errorf("%w: frame %d of %d", ErrSeekOutOfRange, params.Target, len(d.display))
		}
		return d.display[params.Target], nil
	case ports.ByTimestamp:
		if params.Target < 0 {
			return 0, fmt.Errorf("%w: timestamp %d", ErrSeekOutOfRange, params.Target)
		}
		// Last frame presented at or before the target.
		i := sort.Search(len(d.display), func(i int) bool {
			return d.samples[d.display[i]].pts > params.Target
		})
		if i == 0 {
			return d.display[0], nil
		}
		return d.display[i-1], nil
	default:
		return 0, fmt.Errorf("mp4demuxer: unknown seek criteria %d", params.Criteria)
	}
}

func (d *Demuxer) releaseCurrent() {
	if d.current != nil {
		d.current.Release()
		d.current = nil
	}
}

// Bitstreams returns the pool bitstream addresses resolve against.
func (d *Demuxer) Bitstreams() buffer.Resolver { return d.pool }

// CodecID returns the stream codec.
func (d *Demuxer) CodecID() codec.Codec { return d.info.Codec }

// BitDepth returns the luma bit depth.
func (d *Demuxer) BitDepth() int { return d.info.BitDepth }

// Width returns the coded width.
func (d *Demuxer) Width() int { return d.info.Width }

// Height returns the coded height.
func (d *Demuxer) Height() int { return d.info.Height }

// StreamInfo returns the stream description.
func (d *Demuxer) StreamInfo() ports.StreamInfo { return d.info }

// NumFrames returns the number of samples in the track.
func (d *Demuxer) NumFrames() int { return len(d.samples) }

// Close releases the current bitstream and closes the underlying file.
func (d *Demuxer) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.releaseCurrent()

	var err error
	if d.own {
		err = d.pool.Close()
	}
	if d.closer != nil {
		if cerr := d.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// lengthPrefixedToAnnexB converts 4-byte length-prefixed NAL units to start
// code delimited ones.
func lengthPrefixedToAnnexB(data []byte) []byte {
	result := make([]byte, 0, len(data)+16)
	offset := 0
	for offset+4 <= len(data) {
		naluLen := int(data[offset])<<24 | int(data[offset+1])<<16 |
			int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4
		if naluLen < 0 || offset+naluLen > len(data) {
			break
		}
		result = append(result, 0, 0, 0, 1)
		result = append(result, data[offset:offset+naluLen]...)
		offset += naluLen
	}
	return result
}
