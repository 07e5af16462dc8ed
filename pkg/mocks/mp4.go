package mocks

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/mp4ff/av1"
	"github.com/Eyevinn/mp4ff/mp4"
)

// MP4Sample is one coded sample for FragmentedAV1.
type MP4Sample struct {
	Data []byte
	Key  bool
	// Offset is the composition time offset in timescale units.
	Offset int32
}

// FragmentedAV1 builds an ftyp+moov+moof/mdat file with one av01 track.
// Samples are 1000 timescale units apart at a 30000 timescale (30 fps).
// highBitDepth selects a 10-bit configuration record.
func FragmentedAV1(width, height int, highBitDepth bool, samples []MP4Sample) ([]byte, error) {
	const timescale = 30000
	const dur = 1000

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(timescale, "video", "und")
	trak := init.Moov.Trak

	cfg := av1.CodecConfRec{
		Version:            1,
		SeqLevelIdx0:       8,
		ChromaSubsamplingX: 1,
		ChromaSubsamplingY: 1,
	}
	if highBitDepth {
		cfg.HighBitdepth = 1
	}
	av01 := mp4.CreateVisualSampleEntryBox("av01", uint16(width), uint16(height), &mp4.Av1CBox{CodecConfRec: cfg})
	trak.Mdia.Minf.Stbl.Stsd.AddChild(av01)
	trak.Tkhd.Width = mp4.Fixed32(width << 16)
	trak.Tkhd.Height = mp4.Fixed32(height << 16)

	frag, err := mp4.CreateFragment(1, trak.Tkhd.TrackID)
	if err != nil {
		return nil, fmt.Errorf("create fragment: %w", err)
	}
	for i, s := range samples {
		flags := mp4.NonSyncSampleFlags
		if s.Key {
			flags = mp4.SyncSampleFlags
		}
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags:                 flags,
				Size:                  uint32(len(s.Data)),
				Dur:                   dur,
				CompositionTimeOffset: s.Offset,
			},
			DecodeTime: uint64(i * dur),
			Data:       s.Data,
		})
	}

	var buf bytes.Buffer
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6", "av01"})
	if err := ftyp.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode moov: %w", err)
	}
	if err := frag.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode fragment: %w", err)
	}
	return buf.Bytes(), nil
}
