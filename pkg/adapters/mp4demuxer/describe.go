package mp4demuxer

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/hevc"
	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/ports"
)

// describe fills d.info and d.paramSets from the track's sample entry.
func (d *Demuxer) describe(trak *mp4.TrakBox) error {
	if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return fmt.Errorf("mp4demuxer: no sample description found")
	}

	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		vse, ok := child.(*mp4.VisualSampleEntryBox)
		if !ok {
			continue
		}
		c, err := codec.FromSampleEntry(vse.Type())
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnsupportedSampleEntry, vse.Type())
		}
		d.info = ports.StreamInfo{
			Codec:        c,
			Width:        int(vse.Width),
			Height:       int(vse.Height),
			BitDepth:     8,
			ChromaFormat: 1,
		}
		for _, box := range vse.Children {
			switch cfg := box.(type) {
			case *mp4.AvcCBox:
				d.describeAVC(cfg)
			case *mp4.HvcCBox:
				d.describeHEVC(cfg)
			case *mp4.Av1CBox:
				d.describeAV1(cfg)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: no visual sample entry", ErrUnsupportedSampleEntry)
}

func (d *Demuxer) describeAVC(cfg *mp4.AvcCBox) {
	d.paramSets = nil
	for _, sps := range cfg.SPSnalus {
		d.paramSets = appendNALU(d.paramSets, sps)
	}
	for _, pps := range cfg.PPSnalus {
		d.paramSets = appendNALU(d.paramSets, pps)
	}
	if len(cfg.SPSnalus) == 0 {
		return
	}
	sps, err := avc.ParseSPSNALUnit(cfg.SPSnalus[0], false)
	if err != nil {
		d.log.Warn("Could not parse SPS: %s", err.Error())
		return
	}
	d.info.BitDepth = int(sps.BitDepthLumaMinus8) + 8
	d.info.ChromaFormat = int(sps.ChromaFormatIDC)
	if d.info.Width == 0 || d.info.Height == 0 {
		d.info.Width = int(sps.Width)
		d.info.Height = int(sps.Height)
	}
}

func (d *Demuxer) describeHEVC(cfg *mp4.HvcCBox) {
	d.paramSets = nil
	for _, t := range []hevc.NaluType{hevc.NALU_VPS, hevc.NALU_SPS, hevc.NALU_PPS} {
		for _, nalu := range cfg.GetNalusForType(t) {
			d.paramSets = appendNALU(d.paramSets, nalu)
		}
	}
	d.info.BitDepth = int(cfg.BitDepthLumaMinus8) + 8
	d.info.ChromaFormat = int(cfg.ChromaFormatIDC)
}

func (d *Demuxer) describeAV1(cfg *mp4.Av1CBox) {
	switch {
	case cfg.HighBitdepth != 0 && cfg.TwelveBit != 0:
		d.info.BitDepth = 12
	case cfg.HighBitdepth != 0:
		d.info.BitDepth = 10
	default:
		d.info.BitDepth = 8
	}
	switch {
	case cfg.MonoChrome != 0:
		d.info.ChromaFormat = 0
	case cfg.ChromaSubsamplingX != 0 && cfg.ChromaSubsamplingY != 0:
		d.info.ChromaFormat = 1
	case cfg.ChromaSubsamplingX != 0:
		d.info.ChromaFormat = 2
	default:
		d.info.ChromaFormat = 3
	}
}

func appendNALU(dst, nalu []byte) []byte {
	dst = append(dst, 0, 0, 0, 1)
	return append(dst, nalu...)
}
