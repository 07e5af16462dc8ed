// Package codecdetect detects the video codec of an MP4 file without
// building a demuxer.
package codecdetect

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/ports"
)

// ErrNoVideoTrack is returned when no track carries a known video sample entry.
var ErrNoVideoTrack = errors.New("codecdetect: no video track found")

// DetectFromFile detects the video codec used in an MP4 file.
func DetectFromFile(fs ports.FileSystem, path string) (codec.Codec, error) {
	f, err := fs.Open(path)
	if err != nil {
		return codec.NumCodecs, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return DetectFromReader(f)
}

// DetectFromReader detects the video codec from an io.ReadSeeker and rewinds it.
func DetectFromReader(reader io.ReadSeeker) (codec.Codec, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return codec.NumCodecs, fmt.Errorf("decode mp4: %w", err)
	}

	// Reset reader position for subsequent reads
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return codec.NumCodecs, fmt.Errorf("seek: %w", err)
	}

	return detectFromMP4File(mp4File)
}

// DetectFromBytes detects the video codec from MP4 data bytes.
func DetectFromBytes(data []byte) (codec.Codec, error) {
	return DetectFromReader(bytes.NewReader(data))
}

func detectFromMP4File(mp4File *mp4.File) (codec.Codec, error) {
	var moov *mp4.MoovBox
	switch {
	case mp4File.IsFragmented() && mp4File.Init != nil:
		moov = mp4File.Init.Moov
	default:
		moov = mp4File.Moov
	}
	if moov == nil {
		return codec.NumCodecs, ErrNoVideoTrack
	}

	for _, trak := range moov.Traks {
		if c, ok := detectCodecFromTrack(trak); ok {
			return c, nil
		}
	}
	return codec.NumCodecs, ErrNoVideoTrack
}

func detectCodecFromTrack(trak *mp4.TrakBox) (codec.Codec, bool) {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil {
		return codec.NumCodecs, false
	}

	// Only process video tracks
	if trak.Mdia.Hdlr.HandlerType != "vide" {
		return codec.NumCodecs, false
	}

	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return codec.NumCodecs, false
	}

	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		if c, err := codec.FromSampleEntry(child.Type()); err == nil {
			return c, true
		}
	}
	return codec.NumCodecs, false
}
