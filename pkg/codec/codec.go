// Package codec enumerates the video codecs the decoders understand and
// converts from the identifiers used by containers and FFmpeg.
package codec

import (
	"errors"
	"strings"
)

// ErrUnknownCodec is returned when an identifier maps to no codec.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec identifies a video coding format.
type Codec int

const (
	MPEG1 Codec = iota
	MPEG2
	MPEG4
	AVC
	HEVC
	AV1
	VP8
	VP9
	JPEG
	// NumCodecs doubles as the "not supported" marker.
	NumCodecs
)

func (c Codec) String() string {
	switch c {
	case MPEG1:
		return "mpeg1"
	case MPEG2:
		return "mpeg2"
	case MPEG4:
		return "mpeg4"
	case AVC:
		return "h264"
	case HEVC:
		return "hevc"
	case AV1:
		return "av1"
	case VP8:
		return "vp8"
	case VP9:
		return "vp9"
	case JPEG:
		return "mjpeg"
	default:
		return "unknown"
	}
}

// Valid reports whether c names a real codec.
func (c Codec) Valid() bool { return c >= MPEG1 && c < NumCodecs }

// FFmpeg AVCodecID values for the codecs above.
const (
	avCodecIDMPEG1 = 1
	avCodecIDMPEG2 = 2
	avCodecIDMJPEG = 7
	avCodecIDMPEG4 = 12
	avCodecIDH264  = 27
	avCodecIDVP8   = 139
	avCodecIDVP9   = 167
	avCodecIDHEVC  = 173
	avCodecIDAV1   = 226
)

// FromAVCodecID converts an FFmpeg AVCodecID. Unknown ids return NumCodecs.
func FromAVCodecID(id int) Codec {
	switch id {
	case avCodecIDMPEG1:
		return MPEG1
	case avCodecIDMPEG2:
		return MPEG2
	case avCodecIDMPEG4:
		return MPEG4
	case avCodecIDH264:
		return AVC
	case avCodecIDHEVC:
		return HEVC
	case avCodecIDAV1:
		return AV1
	case avCodecIDVP8:
		return VP8
	case avCodecIDVP9:
		return VP9
	case avCodecIDMJPEG:
		return JPEG
	default:
		return NumCodecs
	}
}

// AVCodecID returns the FFmpeg AVCodecID for c, or 0 (AV_CODEC_ID_NONE).
func (c Codec) AVCodecID() int {
	switch c {
	case MPEG1:
		return avCodecIDMPEG1
	case MPEG2:
		return avCodecIDMPEG2
	case MPEG4:
		return avCodecIDMPEG4
	case AVC:
		return avCodecIDH264
	case HEVC:
		return avCodecIDHEVC
	case AV1:
		return avCodecIDAV1
	case VP8:
		return avCodecIDVP8
	case VP9:
		return avCodecIDVP9
	case JPEG:
		return avCodecIDMJPEG
	default:
		return 0
	}
}

// FromName converts an FFmpeg codec name or common alias, case-insensitively.
func FromName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mpeg1video", "mpeg1":
		return MPEG1, nil
	case "mpeg2video", "mpeg2":
		return MPEG2, nil
	case "mpeg4":
		return MPEG4, nil
	case "h264", "avc", "avc1":
		return AVC, nil
	case "hevc", "h265":
		return HEVC, nil
	case "av1":
		return AV1, nil
	case "vp8":
		return VP8, nil
	case "vp9":
		return VP9, nil
	case "mjpeg", "jpeg":
		return JPEG, nil
	default:
		return NumCodecs, ErrUnknownCodec
	}
}

// FromSampleEntry converts an ISO BMFF sample entry type.
func FromSampleEntry(fourCC string) (Codec, error) {
	switch fourCC {
	case "avc1", "avc3":
		return AVC, nil
	case "hvc1", "hev1":
		return HEVC, nil
	case "av01":
		return AV1, nil
	case "vp08":
		return VP8, nil
	case "vp09":
		return VP9, nil
	case "mp4v":
		return MPEG4, nil
	default:
		return NumCodecs, ErrUnknownCodec
	}
}

// FFmpegInputFormat returns the ffmpeg demuxer that reads this codec's
// elementary stream as written by the decoders.
func (c Codec) FFmpegInputFormat() string {
	switch c {
	case AVC:
		return "h264"
	case HEVC:
		return "hevc"
	case AV1, VP8, VP9:
		return "ivf"
	case MPEG1, MPEG2:
		return "mpegvideo"
	case MPEG4:
		return "m4v"
	case JPEG:
		return "mjpeg"
	default:
		return ""
	}
}

// IVFFourCC returns the IVF header tag for codecs carried in IVF.
func (c Codec) IVFFourCC() string {
	switch c {
	case AV1:
		return "AV01"
	case VP8:
		return "VP80"
	case VP9:
		return "VP90"
	default:
		return ""
	}
}

// AnnexB reports whether samples are carried as start-code delimited NAL units.
func (c Codec) AnnexB() bool { return c == AVC || c == HEVC }

// SupportsBitDepth reports whether the decoders accept streams of bitDepth.
// AVC and the MPEG family are 8-bit only; HEVC, VP9 and AV1 also take 10 and 12.
func (c Codec) SupportsBitDepth(bitDepth int) bool {
	switch c {
	case HEVC, VP9, AV1:
		return bitDepth == 8 || bitDepth == 10 || bitDepth == 12
	case AVC, MPEG1, MPEG2, MPEG4, VP8, JPEG:
		return bitDepth == 8
	default:
		return false
	}
}
