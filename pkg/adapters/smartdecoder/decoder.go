// Package smartdecoder picks a decoder backend for a stream: the hardware
// decoder when an accelerator can take the codec, otherwise the CPU
// fallback.
package smartdecoder

import (
	"errors"
	"fmt"

	"github.com/user/videobridge/pkg/adapters/codecdetect"
	"github.com/user/videobridge/pkg/adapters/ffmpegdecoder"
	"github.com/user/videobridge/pkg/adapters/logger"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/device"
	"github.com/user/videobridge/pkg/ports"
)

// Backend represents the decoding backend used.
type Backend string

const (
	// BackendAuto prefers the hardware decoder and falls back to the CPU.
	BackendAuto Backend = "auto"
	// BackendHardware requires an accelerator.
	BackendHardware Backend = "hardware"
	// BackendCPU decodes in software into host memory.
	BackendCPU Backend = "cpu"
)

// ParseBackend parses a backend name. Unknown names select BackendAuto.
func ParseBackend(s string) Backend {
	switch Backend(s) {
	case BackendHardware, BackendCPU:
		return Backend(s)
	default:
		return BackendAuto
	}
}

// Info contains information about the selected decoder.
type Info struct {
	// Codec is the stream codec.
	Codec codec.Codec
	// Backend is the decoding backend being used.
	Backend Backend
	// Device is the device decoding runs on.
	Device device.ConfigInfo
}

// Options configures the smart decoder behavior.
type Options struct {
	ffmpegdecoder.Options

	// Backend selects the decoder. Defaults to BackendAuto.
	Backend Backend
}

var (
	// ErrUnsupportedCodec is returned when the codec is not supported.
	ErrUnsupportedCodec = errors.New("smartdecoder: unsupported codec")
	// ErrNoDecoderAvailable is returned when no decoder is available for the codec.
	ErrNoDecoderAvailable = errors.New("smartdecoder: no decoder available")
)

// NewFromFile creates a decoder by detecting the codec of the MP4 file at path.
// Streams are assumed to be 8-bit until SetStreamInfo says otherwise.
func NewFromFile(fs ports.FileSystem, path string, opts Options) (*ffmpegdecoder.Decoder, Info, error) {
	c, err := codecdetect.DetectFromFile(fs, path)
	if err != nil {
		return nil, Info{}, err
	}
	return NewForCodec(c, 8, opts)
}

// NewForDemuxer creates a decoder for the stream d produces.
func NewForDemuxer(d ports.Demuxer, opts Options) (*ffmpegdecoder.Decoder, Info, error) {
	return NewForCodec(d.CodecID(), d.BitDepth(), opts)
}

// NewForCodec creates a decoder for a specific codec and bit depth.
//
// The selection flow:
//   - BackendCPU: CPU decoder
//   - BackendHardware: hardware decoder, failing when the device cannot take the stream
//   - BackendAuto: hardware decoder when possible, then CPU decoder
func NewForCodec(c codec.Codec, bitDepth int, opts Options) (*ffmpegdecoder.Decoder, Info, error) {
	if !c.Valid() || c.FFmpegInputFormat() == "" || !c.SupportsBitDepth(bitDepth) {
		return nil, Info{}, fmt.Errorf("%w: %s %d-bit", ErrUnsupportedCodec, c, bitDepth)
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	backend := opts.Backend
	if backend == "" {
		backend = BackendAuto
	}

	if backend != BackendCPU {
		dec, err := newHardware(c, bitDepth, opts.Options)
		if err == nil {
			return dec, Info{Codec: c, Backend: BackendHardware, Device: dec.GetGpuInfo()}, nil
		}
		if backend == BackendHardware {
			return nil, Info{}, fmt.Errorf("%w: %v", ErrNoDecoderAvailable, err)
		}
		log.Warn("Hardware decoder unavailable, falling back to CPU: %s", err.Error())
	}

	dec, err := ffmpegdecoder.NewCPU(opts.Options)
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: %v", ErrNoDecoderAvailable, err)
	}
	return dec, Info{Codec: c, Backend: BackendCPU, Device: dec.GetGpuInfo()}, nil
}

func newHardware(c codec.Codec, bitDepth int, opts ffmpegdecoder.Options) (*ffmpegdecoder.Decoder, error) {
	dec, err := ffmpegdecoder.NewHardware(opts)
	if err != nil {
		return nil, err
	}
	if !dec.IsCodecSupported(opts.DeviceID, c, bitDepth) {
		dec.Close()
		return nil, fmt.Errorf("device %d cannot decode %s %d-bit", opts.DeviceID, c, bitDepth)
	}
	return dec, nil
}

// IsAvailable checks if any decoder can run, which needs ffmpeg.
func IsAvailable() bool {
	return ffmpegdecoder.Available()
}
