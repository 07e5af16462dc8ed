// Package orchestrator drives a demuxer and a decoder through a complete
// decode run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/device"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/ports"
	"github.com/user/videobridge/pkg/surface"
)

// NoSeek disables the initial seek.
const NoSeek = -1

// Config contains all configuration for a decode run.
type Config struct {
	// Input
	InputPath string
	// OutputPath receives raw decoded frames. Frames flushed by a
	// reconfiguration are dumped there too. Empty disables output.
	OutputPath string

	// Decoder
	DeviceID   int
	MemType    surface.MemType
	Backend    string
	FFmpegPath string
	HWAccel    string
	Crop       ports.Rect
	Resize     ports.Dimension

	// Seek
	SeekFrame    int64 // NoSeek or a target
	SeekMode     ports.SeekMode
	SeekCriteria ports.SeekCriteria

	// Snapshots
	SnapshotDir   string
	SnapshotEvery int // every Nth returned frame, 0 disables
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MemType:      surface.MemDevCopied,
		Backend:      "auto",
		SeekFrame:    NoSeek,
		SeekMode:     ports.SeekPrevKeyFrame,
		SeekCriteria: ports.ByFrameNumber,
	}
}

// DemuxerFactory opens the input of a run.
type DemuxerFactory func(path string) (ports.Demuxer, error)

// DecoderFactory builds a decoder for the stream d produces.
type DecoderFactory func(d ports.Demuxer, config Config) (ports.VideoDecoder, error)

// ErrUnsupportedStream is returned when the decoder cannot take the stream.
var ErrUnsupportedStream = errors.New("orchestrator: stream not supported by decoder")

// Orchestrator runs decode loops.
type Orchestrator struct {
	openDemuxer DemuxerFactory
	newDecoder  DecoderFactory
	sink        ports.FrameSink
	logger      ports.Logger
}

// New creates a new Orchestrator.
func New(openDemuxer DemuxerFactory, newDecoder DecoderFactory, sink ports.FrameSink, logger ports.Logger) *Orchestrator {
	return &Orchestrator{
		openDemuxer: openDemuxer,
		newDecoder:  newDecoder,
		sink:        sink,
		logger:      logger.WithComponent("orchestrator"),
	}
}

// Run decodes config.InputPath to the end of the stream.
func (o *Orchestrator) Run(ctx context.Context, config Config) (result RunResult, err error) {
	result.SessionID = uuid.NewString()
	o.logger.Info("Starting decode run %s", result.SessionID)

	demux, err := o.openDemuxer(config.InputPath)
	if err != nil {
		o.logger.Error("Failed to open input: %s", err)
		return RunResult{}, fmt.Errorf("open input: %w", err)
	}
	defer demux.Close()

	dec, err := o.newDecoder(demux, config)
	if err != nil {
		o.logger.Error("Failed to create decoder: %s", err)
		return RunResult{}, fmt.Errorf("create decoder: %w", err)
	}
	defer func() {
		if cerr := dec.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close decoder: %w", cerr)
		}
	}()

	info := demux.StreamInfo()
	result.Codec = info.Codec
	result.Width, result.Height, result.BitDepth = info.Width, info.Height, info.BitDepth
	if !dec.IsCodecSupported(config.DeviceID, info.Codec, info.BitDepth) {
		o.logger.Error("Codec %s %d-bit is not supported", info.Codec, info.BitDepth)
		return result, fmt.Errorf("%w: %s %d-bit", ErrUnsupportedStream, info.Codec, info.BitDepth)
	}
	result.Device = dec.GetGpuInfo()
	o.logger.Info("Decoding on %s", result.Device)

	if config.OutputPath != "" {
		if err := dec.SetReconfigParams(ports.ReconfigParams{FlushMode: ports.FlushDump, DumpPath: config.OutputPath}); err != nil {
			return result, fmt.Errorf("reconfig params: %w", err)
		}
	}
	if err := dec.SetStreamInfo(info); err != nil {
		return result, fmt.Errorf("stream info: %w", err)
	}
	result.Sessions = 1

	if err := o.loop(ctx, config, demux, dec, &result); err != nil {
		return result, err
	}

	result.FlushedFrames = dec.NumFlushedFrames()
	result.TotalFrames = result.DecodedFrames + result.FlushedFrames
	for id := 0; id < result.Sessions; id++ {
		result.SessionOverhead += dec.SessionOverhead(id)
	}
	result.finish()

	o.logger.Info("Decoded %d frames in %s", result.TotalFrames, result.Elapsed)
	if result.TotalFrames > 0 {
		o.logger.Info("Average %.2f ms per frame, %.1f FPS", result.AvgFrameMs, result.FPS)
	}
	return result, nil
}

func (o *Orchestrator) loop(ctx context.Context, config Config, demux ports.Demuxer, dec ports.VideoDecoder, result *RunResult) error {
	in := packet.New()
	out := packet.New()
	defer in.ClearPlanes()
	defer dec.ReleaseFrame(out)

	current := demux.StreamInfo()
	seeking := config.SeekFrame != NoSeek

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()

		if seeking {
			params := ports.SeekParams{Target: config.SeekFrame, Mode: config.SeekMode, Criteria: config.SeekCriteria}
			if err := demux.SeekFrame(in, params); err != nil {
				o.logger.Error("Failed to seek: %s", err)
				return fmt.Errorf("seek: %w", err)
			}
			seeking = false
		} else if err := demux.DemuxFrame(in); err != nil {
			o.logger.Error("Failed to demux: %s", err)
			return fmt.Errorf("demux: %w", err)
		}
		eos := in.EndOfStream || in.BitstreamSize <= 0
		result.BitstreamBytes += in.BitstreamSize

		if next := demux.StreamInfo(); !eos && next != current {
			o.logger.Info("Stream changed to %dx%d %d-bit", next.Width, next.Height, next.BitDepth)
			if err := dec.SetStreamInfo(next); err != nil {
				return fmt.Errorf("stream info: %w", err)
			}
			current = next
			result.Sessions++
		}

		ready, err := dec.DecodeFrame(in)
		if err != nil {
			o.logger.Error("Failed to decode: %s", err)
			return fmt.Errorf("decode: %w", err)
		}

		for i := 0; i < ready; i++ {
			if err := dec.GetFrame(out); err != nil {
				if errors.Is(err, ports.ErrNoFrame) {
					break
				}
				return fmt.Errorf("get frame: %w", err)
			}
			err := o.handleFrame(config, dec, out, result)
			dec.ReleaseFrame(out)
			if err != nil {
				return err
			}
			result.DecodedFrames++
		}

		result.Elapsed += time.Since(start)
		if eos {
			return nil
		}
	}
}

func (o *Orchestrator) handleFrame(config Config, dec ports.VideoDecoder, out *packet.PacketData, result *RunResult) error {
	addr := out.FrameAddr
	info, _ := dec.CurrentSurfaceInfo()

	if !config.Resize.Zero() {
		size, err := dec.ResizeFrame(out, config.Resize)
		if err != nil {
			return fmt.Errorf("resize: %w", err)
		}
		if size > 0 {
			addr = out.FrameAddrResized
			info, _ = dec.ResizedSurfaceInfo()
		}
	}

	if config.OutputPath != "" {
		if err := dec.SaveFrameToFile(config.OutputPath, addr, info); err != nil {
			o.logger.Error("Failed to save frame: %s", err)
			return fmt.Errorf("save frame: %w", err)
		}
	}

	n := result.DecodedFrames
	if config.SnapshotDir != "" && config.SnapshotEvery > 0 && n%config.SnapshotEvery == 0 {
		if err := o.snapshot(config, dec, out, n); err != nil {
			return err
		}
		result.Snapshots++
	}
	return nil
}

// snapshot writes the current frame as a labelled PNG.
func (o *Orchestrator) snapshot(config Config, dec ports.VideoDecoder, out *packet.PacketData, n int) error {
	if err := dec.GetFrameRGB(out, ports.RGBA32); err != nil {
		return fmt.Errorf("rgb: %w", err)
	}
	owner, err := dec.Surfaces().Resolve(out.FrameAddrRGB)
	if err != nil {
		return fmt.Errorf("rgb: %w", err)
	}
	defer owner.Release()
	pix, err := owner.Bytes()
	if err != nil {
		return fmt.Errorf("rgb: %w", err)
	}

	info, _ := dec.CurrentSurfaceInfo()
	img := image.NewRGBA(image.Rect(0, 0, info.Width, info.Height))
	copy(img.Pix, pix)

	path := filepath.Join(config.SnapshotDir, fmt.Sprintf("frame_%06d.png", n))
	label := fmt.Sprintf("#%d  %d us", n, out.PTS)
	if err := o.sink.SaveSnapshot(path, img, label); err != nil {
		o.logger.Error("Failed to save snapshot: %s", err)
		return fmt.Errorf("snapshot: %w", err)
	}
	o.logger.Debug("Saved snapshot %s", path)
	return nil
}

// RunResult contains the results of a decode run for summary generation.
type RunResult struct {
	SessionID string

	// Stream information
	Codec    codec.Codec
	Width    int
	Height   int
	BitDepth int
	Device   device.ConfigInfo

	// Counters
	DecodedFrames  int // returned by GetFrame
	FlushedFrames  int // consumed by reconfiguration
	TotalFrames    int
	Snapshots      int
	Sessions       int
	BitstreamBytes int64

	// Timing
	Elapsed         time.Duration
	SessionOverhead time.Duration
	AvgFrameMs      float64 // excluding session overhead
	FPS             float64
}

func (r *RunResult) finish() {
	if r.TotalFrames == 0 {
		return
	}
	net := r.Elapsed - r.SessionOverhead
	if net < 0 {
		net = 0
	}
	r.AvgFrameMs = float64(net) / float64(time.Millisecond) / float64(r.TotalFrames)
	if r.AvgFrameMs > 0 {
		r.FPS = 1000 / r.AvgFrameMs
	}
}
