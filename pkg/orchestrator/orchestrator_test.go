package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/mocks"
	"github.com/user/videobridge/pkg/ports"
)

var testInfo = ports.StreamInfo{Codec: codec.AVC, Width: 64, Height: 48, BitDepth: 8, ChromaFormat: 1}

func testPackets(n int) []mocks.DemuxPacket {
	packets := make([]mocks.DemuxPacket, n)
	for i := range packets {
		packets[i] = mocks.DemuxPacket{
			Data: []byte{0, 0, 1, byte(i)},
			Key:  i%2 == 0,
			PTS:  int64(i) * 33333,
		}
	}
	return packets
}

type testRun struct {
	orch   *Orchestrator
	demux  *mocks.Demuxer
	dec    *mocks.VideoDecoder
	sink   *mocks.FrameSink
	logger *mocks.Logger
}

func newTestRun(packets []mocks.DemuxPacket) *testRun {
	r := &testRun{
		demux:  mocks.NewDemuxer(testInfo, packets),
		dec:    mocks.NewVideoDecoder(),
		sink:   mocks.NewFrameSink(),
		logger: mocks.NewLogger(),
	}
	r.orch = New(
		func(string) (ports.Demuxer, error) { return r.demux, nil },
		func(ports.Demuxer, Config) (ports.VideoDecoder, error) { return r.dec, nil },
		r.sink,
		r.logger,
	)
	return r
}

func TestOrchestrator_Run(t *testing.T) {
	r := newTestRun(testPackets(5))
	r.dec.Delay = 2

	config := DefaultConfig()
	config.InputPath = "in.mp4"
	config.OutputPath = "out.yuv"

	result, err := r.orch.Run(context.Background(), config)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.SessionID == "" {
		t.Error("SessionID is empty")
	}
	if result.DecodedFrames != 5 || result.TotalFrames != 5 || result.FlushedFrames != 0 {
		t.Errorf("frames = %d decoded, %d flushed, %d total, want 5, 0, 5",
			result.DecodedFrames, result.FlushedFrames, result.TotalFrames)
	}
	if result.Sessions != 1 {
		t.Errorf("Sessions = %d, want 1", result.Sessions)
	}
	if result.BitstreamBytes != 20 {
		t.Errorf("BitstreamBytes = %d, want 20", result.BitstreamBytes)
	}
	if result.Codec != codec.AVC || result.Width != 64 || result.Height != 48 {
		t.Errorf("stream = %s %dx%d", result.Codec, result.Width, result.Height)
	}
	if result.Device.DeviceName != "Mock GPU" {
		t.Errorf("Device = %+v", result.Device)
	}

	if len(r.dec.Saved) != 5 {
		t.Fatalf("saved %d frames, want 5", len(r.dec.Saved))
	}
	for i, s := range r.dec.Saved {
		if s.Path != "out.yuv" || s.Info.Width != 64 || s.Info.Height != 48 {
			t.Errorf("saved[%d] = %+v", i, s)
		}
	}
	if r.dec.Reconfig.FlushMode != ports.FlushDump || r.dec.Reconfig.DumpPath != "out.yuv" {
		t.Errorf("Reconfig = %+v", r.dec.Reconfig)
	}

	if !r.demux.Closed || !r.dec.Closed {
		t.Error("demuxer and decoder should be closed")
	}
	if live := r.dec.Allocator().Live(); live != 0 {
		t.Errorf("decoder surfaces live = %d, want 0", live)
	}
	if live := r.demux.Allocator().Live(); live != 0 {
		t.Errorf("bitstreams live = %d, want 0", live)
	}
}

func TestOrchestrator_RunWithoutOutput(t *testing.T) {
	r := newTestRun(testPackets(3))

	result, err := r.orch.Run(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.TotalFrames != 3 {
		t.Errorf("TotalFrames = %d, want 3", result.TotalFrames)
	}
	if len(r.dec.Saved) != 0 {
		t.Errorf("saved %d frames without an output path", len(r.dec.Saved))
	}
	if r.dec.Reconfig.FlushMode != ports.FlushNone {
		t.Errorf("FlushMode = %s, want none", r.dec.Reconfig.FlushMode)
	}
}

func TestOrchestrator_StreamChangeCountsFlushedFrames(t *testing.T) {
	packets := testPackets(6)
	bigger := testInfo
	bigger.Width, bigger.Height = 128, 96
	packets[4].Info = &bigger

	r := newTestRun(packets)
	r.dec.Delay = 2

	config := DefaultConfig()
	config.OutputPath = "out.yuv"

	result, err := r.orch.Run(context.Background(), config)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Sessions != 2 {
		t.Errorf("Sessions = %d, want 2", result.Sessions)
	}
	if result.DecodedFrames != 4 || result.FlushedFrames != 2 || result.TotalFrames != 6 {
		t.Errorf("frames = %d decoded, %d flushed, %d total, want 4, 2, 6",
			result.DecodedFrames, result.FlushedFrames, result.TotalFrames)
	}
	if len(r.dec.StreamInfos) != 2 || r.dec.StreamInfos[1] != bigger {
		t.Errorf("StreamInfos = %+v", r.dec.StreamInfos)
	}
	if len(r.dec.Saved) != 6 {
		t.Fatalf("saved %d frames, want 6", len(r.dec.Saved))
	}
	if last := r.dec.Saved[5].Info; last.Width != 128 || last.Height != 96 {
		t.Errorf("last saved frame %dx%d, want 128x96", last.Width, last.Height)
	}
	if !r.logger.Contains("Stream changed to %dx%d %d-bit") {
		t.Error("stream change was not logged")
	}
}

func TestOrchestrator_Resize(t *testing.T) {
	r := newTestRun(testPackets(3))

	config := DefaultConfig()
	config.OutputPath = "out.yuv"
	config.Resize = ports.Dimension{Width: 32, Height: 24}

	if _, err := r.orch.Run(context.Background(), config); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if r.dec.Resizes != 3 {
		t.Errorf("Resizes = %d, want 3", r.dec.Resizes)
	}
	for i, s := range r.dec.Saved {
		if s.Info.Width != 32 || s.Info.Height != 24 {
			t.Errorf("saved[%d] is %dx%d, want 32x24", i, s.Info.Width, s.Info.Height)
		}
	}
}

func TestOrchestrator_ResizeToSameSizeSavesFrame(t *testing.T) {
	r := newTestRun(testPackets(2))

	config := DefaultConfig()
	config.OutputPath = "out.yuv"
	config.Resize = ports.Dimension{Width: 64, Height: 48}

	if _, err := r.orch.Run(context.Background(), config); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if r.dec.Resizes != 0 {
		t.Errorf("Resizes = %d, want 0", r.dec.Resizes)
	}
	if len(r.dec.Saved) != 2 || r.dec.Saved[0].Info.Width != 64 {
		t.Errorf("Saved = %+v", r.dec.Saved)
	}
}

func TestOrchestrator_Snapshots(t *testing.T) {
	r := newTestRun(testPackets(5))

	config := DefaultConfig()
	config.SnapshotDir = "snaps"
	config.SnapshotEvery = 2

	result, err := r.orch.Run(context.Background(), config)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Snapshots != 3 || len(r.sink.Snapshots) != 3 {
		t.Fatalf("snapshots = %d, sink has %d, want 3", result.Snapshots, len(r.sink.Snapshots))
	}

	snap, ok := r.sink.Snapshots[filepath.Join("snaps", "frame_000002.png")]
	if !ok {
		t.Fatalf("missing frame_000002.png in %v", r.sink.Snapshots)
	}
	if b := snap.Image.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("snapshot bounds = %v", b)
	}
	want := color.RGBA{0x80, 0x80, 0x80, 0x80}
	if got := snap.Image.At(10, 10); got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}
	if !strings.HasPrefix(snap.Label, "#2") {
		t.Errorf("Label = %q", snap.Label)
	}
	if r.dec.RGBs != 3 {
		t.Errorf("RGB conversions = %d, want 3", r.dec.RGBs)
	}
}

func TestOrchestrator_SnapshotsKeepSegmentFrameSize(t *testing.T) {
	packets := testPackets(6)
	bigger := testInfo
	bigger.Width, bigger.Height = 128, 96
	packets[4].Info = &bigger

	r := newTestRun(packets)
	r.dec.Delay = 2
	r.dec.Reconfig = ports.ReconfigParams{FlushMode: ports.FlushSegment}

	config := DefaultConfig()
	config.SnapshotDir = "snaps"
	config.SnapshotEvery = 1

	result, err := r.orch.Run(context.Background(), config)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.DecodedFrames != 6 || result.FlushedFrames != 0 {
		t.Fatalf("frames = %d decoded, %d flushed, want 6, 0", result.DecodedFrames, result.FlushedFrames)
	}

	for n := 0; n < 6; n++ {
		snap, ok := r.sink.Snapshots[filepath.Join("snaps", fmt.Sprintf("frame_%06d.png", n))]
		if !ok {
			t.Fatalf("missing snapshot %d", n)
		}
		w, h := 64, 48
		if n >= 4 {
			w, h = 128, 96
		}
		if b := snap.Image.Bounds(); b.Dx() != w || b.Dy() != h {
			t.Errorf("snapshot %d bounds = %v, want %dx%d", n, b, w, h)
		}
	}
}

func TestOrchestrator_Seek(t *testing.T) {
	tests := []struct {
		name   string
		mode   ports.SeekMode
		frames int
	}{
		{"previous key frame", ports.SeekPrevKeyFrame, 4},
		{"exact frame", ports.SeekExactFrame, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRun(testPackets(6))

			config := DefaultConfig()
			config.SeekFrame = 3
			config.SeekMode = tt.mode

			result, err := r.orch.Run(context.Background(), config)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(r.demux.Seeks) != 1 || r.demux.Seeks[0].Target != 3 || r.demux.Seeks[0].Mode != tt.mode {
				t.Errorf("Seeks = %+v", r.demux.Seeks)
			}
			if result.DecodedFrames != tt.frames {
				t.Errorf("DecodedFrames = %d, want %d", result.DecodedFrames, tt.frames)
			}
		})
	}
}

func TestOrchestrator_SessionOverhead(t *testing.T) {
	r := newTestRun(testPackets(2))
	r.dec.Overhead = 10 * time.Millisecond

	result, err := r.orch.Run(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.SessionOverhead != 10*time.Millisecond {
		t.Errorf("SessionOverhead = %v, want 10ms", result.SessionOverhead)
	}
}

func TestOrchestrator_Errors(t *testing.T) {
	t.Run("open fails", func(t *testing.T) {
		r := newTestRun(nil)
		r.orch.openDemuxer = func(string) (ports.Demuxer, error) { return nil, errors.New("no such file") }

		if _, err := r.orch.Run(context.Background(), DefaultConfig()); err == nil || !strings.Contains(err.Error(), "open input") {
			t.Errorf("Run() error = %v", err)
		}
	})

	t.Run("decoder fails", func(t *testing.T) {
		r := newTestRun(testPackets(1))
		r.orch.newDecoder = func(ports.Demuxer, Config) (ports.VideoDecoder, error) { return nil, errors.New("no ffmpeg") }

		if _, err := r.orch.Run(context.Background(), DefaultConfig()); err == nil || !strings.Contains(err.Error(), "create decoder") {
			t.Errorf("Run() error = %v", err)
		}
		if !r.demux.Closed {
			t.Error("demuxer should be closed")
		}
	})

	t.Run("unsupported codec", func(t *testing.T) {
		r := newTestRun(testPackets(1))
		r.dec.Unsupported = true

		if _, err := r.orch.Run(context.Background(), DefaultConfig()); !errors.Is(err, ErrUnsupportedStream) {
			t.Errorf("Run() error = %v, want ErrUnsupportedStream", err)
		}
		if !r.dec.Closed {
			t.Error("decoder should be closed")
		}
	})

	t.Run("demux fails", func(t *testing.T) {
		r := newTestRun(testPackets(1))
		r.demux.DemuxErr = errors.New("truncated")

		if _, err := r.orch.Run(context.Background(), DefaultConfig()); err == nil || !strings.Contains(err.Error(), "demux: truncated") {
			t.Errorf("Run() error = %v", err)
		}
		if !r.logger.Contains("Failed to demux: %s") {
			t.Error("demux failure was not logged")
		}
	})

	t.Run("decode fails", func(t *testing.T) {
		r := newTestRun(testPackets(1))
		r.dec.DecodeErr = errors.New("bad bitstream")

		if _, err := r.orch.Run(context.Background(), DefaultConfig()); err == nil || !strings.Contains(err.Error(), "decode: bad bitstream") {
			t.Errorf("Run() error = %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		r := newTestRun(testPackets(3))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := r.orch.Run(ctx, DefaultConfig()); !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	})
}

func TestRunResult_Finish(t *testing.T) {
	r := RunResult{TotalFrames: 4, Elapsed: 100 * time.Millisecond, SessionOverhead: 20 * time.Millisecond}
	r.finish()
	if r.AvgFrameMs != 20 {
		t.Errorf("AvgFrameMs = %v, want 20", r.AvgFrameMs)
	}
	if r.FPS != 50 {
		t.Errorf("FPS = %v, want 50", r.FPS)
	}

	empty := RunResult{}
	empty.finish()
	if empty.AvgFrameMs != 0 || empty.FPS != 0 {
		t.Errorf("empty run = %+v", empty)
	}
}
