// Package main provides the CLI entry point for videodecode.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/videobridge/pkg/adapters/ffmpegdecoder"
	"github.com/user/videobridge/pkg/adapters/framesink"
	"github.com/user/videobridge/pkg/adapters/logger"
	"github.com/user/videobridge/pkg/adapters/osfilesystem"
	"github.com/user/videobridge/pkg/adapters/smartdecoder"
	"github.com/user/videobridge/pkg/adapters/streamprovider"
	"github.com/user/videobridge/pkg/bindings"
	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/config"
	"github.com/user/videobridge/pkg/device"
	"github.com/user/videobridge/pkg/orchestrator"
	"github.com/user/videobridge/pkg/ports"
	"github.com/user/videobridge/pkg/summarizer"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "videodecode",
		Usage:   l10n.T("Decode video streams on an accelerator or the CPU"),
		Version: version,
		Commands: []*cli.Command{
			decodeCommand(),
			probeCommand(),
			devicesCommand(),
			modulesCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Error: %s", err))
		os.Exit(1)
	}
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     l10n.T("Decode a video file and report throughput"),
		ArgsUsage: "INPUT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: l10n.T("YAML configuration file"), Category: l10n.T("Input")},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Append raw decoded frames to this file"), Category: l10n.T("Output")},
			&cli.StringFlag{Name: "summary", Usage: l10n.T("Output execution summary to file (Markdown format)"), Category: l10n.T("Output")},
			&cli.StringFlag{Name: "snapshot-dir", Usage: l10n.T("Directory for PNG snapshots"), Category: l10n.T("Output")},
			&cli.IntFlag{Name: "snapshot-every", Usage: l10n.T("Snapshot every Nth frame"), Category: l10n.T("Output")},

			&cli.IntFlag{Name: "device", Aliases: []string{"d"}, Usage: l10n.T("Device id"), Category: l10n.T("Decoder")},
			&cli.StringFlag{Name: "mem-type", Aliases: []string{"m"}, Usage: l10n.T("Surface memory (internal, dev_copied, host_copied, not_mapped)"), Category: l10n.T("Decoder")},
			&cli.StringFlag{Name: "backend", Aliases: []string{"b"}, Usage: l10n.T("Decoder backend (auto, hardware, cpu)"), Category: l10n.T("Decoder")},
			&cli.StringFlag{Name: "ffmpeg", Usage: l10n.T("Path to the ffmpeg executable"), Category: l10n.T("Decoder")},
			&cli.StringFlag{Name: "hwaccel", Usage: l10n.T("ffmpeg hardware acceleration method"), Category: l10n.T("Decoder")},
			&cli.StringFlag{Name: "crop", Usage: l10n.T("Crop rectangle as left,top,right,bottom"), Category: l10n.T("Decoder")},
			&cli.StringFlag{Name: "resize", Usage: l10n.T("Resize decoded frames to WxH"), Category: l10n.T("Decoder")},

			&cli.Int64Flag{Name: "seek", Value: orchestrator.NoSeek, Usage: l10n.T("Seek to this frame before decoding (-1 = no seek)"), Category: l10n.T("Seek")},
			&cli.StringFlag{Name: "seek-mode", Usage: l10n.T("Seek mode (exact, prev-key)"), Category: l10n.T("Seek")},
			&cli.StringFlag{Name: "seek-criteria", Usage: l10n.T("Seek criteria (frame, timestamp)"), Category: l10n.T("Seek")},

			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: l10n.T("Log level (debug, info, warn, error)"), Category: l10n.T("Logging")},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: l10n.T("Suppress all log output"), Category: l10n.T("Logging")},
		},
		Action: runDecode,
	}
}

// buildConfig layers the config file and the flags that were set over the
// defaults.
func buildConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if c.Args().Present() {
		cfg.Input = c.Args().First()
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("summary") {
		cfg.Summary = c.String("summary")
	}
	if c.IsSet("snapshot-dir") {
		cfg.Snapshot.Dir = c.String("snapshot-dir")
	}
	if c.IsSet("snapshot-every") {
		cfg.Snapshot.Every = c.Int("snapshot-every")
	}
	if c.IsSet("device") {
		cfg.DeviceID = c.Int("device")
	}
	if c.IsSet("mem-type") {
		cfg.MemType = c.String("mem-type")
	}
	if c.IsSet("backend") {
		cfg.Backend = c.String("backend")
	}
	if c.IsSet("ffmpeg") {
		cfg.FFmpegPath = c.String("ffmpeg")
	}
	if c.IsSet("hwaccel") {
		cfg.HWAccel = c.String("hwaccel")
	}
	if c.IsSet("crop") {
		crop, err := parseCrop(c.String("crop"))
		if err != nil {
			return cfg, err
		}
		cfg.Crop = crop
	}
	if c.IsSet("resize") {
		cfg.Resize = c.String("resize")
	}
	if c.IsSet("seek") {
		cfg.Seek.Frame = c.Int64("seek")
	}
	if c.IsSet("seek-mode") {
		cfg.Seek.Mode = c.String("seek-mode")
	}
	if c.IsSet("seek-criteria") {
		cfg.Seek.Criteria = c.String("seek-criteria")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	return cfg, cfg.Validate()
}

func parseCrop(s string) (config.CropConfig, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return config.CropConfig{}, errors.New(l10n.F("crop %q must be left,top,right,bottom", s))
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return config.CropConfig{}, errors.New(l10n.F("crop %q must be left,top,right,bottom", s))
		}
		v[i] = n
	}
	return config.CropConfig{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}

func runDecode(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	var log ports.Logger
	if c.Bool("quiet") {
		log = logger.NewNoop()
	} else {
		log = logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel))
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fs := osfilesystem.New()
	sink := framesink.New(fs, log)
	defer sink.Close()

	var decInfo smartdecoder.Info
	openDemuxer := func(path string) (ports.Demuxer, error) {
		return streamprovider.Open(fs, path, streamprovider.Options{Logger: log, FileSystem: fs})
	}
	newDecoder := func(d ports.Demuxer, oc orchestrator.Config) (ports.VideoDecoder, error) {
		dec, info, err := smartdecoder.NewForDemuxer(d, smartdecoder.Options{
			Options: ffmpegdecoder.Options{
				DeviceID:   oc.DeviceID,
				MemType:    oc.MemType,
				Crop:       oc.Crop,
				FFmpegPath: oc.FFmpegPath,
				HWAccel:    oc.HWAccel,
				Bitstreams: d.Bitstreams(),
				Sink:       sink,
				Logger:     log,
			},
			Backend: smartdecoder.ParseBackend(oc.Backend),
		})
		if err != nil {
			return nil, err
		}
		decInfo = info
		return dec, nil
	}

	orch := orchestrator.New(openDemuxer, newDecoder, sink, log)
	oc := cfg.ToOrchestratorConfig()

	log.Info("Decoding %s", cfg.Input)
	result, err := orch.Run(ctx, oc)
	if err != nil {
		return err
	}

	summary := buildSummary(cfg, oc, result, decInfo)
	fmt.Print(summarizer.NewTextFormatter().Format(summary))

	if cfg.Output != "" {
		log.Info("Output saved to %s", cfg.Output)
	}
	if cfg.Summary != "" {
		w := summarizer.NewWriter(summarizer.NewMarkdownFormatter(), fs)
		if err := w.Write(cfg.Summary, summary); err != nil {
			log.Warn("Failed to write summary: %s", err)
		} else {
			log.Info("Summary saved to %s", cfg.Summary)
		}
	}
	return nil
}

func buildSummary(cfg config.Config, oc orchestrator.Config, r orchestrator.RunResult, info smartdecoder.Info) *summarizer.Summary {
	settings := summarizer.Settings{
		MemType:    oc.MemType.String(),
		OutputPath: cfg.Output,
		Resize:     cfg.Resize,
	}
	if !oc.Crop.Empty() {
		settings.Crop = fmt.Sprintf("%d,%d,%d,%d", oc.Crop.Left, oc.Crop.Top, oc.Crop.Right, oc.Crop.Bottom)
	}
	if oc.SeekFrame != orchestrator.NoSeek {
		settings.Seek = fmt.Sprintf("%d (%s, %s)", oc.SeekFrame, oc.SeekMode, oc.SeekCriteria)
	}

	return summarizer.NewBuilder().
		WithSession(r.SessionID).
		WithInput(summarizer.InputInfo{
			Path:     cfg.Input,
			Codec:    r.Codec.String(),
			Width:    r.Width,
			Height:   r.Height,
			BitDepth: r.BitDepth,
		}).
		WithDevice(summarizer.DeviceInfo{
			Name:     r.Device.DeviceName,
			Arch:     r.Device.ArchName,
			Location: r.Device.Location().String(),
			Backend:  string(info.Backend),
		}).
		WithDecode(summarizer.DecodeInfo{
			DecodedFrames:  r.DecodedFrames,
			FlushedFrames:  r.FlushedFrames,
			TotalFrames:    r.TotalFrames,
			Sessions:       r.Sessions,
			Snapshots:      r.Snapshots,
			BitstreamBytes: r.BitstreamBytes,
		}).
		WithTiming(r.Elapsed, r.SessionOverhead, r.AvgFrameMs, r.FPS).
		WithSettings(settings).
		Build()
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     l10n.T("Detect the codec of an MP4 file and the backend that would decode it"),
		ArgsUsage: "INPUT",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "device", Aliases: []string{"d"}, Usage: l10n.T("Device id")},
			&cli.StringFlag{Name: "backend", Aliases: []string{"b"}, Value: string(smartdecoder.BackendAuto), Usage: l10n.T("Decoder backend (auto, hardware, cpu)")},
			&cli.StringFlag{Name: "ffmpeg", Usage: l10n.T("Path to the ffmpeg executable")},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New(l10n.T("exactly one input file is required"))
			}
			dec, info, err := smartdecoder.NewFromFile(osfilesystem.New(), c.Args().First(), smartdecoder.Options{
				Options: ffmpegdecoder.Options{
					FFmpegPath: c.String("ffmpeg"),
					DeviceID:   c.Int("device"),
					Bitstreams: buffer.NewRegistry(),
				},
				Backend: smartdecoder.ParseBackend(c.String("backend")),
			})
			if err != nil {
				return err
			}
			defer dec.Close()

			fmt.Println(l10n.F("Codec: %s", info.Codec))
			fmt.Println(l10n.F("Backend: %s", info.Backend))
			fmt.Println(l10n.F("Device: %s", info.Device))
			return nil
		},
	}
}

func devicesCommand() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: l10n.T("List accelerators the hardware decoder can use"),
		Action: func(c *cli.Context) error {
			devs, err := device.Enumerate()
			if err != nil {
				return err
			}
			if len(devs) == 0 {
				fmt.Println(l10n.T("No devices found"))
				return nil
			}
			for i, d := range devs {
				fmt.Printf("%d: %s (%s)\n", i, d, d.Location())
			}
			return nil
		},
	}
}

func modulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "modules",
		Usage: l10n.T("Show the symbols registered for host bindings"),
		Action: func(c *cli.Context) error {
			root := bindings.NewModule("videobridge")
			bindings.Init(root)
			printModule(root, "")
			return nil
		},
	}
}

func printModule(m *bindings.Module, indent string) {
	fmt.Printf("%s%s\n", indent, m.Name())
	for _, name := range m.Names() {
		v, err := m.Lookup(name)
		if err != nil {
			continue
		}
		if sub, ok := v.(*bindings.Module); ok {
			printModule(sub, indent+"  ")
			continue
		}
		fmt.Printf("%s  %s\n", indent, name)
	}
}
