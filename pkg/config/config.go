// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/user/videobridge/pkg/orchestrator"
	"github.com/user/videobridge/pkg/ports"
	"github.com/user/videobridge/pkg/surface"
)

// ErrInvalid is wrapped by every Validate error.
var ErrInvalid = errors.New("config: invalid")

// Config represents the full configuration for a decode run.
type Config struct {
	// Input/Output
	Input   string `yaml:"input"`
	Output  string `yaml:"output"`
	Summary string `yaml:"summary"` // Markdown report path

	// Decoder
	DeviceID   int        `yaml:"device_id"`
	MemType    string     `yaml:"mem_type"`
	Backend    string     `yaml:"backend"`
	FFmpegPath string     `yaml:"ffmpeg_path"`
	HWAccel    string     `yaml:"hwaccel"`
	Crop       CropConfig `yaml:"crop"`
	Resize     string     `yaml:"resize"` // WxH

	// Seek
	Seek SeekConfig `yaml:"seek"`

	// Snapshots
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// CropConfig is a crop rectangle in pixels. All zero disables cropping.
type CropConfig struct {
	Left   int `yaml:"left"`
	Top    int `yaml:"top"`
	Right  int `yaml:"right"`
	Bottom int `yaml:"bottom"`
}

// SeekConfig describes the initial seek.
type SeekConfig struct {
	Frame    int64  `yaml:"frame"` // -1 disables
	Mode     string `yaml:"mode"`  // exact or prev-key
	Criteria string `yaml:"criteria"`
}

// SnapshotConfig controls PNG snapshots of decoded frames.
type SnapshotConfig struct {
	Dir   string `yaml:"dir"`
	Every int    `yaml:"every"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		MemType: surface.MemDevCopied.String(),
		Backend: "auto",
		HWAccel: "auto",
		Seek: SeekConfig{
			Frame:    orchestrator.NoSeek,
			Mode:     ports.SeekPrevKeyFrame.String(),
			Criteria: ports.ByFrameNumber.String(),
		},
		Snapshot: SnapshotConfig{
			Every: 30,
		},
		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML file on top of Defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the fields ToOrchestratorConfig cannot repair.
func (c Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("%w: input is required", ErrInvalid)
	}
	mem, err := parseMemType(c.MemType)
	if err != nil {
		return err
	}
	if mem == surface.MemNotMapped {
		// Unmapped surfaces have no readable address.
		switch {
		case c.Output != "":
			return fmt.Errorf("%w: output file needs mapped surfaces", ErrInvalid)
		case c.Snapshot.Dir != "":
			return fmt.Errorf("%w: snapshots need mapped surfaces", ErrInvalid)
		case c.Resize != "":
			return fmt.Errorf("%w: resize needs mapped surfaces", ErrInvalid)
		}
	}
	switch c.Backend {
	case "", "auto", "hardware", "cpu":
	default:
		return fmt.Errorf("%w: backend %q", ErrInvalid, c.Backend)
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("%w: device id %d", ErrInvalid, c.DeviceID)
	}
	if _, err := ParseDimension(c.Resize); err != nil {
		return err
	}
	if _, err := parseSeekMode(c.Seek.Mode); err != nil {
		return err
	}
	if _, err := parseSeekCriteria(c.Seek.Criteria); err != nil {
		return err
	}
	if c.Seek.Frame < orchestrator.NoSeek {
		return fmt.Errorf("%w: seek target %d", ErrInvalid, c.Seek.Frame)
	}
	if c.Snapshot.Every < 0 {
		return fmt.Errorf("%w: snapshot interval %d", ErrInvalid, c.Snapshot.Every)
	}
	return nil
}

// ParseDimension parses "WxH". An empty string is the zero Dimension.
func ParseDimension(s string) (ports.Dimension, error) {
	if s == "" {
		return ports.Dimension{}, nil
	}
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return ports.Dimension{}, fmt.Errorf("%w: size %q, want WxH", ErrInvalid, s)
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
		return ports.Dimension{}, fmt.Errorf("%w: size %q, want WxH", ErrInvalid, s)
	}
	return ports.Dimension{Width: width, Height: height}, nil
}

func parseMemType(s string) (surface.MemType, error) {
	if s == "" {
		return surface.MemDevCopied, nil
	}
	m := surface.ParseMemType(s)
	if m == surface.MemInternal && s != "internal" && s != "0" {
		return 0, fmt.Errorf("%w: memory type %q", ErrInvalid, s)
	}
	return m, nil
}

func parseSeekMode(s string) (ports.SeekMode, error) {
	switch s {
	case "", ports.SeekPrevKeyFrame.String(), "1":
		return ports.SeekPrevKeyFrame, nil
	case ports.SeekExactFrame.String(), "0":
		return ports.SeekExactFrame, nil
	default:
		return 0, fmt.Errorf("%w: seek mode %q", ErrInvalid, s)
	}
}

func parseSeekCriteria(s string) (ports.SeekCriteria, error) {
	switch s {
	case "", ports.ByFrameNumber.String(), "0":
		return ports.ByFrameNumber, nil
	case ports.ByTimestamp.String(), "1":
		return ports.ByTimestamp, nil
	default:
		return 0, fmt.Errorf("%w: seek criteria %q", ErrInvalid, s)
	}
}

// ToOrchestratorConfig converts Config to orchestrator.Config. Call Validate
// first; unparseable fields fall back to their defaults.
func (c Config) ToOrchestratorConfig() orchestrator.Config {
	mem, _ := parseMemType(c.MemType)
	resize, _ := ParseDimension(c.Resize)
	mode, _ := parseSeekMode(c.Seek.Mode)
	criteria, _ := parseSeekCriteria(c.Seek.Criteria)

	return orchestrator.Config{
		InputPath:  c.Input,
		OutputPath: c.Output,

		DeviceID:   c.DeviceID,
		MemType:    mem,
		Backend:    c.Backend,
		FFmpegPath: c.FFmpegPath,
		HWAccel:    c.HWAccel,
		Crop: ports.Rect{
			Left:   c.Crop.Left,
			Top:    c.Crop.Top,
			Right:  c.Crop.Right,
			Bottom: c.Crop.Bottom,
		},
		Resize: resize,

		SeekFrame:    c.Seek.Frame,
		SeekMode:     mode,
		SeekCriteria: criteria,

		SnapshotDir:   c.Snapshot.Dir,
		SnapshotEvery: c.Snapshot.Every,
	}
}
