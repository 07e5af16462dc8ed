// Package summarizer provides summary generation for decode runs.
package summarizer

import "time"

// Summary contains all data collected during a decode run.
type Summary struct {
	// Metadata
	GeneratedAt time.Time
	SessionID   string

	// Stream information
	Input InputInfo

	// Device the run decoded on
	Device DeviceInfo

	// Frame counters
	Decode DecodeInfo

	// Timing results
	Timing TimingInfo

	// Run settings
	Settings Settings
}

// InputInfo describes the decoded stream.
type InputInfo struct {
	Path     string
	Codec    string
	Width    int
	Height   int
	BitDepth int
}

// DeviceInfo identifies the decoder device.
type DeviceInfo struct {
	Name     string
	Arch     string
	Location string // PCI domain:bus:device
	Backend  string
}

// DecodeInfo counts frames and bytes.
type DecodeInfo struct {
	DecodedFrames  int
	FlushedFrames  int
	TotalFrames    int
	Sessions       int
	Snapshots      int
	BitstreamBytes int64
}

// TimingInfo contains timing measurements.
type TimingInfo struct {
	Elapsed         time.Duration
	SessionOverhead time.Duration
	AvgFrameMs      float64
	FPS             float64
}

// Settings contains the run configuration.
type Settings struct {
	MemType    string
	OutputPath string
	Resize     string // WxH, empty when not resizing
	Crop       string // l,t,r,b, empty when not cropping
	Seek       string // empty when not seeking
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSession sets the run identifier.
func (b *Builder) WithSession(id string) *Builder {
	b.summary.SessionID = id
	return b
}

// WithInput sets stream information.
func (b *Builder) WithInput(input InputInfo) *Builder {
	b.summary.Input = input
	return b
}

// WithDevice sets device information.
func (b *Builder) WithDevice(device DeviceInfo) *Builder {
	b.summary.Device = device
	return b
}

// WithDecode sets frame counters.
func (b *Builder) WithDecode(decode DecodeInfo) *Builder {
	b.summary.Decode = decode
	return b
}

// WithTiming sets timing information.
func (b *Builder) WithTiming(elapsed, overhead time.Duration, avgFrameMs, fps float64) *Builder {
	b.summary.Timing = TimingInfo{
		Elapsed:         elapsed,
		SessionOverhead: overhead,
		AvgFrameMs:      avgFrameMs,
		FPS:             fps,
	}
	return b
}

// WithSettings sets run settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
