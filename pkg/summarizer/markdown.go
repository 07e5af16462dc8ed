package summarizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/ideamans/go-l10n"
)

// MarkdownFormatter renders a Summary as a Markdown report.
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates a new MarkdownFormatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", l10n.T("Decode Summary"))
	fmt.Fprintf(&b, "%s: %s\n", l10n.T("Generated"), s.GeneratedAt.Format(time.RFC3339))
	if s.SessionID != "" {
		fmt.Fprintf(&b, "%s: `%s`\n", l10n.T("Session"), s.SessionID)
	}

	section(&b, "Stream")
	row(&b, "Input", orNA(s.Input.Path))
	row(&b, "Codec", orNA(s.Input.Codec))
	row(&b, "Resolution", fmt.Sprintf("%dx%d", s.Input.Width, s.Input.Height))
	row(&b, "Bit Depth", fmt.Sprintf("%d-bit", s.Input.BitDepth))
	row(&b, "Bitstream", formatBytes(s.Decode.BitstreamBytes))

	section(&b, "Device")
	row(&b, "Name", orNA(s.Device.Name))
	row(&b, "Architecture", orNA(s.Device.Arch))
	row(&b, "PCI", orNA(s.Device.Location))
	row(&b, "Backend", orNA(s.Device.Backend))

	section(&b, "Frames")
	row(&b, "Total", fmt.Sprintf("%d", s.Decode.TotalFrames))
	row(&b, "Returned", fmt.Sprintf("%d", s.Decode.DecodedFrames))
	row(&b, "Flushed", fmt.Sprintf("%d", s.Decode.FlushedFrames))
	row(&b, "Sessions", fmt.Sprintf("%d", s.Decode.Sessions))
	if s.Decode.Snapshots > 0 {
		row(&b, "Snapshots", fmt.Sprintf("%d", s.Decode.Snapshots))
	}

	section(&b, "Timing")
	row(&b, "Elapsed", formatDuration(s.Timing.Elapsed))
	row(&b, "Session Overhead", formatDuration(s.Timing.SessionOverhead))
	if s.Decode.TotalFrames > 0 {
		row(&b, "Per Frame", fmt.Sprintf("%.2f ms", s.Timing.AvgFrameMs))
		row(&b, "Throughput", fmt.Sprintf("%.1f FPS", s.Timing.FPS))
	} else {
		row(&b, "Per Frame", "N/A")
		row(&b, "Throughput", "N/A")
	}

	section(&b, "Settings")
	row(&b, "Memory", orNA(s.Settings.MemType))
	row(&b, "Output", orNA(s.Settings.OutputPath))
	row(&b, "Resize", orNA(s.Settings.Resize))
	row(&b, "Crop", orNA(s.Settings.Crop))
	row(&b, "Seek", orNA(s.Settings.Seek))

	return b.String()
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n## %s\n\n", l10n.T(title))
	fmt.Fprintf(b, "| %s | %s |\n|------|-------|\n", l10n.T("Item"), l10n.T("Value"))
}

func row(b *strings.Builder, item, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", l10n.T(item), value)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1f ms", float64(d)/float64(time.Millisecond))
}

func formatBytes(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
