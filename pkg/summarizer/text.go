package summarizer

import (
	"fmt"
	"strings"
)

// NewTextFormatter returns a Formatter producing the short console report
// printed at the end of a run.
func NewTextFormatter() Formatter {
	return FormatFunc(func(s *Summary) string {
		var b strings.Builder
		if s.Device.Name != "" {
			fmt.Fprintf(&b, "info: decoding on %s [%s] at %s\n", s.Device.Name, s.Device.Arch, orNA(s.Device.Location))
		}
		fmt.Fprintf(&b, "info: %s %dx%d %d-bit\n", orNA(s.Input.Codec), s.Input.Width, s.Input.Height, s.Input.BitDepth)
		fmt.Fprintf(&b, "info: total frame decoded: %d\n", s.Decode.TotalFrames)
		if s.Decode.FlushedFrames > 0 {
			fmt.Fprintf(&b, "info: frames flushed on reconfigure: %d\n", s.Decode.FlushedFrames)
		}
		if s.Decode.TotalFrames > 0 {
			fmt.Fprintf(&b, "info: avg decoding time per frame: %.2f ms\n", s.Timing.AvgFrameMs)
			fmt.Fprintf(&b, "info: avg FPS: %.1f\n", s.Timing.FPS)
		}
		return b.String()
	})
}
