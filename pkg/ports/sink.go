package ports

import (
	"image"

	"github.com/user/videobridge/pkg/surface"
)

// FrameSink writes decoded frames out for inspection.
type FrameSink interface {
	// AppendRaw appends a tightly packed surface to the raw output at path.
	AppendRaw(path string, info surface.Info, planes [][]byte) error

	// SaveSnapshot writes img as a PNG with label drawn in the corner.
	SaveSnapshot(path string, img image.Image, label string) error

	// Close flushes and closes every open output.
	Close() error
}
