// Package framesink writes decoded frames to files: raw planar YUV appended
// frame after frame, and PNG snapshots with a text label.
package framesink

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"sync"

	"github.com/fogleman/gg"
	"github.com/hashicorp/go-multierror"

	"github.com/user/videobridge/pkg/ports"
	"github.com/user/videobridge/pkg/surface"
)

const (
	labelMargin  = 4.0
	labelPadding = 3.0
)

var labelBackground = color.RGBA{0, 0, 0, 160}

// Sink implements ports.FrameSink on a ports.FileSystem. Raw outputs stay
// open until Close.
type Sink struct {
	fs ports.FileSystem

	mu   sync.Mutex
	open map[string]io.WriteCloser
	log  ports.Logger
}

// New creates a Sink writing through fs.
func New(fs ports.FileSystem, log ports.Logger) *Sink {
	return &Sink{
		fs:   fs,
		open: make(map[string]io.WriteCloser),
		log:  log,
	}
}

// AppendRaw appends planes in order to the file at path.
func (s *Sink) AppendRaw(path string, info surface.Info, planes [][]byte) error {
	if len(planes) != info.Format.PlaneCount() {
		return fmt.Errorf("framesink: %d planes for %s", len(planes), info.Format)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.open[path]
	if !ok {
		if err := s.ensureDir(path); err != nil {
			return err
		}
		var err error
		if w, err = s.fs.OpenAppend(path); err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		s.open[path] = w
		if s.log != nil {
			s.log.Debug("Writing %s frames to %s", info.Format, path)
		}
	}

	for i, p := range planes {
		if _, err := w.Write(p); err != nil {
			return fmt.Errorf("write plane %d to %s: %w", i, path, err)
		}
	}
	return nil
}

// SaveSnapshot writes img as a PNG with label drawn in the top-left corner.
// An empty label leaves the image untouched.
func (s *Sink) SaveSnapshot(path string, img image.Image, label string) error {
	out := img
	if label != "" {
		out = drawLabel(img, label)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return fmt.Errorf("encode PNG: %w", err)
	}
	if err := s.ensureDir(path); err != nil {
		return err
	}
	return s.fs.WriteFile(path, buf.Bytes())
}

func drawLabel(img image.Image, label string) image.Image {
	dc := gg.NewContextForImage(img)
	w, h := dc.MeasureString(label)

	dc.SetColor(labelBackground)
	dc.DrawRectangle(labelMargin, labelMargin, w+2*labelPadding, h+2*labelPadding)
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawStringAnchored(label, labelMargin+labelPadding, labelMargin+labelPadding+h/2, 0, 0.5)
	return dc.Image()
}

func (s *Sink) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return s.fs.MkdirAll(dir)
}

// Close closes every raw output.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *multierror.Error
	for path, w := range s.open {
		if err := w.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", path, err))
		}
		delete(s.open, path)
	}
	return result.ErrorOrNil()
}

// Ensure Sink implements ports.FrameSink
var _ ports.FrameSink = (*Sink)(nil)
