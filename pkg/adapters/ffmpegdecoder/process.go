package ffmpegdecoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/ivf"
	"github.com/user/videobridge/pkg/ports"
	"github.com/user/videobridge/pkg/surface"
)

// findFFmpeg searches for ffmpeg in PATH and common locations.
// If customPath is set, it uses that path instead.
func findFFmpeg(customPath string) (string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err == nil {
			return customPath, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, customPath)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}

	path, err := exec.LookPath(execName)
	if err == nil {
		return path, nil
	}

	var commonPaths []string
	if runtime.GOOS == "windows" {
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
		}
	} else {
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/opt/homebrew/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrFFmpegNotFound
}

// Available reports whether an ffmpeg binary can be found.
func Available() bool {
	_, err := findFFmpeg("")
	return err == nil
}

// hwAccel selects ffmpeg hardware decoding.
type hwAccel struct {
	method string // "" for software decoding
	device string
}

// renderNode returns the DRM render node ffmpeg uses for device id.
func renderNode(id int) string {
	return "/dev/dri/renderD" + strconv.Itoa(128+id)
}

// buildArgs returns the ffmpeg arguments decoding c from stdin into raw
// surfaces of out on stdout. crop is applied when it is not empty.
func buildArgs(c codec.Codec, out surface.Info, crop ports.Rect, hw hwAccel) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if hw.method != "" {
		args = append(args, "-hwaccel", hw.method)
		if hw.device != "" {
			args = append(args, "-hwaccel_device", hw.device)
		}
	}
	args = append(args, "-f", c.FFmpegInputFormat(), "-i", "pipe:0", "-an", "-fps_mode", "passthrough")
	if !crop.Empty() {
		args = append(args, "-vf", fmt.Sprintf("crop=%d:%d:%d:%d", crop.Width(), crop.Height(), crop.Left, crop.Top))
	}
	return append(args, "-f", "rawvideo", "-pix_fmt", out.Format.FFmpegPixFmt(), "pipe:1")
}

// session is one running ffmpeg process. Bitstreams go in on stdin; the
// reader goroutine cuts stdout into surfaces of a fixed size.
type session struct {
	id    int
	cmd   *exec.Cmd
	stdin io.WriteCloser
	ivf   *ivf.Writer // nil for Annex B input

	stderr stderrBuffer
	done   chan struct{}
	err    error // reader error, valid after done is closed

	closeOnce sync.Once
}

// frameFunc receives each raw surface read from ffmpeg. It owns nothing
// after returning; data is reused for the next surface.
type frameFunc func(data []byte) error

func startSession(id int, path string, args []string, c codec.Codec, info ports.StreamInfo, frameSize int, onFrame frameFunc) (*session, error) {
	s := &session{id: id, done: make(chan struct{})}
	s.cmd = exec.Command(path, args...)
	s.cmd.Stderr = &s.stderr

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	s.stdin = stdin

	if fourCC := c.IVFFourCC(); fourCC != "" {
		s.ivf, err = ivf.NewWriter(stdin, ivf.Header{
			FourCC:      fourCC,
			Width:       uint16(info.Width),
			Height:      uint16(info.Height),
			TimebaseDen: 1_000_000,
			TimebaseNum: 1,
		})
		if err != nil {
			stdin.Close()
			s.cmd.Process.Kill()
			io.Copy(io.Discard, stdout)
			s.cmd.Wait()
			return nil, err
		}
	}

	go s.read(stdout, frameSize, onFrame)
	return s, nil
}

func (s *session) read(stdout io.Reader, frameSize int, onFrame frameFunc) {
	defer close(s.done)
	buf := make([]byte, frameSize)
	for {
		_, err := io.ReadFull(stdout, buf)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.err = fmt.Errorf("read surface: %w", err)
			io.Copy(io.Discard, stdout)
			return
		}
		if err := onFrame(buf); err != nil {
			s.err = err
			io.Copy(io.Discard, stdout)
			return
		}
	}
}

// write sends one access unit to ffmpeg.
func (s *session) write(pts int64, data []byte) error {
	var err error
	if s.ivf != nil {
		err = s.ivf.WriteFrame(uint64(pts), data)
	} else {
		_, err = s.stdin.Write(data)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeFailed, s.failure(err))
	}
	return nil
}

// finish closes stdin and waits until every surface has been read.
func (s *session) finish() error {
	s.closeOnce.Do(func() { s.stdin.Close() })
	<-s.done
	waitErr := s.cmd.Wait()
	if s.err != nil {
		return s.failure(s.err)
	}
	if waitErr != nil {
		return fmt.Errorf("%w: %v", ErrDecodeFailed, s.failure(waitErr))
	}
	return nil
}

// abort kills the process and discards pending output.
func (s *session) abort() {
	s.closeOnce.Do(func() { s.stdin.Close() })
	s.cmd.Process.Kill()
	<-s.done
	s.cmd.Wait()
}

func (s *session) failure(err error) error {
	if msg := bytes.TrimSpace(s.stderr.Bytes()); len(msg) > 0 {
		return fmt.Errorf("%v\nstderr: %s", err, msg)
	}
	return err
}

// stderrBuffer collects ffmpeg diagnostics written from the exec goroutine.
type stderrBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *stderrBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *stderrBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
