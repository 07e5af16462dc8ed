package ivf_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/videobridge/pkg/ivf"
)

func TestWriteThenRead(t *testing.T) {
	var buf bytes.Buffer
	w, err := ivf.NewWriter(&buf, ivf.Header{FourCC: "VP90", Width: 320, Height: 240, TimebaseDen: 30, TimebaseNum: 1})
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(0, []byte{1, 2, 3}))
	require.NoError(t, w.WriteFrame(1, []byte{4}))
	assert.Equal(t, uint32(2), w.Frames())
	assert.Equal(t, ivf.HeaderSize+2*ivf.FrameHeaderSize+4, buf.Len())
	assert.True(t, ivf.Sniff(buf.Bytes()))

	r, err := ivf.NewReader(&buf)
	require.NoError(t, err)
	h := r.Header()
	assert.Equal(t, "VP90", h.FourCC)
	assert.Equal(t, uint16(320), h.Width)
	assert.Equal(t, int64(33333), h.Micros(1))

	f, err := r.ReadFrame(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, f.Data)

	f, err = r.ReadFrame(f.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.PTS)
	assert.Equal(t, []byte{4}, f.Data)

	_, err = r.ReadFrame(nil)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderRejectsBadSignature(t *testing.T) {
	_, err := ivf.NewReader(bytes.NewReader(make([]byte, ivf.HeaderSize)))
	assert.ErrorIs(t, err, ivf.ErrBadSignature)
}

func TestReaderTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	w, err := ivf.NewWriter(&buf, ivf.Header{FourCC: "AV01", TimebaseDen: 1000, TimebaseNum: 1})
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(0, []byte{1, 2, 3, 4}))
	data := buf.Bytes()[:buf.Len()-2]

	r, err := ivf.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = r.ReadFrame(nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestWriterRejectsBadFourCC(t *testing.T) {
	_, err := ivf.NewWriter(io.Discard, ivf.Header{FourCC: "AV1"})
	assert.Error(t, err)
}
