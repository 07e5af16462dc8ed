package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromAVCodecIDRoundTrip(t *testing.T) {
	for c := MPEG1; c < NumCodecs; c++ {
		assert.Equal(t, c, FromAVCodecID(c.AVCodecID()), "codec %s", c)
	}
	assert.Equal(t, NumCodecs, FromAVCodecID(0))
	assert.Equal(t, NumCodecs, FromAVCodecID(99999))
}

func TestFromName(t *testing.T) {
	tests := []struct {
		name string
		want Codec
	}{
		{"h264", AVC},
		{"H265", HEVC},
		{" av1 ", AV1},
		{"mpeg2video", MPEG2},
		{"vp9", VP9},
	}
	for _, tt := range tests {
		got, err := FromName(tt.name)
		assert.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	_, err := FromName("theora")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestFromSampleEntry(t *testing.T) {
	got, err := FromSampleEntry("hev1")
	assert.NoError(t, err)
	assert.Equal(t, HEVC, got)

	_, err = FromSampleEntry("mp4a")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestSupportsBitDepth(t *testing.T) {
	assert.True(t, AVC.SupportsBitDepth(8))
	assert.False(t, AVC.SupportsBitDepth(10))
	assert.True(t, HEVC.SupportsBitDepth(10))
	assert.True(t, AV1.SupportsBitDepth(12))
	assert.False(t, VP9.SupportsBitDepth(16))
	assert.False(t, NumCodecs.SupportsBitDepth(8))
}

func TestFFmpegInputFormat(t *testing.T) {
	assert.Equal(t, "h264", AVC.FFmpegInputFormat())
	assert.Equal(t, "ivf", VP9.FFmpegInputFormat())
	assert.Equal(t, "AV01", AV1.IVFFourCC())
	assert.Empty(t, HEVC.IVFFourCC())
	assert.True(t, HEVC.AnnexB())
	assert.False(t, AV1.AnnexB())
}
