package surface_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/mocks"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/surface"
)

func TestInfoSize(t *testing.T) {
	tests := []struct {
		format surface.Format
		want   int
	}{
		{surface.FormatNV12, 64*48 + 64*24},
		{surface.FormatP016, 128*48 + 128*24},
		{surface.FormatYUV444, 64 * 48 * 3},
		{surface.FormatYUV444P16, 128 * 48 * 3},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			info := surface.NewInfo(64, 48, 8, tt.format, surface.MemHostCopied)
			assert.Equal(t, tt.want, info.Size())
		})
	}
}

func TestBindTwoPlaneLeavesSlotTwoEmpty(t *testing.T) {
	alloc := mocks.NewAllocator()
	pool := buffer.NewPool(alloc)
	info := surface.NewInfo(16, 8, 8, surface.FormatNV12, surface.MemHostCopied)

	owner, err := pool.Get(info.Size())
	require.NoError(t, err)

	p := packet.New()
	// A stale V plane from a previous three-plane frame must be dropped.
	stale, err := pool.Get(16)
	require.NoError(t, err)
	require.NoError(t, p.SetPlane(packet.PlaneV, stale, buffer.Layout{Width: 4, Height: 4, Pitch: 4, ElemSize: 1}))
	stale.Release()

	require.NoError(t, surface.Bind(p, owner, info))
	owner.Release()

	assert.False(t, p.Plane(packet.PlaneY).Empty())
	assert.False(t, p.Plane(packet.PlaneUV).Empty())
	assert.True(t, p.Plane(packet.PlaneV).Empty())
	assert.Equal(t, 1, alloc.Live(), "stale plane released")

	assert.Equal(t, owner.Addr(), p.FrameAddr)
	assert.Equal(t, int64(info.Size()), p.FrameSize)
	assert.Equal(t, owner.Addr()+uintptr(16*8), p.Plane(packet.PlaneUV).Addr())
	assert.Equal(t, 4, p.Plane(packet.PlaneUV).Layout().Height)

	p.ClearPlanes()
	assert.Equal(t, 0, alloc.Live())
}

func TestBindThreePlanePopulatesDistinctSlots(t *testing.T) {
	alloc := mocks.NewAllocator()
	info := surface.NewInfo(8, 8, 10, surface.FormatYUV444P16, surface.MemHostCopied)
	owner, err := buffer.NewPool(alloc).Get(info.Size())
	require.NoError(t, err)

	p := packet.New()
	require.NoError(t, surface.Bind(p, owner, info))
	owner.Release()

	u, v := p.Plane(packet.PlaneU), p.Plane(packet.PlaneV)
	assert.False(t, u.Empty())
	assert.False(t, v.Empty())
	assert.NotSame(t, u, v)
	assert.NotEqual(t, u.Addr(), v.Addr())
	assert.Equal(t, 3, p.PopulatedPlanes())
	assert.Equal(t, 2, v.Layout().ElemSize)

	p.SignalEndOfStream()
	assert.Equal(t, 0, alloc.Live())
}

func TestBindRejectsSmallBuffer(t *testing.T) {
	info := surface.NewInfo(16, 16, 8, surface.FormatNV12, surface.MemHostCopied)
	owner, err := buffer.NewPool(mocks.NewAllocator()).Get(16)
	require.NoError(t, err)
	defer owner.Release()

	p := packet.New()
	assert.ErrorIs(t, surface.Bind(p, owner, info), buffer.ErrOutOfRange)
	assert.Equal(t, 0, p.PopulatedPlanes())
}

func TestChoose(t *testing.T) {
	assert.Equal(t, surface.FormatNV12, surface.Choose(8, 1))
	assert.Equal(t, surface.FormatP016, surface.Choose(10, 1))
	assert.Equal(t, surface.FormatYUV444, surface.Choose(8, 3))
	assert.Equal(t, surface.FormatYUV444P16, surface.Choose(12, 3))
}

func TestParseMemType(t *testing.T) {
	assert.Equal(t, surface.MemHostCopied, surface.ParseMemType("host_copied"))
	assert.Equal(t, surface.MemNotMapped, surface.ParseMemType("3"))
	assert.Equal(t, surface.MemInternal, surface.ParseMemType("bogus"))
}
