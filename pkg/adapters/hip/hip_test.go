package hip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePCIBusID(t *testing.T) {
	tests := []struct {
		in                   string
		domain, bus, dev, fn int
	}{
		{"0000:03:00.0", 0, 3, 0, 0},
		{"0001:c1:1f.3", 1, 0xc1, 0x1f, 3},
		{"0a:00.1", 0, 0x0a, 0, 1},
		{"0000:83:00", 0, 0x83, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			domain, bus, dev, fn, err := ParsePCIBusID(tt.in)
			require.NoError(t, err)
			assert.Equal(t, []int{tt.domain, tt.bus, tt.dev, tt.fn}, []int{domain, bus, dev, fn})
		})
	}
}

func TestParsePCIBusIDRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "gpu0", "0000:zz:00.0", "1:2:3:4"} {
		_, _, _, _, err := ParsePCIBusID(in)
		assert.ErrorIs(t, err, ErrBadBusID, in)
	}
}

func TestErrorMessage(t *testing.T) {
	err := check("hipMalloc", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hipMalloc")
	assert.NoError(t, check("hipFree", 0))
}

func TestCString(t *testing.T) {
	assert.Equal(t, "gfx1100", cString([]byte{'g', 'f', 'x', '1', '1', '0', '0', 0, 'x'}))
	assert.Equal(t, "abc", cString([]byte("abc")))
}
