package slabpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeometry_ZeroBlockSize(t *testing.T) {
	_, err := newGeometry(0, 0, false)
	require.ErrorIs(t, err, ErrZeroBlockSize)
}

func TestNewGeometry_BadAlignment(t *testing.T) {
	_, err := newGeometry(8, 3, false)
	require.ErrorIs(t, err, ErrInvalidAlignment)
}

func TestEffectiveBlockSize_Referable(t *testing.T) {
	// 8-byte block, 8-byte alignment, referable: +1 index byte, +4 refcount
	// word (aligned), rounded up to 8.
	got := effectiveBlockSize(8, 8, true)
	assert.Equal(t, uint32(16), got)
}

func TestEffectiveBlockSize_NonReferable(t *testing.T) {
	got := effectiveBlockSize(8, 8, false)
	assert.Equal(t, uint32(16), got) // 8 + 1 index byte rounded up to 8
}

func TestRegionSize_MatchesSlotCount(t *testing.T) {
	g, err := newGeometry(16, 8, false)
	require.NoError(t, err)
	assert.Equal(t, g.headerSz+g.effBlkSz*slotsPerSlab, g.regionSize())
}

func TestRoundUp(t *testing.T) {
	assert.Equal(t, uint32(8), roundUp(5, 8))
	assert.Equal(t, uint32(8), roundUp(8, 8))
	assert.Equal(t, uint32(16), roundUp(9, 8))
	assert.Equal(t, uint32(5), roundUp(5, 1))
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, v := range []uint32{1, 2, 4, 8, 16, 64} {
		assert.True(t, isPowerOfTwo(v), "%d should be a power of two", v)
	}
	for _, v := range []uint32{0, 3, 5, 6, 12} {
		assert.False(t, isPowerOfTwo(v), "%d should not be a power of two", v)
	}
}
