//go:build unix

package backing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmap_AcquireReleaseRoundTrip(t *testing.T) {
	m := NewMmap()
	region, err := m.Acquire(100, 8)
	require.NoError(t, err)
	assert.Len(t, region, 100)
	for i := range region {
		region[i] = 0xAB
	}
	assert.NoError(t, m.Release(region))
}

func TestMmap_RejectsAlignmentAbovePageSize(t *testing.T) {
	m := NewMmap()
	_, err := m.Acquire(64, pageSize*2)
	assert.ErrorIs(t, err, ErrUnsupportedAlignment)
}
