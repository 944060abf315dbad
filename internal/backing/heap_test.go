package backing

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeap_AcquireRespectsAlignment(t *testing.T) {
	h := NewHeap()
	for _, align := range []uint32{1, 8, 16, 64} {
		region, err := h.Acquire(128, align)
		require.NoError(t, err)
		assert.Len(t, region, 128)
		assert.Zero(t, uintptr(unsafe.Pointer(&region[0]))%uintptr(align))
	}
}

func TestHeap_ReleaseIsNoOp(t *testing.T) {
	h := NewHeap()
	region, err := h.Acquire(64, 8)
	require.NoError(t, err)
	assert.NoError(t, h.Release(region))
}
