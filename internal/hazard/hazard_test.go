package hazard

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RetireRunsImmediatelyWhenUnprotected(t *testing.T) {
	r := New()
	var reclaimed bool
	var x byte
	r.Retire(unsafe.Pointer(&x), func() { reclaimed = true })
	assert.True(t, reclaimed)
}

func TestRegistry_RetireDefersWhileProtected(t *testing.T) {
	r := New()
	h := r.Handle()
	defer h.Release()

	var x byte
	h.Protect(0, unsafe.Pointer(&x))

	var reclaimed bool
	r.Retire(unsafe.Pointer(&x), func() { reclaimed = true })
	assert.False(t, reclaimed, "must not reclaim while a handle protects the pointer")

	h.Clear(0)
	r.Retire(unsafe.Pointer(&x), func() { reclaimed = true })
	assert.True(t, reclaimed)
}

func TestRegistry_QuiesceReturnsOnceAllClear(t *testing.T) {
	r := New()
	h := r.Handle()
	var x byte
	h.Protect(0, unsafe.Pointer(&x))

	done := make(chan struct{})
	go func() {
		r.Quiesce()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Quiesce returned while a hazard was still set")
	default:
	}

	h.Clear(0)
	<-done
}

func TestRegistry_DeregisterRemovesHandleFromScan(t *testing.T) {
	r := New()
	h := r.Handle()
	var x byte
	h.Protect(0, unsafe.Pointer(&x))
	require.Len(t, r.scan(), 1)

	h.Release()
	assert.Len(t, r.scan(), 0)
}
