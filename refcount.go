package slabpool

import (
	"sync/atomic"
	"unsafe"
)

// refcountPtr locates the refcount word embedded in a block, per the
// offset formula in spec.md §4.1.
func refcountPtr(p unsafe.Pointer, g geometry) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(p) + uintptr(counterOffset(g.effBlkSz))))
}

// resetRefcount sets a freshly allocated block's reference count to 1.
func resetRefcount(p unsafe.Pointer, g geometry) {
	atomic.StoreUint32(refcountPtr(p, g), 1)
}

// getRefcount increments the reference count, implementing object_get's
// "refcount += 1" side effect.
func getRefcount(p unsafe.Pointer, g geometry) uint32 {
	return atomic.AddUint32(refcountPtr(p, g), 1)
}

// putRefcount decrements the reference count and returns the new value.
// The caller treats zero as "return the block to the pool" (spec §4.6).
func putRefcount(p unsafe.Pointer, g geometry) uint32 {
	return atomic.AddUint32(refcountPtr(p, g), ^uint32(0))
}
