package slabpool

import (
	"fmt"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/nmxmxh/slabpool/internal/backing"
)

// terminatorBit marks the last slot's index byte (high bit); the low 7
// bits of every slot's trailing byte hold its index within the slab.
const terminatorBit = 0x80
const slotIndexMask = 0x7f

// Slab is an aligned backing region divided into slotsPerSlab fixed-size
// slots, tracked by a single bitmap word. Unlike the C source, next/prev
// and the bitmap are native Go fields rather than bytes living inside
// region: see geometry.go's rawSlabHeader comment for why. region still
// physically reserves headerSz bytes before slot 0 and every slot still
// carries its own trailing index byte, so the RecoverSlab arithmetic in
// §4.2/§8 is performed for real, not simulated — it just resolves to a
// *Slab via an origin-address index (see slabOrigin and arena lookups)
// instead of an unsafe struct overlay.
type Slab struct {
	next, prev *Slab // simple/lockable/zoned doubly-linked list
	lfNext     atomic.Pointer[Slab]

	bitmap uint32 // accessed exclusively through atomic ops; see acquireSlot/releaseSlot

	region []byte
	origin uintptr // uintptr(unsafe.Pointer(&region[0])); the RecoverSlab target address
}

// createSlab acquires a region from alloc, reserves the header, fans out
// the slot-index trailer bytes, and runs ctor once per slot in ascending
// order (spec §4.2 Create).
func createSlab[T any](alloc backing.Allocator, g geometry, class Class[T]) (*Slab, error) {
	region, err := alloc.Acquire(g.regionSize(), g.align)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocatorFailure, err)
	}
	s := &Slab{
		bitmap: emptyMap,
		region: region,
		origin: uintptr(unsafe.Pointer(&region[0])),
	}
	for i := uint32(0); i < slotsPerSlab; i++ {
		base := g.headerSz + i*g.effBlkSz
		idxByte := byte(i)
		if i == slotsPerSlab-1 {
			idxByte |= terminatorBit
		}
		region[base+g.effBlkSz-1] = idxByte
		if g.referable {
			*(*uint32)(unsafe.Pointer(&region[base+counterOffset(g.effBlkSz)])) = 0
		}
		class.callCtor(unsafe.Pointer(&region[base]))
	}
	return s, nil
}

// destroySlab walks every slot from index 0 to the terminator (inclusive),
// invoking dtor on each regardless of live/free state, then releases the
// backing region (spec §4.2 Destroy).
func destroySlab[T any](s *Slab, alloc backing.Allocator, g geometry, class Class[T]) error {
	for i := uint32(0); i < slotsPerSlab; i++ {
		base := g.headerSz + i*g.effBlkSz
		class.callDtor(unsafe.Pointer(&s.region[base]))
		if s.region[base+g.effBlkSz-1]&terminatorBit != 0 {
			break
		}
	}
	err := alloc.Release(s.region)
	s.region = nil
	return err
}

// isFree reports whether every slot in the slab is unallocated.
func (s *Slab) isFree() bool {
	return atomic.LoadUint32(&s.bitmap) == emptyMap
}

// isFull reports whether every slot in the slab is allocated.
func (s *Slab) isFull() bool {
	return atomic.LoadUint32(&s.bitmap) == fullMap
}

// acquireSlot finds the lowest free slot, clears its bit, and returns the
// block pointer for that slot. ok is false if the slab was already full.
func (s *Slab) acquireSlot(g geometry) (p unsafe.Pointer, ok bool) {
	for {
		old := atomic.LoadUint32(&s.bitmap)
		if old == fullMap {
			return nil, false
		}
		i := uint32(bits.TrailingZeros32(old))
		next := old &^ (1 << i)
		if atomic.CompareAndSwapUint32(&s.bitmap, old, next) {
			return s.slotAt(g, i), true
		}
	}
}

// releaseSlot sets slotIndex's bit back to free and reports whether this
// particular release is the one that transitioned the slab out of "full"
// (i.e. it observed fullMap immediately before its own successful CAS).
// The lockless arena uses that to decide which single release call is
// responsible for making the slab available again.
func (s *Slab) releaseSlot(slotIndex uint32) (wasFull bool) {
	for {
		old := atomic.LoadUint32(&s.bitmap)
		next := old | (1 << slotIndex)
		if atomic.CompareAndSwapUint32(&s.bitmap, old, next) {
			return old == fullMap
		}
	}
}

// slotAt returns the block pointer for slot i within this slab.
func (s *Slab) slotAt(g geometry, i uint32) unsafe.Pointer {
	return unsafe.Pointer(&s.region[g.headerSz+i*g.effBlkSz])
}

// slotIndexOf reads the trailing byte of the block at p and returns its
// slot index (low 7 bits).
func slotIndexOf(p unsafe.Pointer, g geometry) uint32 {
	tail := (*byte)(unsafe.Pointer(uintptr(p) + uintptr(g.effBlkSz) - 1))
	return uint32(*tail & slotIndexMask)
}

// slabOrigin performs the spec's RecoverSlab arithmetic: it subtracts the
// slot's position and the header from the block address to yield the
// address the slab's backing region started at. The caller resolves that
// address to a live *Slab via the arena's origin index (see arena.go).
func slabOrigin(p unsafe.Pointer, g geometry) uintptr {
	i := slotIndexOf(p, g)
	return uintptr(p) - uintptr(i)*uintptr(g.effBlkSz) - uintptr(g.headerSz)
}
