package slabpool

import (
	"unsafe"

	"github.com/klauspost/cpuid/v2"
)

// counterSize/counterAlign describe the refcount word embedded at the tail
// of a block (see refcount.go). The counter is a plain uint32 in every
// arena variant; every variant manipulates it through sync/atomic
// instead of giving it a wider/atomic-specific type.
const (
	counterSize  = 4
	counterAlign = 4
)

// slotsPerSlab is the bitmap width: one bit per slot, so a slab always
// carries exactly 32 slots regardless of block size. This matches the
// spec's "typically 32" and is what end-to-end scenario 3 (33 allocations
// triggering a second slab) depends on.
const slotsPerSlab = 32

const emptyMap uint32 = 1<<slotsPerSlab - 1 // all bits set: every slot free
const fullMap uint32 = 0                    // no bits set: every slot taken

// rawSlabHeader is never instantiated; its size defines headerSize, the
// number of bytes reserved at the front of a slab's backing region before
// the first slot, mirroring the {next, prev, map} header the spec lays out
// in §3. The fields themselves live as native Go fields on Slab (see
// slab.go) rather than inside the byte region — Go's precise collector
// does not scan a []byte's backing array for outgoing pointers, so a next/
// prev pointer written into raw slab bytes would be invisible to the GC
// and could be collected out from under the list. Reserving the space here
// keeps slot 0 at the geometry-correct aligned offset without resorting to
// that unsafe trick. See the slab.go entry in DESIGN.md.
type rawSlabHeader struct {
	next, prev uintptr
	bitmap     uint32
}

var rawHeaderSize = uint32(unsafe.Sizeof(rawSlabHeader{}))

// defaultAlign is used when a Class requests Align == 0. The spec's floor
// is the machine pointer size; when the CPU's cache line size is known we
// round up to it instead, which never produces a smaller alignment than
// the spec requires and avoids false sharing between adjacent slots on a
// hot cache, an improvement the spec's "default = machine pointer size"
// leaves headroom for.
func defaultAlign() uint32 {
	const ptrSize = uint32(unsafe.Sizeof(uintptr(0)))
	line := uint32(cpuid.CPU.CacheLine)
	if line == 0 || !isPowerOfTwo(line) {
		return ptrSize
	}
	if line < ptrSize {
		return ptrSize
	}
	return line
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

func roundUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// effectiveBlockSize implements the three-step geometry algorithm from
// spec.md §4.1: reserve the trailing slot-index byte, then (conditionally)
// the refcount word, then round the whole stride up to the requested
// alignment.
func effectiveBlockSize(blkSz, align uint32, referable bool) uint32 {
	sz := blkSz + 1
	if referable {
		sz = roundUp(sz, counterAlign) + counterSize
	}
	return roundUp(sz, align)
}

// counterOffset returns the byte offset (from a block's start) of the
// refcount word, placed immediately before the slot-index byte at the
// counter's natural alignment.
func counterOffset(effectiveBlkSz uint32) uint32 {
	return (effectiveBlkSz - 1 - counterSize) &^ (counterAlign - 1)
}

// headerSize returns sizeof(SlabHeader) rounded up to align, so slot 0
// begins at an aligned offset within the slab's backing region.
func headerSize(align uint32) uint32 {
	return roundUp(rawHeaderSize, align)
}

// geometry bundles every size/offset a cache needs to derive once at
// creation time and never recompute.
type geometry struct {
	align     uint32
	effBlkSz  uint32
	headerSz  uint32
	referable bool
}

func newGeometry(blkSz, align uint32, referable bool) (geometry, error) {
	if blkSz == 0 {
		return geometry{}, ErrZeroBlockSize
	}
	if align == 0 {
		align = defaultAlign()
	}
	if !isPowerOfTwo(align) {
		return geometry{}, ErrInvalidAlignment
	}
	return geometry{
		align:     align,
		effBlkSz:  effectiveBlockSize(blkSz, align, referable),
		headerSz:  headerSize(align),
		referable: referable,
	}, nil
}

// regionSize is the number of bytes a slab with slotsPerSlab slots needs
// from the backing allocator.
func (g geometry) regionSize() uint32 {
	return g.headerSz + g.effBlkSz*slotsPerSlab
}
