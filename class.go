package slabpool

import "unsafe"

// Options is the cache creation bitset. The spec defines exactly one bit.
type Options uint32

// Referable, when set, gives every block a reference counter: Get
// increments it, Put decrements it and only returns the block to the pool
// when it reaches zero. Without it, Put always returns the block to the
// pool and Get is a no-op.
const Referable Options = 1 << 0

// Class describes one block's size, alignment and lifecycle hooks. It is
// immutable once passed to a Create* function.
type Class[T any] struct {
	// Align is the required alignment of each block's start, a power of
	// two. Zero selects a sensible default (see defaultAlign).
	Align uint32

	// Tag is opaque data forwarded verbatim to every hook invocation.
	Tag any

	// Ctor runs once per slot when a slab is created, before any block
	// in that slab is ever handed out. It must not fail.
	Ctor func(tag any, v *T)

	// Dtor runs once per slot when a slab is reclaimed (by Reap or by
	// Cache.Free), regardless of whether that slot was live at the time.
	// It must not fail.
	Dtor func(tag any, v *T)

	// Reinit runs every time a block is returned to the pool via Put,
	// before the slot becomes reallocatable. It must not fail.
	Reinit func(tag any, v *T)
}

func (c Class[T]) blockSize() uint32 {
	var zero T
	return uint32(unsafe.Sizeof(zero))
}

func (c Class[T]) callCtor(p unsafe.Pointer) {
	if c.Ctor != nil {
		c.Ctor(c.Tag, (*T)(p))
	}
}

func (c Class[T]) callDtor(p unsafe.Pointer) {
	if c.Dtor != nil {
		c.Dtor(c.Tag, (*T)(p))
	}
}

func (c Class[T]) callReinit(p unsafe.Pointer) {
	if c.Reinit != nil {
		c.Reinit(c.Tag, (*T)(p))
	}
}
