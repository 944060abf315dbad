// Package slabpool implements a slab-based fixed-size-block object pool:
// a Cache hands out *T values backed by bitmap-indexed slots inside
// fixed-size slabs, reusing freed slots instead of returning them to the
// runtime allocator or garbage collector. See SPEC_FULL.md for the full
// design this package implements.
package slabpool

import "github.com/nmxmxh/slabpool/internal/backing"

// Cache is a typed object pool. Use one of the Create* functions to
// build one; the zero value is not usable.
type Cache[T any] struct {
	arena arenaImpl[T]
}

// Alloc returns a fresh *T from the pool, growing the backing slab list
// if every existing slab is full (spec.md §4.3 object_alloc). When the
// class is Referable the returned block's refcount starts at 1.
func (c *Cache[T]) Alloc() (*T, error) {
	return c.arena.allocate()
}

// Get increments v's refcount when the cache is Referable; it is a
// no-op otherwise. It returns v for chaining.
func (c *Cache[T]) Get(v *T) *T {
	return c.arena.get(v)
}

// Put decrements v's refcount (when Referable) and, once it reaches
// zero — or immediately, when the cache is not Referable — runs Reinit
// and returns the slot to its slab. It returns nil when the block was
// actually released, or v unchanged if the refcount is still positive.
func (c *Cache[T]) Put(v *T) *T {
	return c.arena.put(v)
}

// Reap destroys currently-empty slabs and returns the number of slabs
// destroyed. In the simple, lockable and zoned variants it walks each
// slab list from the head, skipping full slabs and stopping at the first
// partially used one (spec.md §4.4); the lockless variant checks every
// slab on its availability stack. Backing-allocator release errors are
// not reported.
func (c *Cache[T]) Reap() int {
	return c.arena.reap()
}

// Free destroys the cache: every slab still alive runs Dtor over every
// slot and releases its backing region. In the lockable and lockless
// variants, further operations on the cache are no-ops and Alloc returns
// ErrPoisonedCache (see spec.md §7). The simple and zoned variants keep
// no destroyed state: a later Alloc builds a new slab list, and blocks
// obtained before Free must not be used again.
func (c *Cache[T]) Free() error {
	return c.arena.free()
}

// Stats reports basic slab/block accounting (SPEC_FULL.md's supplement
// to spec.md, whose Non-goals exclude only observability beyond this).
func (c *Cache[T]) Stats() Stats {
	return c.arena.stats()
}

// CacheOption customizes a Create* call beyond its required arguments.
// The only option today is WithBackingAllocator; more can be added
// without breaking existing call sites.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	backend backing.Allocator
}

// WithBackingAllocator overrides a cache's source of raw slab regions.
// Every Create* function otherwise picks a sensible default (backing.Heap
// everywhere, except CreateLockless which defaults to backing.Mmap on
// unix); pass this to use backing.Heap, backing.Mmap, or a custom
// backing.Allocator explicitly.
func WithBackingAllocator(a backing.Allocator) CacheOption {
	return func(c *cacheConfig) { c.backend = a }
}

func resolveConfig(defaultBackend backing.Allocator, opts []CacheOption) cacheConfig {
	cfg := cacheConfig{backend: defaultBackend}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func newCache[T any](opts Options, class Class[T], blockSize, inum uint32, backend backing.Allocator, build func(g geometry, class Class[T], backend backing.Allocator, inum uint32) (arenaImpl[T], error)) (*Cache[T], error) {
	g, err := newGeometry(blockSize, class.Align, opts&Referable != 0)
	if err != nil {
		return nil, err
	}
	impl, err := build(g, class, backend, inum)
	if err != nil {
		return nil, err
	}
	return &Cache[T]{arena: impl}, nil
}

// CreateSimple builds a Cache with no synchronization at all (spec.md
// §4.5 "No synchronization"): every operation must be called from a
// single goroutine.
func CreateSimple[T any](opts Options, class Class[T], inum uint32, cacheOpts ...CacheOption) (*Cache[T], error) {
	cfg := resolveConfig(backing.NewHeap(), cacheOpts)
	return newCache(opts, class, class.blockSize(), inum, cfg.backend,
		func(g geometry, class Class[T], backend backing.Allocator, inum uint32) (arenaImpl[T], error) {
			return newSimpleArena(g, class, backend, inum)
		})
}

// CreateLockable builds a Cache guarded by a single mutex (spec.md §4.5
// "Global lock"): safe for concurrent use by any number of goroutines,
// serialized through one lock.
func CreateLockable[T any](opts Options, class Class[T], inum uint32, cacheOpts ...CacheOption) (*Cache[T], error) {
	cfg := resolveConfig(backing.NewHeap(), cacheOpts)
	return newCache(opts, class, class.blockSize(), inum, cfg.backend,
		func(g geometry, class Class[T], backend backing.Allocator, inum uint32) (arenaImpl[T], error) {
			return newLockableArena(g, class, backend, inum)
		})
}

// CreateZoned builds a Cache with one independent slab list per calling
// goroutine (spec.md §4.5 "Zoned"). A block allocated from one
// goroutine's zone must be released from that same goroutine; see
// ErrCrossThreadRelease and DESIGN.md's Open Question decision on zone
// lifetime.
func CreateZoned[T any](opts Options, class Class[T], inum uint32, cacheOpts ...CacheOption) (*Cache[T], error) {
	cfg := resolveConfig(backing.NewHeap(), cacheOpts)
	return newCache(opts, class, class.blockSize(), inum, cfg.backend,
		func(g geometry, class Class[T], backend backing.Allocator, inum uint32) (arenaImpl[T], error) {
			return newZonedArena(g, class, backend, inum)
		})
}

// CreateLockless builds a Cache using hazard-pointer-protected Treiber
// stacks instead of a mutex (spec.md §4.5 "Lockless"). Safe for
// concurrent use by any number of goroutines; see arena_lockless.go for
// the design this replaces the spec's raw tagged-pointer sketch with.
// Its default backing allocator is backing.Mmap on unix (lock-free code
// benefits from page-backed, madvise-able slabs that never move), falling
// back to backing.Heap elsewhere; override with WithBackingAllocator.
func CreateLockless[T any](opts Options, class Class[T], inum uint32, cacheOpts ...CacheOption) (*Cache[T], error) {
	cfg := resolveConfig(defaultLocklessBacking(), cacheOpts)
	return newCache(opts, class, class.blockSize(), inum, cfg.backend,
		func(g geometry, class Class[T], backend backing.Allocator, inum uint32) (arenaImpl[T], error) {
			return newLocklessArena(g, class, backend, inum)
		})
}
