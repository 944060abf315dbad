package slabpool

import "errors"

// ErrAllocatorFailure is returned when the backing allocator rejects a
// slab or cache region acquisition.
var ErrAllocatorFailure = errors.New("slabpool: backing allocator failure")

// ErrPoisonedCache is returned by the lockable and lockless arenas when
// an allocation is attempted after the cache has already been freed.
var ErrPoisonedCache = errors.New("slabpool: operation on destroyed cache")

// ErrZeroBlockSize is returned when a Class is constructed with a zero
// block size.
var ErrZeroBlockSize = errors.New("slabpool: block size must be > 0")

// ErrInvalidAlignment is returned when a Class requests a non-power-of-two
// alignment.
var ErrInvalidAlignment = errors.New("slabpool: alignment must be a power of two")

// ErrCrossThreadRelease is the panic value (debug builds only, see
// zoned_debug.go) when a block allocated on one goroutine is released on
// another in the zoned arena.
var ErrCrossThreadRelease = errors.New("slabpool: block released on a different thread than it was allocated")
