package slabpool

import (
	"sync"
	"unsafe"

	"github.com/nmxmxh/slabpool/internal/backing"
)

// lockableArena wraps a coreArena with a single mutex acquired for every
// public operation (spec.md §5 "Global lock"). A destroyed cache is
// detected by a sticky poisoned flag rather than by recovering from a
// broken mutex — Go's sync.Mutex has no "destroyed" state to detect,
// unlike the pthread mutex the spec's ErrPoisonedCache describes, so the
// flag is the direct equivalent: every operation checks it under the same
// lock that Free sets it under, giving the same "post-destruction
// operations silently no-op" behavior spec.md §7 asks for.
type lockableArena[T any] struct {
	mu        sync.Mutex
	core      *coreArena[T]
	destroyed bool
}

func newLockableArena[T any](g geometry, class Class[T], backend backing.Allocator, inum uint32) (*lockableArena[T], error) {
	core, err := newCoreArena(g, class, backend, inum)
	if err != nil {
		return nil, err
	}
	return &lockableArena[T]{core: core}, nil
}

func (a *lockableArena[T]) allocate() (*T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return nil, ErrPoisonedCache
	}
	p, err := a.core.allocateRaw()
	if err != nil {
		return nil, err
	}
	return (*T)(p), nil
}

func (a *lockableArena[T]) get(v *T) *T {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return v
	}
	a.core.getRaw(unsafe.Pointer(v))
	return v
}

func (a *lockableArena[T]) put(v *T) *T {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return nil
	}
	if a.core.putRaw(unsafe.Pointer(v)) {
		return nil
	}
	return v
}

func (a *lockableArena[T]) reap() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return 0
	}
	return a.core.reap()
}

func (a *lockableArena[T]) free() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return nil
	}
	a.destroyed = true
	return a.core.freeAll()
}

func (a *lockableArena[T]) stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return Stats{}
	}
	return a.core.statsRaw()
}
