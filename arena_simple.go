package slabpool

import (
	"unsafe"

	"github.com/nmxmxh/slabpool/internal/backing"
)

// simpleArena is the no-synchronization variant: the caller guarantees no
// concurrent calls on the same cache (spec.md §5 "None (simple)").
type simpleArena[T any] struct {
	core *coreArena[T]
}

func newSimpleArena[T any](g geometry, class Class[T], backend backing.Allocator, inum uint32) (*simpleArena[T], error) {
	core, err := newCoreArena(g, class, backend, inum)
	if err != nil {
		return nil, err
	}
	return &simpleArena[T]{core: core}, nil
}

func (a *simpleArena[T]) allocate() (*T, error) {
	p, err := a.core.allocateRaw()
	if err != nil {
		return nil, err
	}
	return (*T)(p), nil
}

func (a *simpleArena[T]) get(v *T) *T {
	a.core.getRaw(unsafe.Pointer(v))
	return v
}

func (a *simpleArena[T]) put(v *T) *T {
	if a.core.putRaw(unsafe.Pointer(v)) {
		return nil
	}
	return v
}

func (a *simpleArena[T]) reap() int       { return a.core.reap() }
func (a *simpleArena[T]) free() error     { return a.core.freeAll() }
func (a *simpleArena[T]) stats() Stats    { return a.core.statsRaw() }
