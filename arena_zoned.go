package slabpool

import (
	"sync"
	"unsafe"

	"github.com/nmxmxh/slabpool/internal/backing"
	"go.uber.org/multierr"
)

// zonedArena keeps one coreArena per goroutine, keyed by goroutineID
// (spec.md §4.5 "Zoned"). The first access from a given goroutine lazily
// creates and pre-populates that goroutine's list with the cache's
// original inum. There is no cross-zone sharing: a block allocated in one
// zone must never be released in another (checkZoneOwnership enforces
// this in debug builds).
//
// Go exposes no goroutine-exit hook, so the spec's "thread exit destroys
// that thread's list" is approximated by an explicit releaseZone call —
// see DESIGN.md's Open Question decision for this arena.
type zonedArena[T any] struct {
	g       geometry
	class   Class[T]
	backend backing.Allocator
	inum    uint32

	mu    sync.Mutex
	zones map[uint64]*coreArena[T]
}

func newZonedArena[T any](g geometry, class Class[T], backend backing.Allocator, inum uint32) (*zonedArena[T], error) {
	return &zonedArena[T]{
		g:       g,
		class:   class,
		backend: backend,
		inum:    inum,
		zones:   make(map[uint64]*coreArena[T]),
	}, nil
}

func (a *zonedArena[T]) zoneFor() (*coreArena[T], error) {
	gid := goroutineID()
	a.mu.Lock()
	defer a.mu.Unlock()
	if core, ok := a.zones[gid]; ok {
		return core, nil
	}
	core, err := newCoreArena(a.g, a.class, a.backend, a.inum)
	if err != nil {
		return nil, err
	}
	a.zones[gid] = core
	return core, nil
}

func (a *zonedArena[T]) allocate() (*T, error) {
	core, err := a.zoneFor()
	if err != nil {
		return nil, err
	}
	p, err := core.allocateRaw()
	if err != nil {
		return nil, err
	}
	return (*T)(p), nil
}

func (a *zonedArena[T]) get(v *T) *T {
	core, err := a.zoneFor()
	if err != nil {
		return v
	}
	p := unsafe.Pointer(v)
	_, owned := core.origins[slabOrigin(p, a.g)]
	checkZoneOwnership(owned)
	if owned {
		core.getRaw(p)
	}
	return v
}

func (a *zonedArena[T]) put(v *T) *T {
	core, err := a.zoneFor()
	if err != nil {
		return v
	}
	p := unsafe.Pointer(v)
	_, owned := core.origins[slabOrigin(p, a.g)]
	checkZoneOwnership(owned)
	if !owned {
		return v
	}
	if core.putRaw(p) {
		return nil
	}
	return v
}

// releaseZone destroys the calling goroutine's slab list. Call it at the
// logical end of a worker goroutine's life; a cache's Free also visits
// every still-registered zone.
func (a *zonedArena[T]) releaseZone() error {
	gid := goroutineID()
	a.mu.Lock()
	core, ok := a.zones[gid]
	if ok {
		delete(a.zones, gid)
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return core.freeAll()
}

func (a *zonedArena[T]) reap() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, core := range a.zones {
		total += core.reap()
	}
	return total
}

// free is a no-op beyond releasing each registered zone's slabs: per
// spec.md's Design Notes, the cache's own free is a no-op for zoned
// arenas in the sense that it only tears down the outer handle, with
// per-thread data reclaimed via thread exit. Since Go can't hook thread
// exit, free() here does the reclamation itself for every zone still
// registered at call time rather than leaving it unreachable.
func (a *zonedArena[T]) free() error {
	a.mu.Lock()
	zones := a.zones
	a.zones = make(map[uint64]*coreArena[T])
	a.mu.Unlock()

	var errs error
	for _, core := range zones {
		if err := core.freeAll(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (a *zonedArena[T]) stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	var st Stats
	for _, core := range a.zones {
		s := core.statsRaw()
		st.SlabCount += s.SlabCount
		st.FreeBlocks += s.FreeBlocks
		st.LiveBlocks += s.LiveBlocks
	}
	return st
}
