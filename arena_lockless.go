package slabpool

import (
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/nmxmxh/slabpool/internal/backing"
	"github.com/nmxmxh/slabpool/internal/hazard"
	"go.uber.org/multierr"
)

// treiberStack is a lock-free LIFO of slabs linked through Slab.lfNext.
// Push/pop never lock; pop is protected by a hazard pointer so a slab
// can't be reclaimed out from under a racing popper (spec.md §4.5/§9's
// tagged-pointer sketch is unsound against Go's precise GC — see
// DESIGN.md — this is the hazard-pointer replacement).
type treiberStack struct {
	head atomic.Pointer[Slab]
}

func (st *treiberStack) push(s *Slab) {
	for {
		old := st.head.Load()
		s.lfNext.Store(old)
		if st.head.CompareAndSwap(old, s) {
			return
		}
	}
}

func (st *treiberStack) pop(h *hazard.Handle) *Slab {
	for {
		old := st.head.Load()
		if old == nil {
			return nil
		}
		h.Protect(0, unsafe.Pointer(old))
		if st.head.Load() != old {
			continue
		}
		next := old.lfNext.Load()
		if st.head.CompareAndSwap(old, next) {
			h.Clear(0)
			return old
		}
	}
}

// locklessArena implements spec.md §4.5's "Lockless" variant. Every slab
// ever created is registered in origins (the canonical, always-complete
// record used by Free/Reap/Stats); available is a Treiber stack of slabs
// known to have at least one free slot, used purely as an allocation
// hint. A slab with no free slots simply isn't in available — it is
// re-pushed by whichever release() call is the one that observes the
// transition out of full (Slab.releaseSlot's wasFull result), so exactly
// one release per full slab re-publishes it.
//
// object_alloc's committed resolution (spec.md Open Questions): pop
// available if non-empty; otherwise create a fresh slab, pre-populate
// its slots via createSlab, and take the first slot from it directly
// (pushing the remainder onto available) rather than discarding the new
// capacity.
type locklessArena[T any] struct {
	g       geometry
	class   Class[T]
	backend backing.Allocator

	available treiberStack
	origins   sync.Map // uintptr -> *Slab
	slabCount atomic.Int64
	hz        *hazard.Registry
	destroyed atomic.Bool
}

func newLocklessArena[T any](g geometry, class Class[T], backend backing.Allocator, inum uint32) (*locklessArena[T], error) {
	a := &locklessArena[T]{
		g:       g,
		class:   class,
		backend: backend,
		hz:      hazard.New(),
	}
	n := (inum + slotsPerSlab - 1) / slotsPerSlab
	for i := uint32(0); i < n; i++ {
		s, err := a.createAndRegister()
		if err != nil {
			return nil, err
		}
		a.available.push(s)
	}
	return a, nil
}

func (a *locklessArena[T]) createAndRegister() (*Slab, error) {
	s, err := createSlab(a.backend, a.g, a.class)
	if err != nil {
		return nil, err
	}
	a.origins.Store(s.origin, s)
	a.slabCount.Add(1)
	return s, nil
}

func (a *locklessArena[T]) allocate() (*T, error) {
	if a.destroyed.Load() {
		return nil, ErrPoisonedCache
	}
	h := a.hz.Handle()
	defer h.Release()

	s := a.available.pop(h)
	if s == nil {
		var err error
		s, err = a.createAndRegister()
		if err != nil {
			return nil, err
		}
	}
	p, ok := s.acquireSlot(a.g)
	if !ok {
		// Unreachable under the invariant documented above, but never
		// hand back a nil pointer silently if it somehow is.
		return nil, ErrAllocatorFailure
	}
	if !s.isFull() {
		a.available.push(s)
	}
	if a.g.referable {
		resetRefcount(p, a.g)
	}
	return (*T)(p), nil
}

func (a *locklessArena[T]) get(v *T) *T {
	if a.destroyed.Load() {
		return v
	}
	if !a.g.referable {
		return v
	}
	p := unsafe.Pointer(v)
	origin := slabOrigin(p, a.g)
	if _, ok := a.origins.Load(origin); ok {
		getRefcount(p, a.g)
	}
	return v
}

func (a *locklessArena[T]) put(v *T) *T {
	if a.destroyed.Load() {
		return nil
	}
	p := unsafe.Pointer(v)
	origin := slabOrigin(p, a.g)
	val, ok := a.origins.Load(origin)
	if !ok {
		return v
	}
	if a.g.referable && putRefcount(p, a.g) != 0 {
		return v
	}
	a.class.callReinit(p)
	s := val.(*Slab)
	i := slotIndexOf(p, a.g)
	if wasFull := s.releaseSlot(i); wasFull {
		a.available.push(s)
	}
	return nil
}

// reap drains the available stack once, destroying every slab found
// completely free and re-publishing the rest. Slabs mid-allocation at
// the moment of the drain are simply not in the stack and are
// unaffected.
func (a *locklessArena[T]) reap() int {
	if a.destroyed.Load() {
		return 0
	}
	h := a.hz.Handle()
	defer h.Release()

	var kept []*Slab
	reaped := 0
	for {
		s := a.available.pop(h)
		if s == nil {
			break
		}
		if s.isFree() {
			a.origins.Delete(s.origin)
			a.slabCount.Add(-1)
			slab := s
			a.hz.Retire(unsafe.Pointer(slab), func() {
				_ = destroySlab(slab, a.backend, a.g, a.class)
			})
			reaped++
		} else {
			kept = append(kept, s)
		}
	}
	for _, s := range kept {
		a.available.push(s)
	}
	return reaped
}

// free tears down every slab ever registered, regardless of its current
// availability-stack membership, after quiescing the hazard registry so
// no in-flight pop is left referencing a slab being destroyed.
func (a *locklessArena[T]) free() error {
	if a.destroyed.Swap(true) {
		return nil
	}
	a.hz.Quiesce()

	var errs error
	a.origins.Range(func(key, val any) bool {
		s := val.(*Slab)
		if err := destroySlab(s, a.backend, a.g, a.class); err != nil {
			errs = multierr.Append(errs, err)
		}
		a.origins.Delete(key)
		return true
	})
	a.available.head.Store(nil)
	a.slabCount.Store(0)
	return errs
}

func (a *locklessArena[T]) stats() Stats {
	if a.destroyed.Load() {
		return Stats{}
	}
	var st Stats
	a.origins.Range(func(_, val any) bool {
		s := val.(*Slab)
		bm := atomic.LoadUint32(&s.bitmap)
		free := uint32(bits.OnesCount32(bm))
		st.SlabCount++
		st.FreeBlocks += free
		st.LiveBlocks += slotsPerSlab - free
		return true
	})
	return st
}
