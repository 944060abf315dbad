package slabpool

import (
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/nmxmxh/slabpool/internal/backing"
	"go.uber.org/multierr"
)

// Stats is the basic accounting SPEC_FULL.md adds (spec.md allows
// "statistics/observability beyond basic accounting" as a non-goal, which
// implies basic accounting itself is in scope). Grounded on the teacher's
// arena/slab.go SlabStats/GetStats and arena/allocator.go HybridStats,
// generalized from ten size-class tables down to one cache's slab list.
type Stats struct {
	SlabCount  int
	FreeBlocks uint32
	LiveBlocks uint32
}

// arenaImpl is the common surface every concurrency variant (C5) presents
// to Cache (C4/C7). Cache dispatches every public operation through it.
type arenaImpl[T any] interface {
	allocate() (*T, error)
	get(v *T) *T
	put(v *T) *T
	reap() int
	free() error
	stats() Stats
}

// coreArena holds the three-segment slab list and the slot-geometry
// needed to create, recover, and destroy slabs. It carries no
// synchronization of its own: simpleArena uses it directly, lockableArena
// wraps every method in a mutex, and zonedArena keeps one coreArena per
// registered zone.
type coreArena[T any] struct {
	g       geometry
	class   Class[T]
	backend backing.Allocator
	list    slabList
	origins map[uintptr]*Slab
}

func newCoreArena[T any](g geometry, class Class[T], backend backing.Allocator, inum uint32) (*coreArena[T], error) {
	ca := &coreArena[T]{
		g:       g,
		class:   class,
		backend: backend,
		origins: make(map[uintptr]*Slab),
	}
	n := (inum + slotsPerSlab - 1) / slotsPerSlab
	for i := uint32(0); i < n; i++ {
		if err := ca.growFront(); err != nil {
			return nil, err
		}
	}
	return ca, nil
}

func (ca *coreArena[T]) growFront() error {
	s, err := createSlab(ca.backend, ca.g, ca.class)
	if err != nil {
		return err
	}
	ca.list.pushFront(s)
	ca.origins[s.origin] = s
	return nil
}

// allocateRaw implements spec.md §4.3's allocation-side reorganisation
// rule: ensure the head is usable (growing lazily, at the top of this
// call, exactly when the head is exhausted — matching the original C
// pool_object_alloc's own "if (!cache->head->map)" check rather than
// growing eagerly right after the slot that filled it), take a slot from
// it, then if that exhausted the head, rotate it to the tail. The next
// call's own top-of-call check grows further if the new head also turns
// out to be full; this call never grows twice.
func (ca *coreArena[T]) allocateRaw() (unsafe.Pointer, error) {
	if ca.list.head == nil || ca.list.head.isFull() {
		if err := ca.growFront(); err != nil {
			return nil, err
		}
	}
	head := ca.list.head
	p, ok := head.acquireSlot(ca.g)
	if !ok {
		return nil, ErrAllocatorFailure
	}
	if head.isFull() {
		ca.list.rotateHeadToTail()
	}
	if ca.g.referable {
		resetRefcount(p, ca.g)
	}
	return p, nil
}

// releaseRaw implements the release-side reorganisation rule: locate the
// slab via RecoverSlab, clear the slot's bit, and move it to the head
// whenever that release changed its standing — either it had been full
// (spec §4.3's release-side rule) or it just became wholly free. The
// latter matters for reap: reapEmpty halts its walk at the first
// partial slab it finds, so a slab that goes partial→free must surface
// ahead of any partial slab already in front of it, or it can sit
// unreachable behind one forever (see §8's "After reap(c): c contains no
// slab with map == EMPTY_MAP" invariant — the original C keeps wholly
// free slabs on their own dedicated free_list for exactly this reason).
func (ca *coreArena[T]) releaseRaw(p unsafe.Pointer) {
	origin := slabOrigin(p, ca.g)
	s, ok := ca.origins[origin]
	if !ok {
		return // contract violation: block not owned by this arena
	}
	wasFull := s.isFull()
	i := slotIndexOf(p, ca.g)
	s.releaseSlot(i)
	if wasFull || s.isFree() {
		ca.list.moveToFront(s)
	}
}

// getRaw implements object_get's refcount bump; a no-op when the cache
// wasn't created with Referable.
func (ca *coreArena[T]) getRaw(p unsafe.Pointer) {
	if ca.g.referable {
		getRefcount(p, ca.g)
	}
}

// putRaw implements object_put: decrement (when referable) and, if the
// count reaches zero or refcounting is disabled, run the recycler and
// return the slot to the pool. It reports whether the block was released.
func (ca *coreArena[T]) putRaw(p unsafe.Pointer) bool {
	if ca.g.referable && putRefcount(p, ca.g) != 0 {
		return false
	}
	ca.class.callReinit(p)
	ca.releaseRaw(p)
	return true
}

func (ca *coreArena[T]) reap() int {
	reaped := ca.list.reapEmpty()
	for _, s := range reaped {
		delete(ca.origins, s.origin)
		_ = destroySlab(s, ca.backend, ca.g, ca.class)
	}
	return len(reaped)
}

func (ca *coreArena[T]) freeAll() error {
	var errs error
	for cur := ca.list.head; cur != nil; {
		next := cur.next
		if err := destroySlab(cur, ca.backend, ca.g, ca.class); err != nil {
			errs = multierr.Append(errs, err)
		}
		cur = next
	}
	ca.list.head, ca.list.tail = nil, nil
	ca.origins = make(map[uintptr]*Slab)
	return errs
}

func (ca *coreArena[T]) statsRaw() Stats {
	var st Stats
	for s := ca.list.head; s != nil; s = s.next {
		st.SlabCount++
		free := uint32(bits.OnesCount32(atomic.LoadUint32(&s.bitmap)))
		st.FreeBlocks += free
		st.LiveBlocks += slotsPerSlab - free
	}
	return st
}
