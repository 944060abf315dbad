// Package hazard implements a small hazard-pointer registry protecting the
// lockless arena's Treiber stacks from use-after-free during concurrent
// pop/reclaim races.
//
// The registration discipline is grounded on the teacher's
// foundation.EnhancedEpoch: a mutex-guarded registry that readers join
// (the lockless arena registers one handle per operation, via
// Registry.Handle) and whose hazard slots they then set and clear
// lock-free via atomics. There is no reader count: walking the handle
// list (scan, used by Retire and Quiesce) takes the same mutex as
// registration and deregistration. Where EnhancedEpoch's writer waits for
// *notification of change*, the hazard registry's writer (Retire) waits
// for *absence of reference* — same registration skeleton, opposite
// condition.
package hazard

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// K is the number of hazard slots each registered handle carries. Three
// matches the spec's "K (=3)". The lockless arena's Treiber pop uses only
// slot 0, for the node currently being popped; slots 1 and 2 are unused.
const K = 3

// Handle is a per-goroutine (conceptually: per-thread) set of hazard
// slots. Obtain one from Registry.Handle and reuse it for the lifetime of
// the goroutine; registering repeatedly is wasteful but not incorrect.
type Handle struct {
	slots [K]atomic.Pointer[byte]
	reg   *Registry
	next  *Handle
	prev  *Handle
}

// Protect announces that the calling goroutine is about to dereference p
// and must not have it reclaimed out from under it. slot selects which of
// the handle's K hazard slots to use.
func (h *Handle) Protect(slot int, p unsafe.Pointer) {
	h.slots[slot].Store((*byte)(p))
}

// Clear releases the hazard previously announced in slot.
func (h *Handle) Clear(slot int) {
	h.slots[slot].Store(nil)
}

// Release removes the handle from its registry. Call when the owning
// goroutine is done using the arena (the lockless arena releases its
// handle at the end of each operation).
func (h *Handle) Release() {
	h.reg.deregister(h)
}

// Registry is the per-process (here: per-arena) hazard-pointer registry:
// a doubly-linked list of live handles plus a pending retire list.
type Registry struct {
	mu       sync.Mutex // orders registration/deregistration, per spec §4.5
	head     *Handle
	retireMu sync.Mutex
	retired  []retiredNode
}

type retiredNode struct {
	ptr     unsafe.Pointer
	reclaim func()
}

// New returns an empty hazard-pointer registry.
func New() *Registry {
	return &Registry{}
}

// Handle registers a new handle for the calling goroutine.
func (r *Registry) Handle() *Handle {
	h := &Handle{reg: r}
	r.mu.Lock()
	h.next = r.head
	if r.head != nil {
		r.head.prev = h
	}
	r.head = h
	r.mu.Unlock()
	return h
}

func (r *Registry) deregister(h *Handle) {
	r.mu.Lock()
	if h.prev != nil {
		h.prev.next = h.next
	} else {
		r.head = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	}
	h.next, h.prev = nil, nil
	r.mu.Unlock()
}

// scan returns the set of pointers currently protected by any live handle.
// It takes r.mu so the registry's list can't mutate mid-walk; readers
// of the individual slots remain lock-free (that's the point of the
// design), so a caller only ever blocks briefly on the list structure, not
// on a contended reader.
func (r *Registry) scan() map[unsafe.Pointer]struct{} {
	live := make(map[unsafe.Pointer]struct{})
	r.mu.Lock()
	for h := r.head; h != nil; h = h.next {
		for i := range h.slots {
			if p := h.slots[i].Load(); p != nil {
				live[unsafe.Pointer(p)] = struct{}{}
			}
		}
	}
	r.mu.Unlock()
	return live
}

// Retire schedules reclaim to run once no handle holds a hazard pointing
// at p. If p is already unprotected, reclaim runs immediately (inline, on
// the caller's goroutine). Otherwise it is deferred and re-attempted the
// next time Retire runs, which bounds the number of outstanding
// retired nodes to the number of concurrent pop races rather than letting
// them accumulate unboundedly.
func (r *Registry) Retire(p unsafe.Pointer, reclaim func()) {
	r.retireMu.Lock()
	r.retired = append(r.retired, retiredNode{ptr: p, reclaim: reclaim})
	pending := r.retired
	r.retired = nil
	r.retireMu.Unlock()

	live := r.scan()
	var stillPending []retiredNode
	for _, n := range pending {
		if _, hazarded := live[n.ptr]; hazarded {
			stillPending = append(stillPending, n)
			continue
		}
		n.reclaim()
	}
	if len(stillPending) > 0 {
		r.retireMu.Lock()
		r.retired = append(r.retired, stillPending...)
		r.retireMu.Unlock()
	}
}

// Quiesce blocks until no handle holds any hazard pointer at all. It is
// used by Cache.Free to guarantee every slab can be safely destroyed, not
// just the ones currently mid-pop.
func (r *Registry) Quiesce() {
	for {
		if len(r.scan()) == 0 {
			return
		}
		runtime.Gosched()
	}
}
