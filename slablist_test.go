package slabpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlabList_RotateHeadToTail(t *testing.T) {
	var l slabList
	a, b, c := &Slab{}, &Slab{}, &Slab{}
	l.pushFront(b)
	l.pushFront(a) // order: a, b
	l.pushBack(c)  // order: a, b, c

	l.rotateHeadToTail()
	assert.Same(t, b, l.head)
	assert.Same(t, a, l.tail)
}

func TestSlabList_MoveToFrontIsNoOpAtHead(t *testing.T) {
	var l slabList
	a, b := &Slab{}, &Slab{}
	l.pushFront(b)
	l.pushFront(a)
	l.moveToFront(a)
	assert.Same(t, a, l.head)
	assert.Same(t, b, l.tail)
}

func TestSlabList_ReapEmptySkipsFullAndHaltsAtPartial(t *testing.T) {
	var l slabList
	free1 := &Slab{bitmap: emptyMap}
	full := &Slab{bitmap: fullMap}
	partial := &Slab{bitmap: emptyMap &^ 1}
	free2 := &Slab{bitmap: emptyMap}

	l.pushBack(free1)
	l.pushBack(full)
	l.pushBack(partial)
	l.pushBack(free2)

	reaped := l.reapEmpty()
	assert.Equal(t, []*Slab{free1}, reaped)
	// full was skipped in place, walk halted at partial: free2 untouched.
	assert.Same(t, full, l.head)
}
