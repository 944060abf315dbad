package slabpool

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type widget struct {
	ID    int32
	Alive bool
}

func TestCache_ReferableAllocGetPutRoundTrip(t *testing.T) {
	class := Class[widget]{
		Align: 16,
		Ctor:  func(_ any, v *widget) { v.Alive = true },
	}
	c, err := CreateSimple(Referable, class, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Free() })

	v, err := c.Alloc()
	require.NoError(t, err)
	assert.True(t, v.Alive)
	assert.Zero(t, uintptr(unsafe.Pointer(v))%16, "block must respect requested alignment")

	c.Get(v)           // refcount: 2
	assert.Equal(t, v, c.Put(v)) // still referenced, not released
	assert.Nil(t, c.Put(v))      // now released
}

func TestCache_CtorDtorCounterInvariant(t *testing.T) {
	var ctors, dtors int
	class := Class[widget]{
		Ctor: func(_ any, _ *widget) { ctors++ },
		Dtor: func(_ any, _ *widget) { dtors++ },
	}
	c, err := CreateSimple[widget](0, class, 0)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := c.Alloc()
		require.NoError(t, err)
	}
	assert.Equal(t, slotsPerSlab, ctors) // one slab, created by the first Alloc
	require.NoError(t, c.Free())
	assert.Equal(t, slotsPerSlab, dtors)
}

func TestCache_ThirtyThreeAllocationsSpanTwoSlabs(t *testing.T) {
	class := Class[int64]{}
	c, err := CreateSimple[int64](0, class, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Free() })

	for i := 0; i < slotsPerSlab+1; i++ {
		_, err := c.Alloc()
		require.NoError(t, err)
	}
	st := c.Stats()
	assert.Equal(t, 2, st.SlabCount)
	assert.EqualValues(t, slotsPerSlab+1, st.LiveBlocks)
}

func TestCache_AllocThenReverseReleaseThenReap(t *testing.T) {
	class := Class[int64]{}
	c, err := CreateSimple[int64](0, class, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Free() })

	blocks := make([]*int64, slotsPerSlab)
	for i := range blocks {
		v, err := c.Alloc()
		require.NoError(t, err)
		blocks[i] = v
	}
	for i := len(blocks) - 1; i >= 0; i-- {
		assert.Nil(t, c.Put(blocks[i]))
	}

	destroyed := c.Reap()
	assert.Equal(t, 1, destroyed)
	assert.Equal(t, 0, c.Stats().SlabCount)
}

func TestCache_LockableConcurrentStress(t *testing.T) {
	class := Class[int64]{}
	c, err := CreateLockable[int64](0, class, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Free() })

	const workers = 2
	const cycles = 1000
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < cycles; i++ {
				v, err := c.Alloc()
				if err != nil {
					return err
				}
				*v = int64(i)
				c.Put(v)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestCache_LocklessConcurrentMixedOps(t *testing.T) {
	class := Class[int64]{}
	c, err := CreateLockless[int64](0, class, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Free() })

	const workers = 8
	const cycles = 500
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			live := make([]*int64, 0, 8)
			for i := 0; i < cycles; i++ {
				if len(live) < 8 {
					v, err := c.Alloc()
					if err != nil {
						return err
					}
					live = append(live, v)
				} else {
					v := live[0]
					live = live[1:]
					c.Put(v)
				}
			}
			for _, v := range live {
				c.Put(v)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestCache_ZonedCrossGoroutinePutIsNoOpOnForeignBlock(t *testing.T) {
	class := Class[int64]{}
	c, err := CreateZoned[int64](0, class, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Free() })

	v, err := c.Alloc()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Release build: checkZoneOwnership is a no-op, so this only
		// verifies the call doesn't panic outside slabpool_debug builds.
		c.Put(v)
	}()
	<-done
}

func TestCache_FreeIsIdempotent(t *testing.T) {
	class := Class[int64]{}
	c, err := CreateLockable[int64](0, class, 0)
	require.NoError(t, err)
	require.NoError(t, c.Free())
	require.NoError(t, c.Free())

	_, err = c.Alloc()
	assert.ErrorIs(t, err, ErrPoisonedCache)
}

func TestNewGeometry_RejectsZeroBlockSizeThroughCreate(t *testing.T) {
	_, err := CreateSimple[struct{}](0, Class[struct{}]{}, 0)
	assert.ErrorIs(t, err, ErrZeroBlockSize)
}
