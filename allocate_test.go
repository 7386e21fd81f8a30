package vmheap

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vmheap/pmm"
)

func TestAllocateRelease_RoundTrip(t *testing.T) {
	h, sim := newTestHeap(t, WithArenaSize(1024))
	initial := h.Snapshot()
	resident := sim.ResidentBytes()

	a := mustAllocate(t, h, 100)
	assert.Equal(t, testBase, a)

	b := mustAllocate(t, h, 200)
	assert.Equal(t, testBase+100, b)

	mustRelease(t, h, a)
	snap := h.Snapshot()
	require.Len(t, snap.Spans, 3)
	assert.True(t, snap.Spans[0].Free)
	assert.Equal(t, uint32(25), snap.Spans[0].Size)
	assert.False(t, snap.Spans[1].Free)
	assert.Equal(t, uint32(50), snap.Spans[1].Size)
	assert.True(t, snap.Spans[2].Free)
	assert.Equal(t, uint32(181), snap.Spans[2].Size)

	mustRelease(t, h, b)
	if diff := cmp.Diff(initial, h.Snapshot()); diff != "" {
		t.Errorf("final snapshot differs from initial (-want +got):\n%s", diff)
	}
	assert.Equal(t, resident, sim.ResidentBytes())
}

func TestAllocate_Rounding(t *testing.T) {
	h, _ := newTestHeap(t, WithArenaSize(1024))

	for i, size := range []uint64{1, 2, 3, 4, 5} {
		addr := mustAllocate(t, h, size)
		assert.Equal(t, testBase+uintptr(i)*UnitSize, addr, "size %d", size)
		assert.Zero(t, addr%UnitSize)
	}
	// the 5-byte request took two units
	assert.Equal(t, testBase+24, mustAllocate(t, h, 4))
}

func TestAllocate_ZeroSize(t *testing.T) {
	h, _ := newTestHeap(t, WithArenaSize(1024))
	before := h.Snapshot()

	_, err := h.Allocate(0)
	assert.ErrorIs(t, err, ErrZeroSize)
	assert.Empty(t, cmp.Diff(before, h.Snapshot()))
}

func TestAllocate_ExactFit(t *testing.T) {
	h, _ := newTestHeap(t, WithArenaSize(1024))

	a := mustAllocate(t, h, 1024)
	assert.Equal(t, testBase, a)
	st := h.Stats()
	assert.Equal(t, 1, st.Spans)
	assert.Equal(t, uint32(1), st.UsedSlots)

	_, err := h.Allocate(1)
	var ae *AllocError
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, ErrOutOfVirtualSpace)
	assert.Equal(t, uint64(1), ae.Units)
	assert.Zero(t, ae.LargestFree)

	mustRelease(t, h, a)

	// one unit too large
	_, err = h.Allocate(1025)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, uint64(1025), ae.Size)
	assert.Equal(t, uint64(257), ae.Units)
	assert.Equal(t, uint64(1024), ae.LargestFree)

	// rounds up to exactly the arena
	assert.Equal(t, testBase, mustAllocate(t, h, 1021))
}

func TestAllocate_FirstFit(t *testing.T) {
	h, _ := newTestHeap(t, WithArenaSize(1024))

	a := mustAllocate(t, h, 100)
	mustAllocate(t, h, 100)
	mustAllocate(t, h, 100)
	mustRelease(t, h, a)

	// lowest address hole that fits
	assert.Equal(t, testBase, mustAllocate(t, h, 40))
	// the 60-byte hole left behind is too small
	assert.Equal(t, testBase+300, mustAllocate(t, h, 100))
	// and is taken exactly by a request that fits it
	assert.Equal(t, testBase+40, mustAllocate(t, h, 60))
}

func TestAllocate_Deterministic(t *testing.T) {
	run := func() []uintptr {
		h, _ := newTestHeap(t, WithArenaSize(64<<10))
		var out []uintptr
		var live []uintptr
		for i := range 200 {
			if i%3 == 2 && len(live) > 0 {
				mustRelease(t, h, live[0])
				live = live[1:]
				continue
			}
			addr := mustAllocate(t, h, uint64(1+i*7%300))
			out = append(out, addr)
			live = append(live, addr)
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestAllocate_SpanCeiling(t *testing.T) {
	h, _ := newTestHeap(t, WithArenaSize(1024), WithMaxSpanSize(64))

	st := h.Stats()
	assert.Equal(t, 16, st.Spans)
	assert.Equal(t, uint64(64), st.LargestFree)

	_, err := h.Allocate(68)
	var ae *AllocError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, uint64(17), ae.Units)

	_, err = h.Allocate(math.MaxUint64)
	assert.ErrorIs(t, err, ErrOutOfVirtualSpace)

	assert.Equal(t, testBase, mustAllocate(t, h, 64))
	assert.Equal(t, testBase+64, mustAllocate(t, h, 64))
}

func TestAllocate_TableFull(t *testing.T) {
	h, _ := newTestHeap(t, WithArenaSize(1024), WithTableCapacity(2))

	mustAllocate(t, h, 4)
	before := h.Snapshot()

	_, err := h.Allocate(4)
	assert.ErrorIs(t, err, ErrTableFull)
	assert.NotErrorIs(t, err, ErrOutOfVirtualSpace)
	if diff := cmp.Diff(before, h.Snapshot()); diff != "" {
		t.Errorf("table changed after ErrTableFull (-want +got):\n%s", diff)
	}
	require.NoError(t, h.Check())

	// an exact fit needs no slot
	assert.Equal(t, testBase+4, mustAllocate(t, h, 1020))
	assert.Zero(t, h.Stats().FreeSpans)
}

func TestAllocate_MapFailureRollsBack(t *testing.T) {
	refused := errors.New("no frames")
	var fail atomic.Bool
	sim, err := pmm.NewSimulated(pmm.WithFaultInjector(func(op pmm.Op, _, _ uintptr) error {
		if op == pmm.OpMap && fail.Load() {
			return refused
		}
		return nil
	}))
	require.NoError(t, err)
	h := newTestHeapWith(t, sim, WithArenaSize(1024))

	mustAllocate(t, h, 100)

	for _, size := range []uint64{100, 924} {
		before := h.Snapshot()
		fail.Store(true)
		_, err = h.Allocate(size)
		fail.Store(false)

		assert.ErrorIs(t, err, ErrMapFailed)
		assert.ErrorIs(t, err, refused)
		if diff := cmp.Diff(before, h.Snapshot()); diff != "" {
			t.Errorf("size %d: table changed after map failure (-want +got):\n%s", size, diff)
		}
		require.NoError(t, h.Check())
	}

	assert.Equal(t, testBase+100, mustAllocate(t, h, 100))
}

func TestAllocate_MemoryLimit(t *testing.T) {
	// one page for the table region, one for the arena
	sim, err := pmm.NewSimulated(pmm.WithMemoryLimit(2 * pmm.DefaultPageSize))
	require.NoError(t, err)
	h := newTestHeapWith(t, sim, WithArenaSize(64<<10), WithTableCapacity(100))

	a := mustAllocate(t, h, pmm.DefaultPageSize)
	before := h.Snapshot()

	_, err = h.Allocate(4)
	assert.ErrorIs(t, err, ErrMapFailed)
	assert.ErrorIs(t, err, pmm.ErrMemoryLimitExceeded)
	assert.Empty(t, cmp.Diff(before, h.Snapshot()))

	mustRelease(t, h, a)
	assert.Equal(t, testBase, mustAllocate(t, h, 4))
}

func TestAllocate_Metrics(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	h, _ := newTestHeap(t, WithArenaSize(1024), WithMetricsCollector(metrics))

	a := mustAllocate(t, h, 100)
	_, err := h.Allocate(2048)
	require.Error(t, err)
	_, err = h.Allocate(0)
	require.Error(t, err)
	mustRelease(t, h, a)
	mustRelease(t, h, a)

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats.AllocateCount)
	assert.Equal(t, int64(2), stats.AllocateErrors)
	assert.Equal(t, int64(1), stats.AllocateExhausted)
	assert.Equal(t, int64(100), stats.AllocateBytes)
	assert.Equal(t, int64(2), stats.ReleaseCount)
	assert.Equal(t, int64(100), stats.ReleaseBytes)
	assert.Zero(t, stats.ReleaseErrors)
}
