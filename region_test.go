//go:build unix

package vmheap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vmheap/pmm"
)

func TestHeap_RegionBacked(t *testing.T) {
	region, err := pmm.Reserve(4 << 20)
	if errors.Is(err, pmm.ErrUnsupported) {
		t.Skip("mmap reservations not supported")
	}
	require.NoError(t, err)
	defer region.Close()

	h, err := New(
		WithPhysicalMemory(region),
		WithTableBase(region.Base()),
		WithArenaBase(region.Base()+TableRegionSize),
		WithArenaSize(region.Size()-TableRegionSize),
	)
	require.NoError(t, err)

	// a spans two full pages and part of a third, b starts on that third page
	ps := region.PageSize()
	n := 2*ps + 100
	a := mustAllocate(t, h, uint64(n))
	b := mustAllocate(t, h, 64)

	buf, err := region.Bytes(a, n)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = byte(i)
	}
	small, err := region.Bytes(b, 64)
	require.NoError(t, err)
	small[0] = 0xAA

	again, err := region.Bytes(a, n)
	require.NoError(t, err)
	assert.Equal(t, byte((n-1)%256), again[n-1])

	mustRelease(t, h, a)
	assert.True(t, region.Resident(b, 64))
	assert.False(t, region.Resident(a, ps))

	mustRelease(t, h, b)
	require.NoError(t, h.Close())
	assert.Zero(t, region.ResidentBytes())
}
