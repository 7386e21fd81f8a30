package pmm

import (
	"fmt"
	"math/bits"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/vmheap/internal/conv"
	"github.com/hupe1980/vmheap/internal/resource"
)

// pageTracker reference counts pages and keeps the resident set.
type pageTracker struct {
	shift    uint
	refs     map[uint64]uint32
	resident *roaring64.Bitmap
	budget   *resource.Controller
}

func newPageTracker(pageSize uintptr, limit int64) (*pageTracker, error) {
	if pageSize == 0 || pageSize&(pageSize-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}
	p := &pageTracker{
		shift:    uint(bits.TrailingZeros64(uint64(pageSize))),
		refs:     make(map[uint64]uint32),
		resident: roaring64.New(),
	}
	if limit > 0 {
		p.budget = resource.NewController(resource.Config{MemoryLimitBytes: limit})
	}
	return p, nil
}

func (p *pageTracker) pageSize() uint64 {
	return 1 << p.shift
}

// bounds returns the page numbers [first, end) covering the byte range.
func (p *pageTracker) bounds(addr, length uintptr) (uint64, uint64, error) {
	start := uint64(addr)
	stop := start + uint64(length)
	if stop < start {
		return 0, 0, fmt.Errorf("%w: %#x+%#x wraps", ErrOutOfRange, addr, length)
	}
	first := start >> p.shift
	end := (stop + p.pageSize() - 1) >> p.shift
	return first, end, nil
}

// acquire takes a reference on every page of the range and returns the pages
// that became resident. Nothing changes when the budget is exhausted.
func (p *pageTracker) acquire(addr, length uintptr) ([]uint64, error) {
	first, end, err := p.bounds(addr, length)
	if err != nil {
		return nil, err
	}

	var fresh []uint64
	for pg := first; pg < end; pg++ {
		if p.refs[pg] == 0 {
			fresh = append(fresh, pg)
		}
	}
	if err := p.charge(len(fresh)); err != nil {
		return nil, err
	}

	for pg := first; pg < end; pg++ {
		p.refs[pg]++
	}
	for _, pg := range fresh {
		p.resident.Add(pg)
	}
	return fresh, nil
}

// undo reverses a successful acquire of the same range.
func (p *pageTracker) undo(addr, length uintptr) {
	_, _ = p.release(addr, length)
}

// release drops a reference on every page of the range and returns the pages
// that are no longer resident. Nothing changes if any page is not mapped.
func (p *pageTracker) release(addr, length uintptr) ([]uint64, error) {
	first, end, err := p.bounds(addr, length)
	if err != nil {
		return nil, err
	}

	for pg := first; pg < end; pg++ {
		if p.refs[pg] == 0 {
			return nil, fmt.Errorf("%w: page %#x", ErrNotMapped, pg<<p.shift)
		}
	}

	var gone []uint64
	for pg := first; pg < end; pg++ {
		p.refs[pg]--
		if p.refs[pg] == 0 {
			delete(p.refs, pg)
			p.resident.Remove(pg)
			gone = append(gone, pg)
		}
	}
	p.refund(len(gone))
	return gone, nil
}

func (p *pageTracker) charge(pages int) error {
	if pages == 0 {
		return nil
	}
	bytes, err := conv.Uint64ToInt64(uint64(pages) << p.shift)
	if err != nil {
		return err
	}
	return p.budget.AcquireMemory(bytes)
}

func (p *pageTracker) refund(pages int) {
	if pages == 0 {
		return
	}
	bytes, err := conv.Uint64ToInt64(uint64(pages) << p.shift)
	if err != nil {
		return
	}
	p.budget.ReleaseMemory(bytes)
}

func (p *pageTracker) residentBytes() uint64 {
	return p.resident.GetCardinality() << p.shift
}

func (p *pageTracker) isResident(addr, length uintptr) bool {
	first, end, err := p.bounds(addr, length)
	if err != nil {
		return false
	}
	if end == first {
		return true
	}
	// Rank(x) counts members <= x
	have := p.resident.Rank(end-1) - p.rankBefore(first)
	return have == end-first
}

func (p *pageTracker) rankBefore(pg uint64) uint64 {
	if pg == 0 {
		return 0
	}
	return p.resident.Rank(pg - 1)
}

// runs groups sorted page numbers into contiguous [start, end) runs.
func runs(pages []uint64) [][2]uint64 {
	var out [][2]uint64
	for _, pg := range pages {
		if n := len(out); n > 0 && out[n-1][1] == pg {
			out[n-1][1]++
			continue
		}
		out = append(out, [2]uint64{pg, pg + 1})
	}
	return out
}
