package vmheap

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/vmheap/internal/nodetable"
	"github.com/hupe1980/vmheap/pmm"
)

// Allocate reserves at least size bytes of the arena, backs them read-write
// and returns the start address. The address is 4-byte aligned and stays
// owned by the caller until passed to Release.
//
// Errors:
//   - ErrZeroSize for size == 0.
//   - *AllocError (ErrOutOfVirtualSpace) when no free span is large enough.
//   - ErrTableFull when the span must be split and no slot is left.
//   - ErrMapFailed when the physical manager refuses; the heap is unchanged.
//   - ErrClosed after Close.
func (h *Heap) Allocate(size uint64) (uintptr, error) {
	start := time.Now()

	h.mu.Lock()
	addr, err := h.allocate(size)
	h.mu.Unlock()

	h.metrics.RecordAllocate(size, time.Since(start), err)
	h.logger.LogAllocate(context.Background(), size, addr, err)
	return addr, err
}

func (h *Heap) allocate(size uint64) (uintptr, error) {
	if h.closed {
		return 0, ErrClosed
	}
	if size == 0 {
		return 0, ErrZeroSize
	}

	units := toUnits(size)
	if units > uint64(h.table.MaxSpanUnits()) {
		return 0, h.exhausted(size, units)
	}

	i, ok := h.table.FirstFit(uint32(units))
	if !ok {
		return 0, h.exhausted(size, units)
	}

	s := h.table.Span(i)
	remainder := h.table.Sentinel()
	if s.Size > uint32(units) {
		// slot is reserved before anything is touched
		r, ok := h.table.Split(i, uint32(units))
		if !ok {
			return 0, fmt.Errorf("%w: splitting span %d for %d units", ErrTableFull, i, units)
		}
		remainder = r
	}
	h.table.MarkUsed(i)

	s = h.table.Span(i)
	addr, length := h.spanAddr(s), h.spanBytes(s)
	if err := h.mapper.Map(addr, length, pmm.PermRW); err != nil {
		h.rollback(i, remainder)
		return 0, fmt.Errorf("%w: %#x+%#x: %w", ErrMapFailed, addr, length, err)
	}
	return addr, nil
}

// rollback undoes the split and the claim of span i.
func (h *Heap) rollback(i, remainder nodetable.Index) {
	if remainder != h.table.Sentinel() {
		h.table.Unsplit(i, remainder)
	}
	h.table.MarkFree(i)
}

func (h *Heap) exhausted(size, units uint64) error {
	return &AllocError{Size: size, Units: units, LargestFree: h.largestFree()}
}

func (h *Heap) largestFree() uint64 {
	var largest uint64
	h.table.Walk(func(e nodetable.Entry) bool {
		if e.Free {
			largest = max(largest, uint64(h.spanBytes(e.Span)))
		}
		return true
	})
	return largest
}

// toUnits rounds a byte count up to whole units without overflowing.
func toUnits(size uint64) uint64 {
	units := size / UnitSize
	if size%UnitSize != 0 {
		units++
	}
	return units
}
