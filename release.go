package vmheap

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/vmheap/internal/nodetable"
)

// Release returns the span containing addr to the arena. Its pages are
// released through the physical manager and the span is merged with free
// neighbors while the merged size fits the span ceiling.
//
// Addresses outside the arena and spans that are already free are ignored,
// unless the heap was built WithStrictRelease, which reports them as
// ErrForeignAddress and ErrDoubleRelease. An unmap failure is reported as
// ErrUnmapFailed after the span has been freed. Release on a closed heap
// does nothing.
func (h *Heap) Release(addr uintptr) error {
	start := time.Now()

	h.mu.Lock()
	n, err := h.release(addr)
	h.mu.Unlock()

	h.metrics.RecordRelease(n, time.Since(start), err)
	h.logger.LogRelease(context.Background(), addr, n, err)
	return err
}

func (h *Heap) release(addr uintptr) (uint64, error) {
	if h.closed {
		return 0, nil
	}
	if addr < h.base || addr >= h.end {
		if h.strict {
			return 0, fmt.Errorf("%w: %#x", ErrForeignAddress, addr)
		}
		return 0, nil
	}

	t := h.table
	unit := uint32((addr - h.base) / UnitSize)

	// Walk to the span containing unit, folding already-free neighbors
	// together on the way.
	prev, cur := t.Sentinel(), nodetable.Index(0)
	for {
		s := t.Span(cur)
		if s.Contains(unit) {
			break
		}
		if t.Merge(cur, s.Next) {
			continue
		}
		prev, cur = cur, s.Next
	}

	s := t.Span(cur)
	if s.Free {
		if h.strict {
			return 0, fmt.Errorf("%w: %#x in span %d", ErrDoubleRelease, addr, cur)
		}
		return 0, nil
	}

	var err error
	start, length := h.spanAddr(s), h.spanBytes(s)
	if uerr := h.mapper.Unmap(start, length); uerr != nil {
		err = fmt.Errorf("%w: %#x+%#x: %w", ErrUnmapFailed, start, length, uerr)
	}
	t.MarkFree(cur)

	if t.Merge(prev, cur) {
		cur = prev
	}
	for t.Merge(cur, t.Span(cur).Next) {
	}

	return uint64(length), err
}
