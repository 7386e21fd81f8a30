package vmheap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/vmheap/internal/nodetable"
	"github.com/hupe1980/vmheap/pmm"
)

// Heap is a first-fit virtual-memory allocator over one arena.
type Heap struct {
	mu     sync.Mutex
	table  *nodetable.Table
	mapper pmm.Manager
	closed bool

	base       uintptr
	end        uintptr
	tableBase  uintptr
	tableBytes uintptr
	strict     bool

	logger  *Logger
	metrics MetricsCollector
}

type pageSizer interface {
	PageSize() uintptr
}

// New creates a heap, backs its node table region through the physical
// manager and lays the arena out as free spans.
func New(optFns ...Option) (*Heap, error) {
	o := applyOptions(optFns)
	if err := validate(&o); err != nil {
		return nil, err
	}

	if o.mapper == nil {
		m, err := pmm.NewSimulated()
		if err != nil {
			return nil, err
		}
		o.mapper = m
	}

	table, err := nodetable.New(nodetable.Config{
		Capacity:   o.tableCapacity,
		ArenaUnits: uint32(o.arenaSize / UnitSize),
		// span ceiling was range checked by validate
		MaxSpanUnits: uint32(o.maxSpanSize / UnitSize),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	h := &Heap{
		table:      table,
		mapper:     o.mapper,
		base:       o.arenaBase,
		end:        o.arenaBase + o.arenaSize,
		tableBase:  o.tableBase,
		tableBytes: roundUp(uintptr(o.tableCapacity)*SpanRecordSize, pageSize(o.mapper)),
		strict:     o.strict,
		logger:     o.logger.WithArena(o.arenaBase, o.arenaSize),
		metrics:    o.metrics,
	}

	if h.tableBase+h.tableBytes < h.tableBase || h.overlapsArena(h.tableBase, h.tableBytes) {
		return nil, fmt.Errorf("%w: table region %#x+%#x wraps or overlaps arena", ErrInvalidConfig, h.tableBase, h.tableBytes)
	}
	if err := h.mapper.Map(h.tableBase, h.tableBytes, pmm.PermRW); err != nil {
		return nil, fmt.Errorf("%w: %#x+%#x: %w", ErrTableBootstrap, h.tableBase, h.tableBytes, err)
	}

	h.logger.LogNew(context.Background(), o.tableCapacity, uint64(table.MaxSpanUnits())*UnitSize, table.Len())
	return h, nil
}

func validate(o *options) error {
	switch {
	case o.arenaBase%UnitSize != 0:
		return fmt.Errorf("%w: arena base %#x not %d-byte aligned", ErrInvalidConfig, o.arenaBase, UnitSize)
	case o.arenaSize == 0 || o.arenaSize%UnitSize != 0:
		return fmt.Errorf("%w: arena size %d not a positive multiple of %d", ErrInvalidConfig, o.arenaSize, UnitSize)
	case uint64(o.arenaSize) > MaxArenaSize:
		return fmt.Errorf("%w: arena size %d exceeds %d", ErrInvalidConfig, o.arenaSize, MaxArenaSize)
	case o.arenaBase+o.arenaSize < o.arenaBase:
		return fmt.Errorf("%w: arena %#x+%#x wraps", ErrInvalidConfig, o.arenaBase, o.arenaSize)
	case o.maxSpanSize < UnitSize || o.maxSpanSize > MaxSpanSize:
		return fmt.Errorf("%w: span ceiling %d not in [%d, %d]", ErrInvalidConfig, o.maxSpanSize, UnitSize, MaxSpanSize)
	case !o.tableBaseSet && o.arenaBase < TableRegionSize:
		return fmt.Errorf("%w: arena base %#x leaves no room for the table region", ErrInvalidConfig, o.arenaBase)
	}
	return nil
}

func (h *Heap) overlapsArena(addr, length uintptr) bool {
	return addr < h.end && addr+length > h.base
}

func pageSize(m pmm.Manager) uintptr {
	if ps, ok := m.(pageSizer); ok && ps.PageSize() != 0 {
		return ps.PageSize()
	}
	return pmm.DefaultPageSize
}

func roundUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// ArenaBase returns the first address of the arena.
func (h *Heap) ArenaBase() uintptr { return h.base }

// ArenaSize returns the arena length in bytes.
func (h *Heap) ArenaSize() uintptr { return h.end - h.base }

// Close releases the backing of every live span and of the table region.
// Later calls to Allocate return ErrClosed; Release becomes a no-op.
// Close is idempotent.
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error
	live := 0
	h.table.Walk(func(e nodetable.Entry) bool {
		if e.Free {
			return true
		}
		live++
		if err := h.mapper.Unmap(h.spanAddr(e.Span), h.spanBytes(e.Span)); err != nil {
			errs = append(errs, fmt.Errorf("%w: span %d: %w", ErrUnmapFailed, e.Index, err))
		}
		return true
	})
	if err := h.mapper.Unmap(h.tableBase, h.tableBytes); err != nil {
		errs = append(errs, fmt.Errorf("%w: table region: %w", ErrUnmapFailed, err))
	}

	err := errors.Join(errs...)
	h.logger.LogClose(context.Background(), live, err)
	return err
}

func (h *Heap) spanAddr(s nodetable.Span) uintptr {
	return h.base + uintptr(s.Offset)*UnitSize
}

func (h *Heap) spanBytes(s nodetable.Span) uintptr {
	return uintptr(s.Size) * UnitSize
}

// Stats summarizes the heap.
type Stats struct {
	Spans          int
	FreeSpans      int
	UsedBytes      uint64
	FreeBytes      uint64
	LargestFree    uint64
	UsedSlots      uint32
	Capacity       uint32
	MergeablePairs int
	// ResidentBytes is reported by managers implementing
	// pmm.ResidencyReporter and includes the table region.
	ResidentBytes uint64
}

// Stats returns a summary of the current span chain.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{
		UsedSlots:      h.table.UsedSlots(),
		Capacity:       h.table.Capacity(),
		MergeablePairs: h.table.EligiblePairs(),
	}
	h.table.Walk(func(e nodetable.Entry) bool {
		st.Spans++
		n := uint64(h.spanBytes(e.Span))
		if e.Free {
			st.FreeSpans++
			st.FreeBytes += n
			st.LargestFree = max(st.LargestFree, n)
		} else {
			st.UsedBytes += n
		}
		return true
	})
	if r, ok := h.mapper.(pmm.ResidencyReporter); ok {
		st.ResidentBytes = r.ResidentBytes()
	}
	return st
}

// Check verifies the node table invariants and, when the manager reports
// residency, that every used span and the table region are backed.
func (h *Heap) Check() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.table.Check(); err != nil {
		return err
	}

	r, ok := h.mapper.(pmm.ResidencyReporter)
	if !ok || h.closed {
		return nil
	}
	if !r.Resident(h.tableBase, h.tableBytes) {
		return fmt.Errorf("%w: table region not resident", ErrCorrupt)
	}
	var err error
	h.table.Walk(func(e nodetable.Entry) bool {
		if !e.Free && !r.Resident(h.spanAddr(e.Span), h.spanBytes(e.Span)) {
			err = fmt.Errorf("%w: used span %d at %#x not resident", ErrCorrupt, e.Index, h.spanAddr(e.Span))
			return false
		}
		return true
	})
	return err
}
