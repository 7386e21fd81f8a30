package nodetable

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vmheap/internal/bitset"
)

const (
	// UnitSize is the allocation granularity in bytes.
	UnitSize = 4

	// OffsetBits is the width of a span offset in units.
	OffsetBits = 28
	// SizeBits is the width of a span size in units.
	SizeBits = 26
	// NextBits is the width of a chain link.
	NextBits = 25

	// MaxArenaUnits is the largest arena the offset field can address (1 GiB).
	MaxArenaUnits = 1 << OffsetBits
	// MaxSpanUnits is the largest encodable span (256 MiB - 4 B).
	MaxSpanUnits = 1<<SizeBits - 1
	// MaxIndex is the largest encodable link, and so the largest sentinel.
	MaxIndex = 1<<NextBits - 1

	// DefaultCapacity is the default number of slots (and the sentinel index).
	DefaultCapacity = 100000

	// RecordSize is the packed size of one record in bytes
	// (OffsetBits + 1 + SizeBits + NextBits rounded up to bytes).
	RecordSize = (OffsetBits + 1 + SizeBits + NextBits + 7) / 8
)

var (
	// ErrInvalidConfig is returned when a table configuration violates a ceiling.
	ErrInvalidConfig = errors.New("nodetable: invalid config")
	// ErrCorrupt is returned by Check when an invariant does not hold.
	ErrCorrupt = errors.New("nodetable: corrupt")
)

// Index addresses a slot in the table.
type Index uint32

// Span is one record of the table. Offset and Size are in units.
type Span struct {
	Offset uint32
	Free   bool
	Size   uint32
	Next   Index
}

// End returns the unit offset one past the span.
func (s Span) End() uint32 {
	return s.Offset + s.Size
}

// Contains reports whether the unit offset lies inside the span.
func (s Span) Contains(unit uint32) bool {
	return unit >= s.Offset && unit < s.End()
}

// Entry is a span together with its slot index.
type Entry struct {
	Index Index
	Span
}

// Config describes the table geometry.
type Config struct {
	// Capacity is the number of slots; it doubles as the sentinel index.
	Capacity uint32
	// ArenaUnits is the arena length in units.
	ArenaUnits uint32
	// MaxSpanUnits is the merge ceiling. Zero means MaxSpanUnits.
	MaxSpanUnits uint32
}

// Table is the span node table.
type Table struct {
	spans      []Span
	sentinel   Index
	maxSpan    uint32
	arenaUnits uint32

	unused   *bitset.BitSet // set bit = slot holds no span
	slotHint Index
	spanHint Index
	length   int // spans in the chain
}

// New creates a table and lays the arena out as a chain of free spans.
//
// When the arena fits under the ceiling the chain is a single root span at
// index 0. Otherwise the arena is covered by consecutive ceiling-sized free
// spans followed by a tail; these neighbors can never merge.
func New(cfg Config) (*Table, error) {
	if cfg.MaxSpanUnits == 0 {
		cfg.MaxSpanUnits = MaxSpanUnits
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	t := &Table{
		spans:      make([]Span, cfg.Capacity),
		sentinel:   Index(cfg.Capacity),
		maxSpan:    cfg.MaxSpanUnits,
		arenaUnits: cfg.ArenaUnits,
		unused:     bitset.New(uint64(cfg.Capacity)),
	}
	t.unused.SetAll()

	prev := t.sentinel
	for off := uint32(0); off < cfg.ArenaUnits; {
		size := min(cfg.ArenaUnits-off, cfg.MaxSpanUnits)
		i, _ := t.Acquire() // capacity was validated
		t.spans[i] = Span{Offset: off, Free: true, Size: size, Next: t.sentinel}
		if prev != t.sentinel {
			t.spans[prev].Next = i
		}
		t.length++
		prev = i
		off += size
	}

	return t, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.Capacity == 0 || cfg.Capacity > MaxIndex:
		return fmt.Errorf("%w: capacity %d not in [1, %d]", ErrInvalidConfig, cfg.Capacity, MaxIndex)
	case cfg.ArenaUnits == 0 || cfg.ArenaUnits > MaxArenaUnits:
		return fmt.Errorf("%w: arena of %d units not in [1, %d]", ErrInvalidConfig, cfg.ArenaUnits, MaxArenaUnits)
	case cfg.MaxSpanUnits > MaxSpanUnits:
		return fmt.Errorf("%w: span ceiling %d exceeds %d", ErrInvalidConfig, cfg.MaxSpanUnits, MaxSpanUnits)
	}

	roots := (uint64(cfg.ArenaUnits) + uint64(cfg.MaxSpanUnits) - 1) / uint64(cfg.MaxSpanUnits)
	if roots > uint64(cfg.Capacity) {
		return fmt.Errorf("%w: arena needs %d root spans, capacity is %d", ErrInvalidConfig, roots, cfg.Capacity)
	}
	return nil
}

// Sentinel returns the end-of-chain index.
func (t *Table) Sentinel() Index { return t.sentinel }

// Capacity returns the number of slots.
func (t *Table) Capacity() uint32 { return uint32(t.sentinel) }

// MaxSpanUnits returns the merge ceiling.
func (t *Table) MaxSpanUnits() uint32 { return t.maxSpan }

// ArenaUnits returns the arena length in units.
func (t *Table) ArenaUnits() uint32 { return t.arenaUnits }

// Len returns the number of spans in the chain.
func (t *Table) Len() int { return t.length }

// UsedSlots returns the number of slots holding a span.
func (t *Table) UsedSlots() uint32 {
	return t.Capacity() - uint32(t.unused.Count())
}

// Span returns a copy of the record at i.
func (t *Table) Span(i Index) Span {
	return t.spans[i]
}

// SpanHint returns the first-free-span hint.
func (t *Table) SpanHint() Index { return t.spanHint }

// Walk calls fn for every span in address order until fn returns false.
func (t *Table) Walk(fn func(Entry) bool) {
	for i := Index(0); i != t.sentinel; i = t.spans[i].Next {
		if !fn(Entry{Index: i, Span: t.spans[i]}) {
			return
		}
	}
}

// Entries returns the chain in address order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, t.length)
	t.Walk(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}
