package heapdump

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned by Verify when a snapshot breaks a heap invariant.
var ErrInvalid = errors.New("heapdump: invalid snapshot")

// Span is one span of the chain. Offset and Size are in units.
type Span struct {
	Index  uint32
	Offset uint32
	Size   uint32
	Next   uint32
	Free   bool
}

// Snapshot is a point-in-time copy of a heap's chain.
type Snapshot struct {
	ArenaBase    uint64
	ArenaSize    uint64
	UnitSize     uint32
	Capacity     uint32 // also the sentinel index
	MaxSpanUnits uint32
	Spans        []Span
}

// Addr returns the byte address of the span.
func (s *Snapshot) Addr(sp Span) uint64 {
	return s.ArenaBase + uint64(sp.Offset)*uint64(s.UnitSize)
}

// Bytes returns the byte length of the span.
func (s *Snapshot) Bytes(sp Span) uint64 {
	return uint64(sp.Size) * uint64(s.UnitSize)
}

// Totals summarizes a snapshot.
type Totals struct {
	Spans       int
	FreeSpans   int
	UsedBytes   uint64
	FreeBytes   uint64
	LargestFree uint64
	// MergeablePairs counts adjacent free spans whose sum fits the ceiling.
	MergeablePairs int
}

// Totals computes summary figures for the snapshot.
func (s *Snapshot) Totals() Totals {
	var t Totals
	for i, sp := range s.Spans {
		t.Spans++
		n := s.Bytes(sp)
		if !sp.Free {
			t.UsedBytes += n
			continue
		}
		t.FreeSpans++
		t.FreeBytes += n
		t.LargestFree = max(t.LargestFree, n)
		if i+1 < len(s.Spans) {
			next := s.Spans[i+1]
			if next.Free && uint64(sp.Size)+uint64(next.Size) <= uint64(s.MaxSpanUnits) {
				t.MergeablePairs++
			}
		}
	}
	return t
}

// Verify checks that the chain starts at index 0, is linked in address order,
// ends at the sentinel, covers the arena exactly and respects the ceiling.
func (s *Snapshot) Verify() error {
	if s.UnitSize == 0 || s.ArenaSize%uint64(s.UnitSize) != 0 {
		return fmt.Errorf("%w: arena size %d not a multiple of unit %d", ErrInvalid, s.ArenaSize, s.UnitSize)
	}
	if len(s.Spans) == 0 {
		return fmt.Errorf("%w: empty chain", ErrInvalid)
	}
	if s.Spans[0].Index != 0 {
		return fmt.Errorf("%w: chain starts at slot %d", ErrInvalid, s.Spans[0].Index)
	}

	seen := make(map[uint32]struct{}, len(s.Spans))
	expect := uint64(0)
	for i, sp := range s.Spans {
		if sp.Index >= s.Capacity {
			return fmt.Errorf("%w: slot %d beyond capacity %d", ErrInvalid, sp.Index, s.Capacity)
		}
		if _, dup := seen[sp.Index]; dup {
			return fmt.Errorf("%w: slot %d appears twice", ErrInvalid, sp.Index)
		}
		seen[sp.Index] = struct{}{}

		switch {
		case sp.Size == 0:
			return fmt.Errorf("%w: slot %d has zero size", ErrInvalid, sp.Index)
		case sp.Size > s.MaxSpanUnits:
			return fmt.Errorf("%w: slot %d size %d exceeds ceiling %d", ErrInvalid, sp.Index, sp.Size, s.MaxSpanUnits)
		case uint64(sp.Offset) != expect:
			return fmt.Errorf("%w: slot %d at unit %d, expected %d", ErrInvalid, sp.Index, sp.Offset, expect)
		}

		want := s.Capacity
		if i+1 < len(s.Spans) {
			want = s.Spans[i+1].Index
		}
		if sp.Next != want {
			return fmt.Errorf("%w: slot %d links to %d, expected %d", ErrInvalid, sp.Index, sp.Next, want)
		}
		expect += uint64(sp.Size)
	}

	if units := s.ArenaSize / uint64(s.UnitSize); expect != units {
		return fmt.Errorf("%w: chain covers %d units, arena has %d", ErrInvalid, expect, units)
	}
	return nil
}
