package nodetable

import "fmt"

// Check verifies the structural invariants of the table: a single acyclic
// chain from index 0 in strictly increasing address order, exact coverage of
// the arena, the size ceiling, slot accounting and both hints.
func (t *Table) Check() error {
	seen := make(map[Index]struct{}, t.length)
	expect := uint32(0)
	hintSeen := false
	n := 0

	for i := Index(0); i != t.sentinel; i = t.spans[i].Next {
		if uint32(i) > uint32(t.sentinel) {
			return fmt.Errorf("%w: link %d out of range", ErrCorrupt, i)
		}
		if _, dup := seen[i]; dup {
			return fmt.Errorf("%w: cycle at slot %d", ErrCorrupt, i)
		}
		seen[i] = struct{}{}

		s := t.spans[i]
		switch {
		case s.Size == 0:
			return fmt.Errorf("%w: unused slot %d linked into chain", ErrCorrupt, i)
		case s.Size > t.maxSpan:
			return fmt.Errorf("%w: slot %d size %d exceeds ceiling %d", ErrCorrupt, i, s.Size, t.maxSpan)
		case s.Offset != expect:
			return fmt.Errorf("%w: slot %d at unit %d, expected %d", ErrCorrupt, i, s.Offset, expect)
		case t.unused.Test(uint64(i)):
			return fmt.Errorf("%w: chain slot %d marked unused", ErrCorrupt, i)
		}

		if i == t.spanHint {
			hintSeen = true
		}
		if s.Free && !hintSeen {
			return fmt.Errorf("%w: free slot %d precedes span hint %d", ErrCorrupt, i, t.spanHint)
		}

		expect = s.End()
		n++
	}

	if expect != t.arenaUnits {
		return fmt.Errorf("%w: chain covers %d units, arena has %d", ErrCorrupt, expect, t.arenaUnits)
	}
	if !hintSeen {
		return fmt.Errorf("%w: span hint %d not in chain", ErrCorrupt, t.spanHint)
	}
	if n != t.length {
		return fmt.Errorf("%w: chain has %d spans, length is %d", ErrCorrupt, n, t.length)
	}
	if uint32(n) != t.UsedSlots() {
		return fmt.Errorf("%w: %d spans but %d used slots", ErrCorrupt, n, t.UsedSlots())
	}

	for i := Index(0); i < t.slotHint && i < t.sentinel; i++ {
		if t.unused.Test(uint64(i)) {
			return fmt.Errorf("%w: unused slot %d below slot hint %d", ErrCorrupt, i, t.slotHint)
		}
	}
	for i := range t.spans {
		if _, live := seen[Index(i)]; !live && t.spans[i] != (Span{}) {
			return fmt.Errorf("%w: slot %d outside chain is not zeroed", ErrCorrupt, i)
		}
	}

	return nil
}
