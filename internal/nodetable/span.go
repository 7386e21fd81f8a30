package nodetable

// FirstFit returns the lowest-address free span of at least units, walking
// from the span hint.
func (t *Table) FirstFit(units uint32) (Index, bool) {
	return t.firstFitFrom(t.spanHint, units)
}

func (t *Table) firstFitFrom(start Index, units uint32) (Index, bool) {
	moved := false
	for i := start; i != t.sentinel; i = t.spans[i].Next {
		s := t.spans[i]
		if !s.Free {
			continue
		}
		if !moved {
			// first free span on the walk is the tightest lower bound
			t.spanHint = i
			moved = true
		}
		if s.Size >= units {
			return i, true
		}
	}
	return t.sentinel, false
}

// Split shrinks the free span at i to units and inserts the remainder as a
// new free span right after it. It requires Size > units and returns false,
// leaving the table untouched, if no slot is available for the remainder.
func (t *Table) Split(i Index, units uint32) (Index, bool) {
	s := t.spans[i]
	if units == 0 || s.Size <= units {
		return t.sentinel, false
	}

	r, ok := t.Acquire()
	if !ok {
		return t.sentinel, false
	}

	t.spans[r] = Span{
		Offset: s.Offset + units,
		Free:   true,
		Size:   s.Size - units,
		Next:   s.Next,
	}
	t.spans[i].Size = units
	t.spans[i].Next = r
	t.length++
	return r, true
}

// Unsplit undoes Split(i, ...) that produced r.
func (t *Table) Unsplit(i, r Index) {
	t.spans[i].Size += t.spans[r].Size
	t.spans[i].Next = t.spans[r].Next
	if t.spanHint == r {
		t.spanHint = i
	}
	t.Release(r)
	t.length--
}

// MarkUsed clears the free flag of the span at i.
func (t *Table) MarkUsed(i Index) {
	t.spans[i].Free = false
	if t.spanHint == i && t.spans[i].Next != t.sentinel {
		t.spanHint = t.spans[i].Next
	}
}

// MarkFree sets the free flag of the span at i and lowers the span hint.
func (t *Table) MarkFree(i Index) {
	t.spans[i].Free = true
	if t.spans[i].Offset < t.spans[t.spanHint].Offset {
		t.spanHint = i
	}
}

// CanMerge reports whether b directly follows a, both are free and the
// combined size stays within the ceiling.
func (t *Table) CanMerge(a, b Index) bool {
	if a == t.sentinel || b == t.sentinel {
		return false
	}
	sa, sb := t.spans[a], t.spans[b]
	if sa.Next != b || !sa.Free || !sb.Free {
		return false
	}
	return uint64(sa.Size)+uint64(sb.Size) <= uint64(t.maxSpan)
}

// Merge absorbs b into a and reclaims b's slot. It returns false and does
// nothing when CanMerge(a, b) is false.
func (t *Table) Merge(a, b Index) bool {
	if !t.CanMerge(a, b) {
		return false
	}
	t.spans[a].Size += t.spans[b].Size
	t.spans[a].Next = t.spans[b].Next
	if t.spanHint == b {
		t.spanHint = a
	}
	t.Release(b)
	t.length--
	return true
}

// EligiblePairs counts adjacent free spans that could still be merged.
func (t *Table) EligiblePairs() int {
	n := 0
	for i := Index(0); t.spans[i].Next != t.sentinel; i = t.spans[i].Next {
		if t.CanMerge(i, t.spans[i].Next) {
			n++
		}
	}
	return n
}
