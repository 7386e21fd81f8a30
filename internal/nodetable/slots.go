package nodetable

// Acquire returns the lowest unused slot. It returns false when every slot is
// in use; the table has no way to grow.
func (t *Table) Acquire() (Index, bool) {
	next := t.unused.NextSetBit(uint64(t.slotHint))
	if next < 0 {
		t.slotHint = t.sentinel
		return t.sentinel, false
	}

	i := Index(next)
	t.unused.Unset(uint64(i))
	t.slotHint = i + 1
	return i, true
}

// Release resets the slot to the unused state.
func (t *Table) Release(i Index) {
	t.spans[i] = Span{}
	t.unused.Set(uint64(i))
	if i < t.slotHint {
		t.slotHint = i
	}
}
