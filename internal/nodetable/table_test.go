package nodetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T, capacity, arenaUnits, ceiling uint32) *Table {
	t.Helper()
	tbl, err := New(Config{Capacity: capacity, ArenaUnits: arenaUnits, MaxSpanUnits: ceiling})
	require.NoError(t, err)
	require.NoError(t, tbl.Check())
	return tbl
}

func TestNew(t *testing.T) {
	t.Run("single root span", func(t *testing.T) {
		tbl := newTable(t, 16, 256, 0)

		assert.Equal(t, Index(16), tbl.Sentinel())
		assert.Equal(t, uint32(MaxSpanUnits), tbl.MaxSpanUnits())
		assert.Equal(t, 1, tbl.Len())
		assert.Equal(t, uint32(1), tbl.UsedSlots())
		assert.Equal(t, Span{Offset: 0, Free: true, Size: 256, Next: 16}, tbl.Span(0))
	})

	t.Run("arena larger than ceiling", func(t *testing.T) {
		tbl := newTable(t, 16, 100, 32)

		entries := tbl.Entries()
		require.Len(t, entries, 4)
		assert.Equal(t, uint32(32), entries[0].Size)
		assert.Equal(t, uint32(32), entries[1].Size)
		assert.Equal(t, uint32(32), entries[2].Size)
		assert.Equal(t, uint32(4), entries[3].Size)
		assert.Equal(t, uint32(96), entries[3].Offset)
		assert.Equal(t, 0, tbl.EligiblePairs())
	})

	t.Run("default geometry", func(t *testing.T) {
		tbl := newTable(t, DefaultCapacity, MaxArenaUnits, 0)

		// 1 GiB does not fit a 26-bit span: four full spans plus a 4-unit tail
		assert.Equal(t, 5, tbl.Len())
		last := tbl.Entries()[4]
		assert.Equal(t, uint32(4), last.Size)
		assert.Equal(t, Index(DefaultCapacity), last.Next)
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  Config
		}{
			{"zero capacity", Config{Capacity: 0, ArenaUnits: 8}},
			{"capacity over link width", Config{Capacity: MaxIndex + 1, ArenaUnits: 8}},
			{"empty arena", Config{Capacity: 8, ArenaUnits: 0}},
			{"arena over offset width", Config{Capacity: 8, ArenaUnits: MaxArenaUnits + 1}},
			{"ceiling over size width", Config{Capacity: 8, ArenaUnits: 8, MaxSpanUnits: MaxSpanUnits + 1}},
			{"too few slots for roots", Config{Capacity: 2, ArenaUnits: 100, MaxSpanUnits: 10}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := New(tt.cfg)
				assert.ErrorIs(t, err, ErrInvalidConfig)
			})
		}
	})
}

func TestRecordSize(t *testing.T) {
	// 28 + 1 + 26 + 25 bits
	assert.Equal(t, 10, RecordSize)
}

func TestAcquireRelease(t *testing.T) {
	tbl := newTable(t, 4, 64, 0)

	a, ok := tbl.Acquire()
	require.True(t, ok)
	assert.Equal(t, Index(1), a)

	b, ok := tbl.Acquire()
	require.True(t, ok)
	assert.Equal(t, Index(2), b)

	c, ok := tbl.Acquire()
	require.True(t, ok)
	assert.Equal(t, Index(3), c)

	_, ok = tbl.Acquire()
	assert.False(t, ok, "table is full")

	tbl.Release(b)
	got, ok := tbl.Acquire()
	require.True(t, ok)
	assert.Equal(t, b, got, "lowest released slot is reused first")

	tbl.Release(c)
	tbl.Release(a)
	got, ok = tbl.Acquire()
	require.True(t, ok)
	assert.Equal(t, a, got)
}

func TestFirstFit(t *testing.T) {
	tbl := newTable(t, 16, 100, 0)

	// [U 10][F 10][U 10][F 30][U 10][F 30]
	carve := func(units uint32, used bool) Index {
		i, ok := tbl.firstFitFrom(0, units)
		require.True(t, ok)
		if tbl.Span(i).Size > units {
			_, ok = tbl.Split(i, units)
			require.True(t, ok)
		}
		if used {
			tbl.MarkUsed(i)
		}
		return i
	}
	carve(10, true)
	f1 := carve(10, false)
	tbl.MarkUsed(f1)
	carve(10, true)
	f2 := carve(30, false)
	tbl.MarkUsed(f2)
	carve(10, true)
	tbl.MarkFree(f1)
	tbl.MarkFree(f2)
	require.NoError(t, tbl.Check())

	t.Run("lowest address wins", func(t *testing.T) {
		i, ok := tbl.FirstFit(5)
		require.True(t, ok)
		assert.Equal(t, f1, i)
	})

	t.Run("skips spans that are too small", func(t *testing.T) {
		i, ok := tbl.FirstFit(11)
		require.True(t, ok)
		assert.Equal(t, f2, i, "first fit, not best fit")
	})

	t.Run("exact fit", func(t *testing.T) {
		i, ok := tbl.FirstFit(30)
		require.True(t, ok)
		assert.Equal(t, f2, i)
	})

	t.Run("too large", func(t *testing.T) {
		_, ok := tbl.FirstFit(31)
		assert.False(t, ok)
	})

	require.NoError(t, tbl.Check())
}

func TestSplitUnsplit(t *testing.T) {
	tbl := newTable(t, 4, 64, 0)

	r, ok := tbl.Split(0, 16)
	require.True(t, ok)
	assert.Equal(t, Span{Offset: 0, Free: true, Size: 16, Next: r}, tbl.Span(0))
	assert.Equal(t, Span{Offset: 16, Free: true, Size: 48, Next: 4}, tbl.Span(r))
	assert.Equal(t, 2, tbl.Len())
	require.NoError(t, tbl.Check())

	_, ok = tbl.Split(0, 16)
	assert.False(t, ok, "exact size does not split")

	tbl.Unsplit(0, r)
	assert.Equal(t, Span{Offset: 0, Free: true, Size: 64, Next: 4}, tbl.Span(0))
	assert.Equal(t, Span{}, tbl.Span(r))
	require.NoError(t, tbl.Check())
}

func TestSplit_TableFull(t *testing.T) {
	tbl := newTable(t, 2, 64, 0)

	_, ok := tbl.Split(0, 8)
	require.True(t, ok)
	before := tbl.Entries()

	_, ok = tbl.Split(0, 4)
	assert.False(t, ok)
	assert.Equal(t, before, tbl.Entries(), "failed split leaves the table untouched")
}

func TestMerge(t *testing.T) {
	t.Run("within ceiling", func(t *testing.T) {
		tbl := newTable(t, 4, 64, 0)
		r, ok := tbl.Split(0, 16)
		require.True(t, ok)

		require.True(t, tbl.CanMerge(0, r))
		require.True(t, tbl.Merge(0, r))
		assert.Equal(t, 1, tbl.Len())
		assert.Equal(t, uint32(64), tbl.Span(0).Size)
		require.NoError(t, tbl.Check())
	})

	t.Run("used neighbour", func(t *testing.T) {
		tbl := newTable(t, 4, 64, 0)
		r, ok := tbl.Split(0, 16)
		require.True(t, ok)
		tbl.MarkUsed(r)

		assert.False(t, tbl.Merge(0, r))
		assert.Equal(t, 2, tbl.Len())
	})

	t.Run("ceiling overflow", func(t *testing.T) {
		tbl := newTable(t, 4, 64, 32)
		second := tbl.Span(0).Next

		assert.False(t, tbl.CanMerge(0, second))
		assert.False(t, tbl.Merge(0, second))
		assert.Equal(t, 0, tbl.EligiblePairs())
		require.NoError(t, tbl.Check())
	})

	t.Run("not adjacent in chain", func(t *testing.T) {
		tbl := newTable(t, 4, 64, 0)
		r1, _ := tbl.Split(0, 16)
		r2, _ := tbl.Split(r1, 16)

		assert.False(t, tbl.CanMerge(0, r2))
	})
}

func TestSpanHint(t *testing.T) {
	tbl := newTable(t, 8, 64, 0)

	i, ok := tbl.FirstFit(8)
	require.True(t, ok)
	r, ok := tbl.Split(i, 8)
	require.True(t, ok)
	tbl.MarkUsed(i)
	assert.Equal(t, r, tbl.SpanHint(), "hint moves past the claimed span")
	require.NoError(t, tbl.Check())

	tbl.MarkFree(i)
	assert.Equal(t, i, tbl.SpanHint(), "freeing a lower span lowers the hint")

	require.True(t, tbl.Merge(i, r))
	assert.Equal(t, i, tbl.SpanHint())
	require.NoError(t, tbl.Check())
}

func TestCheck_DetectsCorruption(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(tbl *Table)
	}{
		{"gap", func(tbl *Table) { tbl.spans[0].Size-- }},
		{"ceiling", func(tbl *Table) { tbl.maxSpan = 1 }},
		{"cycle", func(tbl *Table) {
			r, _ := tbl.Split(0, 4)
			tbl.spans[r].Next = 0
		}},
		{"stray slot", func(tbl *Table) { tbl.spans[3] = Span{Size: 1} }},
		{"hint past free span", func(tbl *Table) {
			r, _ := tbl.Split(0, 4)
			tbl.spanHint = r
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := newTable(t, 8, 64, 0)
			tt.corrupt(tbl)
			assert.ErrorIs(t, tbl.Check(), ErrCorrupt)
		})
	}
}
