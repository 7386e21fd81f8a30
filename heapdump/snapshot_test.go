package heapdump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Verify(t *testing.T) {
	require.NoError(t, sampleSnapshot().Verify())

	tests := []struct {
		name   string
		mutate func(s *Snapshot)
	}{
		{"empty", func(s *Snapshot) { s.Spans = nil }},
		{"bad unit", func(s *Snapshot) { s.UnitSize = 0 }},
		{"not starting at zero", func(s *Snapshot) { s.Spans[0].Index = 3 }},
		{"gap", func(s *Snapshot) { s.Spans[1].Offset++ }},
		{"short coverage", func(s *Snapshot) { s.Spans[2].Size-- }},
		{"zero size", func(s *Snapshot) { s.Spans[1].Size = 0 }},
		{"ceiling", func(s *Snapshot) { s.MaxSpanUnits = 100 }},
		{"bad link", func(s *Snapshot) { s.Spans[0].Next = 2 }},
		{"missing sentinel", func(s *Snapshot) { s.Spans[2].Next = 0 }},
		{"duplicate slot", func(s *Snapshot) { s.Spans[2].Index = 1; s.Spans[1].Next = 1 }},
		{"slot past capacity", func(s *Snapshot) { s.Capacity = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleSnapshot()
			tt.mutate(s)
			assert.ErrorIs(t, s.Verify(), ErrInvalid)
		})
	}
}

func TestSnapshot_Totals(t *testing.T) {
	s := sampleSnapshot()
	s.Spans[2].Free = true

	got := s.Totals()
	assert.Equal(t, 3, got.Spans)
	assert.Equal(t, 2, got.FreeSpans)
	assert.Equal(t, uint64(104), got.UsedBytes)
	assert.Equal(t, uint64(920), got.FreeBytes)
	assert.Equal(t, uint64(868), got.LargestFree)
	assert.Equal(t, 1, got.MergeablePairs)

	assert.Equal(t, uint64(0xD0000000+104), s.Addr(s.Spans[1]))
	assert.Equal(t, uint64(52), s.Bytes(s.Spans[1]))
}
