package vmheap

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vmheap/heapdump"
)

func TestDump(t *testing.T) {
	h, _ := newTestHeap(t, WithArenaSize(8192))
	mustAllocate(t, h, 2048)

	var buf bytes.Buffer
	require.NoError(t, h.Dump(&buf))

	want := `Nodes dump
Node[0]
   |_ Addr   : d0000000
   |_ free?  : no
   |_ Size   : 2048 B [ 2 KiB ]
   |_ Next   : 1
Node[1]
   |_ Addr   : d0000800
   |_ free?  : yes
   |_ Size   : 6144 B [ 6 KiB ]
   |_ Next   : 100000
`
	assert.Equal(t, want, buf.String())
}

func TestWriteDump_RoundTrip(t *testing.T) {
	h, _ := newTestHeap(t, WithArenaSize(1<<20))
	var live []uintptr
	for i := range 64 {
		live = append(live, mustAllocate(t, h, uint64(16+i*24)))
	}
	for i := 0; i < len(live); i += 3 {
		mustRelease(t, h, live[i])
	}
	want := h.Snapshot()

	for _, c := range []heapdump.Compression{heapdump.CompressionNone, heapdump.CompressionLZ4, heapdump.CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, h.WriteDump(&buf, c))

			got, err := heapdump.Decode(&buf)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("decoded dump differs (-want +got):\n%s", diff)
			}
			require.NoError(t, got.Verify())

			totals := got.Totals()
			st := h.Stats()
			assert.Equal(t, st.Spans, totals.Spans)
			assert.Equal(t, st.FreeBytes, totals.FreeBytes)
			assert.Equal(t, st.UsedBytes, totals.UsedBytes)
			assert.Equal(t, st.LargestFree, totals.LargestFree)
			assert.Equal(t, st.MergeablePairs, totals.MergeablePairs)
		})
	}
}
