package vmheap

import (
	"bufio"
	"fmt"
	"io"

	"github.com/hupe1980/vmheap/heapdump"
	"github.com/hupe1980/vmheap/internal/nodetable"
)

// Dump writes every span in address order:
//
//	Node[0]
//	   |_ Addr   : d0000000
//	   |_ free?  : yes
//	   |_ Size   : 1024 B [ 1 KiB ]
//	   |_ Next   : 100000
func (h *Heap) Dump(w io.Writer) error {
	entries, base := h.entries()

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Nodes dump")
	for _, e := range entries {
		writeNode(bw, base, e)
	}
	return bw.Flush()
}

func writeNode(w io.Writer, base uintptr, e nodetable.Entry) {
	free := "no"
	if e.Free {
		free = "yes"
	}
	bytes := uint64(e.Size) * UnitSize
	fmt.Fprintf(w, "Node[%d]\n", e.Index)
	fmt.Fprintf(w, "   |_ Addr   : %x\n", uint64(base)+uint64(e.Offset)*UnitSize)
	fmt.Fprintf(w, "   |_ free?  : %s\n", free)
	fmt.Fprintf(w, "   |_ Size   : %d B [ %d KiB ]\n", bytes, bytes/1024)
	fmt.Fprintf(w, "   |_ Next   : %d\n", e.Next)
}

func (h *Heap) entries() ([]nodetable.Entry, uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.table.Entries(), h.base
}

// Snapshot returns a consistent copy of the span chain.
func (h *Heap) Snapshot() *heapdump.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := &heapdump.Snapshot{
		ArenaBase:    uint64(h.base),
		ArenaSize:    uint64(h.end - h.base),
		UnitSize:     UnitSize,
		Capacity:     h.table.Capacity(),
		MaxSpanUnits: h.table.MaxSpanUnits(),
		Spans:        make([]heapdump.Span, 0, h.table.Len()),
	}
	h.table.Walk(func(e nodetable.Entry) bool {
		snap.Spans = append(snap.Spans, heapdump.Span{
			Index:  uint32(e.Index),
			Offset: e.Offset,
			Size:   e.Size,
			Next:   uint32(e.Next),
			Free:   e.Free,
		})
		return true
	})
	return snap
}

// WriteDump writes a binary heap dump of the current chain.
func (h *Heap) WriteDump(w io.Writer, c heapdump.Compression) error {
	return heapdump.Encode(w, h.Snapshot(), c)
}
