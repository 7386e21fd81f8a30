// Package vmheap provides a virtual-memory heap allocator.
//
// A Heap carves a dedicated, contiguous virtual address range (the arena)
// into variably sized spans tracked by a fixed-capacity node table. Live
// allocations are backed by physical pages on demand through a pmm.Manager.
//
// # Quick Start
//
//	h, _ := vmheap.New()
//	defer h.Close()
//
//	addr, err := h.Allocate(100) // 100 bytes, rounded up to 4-byte units
//	if err != nil {
//		// errors.Is(err, vmheap.ErrOutOfVirtualSpace), vmheap.ErrTableFull, ...
//	}
//	_ = h.Release(addr)
//
// # Placement and Coalescing
//
// Allocate is first-fit in address order. A span larger than the request is
// split; the remainder becomes a new free span directly after it. Release
// finds the span containing the address, returns its pages to the manager,
// marks it free and merges it with free neighbors as long as the combined
// span stays under the span ceiling (MaxSpanSize, or WithMaxSpanSize).
//
// Adjacent free spans whose merge would exceed the ceiling are a legal
// steady state. An arena larger than the ceiling starts out that way.
//
// # Physical Memory
//
// The default manager is a pmm.Simulated, which only keeps books. A
// pmm.Region reserves real address space with mmap and commits pages as
// spans are allocated:
//
//	region, _ := pmm.Reserve(64 << 20)
//	h, _ := vmheap.New(
//		vmheap.WithPhysicalMemory(region),
//		vmheap.WithTableBase(region.Base()),
//		vmheap.WithArenaBase(region.Base()+vmheap.TableRegionSize),
//		vmheap.WithArenaSize(region.Size()-vmheap.TableRegionSize),
//	)
//
// # Diagnostics
//
// Dump prints the span chain, Snapshot and WriteDump capture it for the
// heapdump package and the vmheapdump tool, Stats summarizes it and Check
// verifies the table invariants.
//
// # Concurrency
//
// A Heap is safe for concurrent use. Every operation holds one mutex for
// its whole duration, including calls into the physical manager.
package vmheap
