// Package pmm provides physical memory managers for the virtual heap.
//
// A Manager backs virtual byte ranges with physical pages (Map) and releases
// them again (Unmap). Both operations are page granular: a range is widened
// to whole pages, and a page shared by several mappings stays resident until
// the last of them is unmapped. Map and Unmap calls must be balanced per
// range.
//
// Two implementations are provided:
//
//   - Simulated keeps only the bookkeeping (resident page set and reference
//     counts). It accepts any address and is the default for the heap.
//   - Region reserves a real anonymous mapping and commits pages with
//     mprotect(2), releasing them with madvise(2). Memory handed out by a heap
//     on top of a Region can be read and written through Region.Bytes.
//
// Both can enforce a byte budget on resident memory (WithMemoryLimit), in
// which case Map fails with ErrMemoryLimitExceeded once the budget is spent.
package pmm
