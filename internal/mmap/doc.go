// Package mmap provides anonymous address-space reservations whose pages are
// committed and released on demand.
//
// # Overview
//
// Reserve maps an inaccessible (PROT_NONE) anonymous region. No physical
// memory is consumed until a page range is committed. Decommit drops the
// page contents and makes the range inaccessible again, so a later Commit
// observes zero-filled pages.
//
// # Usage
//
//	r, err := mmap.Reserve(1 << 20)
//	if err != nil { ... }
//	defer r.Close()
//
//	_ = r.Commit(0, 4096)   // first page readable and writable
//	r.Bytes()[0] = 1
//	_ = r.Decommit(0, 4096) // page released
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), mprotect(2), madvise(2)
//   - Other platforms: Reserve returns ErrUnsupported
//
// # Thread Safety
//
// Close is idempotent and protected by atomic operations. Commit and
// Decommit on overlapping ranges must be serialized by the caller.
package mmap
