// Package resource implements a byte budget for physically backed memory.
//
// A physical memory manager acquires budget before it backs a page and
// returns it when the page is released. Acquisition never blocks: when the
// limit would be exceeded AcquireMemory fails fast with
// ErrMemoryLimitExceeded and the caller decides what to do.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20, // 64 MiB of resident pages
//	})
//
//	if err := rc.AcquireMemory(4096); err != nil {
//	    // ErrMemoryLimitExceeded
//	}
//	defer rc.ReleaseMemory(4096)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
// This allows optional limits without nil checks everywhere.
package resource
