package vmheap

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vmheap/internal/nodetable"
)

var (
	// ErrInvalidConfig is returned by New when an option violates a ceiling
	// or the arena and table regions are inconsistent.
	ErrInvalidConfig = errors.New("vmheap: invalid config")

	// ErrTableBootstrap is returned by New when the physical manager cannot
	// back the node table region.
	ErrTableBootstrap = errors.New("vmheap: cannot back node table")

	// ErrZeroSize is returned by Allocate for a zero-byte request.
	ErrZeroSize = errors.New("vmheap: zero-size allocation")

	// ErrOutOfVirtualSpace is returned when no free span can hold a request.
	ErrOutOfVirtualSpace = errors.New("vmheap: out of virtual space")

	// ErrTableFull is returned when a split needs a slot and none is left.
	ErrTableFull = errors.New("vmheap: node table full")

	// ErrMapFailed is returned when the physical manager refuses to back a
	// span. The table is left as it was before the call.
	ErrMapFailed = errors.New("vmheap: map failed")

	// ErrUnmapFailed is returned when the physical manager fails to release a
	// span. The span is freed regardless.
	ErrUnmapFailed = errors.New("vmheap: unmap failed")

	// ErrForeignAddress is returned in strict release mode for addresses
	// outside the arena.
	ErrForeignAddress = errors.New("vmheap: address outside arena")

	// ErrDoubleRelease is returned in strict release mode when the span
	// containing the address is already free.
	ErrDoubleRelease = errors.New("vmheap: span already free")

	// ErrClosed is returned by operations on a closed heap.
	ErrClosed = errors.New("vmheap: heap closed")

	// ErrCorrupt is returned by Check when an invariant does not hold.
	ErrCorrupt = nodetable.ErrCorrupt
)

// AllocError describes a request no free span could satisfy.
//
// It unwraps to ErrOutOfVirtualSpace.
type AllocError struct {
	// Size is the requested size in bytes.
	Size uint64
	// Units is the request rounded up to allocation units.
	Units uint64
	// LargestFree is the largest free span in bytes at the time of failure.
	LargestFree uint64
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("vmheap: out of virtual space: %d bytes (%d units) requested, largest free span %d bytes",
		e.Size, e.Units, e.LargestFree)
}

func (e *AllocError) Unwrap() error { return ErrOutOfVirtualSpace }
