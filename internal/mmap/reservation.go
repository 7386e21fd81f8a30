package mmap

import (
	"os"
	"sync/atomic"
	"unsafe"
)

// PageSize returns the system page size.
func PageSize() int {
	return os.Getpagesize()
}

// Reservation is a reserved range of address space.
// It owns the underlying mapping and is responsible for releasing it.
type Reservation struct {
	data   []byte
	closed atomic.Bool
}

// Reserve reserves size bytes of address space, rounded up to the page size.
// The reserved pages are inaccessible until committed.
func Reserve(size int) (*Reservation, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	page := PageSize()
	size = (size + page - 1) &^ (page - 1)

	data, err := osReserve(size)
	if err != nil {
		return nil, err
	}
	return &Reservation{data: data}, nil
}

// Base returns the first address of the reservation.
func (r *Reservation) Base() uintptr {
	return uintptr(unsafe.Pointer(&r.data[0])) //nolint:gosec // address is only used as an integer
}

// Size returns the size of the reservation in bytes.
func (r *Reservation) Size() int {
	return len(r.data)
}

// Bytes returns the underlying byte slice. Only committed pages may be accessed.
// Warning: The slice is valid only until Close() is called.
func (r *Reservation) Bytes() []byte {
	if r.closed.Load() {
		return nil
	}
	return r.data
}

// Commit makes [off, off+n) readable and writable. The range must be page aligned.
func (r *Reservation) Commit(off, n int) error {
	b, err := r.pages(off, n)
	if err != nil || len(b) == 0 {
		return err
	}
	return osCommit(b)
}

// Decommit releases the physical pages of [off, off+n) and makes the range
// inaccessible. The range must be page aligned.
func (r *Reservation) Decommit(off, n int) error {
	b, err := r.pages(off, n)
	if err != nil || len(b) == 0 {
		return err
	}
	return osDecommit(b)
}

func (r *Reservation) pages(off, n int) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if off < 0 || n < 0 || off+n > len(r.data) {
		return nil, ErrOutOfBounds
	}
	return r.data[off : off+n : off+n], nil
}

// Close unmaps the reservation. It is idempotent.
func (r *Reservation) Close() error {
	if r.closed.Swap(true) {
		return nil // Already closed
	}
	return osRelease(r.data)
}
