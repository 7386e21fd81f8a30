package pmm

import (
	"fmt"
	"sync"

	"github.com/hupe1980/vmheap/internal/conv"
	"github.com/hupe1980/vmheap/internal/mmap"
)

// ErrUnsupported is returned by Reserve on platforms without reservations.
var ErrUnsupported = mmap.ErrUnsupported

// Region is a physical memory manager over a real reserved address range.
// Pages are committed read-write on Map and released on Unmap.
type Region struct {
	mu    sync.Mutex
	cfg   config
	res   *mmap.Reservation
	pages *pageTracker
}

// Reserve reserves size bytes of address space (rounded up to the page size).
func Reserve(size uintptr, opts ...Option) (*Region, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.pageSize = uintptr(mmap.PageSize())

	n, err := conv.Uint64ToInt(uint64(size))
	if err != nil {
		return nil, err
	}
	pages, err := newPageTracker(cfg.pageSize, cfg.memoryLimit)
	if err != nil {
		return nil, err
	}
	res, err := mmap.Reserve(n)
	if err != nil {
		return nil, fmt.Errorf("pmm: reserve %d bytes: %w", size, err)
	}
	return &Region{cfg: cfg, res: res, pages: pages}, nil
}

// Base returns the first address of the region.
func (r *Region) Base() uintptr { return r.res.Base() }

// Size returns the size of the region in bytes.
func (r *Region) Size() uintptr { return uintptr(r.res.Size()) }

// PageSize returns the system page size.
func (r *Region) PageSize() uintptr { return r.cfg.pageSize }

func (r *Region) check(addr, length uintptr) error {
	base := r.Base()
	if addr < base || length > r.Size() || addr-base > r.Size()-length {
		return fmt.Errorf("%w: %#x+%#x outside region %#x+%#x", ErrOutOfRange, addr, length, base, r.Size())
	}
	return nil
}

// Map implements Manager.
func (r *Region) Map(addr, length uintptr, perm Perm) error {
	if perm&PermRead == 0 {
		return ErrPermission
	}
	if err := r.check(addr, length); err != nil {
		return err
	}
	if err := r.cfg.fault(OpMap, addr, length); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fresh, err := r.pages.acquire(addr, length)
	if err != nil {
		return err
	}
	for _, run := range runs(fresh) {
		off, n := r.offsets(run)
		if err := r.res.Commit(off, n); err != nil {
			r.pages.undo(addr, length)
			for _, done := range runs(fresh) {
				if done == run {
					break
				}
				o, l := r.offsets(done)
				_ = r.res.Decommit(o, l)
			}
			return fmt.Errorf("pmm: commit %#x: %w", addr, err)
		}
	}
	return nil
}

// Unmap implements Manager.
func (r *Region) Unmap(addr, length uintptr) error {
	if err := r.check(addr, length); err != nil {
		return err
	}
	if err := r.cfg.fault(OpUnmap, addr, length); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	gone, err := r.pages.release(addr, length)
	if err != nil {
		return err
	}
	for _, run := range runs(gone) {
		off, n := r.offsets(run)
		if err := r.res.Decommit(off, n); err != nil {
			return fmt.Errorf("pmm: decommit %#x: %w", addr, err)
		}
	}
	return nil
}

// offsets converts a page run to a byte offset and length within the reservation.
func (r *Region) offsets(run [2]uint64) (int, int) {
	base := uint64(r.Base())
	off := run[0]<<r.pages.shift - base
	n := (run[1] - run[0]) << r.pages.shift
	return int(off), int(n) //nolint:gosec // bounded by the reservation size
}

// Bytes returns the memory of a fully mapped range.
func (r *Region) Bytes(addr, length uintptr) ([]byte, error) {
	if err := r.check(addr, length); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.pages.isResident(addr, length) {
		return nil, fmt.Errorf("%w: %#x+%#x", ErrNotMapped, addr, length)
	}
	data := r.res.Bytes()
	if data == nil {
		return nil, mmap.ErrClosed
	}
	off := addr - r.Base()
	return data[off : off+length : off+length], nil
}

// ResidentBytes implements ResidencyReporter.
func (r *Region) ResidentBytes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pages.residentBytes()
}

// Resident implements ResidencyReporter.
func (r *Region) Resident(addr, length uintptr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pages.isResident(addr, length)
}

// Close releases the reservation. It is idempotent.
func (r *Region) Close() error {
	return r.res.Close()
}
