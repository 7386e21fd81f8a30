package pmm

import (
	"errors"
	"strings"

	"github.com/hupe1980/vmheap/internal/resource"
)

// Perm is a page protection.
type Perm uint8

const (
	// PermRead allows reads.
	PermRead Perm = 1 << iota
	// PermWrite allows writes.
	PermWrite
	// PermExec allows instruction fetches.
	PermExec

	// PermRW is the read-write protection used for heap spans.
	PermRW = PermRead | PermWrite
)

// String returns the protection in rwx notation.
func (p Perm) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit Perm
		c   byte
	}{{PermRead, 'r'}, {PermWrite, 'w'}, {PermExec, 'x'}} {
		if p&f.bit != 0 {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Manager backs and releases virtual ranges.
type Manager interface {
	// Map backs [addr, addr+length) with physical pages.
	Map(addr, length uintptr, perm Perm) error
	// Unmap releases the backing of a range previously passed to Map.
	Unmap(addr, length uintptr) error
}

// ResidencyReporter is implemented by managers that can report what is resident.
type ResidencyReporter interface {
	// ResidentBytes returns the number of bytes currently backed.
	ResidentBytes() uint64
	// Resident reports whether every page of the range is backed.
	Resident(addr, length uintptr) bool
}

var (
	// ErrNotMapped is returned when unmapping a range that is not fully backed.
	ErrNotMapped = errors.New("pmm: range not mapped")
	// ErrOutOfRange is returned for ranges outside a Region or wrapping the address space.
	ErrOutOfRange = errors.New("pmm: range out of range")
	// ErrPermission is returned for protections a manager cannot provide.
	ErrPermission = errors.New("pmm: unsupported permission")
	// ErrInvalidPageSize is returned for page sizes that are not a power of two.
	ErrInvalidPageSize = errors.New("pmm: invalid page size")
	// ErrMemoryLimitExceeded is returned by Map when the resident budget is spent.
	ErrMemoryLimitExceeded = resource.ErrMemoryLimitExceeded
)

type config struct {
	pageSize    uintptr
	memoryLimit int64
	faults      func(op Op, addr, length uintptr) error
}

// Option configures a manager.
type Option func(*config)

// WithPageSize sets the page size of a Simulated manager. It must be a power
// of two. Region always uses the system page size.
func WithPageSize(size uintptr) Option {
	return func(c *config) {
		c.pageSize = size
	}
}

// WithMemoryLimit caps resident memory in bytes. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(c *config) {
		c.memoryLimit = bytes
	}
}

// Op names a manager operation for fault injection.
type Op uint8

const (
	// OpMap is a Map call.
	OpMap Op = iota
	// OpUnmap is an Unmap call.
	OpUnmap
)

// WithFaultInjector installs a hook that runs before every Map and Unmap. A
// non-nil error is returned to the caller and the operation is not performed.
func WithFaultInjector(fn func(op Op, addr, length uintptr) error) Option {
	return func(c *config) {
		c.faults = fn
	}
}

func (c *config) fault(op Op, addr, length uintptr) error {
	if c.faults == nil {
		return nil
	}
	return c.faults(op, addr, length)
}
