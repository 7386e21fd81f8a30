package pmm

import (
	"sync"
	"sync/atomic"
)

// DefaultPageSize is the page size used by Simulated unless configured otherwise.
const DefaultPageSize = 4096

// Simulated is a bookkeeping-only physical memory manager.
type Simulated struct {
	mu    sync.Mutex
	cfg   config
	pages *pageTracker

	mapCalls   atomic.Uint64
	unmapCalls atomic.Uint64
}

// NewSimulated creates a simulated manager.
func NewSimulated(opts ...Option) (*Simulated, error) {
	cfg := config{pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	pages, err := newPageTracker(cfg.pageSize, cfg.memoryLimit)
	if err != nil {
		return nil, err
	}
	return &Simulated{cfg: cfg, pages: pages}, nil
}

// Map implements Manager.
func (s *Simulated) Map(addr, length uintptr, perm Perm) error {
	s.mapCalls.Add(1)
	if perm == 0 {
		return ErrPermission
	}
	if err := s.cfg.fault(OpMap, addr, length); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.pages.acquire(addr, length)
	return err
}

// Unmap implements Manager.
func (s *Simulated) Unmap(addr, length uintptr) error {
	s.unmapCalls.Add(1)
	if err := s.cfg.fault(OpUnmap, addr, length); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.pages.release(addr, length)
	return err
}

// ResidentBytes implements ResidencyReporter.
func (s *Simulated) ResidentBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.residentBytes()
}

// Resident implements ResidencyReporter.
func (s *Simulated) Resident(addr, length uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.isResident(addr, length)
}

// PageSize returns the configured page size.
func (s *Simulated) PageSize() uintptr {
	return s.cfg.pageSize
}

// Calls returns the number of Map and Unmap calls made so far.
func (s *Simulated) Calls() (maps, unmaps uint64) {
	return s.mapCalls.Load(), s.unmapCalls.Load()
}
