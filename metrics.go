package vmheap

import (
	"errors"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Collectors are called after the heap lock has been dropped and must be safe
// for concurrent use.
type MetricsCollector interface {
	// RecordAllocate is called after each Allocate. size is the requested
	// size in bytes, err is nil if successful.
	RecordAllocate(size uint64, duration time.Duration, err error)

	// RecordRelease is called after each Release. size is the number of bytes
	// returned to the arena, zero when the call was a no-op.
	RecordRelease(size uint64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAllocate(uint64, time.Duration, error) {}
func (NoopMetricsCollector) RecordRelease(uint64, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocateCount      atomic.Int64
	AllocateErrors     atomic.Int64
	AllocateExhausted  atomic.Int64
	AllocateBytes      atomic.Int64
	AllocateTotalNanos atomic.Int64
	ReleaseCount       atomic.Int64
	ReleaseErrors      atomic.Int64
	ReleaseBytes       atomic.Int64
	ReleaseTotalNanos  atomic.Int64
}

// RecordAllocate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocate(size uint64, duration time.Duration, err error) {
	b.AllocateCount.Add(1)
	b.AllocateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AllocateErrors.Add(1)
		if isExhaustion(err) {
			b.AllocateExhausted.Add(1)
		}
		return
	}
	b.AllocateBytes.Add(clampInt64(size))
}

// RecordRelease implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRelease(size uint64, duration time.Duration, err error) {
	b.ReleaseCount.Add(1)
	b.ReleaseTotalNanos.Add(duration.Nanoseconds())
	b.ReleaseBytes.Add(clampInt64(size))
	if err != nil {
		b.ReleaseErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocateCount:     b.AllocateCount.Load(),
		AllocateErrors:    b.AllocateErrors.Load(),
		AllocateExhausted: b.AllocateExhausted.Load(),
		AllocateBytes:     b.AllocateBytes.Load(),
		AllocateAvgNanos:  avg(b.AllocateTotalNanos.Load(), b.AllocateCount.Load()),
		ReleaseCount:      b.ReleaseCount.Load(),
		ReleaseErrors:     b.ReleaseErrors.Load(),
		ReleaseBytes:      b.ReleaseBytes.Load(),
		ReleaseAvgNanos:   avg(b.ReleaseTotalNanos.Load(), b.ReleaseCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

func clampInt64(v uint64) int64 {
	if v > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(v)
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AllocateCount     int64
	AllocateErrors    int64
	AllocateExhausted int64
	AllocateBytes     int64
	AllocateAvgNanos  int64
	ReleaseCount      int64
	ReleaseErrors     int64
	ReleaseBytes      int64
	ReleaseAvgNanos   int64
}

// isExhaustion reports whether err means the heap ran out of space or slots.
func isExhaustion(err error) bool {
	return errors.Is(err, ErrOutOfVirtualSpace) || errors.Is(err, ErrTableFull)
}
