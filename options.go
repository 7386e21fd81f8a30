package vmheap

import (
	"log/slog"

	"github.com/hupe1980/vmheap/internal/nodetable"
	"github.com/hupe1980/vmheap/pmm"
)

const (
	// UnitSize is the allocation granularity in bytes.
	UnitSize = nodetable.UnitSize

	// DefaultArenaBase is the default start of the arena.
	DefaultArenaBase uintptr = 0xD0000000

	// DefaultArenaSize is the default arena length (1 GiB).
	DefaultArenaSize uintptr = 1 << 30

	// DefaultTableCapacity is the default number of span slots.
	DefaultTableCapacity = nodetable.DefaultCapacity

	// TableRegionSize is the distance between the default table region and
	// the arena base.
	TableRegionSize uintptr = 0x00100000

	// MaxSpanSize is the largest span the table can encode, in bytes.
	MaxSpanSize = uint64(nodetable.MaxSpanUnits) * UnitSize

	// MaxArenaSize is the largest arena the table can address, in bytes.
	MaxArenaSize = uint64(nodetable.MaxArenaUnits) * UnitSize

	// SpanRecordSize is the size of one packed span record in the table
	// region.
	SpanRecordSize = nodetable.RecordSize
)

// Option configures a Heap.
type Option func(o *options)

type options struct {
	arenaBase     uintptr
	arenaSize     uintptr
	tableCapacity uint32
	tableBase     uintptr
	tableBaseSet  bool
	maxSpanSize   uint64
	mapper        pmm.Manager
	logger        *Logger
	metrics       MetricsCollector
	strict        bool
}

// WithArenaBase sets the first address of the arena. It must be 4-byte
// aligned.
func WithArenaBase(base uintptr) Option {
	return func(o *options) {
		o.arenaBase = base
	}
}

// WithArenaSize sets the arena length in bytes. It must be a positive
// multiple of UnitSize no larger than MaxArenaSize.
func WithArenaSize(size uintptr) Option {
	return func(o *options) {
		o.arenaSize = size
	}
}

// WithTableCapacity sets the number of span slots. The capacity is also the
// sentinel index, so it is bounded by the link width.
func WithTableCapacity(n uint32) Option {
	return func(o *options) {
		o.tableCapacity = n
	}
}

// WithTableBase sets the address of the region backing the node table.
// By default the table sits TableRegionSize bytes below the arena.
func WithTableBase(base uintptr) Option {
	return func(o *options) {
		o.tableBase = base
		o.tableBaseSet = true
	}
}

// WithMaxSpanSize lowers the span ceiling below MaxSpanSize. The value is
// rounded down to whole units. Merges that would exceed it are skipped.
func WithMaxSpanSize(bytes uint64) Option {
	return func(o *options) {
		o.maxSpanSize = bytes
	}
}

// WithPhysicalMemory sets the manager that backs allocated spans.
// The default is a fresh pmm.Simulated.
//
// Example with a real reservation:
//
//	region, _ := pmm.Reserve(64 << 20)
//	h, _ := vmheap.New(
//		vmheap.WithPhysicalMemory(region),
//		vmheap.WithTableBase(region.Base()),
//		vmheap.WithArenaBase(region.Base()+vmheap.TableRegionSize),
//		vmheap.WithArenaSize(region.Size()-vmheap.TableRegionSize),
//	)
func WithPhysicalMemory(m pmm.Manager) Option {
	return func(o *options) {
		o.mapper = m
	}
}

// WithLogger configures structured logging for heap operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector sets a collector that observes every Allocate and
// Release.
//
//	metrics := &vmheap.BasicMetricsCollector{}
//	h, _ := vmheap.New(vmheap.WithMetricsCollector(metrics))
//	// ... use h ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

// WithStrictRelease makes Release report foreign addresses and double
// releases instead of ignoring them.
func WithStrictRelease() Option {
	return func(o *options) {
		o.strict = true
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		arenaBase:     DefaultArenaBase,
		arenaSize:     DefaultArenaSize,
		tableCapacity: DefaultTableCapacity,
		maxSpanSize:   MaxSpanSize,
		metrics:       NoopMetricsCollector{},
		logger:        NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metrics == nil {
		o.metrics = NoopMetricsCollector{}
	}
	if !o.tableBaseSet {
		o.tableBase = o.arenaBase - TableRegionSize
	}
	return o
}
