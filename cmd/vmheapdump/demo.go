package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vmheap"
	"github.com/hupe1980/vmheap/heapdump"
	"github.com/hupe1980/vmheap/internal/conv"
	"github.com/hupe1980/vmheap/pmm"
	"github.com/hupe1980/vmheap/testutil"
)

var demoCommand = &cli.Command{
	Name:  "demo",
	Usage: "run a random allocate/release workload and write the resulting heap dump",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     outFlag,
			Aliases:  []string{"o"},
			Usage:    "Required: output dump file",
			Required: true,
		},
		&cli.IntFlag{
			Name:  opsFlag,
			Usage: "operations per worker",
			Value: 10000,
		},
		&cli.Int64Flag{
			Name:  seedFlag,
			Usage: "workload seed; worker i uses seed+i",
			Value: 1,
		},
		&cli.Uint64Flag{
			Name:  arenaFlag,
			Usage: "arena size in bytes",
			Value: 16 << 20,
		},
		&cli.UintFlag{
			Name:  capacityFlag,
			Usage: "node table capacity",
			Value: 4096,
		},
		&cli.Uint64Flag{
			Name:  maxSizeFlag,
			Usage: "largest request in bytes",
			Value: 16 << 10,
		},
		&cli.IntFlag{
			Name:  workersFlag,
			Usage: "concurrent workers",
			Value: 1,
		},
		&cli.StringFlag{
			Name:  compressionFlag,
			Usage: "dump compression: none, lz4 or zstd",
			Value: "zstd",
		},
		&cli.BoolFlag{
			Name:    verboseFlag,
			Aliases: []string{"v"},
			Usage:   "log every heap operation",
		},
	},
	Action: runDemo,
}

func runDemo(c *cli.Context) error {
	codec, err := heapdump.ParseCompression(c.String(compressionFlag))
	if err != nil {
		return err
	}
	workers := c.Int(workersFlag)
	if workers < 1 {
		return fmt.Errorf("--%s must be at least 1", workersFlag)
	}

	arena, err := conv.Uint64ToUintptr(c.Uint64(arenaFlag))
	if err != nil {
		return fmt.Errorf("--%s: %w", arenaFlag, err)
	}
	capacity, err := conv.Uint64ToUint32(uint64(c.Uint(capacityFlag)))
	if err != nil {
		return fmt.Errorf("--%s: %w", capacityFlag, err)
	}

	sim, err := pmm.NewSimulated()
	if err != nil {
		return err
	}
	metrics := &vmheap.BasicMetricsCollector{}
	opts := []vmheap.Option{
		vmheap.WithPhysicalMemory(sim),
		vmheap.WithMetricsCollector(metrics),
		vmheap.WithArenaSize(arena),
		vmheap.WithTableCapacity(capacity),
	}
	if c.Bool(verboseFlag) {
		opts = append(opts, vmheap.WithLogLevel(slog.LevelDebug))
	}
	h, err := vmheap.New(opts...)
	if err != nil {
		return err
	}
	defer h.Close()

	var g errgroup.Group
	for w := range workers {
		rng := testutil.NewRNG(c.Int64(seedFlag) + int64(w))
		ops := rng.Workload(c.Int(opsFlag), c.Uint64(maxSizeFlag), 0.6)
		g.Go(func() error {
			return replay(h, ops)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := h.Check(); err != nil {
		return err
	}

	f, err := os.Create(c.String(outFlag))
	if err != nil {
		return err
	}
	if err := h.WriteDump(f, codec); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	stats := metrics.GetStats()
	st := h.Stats()
	fmt.Fprintf(c.App.Writer, "allocations: %d (%d exhausted)  releases: %d\n",
		stats.AllocateCount, stats.AllocateExhausted, stats.ReleaseCount)
	fmt.Fprintf(c.App.Writer, "spans: %d  used: %d B  free: %d B  resident: %d B\n",
		st.Spans, st.UsedBytes, st.FreeBytes, st.ResidentBytes)
	fmt.Fprintf(c.App.Writer, "wrote %s (%s)\n", c.String(outFlag), codec)
	return nil
}

// replay runs ops against h. Exhaustion is part of the workload and is
// only counted.
func replay(h *vmheap.Heap, ops []testutil.Op) error {
	var live []uintptr
	for _, op := range ops {
		switch op.Kind {
		case testutil.OpAllocate:
			addr, err := h.Allocate(op.Size)
			if errors.Is(err, vmheap.ErrOutOfVirtualSpace) || errors.Is(err, vmheap.ErrTableFull) {
				continue
			}
			if err != nil {
				return err
			}
			live = append(live, addr)
		case testutil.OpRelease:
			if len(live) == 0 {
				continue
			}
			i := op.Victim % len(live)
			if err := h.Release(live[i]); err != nil {
				return err
			}
			live = append(live[:i], live[i+1:]...)
		}
	}
	return nil
}
