package main

import (
	"fmt"
	"text/tabwriter"

	cli "github.com/urfave/cli/v2"
)

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "print the header, spans and totals of a heap dump",
	ArgsUsage: "FILE",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  summaryFlag,
			Usage: "print header and totals only",
		},
	},
	Action: func(c *cli.Context) error {
		hdr, snap, err := readDump(c)
		if err != nil {
			return err
		}

		w := c.App.Writer
		fmt.Fprintf(w, "version:     %d\n", hdr.Version)
		fmt.Fprintf(w, "compression: %s (%d -> %d bytes)\n", hdr.Compression, hdr.RawLen, hdr.PayloadLen)
		fmt.Fprintf(w, "arena:       %#x +%d bytes\n", snap.ArenaBase, snap.ArenaSize)
		fmt.Fprintf(w, "unit:        %d bytes\n", snap.UnitSize)
		fmt.Fprintf(w, "capacity:    %d slots\n", snap.Capacity)
		fmt.Fprintf(w, "ceiling:     %d bytes\n", uint64(snap.MaxSpanUnits)*uint64(snap.UnitSize))

		if !c.Bool(summaryFlag) {
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLOT\tADDR\tSIZE\tFREE\tNEXT")
			for _, sp := range snap.Spans {
				free := "no"
				if sp.Free {
					free = "yes"
				}
				fmt.Fprintf(tw, "%d\t%#x\t%d\t%s\t%d\n", sp.Index, snap.Addr(sp), snap.Bytes(sp), free, sp.Next)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}

		t := snap.Totals()
		fmt.Fprintf(w, "spans: %d (%d free)  used: %d B  free: %d B  largest free: %d B  mergeable pairs: %d\n",
			t.Spans, t.FreeSpans, t.UsedBytes, t.FreeBytes, t.LargestFree, t.MergeablePairs)
		return nil
	},
}
