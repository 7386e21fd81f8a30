package main

import (
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v2"

	"github.com/hupe1980/vmheap/heapdump"
)

const (
	outFlag         = "out"
	opsFlag         = "ops"
	seedFlag        = "seed"
	arenaFlag       = "arena"
	capacityFlag    = "capacity"
	maxSizeFlag     = "max-size"
	workersFlag     = "workers"
	compressionFlag = "compression"
	summaryFlag     = "summary"
	verboseFlag     = "verbose"
)

var appCommands = []*cli.Command{
	inspectCommand,
	verifyCommand,
	demoCommand,
}

func app() *cli.App {
	return &cli.App{
		Name:           "vmheapdump",
		Usage:          "inspect, verify and generate vmheap heap dumps",
		Commands:       appCommands,
		ExitErrHandler: errHandler,
	}
}

func errHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	n := c.App.Name
	if c.Command != nil {
		if nn := c.Command.FullName(); nn != "" {
			n += " " + nn
		}
	}
	code := 1
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		code = ec.ExitCode()
	}
	cli.HandleExitCoder(cli.Exit(fmt.Errorf("%s: %w", n, err), code))
}

// readDump loads the dump named by the first argument.
func readDump(c *cli.Context) (heapdump.Header, *heapdump.Snapshot, error) {
	if c.NArg() != 1 {
		return heapdump.Header{}, nil, fmt.Errorf("expected exactly one dump file, got %d arguments", c.NArg())
	}

	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return heapdump.Header{}, nil, err
	}
	hdr, err := heapdump.ReadHeader(data)
	if err != nil {
		return heapdump.Header{}, nil, err
	}
	snap, err := heapdump.Unmarshal(data)
	if err != nil {
		return heapdump.Header{}, nil, err
	}
	return hdr, snap, nil
}
