package main

import (
	"fmt"

	cli "github.com/urfave/cli/v2"
)

var verifyCommand = &cli.Command{
	Name:      "verify",
	Usage:     "check that a heap dump describes a well-formed span chain",
	ArgsUsage: "FILE",
	Action: func(c *cli.Context) error {
		_, snap, err := readDump(c)
		if err != nil {
			return err
		}
		if err := snap.Verify(); err != nil {
			return cli.Exit(err, 2)
		}
		fmt.Fprintf(c.App.Writer, "%s: ok (%d spans)\n", c.Args().First(), len(snap.Spans))
		return nil
	},
}
