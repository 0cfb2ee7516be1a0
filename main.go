// memhier simulates a cached DDR memory subsystem: a configurable chain of
// set-associative caches in front of a multi-channel DRAM controller, with
// fault injection on the DDR command/data bus.
package main

import (
	"context"
	"os"

	"github.com/kestrelcore/memhier/internal/cli"
	"github.com/kestrelcore/memhier/internal/cli/cmd"
)

var commands = []cli.Command{
	cmd.Bench(),
	cmd.Fault(),
	cmd.Dump(),
	cmd.Repl(),
}

// Entry point.
func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
