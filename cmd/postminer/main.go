// Command postminer is the operator-facing CLI for the mining core: create
// and verify plot files, register them with a manager, and run a mining
// pass against a challenge.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

// options is the top-level command tree. Each subcommand repeats its own
// --config flag rather than relying on shared parent state, so a command
// struct is self-contained and testable on its own.
type options struct {
	Plot    plotCommand    `command:"plot" description:"create or verify plot files"`
	Mine    mineCommand    `command:"mine" description:"scan registered plots for the best proof against a challenge"`
	Manager managerCommand `command:"manager" description:"inspect and mutate the plot registry"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
