// Command nwrunnerctl is the operator console for nwrunnerd: a cobra CLI
// with create/run/pause/resume/cancel/status subcommands plus a live
// bubbletea "watch" TUI, grounded on the teacher's cmd/choo cobra wiring and
// pkg/cli charm-TUI idiom.
package main

import (
	"fmt"
	"os"
)

func main() {
	root := newRootCmd()

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nwrunnerctl: %v\n", err)
		os.Exit(1)
	}
}
