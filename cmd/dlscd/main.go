// Command dlscd runs the distributed log-split coordinator: a serve
// mode that hosts the admin HTTP API and timeout monitor, a split
// subcommand for one-shot recovery runs, and an interactive inspect
// REPL for ad hoc introspection.
package main

import (
	"fmt"
	"os"

	"github.com/kartikbazzad/dlsc/cmd/dlscd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dlscd: %v\n", err)
		os.Exit(1)
	}
}
