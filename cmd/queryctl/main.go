// Command queryctl is a debug/ops front end over the orchestration
// core's answer() entry point (SPEC_FULL.md §2 "cmd/queryctl" — not the
// tool-protocol surface spec.md §1 calls out of scope, a plain local
// CLI for exercising the pipeline by hand). Grounded on
// steveyegge-beads' cmd/bd-examples root-command-plus-subcommand
// layout: one rootCmd carrying persistent connection flags, one
// subcommand per operation, all under a single package main.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "queryctl:", err)
		os.Exit(1)
	}
}
