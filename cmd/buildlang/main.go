// Command buildlang is the CLI front end for the buildlang parser: it
// tokenizes, parses, and pretty-prints build-configuration source files
// under a configurable dialect policy.
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		slog.Error("buildlang failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
