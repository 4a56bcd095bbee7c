package main

import (
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"buildlang/internal/ast"
	"buildlang/internal/parser"
)

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "parse a source file and print the resulting AST as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(args[0])
		},
	}
}

func runParse(path string) error {
	traceID := ulid.Make().String()
	root, diags := parser.ParseFile(path, resolved.Dialect, traceID)

	output := map[string]interface{}{"diagnostics": diagsToSlice(diags)}
	if root != nil {
		output["ast"] = ast.NodeToMap(root)
	}
	printJSON(output)

	if len(diags) > 0 {
		os.Exit(1)
	}
	return nil
}
