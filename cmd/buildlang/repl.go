package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"buildlang/internal/ast"
	"buildlang/internal/parser"
)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "parse source entered interactively and print the resulting AST",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl()
		},
	}
}

// runRepl reads source a block at a time (terminated by a blank line once
// all brackets are balanced; while a bracket is open, blank lines are kept
// in the block) and prints the parsed AST or diagnostics
// for each block. There is no evaluator in scope — this only exercises
// the lexer/parser pipeline interactively.
func runRepl() error {
	rl, err := readline.New("buildlang> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	var block strings.Builder
	depth := 0

	for {
		prompt := "buildlang> "
		if depth > 0 || block.Len() > 0 {
			prompt = "........ "
		}
		rl.SetPrompt(prompt)

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if block.Len() == 0 {
				continue
			}
			block.Reset()
			depth = 0
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		depth += strings.Count(line, "(") + strings.Count(line, "[") + strings.Count(line, "{")
		depth -= strings.Count(line, ")") + strings.Count(line, "]") + strings.Count(line, "}")
		if depth < 0 {
			depth = 0
		}

		block.WriteString(line)
		block.WriteString("\n")

		if strings.TrimSpace(line) == "" && depth == 0 {
			replParseBlock(block.String())
			block.Reset()
			continue
		}
		if depth > 0 {
			continue
		}
	}
}

func replParseBlock(source string) {
	if strings.TrimSpace(source) == "" {
		return
	}

	traceID := ulid.Make().String()
	root, diags := parser.ParseString(source, "<repl>", resolved.Dialect, traceID)
	if len(diags) > 0 {
		printDiagsText(diags)
		return
	}

	printJSON(ast.NodeToMap(root))
	fmt.Println()
}
