// Package main provides the songeval CLI.
//
// Usage:
//
//	songeval -i <file|list|dir> -o <output_dir> [--use_cpu]
//	songeval inspect
//	songeval cache list|clear
//	songeval version
//
// Scores are written to <output_dir>/result.json and summarized on stdout.
package main

import (
	"fmt"
	"os"

	"github.com/haoheliu/SongEval/cmd/songeval/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
