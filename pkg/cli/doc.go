// Package cli provides shared helpers for the songeval command line:
// result output (JSON, YAML), jq queries over results, the styled score
// summary, and the ~/.songeval directory layout.
//
// Example usage:
//
//	cli.Output(results, cli.OutputOptions{Format: cli.FormatJSON})
//	fmt.Print(cli.RenderSummary(results, cli.NewStyles(cli.DefaultTheme)))
package cli
