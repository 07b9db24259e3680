package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/haoheliu/SongEval/cmd/songeval/internal/build"
	"github.com/haoheliu/SongEval/pkg/songeval"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(build.String())
		if verbose {
			fmt.Printf("  go:       %s\n", runtime.Version())
			fmt.Printf("  backends: %v\n", songeval.Backends())
			fmt.Printf("  models:   %s\n", songeval.DefaultModelDir())
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
