package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/haoheliu/SongEval/pkg/cli"
	"github.com/haoheliu/SongEval/pkg/songeval"
)

var cacheFormat string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the score cache",
	Long: `Scores are cached by audio content and model configuration so that
re-evaluating an unchanged file skips inference.`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCommandCache()
		if err != nil {
			return err
		}
		defer cache.Close()

		entries := []songeval.CacheEntry{}
		for e, err := range cache.List(cmd.Context()) {
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return cli.Output(entries, cli.OutputOptions{Format: cli.OutputFormat(cacheFormat)})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCommandCache()
		if err != nil {
			return err
		}
		defer cache.Close()

		n, err := cache.Clear(cmd.Context())
		if err != nil {
			return err
		}
		cli.PrintSuccess("Removed %d cached scores", n)
		return nil
	},
}

// openCommandCache opens the cache for the cache subcommands, which do
// not take --no-cache.
func openCommandCache() (*songeval.Cache, error) {
	cache, err := openCache(newLogger())
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return nil, errors.New("score cache is disabled")
	}
	return cache, nil
}

func init() {
	cacheListCmd.Flags().StringVar(&cacheFormat, "format", "json", "output format (json, yaml)")
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
