package commands

import (
	"github.com/spf13/cobra"

	"github.com/haoheliu/SongEval/pkg/cli"
	"github.com/haoheliu/SongEval/pkg/songeval/onnxmodel"
)

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the scorer checkpoint and how it matches the scorer graph",
	Long: `Lists every tensor in the configured safetensors checkpoint and, when the
scorer graph can be opened, reports matched, missing and unexpected weights.

Examples:
  songeval inspect
  songeval inspect --config ./songeval.yaml --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ins, err := onnxmodel.Inspect(cmd.Context(), cfg, newResolver(cfg, logger))
		if err != nil {
			return err
		}
		if ins.ScorerError != "" {
			cli.PrintWarning("scorer graph unavailable: %s", ins.ScorerError)
		}
		return cli.Output(ins, cli.OutputOptions{Format: cli.OutputFormat(inspectFormat)})
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "json", "output format (json, yaml)")
	rootCmd.AddCommand(inspectCmd)
}
