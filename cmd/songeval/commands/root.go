package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haoheliu/SongEval/pkg/cli"
	"github.com/haoheliu/SongEval/pkg/songeval"
	_ "github.com/haoheliu/SongEval/pkg/songeval/onnxmodel"
	"github.com/haoheliu/SongEval/pkg/storage"
)

const resultFile = "result.json"

var (
	// Global flags
	cfgFile  string
	cacheDir string
	verbose  bool

	// Evaluation flags
	inputPath   string
	outputDir   string
	useCPU      bool
	recursive   bool
	noCache     bool
	jqExpr      string
	showTable   bool
	backendName string
)

var rootCmd = &cobra.Command{
	Use:   "songeval",
	Short: "Score songs on five aesthetic dimensions",
	Long: `songeval - aesthetic evaluation of generated songs.

Every input file is scored on Coherence, Musicality, Memorability, Clarity
and Naturalness. Inputs may be a .wav/.mp3 file, a text file listing one
audio path per line, or a directory. Results are written to
<output_dir>/result.json; the output directory may be local or s3://bucket/prefix.

Model artifacts are read from ~/.songeval/models unless the config file
points elsewhere (local paths, s3:// or https:// URLs).

Examples:
  # Score every song in a directory
  songeval -i ./songs -o ./out

  # Force CPU and list songs whose coherence is below 3
  songeval -i list.txt -o ./out --use_cpu \
    --jq 'to_entries | map(select(.value.Coherence < 3)) | map(.key)'`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runEval,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "model config file (default is ~/.songeval/config.yaml, else built-in)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "score cache directory (default is ~/.songeval/cache)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	f := rootCmd.Flags()
	f.StringVarP(&inputPath, "input_path", "i", "", "audio file, list file or directory to evaluate")
	f.StringVarP(&outputDir, "output_dir", "o", "", "directory for result.json")
	f.BoolVar(&useCPU, "use_cpu", false, "force CPU even if a GPU is available")
	f.BoolVar(&recursive, "recursive", false, "descend into subdirectories of a directory input")
	f.BoolVar(&noCache, "no-cache", false, "do not read or write the score cache")
	f.StringVar(&jqExpr, "jq", "", "print the results filtered through a jq expression instead of the summary")
	f.BoolVar(&showTable, "table", false, "print the summary as a table")
	f.StringVar(&backendName, "backend", "", "inference backend (overrides the config)")
	rootCmd.MarkFlagRequired("input_path")
	rootCmd.MarkFlagRequired("output_dir")
}

// newLogger configures the default slog logger for this run.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads --config, then ~/.songeval/config.yaml, then falls back
// to the built-in config.
func loadConfig() (*songeval.Config, error) {
	if cfgFile != "" {
		return songeval.LoadConfig(cfgFile)
	}
	if paths, err := cli.NewPaths(); err == nil {
		if path, ok := paths.UserConfig(); ok {
			return songeval.LoadConfig(path)
		}
	}
	return songeval.DefaultConfig(), nil
}

// openCache opens the score cache, or returns nil with --no-cache.
func openCache(logger *slog.Logger) (*songeval.Cache, error) {
	if noCache {
		return nil, nil
	}
	dir := cacheDir
	if dir == "" {
		paths, err := cli.NewPaths()
		if err != nil {
			return nil, err
		}
		if err := paths.EnsureCacheDir(); err != nil {
			return nil, err
		}
		dir = paths.CacheDir()
	}
	return songeval.OpenCache(dir, logger)
}

func newResolver(cfg *songeval.Config, logger *slog.Logger) *storage.Resolver {
	r := storage.NewResolver(cfg.BaseDir)
	r.Logger = logger
	return r
}

func runEval(cmd *cobra.Command, args []string) error {
	logger := newLogger().With("run", uuid.NewString())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver := newResolver(cfg, logger)

	out, err := resolver.OpenDir(ctx, outputDir)
	if err != nil {
		return fmt.Errorf("output_dir: %w", err)
	}

	paths, err := songeval.CollectInputs(inputPath, recursive)
	if err != nil {
		return err
	}
	cli.PrintInfo("Found %d audio files to evaluate", len(paths))

	opts := []songeval.Option{
		songeval.WithCPU(useCPU),
		songeval.WithLogger(logger),
		songeval.WithArtifacts(resolver),
	}
	if backendName != "" {
		opts = append(opts, songeval.WithBackend(backendName))
	}
	cache, err := openCache(logger)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
		opts = append(opts, songeval.WithCache(cache))
	}

	ev, err := songeval.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer ev.Close()
	logger.Info("evaluator ready", "device", ev.Device(), "files", len(paths))

	start := time.Now()
	results, evalErr := ev.EvaluateSongs(ctx, paths)
	if results == nil {
		return evalErr
	}

	data, err := cli.MarshalJSON(results, cli.DefaultIndent)
	if err != nil {
		return err
	}
	// Partial results are still saved after an interrupt.
	if err := storage.WriteFile(context.WithoutCancel(ctx), out, resultFile, data); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	cli.PrintInfo("Results saved to %s", joinLocation(outputDir, resultFile))

	if jqExpr != "" {
		if err := cli.Query(os.Stdout, jqExpr, results); err != nil {
			return err
		}
	} else {
		styles := cli.NewStyles(cli.DefaultTheme)
		fmt.Println()
		if showTable {
			fmt.Print(cli.RenderTable(results, styles))
		} else {
			fmt.Print(cli.RenderSummary(results, styles))
		}
	}

	logger.Info("evaluation finished",
		"scored", results.Len(),
		"failed", len(paths)-results.Len(),
		"elapsed", cli.FormatDuration(time.Since(start)))
	if errors.Is(evalErr, context.Canceled) {
		return fmt.Errorf("interrupted after %d of %d files", results.Len(), len(paths))
	}
	return evalErr
}

func joinLocation(dir, name string) string {
	return strings.TrimSuffix(dir, "/") + "/" + name
}
