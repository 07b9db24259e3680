package songeval

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed config.yaml
var defaultConfigData []byte

// Config describes the two models and the fixed pipeline constants.
type Config struct {
	// Backend names the registered inference backend (default "onnx").
	Backend string `yaml:"backend"`

	// SampleRate is the rate audio is resampled to before feature extraction.
	SampleRate int `yaml:"sample_rate"`

	// Precision is the number of decimal places scores are rounded to.
	Precision int `yaml:"precision"`

	// Dimensions names scorer output i. Must be a permutation of the five
	// aesthetic dimensions.
	Dimensions []string `yaml:"dimensions"`

	FeatureExtractor FeatureExtractorConfig `yaml:"feature_extractor"`
	Scorer           ScorerConfig           `yaml:"scorer"`
	Runtime          RuntimeConfig          `yaml:"runtime"`

	// BaseDir is where relative artifact paths resolve. LoadConfig sets it
	// to the directory of the config file.
	BaseDir string `yaml:"-"`
}

// FeatureExtractorConfig configures the pretrained audio representation model.
type FeatureExtractorConfig struct {
	// Model is the artifact URI of the exported graph.
	Model string `yaml:"model"`

	// Input is the name of the waveform input, shaped [1, samples].
	Input string `yaml:"input"`

	// OutputPrefix and Layer form the hidden-state output name,
	// e.g. "hidden_state_6".
	OutputPrefix string `yaml:"output_prefix"`
	Layer        int    `yaml:"layer"`
}

// OutputName returns the graph output holding the configured hidden state.
func (c FeatureExtractorConfig) OutputName() string {
	return fmt.Sprintf("%s%d", c.OutputPrefix, c.Layer)
}

// ScorerConfig configures the regression model.
type ScorerConfig struct {
	Model string `yaml:"model"`

	// Checkpoint is an optional safetensors file whose tensors replace the
	// graph's overridable initializers.
	Checkpoint string `yaml:"checkpoint"`

	Input  string `yaml:"input"`
	Output string `yaml:"output"`

	// Strict rejects checkpoints with missing or unexpected keys.
	Strict bool `yaml:"strict"`
}

// RuntimeConfig tunes the inference runtime.
type RuntimeConfig struct {
	DeviceID       int `yaml:"device_id"`
	IntraOpThreads int `yaml:"intra_op_threads"`
}

// DefaultModelDir returns $SONGEVAL_MODEL_DIR, or ~/.songeval/models.
func DefaultModelDir() string {
	if dir := os.Getenv("SONGEVAL_MODEL_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "models"
	}
	return filepath.Join(home, ".songeval", "models")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	cfg, err := ParseConfig(defaultConfigData)
	if err != nil {
		panic("songeval: invalid built-in config: " + err.Error())
	}
	cfg.BaseDir = DefaultModelDir()
	return cfg
}

// LoadConfig reads a YAML config file. Unset fields keep their built-in
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("songeval: read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("songeval: %s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg.BaseDir = abs
	return cfg, nil
}

// ParseConfig decodes a YAML document over the built-in defaults and
// validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultConfigData, cfg); err != nil {
		return nil, err
	}
	// Lists replace rather than merge.
	cfg.Dimensions = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Dimensions) == 0 {
		cfg.Dimensions = DimensionNames()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var problems []string
	if c.SampleRate <= 0 {
		problems = append(problems, fmt.Sprintf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.Precision < 0 || c.Precision > 15 {
		problems = append(problems, fmt.Sprintf("precision must be in [0, 15], got %d", c.Precision))
	}
	if err := validateDimensions(c.Dimensions); err != nil {
		problems = append(problems, err.Error())
	}
	if c.FeatureExtractor.Model == "" {
		problems = append(problems, "feature_extractor.model is required")
	}
	if c.FeatureExtractor.Input == "" {
		problems = append(problems, "feature_extractor.input is required")
	}
	if c.FeatureExtractor.Layer < 0 {
		problems = append(problems, fmt.Sprintf("feature_extractor.layer must be >= 0, got %d", c.FeatureExtractor.Layer))
	}
	if c.Scorer.Model == "" {
		problems = append(problems, "scorer.model is required")
	}
	if c.Scorer.Input == "" || c.Scorer.Output == "" {
		problems = append(problems, "scorer.input and scorer.output are required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func validateDimensions(dims []string) error {
	if len(dims) != len(allDimensions) {
		return fmt.Errorf("dimensions must list %d names, got %d", len(allDimensions), len(dims))
	}
	seen := make(map[Dimension]bool, len(dims))
	for _, name := range dims {
		d := Dimension(name)
		if !d.Valid() {
			return fmt.Errorf("unknown dimension %q", name)
		}
		if seen[d] {
			return fmt.Errorf("duplicate dimension %q", name)
		}
		seen[d] = true
	}
	return nil
}

// Fingerprint identifies the configured model setup. It covers the config
// only; Evaluator.Fingerprint adds the artifacts' file stamps.
func (c *Config) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%s|", c.Backend, c.SampleRate, c.Precision, strings.Join(c.Dimensions, ","))
	fmt.Fprintf(h, "%s|%s|%d|", c.FeatureExtractor.Model, c.FeatureExtractor.OutputName(), c.FeatureExtractor.Layer)
	fmt.Fprintf(h, "%s|%s|%s|%s|%t", c.Scorer.Model, c.Scorer.Checkpoint, c.Scorer.Input, c.Scorer.Output, c.Scorer.Strict)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Artifacts returns the artifact URIs the models are loaded from.
func (c *Config) Artifacts() []string {
	uris := []string{c.FeatureExtractor.Model, c.Scorer.Model}
	if c.Scorer.Checkpoint != "" {
		uris = append(uris, c.Scorer.Checkpoint)
	}
	return uris
}
