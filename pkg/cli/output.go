package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	// FormatJSON outputs indented JSON with non-ASCII text preserved
	FormatJSON OutputFormat = "json"
	// FormatYAML outputs YAML
	FormatYAML OutputFormat = "yaml"
	// FormatRaw writes strings and bytes as-is
	FormatRaw OutputFormat = "raw"
)

// DefaultIndent matches the layout of result.json.
const DefaultIndent = "    "

// OutputOptions configures output behavior
type OutputOptions struct {
	// Format is the output format (json, yaml, raw). Empty means JSON.
	Format OutputFormat

	// Indent is the indentation for JSON output
	Indent string

	// Writer defaults to os.Stdout
	Writer io.Writer
}

// Output writes result in the configured format.
func Output(result any, opts OutputOptions) error {
	var w io.Writer = os.Stdout
	if opts.Writer != nil {
		w = opts.Writer
	}

	switch opts.Format {
	case FormatJSON, "":
		return outputJSON(w, result, opts.Indent)
	case FormatYAML:
		return outputYAML(w, result)
	case FormatRaw:
		return outputRaw(w, result)
	default:
		return fmt.Errorf("unsupported output format: %s", opts.Format)
	}
}

// MarshalJSON encodes result the way Output does, without the trailing
// newline.
func MarshalJSON(result any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	if err := outputJSON(&buf, result, indent); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func outputJSON(w io.Writer, result any, indent string) error {
	enc := json.NewEncoder(w)
	if indent == "" {
		indent = DefaultIndent
	}
	enc.SetIndent("", indent)
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}

func outputYAML(w io.Writer, result any) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func outputRaw(w io.Writer, result any) error {
	switch v := result.(type) {
	case []byte:
		_, err := w.Write(v)
		return err
	case string:
		_, err := io.WriteString(w, v)
		return err
	default:
		return outputJSON(w, result, "")
	}
}

// Print helpers for terminal output

// PrintSuccess prints a success message with checkmark
func PrintSuccess(format string, args ...any) {
	fmt.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message to stderr
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// PrintWarning prints a warning message to stderr
func PrintWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "⚠ "+format+"\n", args...)
}
