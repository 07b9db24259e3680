package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haoheliu/SongEval/pkg/songeval"
)

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{
		"name":  "test",
		"value": 123,
	}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if result["name"] != "test" {
		t.Errorf("name = %v, want %q", result["name"], "test")
	}
	if !strings.Contains(buf.String(), "\n    \"name\"") {
		t.Errorf("expected 4-space indent, got: %s", buf.String())
	}
}

func TestOutput_JSONResultsLayout(t *testing.T) {
	r := songeval.NewResults()
	r.Set("曲<1>", songeval.Scores{Coherence: 1.5, Musicality: 2, Memorability: 3, Clarity: 4, Naturalness: 5})

	got, err := MarshalJSON(r, "")
	if err != nil {
		t.Fatal(err)
	}
	want := `{
    "曲<1>": {
        "Coherence": 1.5,
        "Musicality": 2.0,
        "Memorability": 3.0,
        "Clarity": 4.0,
        "Naturalness": 5.0
    }
}`
	if string(got) != want {
		t.Fatalf("MarshalJSON =\n%s\nwant\n%s", got, want)
	}
}

func TestOutput_YAML(t *testing.T) {
	var buf bytes.Buffer

	err := Output(map[string]any{"name": "test"}, OutputOptions{
		Format: FormatYAML,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), "name: test") {
		t.Errorf("Output should contain 'name: test', got: %s", buf.String())
	}
}

func TestOutput_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer

	// Empty format defaults to JSON.
	if err := Output(map[string]string{"key": "value"}, OutputOptions{Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), `"key": "value"`) {
		t.Errorf("Default format should be JSON, got: %s", buf.String())
	}
}

func TestOutput_Raw(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"bytes", []byte("raw binary data"), "raw binary data"},
		{"string", "raw string data", "raw string data"},
		{"other", map[string]int{"count": 42}, "{\n    \"count\": 42\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Output(tt.data, OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("Output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Output("data", OutputOptions{Format: "xml", Writer: &buf})
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported output format") {
		t.Errorf("unexpected error: %v", err)
	}
}
