package songeval

import (
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"b.wav", "a.MP3", "notes.txt", ".hidden.wav",
		"sub/c.wav", "sub/deeper/d.mp3", ".git/e.wav",
	} {
		writeFile(t, filepath.Join(dir, filepath.FromSlash(name)), "x")
	}
	list := filepath.Join(t.TempDir(), "list.txt")
	writeFile(t, list, "  /music/one.wav\n\n/music/two.mp3  \r\n")

	rel := func(paths []string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			r, _ := filepath.Rel(dir, p)
			out[i] = filepath.ToSlash(r)
		}
		return out
	}

	tests := []struct {
		name      string
		path      string
		recursive bool
		want      []string
		raw       bool
	}{
		{name: "single file", path: filepath.Join(dir, "b.wav"), want: []string{"b.wav"}},
		{name: "directory", path: dir, want: []string{"a.MP3", "b.wav"}},
		{name: "recursive", path: dir, recursive: true, want: []string{"a.MP3", "b.wav", "sub/c.wav", "sub/deeper/d.mp3"}},
		{name: "list file", path: list, raw: true, want: []string{"/music/one.wav", "/music/two.mp3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CollectInputs(tt.path, tt.recursive)
			if err != nil {
				t.Fatal(err)
			}
			if !tt.raw {
				got = rel(got)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("CollectInputs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollectInputsMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nothing")
	_, err := CollectInputs(missing, false)
	if err == nil || !strings.Contains(err.Error(), "is not a file or directory") {
		t.Fatalf("err = %v", err)
	}
}

func TestCollectInputsEmptyDir(t *testing.T) {
	got, err := CollectInputs(t.TempDir(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want none", got)
	}
}
