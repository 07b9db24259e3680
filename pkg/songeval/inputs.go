package songeval

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/haoheliu/SongEval/pkg/audio/audiofile"
)

// CollectInputs expands an input path into the audio files to evaluate.
//
// A .wav or .mp3 file yields itself. Any other file is read as a list of
// paths, one per line. A directory yields its audio files sorted by path,
// descending into subdirectories when recursive is set. Hidden files are
// skipped.
func CollectInputs(path string, recursive bool) ([]string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("songeval: input_path %s is not a file or directory", path)
	}
	switch {
	case st.Mode().IsRegular():
		if audiofile.Supported(path) {
			return []string{path}, nil
		}
		return readList(path)
	case st.IsDir():
		return globAudio(path, recursive)
	default:
		return nil, fmt.Errorf("songeval: input_path %s is not a file or directory", path)
	}
}

func readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var paths []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			paths = append(paths, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("songeval: read list %s: %w", path, err)
	}
	return paths, nil
}

func globAudio(dir string, recursive bool) ([]string, error) {
	pattern := "*"
	if recursive {
		pattern = "**/*"
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return nil, fmt.Errorf("songeval: glob %s: %w", dir, err)
	}
	var paths []string
	for _, m := range matches {
		if hidden(m) || !audiofile.Supported(m) {
			continue
		}
		full := filepath.Join(dir, filepath.FromSlash(m))
		if st, err := os.Stat(full); err != nil || !st.Mode().IsRegular() {
			continue
		}
		paths = append(paths, full)
	}
	sort.Strings(paths)
	return paths, nil
}

func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
