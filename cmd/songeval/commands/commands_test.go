package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haoheliu/SongEval/pkg/songeval"
)

const testBackend = "cmdtest"

var fake = &fakeBackend{}

func init() {
	songeval.RegisterBackend(fake)
}

type fakeBackend struct {
	mu       sync.Mutex
	extracts int
}

func (b *fakeBackend) Name() string      { return testBackend }
func (b *fakeBackend) Accelerated() bool { return false }

func (b *fakeBackend) Load(context.Context, songeval.LoadRequest) (songeval.Models, error) {
	return fakeModels{b}, nil
}

func (b *fakeBackend) extractCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.extracts
}

type fakeModels struct{ b *fakeBackend }

func (m fakeModels) Extract(_ context.Context, wav []float32) (*songeval.Features, error) {
	m.b.mu.Lock()
	m.b.extracts++
	m.b.mu.Unlock()
	return &songeval.Features{Shape: []int64{1, int64(len(wav))}, Data: wav}, nil
}

func (m fakeModels) Score(context.Context, *songeval.Features) ([]float32, error) {
	return []float32{3.123456, 2.71828, 1.41421, 0.5, 3.33333}, nil
}

func (fakeModels) Close() error { return nil }

// setupTestEnv points HOME and the model dir at temp dirs so no user
// config or cache is touched.
func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("SONGEVAL_MODEL_DIR", filepath.Join(dir, "models"))
	t.Setenv("SONGEVAL_CACHE_DIR", filepath.Join(dir, "artifacts"))
	return dir
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); outBuf.ReadFrom(rOut) }()
	go func() { defer wg.Done(); errBuf.ReadFrom(rErr) }()

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	wOut.Close()
	wErr.Close()
	wg.Wait()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		stderr += err.Error()
	}

	resetFlags(rootCmd)
	return
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func writeWAV(t *testing.T, path string, frames int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data := make([]int, frames)
	for i := range data {
		data[i] = int(math.Sin(2*math.Pi*440*float64(i)/24000) * 12000)
	}
	enc := wav.NewEncoder(f, 24000, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 24000},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

// songsDir holds two valid songs, one undecodable song and a non-audio file.
func songsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "b.wav"), 2400)
	writeWAV(t, filepath.Join(dir, "a.take1.wav"), 4800)
	if err := os.WriteFile(filepath.Join(dir, "broken.wav"), []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func readResults(t *testing.T, path string) *songeval.Results {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var r songeval.Results
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return &r
}

func TestEval(t *testing.T) {
	setupTestEnv(t)
	songs := songsDir(t)
	out := filepath.Join(t.TempDir(), "out")

	stdout, stderr, code := runCmd(t, "-i", songs, "-o", out, "--backend", testBackend, "--no-cache")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Found 3 audio files to evaluate") {
		t.Errorf("missing file count in: %s", stdout)
	}
	if !strings.Contains(stdout, "Results saved to "+out+"/result.json") {
		t.Errorf("missing save line in: %s", stdout)
	}
	if !strings.Contains(stdout, "Evaluation Summary:") || !strings.Contains(stdout, "Coherence: 3.1235") {
		t.Errorf("missing summary in: %s", stdout)
	}
	if !strings.Contains(stderr, "Error evaluating "+filepath.Join(songs, "broken.wav")) {
		t.Errorf("missing per-file error in: %s", stderr)
	}

	data, err := os.ReadFile(filepath.Join(out, "result.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "{\n    \"a\": {\n        \"Coherence\": 3.1235,") {
		t.Errorf("unexpected layout:\n%s", data)
	}
	r := readResults(t, filepath.Join(out, "result.json"))
	if got := r.IDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("IDs = %v, want [a b]", got)
	}
	s, _ := r.Get("b")
	if s.Naturalness != 3.3333 {
		t.Errorf("Naturalness = %v", s.Naturalness)
	}
}

func TestEvalTable(t *testing.T) {
	setupTestEnv(t)
	out := t.TempDir()

	stdout, stderr, code := runCmd(t, "-i", songsDir(t), "-o", out, "--backend", testBackend, "--no-cache", "--table")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Musicality") || !strings.Contains(stdout, "2.7183") {
		t.Errorf("missing table in: %s", stdout)
	}
}

func TestEvalJQ(t *testing.T) {
	setupTestEnv(t)
	out := t.TempDir()

	stdout, stderr, code := runCmd(t, "-i", songsDir(t), "-o", out, "--backend", testBackend, "--no-cache", "--jq", ".b.Clarity")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.HasSuffix(stdout, "0.5\n") {
		t.Errorf("jq output = %q", stdout)
	}
	if strings.Contains(stdout, "Evaluation Summary:") {
		t.Error("summary printed alongside --jq")
	}
}

func TestEvalListFile(t *testing.T) {
	dir := setupTestEnv(t)
	songs := songsDir(t)
	list := filepath.Join(dir, "list.txt")
	content := "\n  " + filepath.Join(songs, "b.wav") + "  \n" + filepath.Join(songs, "missing.wav") + "\n"
	if err := os.WriteFile(list, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()

	stdout, stderr, code := runCmd(t, "-i", list, "-o", out, "--backend", testBackend, "--no-cache")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Found 2 audio files to evaluate") {
		t.Errorf("stdout: %s", stdout)
	}
	r := readResults(t, filepath.Join(out, "result.json"))
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestEvalRequiredFlags(t *testing.T) {
	setupTestEnv(t)
	_, stderr, code := runCmd(t, "-o", t.TempDir())
	if code == 0 {
		t.Fatal("expected failure without --input_path")
	}
	if !strings.Contains(stderr, "input_path") {
		t.Errorf("stderr: %s", stderr)
	}
}

func TestEvalBadInput(t *testing.T) {
	dir := setupTestEnv(t)
	_, stderr, code := runCmd(t, "-i", filepath.Join(dir, "nope"), "-o", t.TempDir(), "--backend", testBackend, "--no-cache")
	if code == 0 {
		t.Fatal("expected failure for missing input")
	}
	if !strings.Contains(stderr, "is not a file or directory") {
		t.Errorf("stderr: %s", stderr)
	}
}

func TestEvalUnknownBackend(t *testing.T) {
	setupTestEnv(t)
	_, stderr, code := runCmd(t, "-i", songsDir(t), "-o", t.TempDir(), "--backend", "nope", "--no-cache")
	if code == 0 {
		t.Fatal("expected failure")
	}
	if !strings.Contains(stderr, "nope") {
		t.Errorf("stderr: %s", stderr)
	}
}

func TestEvalCache(t *testing.T) {
	dir := setupTestEnv(t)
	songs := songsDir(t)
	cacheDir := filepath.Join(dir, "scores")
	args := []string{"-i", songs, "-o", t.TempDir(), "--backend", testBackend, "--cache-dir", cacheDir}

	if _, stderr, code := runCmd(t, args...); code != 0 {
		t.Fatalf("first run exit %d: %s", code, stderr)
	}
	before := fake.extractCount()
	if _, stderr, code := runCmd(t, args...); code != 0 {
		t.Fatalf("second run exit %d: %s", code, stderr)
	}
	if got := fake.extractCount(); got != before {
		t.Errorf("cached run extracted %d more times", got-before)
	}

	stdout, stderr, code := runCmd(t, "cache", "list", "--cache-dir", cacheDir)
	if code != 0 {
		t.Fatalf("cache list exit %d: %s", code, stderr)
	}
	var entries []songeval.CacheEntry
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("cache list output %q: %v", stdout, err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	stdout, stderr, code = runCmd(t, "cache", "clear", "--cache-dir", cacheDir)
	if code != 0 {
		t.Fatalf("cache clear exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Removed 2 cached scores") {
		t.Errorf("stdout: %s", stdout)
	}
}

func TestInspectMissingCheckpoint(t *testing.T) {
	setupTestEnv(t)
	_, stderr, code := runCmd(t, "inspect")
	if code == 0 {
		t.Fatal("expected failure without model artifacts")
	}
	if !strings.Contains(stderr, "checkpoint") {
		t.Errorf("stderr: %s", stderr)
	}
}

func TestVersion(t *testing.T) {
	setupTestEnv(t)
	stdout, _, code := runCmd(t, "version")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "songeval") {
		t.Fatalf("expected 'songeval', got: %s", stdout)
	}
}

func TestJoinLocation(t *testing.T) {
	tests := []struct{ dir, want string }{
		{"out", "out/result.json"},
		{"out/", "out/result.json"},
		{"s3://bucket/run", "s3://bucket/run/result.json"},
	}
	for _, tt := range tests {
		if got := joinLocation(tt.dir, resultFile); got != tt.want {
			t.Errorf("joinLocation(%q) = %q, want %q", tt.dir, got, tt.want)
		}
	}
}
