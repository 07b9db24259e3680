package songeval

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// fakeRaw is what fakeModels.Score returns.
var fakeRaw = []float32{3.123456, 2.71828, 1.41421, 0.5, 3.33333}

type fakeBackend struct {
	name        string
	accelerated bool

	mu        sync.Mutex
	loads     int
	failLoads int // number of initial Load calls that fail
	extracts  int
	closed    int
	lastReq   LoadRequest
}

// registerFake registers a fresh fake backend under the test's name.
func registerFake(t *testing.T) *fakeBackend {
	t.Helper()
	return registerFakeNamed("fake/" + t.Name())
}

func registerFakeNamed(name string) *fakeBackend {
	b := &fakeBackend{name: name}
	RegisterBackend(b)
	return b
}

func (b *fakeBackend) Name() string      { return b.name }
func (b *fakeBackend) Accelerated() bool { return b.accelerated }

func (b *fakeBackend) Load(_ context.Context, req LoadRequest) (Models, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads++
	b.lastReq = req
	if b.loads <= b.failLoads {
		return nil, errors.New("weights unavailable")
	}
	return &fakeModels{b: b}, nil
}

func (b *fakeBackend) counts() (loads, extracts, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads, b.extracts, b.closed
}

type fakeModels struct{ b *fakeBackend }

func (m *fakeModels) Extract(ctx context.Context, wav []float32) (*Features, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.b.mu.Lock()
	m.b.extracts++
	m.b.mu.Unlock()
	if len(wav) == 0 {
		return nil, errors.New("empty waveform")
	}
	return &Features{Shape: []int64{1, 1, int64(len(wav))}, Data: wav}, nil
}

func (m *fakeModels) Score(_ context.Context, f *Features) ([]float32, error) {
	return append([]float32(nil), fakeRaw...), nil
}

func (m *fakeModels) Close() error {
	m.b.mu.Lock()
	m.b.closed++
	m.b.mu.Unlock()
	return nil
}

// testLogger returns a logger writing text records into buf.
func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestEvaluator(t *testing.T, b *fakeBackend, opts ...Option) *Evaluator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseDir = t.TempDir()
	opts = append([]Option{WithBackend(b.Name()), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// writeWAV writes a short 16-bit mono tone.
func writeWAV(t *testing.T, path string, rate, frames int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data := make([]int, frames)
	for i := range data {
		data[i] = int(math.Sin(2*math.Pi*440*float64(i)/float64(rate)) * 12000)
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func wantScores() Scores {
	return Scores{Coherence: 3.1235, Musicality: 2.7183, Memorability: 1.4142, Clarity: 0.5, Naturalness: 3.3333}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
