package songeval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Device is the execution device models run on.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// Features is the hidden-state tensor produced by the feature extractor,
// typically shaped [1, frames, dim].
type Features struct {
	Shape []int64
	Data  []float32
}

// FeatureExtractor turns a mono waveform at the configured sample rate
// into hidden-state features.
type FeatureExtractor interface {
	Extract(ctx context.Context, wav []float32) (*Features, error)
}

// Scorer maps features to one raw value per dimension.
type Scorer interface {
	Score(ctx context.Context, f *Features) ([]float32, error)
}

// Models is a loaded feature extractor and scorer pair.
type Models interface {
	FeatureExtractor
	Scorer
	Close() error
}

// ArtifactResolver maps an artifact URI from the config to a local path.
type ArtifactResolver interface {
	Resolve(ctx context.Context, uri string) (string, error)
}

// LoadRequest carries everything a backend needs to load models.
type LoadRequest struct {
	Config    *Config
	Device    Device
	Artifacts ArtifactResolver
	Logger    *slog.Logger
}

// Backend loads models for one inference runtime.
type Backend interface {
	Name() string

	// Accelerated reports whether a GPU execution provider is available.
	Accelerated() bool

	Load(ctx context.Context, req LoadRequest) (Models, error)
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// RegisterBackend makes a backend available by name. It is intended to be
// called from init functions. Registering the same name twice panics.
func RegisterBackend(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	name := b.Name()
	if _, exists := backends[name]; exists {
		panic(fmt.Sprintf("songeval: backend %q already registered", name))
	}
	backends[name] = b
}

// LookupBackend returns the backend registered under name.
func LookupBackend(name string) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return b, nil
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
