package songeval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/haoheliu/SongEval/pkg/audio/audiofile"
	"github.com/haoheliu/SongEval/pkg/storage"
)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCPU forces CPU execution even when an accelerator is available.
func WithCPU(force bool) Option {
	return func(e *Evaluator) { e.forceCPU = force }
}

// WithBackend selects a registered backend, overriding Config.Backend.
func WithBackend(name string) Option {
	return func(e *Evaluator) { e.backendName = name }
}

// WithCache attaches a score cache.
func WithCache(c *Cache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithArtifacts sets how model artifact URIs are resolved. The default is a
// storage.Resolver rooted at Config.BaseDir.
func WithArtifacts(r ArtifactResolver) Option {
	return func(e *Evaluator) { e.artifacts = r }
}

// Evaluator scores songs. Models are loaded on first use. All methods are
// safe for concurrent use; setup and inference are serialized.
type Evaluator struct {
	cfg         *Config
	backendName string
	backend     Backend
	forceCPU    bool
	device      Device
	cache       *Cache
	logger      *slog.Logger
	artifacts   ArtifactResolver

	fpMu        sync.Mutex
	fingerprint string

	mu     sync.Mutex
	models Models
	closed bool
}

// New creates an Evaluator for cfg. A nil cfg uses DefaultConfig. The
// device is chosen here; models are not loaded until Setup or the first
// evaluation.
func New(cfg *Config, opts ...Option) (*Evaluator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("songeval: %w", err)
	}
	e := &Evaluator{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.backendName == "" {
		e.backendName = cfg.Backend
	}
	b, err := LookupBackend(e.backendName)
	if err != nil {
		return nil, err
	}
	e.backend = b
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.artifacts == nil {
		e.artifacts = storage.NewResolver(cfg.BaseDir)
	}
	e.device = DeviceCPU
	if !e.forceCPU && b.Accelerated() {
		e.device = DeviceCUDA
	}
	e.logger.Debug("evaluator created", "backend", b.Name(), "device", e.device, "config", cfg.Fingerprint())
	return e, nil
}

// Config returns the evaluator's configuration.
func (e *Evaluator) Config() *Config { return e.cfg }

// Device returns the execution device chosen at construction.
func (e *Evaluator) Device() Device { return e.device }

// Fingerprint identifies the model setup used for cache keys: the config
// plus the size and modification time of every model artifact.
func (e *Evaluator) Fingerprint() string {
	return e.modelFingerprint(context.Background())
}

// modelFingerprint is remembered once every artifact resolves. Until then
// it is recomputed, so artifacts that appear later change the key.
func (e *Evaluator) modelFingerprint(ctx context.Context) string {
	e.fpMu.Lock()
	defer e.fpMu.Unlock()
	if e.fingerprint != "" {
		return e.fingerprint
	}

	h := sha256.New()
	io.WriteString(h, e.cfg.Fingerprint())
	resolved := true
	for _, uri := range e.cfg.Artifacts() {
		fmt.Fprintf(h, "|%s=", uri)
		st, err := e.statArtifact(ctx, uri)
		if err != nil {
			e.logger.Debug("artifact not available for fingerprint", "artifact", uri, "error", err)
			io.WriteString(h, "unresolved")
			resolved = false
			continue
		}
		fmt.Fprintf(h, "%d:%d", st.Size(), st.ModTime().UnixNano())
	}
	fp := hex.EncodeToString(h.Sum(nil))[:16]
	if resolved {
		e.fingerprint = fp
	}
	return fp
}

func (e *Evaluator) statArtifact(ctx context.Context, uri string) (fs.FileInfo, error) {
	path, err := e.artifacts.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

// Setup loads the models if they are not loaded yet. A failed setup leaves
// the evaluator unloaded so the next call retries.
func (e *Evaluator) Setup(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.setupLocked(ctx)
	return err
}

func (e *Evaluator) setupLocked(ctx context.Context) (Models, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if e.models != nil {
		return e.models, nil
	}
	start := time.Now()
	e.logger.Info("loading models", "backend", e.backend.Name(), "device", e.device)
	models, err := e.backend.Load(ctx, LoadRequest{
		Config:    e.cfg,
		Device:    e.device,
		Artifacts: e.artifacts,
		Logger:    e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("songeval: load models: %w", err)
	}
	if models == nil {
		return nil, ErrModelNotLoaded
	}
	e.models = models
	e.logger.Info("models loaded", "elapsed", time.Since(start).Round(time.Millisecond))
	return models, nil
}

// checkInput validates path before any model work.
func checkInput(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("songeval: stat %s: %w", path, err)
	}
	if !audiofile.Supported(path) {
		return fmt.Errorf("%w: please use .wav or .mp3 files, got %s", ErrUnsupportedFormat, path)
	}
	return nil
}

// EvaluateSong scores one audio file.
func (e *Evaluator) EvaluateSong(ctx context.Context, path string) (Scores, error) {
	if err := checkInput(path); err != nil {
		return Scores{}, err
	}

	var digest, fingerprint string
	if e.cache != nil {
		d, err := FileDigest(path)
		if err != nil {
			return Scores{}, err
		}
		digest = d
		fingerprint = e.modelFingerprint(ctx)
		s, ok, err := e.cache.Get(ctx, fingerprint, digest)
		if err != nil {
			e.logger.Warn("score cache lookup failed", "path", path, "error", err)
		} else if ok {
			e.logger.Debug("score cache hit", "path", path, "digest", digest)
			return s, nil
		}
	}

	s, err := e.score(ctx, path)
	if err != nil {
		return Scores{}, err
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, fingerprint, digest, path, s); err != nil {
			e.logger.Warn("score cache store failed", "path", path, "error", err)
		}
	}
	return s, nil
}

func (e *Evaluator) score(ctx context.Context, path string) (Scores, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	models, err := e.setupLocked(ctx)
	if err != nil {
		return Scores{}, err
	}
	if err := ctx.Err(); err != nil {
		return Scores{}, err
	}

	wav, err := audiofile.Load(path, e.cfg.SampleRate)
	if err != nil {
		return Scores{}, err
	}
	feats, err := models.Extract(ctx, wav)
	if err != nil {
		return Scores{}, fmt.Errorf("songeval: extract features: %w", err)
	}
	raw, err := models.Score(ctx, feats)
	if err != nil {
		return Scores{}, fmt.Errorf("songeval: score: %w", err)
	}
	return newScores(raw, e.cfg.Dimensions, e.cfg.Precision)
}

// EvaluateSongs scores paths one at a time, in order. Files that fail are
// logged and left out of the results. A setup failure is returned before
// any file is read. If ctx is cancelled the partial results are returned
// with the context error.
func (e *Evaluator) EvaluateSongs(ctx context.Context, paths []string) (*Results, error) {
	if err := e.Setup(ctx); err != nil {
		return nil, err
	}
	results := NewResults()
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		s, err := e.EvaluateSong(ctx, path)
		if err != nil {
			e.logger.Error(fmt.Sprintf("Error evaluating %s: %v", path, err), "path", path)
			continue
		}
		results.Set(FileID(path), s)
	}
	return results, ctx.Err()
}

// Close releases the models. Further calls return ErrClosed.
func (e *Evaluator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.models == nil {
		return nil
	}
	err := e.models.Close()
	e.models = nil
	return err
}
