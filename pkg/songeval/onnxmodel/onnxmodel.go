// Package onnxmodel runs the SongEval models with ONNX Runtime.
//
// Importing the package registers the "onnx" backend with songeval. The
// feature extractor is a MuQ graph exported with all hidden states as
// outputs; the scorer is a graph whose weights are overridable
// initializers, filled from a safetensors checkpoint at load time.
package onnxmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/haoheliu/SongEval/pkg/onnx"
	"github.com/haoheliu/SongEval/pkg/safetensors"
	"github.com/haoheliu/SongEval/pkg/songeval"
)

// Name is the backend name used in the config.
const Name = "onnx"

func init() {
	songeval.RegisterBackend(Backend{})
}

// Backend is the ONNX Runtime backend.
type Backend struct{}

func (Backend) Name() string { return Name }

func (Backend) Accelerated() bool { return onnx.CUDAAvailable() }

func (Backend) Load(ctx context.Context, req songeval.LoadRequest) (songeval.Models, error) {
	m, err := Load(ctx, req)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Models holds the two sessions and the checkpoint tensors bound to the
// scorer.
type Models struct {
	cfg       *songeval.Config
	env       *onnx.Env
	extractor *onnx.Session
	scorer    *onnx.Session

	weightNames []string
	weights     []*onnx.Tensor

	// Report describes how the checkpoint matched the scorer graph. Nil
	// when no checkpoint is configured.
	Report *safetensors.MatchReport

	closeOnce sync.Once
}

// Load resolves the artifacts in req.Config and creates both sessions.
// The scorer is loaded first so a bad checkpoint fails before the much
// larger feature extractor is read.
func Load(ctx context.Context, req songeval.LoadRequest) (*Models, error) {
	cfg := req.Config
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if req.Artifacts == nil {
		return nil, errors.New("onnxmodel: no artifact resolver")
	}

	scorerPath, err := req.Artifacts.Resolve(ctx, cfg.Scorer.Model)
	if err != nil {
		return nil, fmt.Errorf("onnxmodel: scorer model: %w", err)
	}
	var ckptPath string
	if cfg.Scorer.Checkpoint != "" {
		if ckptPath, err = req.Artifacts.Resolve(ctx, cfg.Scorer.Checkpoint); err != nil {
			return nil, fmt.Errorf("onnxmodel: checkpoint: %w", err)
		}
	}
	extractorPath, err := req.Artifacts.Resolve(ctx, cfg.FeatureExtractor.Model)
	if err != nil {
		return nil, fmt.Errorf("onnxmodel: feature extractor: %w", err)
	}

	env, err := onnx.NewEnv("songeval")
	if err != nil {
		return nil, err
	}
	m := &Models{cfg: cfg, env: env}
	if err := m.open(scorerPath, ckptPath, extractorPath, SessionOptions(cfg, req.Device), logger); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// open creates both sessions on m.env. On error the caller closes m.
func (m *Models) open(scorerPath, ckptPath, extractorPath string, opts *onnx.SessionOptions, logger *slog.Logger) error {
	cfg := m.cfg
	var err error
	if m.scorer, err = newSession(m.env, scorerPath, opts, logger); err != nil {
		return fmt.Errorf("onnxmodel: load scorer %s: %w", scorerPath, err)
	}
	if ckptPath != "" {
		if err := m.bindCheckpoint(ckptPath, logger); err != nil {
			return err
		}
	}
	if err := checkIO(m.scorer, "scorer", cfg.Scorer.Input, cfg.Scorer.Output); err != nil {
		return err
	}

	if m.extractor, err = newSession(m.env, extractorPath, opts, logger); err != nil {
		return fmt.Errorf("onnxmodel: load feature extractor %s: %w", extractorPath, err)
	}
	return checkIO(m.extractor, "feature extractor", cfg.FeatureExtractor.Input, cfg.FeatureExtractor.OutputName())
}

// SessionOptions maps the config and device onto runtime options.
func SessionOptions(cfg *songeval.Config, device songeval.Device) *onnx.SessionOptions {
	return &onnx.SessionOptions{
		CUDA:           device == songeval.DeviceCUDA,
		DeviceID:       cfg.Runtime.DeviceID,
		IntraOpThreads: cfg.Runtime.IntraOpThreads,
	}
}

// newSession creates a session, retrying on CPU if the CUDA provider
// cannot be initialized.
func newSession(env *onnx.Env, path string, opts *onnx.SessionOptions, logger *slog.Logger) (*onnx.Session, error) {
	s, err := env.NewSessionFromFile(path, opts)
	if err == nil || !opts.CUDA {
		return s, err
	}
	logger.Warn("cuda session failed, falling back to cpu", "model", path, "error", err)
	cpu := *opts
	cpu.CUDA = false
	return env.NewSessionFromFile(path, &cpu)
}

func checkIO(s *onnx.Session, what, input, output string) error {
	ins, err := s.Inputs()
	if err != nil {
		return err
	}
	outs, err := s.Outputs()
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(ins, func(io onnx.IOInfo) bool { return io.Name == input }) {
		return fmt.Errorf("onnxmodel: %s has no input %q (inputs: %v)", what, input, ioNames(ins))
	}
	if !slices.ContainsFunc(outs, func(io onnx.IOInfo) bool { return io.Name == output }) {
		return fmt.Errorf("onnxmodel: %s has no output %q (outputs: %v)", what, output, ioNames(outs))
	}
	return nil
}

func ioNames(infos []onnx.IOInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// ExpectedShapes returns the overridable initializers as a name to shape
// map for safetensors.Match. Shapes with dynamic dimensions match anything.
func ExpectedShapes(inits []onnx.IOInfo) map[string][]int64 {
	expected := make(map[string][]int64, len(inits))
	for _, info := range inits {
		shape := info.Shape
		if slices.Contains(shape, -1) {
			shape = nil
		} else if shape == nil {
			shape = []int64{}
		}
		expected[info.Name] = shape
	}
	return expected
}

func (m *Models) bindCheckpoint(path string, logger *slog.Logger) error {
	f, err := safetensors.Open(path)
	if err != nil {
		return fmt.Errorf("onnxmodel: open checkpoint: %w", err)
	}
	defer f.Close()

	inits, err := m.scorer.OverridableInitializers()
	if err != nil {
		return err
	}
	report := safetensors.Match(f, ExpectedShapes(inits))
	m.Report = report
	logger.Info("checkpoint matched",
		"path", path,
		"matched", len(report.Matched),
		"missing", len(report.Missing),
		"unexpected", len(report.Unexpected))
	if len(report.Missing) > 0 {
		logger.Warn("checkpoint is missing keys", "keys", report.Missing)
	}
	if len(report.Unexpected) > 0 {
		logger.Warn("checkpoint has unexpected keys", "keys", report.Unexpected)
	}
	if err := report.Err(m.cfg.Scorer.Strict); err != nil {
		return err
	}

	for _, name := range report.Matched {
		info, err := f.Info(name)
		if err != nil {
			return err
		}
		data, err := f.Float32(name)
		if err != nil {
			return fmt.Errorf("onnxmodel: read %s: %w", name, err)
		}
		t, err := onnx.NewTensor(info.Shape, data)
		if err != nil {
			return fmt.Errorf("onnxmodel: tensor %s: %w", name, err)
		}
		m.weightNames = append(m.weightNames, name)
		m.weights = append(m.weights, t)
	}
	return nil
}

// Extract runs the feature extractor on a mono waveform and returns the
// configured hidden state.
func (m *Models) Extract(ctx context.Context, wav []float32) (*songeval.Features, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(wav) == 0 {
		return nil, errors.New("onnxmodel: empty waveform")
	}
	in, err := onnx.NewTensor([]int64{1, int64(len(wav))}, wav)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	fe := m.cfg.FeatureExtractor
	outs, err := m.extractor.Run([]string{fe.Input}, []*onnx.Tensor{in}, []string{fe.OutputName()})
	if err != nil {
		return nil, err
	}
	return features(outs)
}

// Score runs the scorer and returns the values of the first batch row.
func (m *Models) Score(ctx context.Context, f *songeval.Features) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in, err := onnx.NewTensor(f.Shape, f.Data)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	names := append([]string{m.cfg.Scorer.Input}, m.weightNames...)
	inputs := append([]*onnx.Tensor{in}, m.weights...)
	outs, err := m.scorer.Run(names, inputs, []string{m.cfg.Scorer.Output})
	if err != nil {
		return nil, err
	}
	defer closeAll(outs)

	shape, err := outs[0].Shape()
	if err != nil {
		return nil, err
	}
	data, err := outs[0].FloatData()
	if err != nil {
		return nil, err
	}
	// Squeeze the batch dimension.
	if len(shape) == 2 && shape[0] >= 1 {
		data = data[:shape[1]]
	}
	return append([]float32(nil), data...), nil
}

func features(outs []*onnx.Tensor) (*songeval.Features, error) {
	defer closeAll(outs)
	shape, err := outs[0].Shape()
	if err != nil {
		return nil, err
	}
	data, err := outs[0].FloatData()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("onnxmodel: feature extractor returned no data")
	}
	return &songeval.Features{Shape: shape, Data: append([]float32(nil), data...)}, nil
}

func closeAll(ts []*onnx.Tensor) {
	for _, t := range ts {
		t.Close()
	}
}

// Close releases the sessions, the checkpoint tensors and the environment.
func (m *Models) Close() error {
	m.closeOnce.Do(func() {
		closeAll(m.weights)
		m.weights, m.weightNames = nil, nil
		if m.extractor != nil {
			m.extractor.Close()
		}
		if m.scorer != nil {
			m.scorer.Close()
		}
		if m.env != nil {
			m.env.Close()
		}
	})
	return nil
}
