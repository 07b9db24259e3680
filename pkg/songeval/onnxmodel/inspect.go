package onnxmodel

import (
	"context"
	"errors"
	"fmt"

	"github.com/haoheliu/SongEval/pkg/onnx"
	"github.com/haoheliu/SongEval/pkg/safetensors"
	"github.com/haoheliu/SongEval/pkg/songeval"
)

// TensorSummary describes one checkpoint tensor.
type TensorSummary struct {
	Name  string  `json:"name" yaml:"name"`
	DType string  `json:"dtype" yaml:"dtype"`
	Shape []int64 `json:"shape" yaml:"shape"`
}

// Inspection summarizes the scorer checkpoint and, when the scorer graph
// is available, how the two match.
type Inspection struct {
	Checkpoint string                   `json:"checkpoint" yaml:"checkpoint"`
	Metadata   map[string]string        `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Tensors    []TensorSummary          `json:"tensors" yaml:"tensors"`
	Scorer     string                   `json:"scorer,omitempty" yaml:"scorer,omitempty"`
	Match      *safetensors.MatchReport `json:"match,omitempty" yaml:"match,omitempty"`

	// ScorerError explains why no match report was produced.
	ScorerError string `json:"scorer_error,omitempty" yaml:"scorer_error,omitempty"`
}

// Inspect reads the configured checkpoint and matches it against the
// scorer graph's overridable initializers. The feature extractor is not
// loaded.
func Inspect(ctx context.Context, cfg *songeval.Config, artifacts songeval.ArtifactResolver) (*Inspection, error) {
	if cfg.Scorer.Checkpoint == "" {
		return nil, errors.New("onnxmodel: no checkpoint configured")
	}
	ckptPath, err := artifacts.Resolve(ctx, cfg.Scorer.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("onnxmodel: checkpoint: %w", err)
	}
	f, err := safetensors.Open(ckptPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ins := &Inspection{Checkpoint: ckptPath, Metadata: f.Metadata()}
	for _, name := range f.Names() {
		info, err := f.Info(name)
		if err != nil {
			return nil, err
		}
		ins.Tensors = append(ins.Tensors, TensorSummary{Name: name, DType: string(info.DType), Shape: info.Shape})
	}

	scorerPath, err := artifacts.Resolve(ctx, cfg.Scorer.Model)
	if err != nil {
		ins.ScorerError = err.Error()
		return ins, nil
	}
	ins.Scorer = scorerPath

	env, err := onnx.NewEnv("songeval-inspect")
	if err != nil {
		return nil, err
	}
	defer env.Close()
	s, err := env.NewSessionFromFile(scorerPath, SessionOptions(cfg, songeval.DeviceCPU))
	if err != nil {
		ins.ScorerError = err.Error()
		return ins, nil
	}
	defer s.Close()
	inits, err := s.OverridableInitializers()
	if err != nil {
		return nil, err
	}
	ins.Match = safetensors.Match(f, ExpectedShapes(inits))
	return ins, nil
}
