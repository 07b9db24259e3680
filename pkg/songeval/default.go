package songeval

import (
	"context"
	"sync"
)

var (
	defaultMu sync.Mutex
	defaultEv *Evaluator
)

// Default returns the process-wide evaluator, creating it with
// DefaultConfig on first use. Options only apply to the call that creates
// it. A failed creation is not cached.
func Default(opts ...Option) (*Evaluator, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEv != nil {
		return defaultEv, nil
	}
	e, err := New(nil, opts...)
	if err != nil {
		return nil, err
	}
	defaultEv = e
	return e, nil
}

// EvaluateSong scores one file with the process-wide evaluator.
func EvaluateSong(ctx context.Context, path string, opts ...Option) (Scores, error) {
	e, err := Default(opts...)
	if err != nil {
		return Scores{}, err
	}
	return e.EvaluateSong(ctx, path)
}

// EvaluateSongs scores several files with the process-wide evaluator.
func EvaluateSongs(ctx context.Context, paths []string, opts ...Option) (*Results, error) {
	e, err := Default(opts...)
	if err != nil {
		return nil, err
	}
	return e.EvaluateSongs(ctx, paths)
}

// resetDefault closes and forgets the process-wide evaluator.
func resetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEv != nil {
		defaultEv.Close()
		defaultEv = nil
	}
}
