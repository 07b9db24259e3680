package songeval

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotFound is returned for audio paths that do not exist. It wraps
	// fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("songeval: audio file not found: %w", fs.ErrNotExist)

	// ErrUnsupportedFormat is returned for paths whose extension is not
	// .wav or .mp3.
	ErrUnsupportedFormat = errors.New("songeval: unsupported file format")

	// ErrModelNotLoaded is returned when the backend produced no models.
	ErrModelNotLoaded = errors.New("songeval: model not loaded")

	// ErrClosed is returned by an evaluator after Close.
	ErrClosed = errors.New("songeval: evaluator closed")

	// ErrUnknownBackend is returned when the configured backend is not
	// registered.
	ErrUnknownBackend = errors.New("songeval: unknown backend")
)
