//go:build !js
// +build !js

package resampler

import (
	"fmt"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haoheliu/SongEval/pkg/audio/pcm"
)

// Resampler converts interleaved float32 samples from one sample rate to
// another, optionally folding multi-channel input down to mono first.
type Resampler struct {
	srcFmt Format
	dstFmt Format

	mu            sync.Mutex
	resampler     resampling.Resampler
	needsResample bool
	closed        bool
}

// New creates a Resampler from srcFmt to dstFmt. The destination may have
// the same channel count as the source, or be mono.
func New(srcFmt, dstFmt Format) (*Resampler, error) {
	if err := srcFmt.validate(); err != nil {
		return nil, err
	}
	if err := dstFmt.validate(); err != nil {
		return nil, err
	}
	if dstFmt.channels() != 1 && dstFmt.channels() != srcFmt.channels() {
		return nil, fmt.Errorf("resampler: cannot convert %d channels to %d", srcFmt.channels(), dstFmt.channels())
	}

	r := &Resampler{
		srcFmt:        srcFmt,
		dstFmt:        dstFmt,
		needsResample: srcFmt.SampleRate != dstFmt.SampleRate,
	}
	if r.needsResample {
		config := &resampling.Config{
			InputRate:  float64(srcFmt.SampleRate),
			OutputRate: float64(dstFmt.SampleRate),
			Channels:   dstFmt.channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		}
		rs, err := resampling.New(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create resampler: %w", err)
		}
		r.resampler = rs
	}
	return r, nil
}

// Process converts a block of interleaved source samples. Blocks may be fed
// incrementally; the resampler keeps filter state between calls.
func (r *Resampler) Process(samples []float32) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("resampler: closed")
	}

	if r.srcFmt.channels() != r.dstFmt.channels() {
		samples = pcm.Downmix(samples, r.srcFmt.channels())
	}
	if !r.needsResample {
		return samples, nil
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}
	output, err := r.resampler.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	return clampFloat32(output), nil
}

// Flush returns the samples still held in the filter. Call it once after
// the last Process call.
func (r *Resampler) Flush() ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("resampler: closed")
	}
	if !r.needsResample {
		return nil, nil
	}
	output, err := r.resampler.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}
	return clampFloat32(output), nil
}

func clampFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		switch {
		case s > 1.0:
			s = 1.0
		case s < -1.0:
			s = -1.0
		}
		out[i] = float32(s)
	}
	return out
}

// Close releases the underlying resampler. Subsequent Process calls fail.
func (r *Resampler) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.resampler = nil
	return nil
}

// OutputLen is the length of a whole clip of frames converted from srcRate
// to dstRate, rounded up.
func OutputLen(frames, srcRate, dstRate int) int {
	return int((int64(frames)*int64(dstRate) + int64(srcRate) - 1) / int64(srcRate))
}

// Resample converts a complete clip of interleaved samples to mono at
// dstRate. The filter is flushed and the result is exactly
// OutputLen(frames, src, dst) samples long, zero-padded if the filter
// returned fewer.
func Resample(samples []float32, srcFmt Format, dstRate int) ([]float32, error) {
	r, err := New(srcFmt, Format{SampleRate: dstRate, Channels: 1})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out, err := r.Process(samples)
	if err != nil {
		return nil, err
	}
	if !r.needsResample {
		return out, nil
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, err
	}
	out = append(out, tail...)

	want := OutputLen(len(samples)/srcFmt.channels(), srcFmt.SampleRate, dstRate)
	if len(out) >= want {
		return out[:want], nil
	}
	return append(out, make([]float32, want-len(out))...), nil
}
