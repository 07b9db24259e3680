// Package audiofile decodes song files into mono float32 waveforms at a
// requested sample rate.
//
// Supported containers are RIFF/WAVE (integer PCM, 8 to 32 bit) and MPEG-1/2
// Layer III. The extension decides the decoder; matching is case-insensitive.
//
//	wav, err := audiofile.Load("song.mp3", 24000)
package audiofile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/haoheliu/SongEval/pkg/audio/pcm"
	"github.com/haoheliu/SongEval/pkg/audio/resampler"
)

// ErrUnsupportedFormat is returned for files whose extension or encoding
// cannot be decoded.
var ErrUnsupportedFormat = errors.New("audiofile: unsupported format")

// Extensions lists the supported file extensions, lower case.
var Extensions = []string{".wav", ".mp3"}

// Supported reports whether path has a supported audio extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Clip is a decoded audio clip with interleaved float32 samples.
type Clip struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return len(c.Samples)
	}
	return len(c.Samples) / c.Channels
}

// Load decodes the file at path and returns a mono waveform at sampleRate.
func Load(path string, sampleRate int) ([]float32, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, filepath.Ext(path), sampleRate)
}

// Decode reads a clip encoded per ext (".wav" or ".mp3") and returns a mono
// waveform at sampleRate.
func Decode(r io.ReadSeeker, ext string, sampleRate int) ([]float32, error) {
	clip, err := DecodeClip(r, ext)
	if err != nil {
		return nil, err
	}
	return clip.Mono(sampleRate)
}

// DecodeClip reads a clip without resampling or downmixing.
func DecodeClip(r io.ReadSeeker, ext string) (*Clip, error) {
	switch strings.ToLower(ext) {
	case ".wav":
		return decodeWAV(r)
	case ".mp3":
		return decodeMP3(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Mono folds the clip to one channel and resamples it to sampleRate.
func (c *Clip) Mono(sampleRate int) ([]float32, error) {
	if len(c.Samples) == 0 {
		return nil, errors.New("audiofile: no audio samples")
	}
	src := resampler.Format{SampleRate: c.SampleRate, Channels: c.Channels}
	return resampler.Resample(c.Samples, src, sampleRate)
}

// RIFF audio format tags.
const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

func decodeWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("audiofile: invalid wav file")
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: wav encoding %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audiofile: decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("audiofile: wav has no channel layout")
	}
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	return &Clip{
		Samples:    pcm.IntToFloat32(buf.Data, depth),
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

func decodeMP3(r io.Reader) (*Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("audiofile: decode mp3: %w", err)
	}
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("audiofile: decode mp3: %w", err)
	}
	// go-mp3 always emits 16-bit little-endian stereo.
	return &Clip{
		Samples:    pcm.Int16ToFloat32(data),
		SampleRate: dec.SampleRate(),
		Channels:   2,
	}, nil
}
