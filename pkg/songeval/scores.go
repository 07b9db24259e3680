package songeval

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// Dimension names one aesthetic score.
type Dimension string

const (
	Coherence    Dimension = "Coherence"
	Musicality   Dimension = "Musicality"
	Memorability Dimension = "Memorability"
	Clarity      Dimension = "Clarity"
	Naturalness  Dimension = "Naturalness"
)

var allDimensions = []Dimension{Coherence, Musicality, Memorability, Clarity, Naturalness}

// Dimensions returns the five dimensions in canonical order.
func Dimensions() []Dimension {
	return append([]Dimension(nil), allDimensions...)
}

// DimensionNames returns the dimension names in canonical order.
func DimensionNames() []string {
	names := make([]string, len(allDimensions))
	for i, d := range allDimensions {
		names[i] = string(d)
	}
	return names
}

// Valid reports whether d is one of the five dimensions.
func (d Dimension) Valid() bool {
	for _, v := range allDimensions {
		if d == v {
			return true
		}
	}
	return false
}

// Scores holds the five aesthetic scores of one song.
type Scores struct {
	Coherence    float64 `json:"Coherence" yaml:"Coherence" msgpack:"coherence"`
	Musicality   float64 `json:"Musicality" yaml:"Musicality" msgpack:"musicality"`
	Memorability float64 `json:"Memorability" yaml:"Memorability" msgpack:"memorability"`
	Clarity      float64 `json:"Clarity" yaml:"Clarity" msgpack:"clarity"`
	Naturalness  float64 `json:"Naturalness" yaml:"Naturalness" msgpack:"naturalness"`
}

func (s *Scores) field(d Dimension) *float64 {
	switch d {
	case Coherence:
		return &s.Coherence
	case Musicality:
		return &s.Musicality
	case Memorability:
		return &s.Memorability
	case Clarity:
		return &s.Clarity
	case Naturalness:
		return &s.Naturalness
	}
	return nil
}

// Get returns the score for d.
func (s Scores) Get(d Dimension) (float64, bool) {
	p := s.field(d)
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Set assigns the score for d.
func (s *Scores) Set(d Dimension, v float64) error {
	p := s.field(d)
	if p == nil {
		return fmt.Errorf("songeval: unknown dimension %q", d)
	}
	*p = v
	return nil
}

// Values returns the scores in canonical dimension order.
func (s Scores) Values() []float64 {
	return []float64{s.Coherence, s.Musicality, s.Memorability, s.Clarity, s.Naturalness}
}

// MarshalJSON writes the scores in dimension order. Whole numbers keep a
// trailing ".0", so 3 is written as 3.0.
func (s Scores) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, d := range allDimensions {
		v, _ := s.Get(d)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("songeval: %s score %v is not a finite number", d, v)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, string(d))
		buf = append(buf, ':')
		buf = appendScore(buf, v)
	}
	return append(buf, '}'), nil
}

func appendScore(b []byte, v float64) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, v, 'f', -1, 64)
	if !bytes.ContainsRune(b[start:], '.') {
		b = append(b, ".0"...)
	}
	return b
}

// Mean returns the average of the five scores.
func (s Scores) Mean() float64 {
	var sum float64
	for _, v := range s.Values() {
		sum += v
	}
	return sum / float64(len(allDimensions))
}

// Round rounds v to the given number of decimal places, choosing the
// nearest decimal to the exact binary value.
func Round(v float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// newScores maps raw model outputs onto dims, widening each float32 to
// float64 before rounding.
func newScores(raw []float32, dims []string, precision int) (Scores, error) {
	if len(raw) < len(dims) {
		return Scores{}, fmt.Errorf("songeval: scorer returned %d values, want %d", len(raw), len(dims))
	}
	var s Scores
	for i, name := range dims {
		if err := s.Set(Dimension(name), Round(float64(raw[i]), precision)); err != nil {
			return Scores{}, err
		}
	}
	return s, nil
}

// FileID derives the result key for path: its base name up to the first '.'.
// "dir/a.b.wav" yields "a".
func FileID(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}
