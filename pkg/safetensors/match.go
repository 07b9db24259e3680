package safetensors

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// MatchReport compares checkpoint keys against the parameters a model
// expects.
type MatchReport struct {
	// Matched lists names present on both sides with equal shapes.
	Matched []string `json:"matched,omitempty" yaml:"matched,omitempty"`
	// Missing lists parameters the model expects but the checkpoint lacks.
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`
	// Unexpected lists checkpoint tensors the model has no slot for.
	Unexpected []string `json:"unexpected,omitempty" yaml:"unexpected,omitempty"`
	// ShapeMismatch lists names present on both sides with different shapes.
	ShapeMismatch []string `json:"shape_mismatch,omitempty" yaml:"shape_mismatch,omitempty"`
}

// OK reports whether every matched key had a compatible shape and, when
// strict, no key was missing or unexpected.
func (r *MatchReport) OK(strict bool) bool {
	if len(r.ShapeMismatch) > 0 {
		return false
	}
	return !strict || (len(r.Missing) == 0 && len(r.Unexpected) == 0)
}

// Err returns a descriptive error when !r.OK(strict).
func (r *MatchReport) Err(strict bool) error {
	if r.OK(strict) {
		return nil
	}
	var parts []string
	if len(r.ShapeMismatch) > 0 {
		parts = append(parts, "shape mismatch: "+strings.Join(r.ShapeMismatch, ", "))
	}
	if strict && len(r.Missing) > 0 {
		parts = append(parts, "missing keys: "+strings.Join(r.Missing, ", "))
	}
	if strict && len(r.Unexpected) > 0 {
		parts = append(parts, "unexpected keys: "+strings.Join(r.Unexpected, ", "))
	}
	return fmt.Errorf("safetensors: checkpoint does not match model: %s", strings.Join(parts, "; "))
}

// Match compares the checkpoint with the expected parameter shapes. A nil
// shape in expected matches any shape.
func Match(f *File, expected map[string][]int64) *MatchReport {
	r := &MatchReport{}
	for _, name := range f.names {
		want, ok := expected[name]
		if !ok {
			r.Unexpected = append(r.Unexpected, name)
			continue
		}
		if want != nil && !slices.Equal(want, f.tensors[name].Shape) {
			r.ShapeMismatch = append(r.ShapeMismatch, name)
			continue
		}
		r.Matched = append(r.Matched, name)
	}
	for name := range expected {
		if _, ok := f.tensors[name]; !ok {
			r.Missing = append(r.Missing, name)
		}
	}
	sort.Strings(r.Missing)
	return r
}
