package songeval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/goccy/go-yaml"
)

// Results maps file identifiers to scores and remembers insertion order.
// Setting an existing identifier replaces its scores in place.
type Results struct {
	ids    []string
	scores map[string]Scores
}

// NewResults returns an empty Results.
func NewResults() *Results {
	return &Results{scores: make(map[string]Scores)}
}

// Set stores scores for id.
func (r *Results) Set(id string, s Scores) {
	if r.scores == nil {
		r.scores = make(map[string]Scores)
	}
	if _, ok := r.scores[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.scores[id] = s
}

// Get returns the scores for id.
func (r *Results) Get(id string) (Scores, bool) {
	s, ok := r.scores[id]
	return s, ok
}

// Len returns the number of identifiers.
func (r *Results) Len() int {
	return len(r.ids)
}

// IDs returns the identifiers in insertion order.
func (r *Results) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Each iterates identifiers and scores in insertion order.
func (r *Results) Each() iter.Seq2[string, Scores] {
	return func(yield func(string, Scores) bool) {
		for _, id := range r.ids {
			if !yield(id, r.scores[id]) {
				return
			}
		}
	}
}

// MarshalJSON encodes the results as a JSON object in insertion order.
func (r *Results) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range r.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalNoEscape(id)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.scores[id])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (r *Results) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("songeval: results must be a JSON object")
	}
	out := NewResults()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("songeval: unexpected token %v", tok)
		}
		var s Scores
		if err := dec.Decode(&s); err != nil {
			return fmt.Errorf("songeval: decode scores for %q: %w", id, err)
		}
		out.Set(id, s)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = *out
	return nil
}

// MarshalYAML encodes the results as an ordered YAML mapping.
func (r *Results) MarshalYAML() (any, error) {
	ms := make(yaml.MapSlice, 0, len(r.ids))
	for id, s := range r.Each() {
		ms = append(ms, yaml.MapItem{Key: id, Value: s})
	}
	return ms, nil
}
