// Package kv is a small key-value store with hierarchical keys, used to
// persist evaluation results between runs.
//
// Keys are string slices such as {"songeval", "<fingerprint>", "<digest>"}
// joined with ':' for storage. Badger backs the on-disk store; Memory serves
// tests and --no-cache runs.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")

	// ErrInvalidKey is returned for empty keys or segments containing the
	// separator.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Separator joins key segments in the encoded form.
const Separator = ":"

// Key is a hierarchical path.
type Key []string

// String returns the encoded key.
func (k Key) String() string {
	return strings.Join(k, Separator)
}

func (k Key) validate() error {
	if len(k) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, seg := range k {
		if seg == "" || strings.Contains(seg, Separator) {
			return fmt.Errorf("%w: segment %q in %s", ErrInvalidKey, seg, k)
		}
	}
	return nil
}

// prefixBytes returns the encoded prefix plus a trailing separator so
// {"a","b"} does not match "a:bc". An empty prefix matches everything.
func (k Key) prefixBytes() []byte {
	if len(k) == 0 {
		return nil
	}
	return []byte(k.String() + Separator)
}

func decodeKey(b []byte) Key {
	return Key(strings.Split(string(b), Separator))
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List yields entries under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchDelete removes all keys in one transaction.
	BatchDelete(ctx context.Context, keys []Key) error

	Close() error
}
