package songeval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haoheliu/SongEval/pkg/kv"
)

const cacheNamespace = "songeval"

// Cache stores scores keyed by model fingerprint and audio content digest,
// so unchanged files are not re-evaluated.
type Cache struct {
	store kv.Store
}

// CacheEntry is one cached evaluation.
type CacheEntry struct {
	Fingerprint string    `json:"fingerprint" yaml:"fingerprint"`
	Digest      string    `json:"digest" yaml:"digest"`
	Path        string    `json:"path" yaml:"path"`
	EvaluatedAt time.Time `json:"evaluated_at" yaml:"evaluated_at"`
	Scores      Scores    `json:"scores" yaml:"scores"`
}

type cacheRecord struct {
	Path        string    `msgpack:"path"`
	EvaluatedAt time.Time `msgpack:"evaluated_at"`
	Scores      Scores    `msgpack:"scores"`
}

// NewCache wraps a kv.Store.
func NewCache(store kv.Store) *Cache {
	return &Cache{store: store}
}

// OpenCache opens a Badger-backed cache in dir.
func OpenCache(dir string, logger *slog.Logger) (*Cache, error) {
	store, err := kv.OpenBadger(kv.BadgerOptions{Dir: dir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("songeval: open cache: %w", err)
	}
	return NewCache(store), nil
}

func cacheKey(fingerprint, digest string) kv.Key {
	return kv.Key{cacheNamespace, fingerprint, digest}
}

// Get returns the cached scores, if any.
func (c *Cache) Get(ctx context.Context, fingerprint, digest string) (Scores, bool, error) {
	data, err := c.store.Get(ctx, cacheKey(fingerprint, digest))
	if errors.Is(err, kv.ErrNotFound) {
		return Scores{}, false, nil
	}
	if err != nil {
		return Scores{}, false, err
	}
	var rec cacheRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return Scores{}, false, fmt.Errorf("songeval: decode cache entry: %w", err)
	}
	return rec.Scores, true, nil
}

// Put stores scores for the file at path.
func (c *Cache) Put(ctx context.Context, fingerprint, digest, path string, s Scores) error {
	data, err := msgpack.Marshal(&cacheRecord{
		Path:        path,
		EvaluatedAt: time.Now().UTC(),
		Scores:      s,
	})
	if err != nil {
		return fmt.Errorf("songeval: encode cache entry: %w", err)
	}
	return c.store.Set(ctx, cacheKey(fingerprint, digest), data)
}

// List yields every cached evaluation.
func (c *Cache) List(ctx context.Context) iter.Seq2[CacheEntry, error] {
	return func(yield func(CacheEntry, error) bool) {
		for e, err := range c.store.List(ctx, kv.Key{cacheNamespace}) {
			if err != nil {
				yield(CacheEntry{}, err)
				return
			}
			if len(e.Key) != 3 {
				continue
			}
			var rec cacheRecord
			if err := msgpack.Unmarshal(e.Value, &rec); err != nil {
				if !yield(CacheEntry{}, fmt.Errorf("songeval: decode cache entry %s: %w", e.Key, err)) {
					return
				}
				continue
			}
			entry := CacheEntry{
				Fingerprint: e.Key[1],
				Digest:      e.Key[2],
				Path:        rec.Path,
				EvaluatedAt: rec.EvaluatedAt,
				Scores:      rec.Scores,
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Clear removes every cached evaluation and returns how many were removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	var keys []kv.Key
	for e, err := range c.store.List(ctx, kv.Key{cacheNamespace}) {
		if err != nil {
			return 0, err
		}
		keys = append(keys, e.Key)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.store.BatchDelete(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// FileDigest returns the hex SHA-256 of the file contents.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("songeval: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
