package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Resolver maps artifact URIs to local file paths.
//
// Local paths and file:// URIs are used in place; relative paths resolve
// against BaseDir. s3:// and http(s):// artifacts are downloaded into
// CacheDir on first use. Concurrent downloads of the same artifact, also
// across processes, are serialized with a file lock.
type Resolver struct {
	BaseDir  string
	CacheDir string

	// S3 is used for s3:// URIs. Defaults to NewS3Client.
	S3 S3Client

	HTTPClient *http.Client
	Logger     *slog.Logger

	s3Mu sync.Mutex
}

// NewResolver returns a Resolver rooted at baseDir using DefaultCacheDir.
func NewResolver(baseDir string) *Resolver {
	return &Resolver{BaseDir: baseDir, CacheDir: DefaultCacheDir()}
}

// DefaultCacheDir returns the artifact download directory:
// $SONGEVAL_CACHE_DIR, or <user cache dir>/songeval/artifacts.
func DefaultCacheDir() string {
	if dir := os.Getenv("SONGEVAL_CACHE_DIR"); dir != "" {
		return dir
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "songeval", "artifacts")
	}
	return filepath.Join(dir, "songeval", "artifacts")
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// s3Client returns r.S3, creating it on first use. A failed creation is
// retried on the next call.
func (r *Resolver) s3Client(ctx context.Context) (S3Client, error) {
	r.s3Mu.Lock()
	defer r.s3Mu.Unlock()
	if r.S3 == nil {
		c, err := NewS3Client(ctx, r.logger())
		if err != nil {
			return nil, err
		}
		r.S3 = c
	}
	return r.S3, nil
}

// Resolve returns a local path holding the artifact at uri.
func (r *Resolver) Resolve(ctx context.Context, uri string) (string, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return "", err
	}
	switch loc.Scheme {
	case SchemeFile:
		p := loc.Path
		if !filepath.IsAbs(p) && r.BaseDir != "" {
			p = filepath.Join(r.BaseDir, p)
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("storage: artifact %s: %w", uri, err)
		}
		return p, nil
	case SchemeS3:
		client, err := r.s3Client(ctx)
		if err != nil {
			return "", err
		}
		dst := r.cachePath("s3", loc.Host, loc.Path)
		return r.fetch(ctx, NewS3(client, loc.Host, ""), loc.Path, dst)
	default:
		src := &HTTP{BaseURL: string(loc.Scheme) + "://" + loc.Host, Client: r.HTTPClient}
		dst := r.cachePath("http", loc.Host, cacheName(loc.Path))
		return r.fetch(ctx, src, loc.Path, dst)
	}
}

// OpenDir opens a writable directory: a local path or s3://bucket/prefix.
func (r *Resolver) OpenDir(ctx context.Context, uri string) (FileStore, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	switch loc.Scheme {
	case SchemeFile:
		return NewLocal(loc.Path)
	case SchemeS3:
		client, err := r.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		return NewS3(client, loc.Host, strings.TrimSuffix(loc.Path, "/")), nil
	default:
		return nil, fmt.Errorf("storage: %s: %w", uri, ErrReadOnly)
	}
}

func (r *Resolver) cachePath(kind, host, key string) string {
	base := r.CacheDir
	if base == "" {
		base = DefaultCacheDir()
	}
	return filepath.Join(base, kind, host, filepath.FromSlash(key))
}

// cacheName turns a request path with an optional query into a file path.
func cacheName(p string) string {
	path, query, _ := strings.Cut(p, "?")
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	if query != "" {
		path += "_" + url.QueryEscape(query)
	}
	return path
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

func (r *Resolver) fetch(ctx context.Context, src FileStore, key, dst string) (string, error) {
	if fileExists(dst) {
		return dst, nil
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	lock := flock.New(dst + ".lock")
	if _, err := lock.TryLockContext(ctx, 200*time.Millisecond); err != nil {
		return "", fmt.Errorf("storage: lock %s: %w", dst, err)
	}
	defer lock.Unlock()

	// Another process may have finished the download while we waited.
	if fileExists(dst) {
		return dst, nil
	}

	start := time.Now()
	rc, err := src.Read(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return "", err
	}
	n, err := io.Copy(tmp, rc)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		os.Remove(tmp.Name())
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("storage: download %s: %w", key, err)
	}
	r.logger().Info("artifact downloaded", "path", dst, "bytes", n, "elapsed", time.Since(start).Round(time.Millisecond))
	return dst, nil
}
