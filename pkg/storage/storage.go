// Package storage reads model artifacts and writes evaluation results
// across local disk, S3-compatible object stores and HTTP servers.
//
// FileStore is the common interface. Resolver maps artifact URIs to local
// files, downloading remote ones into a cache directory once.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ErrReadOnly is returned by Write on stores that cannot be written.
var ErrReadOnly = errors.New("storage: read-only store")

// FileStore is a minimal file-oriented store.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file. A missing file yields an error wrapping
	// fs.ErrNotExist. The caller must close the reader.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write creates or truncates the named file. Data is committed when
	// the writer is closed.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// WriteFile writes data to path in fs.
func WriteFile(ctx context.Context, fs FileStore, path string, data []byte) error {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadFile reads the whole named file from fs.
func ReadFile(ctx context.Context, fs FileStore, path string) ([]byte, error) {
	r, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Scheme identifies where a location lives.
type Scheme string

const (
	SchemeFile  Scheme = "file"
	SchemeS3    Scheme = "s3"
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

// Location is a parsed artifact or output URI.
type Location struct {
	Scheme Scheme

	// Host is the bucket for s3 and the host[:port] for http(s).
	Host string

	// Path is the local path for file, the object key for s3 and the
	// request path (without the leading slash, with any query) for http(s).
	Path string
}

// ParseLocation parses a URI. Strings without a scheme are local paths.
func ParseLocation(uri string) (Location, error) {
	if uri == "" {
		return Location{}, errors.New("storage: empty location")
	}
	if !strings.Contains(uri, "://") {
		return Location{Scheme: SchemeFile, Path: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("storage: parse %q: %w", uri, err)
	}
	switch Scheme(u.Scheme) {
	case SchemeFile:
		return Location{Scheme: SchemeFile, Path: u.Path}, nil
	case SchemeS3:
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" {
			return Location{}, fmt.Errorf("storage: %q has no bucket", uri)
		}
		return Location{Scheme: SchemeS3, Host: u.Host, Path: key}, nil
	case SchemeHTTP, SchemeHTTPS:
		p := strings.TrimPrefix(u.EscapedPath(), "/")
		if u.RawQuery != "" {
			p += "?" + u.RawQuery
		}
		return Location{Scheme: Scheme(u.Scheme), Host: u.Host, Path: p}, nil
	default:
		return Location{}, fmt.Errorf("storage: unsupported scheme %q in %q", u.Scheme, uri)
	}
}

// String formats the location back into a URI.
func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Path
	}
	return string(l.Scheme) + "://" + l.Host + "/" + l.Path
}
