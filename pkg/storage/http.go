package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
)

// HTTP is a read-only FileStore over an HTTP(S) server.
type HTTP struct {
	// BaseURL is prepended to paths, e.g. "https://huggingface.co".
	BaseURL string

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

func (h *HTTP) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTP) url(path string) string {
	return strings.TrimSuffix(h.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (h *HTTP) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.url(path), nil)
	if err != nil {
		return nil, err
	}
	return h.client().Do(req)
}

func (h *HTTP) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := h.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("storage: get %s: %w", h.url(path), fs.ErrNotExist)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("storage: get %s: %s", h.url(path), resp.Status)
	}
	return resp.Body, nil
}

func (h *HTTP) Write(context.Context, string) (io.WriteCloser, error) {
	return nil, ErrReadOnly
}

func (h *HTTP) Exists(ctx context.Context, path string) (bool, error) {
	resp, err := h.do(ctx, http.MethodHead, path)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return false, fmt.Errorf("storage: head %s: %s", h.url(path), resp.Status)
	}
	return true, nil
}

var _ FileStore = (*HTTP)(nil)
