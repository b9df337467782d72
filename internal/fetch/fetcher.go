// Package fetch downloads remote playlists, segments and media files over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Kind classifies why a fetch failed.
type Kind string

const (
	KindStatus  Kind = "status"
	KindNetwork Kind = "network"
	KindEmpty   Kind = "empty"
)

// DefaultTimeout bounds a single request when the caller configures none.
const DefaultTimeout = 30 * time.Second

// FetchError is returned for every failed fetch. Status is set for KindStatus.
type FetchError struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	case KindEmpty:
		return fmt.Sprintf("fetch %s: empty response body", e.URL)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsKind reports whether err is a FetchError of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// HTTPFetcher fetches whole resources into memory.
type HTTPFetcher struct {
	client    *http.Client
	log       *slog.Logger
	userAgent string
	timeout   time.Duration
}

// NewHTTPFetcher returns a fetcher using client (http.DefaultClient if nil).
// Each request is bounded by timeout; a non-positive timeout uses DefaultTimeout.
func NewHTTPFetcher(client *http.Client, log *slog.Logger, userAgent string, timeout time.Duration) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{client: client, log: log, userAgent: userAgent, timeout: timeout}
}

// Fetch GETs url and returns the full body. Non-200 statuses, transport errors,
// timeouts and zero-length bodies are all reported as *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: url, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Warn("fetch failed", slog.String("url", url), slog.String("error", err.Error()))
		return nil, &FetchError{Kind: KindNetwork, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		f.log.Warn("fetch non-200 status", slog.String("url", url), slog.Int("status", resp.StatusCode))
		return nil, &FetchError{Kind: KindStatus, URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		f.log.Warn("fetch body read failed", slog.String("url", url), slog.String("error", err.Error()))
		return nil, &FetchError{Kind: KindNetwork, URL: url, Err: err}
	}
	if len(data) == 0 {
		return nil, &FetchError{Kind: KindEmpty, URL: url}
	}

	f.log.Debug("fetched",
		slog.String("url", url),
		slog.Int("size", len(data)),
		slog.Int("duration_ms", int(time.Since(start).Milliseconds())))
	return data, nil
}
