// Package fetch re-downloads the current page over HTTP so a fresh copy of the
// server-embedded state can be scanned after client-side navigation.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/pkg/types"
)

var (
	// ErrUnexpectedStatus is returned for any non-2xx response
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrBodyTooLarge is returned when the decoded body exceeds the configured cap
	ErrBodyTooLarge = errors.New("response body too large")
)

// Request carries the browser identity the fetch should reuse
type Request struct {
	URL       string
	Cookie    string
	UserAgent string
}

// Fetcher performs one uncached GET per call. It keeps no state between calls;
// cancellation and sequencing belong to the caller.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	containers []string
	logger     *zap.Logger
}

// NewFetcher creates a fetcher. timeout bounds the whole exchange including the body.
func NewFetcher(timeout time.Duration, maxBytes int64, containers []string, logger *zap.Logger) *Fetcher {
	if len(containers) == 0 {
		containers = types.DefaultStateContainers
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				DisableCompression:  true,
			},
		},
		maxBytes:   maxBytes,
		containers: containers,
		logger:     logger,
	}
}

// Fetch downloads req.URL bypassing caches and returns the decoded body
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Pragma", "no-cache")
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")
	httpReq.Header.Set("Accept-Encoding", "gzip, zstd")
	if req.Cookie != "" {
		httpReq.Header.Set("Cookie", req.Cookie)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := readBody(resp.Body, resp.Header.Get("Content-Encoding"), f.maxBytes)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("Fetched page",
		zap.String("url", req.URL),
		zap.Int("status_code", resp.StatusCode),
		zap.String("content_encoding", resp.Header.Get("Content-Encoding")),
		zap.Int("body_bytes", len(body)),
		zap.Duration("duration", time.Since(start)))

	return body, nil
}

// Scan looks for mode's fragment in a fetched body. The raw body is scanned
// first; when that fails the known state container scripts are compacted and
// scanned in container order.
func (f *Fetcher) Scan(body []byte, mode types.PageMode) (extract.Candidate, bool) {
	if fragment, ok := extract.Match(string(body), mode); ok {
		return extract.Candidate{Fragment: fragment, Source: types.SourceFetch}, true
	}

	scripts := StateScripts(body, f.containers)
	for _, name := range f.containers {
		text, ok := scripts[name]
		if !ok {
			continue
		}
		if fragment, ok := extract.Match(text, mode); ok {
			return extract.Candidate{Fragment: fragment, Source: types.SourceFetch, Container: name}, true
		}
	}

	return extract.Candidate{}, false
}
