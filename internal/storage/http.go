package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
)

// connectionsPerCPU scales the per-host connection limit with GOMAXPROCS.
const connectionsPerCPU = 8

// NewTransport returns the HTTP transport shared by the store client and the
// fetcher. Per-host connection limits scale with available parallelism and
// request bodies are sent without waiting for 100-continue.
func NewTransport() *http.Transport {
	limit := runtime.GOMAXPROCS(0) * connectionsPerCPU

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxConnsPerHost = limit
	t.MaxIdleConnsPerHost = limit
	if t.MaxIdleConns < limit {
		t.MaxIdleConns = limit
	}
	t.ExpectContinueTimeout = 0
	return t
}

// HTTPClientFetcher implements HTTPFetcher with a plain GET.
type HTTPClientFetcher struct {
	client *http.Client
}

// NewHTTPFetcher wraps client; a nil client gets one on NewTransport.
func NewHTTPFetcher(client *http.Client) *HTTPClientFetcher {
	if client == nil {
		client = &http.Client{Transport: NewTransport()}
	}
	return &HTTPClientFetcher{client: client}
}

// Fetch downloads the body at rawURL. Non-2xx responses are returned as
// *HTTPStatusError.
func (f *HTTPClientFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}

var _ HTTPFetcher = (*HTTPClientFetcher)(nil)
