// internal/fetch/fetch.go

// Package fetch turns URLs into page models. The HTTP fetcher covers
// server-rendered pages; the browser fetcher drives headless Chrome for
// pages that only materialize their lists after script execution.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valeran/chartex/internal/pagemodel"
	"github.com/valeran/chartex/internal/template"
)

// Common errors
var (
	ErrEmptyURL = fmt.Errorf("url cannot be empty")
)

// maxBodySize caps the response body read; chart pages are never this
// large and unbounded reads are an easy way to get wedged.
const maxBodySize = 16 << 20

// Fetcher retrieves a URL and returns its page model. nav carries the
// template's navigation hints; HTTP fetchers ignore them.
type Fetcher interface {
	Fetch(ctx context.Context, url string, nav template.NavigationSpec) (*pagemodel.Page, error)
}

// HTTPFetcher fetches pages with a plain HTTP client.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates an HTTP fetcher. A zero timeout falls back to 30
// seconds.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "chartex/1.0"
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch retrieves the URL and parses the body into a page model.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, _ template.NavigationSpec) (*pagemodel.Page, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return pagemodel.FromHTML(url, string(body))
}
