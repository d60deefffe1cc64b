package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// browserUserAgent is sent to sites that block non-browser clients.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// maxBody caps provider responses.
const maxBody = 8 << 20

// Fetcher performs provider requests with a per-request timeout. Gateway
// errors (502, 503, 504) are retried once immediately.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

func transient(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

// Get fetches url and returns the body of a 2xx response. A 404 yields
// ErrNotFound; anything else non-2xx yields a ProviderError.
func (f *Fetcher) Get(ctx context.Context, provider, url string, header http.Header) ([]byte, error) {
	body, code, err := f.once(ctx, provider, url, header)
	if err != nil && transient(code) {
		slog.Debug("retrying provider request", "provider", provider, "status", code)
		body, _, err = f.once(ctx, provider, url, header)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) once(ctx context.Context, provider, url string, header http.Header) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &ProviderError{Provider: provider, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, &ProviderError{Provider: provider, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, fmt.Errorf("%s: %w", provider, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &ProviderError{Provider: provider, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.StatusCode, &ProviderError{Provider: provider, Status: resp.StatusCode, Err: err}
	}
	return body, resp.StatusCode, nil
}

// GetJSON fetches url and decodes the JSON body into out.
func (f *Fetcher) GetJSON(ctx context.Context, provider, url string, out any) error {
	body, err := f.Get(ctx, provider, url, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Provider: provider, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// GetHTML fetches url with a browser user agent and parses the document.
func (f *Fetcher) GetHTML(ctx context.Context, provider, url string) (*goquery.Document, error) {
	header := http.Header{}
	header.Set("User-Agent", browserUserAgent)
	header.Set("Referer", url)

	body, err := f.Get(ctx, provider, url, header)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: provider, Err: fmt.Errorf("parse: %w", err)}
	}
	return doc, nil
}
