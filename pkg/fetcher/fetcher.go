// Package fetcher retrieves web pages for the fallback citation path.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const DefaultTimeout = 30 * time.Second

const userAgent = "citation-cleaner/1.0"

type Fetcher struct {
	client *http.Client
}

func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// GetHTML fetches the page at url and returns the raw body.
func (f *Fetcher) GetHTML(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch HTML, status code: %d", resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return bodyBytes, nil
}

// GetDocument fetches the page at url and parses it into a goquery
// document, returning the raw body alongside.
func (f *Fetcher) GetDocument(ctx context.Context, url string) (*goquery.Document, []byte, error) {
	bodyBytes, err := f.GetHTML(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(bodyBytes)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, bodyBytes, nil
}
