// Package scrape fetches listing pages and extracts the structured data they
// embed into normalized records.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/jaimejim/home-search/internal/metrics"
)

// defaultUserAgent is sent when the caller does not override it. Listing
// portals refuse clients that do not look like a browser at all.
const defaultUserAgent = "Mozilla/5.0 (compatible; home-search/1.0)"

// Input describes where page HTML should come from.
type Input struct {
	// URL, if provided, is fetched via HTTP GET.
	URL string

	// Stdin is used when URL is empty. If nil, stdin reads as empty.
	Stdin io.Reader
}

// Loader fetches or reads listing pages with a consistent timeout policy.
type Loader struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used;
// an empty userAgent falls back to the default header.
func NewLoader(client *http.Client, timeout time.Duration, userAgent string) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultUserAgent
	}
	return &Loader{
		client:    client,
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Load returns the page source for either stdin (when input.URL is empty) or
// a fetched URL, decoded to UTF-8.
//
// On non-2xx HTTP responses, Load returns an error that includes the status
// code and up to 4KB of the response body for debugging. Fetch outcomes are
// recorded on the process metrics backend.
func (l *Loader) Load(ctx context.Context, input Input) (string, error) {
	if strings.TrimSpace(input.URL) == "" {
		if input.Stdin == nil {
			return "", nil
		}
		b, err := io.ReadAll(input.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	body, status, err := l.fetch(ctx, input.URL)
	metrics.RecordHTTP(status, err, time.Since(start))
	return body, err
}

func (l *Loader) fetch(ctx context.Context, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", resp.StatusCode, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// Portals still serve the occasional ISO-8859-1 page; convert using the
	// response charset so accented street names survive intact.
	r, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("charset: %w", err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return string(b), resp.StatusCode, nil
}
