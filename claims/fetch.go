package claims

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for import fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// maxImportBytes caps a fetched import document at 50 MB.
	maxImportBytes = 50 << 20
)

// FetchOption configures FetchImport.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between attempts.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// IsRemoteImport reports whether src names an http(s) import document.
func IsRemoteImport(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

var errImportTooLarge = fmt.Errorf("import document exceeds %d bytes", maxImportBytes)

// statusError is a non-200 response from an import source.
type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.url, e.status)
}

// retryable reports whether another attempt could succeed. Client errors
// and oversized documents are final.
func retryable(err error) bool {
	if errors.Is(err, errImportTooLarge) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500 || se.status == http.StatusTooManyRequests
	}
	return true
}

// FetchImport downloads and validates an import document. Transport errors,
// 5xx and 429 responses are retried with exponential backoff. A 4xx response
// or a document that fails validation ends the fetch immediately.
func FetchImport(ctx context.Context, url string, opts ...FetchOption) (*ImportFile, error) {
	if url == "" {
		return nil, fmt.Errorf("fetch import: URL is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	body, err := fetchWithRetry(ctx, client, url, cfg)
	if err != nil {
		return nil, fmt.Errorf("fetch import: %w", err)
	}
	f, err := ParseImport(body)
	if err != nil {
		return nil, fmt.Errorf("fetch import %s: %w", url, err)
	}
	log.Printf("[HTTP] fetched import for world %s from %s (%d region(s))", f.World, url, len(f.Regions))
	return f, nil
}

func fetchWithRetry(ctx context.Context, client *http.Client, url string, cfg fetchConfig) ([]byte, error) {
	attempts := max(cfg.maxRetries, 1)
	delay := cfg.baseBackoff

	for attempt := 1; ; attempt++ {
		body, err := doFetch(ctx, client, url)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		if attempt == attempts {
			return nil, fmt.Errorf("all %d attempts failed: %w", attempts, err)
		}

		log.Printf("[HTTP] import fetch attempt %d/%d failed: %v", attempt, attempts, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func doFetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{url: url, status: resp.StatusCode}
	}

	// One byte past the cap tells an oversized document from one that fits.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImportBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if len(body) > maxImportBytes {
		return nil, fmt.Errorf("%s: %w", url, errImportTooLarge)
	}
	return body, nil
}
