package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/bobarin/reelrender/internal/retry"
)

const (
	fetchTimeout     = 60 * time.Second
	defaultMaxFetch  = 100 << 20 // 100 MB
	fetchUserAgent   = "reelrender/1.0"
	errorBodyPreview = 200
)

// FetchResult is a downloaded media body.
type FetchResult struct {
	Data          []byte
	ContentType   string
	ContentLength int64
}

// HTTPError is a non-2xx response from a media URL.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Fetcher downloads images and audio over HTTP with retries.
type Fetcher struct {
	client   *http.Client
	policy   retry.Policy
	maxBytes int64
}

func NewFetcher(policy retry.Policy, maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = defaultMaxFetch
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: fetchTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		policy:   policy,
		maxBytes: maxBytes,
	}
}

// Fetch GETs url. A non-2xx status or an empty body is an error. Network
// errors and 429/5xx responses are retried with backoff.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt <= f.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[Fetch] Retry %d/%d for %s", attempt, f.policy.MaxRetries, url)
			if err := f.policy.Wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		result, retryable, err := f.fetchOnce(ctx, url)
		if err == nil {
			if attempt > 0 {
				log.Printf("[Fetch] Succeeded on attempt %d for %s", attempt+1, url)
			}
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		log.Printf("[Fetch] Attempt %d failed (retryable): %v", attempt+1, err)
	}
	return nil, fmt.Errorf("fetch failed after %d attempts: %w", f.policy.MaxRetries+1, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*FetchResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, retry.IsRetryableError(err), fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyPreview))
		return nil, retry.IsRetryableStatus(resp.StatusCode), &HTTPError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, retry.IsRetryableError(err), fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, false, fmt.Errorf("body of %s exceeds %d bytes", url, f.maxBytes)
	}
	if len(data) == 0 {
		return nil, false, fmt.Errorf("empty body from %s", url)
	}

	return &FetchResult{
		Data:          data,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, false, nil
}
