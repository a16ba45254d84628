// Package retry holds the backoff policy shared by every HTTP client in the
// service: storage uploads and media downloads.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// Policy is an exponential backoff schedule.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Default matches the storage client: 4 retries, 1s doubling up to 30s.
var Default = Policy{
	MaxRetries: 4,
	BaseDelay:  1 * time.Second,
	MaxDelay:   30 * time.Second,
}

// Delay calculates exponential backoff with jitter: base * 2^(attempt-1) + 0-25%.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	// Add 0–25% jitter to avoid thundering herd
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// Wait sleeps for the attempt's delay or until ctx is done.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-time.After(p.Delay(attempt)):
		return nil
	}
}

// IsRetryableError checks if a network-level error is worth retrying
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// IsRetryableStatus checks if an HTTP status code is worth retrying
func IsRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Truncate limits a string to maxLen bytes for log output
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
