package utils

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"
)

// TemporaryError marks an error as retryable regardless of its underlying
// type, for failures (e.g. HTTP 429/5xx) that carry no net.Error semantics.
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string { return e.Err.Error() }
func (e *TemporaryError) Unwrap() error { return e.Err }

// Retry runs fn up to attempts times, sleeping baseDelay and doubling it
// between tries. It stops early when fn succeeds, when the error is not
// transient, or when ctx is done. The last error is returned as-is.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if !ShouldRetry(err) {
			return err
		}
	}
	return err
}

// ShouldRetry reports whether an error is worth another attempt. It covers
// transient dial/timeout failures from net/http plus anything wrapped in a
// TemporaryError.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var tmp *TemporaryError
	if errors.As(err, &tmp) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			return ShouldRetry(urlErr.Err)
		}
	}

	return false
}

// RetryableStatus reports whether an HTTP status code from an upstream API
// indicates a transient condition.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
