package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"voicechat/internal/domain"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// WithRetry executes a function with exponential backoff retry logic.
// Errors marked with Permanent stop the loop immediately.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		// Don't retry on context cancellation
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		// Last attempt, don't wait
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryableHTTPStatus returns true if the HTTP status code is retryable
func IsRetryableHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout ||
		statusCode >= 500
}

// StatusError is a non-success answer from an upstream API.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Service, e.Code, e.Body)
}

func (e *StatusError) HTTPStatus() int {
	return e.Code
}

// CheckStatus turns a non-2xx response into a StatusError, marked permanent
// unless the status is worth another attempt.
func CheckStatus(service string, code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := &StatusError{Service: service, Code: code, Body: truncate(string(body), 512)}
	if IsRetryableHTTPStatus(code) && code != http.StatusTooManyRequests {
		return err
	}
	return Permanent(err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RateLimited tags an upstream 429 with domain.ErrRateLimited so callers can
// tell it apart from other failures.
func RateLimited(err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	return err
}
