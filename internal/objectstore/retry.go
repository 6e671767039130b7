package objectstore

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/automl-platform/orchestrator/internal/apperrors"
)

// Retry constants: exponential backoff, base 1s, factor 2, cap 30s.
// defaultMaxAttempts is the fallback attempt count for callers that don't
// configure one explicitly.
const (
	retryBase          = 1 * time.Second
	retryFactor        = 2
	retryCap           = 30 * time.Second
	defaultMaxAttempts = 5
)

// withRetry runs fn, retrying transient failures with exponential backoff
// up to maxAttempts times. Classification follows the common
// ClassifyError shape: non-timeout network errors and EOF/connection-reset
// style errors are transient; timeouts, context cancellation and anything
// else are permanent and returned immediately.
func withRetry(ctx context.Context, maxAttempts int, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	var lastErr error
	delay := retryBase
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= retryFactor
		if delay > retryCap {
			delay = retryCap
		}
	}
	return apperrors.Wrap(apperrors.KindDependency, "object store retries exhausted", lastErr)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return !netErr.Timeout()
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "connection closed", "no such host", "503", "500", "throttl"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
