package objectstore

import (
	"context"
	"errors"
	"testing"
)

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), defaultMaxAttempts, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetry_StopsImmediatelyOnPermanentError(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), defaultMaxAttempts, func() error {
		attempts++
		return errors.New("access denied")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-transient error, got %d", attempts)
	}
}

func TestIsTransient_TimeoutNotRetryable(t *testing.T) {
	if isTransient(context.DeadlineExceeded) {
		t.Fatal("context.DeadlineExceeded must not be classified transient")
	}
}

func TestIsTransient_ConnectionErrorsRetryable(t *testing.T) {
	cases := []string{
		"dial tcp: connection refused",
		"read: connection reset by peer",
		"write: broken pipe",
		"503 Service Unavailable",
	}
	for _, c := range cases {
		if !isTransient(errors.New(c)) {
			t.Fatalf("expected %q to be classified transient", c)
		}
	}
}
