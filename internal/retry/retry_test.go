package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: 1 * time.Millisecond}
	calls := 0

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: 1 * time.Millisecond}
	calls := 0

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errors.New("request timeout")
	})

	if err == nil {
		t.Fatal("expected failure, got success")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if !strings.Contains(err.Error(), "giving up after 3 attempts") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	cfg := Config{MaxAttempts: 5, BaseDelay: 1 * time.Millisecond}
	calls := 0

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("unexpected status %d", 404)
	})

	if err == nil {
		t.Fatal("expected failure, got success")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call for non-retryable error, got %d", calls)
	}
	if !strings.Contains(err.Error(), "non-retryable error") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	cfg := Config{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	start := time.Now()
	err := Do(ctx, cfg, func(ctx context.Context) error {
		calls++
		return errors.New("retryable timeout")
	})
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got: %v", err)
	}
	if elapsed > 200*time.Millisecond {
		t.Fatalf("expected quick abort, took %v", elapsed)
	}
}

func TestDoNormalizesAttemptBudget(t *testing.T) {
	cfg := Config{MaxAttempts: 0, BaseDelay: 1 * time.Millisecond}
	calls := 0

	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errors.New("timeout")
	})

	if calls != 1 {
		t.Fatalf("expected a zero budget to normalize to 1 call, got %d", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"timeout error", errors.New("request timeout"), true},
		{"connection refused", errors.New("connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"5xx server error", errors.New("unexpected status 500"), true},
		{"502 bad gateway", errors.New("unexpected status 502"), true},
		{"429 rate limit", errors.New("unexpected status 429"), true},
		{"400 bad request", errors.New("unexpected status 400"), false},
		{"401 unauthorized", errors.New("unexpected status 401"), false},
		{"404 not found", errors.New("unexpected status 404"), false},
		{"redirect status", errors.New("unexpected status 302"), false},
		{"status without code", errors.New("status pending"), true},
		{"wrapped status", errors.New("gemini: unexpected status 503: overloaded"), true},
		{"unknown error", errors.New("some unknown error"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("isRetryable(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestHTTPStatusRetryable(t *testing.T) {
	tests := []struct {
		status   int
		expected bool
	}{
		{200, false},
		{201, false},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			result := HTTPStatusRetryable(tt.status)
			if result != tt.expected {
				t.Errorf("HTTPStatusRetryable(%d) = %v, expected %v", tt.status, result, tt.expected)
			}
		})
	}
}
