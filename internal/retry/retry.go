package retry

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config holds the backoff schedule for an operation.
type Config struct {
	MaxAttempts int           // total tries, including the first
	BaseDelay   time.Duration // first backoff step, doubled each attempt
}

// DefaultConfig mirrors the arXiv client convention of three tries per request.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Backoff grows exponentially with jitter drawn
// from [0, BaseDelay).
func Do(ctx context.Context, cfg Config, op func(context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1 * time.Second
	}

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}

		if !isRetryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.BaseDelay*time.Duration(1<<(attempt-1)) +
			time.Duration(rand.Int63n(int64(cfg.BaseDelay)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", cfg.MaxAttempts, err)
}

// isRetryable classifies an error by its message. Transport failures get
// another try, HTTP statuses are classified by code, and errors of unknown
// shape default to retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	for _, marker := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"network",
		"unexpected eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	if code, ok := statusCode(msg); ok {
		return HTTPStatusRetryable(code)
	}

	return true
}

// statusCode extracts the numeric code from errors shaped like
// "... unexpected status 503 ...".
func statusCode(msg string) (int, bool) {
	_, after, found := strings.Cut(msg, "status ")
	if !found {
		return 0, false
	}
	end := 0
	for end < len(after) && after[end] >= '0' && after[end] <= '9' {
		end++
	}
	code, err := strconv.Atoi(after[:end])
	if err != nil {
		return 0, false
	}
	return code, true
}

// HTTPStatusRetryable reports whether an HTTP status code is worth retrying:
// server errors (5xx) and rate limiting (429).
func HTTPStatusRetryable(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
