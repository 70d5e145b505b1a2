// Package retry wraps a single unreliable external call with a timeout,
// bounded retries, exponential backoff with jitter, and retryable-error
// classification. Every pipeline stage funnels its generation calls
// through Do.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Config controls one invocation. MaxRetries is the total attempt
// count, so 3 means at most 2 retries after the first failure.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Timeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Timeout:      60 * time.Second,
	}
}

// Error is the typed failure raised after a non-retryable error or
// exhausted retries. Services that can classify their own failures
// (HTTP backends) return it directly from an attempt; Do preserves the
// classification.
type Error struct {
	Message    string
	Retryable  bool
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable classifies a failure: HTTP 429, HTTP 5xx, timeouts, and a
// small fixed set of transient network errors retry; everything else
// aborts immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var typed *Error
	if errors.As(err, &typed) {
		if typed.StatusCode != 0 {
			return typed.StatusCode == 429 || (typed.StatusCode >= 500 && typed.StatusCode <= 599)
		}
		return typed.Retryable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// Backoff returns the delay before retry attempt n (0-indexed):
// min(initial*2^n, max) perturbed by a uniform ±5% jitter, floored at
// zero.
func Backoff(cfg Config, attempt int) time.Duration {
	base := float64(cfg.InitialDelay) * math.Pow(2, float64(attempt))
	if base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}

	jitter := base * 0.05 * (rand.Float64()*2 - 1)
	delay := time.Duration(base + jitter)
	if delay < 0 {
		delay = 0
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

func statusCode(err error) int {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.StatusCode
	}
	return 0
}

// Do runs fn up to cfg.MaxRetries times. Each attempt races fn against
// cfg.Timeout via the attempt context; a fired timer surfaces as
// context.DeadlineExceeded and counts as a retryable failure. The
// returned error is always a *Error on failure.
func Do[T any](ctx context.Context, log *zap.Logger, cfg Config, stage string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(cfg, attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, &Error{Message: fmt.Sprintf("%s: canceled while waiting to retry", stage), Cause: ctx.Err()}
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		value, err := fn(attemptCtx)
		cancel()

		if err == nil {
			return value, nil
		}
		lastErr = err

		retryable := Retryable(err)
		log.Warn("generation attempt failed",
			zap.String("stage", stage),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", cfg.MaxRetries),
			zap.Int("status", statusCode(err)),
			zap.Bool("retryable", retryable),
			zap.Error(err),
		)

		if !retryable {
			return zero, &Error{
				Message:    fmt.Sprintf("%s: non-retryable failure", stage),
				Retryable:  false,
				StatusCode: statusCode(err),
				Cause:      err,
			}
		}
	}

	return zero, &Error{
		Message:    fmt.Sprintf("%s: retries exhausted after %d attempts", stage, cfg.MaxRetries),
		Retryable:  true,
		StatusCode: statusCode(lastErr),
		Cause:      lastErr,
	}
}
