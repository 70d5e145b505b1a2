package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"
)

func fastConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Timeout:      time.Second,
	}
}

func TestDoRetriesRetryableUntilSuccess(t *testing.T) {
	attempts := 0
	value, err := Do(context.Background(), zap.NewNop(), fastConfig(), "test", func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", &Error{Message: "rate limited", StatusCode: 429}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "ok" {
		t.Fatalf("unexpected value: %q", value)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoNonRetryableAbortsImmediately(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), zap.NewNop(), fastConfig(), "test", func(ctx context.Context) (int, error) {
		attempts++
		return 0, &Error{Message: "bad request", StatusCode: 400}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("non-retryable failure must not be retried, got %d attempts", attempts)
	}

	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected *retry.Error, got %T", err)
	}
	if typed.Retryable {
		t.Fatalf("expected non-retryable typed error")
	}
	if typed.StatusCode != 400 {
		t.Fatalf("expected status 400, got %d", typed.StatusCode)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	attempts := 0
	cause := &Error{Message: "upstream down", StatusCode: 503}
	_, err := Do(context.Background(), zap.NewNop(), fastConfig(), "test", func(ctx context.Context) (int, error) {
		attempts++
		return 0, cause
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 3 {
		t.Fatalf("expected exactly MaxRetries attempts, got %d", attempts)
	}

	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected *retry.Error, got %T", err)
	}
	if typed.Cause == nil {
		t.Fatalf("exhausted error must carry the original cause")
	}
}

func TestDoTimeoutIsRetryable(t *testing.T) {
	cfg := fastConfig()
	cfg.Timeout = 5 * time.Millisecond

	attempts := 0
	_, err := Do(context.Background(), zap.NewNop(), cfg, "test", func(ctx context.Context) (int, error) {
		attempts++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != cfg.MaxRetries {
		t.Fatalf("timeouts must be retried, got %d attempts", attempts)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &Error{StatusCode: 429}, true},
		{"500", &Error{StatusCode: 500}, true},
		{"599", &Error{StatusCode: 599}, true},
		{"404", &Error{StatusCode: 404}, false},
		{"401", &Error{StatusCode: 401}, false},
		{"flagged transient", &Error{Retryable: true}, true},
		{"flagged permanent", &Error{Retryable: false}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.example.com"}, true},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestBackoffDoublesUntilCapped(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     800 * time.Millisecond,
	}

	for attempt := 0; attempt < 6; attempt++ {
		expected := float64(cfg.InitialDelay) * float64(int(1)<<attempt)
		if expected > float64(cfg.MaxDelay) {
			expected = float64(cfg.MaxDelay)
		}

		for i := 0; i < 20; i++ {
			delay := Backoff(cfg, attempt)
			if delay < 0 {
				t.Fatalf("attempt %d: negative delay %v", attempt, delay)
			}
			if delay > cfg.MaxDelay {
				t.Fatalf("attempt %d: delay %v above max %v", attempt, delay, cfg.MaxDelay)
			}
			if float64(delay) < expected*0.95 {
				t.Fatalf("attempt %d: delay %v below jitter floor of %v", attempt, delay, time.Duration(expected*0.95))
			}
		}
	}
}
