package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}
}

func TestRetry_Success(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(context.Context) error {
		attempts++
		return nil
	}, DefaultRetryConfig(), nil)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_FailureThenSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, fastConfig(3), nil)

	if err != nil {
		t.Errorf("Expected no error after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_MaxAttempts(t *testing.T) {
	persistent := errors.New("persistent error")
	attempts := 0
	err := Retry(context.Background(), func(context.Context) error {
		attempts++
		return persistent
	}, fastConfig(2), nil)

	if !errors.Is(err, persistent) {
		t.Errorf("Expected wrapped persistent error, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("non-retryable error")
	}, fastConfig(3), func(error) bool { return false })

	if err == nil {
		t.Error("Expected error")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := fastConfig(5)
	config.InitialBackoff = time.Second
	config.MaxBackoff = time.Second

	attempts := 0
	start := time.Now()
	err := Retry(ctx, func(context.Context) error {
		attempts++
		cancel()
		return errors.New("temporary error")
	}, config, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Expected cancellation to interrupt the backoff")
	}
}

func TestRetryConfig_BackoffJitter(t *testing.T) {
	config := &RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	for i := 0; i < 20; i++ {
		d := config.backoff(1)
		if d < 200*time.Millisecond || d > 250*time.Millisecond {
			t.Fatalf("Expected backoff in [200ms, 250ms], got %v", d)
		}
	}
}

func TestIsRetryableNetworkError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"unavailable", errors.New("unavailable"), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"timeout", errors.New("i/o timeout"), true},
		{"rate limit", errors.New("rate limit"), true},
		{"canceled", context.Canceled, false},
		{"other error", errors.New("other error"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryableNetworkError(tt.err)
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, 1 * time.Second}, // Capped at max
	}

	for _, tt := range tests {
		backoff := CalculateBackoff(tt.attempt, 100*time.Millisecond, time.Second, 2.0)
		if backoff != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, backoff)
		}
	}
}

func TestNewRetryableError(t *testing.T) {
	originalErr := errors.New("original error")
	retryableErr := NewRetryableError(originalErr)

	if retryableErr.Error() != "original error" {
		t.Errorf("Expected error message 'original error', got %s", retryableErr.Error())
	}
	if !IsRetryable(retryableErr) {
		t.Error("Expected error to be retryable")
	}
	if IsRetryable(originalErr) {
		t.Error("Expected original error to not be retryable")
	}
	if NewRetryableError(nil) != nil {
		t.Error("Expected nil for nil error")
	}
}
