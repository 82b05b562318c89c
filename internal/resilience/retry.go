package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts       int           // Maximum number of attempts, including the first
	InitialBackoff    time.Duration // Initial backoff duration
	MaxBackoff        time.Duration // Maximum backoff duration
	BackoffMultiplier float64       // Multiplier for exponential backoff
	Jitter            bool          // Add up to 25% random jitter to each backoff
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// IsRetryableError checks if an error is retryable
type IsRetryableError func(error) bool

// Retry calls fn until it succeeds, returns a non-retryable error, runs out
// of attempts or ctx is done. A nil isRetryable retries every error.
func Retry(ctx context.Context, fn RetryableFunc, config *RetryConfig, isRetryable IsRetryableError) error {
	return RetryWithLogger(ctx, fn, config, isRetryable, zerolog.Nop())
}

// RetryWithLogger is Retry with each failed attempt logged at warn level
func RetryWithLogger(ctx context.Context, fn RetryableFunc, config *RetryConfig, isRetryable IsRetryableError, logger zerolog.Logger) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempts := max(config.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info().Int("attempt", attempt+1).Msg("Succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == attempts-1 {
			break
		}

		backoff := config.backoff(attempt)
		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", attempts).
			Dur("backoff", backoff).
			Msg("Attempt failed, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (c *RetryConfig) backoff(attempt int) time.Duration {
	d := CalculateBackoff(attempt, c.InitialBackoff, c.MaxBackoff, c.BackoffMultiplier)
	if c.Jitter && d > 0 {
		d += time.Duration(rand.Int64N(int64(d)/4 + 1))
		if d > c.MaxBackoff {
			d = c.MaxBackoff
		}
	}
	return d
}

// CalculateBackoff calculates the backoff duration for a given attempt
func CalculateBackoff(attempt int, initialBackoff time.Duration, maxBackoff time.Duration, multiplier float64) time.Duration {
	backoff := time.Duration(float64(initialBackoff) * math.Pow(multiplier, float64(attempt)))
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

// IsRetryableNetworkError checks if an error is a retryable network error
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()

	// Connection errors
	if containsAny(errStr, []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"broken pipe",
		"unavailable",
		"network is unreachable",
		"no route to host",
	}) {
		return true
	}

	// Timeout errors
	if containsAny(errStr, []string{
		"deadline exceeded",
		"timeout",
	}) {
		return true
	}

	// Resource exhaustion (may be temporary)
	return containsAny(errStr, []string{
		"too many connections",
		"rate limit",
	})
}

func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// RetryableError wraps an error to indicate it's retryable
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable checks if an error is a RetryableError
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
