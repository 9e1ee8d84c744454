package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts (0 means unlimited)
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 2,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.NewNopLogger(),
	}
}

// DefaultRetryIf retries typed transient fetch failures and nothing else.
// Context cancellation is never retried.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errs.IsRetryable(err)
}

// Do executes an operation with retry logic
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
		}

		delay := backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": cfg.MaxAttempts,
		})

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", errors.Join(err, lastErr))
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)

	return result, err
}
