package submit

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts (default: 3)
	BaseDelay  time.Duration // Initial delay between retries (default: 100ms)
	MaxDelay   time.Duration // Maximum delay between retries (default: 5s)
	Multiplier float64       // Delay multiplier for exponential backoff (default: 2.0)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// WithRetry runs fn until it succeeds, fails with a permanent error, or the
// attempts run out.
func WithRetry(ctx context.Context, output string, cfg RetryConfig, log *zap.Logger, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info("Delivery succeeded after retry", zap.String("output", output), zap.Int("attempt", attempt+1))
			}
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			log.Debug("Non-retryable delivery error", zap.String("output", output), zap.Error(err))
			return err
		}

		if attempt < cfg.MaxRetries {
			delay := calculateDelay(attempt, cfg)
			log.Warn("Delivery attempt failed, retrying",
				zap.String("output", output), zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	log.Warn("All delivery attempts failed", zap.String("output", output), zap.Int("attempts", cfg.MaxRetries+1))

	var deliveryErr *DeliveryError
	if errors.As(lastErr, &deliveryErr) {
		deliveryErr.Retryable = false
		return lastErr
	}

	return &DeliveryError{
		Output:    output,
		Operation: "send",
		Err:       lastErr,
		Retryable: false,
	}
}

// calculateDelay computes the delay for the given attempt using exponential backoff with jitter
func calculateDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))

	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	// 80% to 120% of the delay
	jitter := 0.8 + rand.Float64()*0.4
	delay *= jitter

	return time.Duration(delay)
}
