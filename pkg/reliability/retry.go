package reliability

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// RetryConfig configures retry's capped-exponential-backoff-with-jitter
// delay sequence, grounded on pkg/util/resiliency.EnhancedClient.Do's
// backoff math (base * 2^i + jitter), generalized to equal jitter and a
// caller-supplied retryability predicate.
type RetryConfig struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	BackoffMultiplier float64
	IsRetryable      func(error) bool
}

// Delay returns the equal-jitter capped-exponential delay before attempt i
// (0-indexed retry count, not the first try).
func (c RetryConfig) Delay(attempt int) time.Duration {
	mult := c.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	base := float64(c.InitialDelay) * math.Pow(mult, float64(attempt))
	capped := math.Min(base, float64(c.MaxDelay))
	half := capped / 2
	jitter, err := rand.Int(rand.Reader, big.NewInt(int64(half)+1))
	j := int64(0)
	if err == nil {
		j = jitter.Int64()
	}
	return time.Duration(half) + time.Duration(j)
}

// Retry runs fn, retrying on retryable errors up to MaxAttempts total
// attempts with Delay-governed sleeps between them. Non-retryable errors
// escape immediately. Returns the last error if attempts are exhausted.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	retryable := cfg.IsRetryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay(i)):
		}
	}
	return lastErr
}
