package llm

import (
	"context"
	"time"
)

// Policy holds the retry timing of the completion client.
type Policy struct {
	// RateLimitStep is scaled by the attempt number after a 429.
	RateLimitStep time.Duration
	// RetryDelay is the fixed wait after any other failure.
	RetryDelay time.Duration
}

// DefaultPolicy returns 10s linear rate-limit backoff and a 2s retry delay.
func DefaultPolicy() Policy {
	return Policy{
		RateLimitStep: 10 * time.Second,
		RetryDelay:    2 * time.Second,
	}
}

// RateLimitDelay returns the wait after a 429 on the given 0-based attempt.
func (p Policy) RateLimitDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.RateLimitStep * time.Duration(attempt+1)
}

// Budget returns the number of attempts one call may make.
func (p Policy) Budget(poolSize int) int {
	return 2 * poolSize
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
