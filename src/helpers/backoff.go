package helpers

import (
	"context"
	"time"
)

const backoffMax = 60 * time.Second

// ScaledBackoff returns base * 2^retryCount, capped at the max delay.
// Negative counts return the base delay.
func ScaledBackoff(base time.Duration, retryCount int) time.Duration {
	if retryCount < 0 {
		return base
	}
	// 2^30 seconds is far past the cap
	if retryCount > 30 {
		return backoffMax
	}

	backoff := base * time.Duration(1<<retryCount)
	if backoff > backoffMax || backoff <= 0 {
		return backoffMax
	}
	return backoff
}

// -----------------------------------------------------------------------------

// SleepContext waits for d or until ctx is done. Returns false if cancelled.
func SleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
