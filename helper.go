package execution

import (
	"context"
	"time"
)

// calculateBackoff returns base * 2^retryCount, capped at maxBackoff.
// A negative retryCount returns base.
func calculateBackoff(base time.Duration, retryCount int) time.Duration {
	if retryCount < 0 {
		return base
	}

	// 2^30 seconds is far past maxBackoff, stop before the shift overflows
	if retryCount > 30 {
		return maxBackoff
	}

	backoff := base * time.Duration(1<<retryCount)

	if backoff > maxBackoff || backoff <= 0 {
		return maxBackoff
	}

	return backoff
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
