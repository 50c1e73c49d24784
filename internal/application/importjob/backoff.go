package importjob

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// retryDelay grows base exponentially per attempt, capped at maxDelay, and
// adds up to half of base as jitter.
func retryDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}

	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	if half := int64(base / 2); half > 0 {
		d += time.Duration(rand.Int63n(half + 1)) //nolint:gosec
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
