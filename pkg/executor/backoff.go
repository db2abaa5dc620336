package executor

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/caseflow/caseflow/pkg/models"
)

// retryDelay returns the pre-jitter wait before the next attempt:
// min(initial * multiplier^(attempt-1), max), where attempt is the 1-based
// attempt that just failed.
func retryDelay(policy models.RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(attempt-1))

	if maxDelay := float64(policy.MaxDelay); policy.MaxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	return time.Duration(delay)
}

// withJitter spreads the delay by ±25% so synchronized retries from
// concurrent executions do not hammer a recovering dependency in lockstep.
func withJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return delay
	}

	spread := 0.75 + rand.Float64()*0.5

	return time.Duration(float64(delay) * spread)
}
