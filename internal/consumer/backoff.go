package consumer

import (
	"math"
	"time"
)

// backoffFor computes the visibility delay used when requeueing, from the
// post-increment attempt count: base × 0.5^(maxAttempts − attempts),
// truncated to whole seconds and clamped non-negative. Each attempt doubles
// the delay, reaching the full base only on the final permitted attempt.
//
// TODO(backoff): with the 30m default base and 5 attempts, the first retry
// waits under 2 minutes — confirm with the queue producers that the short
// early delays are intended before tuning the base.
func backoffFor(attempts, maxAttempts int, base time.Duration) time.Duration {
	d := float64(base) * math.Pow(0.5, float64(maxAttempts-attempts))
	secs := int64(d / float64(time.Second))
	if secs < 0 {
		secs = 0
	}
	return time.Duration(secs) * time.Second
}
