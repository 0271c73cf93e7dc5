package notifyws

import (
	"math"
	"time"
)

// BackoffPolicy decides how long to wait before reconnect attempt N and when to stop trying.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Delay returns min(BaseDelay * 2^(attempt-1), MaxDelay) for a 1-based attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.BaseDelay <= 0 {
		return 0
	}

	delay := float64(p.BaseDelay) * ExponentialBackoff(attempt)
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// Exhausted reports whether no further reconnect may be scheduled after `attempts` failures.
func (p BackoffPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// ExponentialBackoff is the multiplier applied to the base delay: 1, 2, 4, 8...
func ExponentialBackoff(attempt int) float64 {
	return math.Pow(2.0, float64(attempt-1))
}
