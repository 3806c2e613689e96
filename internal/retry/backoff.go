package retry

import "time"

// MaxDelay caps the backoff so task retries stay within a reasonable window.
const MaxDelay = 30 * time.Second

// ExponentialBackoff returns delay based on attempt number.
// The delay doubles with each attempt (base * 2^attempt) up to MaxDelay.
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base * (1 << attempt)
	if d <= 0 || d > MaxDelay {
		return MaxDelay
	}
	return d
}
