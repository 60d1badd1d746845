package worker

import "time"

const maxBackoff = 60 * time.Second

// RetryPolicy bounds how often the worker re-attempts a transiently failing
// order execution. It lives here, not in the queue, so retry behaviour is
// observable and testable independently of queue infrastructure.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy returns the production policy: 3 total attempts with
// exponential backoff starting at one second and doubling each retry.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
	}
}

// Backoff returns the delay to wait before the given attempt. Attempts are
// 1-based; the first attempt has no delay. The result is capped at one
// minute.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := p.BaseDelay
	for i := 2; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
